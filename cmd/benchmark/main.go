// Benchmark tool for checking a running pensionrules server against a file
// of labelled member scenarios.
//
// Usage:
//
//	go run ./cmd/benchmark -csv scenarios.csv -url http://localhost:8080
//
// The CSV header must name these columns, in any order:
//
//	state,benefit_type,age,service_years,final_average_salary,contribution_rate,expected_eligible
//
// An optional expected_annual column is compared against the calculated
// annual benefit to the cent.
//
// This tool:
//  1. Reads labelled member scenarios
//  2. Sends each scenario to POST /assess
//  3. Compares the verdict (ELIGIBLE/INELIGIBLE) with the expected label
//  4. Reports the agreement matrix, benefit mismatches and latency
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/pensionrules/internal/api"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

// Scenario is one labelled row from the scenario file.
type Scenario struct {
	Line             int
	Request          api.AssessRequest
	ExpectedEligible bool
	ExpectedAnnual   *decimal.Decimal
}

// Metrics tracks benchmark results.
type Metrics struct {
	AgreeEligible      int64 // Expected eligible, assessed ELIGIBLE
	AgreeIneligible    int64 // Expected ineligible, assessed INELIGIBLE
	MissedEligible     int64 // Expected eligible, assessed INELIGIBLE
	UnexpectedEligible int64 // Expected ineligible, assessed ELIGIBLE

	AmountChecked    int64
	AmountMismatches int64
	NonCompliant     int64

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

var requiredColumns = []string{
	"state", "benefit_type", "age", "service_years",
	"final_average_salary", "contribution_rate", "expected_eligible",
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to scenario CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "pensionrules base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	asOf := flag.String("as-of", "", "Evaluation date YYYY-MM-DD (default: server today)")
	limit := flag.Int("limit", 0, "Maximum scenarios to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each scenario result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/scenarios.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        PENSIONRULES BENCHMARK - Labelled Member Scenarios     ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Server URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: pensionrules not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run ./cmd/pensionrules")
		os.Exit(1)
	}
	fmt.Println("✓ pensionrules is healthy")

	fmt.Printf("\nReading scenarios from %s...\n", *csvPath)
	scenarios, err := readScenarios(*csvPath, *limit, *asOf)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(scenarios) == 0 {
		fmt.Println("ERROR: no scenarios in file")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d scenarios\n", len(scenarios))

	eligibleCount := 0
	for _, s := range scenarios {
		if s.ExpectedEligible {
			eligibleCount++
		}
	}
	fmt.Printf("  - Expected eligible:   %d (%.2f%%)\n", eligibleCount, 100*float64(eligibleCount)/float64(len(scenarios)))
	fmt.Printf("  - Expected ineligible: %d (%.2f%%)\n", len(scenarios)-eligibleCount, 100*float64(len(scenarios)-eligibleCount)/float64(len(scenarios)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(scenarios, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)

	if metrics.MissedEligible+metrics.UnexpectedEligible+metrics.AmountMismatches+metrics.TotalErrors > 0 {
		os.Exit(1)
	}
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readScenarios(path string, limit int, asOf string) ([]Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	annualCol, hasAnnual := colIndex["expected_annual"]

	var scenarios []Scenario
	line := 1

	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(name string) string {
			return strings.TrimSpace(record[colIndex[name]])
		}

		age, err := strconv.Atoi(field("age"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid age %q", line, field("age"))
		}
		service, err := decimal.NewFromString(field("service_years"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid service_years %q", line, field("service_years"))
		}
		salary, err := decimal.NewFromString(field("final_average_salary"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid final_average_salary %q", line, field("final_average_salary"))
		}
		rate, err := decimal.NewFromString(field("contribution_rate"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid contribution_rate %q", line, field("contribution_rate"))
		}
		expected, err := strconv.ParseBool(field("expected_eligible"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid expected_eligible %q", line, field("expected_eligible"))
		}

		s := Scenario{
			Line: line,
			Request: api.AssessRequest{
				State:              field("state"),
				BenefitType:        field("benefit_type"),
				Age:                age,
				TotalServiceYears:  &service,
				FinalAverageSalary: salary,
				ContributionRate:   rate,
				AsOf:               asOf,
			},
			ExpectedEligible: expected,
		}
		if hasAnnual {
			if raw := strings.TrimSpace(record[annualCol]); raw != "" {
				annual, err := decimal.NewFromString(raw)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid expected_annual %q", line, raw)
				}
				s.ExpectedAnnual = &annual
			}
		}

		scenarios = append(scenarios, s)

		if limit > 0 && len(scenarios) >= limit {
			break
		}
	}

	return scenarios, nil
}

func runBenchmark(scenarios []Scenario, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Scenario, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, err := assess(client, baseURL, tenantID, s)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: line %d -> %v\n", s.Line, err)
					}
					continue
				}

				assessed := result.Status == domain.StatusEligible
				switch {
				case assessed && s.ExpectedEligible:
					atomic.AddInt64(&metrics.AgreeEligible, 1)
				case !assessed && !s.ExpectedEligible:
					atomic.AddInt64(&metrics.AgreeIneligible, 1)
				case !assessed && s.ExpectedEligible:
					atomic.AddInt64(&metrics.MissedEligible, 1)
				default:
					atomic.AddInt64(&metrics.UnexpectedEligible, 1)
				}

				amountOK := true
				if s.ExpectedAnnual != nil {
					atomic.AddInt64(&metrics.AmountChecked, 1)
					if !result.Benefit.AnnualAmount.Equal(*s.ExpectedAnnual) {
						amountOK = false
						atomic.AddInt64(&metrics.AmountMismatches, 1)
					}
				}
				if !result.Compliant {
					atomic.AddInt64(&metrics.NonCompliant, 1)
				}

				if verbose {
					mark := "✓"
					if assessed != s.ExpectedEligible || !amountOK {
						mark = "✗"
					}
					fmt.Printf("%s line %-5d | %s %-10s | Age: %3d | Service: %6s | Expected: %-5v | Got: %-10s | Annual: %12s\n",
						mark,
						s.Line,
						s.Request.State,
						s.Request.BenefitType,
						s.Request.Age,
						s.Request.TotalServiceYears.String(),
						s.ExpectedEligible,
						result.Status,
						result.Benefit.AnnualAmount.StringFixed(2),
					)
				}
			}
		}()
	}

	for _, s := range scenarios {
		work <- s
	}
	close(work)

	wg.Wait()

	return metrics
}

func assess(client *http.Client, baseURL, tenantID string, s Scenario) (*domain.AssessmentResponse, error) {
	body, err := json.Marshal(s.Request)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result domain.AssessmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Non-compliant:    %d\n", m.NonCompliant)

	fmt.Printf("\nAGREEMENT MATRIX\n")
	fmt.Println("                          Assessed")
	fmt.Println("                     ELIGIBLE   INELIGIBLE")
	fmt.Println("                   ┌──────────┬──────────┐")
	fmt.Printf("   Expected  E     │ %8d │ %8d │\n", m.AgreeEligible, m.MissedEligible)
	fmt.Println("                   ├──────────┼──────────┤")
	fmt.Printf("            NE     │ %8d │ %8d │\n", m.UnexpectedEligible, m.AgreeIneligible)
	fmt.Println("                   └──────────┴──────────┘")

	agreement := float64(0)
	total := m.AgreeEligible + m.AgreeIneligible + m.MissedEligible + m.UnexpectedEligible
	if total > 0 {
		agreement = float64(m.AgreeEligible+m.AgreeIneligible) / float64(total)
	}
	fmt.Printf("\n   Agreement:        %.4f\n", agreement)
	if m.AmountChecked > 0 {
		fmt.Printf("   Benefit amounts:  %d / %d match\n", m.AmountChecked-m.AmountMismatches, m.AmountChecked)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f assessments/sec\n", rps)
	}

	fmt.Println()
}
