package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

func writeHistory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type creditResponse struct {
	Status string `json:"status"`
	Data   struct {
		State         domain.StateCode     `json:"state"`
		AsOf          string               `json:"asOf"`
		ServiceCredit domain.ServiceCredit `json:"serviceCredit"`
	} `json:"data"`
}

func TestCreditCommand(t *testing.T) {
	t.Run("EarnedAndPurchasedCapped", func(t *testing.T) {
		path := writeHistory(t, `
state: CA
entries:
  - start_date: 1994-01-01
    end_date: 2024-01-01
    credited_years: 30
  - start_date: 2024-01-01
    end_date: 2024-01-01
    purchased: true
    credited_years: 7
`)
		stdout, _, err := execute(t, "--format", "json", "--as-of", "2024-06-30", "credit", path)
		require.NoError(t, err)

		var resp creditResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		assert.Equal(t, domain.StateCA, resp.Data.State)
		assert.Equal(t, "2024-06-30", resp.Data.AsOf)
		assert.True(t, resp.Data.ServiceCredit.EarnedYears.Equal(decimal.NewFromInt(30)))
		assert.True(t, resp.Data.ServiceCredit.PurchasedYears.Equal(decimal.NewFromInt(7)))
		assert.True(t, resp.Data.ServiceCredit.PurchasedYearsCredited.Equal(decimal.NewFromInt(5)))
		assert.True(t, resp.Data.ServiceCredit.TotalYears.Equal(decimal.NewFromInt(35)), "total %s", resp.Data.ServiceCredit.TotalYears)
	})

	t.Run("OpenEntryAccruesToAsOf", func(t *testing.T) {
		path := writeHistory(t, `
state: OH
entries:
  - start_date: 2020-01-01
`)
		stdout, _, err := execute(t, "--as-of", "2024-01-01", "credit", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Service credit for Ohio as of 2024-01-01")
		assert.Contains(t, stdout, "Total")
	})

	t.Run("StateOverride", func(t *testing.T) {
		path := writeHistory(t, `
state: CA
entries:
  - start_date: 2000-01-01
    end_date: 2010-01-01
    credited_years: 10
`)
		stdout, _, err := execute(t, "--format", "json", "credit", path, "--state", "in")
		require.NoError(t, err)

		var resp creditResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		assert.Equal(t, domain.StateIN, resp.Data.State)
	})

	t.Run("OverlapRejected", func(t *testing.T) {
		path := writeHistory(t, `
state: CA
entries:
  - start_date: 2000-01-01
    end_date: 2010-01-01
    credited_years: 10
  - start_date: 2005-01-01
    end_date: 2015-01-01
    credited_years: 10
`)
		_, stderr, err := execute(t, "credit", path)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, stderr, "overlap")
	})

	t.Run("BadDate", func(t *testing.T) {
		path := writeHistory(t, `
state: CA
entries:
  - start_date: 01/01/2000
`)
		stdout, _, err := execute(t, "--format", "json", "credit", path)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "entries[0].start_date", resp.Error.Field)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, _, err := execute(t, "credit", filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
