package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Member is a plan member record as stored by the persistence layer.
type Member struct {
	// Core identifiers
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	ExternalID string `json:"externalId,omitempty"`

	Name      string    `json:"name"`
	BirthDate time.Time `json:"birthDate"`
	State     StateCode `json:"state"`

	// Salary and contribution record
	FinalAverageSalary decimal.Decimal `json:"finalAverageSalary"`
	ContributionRate   decimal.Decimal `json:"contributionRate"`

	// Documents on file, consumed by compliance policies
	MedicalExamOnFile    bool `json:"medicalExamOnFile"`
	SpouseApprovalOnFile bool `json:"spouseApprovalOnFile"`

	// Temporal
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AgeAt returns the member's age in whole calendar years on the given date.
func (m *Member) AgeAt(asOf time.Time) int {
	return CalendarYears(m.BirthDate, asOf)
}

// CalendarYears counts completed years between from and to.
func CalendarYears(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// MemberSnapshot is the cached bundle the calling layer assembles before
// invoking the engine.
type MemberSnapshot struct {
	Member         *Member               `json:"member"`
	ServiceHistory []ServiceHistoryEntry `json:"serviceHistory"`
}
