// Package models defines the unified member shapes shared by the v1 and v2
// stores. Source schemas differ (file_id only exists in v1, version only in
// v2); everything else projects onto MemberRecord.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceVariant tags which schema a record was read from.
type SourceVariant string

const (
	SourceV1 SourceVariant = "v1"
	SourceV2 SourceVariant = "v2"
)

// Range is a half-open date interval [Lower, Upper). A nil endpoint means
// unbounded on that side.
type Range struct {
	Lower *time.Time
	Upper *time.Time
}

// Contains reports whether day falls inside the interval.
func (r Range) Contains(day time.Time) bool {
	day = truncateToDay(day)
	if r.Lower != nil && day.Before(truncateToDay(*r.Lower)) {
		return false
	}
	if r.Upper != nil && !day.Before(truncateToDay(*r.Upper)) {
		return false
	}
	return true
}

// UpperInPast reports whether the interval has already closed before day.
// Verification activity checks use this inclusive-upper rule.
func (r Range) UpperInPast(day time.Time) bool {
	if r.Upper == nil {
		return false
	}
	return truncateToDay(*r.Upper).Before(truncateToDay(day))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Attributes is an opaque attribute map stored as JSONB.
type Attributes map[string]any

// Bool reads key as a truthy flag. Client files deliver booleans
// inconsistently, so strings and numbers are accepted.
func (a Attributes) Bool(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "1" || s == "yes" || s == "y"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}

// String reads key as a string, empty when absent or differently typed.
func (a Attributes) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Date reads key as an ISO-8601 date.
func (a Attributes) Date(key string) *time.Time {
	raw := a.String(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

// Value implements driver.Valuer for JSONB columns.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB columns.
func (a *Attributes) Scan(src any) error {
	if src == nil {
		*a = Attributes{}
		return nil
	}
	var raw []byte
	switch t := src.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return fmt.Errorf("scan attributes: unsupported type %T", src)
	}
	return json.Unmarshal(raw, a)
}

// OrgIdentity identifies a member within an organization. An empty
// DependentID denotes the subscriber.
type OrgIdentity struct {
	OrganizationID int64  `json:"organization_id"`
	UniqueCorpID   string `json:"unique_corp_id"`
	DependentID    string `json:"dependent_id"`
}

// MemberRecord is the unified projection of a v1 or v2 member row.
type MemberRecord struct {
	ID                 int64         `json:"id"`
	OrganizationID     int64         `json:"organization_id"`
	UniqueCorpID       string        `json:"unique_corp_id"`
	DependentID        string        `json:"dependent_id"`
	EmployerAssignedID string        `json:"employer_assigned_id"`
	FirstName          string        `json:"first_name"`
	LastName           string        `json:"last_name"`
	DateOfBirth        time.Time     `json:"date_of_birth"`
	Email              string        `json:"email"`
	WorkState          string        `json:"work_state"`
	WorkCountry        string        `json:"work_country"`
	GenderCode         string        `json:"gender_code"`
	DoNotContact       string        `json:"do_not_contact"`
	Record             Attributes    `json:"record"`
	CustomAttributes   Attributes    `json:"custom_attributes"`
	EffectiveRange     Range         `json:"effective_range"`
	FileID             *int64        `json:"file_id,omitempty"`
	Version            *int64        `json:"version,omitempty"`
	Source             SourceVariant `json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Identity projects the record's org identity tuple.
func (m *MemberRecord) Identity() OrgIdentity {
	return OrgIdentity{
		OrganizationID: m.OrganizationID,
		UniqueCorpID:   m.UniqueCorpID,
		DependentID:    m.DependentID,
	}
}

// MemberResponse is a MemberRecord plus the pair of underlying row ids.
// IsV2 true requires Member2ID to be set; Member1ID is set whenever a v1
// row exists for the member.
type MemberResponse struct {
	MemberRecord
	IsV2      bool   `json:"is_v2"`
	Member1ID *int64 `json:"member_1_id,omitempty"`
	Member2ID *int64 `json:"member_2_id,omitempty"`
}

// FromV1 builds a response backed only by a v1 row.
func FromV1(rec *MemberRecord) *MemberResponse {
	id := rec.ID
	return &MemberResponse{MemberRecord: *rec, IsV2: false, Member1ID: &id}
}

// FromPair builds a v2 response carrying both row ids. The v2 record is
// authoritative for field values.
func FromPair(v1 *MemberRecord, v2 *MemberRecord) *MemberResponse {
	resp := &MemberResponse{MemberRecord: *v2, IsV2: true}
	v2ID := v2.ID
	resp.Member2ID = &v2ID
	if v1 != nil {
		v1ID := v1.ID
		resp.Member1ID = &v1ID
	}
	return resp
}

// WalletEnablement is the derived wallet view over a member's record payload.
type WalletEnablement struct {
	MemberID        int64      `json:"member_id"`
	OrganizationID  int64      `json:"organization_id"`
	UniqueCorpID    string     `json:"unique_corp_id"`
	DependentID     string     `json:"dependent_id"`
	Enabled         bool       `json:"enabled"`
	InsurancePlan   string     `json:"insurance_plan,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EligibilityDate *time.Time `json:"eligibility_date,omitempty"`
	EffectiveRange  Range      `json:"effective_range"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// WalletFromRecord derives the wallet view. The start date prefers the
// wallet-specific date over the employee start date.
func WalletFromRecord(m *MemberRecord) *WalletEnablement {
	start := m.Record.Date("wallet_eligibility_start_date")
	if start == nil {
		start = m.Record.Date("employee_start_date")
	}
	return &WalletEnablement{
		MemberID:        m.ID,
		OrganizationID:  m.OrganizationID,
		UniqueCorpID:    m.UniqueCorpID,
		DependentID:     m.DependentID,
		Enabled:         m.Record.Bool("wallet_enabled"),
		InsurancePlan:   m.Record.String("insurance_plan"),
		StartDate:       start,
		EligibilityDate: m.Record.Date("employee_eligibility_date"),
		EffectiveRange:  m.EffectiveRange,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// NormalizeCorpID lowercases and strips leading zeros, matching the
// tertiary-verification comparison rule.
func NormalizeCorpID(corpID string) string {
	return strings.TrimLeft(strings.ToLower(strings.TrimSpace(corpID)), "0")
}

// NormalizeText lowercases and trims surrounding whitespace.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
