// Package models holds the per-organization configuration shape.
package models

import "time"

// Eligibility types an organization can be configured with.
const (
	TypeStandard       = "STANDARD"
	TypeAlternate      = "ALTERNATE"
	TypeHealthPlan     = "HEALTHPLAN"
	TypeFileless       = "FILELESS"
	TypeClientSpecific = "CLIENT_SPECIFIC"
	TypeUnknown        = "UNKNOWN"
)

// Configuration is the per-organization eligibility policy row.
// Implementation is the client-specific verifier tag, empty when the
// organization has no bespoke integration.
type Configuration struct {
	OrganizationID  int64      `json:"organization_id"`
	EligibilityType string     `json:"eligibility_type"`
	Implementation  string     `json:"implementation,omitempty"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	TerminatedAt    *time.Time `json:"terminated_at,omitempty"`
	EmployeeOnly    bool       `json:"employee_only"`
	MedicalPlanOnly bool       `json:"medical_plan_only"`
	DataProvider    bool       `json:"data_provider"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsActive applies the activation window rule: activated in the past and not
// yet terminated.
func (c *Configuration) IsActive(now time.Time) bool {
	if c == nil || c.ActivatedAt == nil || now.Before(*c.ActivatedAt) {
		return false
	}
	return c.TerminatedAt == nil || now.Before(*c.TerminatedAt)
}
