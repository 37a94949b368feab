// Package models defines the verification triple: Verification (v1 and v2
// variants), VerificationAttempt, and the MemberVerification link row.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	membermodels "eligibility/internal/member/models"
)

// Verification types. Callers send these case-insensitively.
const (
	TypePrimary        = "PRIMARY"
	TypeAlternate      = "ALTERNATE"
	TypeClientSpecific = "CLIENT_SPECIFIC"
	TypeFileless       = "FILELESS"
	TypeManual         = "MANUAL"
	TypePreVerify      = "PRE_VERIFY"
	TypeMultistep      = "MULTISTEP"
	TypeSSO            = "SSO"
	TypeStandard       = "STANDARD"
	TypeLookup         = "LOOKUP"
)

var knownTypes = map[string]bool{
	TypePrimary: true, TypeAlternate: true, TypeClientSpecific: true,
	TypeFileless: true, TypeManual: true, TypePreVerify: true,
	TypeMultistep: true, TypeSSO: true, TypeStandard: true, TypeLookup: true,
}

// NormalizeType uppercases a caller-supplied type and reports whether it is
// a known verification type.
func NormalizeType(raw string) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	return t, knownTypes[t]
}

// Demographics is the snapshot captured on every verification row.
type Demographics struct {
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	UniqueCorpID string     `json:"unique_corp_id"`
	DependentID  string     `json:"dependent_id"`
	WorkState    string     `json:"work_state"`
}

// Verification is the v1 verification row. Verification2ID links the
// parallel v2 row for dual-written organizations.
type Verification struct {
	ID                  int64                    `json:"verification_id"`
	UserID              int64                    `json:"user_id"`
	OrganizationID      int64                    `json:"organization_id"`
	VerificationType    string                   `json:"verification_type"`
	Demographics        Demographics             `json:"demographics"`
	VerifiedAt          time.Time                `json:"verified_at"`
	DeactivatedAt       *time.Time               `json:"deactivated_at,omitempty"`
	VerificationSession *uuid.UUID               `json:"verification_session,omitempty"`
	AdditionalFields    membermodels.Attributes  `json:"additional_fields,omitempty"`
	Verification2ID     *int64                   `json:"verification_2_id,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

// IsActive reports whether the verification has not been deactivated.
func (v *Verification) IsActive() bool {
	return v != nil && v.DeactivatedAt == nil
}

// Verification2 is the v2 variant; it snapshots the linked v2 member row
// and its version at verification time.
type Verification2 struct {
	ID                  int64                   `json:"verification_id"`
	UserID              int64                   `json:"user_id"`
	OrganizationID      int64                   `json:"organization_id"`
	VerificationType    string                  `json:"verification_type"`
	MemberID            int64                   `json:"member_id"`
	MemberVersion       int64                   `json:"member_version"`
	Demographics        Demographics            `json:"demographics"`
	VerifiedAt          time.Time               `json:"verified_at"`
	DeactivatedAt       *time.Time              `json:"deactivated_at,omitempty"`
	VerificationSession *uuid.UUID              `json:"verification_session,omitempty"`
	AdditionalFields    membermodels.Attributes `json:"additional_fields,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

func (v *Verification2) IsActive() bool {
	return v != nil && v.DeactivatedAt == nil
}

// VerificationAttempt audits every create attempt, successful or not.
// SuccessfulVerification is derived: true iff a verification was attached.
type VerificationAttempt struct {
	ID                     int64                   `json:"id"`
	UserID                 *int64                  `json:"user_id,omitempty"`
	OrganizationID         int64                   `json:"organization_id"`
	VerificationType       string                  `json:"verification_type"`
	Demographics           Demographics            `json:"demographics"`
	SuccessfulVerification bool                    `json:"successful_verification"`
	PolicyUsed             membermodels.Attributes `json:"policy_used,omitempty"`
	VerificationID         *int64                  `json:"verification_id,omitempty"`
	VerifiedAt             time.Time               `json:"verified_at"`
	CreatedAt              time.Time               `json:"created_at"`
}

// MemberVerification links a member row to a verification and the attempt
// that produced it; each side is independently nullable.
type MemberVerification struct {
	ID                    int64     `json:"id"`
	MemberID              *int64    `json:"member_id,omitempty"`
	VerificationID        *int64    `json:"verification_id,omitempty"`
	VerificationAttemptID *int64    `json:"verification_attempt_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// VerificationKey is the compact pointer answering "which member rows back
// this user's preferred verification".
type VerificationKey struct {
	OrganizationID int64  `json:"organization_id"`
	MemberID       *int64 `json:"member_id,omitempty"`
	Member2ID      *int64 `json:"member_2_id,omitempty"`
	Member2Version *int64 `json:"member_2_version,omitempty"`
}

// ForUser is the joined retrieval view: verification, link row, and the
// linked member's effective range.
type ForUser struct {
	VerificationID      int64                   `json:"verification_id"`
	UserID              int64                   `json:"user_id"`
	OrganizationID      int64                   `json:"organization_id"`
	VerificationType    string                  `json:"verification_type"`
	Demographics        Demographics            `json:"demographics"`
	EligibilityMemberID *int64                  `json:"eligibility_member_id,omitempty"`
	Verification2ID     *int64                  `json:"verification_2_id,omitempty"`
	VerifiedAt          time.Time               `json:"verified_at"`
	DeactivatedAt       *time.Time              `json:"deactivated_at,omitempty"`
	VerificationSession *uuid.UUID              `json:"verification_session,omitempty"`
	AdditionalFields    membermodels.Attributes `json:"additional_fields,omitempty"`
	EffectiveRange      *membermodels.Range     `json:"effective_range,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
}

// IsRecordActive applies the retrieval activity rule: the linked member must
// carry an effective range whose upper bound is today or later. Records
// without a linked member are treated as active by convention.
func (f *ForUser) IsRecordActive(today time.Time) bool {
	if f.EligibilityMemberID == nil {
		return true
	}
	if f.EffectiveRange == nil {
		return false
	}
	return !f.EffectiveRange.UpperInPast(today)
}
