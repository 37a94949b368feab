package match

import (
	"context"
	"time"

	"eligibility/internal/member/models"
	dErrors "eligibility/pkg/domain-errors"
)

// OvereligibilityParams are the over-eligibility inputs. Email, WorkState
// and UniqueCorpID are optional refinements.
type OvereligibilityParams struct {
	DateOfBirth  string
	FirstName    string
	LastName     string
	UserID       int64
	Email        string
	WorkState    string
	UniqueCorpID string
}

// CheckOvereligibility resolves every organization the user is eligible
// through. Unlike the single-org methods it returns one response per
// surviving organization.
func (e *Engine) CheckOvereligibility(ctx context.Context, p OvereligibilityParams) (_ []*models.MemberResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "CheckOvereligibility")
	defer span.End()
	start := time.Now()
	defer func() { e.finish(MethodOvereligibility, start, err) }()

	dob, perr := parseDate(p.DateOfBirth)
	if perr != nil {
		return nil, validationError(MethodOvereligibility, "invalid date of birth",
			dErrors.FieldViolation{Field: "date_of_birth", Value: p.DateOfBirth})
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, validationError(MethodOvereligibility, "first and last name are required",
			dErrors.FieldViolation{Field: "first_name", Value: p.FirstName},
			dErrors.FieldViolation{Field: "last_name", Value: p.LastName})
	}

	candidates, err := e.router.V1().GetByOvereligibility(ctx, dob, p.FirstName, p.LastName)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "overeligibility lookup failed")
	}
	if len(candidates) == 0 {
		return nil, missError(MethodOvereligibility, "no eligible member found")
	}

	if !e.policy.IsOvereligibilityEnabled(ctx) {
		return nil, missError(MethodOvereligibility, "overeligibility is not enabled")
	}
	if !e.policy.AreAllOrgsOvereligibilityEnabled(ctx, distinctOrgs(candidates)) {
		return nil, missError(MethodOvereligibility, "overeligibility is not enabled for all matched organizations")
	}

	survivors := e.overeligibilityFilters(ctx, candidates, p.Email, p.UniqueCorpID)
	if len(survivors) == 0 {
		return nil, missError(MethodOvereligibility, "no eligible member found")
	}

	var v2Needed bool
	for _, rec := range survivors {
		if e.policy.IsWriteV2Enabled(ctx, rec.OrganizationID) {
			v2Needed = true
			break
		}
	}

	v2ByOrg := make(map[int64]*models.MemberRecord)
	if v2Needed {
		v2Recs, verr := e.v2Overeligibility(ctx, dob, p)
		if verr != nil {
			return nil, dErrors.Wrap(verr, dErrors.CodeInternal, "overeligibility v2 lookup failed")
		}
		for _, rec := range v2Recs {
			v2ByOrg[rec.OrganizationID] = rec
		}
	}

	out := make([]*models.MemberResponse, 0, len(survivors))
	for _, rec := range survivors {
		if !e.policy.IsWriteV2Enabled(ctx, rec.OrganizationID) {
			out = append(out, models.FromV1(rec))
			continue
		}
		v2Rec, ok := v2ByOrg[rec.OrganizationID]
		if !ok {
			// Cannot hand out a dual-write candidate with only half the
			// state present.
			e.metrics.IncrementSyncMismatch()
			e.logger.ErrorContext(ctx, "overeligibility: v2 counterpart missing",
				"organization_id", rec.OrganizationID, "member_id", rec.ID)
			return nil, missError(MethodOvereligibility, "eligibility could not be verified")
		}
		out = append(out, models.FromPair(rec, v2Rec))
	}
	return out, nil
}

// overeligibilityFilters applies the email, health-plan and active-org
// filters, ending with the per-organization most-recently-updated pick.
func (e *Engine) overeligibilityFilters(ctx context.Context, candidates []*models.MemberRecord, email, uniqueCorpID string) []*models.MemberRecord {
	records := filterByEmail(candidates, email)
	records = e.filterHealthPlanCorpID(ctx, records, uniqueCorpID)

	// per active org, keep the most recently updated row
	byOrg := make(map[int64]*models.MemberRecord)
	for _, rec := range records {
		if !e.policy.IsActive(ctx, rec.OrganizationID) {
			continue
		}
		if cur, ok := byOrg[rec.OrganizationID]; !ok || rec.UpdatedAt.After(cur.UpdatedAt) {
			byOrg[rec.OrganizationID] = rec
		}
	}
	out := make([]*models.MemberRecord, 0, len(byOrg))
	for _, rec := range byOrg {
		out = append(out, rec)
	}
	return out
}

// filterByEmail drops records carrying a different non-empty email. Records
// with no email on file are kept; the file may simply omit it.
func filterByEmail(records []*models.MemberRecord, email string) []*models.MemberRecord {
	if email == "" {
		return records
	}
	want := models.NormalizeText(email)
	var out []*models.MemberRecord
	for _, rec := range records {
		if rec.Email == "" || models.NormalizeText(rec.Email) == want {
			out = append(out, rec)
		}
	}
	return out
}

// filterHealthPlanCorpID removes non-matching health-plan records, but only
// when at least one health-plan record does match the supplied corp id.
// Matching is best-effort refinement, never elimination of all results.
func (e *Engine) filterHealthPlanCorpID(ctx context.Context, records []*models.MemberRecord, uniqueCorpID string) []*models.MemberRecord {
	if uniqueCorpID == "" {
		return records
	}
	want := models.NormalizeCorpID(uniqueCorpID)

	var anyMatch bool
	isHealthPlan := make(map[int64]bool)
	for _, rec := range records {
		typ, ok := e.policy.EligibilityType(ctx, rec.OrganizationID)
		if !ok || typ != "HEALTHPLAN" {
			continue
		}
		isHealthPlan[rec.ID] = true
		if models.NormalizeCorpID(rec.UniqueCorpID) == want {
			anyMatch = true
		}
	}
	if !anyMatch {
		return records
	}

	var out []*models.MemberRecord
	for _, rec := range records {
		if isHealthPlan[rec.ID] && models.NormalizeCorpID(rec.UniqueCorpID) != want {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// v2Overeligibility runs the same candidate query and filters against the
// v2 store.
func (e *Engine) v2Overeligibility(ctx context.Context, dob time.Time, p OvereligibilityParams) ([]*models.MemberRecord, error) {
	v2 := e.router.V2()
	if v2 == nil {
		return nil, nil
	}
	candidates, err := v2.GetByOvereligibility(ctx, dob, p.FirstName, p.LastName)
	if err != nil {
		return nil, err
	}
	return e.overeligibilityFilters(ctx, candidates, p.Email, p.UniqueCorpID), nil
}

func distinctOrgs(records []*models.MemberRecord) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, rec := range records {
		if !seen[rec.OrganizationID] {
			seen[rec.OrganizationID] = true
			out = append(out, rec.OrganizationID)
		}
	}
	return out
}
