// Package match implements the named eligibility verification methods.
// Each method validates its inputs, queries the member stores through the
// dual-store router, applies organization policy, and returns a single
// authoritative MemberResponse (or a list, for over-eligibility).
package match

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"eligibility/internal/match/metrics"
	"eligibility/internal/member"
	"eligibility/internal/member/models"
	"eligibility/internal/member/store"
	"eligibility/internal/orgpolicy"
	dErrors "eligibility/pkg/domain-errors"
	"eligibility/pkg/platform/circuit"
	"eligibility/pkg/platform/sentinel"
)

var errVerifierCircuitOpen = errors.New("verifier circuit open")

// Engine composes member lookups with organization policy.
type Engine struct {
	router    *member.Router
	policy    *orgpolicy.Service
	verifiers *VerifierRegistry
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	// one breaker per client-specific implementation
	breakers sync.Map
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(router *member.Router, policy *orgpolicy.Service, verifiers *VerifierRegistry, opts ...Option) *Engine {
	e := &Engine{
		router:    router,
		policy:    policy,
		verifiers: verifiers,
		logger:    slog.Default(),
		tracer:    otel.Tracer("eligibility/match"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "matched"
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return "multiple"
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return "miss"
	default:
		return "error"
	}
}

// breakerFor returns the circuit breaker guarding one client-specific
// implementation, creating it on first use.
func (e *Engine) breakerFor(implementation string) *circuit.Breaker {
	if b, ok := e.breakers.Load(implementation); ok {
		return b.(*circuit.Breaker)
	}
	b, _ := e.breakers.LoadOrStore(implementation,
		circuit.New(implementation, circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)))
	return b.(*circuit.Breaker)
}

func (e *Engine) finish(method string, start time.Time, err error) {
	e.metrics.IncrementAttempt(method, outcomeOf(err))
	e.metrics.ObserveDuration(method, time.Since(start))
}

// syncMismatch logs a dual-store disagreement and hides it behind a generic
// match error; it is a migration bug, not something the caller can fix.
func (e *Engine) syncMismatch(ctx context.Context, method string, err error) error {
	e.logger.ErrorContext(ctx, "dual-store sync mismatch", "method", method, "error", err)
	e.metrics.IncrementSyncMismatch()
	return missError(method, "eligibility could not be verified")
}

// singleOrgFilter keeps candidates from active organizations, requires them
// to all share one organization, and picks the most recently created row.
func (e *Engine) singleOrgFilter(ctx context.Context, method string, candidates []*models.MemberRecord) (*models.MemberRecord, error) {
	var (
		winner *models.MemberRecord
		orgs   = make(map[int64]bool)
	)
	for _, c := range candidates {
		if !e.policy.IsActive(ctx, c.OrganizationID) {
			continue
		}
		orgs[c.OrganizationID] = true
		if winner == nil || c.CreatedAt.After(winner.CreatedAt) {
			winner = c
		}
	}
	switch {
	case len(orgs) == 0:
		return nil, missError(method, "no active records found")
	case len(orgs) > 1:
		return nil, multipleError(method)
	default:
		return winner, nil
	}
}

func spanAttrs(span trace.Span, resp *models.MemberResponse) {
	span.SetAttributes(
		attribute.Bool("is_v2", resp.IsV2),
		attribute.Int64("organization_id", resp.OrganizationID),
	)
}

// CheckStandardEligibility matches on date of birth and email.
func (e *Engine) CheckStandardEligibility(ctx context.Context, dateOfBirth, email string) (_ *models.MemberResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "CheckStandardEligibility")
	defer span.End()
	start := time.Now()
	defer func() { e.finish(MethodStandard, start, err) }()

	dob, perr := parseDate(dateOfBirth)
	if perr != nil {
		return nil, validationError(MethodStandard, "invalid date of birth",
			dErrors.FieldViolation{Field: "date_of_birth", Value: dateOfBirth})
	}
	if email == "" {
		return nil, validationError(MethodStandard, "email is required",
			dErrors.FieldViolation{Field: "email", Value: ""})
	}

	candidates, err := e.router.V1().GetByDOBAndEmail(ctx, dob, email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "standard eligibility lookup failed")
	}
	if len(candidates) == 0 {
		return nil, missError(MethodStandard, "no eligible member found")
	}

	winner, err := e.singleOrgFilter(ctx, MethodStandard, candidates)
	if err != nil {
		return nil, err
	}

	resp, err := e.router.PairForWrite(ctx, winner, func(ctx context.Context, s store.Store) ([]*models.MemberRecord, error) {
		return s.GetByDOBAndEmail(ctx, dob, email)
	})
	if err != nil {
		if errors.Is(err, member.ErrSyncMismatch) {
			return nil, e.syncMismatch(ctx, MethodStandard, err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "standard eligibility pairing failed")
	}
	spanAttrs(span, resp)
	return resp, nil
}

// AlternateParams are the alternate-method inputs; WorkState and
// UniqueCorpID are optional.
type AlternateParams struct {
	DateOfBirth  string
	FirstName    string
	LastName     string
	WorkState    string
	UniqueCorpID string
}

// CheckAlternateEligibility matches on demographics, preferring the
// tertiary (corp-id) route when a corp id is supplied.
func (e *Engine) CheckAlternateEligibility(ctx context.Context, p AlternateParams) (_ *models.MemberResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "CheckAlternateEligibility")
	defer span.End()
	start := time.Now()
	defer func() { e.finish(MethodAlternate, start, err) }()

	dob, perr := parseDate(p.DateOfBirth)
	if perr != nil {
		return nil, validationError(MethodAlternate, "invalid date of birth",
			dErrors.FieldViolation{Field: "date_of_birth", Value: p.DateOfBirth})
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, validationError(MethodAlternate, "first and last name are required",
			dErrors.FieldViolation{Field: "first_name", Value: p.FirstName},
			dErrors.FieldViolation{Field: "last_name", Value: p.LastName})
	}

	query := func(ctx context.Context, s store.Store) ([]*models.MemberRecord, error) {
		if p.UniqueCorpID != "" {
			return s.GetByTertiaryVerification(ctx, dob, p.UniqueCorpID)
		}
		return s.GetBySecondaryVerification(ctx, dob, p.FirstName, p.LastName, p.WorkState)
	}

	candidates, err := query(ctx, e.router.V1())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "alternate eligibility lookup failed")
	}
	if len(candidates) == 0 {
		return nil, missError(MethodAlternate, "no eligible member found")
	}

	winner, err := e.singleOrgFilter(ctx, MethodAlternate, candidates)
	if err != nil {
		return nil, err
	}

	resp, err := e.router.PairForWrite(ctx, winner, query)
	if err != nil {
		if errors.Is(err, member.ErrSyncMismatch) {
			return nil, e.syncMismatch(ctx, MethodAlternate, err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "alternate eligibility pairing failed")
	}
	spanAttrs(span, resp)
	return resp, nil
}

// ClientSpecificParams are the client-specific method inputs. Dependent
// date of birth is required when the caller is not the employee.
type ClientSpecificParams struct {
	IsEmployee           bool
	OrganizationID       int64
	UniqueCorpID         string
	DateOfBirth          string
	DependentDateOfBirth string
}

// CheckClientSpecificEligibility delegates the match to the organization's
// registered verifier and pairs the result across stores.
func (e *Engine) CheckClientSpecificEligibility(ctx context.Context, p ClientSpecificParams) (_ *models.MemberResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "CheckClientSpecificEligibility")
	defer span.End()
	start := time.Now()
	defer func() { e.finish(MethodClientSpecific, start, err) }()

	if p.UniqueCorpID == "" {
		return nil, validationError(MethodClientSpecific, "unique corp id is required",
			dErrors.FieldViolation{Field: "unique_corp_id", Value: ""})
	}
	dob, perr := parseDate(p.DateOfBirth)
	if perr != nil {
		return nil, validationError(MethodClientSpecific, "invalid date of birth",
			dErrors.FieldViolation{Field: "date_of_birth", Value: p.DateOfBirth})
	}
	var depDOB *time.Time
	if !p.IsEmployee {
		parsed, derr := parseDate(p.DependentDateOfBirth)
		if derr != nil {
			return nil, validationError(MethodClientSpecific, "dependent date of birth is required for non-employees",
				dErrors.FieldViolation{Field: "dependent_date_of_birth", Value: p.DependentDateOfBirth})
		}
		depDOB = &parsed
	}

	cfg, cerr := e.policy.Get(ctx, p.OrganizationID)
	if cerr != nil || cfg.Implementation == "" {
		return nil, configurationError(MethodClientSpecific, "organization has no client-specific implementation")
	}
	if !e.policy.IsActive(ctx, p.OrganizationID) {
		return nil, configurationError(MethodClientSpecific, "organization is not active")
	}

	verifier, ok := e.verifiers.Lookup(cfg.Implementation)
	if !ok {
		return nil, configurationError(MethodClientSpecific, "no verifier registered for implementation")
	}

	breaker := e.breakerFor(cfg.Implementation)
	if breaker.IsOpen() {
		return nil, upstreamError(MethodClientSpecific, errVerifierCircuitOpen)
	}

	rec, verr := verifier.Verify(ctx, VerifyParams{
		IsEmployee:           p.IsEmployee,
		OrganizationID:       p.OrganizationID,
		UniqueCorpID:         p.UniqueCorpID,
		Implementation:       cfg.Implementation,
		DateOfBirth:          dob,
		DependentDateOfBirth: depDOB,
	})
	if verr != nil {
		if _, change := breaker.RecordFailure(); change.Opened {
			e.logger.ErrorContext(ctx, "client-specific verifier circuit opened",
				slog.String("implementation", cfg.Implementation))
		}
		return nil, upstreamError(MethodClientSpecific, verr)
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		e.logger.InfoContext(ctx, "client-specific verifier circuit closed",
			slog.String("implementation", cfg.Implementation))
	}

	resp, err := e.router.PairForWrite(ctx, rec, func(ctx context.Context, s store.Store) ([]*models.MemberRecord, error) {
		m, err := s.GetByOrgIdentity(ctx, rec.Identity())
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []*models.MemberRecord{m}, nil
	})
	if err != nil {
		if errors.Is(err, member.ErrSyncMismatch) {
			return nil, e.syncMismatch(ctx, MethodClientSpecific, err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "client-specific pairing failed")
	}
	spanAttrs(span, resp)
	return resp, nil
}

// CheckNoDOBEligibility matches on email and name for the fixed set of
// organizations whose files omit dates of birth.
func (e *Engine) CheckNoDOBEligibility(ctx context.Context, email, firstName, lastName string) (_ *models.MemberResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "CheckNoDOBEligibility")
	defer span.End()
	start := time.Now()
	defer func() { e.finish(MethodNoDOB, start, err) }()

	if email == "" || firstName == "" || lastName == "" {
		return nil, validationError(MethodNoDOB, "email, first name and last name are required",
			dErrors.FieldViolation{Field: "email", Value: email},
			dErrors.FieldViolation{Field: "first_name", Value: firstName},
			dErrors.FieldViolation{Field: "last_name", Value: lastName})
	}

	candidates, err := e.router.V1().GetByEmailAndName(ctx, email, firstName, lastName)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "no-dob eligibility lookup failed")
	}

	noDOBOrgs := orgpolicy.OrganizationsNotSendingDOB()
	var eligible []*models.MemberRecord
	for _, c := range candidates {
		if _, ok := noDOBOrgs[c.OrganizationID]; ok {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		if len(candidates) > 0 {
			// Matches exist for orgs that do send DOB; those must go through
			// the standard or alternate path instead.
			e.logger.WarnContext(ctx, "no-dob match rejected, candidates exist for dob-sending orgs",
				"candidates", len(candidates))
		}
		return nil, missError(MethodNoDOB, "no eligible member found")
	}

	winner, err := e.singleOrgFilter(ctx, MethodNoDOB, eligible)
	if err != nil {
		return nil, err
	}

	resp, err := e.router.PairForWrite(ctx, winner, func(ctx context.Context, s store.Store) ([]*models.MemberRecord, error) {
		return s.GetByEmailAndName(ctx, email, firstName, lastName)
	})
	if err != nil {
		if errors.Is(err, member.ErrSyncMismatch) {
			return nil, e.syncMismatch(ctx, MethodNoDOB, err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "no-dob eligibility pairing failed")
	}
	spanAttrs(span, resp)
	return resp, nil
}

// CheckBasicEligibility returns all active-org records matching name and
// date of birth, verbatim; callers run their own follow-up checks.
func (e *Engine) CheckBasicEligibility(ctx context.Context, firstName, lastName, dateOfBirth string) (_ []*models.MemberResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "CheckBasicEligibility")
	defer span.End()
	start := time.Now()
	defer func() { e.finish(MethodBasic, start, err) }()

	dob, perr := parseDate(dateOfBirth)
	if perr != nil {
		return nil, validationError(MethodBasic, "invalid date of birth",
			dErrors.FieldViolation{Field: "date_of_birth", Value: dateOfBirth})
	}
	if firstName == "" || lastName == "" {
		return nil, validationError(MethodBasic, "first and last name are required",
			dErrors.FieldViolation{Field: "first_name", Value: firstName},
			dErrors.FieldViolation{Field: "last_name", Value: lastName})
	}

	candidates, err := e.router.V1().GetByNameAndDateOfBirth(ctx, firstName, lastName, dob)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "basic eligibility lookup failed")
	}

	var out []*models.MemberResponse
	for _, c := range candidates {
		if e.policy.IsActive(ctx, c.OrganizationID) {
			out = append(out, models.FromV1(c))
		}
	}
	if len(out) == 0 {
		return nil, missError(MethodBasic, "no eligible member found")
	}
	return out, nil
}

// CheckHealthPlanEligibility matches on subscriber id and date of birth for
// health plan organizations.
func (e *Engine) CheckHealthPlanEligibility(ctx context.Context, subscriberID, dateOfBirth string) (_ *models.MemberResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "CheckHealthPlanEligibility")
	defer span.End()
	start := time.Now()
	defer func() { e.finish(MethodHealthPlan, start, err) }()

	dob, perr := parseDate(dateOfBirth)
	if perr != nil {
		return nil, validationError(MethodHealthPlan, "invalid date of birth",
			dErrors.FieldViolation{Field: "date_of_birth", Value: dateOfBirth})
	}
	if subscriberID == "" {
		return nil, validationError(MethodHealthPlan, "subscriber id is required",
			dErrors.FieldViolation{Field: "subscriber_id", Value: ""})
	}

	candidates, err := e.router.V1().GetByTertiaryVerification(ctx, dob, subscriberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "health plan eligibility lookup failed")
	}

	var healthplan []*models.MemberRecord
	for _, c := range candidates {
		if typ, ok := e.policy.EligibilityType(ctx, c.OrganizationID); ok && typ == "HEALTHPLAN" {
			healthplan = append(healthplan, c)
		}
	}
	if len(healthplan) == 0 {
		return nil, missError(MethodHealthPlan, "no eligible member found")
	}

	winner, err := e.singleOrgFilter(ctx, MethodHealthPlan, healthplan)
	if err != nil {
		return nil, err
	}

	resp, err := e.router.PairForWrite(ctx, winner, func(ctx context.Context, s store.Store) ([]*models.MemberRecord, error) {
		return s.GetByTertiaryVerification(ctx, dob, subscriberID)
	})
	if err != nil {
		if errors.Is(err, member.ErrSyncMismatch) {
			return nil, e.syncMismatch(ctx, MethodHealthPlan, err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "health plan eligibility pairing failed")
	}
	spanAttrs(span, resp)
	return resp, nil
}

// GetByMemberID returns the member verbatim, v2-paired when migrated.
func (e *Engine) GetByMemberID(ctx context.Context, id int64) (*models.MemberResponse, error) {
	resp, err := e.router.GetByMemberID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, missError(MethodMemberID, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "member lookup failed")
	}
	return resp, nil
}

// GetByOrgIdentity resolves the identity tuple; the organization must be
// active.
func (e *Engine) GetByOrgIdentity(ctx context.Context, identity models.OrgIdentity) (*models.MemberResponse, error) {
	if identity.UniqueCorpID == "" {
		return nil, validationError(MethodOrgIdentity, "unique corp id is required",
			dErrors.FieldViolation{Field: "unique_corp_id", Value: ""})
	}
	if !e.policy.IsActive(ctx, identity.OrganizationID) {
		return nil, missError(MethodOrgIdentity, "organization is not active")
	}
	resp, err := e.router.GetByOrgIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, missError(MethodOrgIdentity, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "member lookup failed")
	}
	return resp, nil
}

// GetWalletEnablement derives the wallet view for a member id.
func (e *Engine) GetWalletEnablement(ctx context.Context, memberID int64) (*models.WalletEnablement, error) {
	w, err := e.router.GetWalletEnablement(ctx, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, missError(MethodWallet, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "wallet lookup failed")
	}
	return w, nil
}

// GetWalletEnablementByOrgIdentity derives the wallet view for an identity
// tuple; the organization must be active.
func (e *Engine) GetWalletEnablementByOrgIdentity(ctx context.Context, identity models.OrgIdentity) (*models.WalletEnablement, error) {
	if !e.policy.IsActive(ctx, identity.OrganizationID) {
		return nil, missError(MethodWallet, "organization is not active")
	}
	w, err := e.router.GetWalletEnablementByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, missError(MethodWallet, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "wallet lookup failed")
	}
	return w, nil
}

// GetOtherUserIDsInFamily lists other users verified against the same
// family (organization + corp id).
func (e *Engine) GetOtherUserIDsInFamily(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := e.router.GetOtherUserIDsInFamily(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "family lookup failed")
	}
	return ids, nil
}
