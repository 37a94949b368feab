// Package httptransport exposes the eligibility services over JSON HTTP.
// Handlers decode and validate wire shapes, delegate to the domain services,
// and translate coded errors onto statuses through httputil. No business
// rules live here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eligibility/internal/admin"
	"eligibility/internal/match"
	platformmetrics "eligibility/internal/platform/metrics"
	"eligibility/internal/platform/middleware"
	"eligibility/internal/platform/ratelimit"
	"eligibility/internal/population"
	"eligibility/internal/pre"
	"eligibility/internal/verification"
	"eligibility/pkg/platform/httputil"
)

// Handler carries the domain services the HTTP surface delegates to.
type Handler struct {
	match        *match.Engine
	verification *verification.Service
	pre          *pre.Service
	admin        *admin.Service
	population   population.Resolver
	httpMetrics  *platformmetrics.Metrics
	logger       *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithHTTPMetrics wires request counters and latency histograms around every
// API route. Without it routes serve uninstrumented.
func WithHTTPMetrics(m *platformmetrics.Metrics) Option {
	return func(h *Handler) { h.httpMetrics = m }
}

func NewHandler(
	matchEngine *match.Engine,
	verificationSvc *verification.Service,
	preSvc *pre.Service,
	adminSvc *admin.Service,
	populationResolver population.Resolver,
	opts ...Option,
) *Handler {
	h := &Handler{
		match:        matchEngine,
		verification: verificationSvc,
		pre:          preSvc,
		admin:        adminSvc,
		population:   populationResolver,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health aggregates readiness checks over the process dependencies. Liveness
// and startup probes always succeed once the router is serving.
type Health struct {
	Checks map[string]func(context.Context) error
}

// RouterConfig carries the transport-level guards the router installs around
// the handler routes.
type RouterConfig struct {
	Validator  middleware.JWTValidator
	AdminToken string
	RateLimit  *ratelimit.Middleware
	Health     *Health
}

// NewRouter assembles the full HTTP surface: the authenticated API routes,
// the admin-token test utilities, and the unauthenticated operational
// endpoints.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMetadata)

	r.Get("/livez", h.handleAlive)
	r.Get("/startupz", h.handleAlive)
	r.Get("/readyz", h.handleReady(cfg.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/-/eligibility-api", func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.Validator, h.logger))
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.Handler)
		}

		h.get(r, "/get_member_by_id/{id}", "get_member_by_id", h.handleGetMemberByID)
		h.post(r, "/check_standard_eligibility", "check_standard_eligibility", h.handleCheckStandard)
		h.post(r, "/check_alternate_eligibility", "check_alternate_eligibility", h.handleCheckAlternate)
		h.post(r, "/check_client_specific_eligibility", "check_client_specific_eligibility", h.handleCheckClientSpecific)
		h.post(r, "/check_no_dob_eligibility", "check_no_dob_eligibility", h.handleCheckNoDOB)
		h.post(r, "/check_basic_eligibility", "check_basic_eligibility", h.handleCheckBasic)
		h.post(r, "/check_healthplan_eligibility", "check_healthplan_eligibility", h.handleCheckHealthPlan)
		h.post(r, "/check_overeligibility", "check_overeligibility", h.handleCheckOvereligibility)

		h.post(r, "/get_verification_for_user", "get_verification_for_user", h.handleGetVerificationForUser)
		h.post(r, "/get_all_verifications_for_user", "get_all_verifications_for_user", h.handleGetAllVerificationsForUser)
		h.post(r, "/create_verification_for_user", "create_verification_for_user", h.handleCreateVerificationForUser)
		h.post(r, "/create_multiple_verifications_for_user", "create_multiple_verifications_for_user", h.handleCreateMultipleVerificationsForUser)
		h.post(r, "/create_failed_verification", "create_failed_verification", h.handleCreateFailedVerification)
		h.post(r, "/deactivate_verification_for_user", "deactivate_verification_for_user", h.handleDeactivateVerificationForUser)
		h.post(r, "/get_members_by_name_and_date_of_birth", "get_members_by_name_and_date_of_birth", h.handleGetMembersByNameAndDOB)

		h.get(r, "/get_wallet_enablement/member/{member_id}", "get_wallet_enablement", h.handleGetWalletEnablement)
		h.get(r, "/get_wallet_enablement_for_user", "get_wallet_enablement_for_user", h.handleGetWalletEnablementForUser)
		h.get(r, "/get_other_user_ids_in_family/user/{user_id}", "get_other_user_ids_in_family", h.handleGetOtherUserIDsInFamily)
		h.get(r, "/get_verification_attempts/member/{member_id}", "get_verification_attempts", h.handleGetVerificationAttempts)

		h.get(r, "/get_sub_population_id/user/{user_id}/organization/{org_id}", "get_sub_population_id", h.handleGetSubPopulationID)
		h.get(r, "/get_eligible_features/sub_population_id/{id}/feature_type/{t}", "get_eligible_features", h.handleGetEligibleFeatures)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken))
		h.post(r, "/test-members/{organization_id}", "admin_create_test_members", h.handleCreateTestMembers)
	})

	return r
}

func (h *Handler) get(r chi.Router, pattern, route string, fn http.HandlerFunc) {
	r.Method(http.MethodGet, pattern, h.instrument(route, fn))
}

func (h *Handler) post(r chi.Router, pattern, route string, fn http.HandlerFunc) {
	r.Method(http.MethodPost, pattern, h.instrument(route, fn))
}

func (h *Handler) instrument(route string, fn http.HandlerFunc) http.Handler {
	if h.httpMetrics == nil {
		return fn
	}
	return h.httpMetrics.Middleware(route, fn)
}

func (h *Handler) handleAlive(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(health *Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := map[string]string{}
		if health != nil {
			for name, check := range health.Checks {
				if err := check(r.Context()); err != nil {
					failures[name] = err.Error()
				}
			}
		}
		if len(failures) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "unavailable",
				"failures": failures,
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
