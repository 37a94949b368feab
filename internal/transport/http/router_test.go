package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eligibility/internal/admin"
	"eligibility/internal/match"
	"eligibility/internal/member"
	membermodels "eligibility/internal/member/models"
	memberstore "eligibility/internal/member/store"
	"eligibility/internal/orgpolicy"
	opmodels "eligibility/internal/orgpolicy/models"
	opstore "eligibility/internal/orgpolicy/store"
	"eligibility/internal/platform/middleware"
	"eligibility/internal/population"
	"eligibility/internal/pre"
	"eligibility/internal/verification"
	verificationstore "eligibility/internal/verification/store"
)

const testAdminToken = "test-admin-token"

// staticValidator accepts any token of the form "user:<id>".
type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	var userID int64
	if _, err := fmt.Sscanf(token, "user:%d", &userID); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &middleware.JWTClaims{UserID: userID}, nil
}

type routerFixture struct {
	router  http.Handler
	v1      *memberstore.MemoryStore
	v2      *memberstore.MemoryStore
	configs *opstore.MemoryStore
	flags   *orgpolicy.StaticFlagProvider
	svc     *verification.Service
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		v1:      memberstore.NewMemory(membermodels.SourceV1),
		v2:      memberstore.NewMemory(membermodels.SourceV2),
		configs: opstore.NewMemory(),
		flags:   orgpolicy.NewStaticFlagProvider(),
	}
	policy := orgpolicy.NewService(f.configs, f.flags)
	router := member.NewRouter(f.v1, f.v2, policy)
	engine := match.NewEngine(router, policy, match.NewVerifierRegistry())
	f.svc = verification.NewService(verificationstore.NewMemoryStore(f.v1), router, policy)
	preSvc := pre.NewService(f.v1)
	adminSvc := admin.NewService(f.v1, policy, true)
	resolver := &population.Static{
		SubPopulations: map[[2]int64]int64{{1, 10}: 77},
		Features:       map[int64]map[string][]string{77: {"wallet": {"wallet_qualified"}}},
	}

	h := NewHandler(engine, f.svc, preSvc, adminSvc, resolver)
	f.router = NewRouter(h, RouterConfig{
		Validator:  staticValidator{},
		AdminToken: testAdminToken,
	})
	return f
}

func (f *routerFixture) activeOrg(orgID int64) {
	activated := time.Now().Add(-24 * time.Hour)
	f.configs.Put(&opmodels.Configuration{
		OrganizationID:  orgID,
		EligibilityType: opmodels.TypeStandard,
		ActivatedAt:     &activated,
	})
}

func (f *routerFixture) addMember(orgID int64, corpID string) *membermodels.MemberRecord {
	return f.v1.Add(&membermodels.MemberRecord{
		OrganizationID: orgID,
		UniqueCorpID:   corpID,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@ex.com",
		DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	})
}

func (f *routerFixture) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer user:1")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestRouterAuth(t *testing.T) {
	f := newRouterFixture(t)

	t.Run("rejects requests without a bearer token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/-/eligibility-api/get_member_by_id/1", nil,
			func(r *http.Request) { r.Header.Del("Authorization") })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects an unparseable token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/-/eligibility-api/get_member_by_id/1", nil,
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health probes are open", func(t *testing.T) {
		for _, path := range []string{"/livez", "/readyz", "/startupz"} {
			rec := f.do(t, http.MethodGet, path, nil,
				func(r *http.Request) { r.Header.Del("Authorization") })
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	})
}

func TestGetMemberByID(t *testing.T) {
	f := newRouterFixture(t)
	f.activeOrg(10)
	rec := f.addMember(10, "C100")

	t.Run("returns the member", func(t *testing.T) {
		res := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/-/eligibility-api/get_member_by_id/%d", rec.ID), nil)
		require.Equal(t, http.StatusOK, res.Code)
		body := decodeBody[membermodels.MemberResponse](t, res)
		assert.Equal(t, rec.ID, body.ID)
		assert.Equal(t, int64(10), body.OrganizationID)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		res := f.do(t, http.MethodGet, "/api/v1/-/eligibility-api/get_member_by_id/999", nil)
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("non-numeric id is 400", func(t *testing.T) {
		res := f.do(t, http.MethodGet, "/api/v1/-/eligibility-api/get_member_by_id/abc", nil)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
}

func TestCheckStandardEligibilityRoute(t *testing.T) {
	f := newRouterFixture(t)
	f.activeOrg(10)
	f.addMember(10, "C100")

	t.Run("matches on dob and email", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/check_standard_eligibility", map[string]string{
			"date_of_birth": "1990-01-01",
			"email":         "ada@ex.com",
		})
		require.Equal(t, http.StatusOK, res.Code)
		body := decodeBody[membermodels.MemberResponse](t, res)
		assert.Equal(t, "ada@ex.com", body.Email)
	})

	t.Run("no match is 404 with the method tag", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/check_standard_eligibility", map[string]string{
			"date_of_birth": "1990-01-01",
			"email":         "nobody@ex.com",
		})
		require.Equal(t, http.StatusNotFound, res.Code)
		body := decodeBody[map[string]any](t, res)
		assert.Equal(t, "not_found", body["error"])
		assert.Equal(t, "standard", body["method"])
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/-/eligibility-api/check_standard_eligibility",
			bytes.NewBufferString("{"))
		req.Header.Set("Authorization", "Bearer user:1")
		recorder := httptest.NewRecorder()
		f.router.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestVerificationRoutes(t *testing.T) {
	f := newRouterFixture(t)
	f.activeOrg(10)
	rec := f.addMember(10, "C100")

	createBody := map[string]any{
		"organization_id":       10,
		"verification_type":     "standard",
		"eligibility_member_id": rec.ID,
		"first_name":            "Ada",
		"last_name":             "Lovelace",
		"email":                 "ada@ex.com",
		"date_of_birth":         "1990-01-01",
	}

	t.Run("create, read back, deactivate", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/create_verification_for_user", createBody)
		require.Equal(t, http.StatusCreated, res.Code)
		created := decodeBody[map[string]any](t, res)
		assert.Equal(t, "STANDARD", created["verification_type"])
		verificationID := int64(created["verification_id"].(float64))

		res = f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/get_verification_for_user", map[string]any{})
		require.Equal(t, http.StatusOK, res.Code)

		res = f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/deactivate_verification_for_user", map[string]any{
			"verification_id": verificationID,
		})
		require.Equal(t, http.StatusOK, res.Code)

		res = f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/get_all_verifications_for_user", map[string]any{
			"active_verifications_only": true,
		})
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("a second claim on an employee-only org is 409", func(t *testing.T) {
		f := newRouterFixture(t)
		activated := time.Now().Add(-24 * time.Hour)
		f.configs.Put(&opmodels.Configuration{
			OrganizationID:  20,
			EligibilityType: opmodels.TypeStandard,
			ActivatedAt:     &activated,
			EmployeeOnly:    true,
		})
		other := f.addMember(20, "C200")
		body := map[string]any{
			"organization_id":       20,
			"verification_type":     "standard",
			"eligibility_member_id": other.ID,
			"date_of_birth":         "1990-01-01",
		}
		res := f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/create_verification_for_user", body)
		require.Equal(t, http.StatusCreated, res.Code)

		res = f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/create_verification_for_user", body,
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer user:2") })
		require.Equal(t, http.StatusConflict, res.Code)
		conflict := decodeBody[map[string]any](t, res)
		assert.Equal(t, "already_exists", conflict["error"])
	})

	t.Run("deactivate without a verification id is 400", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/deactivate_verification_for_user", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})

	t.Run("failed verification is recorded", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/api/v1/-/eligibility-api/create_failed_verification", map[string]any{
			"organization_id":   10,
			"verification_type": "standard",
			"first_name":        "Ada",
			"policy_used":       map[string]any{"rule": "standard"},
		})
		assert.Equal(t, http.StatusCreated, res.Code)
	})
}

func TestPopulationRoutes(t *testing.T) {
	f := newRouterFixture(t)

	t.Run("resolves the sub-population", func(t *testing.T) {
		res := f.do(t, http.MethodGet, "/api/v1/-/eligibility-api/get_sub_population_id/user/1/organization/10", nil)
		require.Equal(t, http.StatusOK, res.Code)
		body := decodeBody[map[string]int64](t, res)
		assert.Equal(t, int64(77), body["sub_population_id"])
	})

	t.Run("unknown pair is 404", func(t *testing.T) {
		res := f.do(t, http.MethodGet, "/api/v1/-/eligibility-api/get_sub_population_id/user/2/organization/10", nil)
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("lists eligible features", func(t *testing.T) {
		res := f.do(t, http.MethodGet, "/api/v1/-/eligibility-api/get_eligible_features/sub_population_id/77/feature_type/wallet", nil)
		require.Equal(t, http.StatusOK, res.Code)
		body := decodeBody[map[string][]string](t, res)
		assert.Equal(t, []string{"wallet_qualified"}, body["features"])
	})
}

func TestAdminTestMembersRoute(t *testing.T) {
	f := newRouterFixture(t)
	f.activeOrg(10)

	t.Run("requires the admin token", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/admin/test-members/10", map[string]any{"count": 2})
		assert.Equal(t, http.StatusForbidden, res.Code)
	})

	t.Run("creates the requested rows", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/admin/test-members/10", map[string]any{"count": 2},
			func(r *http.Request) { r.Header.Set("X-Admin-Token", testAdminToken) })
		require.Equal(t, http.StatusCreated, res.Code)
		body := decodeBody[[]membermodels.MemberRecord](t, res)
		assert.Len(t, body, 2)
	})
}

func TestReadyzChecks(t *testing.T) {
	f := newRouterFixture(t)
	h := NewHandler(nil, f.svc, nil, nil, population.Unconfigured{})
	router := NewRouter(h, RouterConfig{
		Validator:  staticValidator{},
		AdminToken: testAdminToken,
		Health: &Health{Checks: map[string]func(context.Context) error{
			"postgres": func(context.Context) error { return fmt.Errorf("connection refused") },
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
