package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eligibility/internal/member"
	membermodels "eligibility/internal/member/models"
	memberstore "eligibility/internal/member/store"
	"eligibility/internal/orgpolicy"
	opmodels "eligibility/internal/orgpolicy/models"
	opstore "eligibility/internal/orgpolicy/store"
	"eligibility/internal/verification/models"
	"eligibility/internal/verification/store"
	dErrors "eligibility/pkg/domain-errors"
)

type fixture struct {
	svc     *Service
	store   *store.MemoryStore
	v1      *memberstore.MemoryStore
	v2      *memberstore.MemoryStore
	configs *opstore.MemoryStore
	flags   *orgpolicy.StaticFlagProvider
}

func newFixture() *fixture {
	f := &fixture{
		v1:      memberstore.NewMemory(membermodels.SourceV1),
		v2:      memberstore.NewMemory(membermodels.SourceV2),
		configs: opstore.NewMemory(),
		flags:   orgpolicy.NewStaticFlagProvider(),
	}
	policy := orgpolicy.NewService(f.configs, f.flags)
	router := member.NewRouter(f.v1, f.v2, policy)
	f.store = store.NewMemoryStore(f.v1)
	f.svc = NewService(f.store, router, policy)
	return f
}

func (f *fixture) activeOrg(orgID int64, mutate ...func(*opmodels.Configuration)) {
	activated := time.Now().Add(-24 * time.Hour)
	cfg := &opmodels.Configuration{
		OrganizationID:  orgID,
		EligibilityType: opmodels.TypeStandard,
		ActivatedAt:     &activated,
	}
	for _, m := range mutate {
		m(cfg)
	}
	f.configs.Put(cfg)
}

func (f *fixture) addMember(orgID int64, corpID string) *membermodels.MemberRecord {
	return f.v1.Add(&membermodels.MemberRecord{
		OrganizationID: orgID,
		UniqueCorpID:   corpID,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@ex.com",
		DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	})
}

func createParams(userID int64, rec *membermodels.MemberRecord) CreateParams {
	return CreateParams{
		UserID:              userID,
		OrganizationID:      rec.OrganizationID,
		VerificationType:    "standard",
		EligibilityMemberID: &rec.ID,
		FirstName:           rec.FirstName,
		LastName:            rec.LastName,
		Email:               rec.Email,
		DateOfBirth:         "1990-01-01",
	}
}

func TestCreateVerificationForUserV1(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the triple and hydrates the record", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")

		got, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.UserID)
		assert.Equal(t, "STANDARD", got.VerificationType)
		assert.Equal(t, rec.ID, *got.EligibilityMemberID)
		assert.Equal(t, "Ada", got.Demographics.FirstName)

		successful, failed, err := f.svc.GetVerificationAttemptsForMember(ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, successful, 1)
		assert.Empty(t, failed)
	})

	t.Run("write kill-switch rejects the create", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		f.flags.SetBool(orgpolicy.FlagDisableWrite, true)

		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("unknown verification type is a validation error", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		p := createParams(1, rec)
		p.VerificationType = "TELEPATHY"

		_, err := f.svc.CreateVerificationForUser(ctx, p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("malformed session uuid is a validation error", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		p := createParams(1, rec)
		p.VerificationSession = "not-a-uuid"

		_, err := f.svc.CreateVerificationForUser(ctx, p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("employee-only org rejects a second claim", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10, func(c *opmodels.Configuration) { c.EmployeeOnly = true })
		rec := f.addMember(10, "C100")

		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		_, err = f.svc.CreateVerificationForUser(ctx, createParams(2, rec))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("dependents may reclaim when the org allows it", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")

		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)
		_, err = f.svc.CreateVerificationForUser(ctx, createParams(2, rec))
		require.NoError(t, err)
	})

	t.Run("medical-plan-only org needs beneficiaries enabled", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10, func(c *opmodels.Configuration) { c.MedicalPlanOnly = true })
		rec := f.addMember(10, "C100")

		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		_, err = f.svc.CreateVerificationForUser(ctx, createParams(2, rec))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("medical-plan-only honors a beneficiaries-enabled record", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10, func(c *opmodels.Configuration) { c.MedicalPlanOnly = true })
		rec := f.v1.Add(&membermodels.MemberRecord{
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			Record:         membermodels.Attributes{"beneficiaries_enabled": true},
		})

		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)
		_, err = f.svc.CreateVerificationForUser(ctx, createParams(2, rec))
		require.NoError(t, err)
	})
}

func TestCreateVerificationForUserV2(t *testing.T) {
	ctx := context.Background()

	pairedFixture := func(t *testing.T) (*fixture, *membermodels.MemberRecord) {
		t.Helper()
		f := newFixture()
		f.activeOrg(10)
		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		rec := f.addMember(10, "C100")
		version := int64(3)
		f.v2.Add(&membermodels.MemberRecord{
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			FirstName:      "Ada",
			LastName:       "Lovelace",
			Email:          "ada@ex.com",
			DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Version:        &version,
		})
		return f, rec
	}

	t.Run("dual-writes both verification rows", func(t *testing.T) {
		f, rec := pairedFixture(t)

		got, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)
		require.NotNil(t, got.Verification2ID)

		key, err := f.svc.GetVerificationKeyForUser(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, key.Member2ID)
		assert.Equal(t, int64(3), *key.Member2Version)

		v2, err := f.store.GetVerification2ForMember(ctx, *key.Member2ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v2.UserID)
	})

	t.Run("member without a v2 counterpart cannot be dual-written", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		rec := f.addMember(10, "C100")

		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("employee-only org rejects a second dual-written claim", func(t *testing.T) {
		f, rec := pairedFixture(t)
		f.activeOrg(10, func(c *opmodels.Configuration) { c.EmployeeOnly = true })

		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		_, err = f.svc.CreateVerificationForUser(ctx, createParams(2, rec))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("missing eligibility member is rejected on the v2 path", func(t *testing.T) {
		f, rec := pairedFixture(t)
		p := createParams(1, rec)
		p.EligibilityMemberID = nil

		_, err := f.svc.CreateVerificationForUser(ctx, p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// txGuardStore records create calls that run outside a store transaction
// and can fail the attempt insert.
type txGuardStore struct {
	*store.MemoryStore
	mu          sync.Mutex
	depth       int
	txCalls     int
	failAttempt bool
	outsideTx   []string
}

func (g *txGuardStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	g.depth++
	g.txCalls++
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.depth--
		g.mu.Unlock()
	}()
	return g.MemoryStore.WithTx(ctx, fn)
}

func (g *txGuardStore) note(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth == 0 {
		g.outsideTx = append(g.outsideTx, op)
	}
}

func (g *txGuardStore) CreateVerification(ctx context.Context, p store.CreateVerificationParams) (*models.Verification, error) {
	g.note("verification")
	return g.MemoryStore.CreateVerification(ctx, p)
}

func (g *txGuardStore) CreateVerificationDualWrite(ctx context.Context, p store.DualWriteParams) (*models.Verification, error) {
	g.note("dual_write")
	return g.MemoryStore.CreateVerificationDualWrite(ctx, p)
}

func (g *txGuardStore) CreateVerificationAttempt(ctx context.Context, p store.CreateAttemptParams) (*models.VerificationAttempt, error) {
	g.note("attempt")
	if g.failAttempt {
		return nil, errors.New("attempt insert failed")
	}
	return g.MemoryStore.CreateVerificationAttempt(ctx, p)
}

func (g *txGuardStore) CreateMemberVerification(ctx context.Context, memberID, verificationID, attemptID *int64) (*models.MemberVerification, error) {
	g.note("member_link")
	return g.MemoryStore.CreateMemberVerification(ctx, memberID, verificationID, attemptID)
}

func TestCreateVerificationTransactionScope(t *testing.T) {
	ctx := context.Background()

	guarded := func(f *fixture, failAttempt bool) (*Service, *txGuardStore) {
		guard := &txGuardStore{MemoryStore: f.store, failAttempt: failAttempt}
		policy := orgpolicy.NewService(f.configs, f.flags)
		router := member.NewRouter(f.v1, f.v2, policy)
		return NewService(guard, router, policy), guard
	}

	t.Run("v1 triple shares one transaction", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		svc, guard := guarded(f, false)

		_, err := svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)
		assert.Equal(t, 1, guard.txCalls)
		assert.Empty(t, guard.outsideTx)
	})

	t.Run("dual-written triple shares one transaction", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		rec := f.addMember(10, "C100")
		version := int64(1)
		f.v2.Add(&membermodels.MemberRecord{
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			Version:        &version,
		})
		svc, guard := guarded(f, false)

		_, err := svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, guard.txCalls, 1)
		assert.Empty(t, guard.outsideTx)
	})

	t.Run("failed attempt insert fails the create inside the transaction", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		rec := f.addMember(10, "C100")
		version := int64(1)
		f.v2.Add(&membermodels.MemberRecord{
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			Version:        &version,
		})
		svc, guard := guarded(f, true)

		_, err := svc.CreateVerificationForUser(ctx, createParams(1, rec))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.Empty(t, guard.outsideTx)
	})
}

func TestVerifyEligibilityRecordUsable(t *testing.T) {
	ctx := context.Background()

	t.Run("unclaimed record is usable", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")

		usable, err := f.svc.VerifyEligibilityRecordUsable(ctx, rec.ID, 10)
		require.NoError(t, err)
		assert.True(t, usable)
	})

	t.Run("answers are stable without intervening writes", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10, func(c *opmodels.Configuration) { c.EmployeeOnly = true })
		rec := f.addMember(10, "C100")
		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		first, err := f.svc.VerifyEligibilityRecordUsable(ctx, rec.ID, 10)
		require.NoError(t, err)
		second, err := f.svc.VerifyEligibilityRecordUsable(ctx, rec.ID, 10)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.False(t, first)
	})
}

func TestCreateMultipleVerificationsForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("creates one triple per usable record", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		f.activeOrg(20)
		recA := f.addMember(10, "C100")
		recB := f.addMember(20, "C200")

		got, err := f.svc.CreateMultipleVerificationsForUser(ctx, 1, []CreateParams{
			createParams(0, recA),
			createParams(0, recB),
		})
		require.NoError(t, err)
		require.Len(t, got, 2)

		for _, rec := range []*membermodels.MemberRecord{recA, recB} {
			successful, failed, err := f.svc.GetVerificationAttemptsForMember(ctx, rec.ID)
			require.NoError(t, err)
			assert.Len(t, successful, 1)
			assert.Empty(t, failed)
		}
	})

	t.Run("skips claimed records and keeps the rest", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10, func(c *opmodels.Configuration) { c.EmployeeOnly = true })
		f.activeOrg(20)
		claimed := f.addMember(10, "C100")
		open := f.addMember(20, "C200")
		_, err := f.svc.CreateVerificationForUser(ctx, createParams(99, claimed))
		require.NoError(t, err)

		got, err := f.svc.CreateMultipleVerificationsForUser(ctx, 1, []CreateParams{
			createParams(0, claimed),
			createParams(0, open),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, open.ID, *got[0].EligibilityMemberID)
	})

	t.Run("fails when every record is already claimed", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10, func(c *opmodels.Configuration) { c.EmployeeOnly = true })
		claimed := f.addMember(10, "C100")
		_, err := f.svc.CreateVerificationForUser(ctx, createParams(99, claimed))
		require.NoError(t, err)

		_, err = f.svc.CreateMultipleVerificationsForUser(ctx, 1, []CreateParams{createParams(0, claimed)})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("empty input is a validation error", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.CreateMultipleVerificationsForUser(ctx, 1, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})
}

func TestCreateFailedVerification(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	f.activeOrg(10)
	rec := f.addMember(10, "C100")
	userID := int64(1)

	err := f.svc.CreateFailedVerification(ctx, FailedVerificationParams{
		UserID:              &userID,
		OrganizationID:      10,
		VerificationType:    "standard",
		EligibilityMemberID: &rec.ID,
		FirstName:           "Ada",
		DateOfBirth:         "1990-01-01",
		PolicyUsed:          membermodels.Attributes{"rule": "dob_email"},
	})
	require.NoError(t, err)

	successful, failed, err := f.svc.GetVerificationAttemptsForMember(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, successful)
	require.Len(t, failed, 1)
	assert.False(t, failed[0].SuccessfulVerification)
}

func TestGetVerificationForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("organization filter rejects other orgs", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		other := int64(99)
		_, err = f.svc.GetVerificationForUser(ctx, 1, &other, false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		same := int64(10)
		got, err := f.svc.GetVerificationForUser(ctx, 1, &same, false)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.OrganizationID)
	})

	t.Run("active-only rejects a closed eligibility window", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		past := time.Now().AddDate(0, 0, -10)
		rec := f.v1.Add(&membermodels.MemberRecord{
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			EffectiveRange: membermodels.Range{Upper: &past},
		})
		_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		_, err = f.svc.GetVerificationForUser(ctx, 1, nil, true)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		got, err := f.svc.GetVerificationForUser(ctx, 1, nil, false)
		require.NoError(t, err)
		assert.NotNil(t, got.EffectiveRange)
	})

	t.Run("no verification is a miss", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.GetVerificationForUser(ctx, 404, nil, false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestDeactivateVerificationForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivated rows drop out of active reads", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		created, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		deactivated, err := f.svc.DeactivateVerificationForUser(ctx, created.VerificationID, 1)
		require.NoError(t, err)
		assert.NotNil(t, deactivated.DeactivatedAt)

		_, err = f.svc.GetVerificationForUser(ctx, 1, nil, true)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("only the owner may deactivate", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		created, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		_, err = f.svc.DeactivateVerificationForUser(ctx, created.VerificationID, 2)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("double deactivation fails", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		created, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		_, err = f.svc.DeactivateVerificationForUser(ctx, created.VerificationID, 1)
		require.NoError(t, err)
		_, err = f.svc.DeactivateVerificationForUser(ctx, created.VerificationID, 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("dual-written verification cascades to the v2 row", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		rec := f.addMember(10, "C100")
		version := int64(1)
		f.v2.Add(&membermodels.MemberRecord{
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			Version:        &version,
		})
		created, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)
		key, err := f.svc.GetVerificationKeyForUser(ctx, 1)
		require.NoError(t, err)

		_, err = f.svc.DeactivateVerificationForUser(ctx, created.VerificationID, 1)
		require.NoError(t, err)

		_, err = f.store.GetVerification2ForMember(ctx, *key.Member2ID)
		assert.Error(t, err)
	})

	t.Run("write-v2 org without a v2 pointer refuses deactivation", func(t *testing.T) {
		f := newFixture()
		f.activeOrg(10)
		rec := f.addMember(10, "C100")
		created, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
		require.NoError(t, err)

		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		_, err = f.svc.DeactivateVerificationForUser(ctx, created.VerificationID, 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestGetWalletEnablementForUser(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	f.activeOrg(10)
	rec := f.v1.Add(&membermodels.MemberRecord{
		OrganizationID: 10,
		UniqueCorpID:   "C100",
		Record:         membermodels.Attributes{"wallet_enabled": true, "insurance_plan": "PPO"},
	})
	_, err := f.svc.CreateVerificationForUser(ctx, createParams(1, rec))
	require.NoError(t, err)

	enablement, err := f.svc.GetWalletEnablementForUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, enablement.Enabled)
	assert.Equal(t, "PPO", enablement.InsurancePlan)

	_, err = f.svc.GetWalletEnablementForUser(ctx, 2)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
