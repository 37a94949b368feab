package match_test

//go:generate mockgen -source=verifier.go -destination=mocks/mocks.go -package=mocks ClientSpecificVerifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"eligibility/internal/match"
	"eligibility/internal/match/mocks"
	"eligibility/internal/member"
	membermodels "eligibility/internal/member/models"
	memberstore "eligibility/internal/member/store"
	"eligibility/internal/orgpolicy"
	opmodels "eligibility/internal/orgpolicy/models"
	opstore "eligibility/internal/orgpolicy/store"
	dErrors "eligibility/pkg/domain-errors"
)

func newClientSpecificEngine(t *testing.T) (*match.Engine, *match.VerifierRegistry, *memberstore.MemoryStore) {
	t.Helper()
	v1 := memberstore.NewMemory(membermodels.SourceV1)
	v2 := memberstore.NewMemory(membermodels.SourceV2)
	configs := opstore.NewMemory()
	policy := orgpolicy.NewService(configs, orgpolicy.NewStaticFlagProvider())

	activated := time.Now().Add(-24 * time.Hour)
	configs.Put(&opmodels.Configuration{
		OrganizationID:  10,
		EligibilityType: opmodels.TypeClientSpecific,
		Implementation:  "acme",
		ActivatedAt:     &activated,
	})

	registry := match.NewVerifierRegistry()
	engine := match.NewEngine(member.NewRouter(v1, v2, policy), policy, registry)
	return engine, registry, v1
}

func TestClientSpecificVerifierContract(t *testing.T) {
	ctx := context.Background()

	t.Run("passes normalized params to the verifier", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		engine, registry, v1 := newClientSpecificEngine(t)

		rec := v1.Add(&membermodels.MemberRecord{
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			FirstName:      "Ada",
			DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		})

		verifier := mocks.NewMockClientSpecificVerifier(ctrl)
		verifier.EXPECT().
			Verify(gomock.Any(), match.VerifyParams{
				IsEmployee:     true,
				OrganizationID: 10,
				UniqueCorpID:   "C100",
				Implementation: "acme",
				DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			}).
			Return(rec, nil)
		registry.Register("acme", verifier)

		resp, err := engine.CheckClientSpecificEligibility(ctx, match.ClientSpecificParams{
			IsEmployee:     true,
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			DateOfBirth:    "1990-01-01",
		})
		require.NoError(t, err)
		assert.Equal(t, rec.ID, resp.ID)
	})

	t.Run("wraps upstream failures as unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		engine, registry, _ := newClientSpecificEngine(t)

		verifier := mocks.NewMockClientSpecificVerifier(ctrl)
		verifier.EXPECT().
			Verify(gomock.Any(), gomock.Any()).
			Return(nil, errors.New("directory timeout"))
		registry.Register("acme", verifier)

		_, err := engine.CheckClientSpecificEligibility(ctx, match.ClientSpecificParams{
			IsEmployee:     true,
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			DateOfBirth:    "1990-01-01",
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("stops calling the verifier once its circuit opens", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		engine, registry, _ := newClientSpecificEngine(t)

		verifier := mocks.NewMockClientSpecificVerifier(ctrl)
		verifier.EXPECT().
			Verify(gomock.Any(), gomock.Any()).
			Return(nil, errors.New("directory timeout")).
			Times(5)
		registry.Register("acme", verifier)

		params := match.ClientSpecificParams{
			IsEmployee:     true,
			OrganizationID: 10,
			UniqueCorpID:   "C100",
			DateOfBirth:    "1990-01-01",
		}
		for i := 0; i < 5; i++ {
			_, err := engine.CheckClientSpecificEligibility(ctx, params)
			require.Error(t, err)
		}

		// the sixth attempt fails fast without reaching the verifier
		_, err := engine.CheckClientSpecificEligibility(ctx, params)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
