package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eligibility/internal/member/models"
	"eligibility/internal/orgpolicy"
	opmodels "eligibility/internal/orgpolicy/models"
	dErrors "eligibility/pkg/domain-errors"
)

func overeligibleFixture() *fixture {
	f := newFixture()
	f.flags.SetBool(orgpolicy.FlagOvereligibility, true)
	f.flags.SetJSON(orgpolicy.FlagOvereligibilityOrgs, `{"enabled_all_orgs": true}`)
	return f
}

func baseParams() OvereligibilityParams {
	return OvereligibilityParams{
		DateOfBirth: "1990-01-01",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		UserID:      1,
	}
}

func (f *fixture) addCandidate(orgID int64, corpID, email string) *models.MemberRecord {
	return f.v1.Add(&models.MemberRecord{
		OrganizationID: orgID,
		UniqueCorpID:   corpID,
		Email:          email,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		DateOfBirth:    bday(1990, 1, 1),
	})
}

func TestCheckOvereligibility(t *testing.T) {
	ctx := context.Background()

	t.Run("returns one response per active org", func(t *testing.T) {
		f := overeligibleFixture()
		f.activeOrg(10, opmodels.TypeStandard)
		f.activeOrg(11, opmodels.TypeStandard)
		f.addCandidate(10, "A1", "")
		f.addCandidate(11, "B1", "")

		out, err := f.engine.CheckOvereligibility(ctx, baseParams())
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("kill switch off is a miss", func(t *testing.T) {
		f := overeligibleFixture()
		f.flags.SetBool(orgpolicy.FlagOvereligibility, false)
		f.activeOrg(10, opmodels.TypeStandard)
		f.addCandidate(10, "A1", "")

		_, err := f.engine.CheckOvereligibility(ctx, baseParams())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, MethodOvereligibility, dErrors.MethodOf(err))
	})

	t.Run("an unenrolled matched org is a miss", func(t *testing.T) {
		f := overeligibleFixture()
		f.flags.SetJSON(orgpolicy.FlagOvereligibilityOrgs, `{"enabled_all_orgs": false, "organizations": [10]}`)
		f.activeOrg(10, opmodels.TypeStandard)
		f.activeOrg(11, opmodels.TypeStandard)
		f.addCandidate(10, "A1", "")
		f.addCandidate(11, "B1", "")

		_, err := f.engine.CheckOvereligibility(ctx, baseParams())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("email filter keeps empty-email records", func(t *testing.T) {
		f := overeligibleFixture()
		f.activeOrg(10, opmodels.TypeStandard)
		f.activeOrg(11, opmodels.TypeStandard)
		f.activeOrg(12, opmodels.TypeStandard)
		f.addCandidate(10, "A1", "ada@ex.com")
		f.addCandidate(11, "B1", "other@ex.com")
		keepEmpty := f.addCandidate(12, "C1", "")

		p := baseParams()
		p.Email = "ADA@ex.com"
		out, err := f.engine.CheckOvereligibility(ctx, p)
		require.NoError(t, err)
		require.Len(t, out, 2)

		orgs := map[int64]bool{}
		for _, r := range out {
			orgs[r.OrganizationID] = true
		}
		assert.True(t, orgs[10])
		assert.True(t, orgs[keepEmpty.OrganizationID])
		assert.False(t, orgs[11])
	})

	t.Run("healthplan corp-id filter removes nonmatching plans", func(t *testing.T) {
		f := overeligibleFixture()
		f.activeOrg(10, opmodels.TypeHealthPlan)
		f.activeOrg(11, opmodels.TypeHealthPlan)
		f.addCandidate(10, "AAA", "")
		f.addCandidate(11, "BBB", "")

		p := baseParams()
		p.UniqueCorpID = "AAA"
		out, err := f.engine.CheckOvereligibility(ctx, p)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, int64(10), out[0].OrganizationID)
	})

	t.Run("healthplan filter never eliminates everything", func(t *testing.T) {
		f := overeligibleFixture()
		f.activeOrg(10, opmodels.TypeHealthPlan)
		f.activeOrg(11, opmodels.TypeHealthPlan)
		f.addCandidate(10, "AAA", "")
		f.addCandidate(11, "BBB", "")

		p := baseParams()
		p.UniqueCorpID = "ZZZ" // matches neither
		out, err := f.engine.CheckOvereligibility(ctx, p)
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("per-org most recently updated record wins", func(t *testing.T) {
		f := overeligibleFixture()
		f.activeOrg(10, opmodels.TypeStandard)
		older := f.addCandidate(10, "A1", "")
		older.UpdatedAt = time.Now().Add(-2 * time.Hour)
		newer := f.addCandidate(10, "A2", "")
		newer.UpdatedAt = time.Now().Add(-time.Hour)

		out, err := f.engine.CheckOvereligibility(ctx, baseParams())
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, newer.ID, *out[0].Member1ID)
	})

	t.Run("write-v2 org without v2 counterpart is a miss", func(t *testing.T) {
		f := overeligibleFixture()
		f.activeOrg(10, opmodels.TypeStandard)
		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		f.addCandidate(10, "A1", "")

		_, err := f.engine.CheckOvereligibility(ctx, baseParams())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("write-v2 org pairs with its v2 counterpart", func(t *testing.T) {
		f := overeligibleFixture()
		f.activeOrg(10, opmodels.TypeStandard)
		f.activeOrg(11, opmodels.TypeStandard)
		f.flags.SetJSON(orgpolicy.FlagWriteV2Orgs, `[10]`)
		f.addCandidate(10, "A1", "")
		f.addCandidate(11, "B1", "")
		v2Rec := f.v2.Add(&models.MemberRecord{
			OrganizationID: 10, UniqueCorpID: "A1",
			FirstName: "Ada", LastName: "Lovelace", DateOfBirth: bday(1990, 1, 1),
		})

		out, err := f.engine.CheckOvereligibility(ctx, baseParams())
		require.NoError(t, err)
		require.Len(t, out, 2)
		for _, r := range out {
			if r.OrganizationID == 10 {
				assert.True(t, r.IsV2)
				assert.Equal(t, v2Rec.ID, *r.Member2ID)
			} else {
				assert.False(t, r.IsV2)
			}
		}
	})

	t.Run("no candidates at all is a miss", func(t *testing.T) {
		f := overeligibleFixture()
		_, err := f.engine.CheckOvereligibility(ctx, baseParams())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
