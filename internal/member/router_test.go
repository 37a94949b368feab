package member

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eligibility/internal/member/models"
	"eligibility/internal/member/store"
)

type stubFlags struct {
	readV2  map[int64]bool
	writeV2 map[int64]bool
}

func (f *stubFlags) IsReadV2Enabled(_ context.Context, org int64) bool  { return f.readV2[org] }
func (f *stubFlags) IsWriteV2Enabled(_ context.Context, org int64) bool { return f.writeV2[org] }

func newTestRouter(flags *stubFlags) (*Router, *store.MemoryStore, *store.MemoryStore) {
	v1 := store.NewMemory(models.SourceV1)
	v2 := store.NewMemory(models.SourceV2)
	return NewRouter(v1, v2, flags), v1, v2
}

func dob(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStrategyFor(t *testing.T) {
	flags := &stubFlags{
		readV2:  map[int64]bool{20: true},
		writeV2: map[int64]bool{30: true},
	}
	r, _, _ := newTestRouter(flags)

	assert.Equal(t, V1Only, r.StrategyFor(context.Background(), 10))
	assert.Equal(t, V2Preferred, r.StrategyFor(context.Background(), 20))
	assert.Equal(t, V2Authoritative, r.StrategyFor(context.Background(), 30))

	noV2 := NewRouter(store.NewMemory(models.SourceV1), nil, flags)
	assert.Equal(t, V1Only, noV2.StrategyFor(context.Background(), 30))
}

func TestGetByMemberID(t *testing.T) {
	ctx := context.Background()

	t.Run("v1 only org", func(t *testing.T) {
		r, v1, _ := newTestRouter(&stubFlags{})
		rec := v1.Add(&models.MemberRecord{OrganizationID: 10, UniqueCorpID: "A1", DateOfBirth: dob(1990, 1, 1)})

		resp, err := r.GetByMemberID(ctx, rec.ID)
		require.NoError(t, err)
		assert.False(t, resp.IsV2)
		require.NotNil(t, resp.Member1ID)
		assert.Equal(t, rec.ID, *resp.Member1ID)
		assert.Nil(t, resp.Member2ID)
	})

	t.Run("migrated org pairs with v2 row", func(t *testing.T) {
		flags := &stubFlags{writeV2: map[int64]bool{10: true}}
		r, v1, v2 := newTestRouter(flags)
		v1Rec := v1.Add(&models.MemberRecord{OrganizationID: 10, UniqueCorpID: "A1"})
		v2Rec := v2.Add(&models.MemberRecord{OrganizationID: 10, UniqueCorpID: "A1"})

		resp, err := r.GetByMemberID(ctx, v1Rec.ID)
		require.NoError(t, err)
		assert.True(t, resp.IsV2)
		require.NotNil(t, resp.Member2ID)
		assert.Equal(t, v2Rec.ID, *resp.Member2ID)
		require.NotNil(t, resp.Member1ID)
		assert.Equal(t, v1Rec.ID, *resp.Member1ID)
	})

	t.Run("v2 missing falls back to v1 on read path", func(t *testing.T) {
		flags := &stubFlags{writeV2: map[int64]bool{10: true}}
		r, v1, _ := newTestRouter(flags)
		v1Rec := v1.Add(&models.MemberRecord{OrganizationID: 10, UniqueCorpID: "A1"})

		resp, err := r.GetByMemberID(ctx, v1Rec.ID)
		require.NoError(t, err)
		assert.False(t, resp.IsV2)
	})
}

func TestPairForWrite(t *testing.T) {
	ctx := context.Background()
	lookup := func(d time.Time, first, last string) func(context.Context, store.Store) ([]*models.MemberRecord, error) {
		return func(ctx context.Context, s store.Store) ([]*models.MemberRecord, error) {
			return s.GetByOvereligibility(ctx, d, first, last)
		}
	}

	t.Run("v1 only passes through", func(t *testing.T) {
		r, v1, _ := newTestRouter(&stubFlags{})
		rec := v1.Add(&models.MemberRecord{OrganizationID: 10, FirstName: "Ada", LastName: "L", DateOfBirth: dob(1990, 1, 1)})

		resp, err := r.PairForWrite(ctx, rec, lookup(rec.DateOfBirth, "Ada", "L"))
		require.NoError(t, err)
		assert.False(t, resp.IsV2)
	})

	t.Run("single same-org v2 match pairs", func(t *testing.T) {
		flags := &stubFlags{writeV2: map[int64]bool{10: true}}
		r, v1, v2 := newTestRouter(flags)
		rec := v1.Add(&models.MemberRecord{OrganizationID: 10, FirstName: "Ada", LastName: "L", DateOfBirth: dob(1990, 1, 1)})
		v2Rec := v2.Add(&models.MemberRecord{OrganizationID: 10, FirstName: "Ada", LastName: "L", DateOfBirth: dob(1990, 1, 1)})

		resp, err := r.PairForWrite(ctx, rec, lookup(rec.DateOfBirth, "Ada", "L"))
		require.NoError(t, err)
		assert.True(t, resp.IsV2)
		assert.Equal(t, v2Rec.ID, *resp.Member2ID)
	})

	t.Run("missing v2 row is a sync mismatch", func(t *testing.T) {
		flags := &stubFlags{writeV2: map[int64]bool{10: true}}
		r, v1, _ := newTestRouter(flags)
		rec := v1.Add(&models.MemberRecord{OrganizationID: 10, FirstName: "Ada", LastName: "L", DateOfBirth: dob(1990, 1, 1)})

		_, err := r.PairForWrite(ctx, rec, lookup(rec.DateOfBirth, "Ada", "L"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSyncMismatch)
	})

	t.Run("v2 match from a different org is a sync mismatch", func(t *testing.T) {
		flags := &stubFlags{writeV2: map[int64]bool{10: true}}
		r, v1, v2 := newTestRouter(flags)
		rec := v1.Add(&models.MemberRecord{OrganizationID: 10, FirstName: "Ada", LastName: "L", DateOfBirth: dob(1990, 1, 1)})
		v2.Add(&models.MemberRecord{OrganizationID: 11, FirstName: "Ada", LastName: "L", DateOfBirth: dob(1990, 1, 1)})

		_, err := r.PairForWrite(ctx, rec, lookup(rec.DateOfBirth, "Ada", "L"))
		assert.ErrorIs(t, err, ErrSyncMismatch)
	})
}

func TestGetOtherUserIDsInFamily(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers v2", func(t *testing.T) {
		r, v1, v2 := newTestRouter(&stubFlags{})
		identity := models.OrgIdentity{OrganizationID: 10, UniqueCorpID: "FAM"}
		v2.Claim(1, identity)
		v2.Claim(2, identity)
		v1.Claim(1, identity)
		v1.Claim(3, identity)

		ids, err := r.GetOtherUserIDsInFamily(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, ids)
	})

	t.Run("falls back to v1 when v2 empty", func(t *testing.T) {
		r, v1, _ := newTestRouter(&stubFlags{})
		identity := models.OrgIdentity{OrganizationID: 10, UniqueCorpID: "FAM"}
		v1.Claim(1, identity)
		v1.Claim(3, identity)

		ids, err := r.GetOtherUserIDsInFamily(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, ids)
	})
}
