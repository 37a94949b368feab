package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	membermodels "eligibility/internal/member/models"
	memberstore "eligibility/internal/member/store"
	"eligibility/pkg/platform/sentinel"
)

// Exercises the retrieval views while link rows are still being written;
// fails under the race detector if any map or slice read escapes the lock.
func TestMemoryStoreConcurrentReads(t *testing.T) {
	ctx := context.Background()
	members := memberstore.NewMemory(membermodels.SourceV1)
	st := NewMemoryStore(members)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		userID := int64(i%2 + 1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec := members.Add(&membermodels.MemberRecord{
					OrganizationID: 10,
					UniqueCorpID:   "C100",
				})
				v, err := st.CreateVerification(ctx, CreateVerificationParams{
					UserID:           userID,
					OrganizationID:   10,
					VerificationType: "STANDARD",
					VerifiedAt:       time.Now(),
				})
				if err != nil {
					t.Error(err)
					return
				}
				a, err := st.CreateVerificationAttempt(ctx, CreateAttemptParams{
					UserID:           &userID,
					OrganizationID:   10,
					VerificationType: "STANDARD",
					VerificationID:   &v.ID,
					VerifiedAt:       time.Now(),
				})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := st.CreateMemberVerification(ctx, &rec.ID, &v.ID, &a.ID); err != nil {
					t.Error(err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := st.GetAllEligibilityVerificationRecordsForUser(ctx, userID, nil); err != nil {
					t.Error(err)
					return
				}
				if _, err := st.GetVerificationKeyForUser(ctx, userID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
