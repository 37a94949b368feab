package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	membermodels "eligibility/internal/member/models"
	"eligibility/internal/verification/models"
	"eligibility/pkg/platform/sentinel"
)

// memberResolver resolves member rows for the joined retrieval views. The
// member memory store satisfies it.
type memberResolver interface {
	Get(ctx context.Context, id int64) (*membermodels.MemberRecord, error)
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu             sync.Mutex
	nextID         int64
	verifications  map[int64]*models.Verification
	verifications2 map[int64]*models.Verification2
	attempts       map[int64]*models.VerificationAttempt
	links          []*models.MemberVerification
	members        memberResolver
}

func NewMemoryStore(members memberResolver) *MemoryStore {
	return &MemoryStore{
		verifications:  make(map[int64]*models.Verification),
		verifications2: make(map[int64]*models.Verification2),
		attempts:       make(map[int64]*models.VerificationAttempt),
		members:        members,
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// WithTx has no transactional behavior in memory; it simply runs fn.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func sessionUUID(raw *string) *uuid.UUID {
	if raw == nil {
		return nil
	}
	parsed, err := uuid.Parse(*raw)
	if err != nil {
		return nil
	}
	return &parsed
}

func (s *MemoryStore) CreateVerification(ctx context.Context, p CreateVerificationParams) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	v := &models.Verification{
		ID:                  s.id(),
		UserID:              p.UserID,
		OrganizationID:      p.OrganizationID,
		VerificationType:    p.VerificationType,
		Demographics:        p.Demographics,
		VerifiedAt:          p.VerifiedAt,
		VerificationSession: sessionUUID(p.VerificationSession),
		AdditionalFields:    p.AdditionalFields,
		Verification2ID:     p.Verification2ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.verifications[v.ID] = v
	return cloneVerification(v), nil
}

func (s *MemoryStore) CreateVerification2(ctx context.Context, p CreateVerification2Params) (*models.Verification2, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	v := &models.Verification2{
		ID:                  s.id(),
		UserID:              p.UserID,
		OrganizationID:      p.OrganizationID,
		VerificationType:    p.VerificationType,
		MemberID:            p.MemberID,
		MemberVersion:       p.MemberVersion,
		Demographics:        p.Demographics,
		VerifiedAt:          p.VerifiedAt,
		VerificationSession: sessionUUID(p.VerificationSession),
		AdditionalFields:    p.AdditionalFields,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.verifications2[v.ID] = v
	out := *v
	return &out, nil
}

func (s *MemoryStore) CreateVerificationAttempt(ctx context.Context, p CreateAttemptParams) (*models.VerificationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.VerificationAttempt{
		ID:                     s.id(),
		UserID:                 p.UserID,
		OrganizationID:         p.OrganizationID,
		VerificationType:       p.VerificationType,
		Demographics:           p.Demographics,
		SuccessfulVerification: p.VerificationID != nil,
		PolicyUsed:             p.PolicyUsed,
		VerificationID:         p.VerificationID,
		VerifiedAt:             p.VerifiedAt,
		CreatedAt:              time.Now().UTC(),
	}
	s.attempts[a.ID] = a
	out := *a
	return &out, nil
}

func (s *MemoryStore) CreateMemberVerification(ctx context.Context, memberID, verificationID, attemptID *int64) (*models.MemberVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mv := &models.MemberVerification{
		ID:                    s.id(),
		MemberID:              memberID,
		VerificationID:        verificationID,
		VerificationAttemptID: attemptID,
		CreatedAt:             time.Now().UTC(),
	}
	s.links = append(s.links, mv)
	out := *mv
	return &out, nil
}

func (s *MemoryStore) CreateVerificationDualWrite(ctx context.Context, p DualWriteParams) (*models.Verification, error) {
	v2, err := s.CreateVerification2(ctx, p.V2)
	if err != nil {
		return nil, err
	}
	v1Params := p.V1
	v1Params.Verification2ID = &v2.ID
	return s.CreateVerification(ctx, v1Params)
}

func (s *MemoryStore) CreateMultipleVerifications(ctx context.Context, records []*BatchRecord) error {
	for _, r := range records {
		v, err := s.CreateVerification(ctx, CreateVerificationParams{
			UserID:              r.UserID,
			OrganizationID:      r.OrganizationID,
			VerificationType:    r.VerificationType,
			Demographics:        r.Demographics,
			VerifiedAt:          r.VerifiedAt,
			VerificationSession: r.VerificationSession,
			AdditionalFields:    r.AdditionalFields,
		})
		if err != nil {
			return err
		}
		r.VerificationID = &v.ID
	}
	return nil
}

func (s *MemoryStore) CreateMultipleVerificationAttempts(ctx context.Context, records []*BatchRecord) error {
	for _, r := range records {
		userID := r.UserID
		a, err := s.CreateVerificationAttempt(ctx, CreateAttemptParams{
			UserID:           &userID,
			OrganizationID:   r.OrganizationID,
			VerificationType: r.VerificationType,
			Demographics:     r.Demographics,
			VerificationID:   r.VerificationID,
			VerifiedAt:       r.VerifiedAt,
		})
		if err != nil {
			return err
		}
		r.VerificationAttemptID = &a.ID
	}
	return nil
}

func (s *MemoryStore) CreateMultipleMemberVerifications(ctx context.Context, records []*BatchRecord) error {
	for _, r := range records {
		if _, err := s.CreateMemberVerification(ctx, r.EligibilityMemberID, r.VerificationID, r.VerificationAttemptID); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) GetVerification(ctx context.Context, verificationID int64) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[verificationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneVerification(v), nil
}

func (s *MemoryStore) GetVerificationForMember(ctx context.Context, memberID int64) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Verification
	for _, mv := range s.links {
		if mv.MemberID == nil || *mv.MemberID != memberID || mv.VerificationID == nil {
			continue
		}
		v, ok := s.verifications[*mv.VerificationID]
		if !ok || !v.IsActive() {
			continue
		}
		if latest == nil || v.ID > latest.ID {
			latest = v
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneVerification(latest), nil
}

func (s *MemoryStore) GetVerification2ForMember(ctx context.Context, member2ID int64) (*models.Verification2, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Verification2
	for _, v := range s.verifications2 {
		if v.MemberID != member2ID || !v.IsActive() {
			continue
		}
		if latest == nil || v.ID > latest.ID {
			latest = v
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (s *MemoryStore) GetVerificationKeyForUser(ctx context.Context, userID int64) (*models.VerificationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Verification
	for _, v := range s.verifications {
		if v.UserID != userID || !v.IsActive() {
			continue
		}
		if latest == nil || v.ID > latest.ID {
			latest = v
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	key := &models.VerificationKey{OrganizationID: latest.OrganizationID}
	key.MemberID = s.lockedLinkedMemberID(latest.ID)
	if latest.Verification2ID != nil {
		if v2, ok := s.verifications2[*latest.Verification2ID]; ok {
			memberID, version := v2.MemberID, v2.MemberVersion
			key.Member2ID = &memberID
			key.Member2Version = &version
		}
	}
	return key, nil
}

func (s *MemoryStore) GetVerificationKey2ForUserAndOrg(ctx context.Context, userID, organizationID int64) (*models.VerificationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Verification2
	for _, v := range s.verifications2 {
		if v.UserID != userID || v.OrganizationID != organizationID || !v.IsActive() {
			continue
		}
		if latest == nil || v.ID > latest.ID {
			latest = v
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	memberID, version := latest.MemberID, latest.MemberVersion
	return &models.VerificationKey{
		OrganizationID: latest.OrganizationID,
		Member2ID:      &memberID,
		Member2Version: &version,
	}, nil
}

// forUser hydrates a retrieval view. The linked member id is resolved by
// the caller while it still holds the lock.
func (s *MemoryStore) forUser(ctx context.Context, v *models.Verification, memberID *int64) *models.ForUser {
	f := &models.ForUser{
		VerificationID:      v.ID,
		UserID:              v.UserID,
		OrganizationID:      v.OrganizationID,
		VerificationType:    v.VerificationType,
		Demographics:        v.Demographics,
		Verification2ID:     v.Verification2ID,
		VerifiedAt:          v.VerifiedAt,
		DeactivatedAt:       v.DeactivatedAt,
		VerificationSession: v.VerificationSession,
		AdditionalFields:    v.AdditionalFields,
		CreatedAt:           v.CreatedAt,
	}
	if memberID != nil {
		f.EligibilityMemberID = memberID
		if s.members != nil {
			if rec, err := s.members.Get(ctx, *memberID); err == nil {
				r := rec.EffectiveRange
				f.EffectiveRange = &r
			}
		}
	}
	return f
}

func (s *MemoryStore) GetEligibilityVerificationRecordForUser(ctx context.Context, userID int64) (*models.ForUser, error) {
	records, err := s.GetAllEligibilityVerificationRecordsForUser(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return records[0], nil
}

func (s *MemoryStore) GetAllEligibilityVerificationRecordsForUser(ctx context.Context, userID int64, organizationIDs []int64) ([]*models.ForUser, error) {
	s.mu.Lock()
	var matched []*models.Verification
	linked := make(map[int64]*int64)
	for _, v := range s.verifications {
		if v.UserID != userID {
			continue
		}
		if len(organizationIDs) > 0 && !containsID(organizationIDs, v.OrganizationID) {
			continue
		}
		matched = append(matched, cloneVerification(v))
		linked[v.ID] = s.lockedLinkedMemberID(v.ID)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	out := make([]*models.ForUser, 0, len(matched))
	for _, v := range matched {
		out = append(out, s.forUser(ctx, v, linked[v.ID]))
	}
	return out, nil
}

func (s *MemoryStore) GetEligibilityMemberIDForUserAndOrg(ctx context.Context, userID, organizationID int64) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Verification
	for _, v := range s.verifications {
		if v.UserID != userID || v.OrganizationID != organizationID || !v.IsActive() {
			continue
		}
		if s.lockedLinkedMemberID(v.ID) == nil {
			continue
		}
		if latest == nil || v.ID > latest.ID {
			latest = v
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return s.lockedLinkedMemberID(latest.ID), nil
}

func (s *MemoryStore) lockedLinkedMemberID(verificationID int64) *int64 {
	for _, mv := range s.links {
		if mv.VerificationID != nil && *mv.VerificationID == verificationID && mv.MemberID != nil {
			id := *mv.MemberID
			return &id
		}
	}
	return nil
}

func (s *MemoryStore) GetVerificationAttemptsForMember(ctx context.Context, memberID int64) ([]*models.VerificationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.VerificationAttempt
	for _, mv := range s.links {
		if mv.MemberID == nil || *mv.MemberID != memberID || mv.VerificationAttemptID == nil {
			continue
		}
		if a, ok := s.attempts[*mv.VerificationAttemptID]; ok {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeactivateVerification(ctx context.Context, verificationID int64) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[verificationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	now := time.Now().UTC()
	v.DeactivatedAt = &now
	v.UpdatedAt = now
	return cloneVerification(v), nil
}

func (s *MemoryStore) DeactivateVerification2(ctx context.Context, verification2ID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications2[verification2ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	now := time.Now().UTC()
	v.DeactivatedAt = &now
	v.UpdatedAt = now
	return nil
}

func cloneVerification(v *models.Verification) *models.Verification {
	out := *v
	return &out
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

