package store

import (
	"context"
	"sync"
	"time"

	"eligibility/internal/member/models"
	"eligibility/pkg/platform/sentinel"
	"eligibility/pkg/requestcontext"
)

// MemoryStore is an in-memory Store for unit tests. It applies the same
// normalization rules as the postgres stores.
type MemoryStore struct {
	mu      sync.RWMutex
	source  models.SourceVariant
	nextID  int64
	members map[int64]*models.MemberRecord
	// claims maps user id -> identities of members that user holds an
	// active verification against; drives family lookups.
	claims map[int64][]models.OrgIdentity
}

func NewMemory(source models.SourceVariant) *MemoryStore {
	return &MemoryStore{
		source:  source,
		nextID:  1,
		members: make(map[int64]*models.MemberRecord),
		claims:  make(map[int64][]models.OrgIdentity),
	}
}

// Add stores a member and assigns an id when unset.
func (s *MemoryStore) Add(m *models.MemberRecord) *models.MemberRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.nextID
		s.nextID++
	} else if m.ID >= s.nextID {
		s.nextID = m.ID + 1
	}
	m.Source = s.source
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	s.members[m.ID] = m
	return m
}

// Claim records that user holds an active verification against identity.
func (s *MemoryStore) Claim(userID int64, identity models.OrgIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[userID] = append(s.claims[userID], identity)
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*models.MemberRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetByOrgIdentity(ctx context.Context, identity models.OrgIdentity) (*models.MemberRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.MemberRecord
	for _, m := range s.members {
		if !identityMatches(m, identity) {
			continue
		}
		if best == nil || m.CreatedAt.After(best.CreatedAt) {
			best = m
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func identityMatches(m *models.MemberRecord, identity models.OrgIdentity) bool {
	return m.OrganizationID == identity.OrganizationID &&
		models.NormalizeCorpID(m.UniqueCorpID) == models.NormalizeCorpID(identity.UniqueCorpID) &&
		models.NormalizeText(m.DependentID) == models.NormalizeText(identity.DependentID)
}

func (s *MemoryStore) filter(ctx context.Context, keep func(*models.MemberRecord) bool) []*models.MemberRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	today := requestcontext.Now(ctx)
	var out []*models.MemberRecord
	for _, m := range s.members {
		if !m.EffectiveRange.Contains(today) {
			continue
		}
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (s *MemoryStore) GetByDOBAndEmail(ctx context.Context, dob time.Time, email string) ([]*models.MemberRecord, error) {
	return s.filter(ctx, func(m *models.MemberRecord) bool {
		return sameDay(m.DateOfBirth, dob) &&
			models.NormalizeText(m.Email) == models.NormalizeText(email)
	}), nil
}

func (s *MemoryStore) GetBySecondaryVerification(ctx context.Context, dob time.Time, firstName, lastName, workState string) ([]*models.MemberRecord, error) {
	ws := models.NormalizeText(workState)
	return s.filter(ctx, func(m *models.MemberRecord) bool {
		if !sameDay(m.DateOfBirth, dob) ||
			models.NormalizeText(m.FirstName) != models.NormalizeText(firstName) ||
			models.NormalizeText(m.LastName) != models.NormalizeText(lastName) {
			return false
		}
		return ws == "" || models.NormalizeText(m.WorkState) == ws
	}), nil
}

func (s *MemoryStore) GetByTertiaryVerification(ctx context.Context, dob time.Time, uniqueCorpID string) ([]*models.MemberRecord, error) {
	return s.filter(ctx, func(m *models.MemberRecord) bool {
		return sameDay(m.DateOfBirth, dob) &&
			models.NormalizeCorpID(m.UniqueCorpID) == models.NormalizeCorpID(uniqueCorpID)
	}), nil
}

func (s *MemoryStore) GetByEmailAndName(ctx context.Context, email, firstName, lastName string) ([]*models.MemberRecord, error) {
	return s.filter(ctx, func(m *models.MemberRecord) bool {
		return models.NormalizeText(m.Email) == models.NormalizeText(email) &&
			models.NormalizeText(m.FirstName) == models.NormalizeText(firstName) &&
			models.NormalizeText(m.LastName) == models.NormalizeText(lastName)
	}), nil
}

func (s *MemoryStore) GetByNameAndDateOfBirth(ctx context.Context, firstName, lastName string, dob time.Time) ([]*models.MemberRecord, error) {
	return s.filter(ctx, func(m *models.MemberRecord) bool {
		return sameDay(m.DateOfBirth, dob) &&
			models.NormalizeText(m.FirstName) == models.NormalizeText(firstName) &&
			models.NormalizeText(m.LastName) == models.NormalizeText(lastName)
	}), nil
}

func (s *MemoryStore) GetByOvereligibility(ctx context.Context, dob time.Time, firstName, lastName string) ([]*models.MemberRecord, error) {
	return s.GetByNameAndDateOfBirth(ctx, firstName, lastName, dob)
}

func (s *MemoryStore) GetWalletEnablement(ctx context.Context, memberID int64) (*models.WalletEnablement, error) {
	m, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(m), nil
}

func (s *MemoryStore) GetWalletEnablementByIdentity(ctx context.Context, identity models.OrgIdentity) (*models.WalletEnablement, error) {
	m, err := s.GetByOrgIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(m), nil
}

func (s *MemoryStore) GetOtherUserIDsInFamily(ctx context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type familyKey struct {
		org  int64
		corp string
	}
	mine := make(map[familyKey]bool)
	for _, identity := range s.claims[userID] {
		mine[familyKey{identity.OrganizationID, models.NormalizeCorpID(identity.UniqueCorpID)}] = true
	}

	var ids []int64
	for otherID, identities := range s.claims {
		if otherID == userID {
			continue
		}
		for _, identity := range identities {
			if mine[familyKey{identity.OrganizationID, models.NormalizeCorpID(identity.UniqueCorpID)}] {
				ids = append(ids, otherID)
				break
			}
		}
	}
	return ids, nil
}

// Create mirrors the postgres store's test-member insert.
func (s *MemoryStore) Create(ctx context.Context, rec *models.MemberRecord) (*models.MemberRecord, error) {
	return s.Add(rec), nil
}
