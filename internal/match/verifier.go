package match

import (
	"context"
	"sync"
	"time"

	"eligibility/internal/member/models"
)

// VerifyParams carries everything a client-specific verifier needs to
// resolve a member against the client's own directory.
type VerifyParams struct {
	IsEmployee           bool
	OrganizationID       int64
	UniqueCorpID         string
	Implementation       string
	DateOfBirth          time.Time
	DependentDateOfBirth *time.Time
}

// ClientSpecificVerifier resolves a member through a client's bespoke
// integration. Implementations live outside this service.
type ClientSpecificVerifier interface {
	Verify(ctx context.Context, params VerifyParams) (*models.MemberRecord, error)
}

// VerifierRegistry maps configuration implementation tags to verifiers.
type VerifierRegistry struct {
	mu        sync.RWMutex
	verifiers map[string]ClientSpecificVerifier
}

func NewVerifierRegistry() *VerifierRegistry {
	return &VerifierRegistry{verifiers: make(map[string]ClientSpecificVerifier)}
}

func (r *VerifierRegistry) Register(implementation string, v ClientSpecificVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[implementation] = v
}

func (r *VerifierRegistry) Lookup(implementation string) (ClientSpecificVerifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[implementation]
	return v, ok
}
