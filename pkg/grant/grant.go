// pkg/grant/grant.go
//
// Time-bound, single-use access grants. A grant moves fresh -> used or
// fresh -> revoked through explicit operations; expiry is implicit in the
// clock passing expiresAt. Grants live in memory only.

package grant

import (
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Sentinel errors returned by grant operations.
var (
	ErrNotFound       = cerr.New("grant not found")
	ErrNotApproved    = cerr.New("request is not approved")
	ErrNotValid       = cerr.New("grant is not valid")
	ErrAlreadyRevoked = cerr.New("grant is already revoked")
)

// Grant is a single-use capability over one or more secret ids.
type Grant struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"requestId"`
	SecretUUIDs []string   `json:"secretUuids"`
	GrantedAt   time.Time  `json:"grantedAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Used        bool       `json:"used"`
	RevokedAt   *time.Time `json:"revokedAt"`
}

// Manager owns all grants. Every operation is a short critical section
// over the map; there are no cross-grant invariants.
type Manager struct {
	mu     sync.Mutex
	grants map[string]*Grant
	now    func() time.Time
}

// NewManager returns an empty grant manager.
func NewManager() *Manager {
	return &Manager{
		grants: make(map[string]*Grant),
		now:    time.Now,
	}
}

// CreateGrant issues a grant for an approved request. The secret id list is
// copied by value; grants never alias request state.
func (m *Manager) CreateGrant(req *request.Request) (*Grant, error) {
	if req.Status != request.StatusApproved {
		return nil, cerr.Wrapf(ErrNotApproved, "request %s has status %s", req.ID, req.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ids := make([]string, len(req.SecretUUIDs))
	copy(ids, req.SecretUUIDs)

	g := &Grant{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		SecretUUIDs: ids,
		GrantedAt:   now,
		ExpiresAt:   now.Add(req.Duration()),
		Used:        false,
		RevokedAt:   nil,
	}
	m.grants[g.ID] = g
	return copyGrant(g), nil
}

// ValidateGrant reports whether the grant exists and is currently valid:
// not expired, not used, not revoked.
func (m *Manager) ValidateGrant(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[id]
	if !ok {
		return false
	}
	return m.isValid(g)
}

// MarkUsed transitions the grant to used. Fails if the grant is missing or
// no longer valid.
func (m *Manager) MarkUsed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[id]
	if !ok {
		return cerr.Wrapf(ErrNotFound, "grant %s", id)
	}
	if !m.isValid(g) {
		return cerr.Wrapf(ErrNotValid, "grant %s", id)
	}
	g.Used = true
	return nil
}

// RevokeGrant stamps revokedAt. Revoking twice is an error.
func (m *Manager) RevokeGrant(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[id]
	if !ok {
		return cerr.Wrapf(ErrNotFound, "grant %s", id)
	}
	if g.RevokedAt != nil {
		return cerr.Wrapf(ErrAlreadyRevoked, "grant %s", id)
	}
	now := m.now()
	g.RevokedAt = &now
	return nil
}

// Cleanup removes every expired grant. Safe on an empty manager.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, g := range m.grants {
		if now.After(g.ExpiresAt) {
			delete(m.grants, id)
		}
	}
}

// GetGrant returns a deep copy of the grant, or false.
func (m *Manager) GetGrant(id string) (*Grant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[id]
	if !ok {
		return nil, false
	}
	return copyGrant(g), true
}

// GetGrantSecrets returns a copy of the grant's secret uuid list, or false.
func (m *Manager) GetGrantSecrets(id string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[id]
	if !ok {
		return nil, false
	}
	out := make([]string, len(g.SecretUUIDs))
	copy(out, g.SecretUUIDs)
	return out, true
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// isValid is called with the lock held; one clock reading per operation.
func (m *Manager) isValid(g *Grant) bool {
	now := m.now()
	return !now.After(g.ExpiresAt) && !g.Used && g.RevokedAt == nil
}

func copyGrant(g *Grant) *Grant {
	cp := *g
	cp.SecretUUIDs = make([]string, len(g.SecretUUIDs))
	copy(cp.SecretUUIDs, g.SecretUUIDs)
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
