// pkg/grant/grant_test.go

package grant

import (
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedRequest(t *testing.T, durationSeconds int) *request.Request {
	t.Helper()
	req, err := request.New([]string{uuid.NewString(), uuid.NewString()}, "why", "T-1", durationSeconds)
	require.NoError(t, err)
	req.Status = request.StatusApproved
	return req
}

func TestCreateGrant(t *testing.T) {
	m := NewManager()
	req := approvedRequest(t, 60)

	g, err := m.CreateGrant(req)
	require.NoError(t, err)

	assert.Equal(t, req.ID, g.RequestID)
	assert.Equal(t, req.SecretUUIDs, g.SecretUUIDs)
	assert.False(t, g.Used)
	assert.Nil(t, g.RevokedAt)
	assert.Equal(t, 60*time.Second, g.ExpiresAt.Sub(g.GrantedAt))
}

func TestCreateGrantRequiresApproval(t *testing.T) {
	m := NewManager()

	for _, status := range []request.Status{
		request.StatusPending, request.StatusDenied, request.StatusTimeout, request.StatusExpired,
	} {
		req := approvedRequest(t, 60)
		req.Status = status
		_, err := m.CreateGrant(req)
		assert.ErrorIs(t, err, ErrNotApproved, "status %s", status)
	}
}

func TestCreateGrantCopiesSecretList(t *testing.T) {
	m := NewManager()
	req := approvedRequest(t, 60)

	g, err := m.CreateGrant(req)
	require.NoError(t, err)

	req.SecretUUIDs[0] = "mutated"
	stored, ok := m.GetGrantSecrets(g.ID)
	require.True(t, ok)
	assert.NotEqual(t, "mutated", stored[0])
}

func TestMarkUsedIsExclusive(t *testing.T) {
	m := NewManager()
	g, err := m.CreateGrant(approvedRequest(t, 60))
	require.NoError(t, err)

	assert.True(t, m.ValidateGrant(g.ID))
	require.NoError(t, m.MarkUsed(g.ID))
	assert.False(t, m.ValidateGrant(g.ID))

	err = m.MarkUsed(g.ID)
	assert.ErrorIs(t, err, ErrNotValid)
}

func TestMarkUsedUnknownGrant(t *testing.T) {
	m := NewManager()
	assert.ErrorIs(t, m.MarkUsed("nope"), ErrNotFound)
}

func TestRevoke(t *testing.T) {
	m := NewManager()
	g, err := m.CreateGrant(approvedRequest(t, 60))
	require.NoError(t, err)

	require.NoError(t, m.RevokeGrant(g.ID))
	assert.False(t, m.ValidateGrant(g.ID))
	assert.ErrorIs(t, m.MarkUsed(g.ID), ErrNotValid)
	assert.ErrorIs(t, m.RevokeGrant(g.ID), ErrAlreadyRevoked)
	assert.ErrorIs(t, m.RevokeGrant("nope"), ErrNotFound)
}

func TestExpiry(t *testing.T) {
	m := NewManager()
	base := time.Now()
	m.SetClock(func() time.Time { return base })

	g, err := m.CreateGrant(approvedRequest(t, 30))
	require.NoError(t, err)
	assert.True(t, m.ValidateGrant(g.ID))

	// now == expiresAt is still valid
	m.SetClock(func() time.Time { return base.Add(30 * time.Second) })
	assert.True(t, m.ValidateGrant(g.ID))

	m.SetClock(func() time.Time { return base.Add(31 * time.Second) })
	assert.False(t, m.ValidateGrant(g.ID))
	assert.ErrorIs(t, m.MarkUsed(g.ID), ErrNotValid)
}

func TestCleanup(t *testing.T) {
	m := NewManager()
	m.Cleanup() // safe on empty

	base := time.Now()
	m.SetClock(func() time.Time { return base })

	expired, err := m.CreateGrant(approvedRequest(t, 30))
	require.NoError(t, err)
	alive, err := m.CreateGrant(approvedRequest(t, 120))
	require.NoError(t, err)

	m.SetClock(func() time.Time { return base.Add(60 * time.Second) })
	m.Cleanup()

	_, ok := m.GetGrant(expired.ID)
	assert.False(t, ok)
	_, ok = m.GetGrant(alive.ID)
	assert.True(t, ok)
}

func TestGetGrantReturnsCopy(t *testing.T) {
	m := NewManager()
	g, err := m.CreateGrant(approvedRequest(t, 60))
	require.NoError(t, err)

	cp, ok := m.GetGrant(g.ID)
	require.True(t, ok)
	cp.Used = true
	cp.SecretUUIDs[0] = "mutated"

	assert.True(t, m.ValidateGrant(g.ID))
	fresh, _ := m.GetGrant(g.ID)
	assert.False(t, fresh.Used)
	assert.NotEqual(t, "mutated", fresh.SecretUUIDs[0])

	_, ok = m.GetGrant("nope")
	assert.False(t, ok)
	_, ok = m.GetGrantSecrets("nope")
	assert.False(t, ok)
}
