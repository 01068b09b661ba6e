// pkg/store/store_test.go

package store

import (
	"os"
	"path/filepath"
	"testing"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "secrets.json"))
}

func TestAddAndRoundTrip(t *testing.T) {
	s := newTestStore(t)

	uuid, err := s.Add("deploy-key", "hunter2", []string{"dev"})
	require.NoError(t, err)
	require.NotEmpty(t, uuid)
	assert.True(t, IsUUIDv4(uuid))

	value, err := s.GetValueByRef("deploy-key")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)

	item, err := s.Resolve("deploy-key")
	require.NoError(t, err)
	value, err = s.GetValue(item.UUID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)
}

func TestAddRefValidation(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		ref  string
		ok   bool
	}{
		{"simple", "deploy-key", true},
		{"single char", "a", true},
		{"digits", "key2", true},
		{"uppercase rejected", "Deploy", false},
		{"leading dash rejected", "-key", false},
		{"trailing dash rejected", "key-", false},
		{"empty rejected", "", false},
		{"underscore rejected", "deploy_key", false},
		{"uuid literal rejected", "6ba7b810-9dad-41d1-80b4-00c04fd430c8", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(tt.ref, "v", nil)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRef)
			}
		})
	}
}

func TestDuplicateRef(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("deploy-key", "v1", nil)
	require.NoError(t, err)

	_, err = s.Add("deploy-key", "v2", nil)
	assert.ErrorIs(t, err, ErrDuplicateRef)
}

func TestListNeverExposesValues(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("alpha", "value-a", []string{"dev"})
	require.NoError(t, err)
	_, err = s.Add("beta", "value-b", nil)
	require.NoError(t, err)

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	// insertion order
	assert.Equal(t, "alpha", items[0].Ref)
	assert.Equal(t, "beta", items[1].Ref)
	assert.Equal(t, []string{"dev"}, items[0].Tags)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	uuid, err := s.Add("gone", "v", nil)
	require.NoError(t, err)

	require.NoError(t, s.Remove(uuid))
	assert.ErrorIs(t, s.Remove(uuid), ErrNotFound)

	_, err = s.GetMetadata(uuid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveDispatch(t *testing.T) {
	s := newTestStore(t)
	uuid, err := s.Add("deploy-key", "v", nil)
	require.NoError(t, err)

	byRef, err := s.Resolve("deploy-key")
	require.NoError(t, err)
	byUUID, err := s.Resolve(uuid)
	require.NoError(t, err)
	assert.Equal(t, byRef, byUUID)

	// the not-found message names the lookup path that was taken
	_, err = s.Resolve("missing-ref")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref")

	_, err = s.Resolve("6ba7b810-9dad-41d1-80b4-00c04fd430c8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uuid")
}

func TestResolveRef(t *testing.T) {
	s := newTestStore(t)
	uuid, err := s.Add("deploy-key", "hunter2", nil)
	require.NoError(t, err)

	resolved, err := s.ResolveRef("deploy-key")
	require.NoError(t, err)
	assert.Equal(t, uuid, resolved.UUID)
	assert.Equal(t, "hunter2", resolved.Value)

	resolved, err = s.ResolveRef(uuid)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", resolved.Value)
}

func TestFileMode(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("deploy-key", "v", nil)
	require.NoError(t, err)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestCorruptedFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0600))

	_, err := s.List()
	require.ErrorIs(t, err, ErrCorrupted)
	assert.Contains(t, err.Error(), s.Path())

	// a corrupted file is never silently replaced
	_, err = s.Add("new-key", "v", nil)
	require.ErrorIs(t, err, ErrCorrupted)
	data, readErr := os.ReadFile(s.Path())
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestMissingFileIsEmptyStore(t *testing.T) {
	s := newTestStore(t)
	items, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestErrorKindsAreDistinct(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetValue("6ba7b810-9dad-41d1-80b4-00c04fd430c8")
	assert.True(t, cerr.Is(err, ErrNotFound))
	assert.False(t, cerr.Is(err, ErrDuplicateRef))
}
