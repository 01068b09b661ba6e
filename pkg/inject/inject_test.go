// pkg/inject/inject_test.go

package inject

import (
	"context"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/grant"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValues struct {
	byUUID map[string]string
	byRef  map[string]string // ref -> uuid
}

func (f *fakeValues) GetValue(id string) (string, error) {
	v, ok := f.byUUID[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *fakeValues) ResolveRef(refOrUUID string) (store.ResolvedSecret, error) {
	id := refOrUUID
	if mapped, ok := f.byRef[refOrUUID]; ok {
		id = mapped
	}
	v, ok := f.byUUID[id]
	if !ok {
		return store.ResolvedSecret{}, store.ErrNotFound
	}
	return store.ResolvedSecret{UUID: id, Value: v}, nil
}

type harness struct {
	values   *fakeValues
	grants   *grant.Manager
	injector *Injector
}

func newHarness(t *testing.T, secrets map[string]string) (*harness, []string) {
	t.Helper()
	values := &fakeValues{byUUID: map[string]string{}, byRef: map[string]string{}}
	var ids []string
	for ref, value := range secrets {
		id := uuid.NewString()
		values.byUUID[id] = value
		values.byRef[ref] = id
		ids = append(ids, id)
	}
	grants := grant.NewManager()
	return &harness{
		values:   values,
		grants:   grants,
		injector: New(values, grants),
	}, ids
}

func (h *harness) grantFor(t *testing.T, ids []string, durationSeconds int) *grant.Grant {
	t.Helper()
	req, err := request.New(ids, "why", "T-1", durationSeconds)
	require.NoError(t, err)
	req.Status = request.StatusApproved
	g, err := h.grants.CreateGrant(req)
	require.NoError(t, err)
	return g
}

func TestInjectExplicitEnvVar(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "hunter2-value"})
	g := h.grantFor(t, ids, 60)

	result, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sh", "-c", "printenv KEY"}, Options{EnvVarName: "KEY"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "[REDACTED]\n", result.Stdout)
	assert.Empty(t, result.Stderr)
}

func TestInjectMarksGrantUsed(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "v"})
	g := h.grantFor(t, ids, 60)

	_, err := h.injector.Inject(context.Background(), g.ID, []string{"true"}, Options{})
	require.NoError(t, err)

	stored, ok := h.grants.GetGrant(g.ID)
	require.True(t, ok)
	assert.True(t, stored.Used)

	// a consumed grant cannot be injected again
	_, err = h.injector.Inject(context.Background(), g.ID, []string{"true"}, Options{})
	assert.ErrorIs(t, err, ErrGrantNotValid)
}

func TestInjectGrantUsedEvenOnChildFailure(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "v"})
	g := h.grantFor(t, ids, 60)

	result, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sh", "-c", "exit 7"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)

	stored, _ := h.grants.GetGrant(g.ID)
	assert.True(t, stored.Used)
}

func TestInjectPreflight(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "v"})

	t.Run("empty command", func(t *testing.T) {
		g := h.grantFor(t, ids, 60)
		_, err := h.injector.Inject(context.Background(), g.ID, nil, Options{})
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("unknown grant", func(t *testing.T) {
		_, err := h.injector.Inject(context.Background(), "nope", []string{"true"}, Options{})
		assert.ErrorIs(t, err, ErrGrantNotValid)
	})

	t.Run("expired grant spawns nothing", func(t *testing.T) {
		base := time.Now()
		h.grants.SetClock(func() time.Time { return base })
		g := h.grantFor(t, ids, 30)
		h.grants.SetClock(func() time.Time { return base.Add(31 * time.Second) })

		_, err := h.injector.Inject(context.Background(), g.ID, []string{"true"}, Options{})
		assert.ErrorIs(t, err, ErrGrantNotValid)

		h.grants.SetClock(time.Now)
	})
}

func TestInjectPlaceholderSubstitution(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"api-token": "tok-123"})
	g := h.grantFor(t, ids, 60)

	t.Setenv("FOO", "2k://api-token")
	t.Setenv("PARTIAL", "prefix 2k://api-token")

	result, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sh", "-c", "printenv FOO; printenv PARTIAL"}, Options{})
	require.NoError(t, err)

	// full-value placeholder substituted and redacted on the way out;
	// partial substring untouched
	assert.Equal(t, "[REDACTED]\nprefix 2k://api-token\n", result.Stdout)
}

func TestInjectPlaceholderOutOfScope(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"in-scope": "a"})
	// a second secret exists but is outside the grant
	outsider := uuid.NewString()
	h.values.byUUID[outsider] = "b"
	h.values.byRef["outsider"] = outsider

	g := h.grantFor(t, ids, 60)
	t.Setenv("FOO", "2k://outsider")

	_, err := h.injector.Inject(context.Background(), g.ID, []string{"true"}, Options{})
	require.ErrorIs(t, err, ErrPlaceholderOutOfScope)
	assert.Contains(t, err.Error(), "FOO")
	assert.Contains(t, err.Error(), "2k://outsider")
	assert.Contains(t, err.Error(), outsider)
}

func TestInjectRedactsAcrossChunks(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "super-secret-value"})
	g := h.grantFor(t, ids, 60)

	// the child emits the secret split across two writes
	script := `printf 'begin super-sec'; sleep 0.2; printf 'ret-value end'`
	result, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sh", "-c", script}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "begin [REDACTED] end", result.Stdout)
}

func TestInjectStderrRedaction(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "s3cr3t"})
	g := h.grantFor(t, ids, 60)

	result, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sh", "-c", "echo s3cr3t 1>&2"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]\n", result.Stderr)
}

func TestInjectTimeout(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "v"})
	g := h.grantFor(t, ids, 60)

	start := time.Now()
	_, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sleep", "10"}, Options{Timeout: 200 * time.Millisecond})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	stored, _ := h.grants.GetGrant(g.ID)
	assert.True(t, stored.Used, "grant consumed even on timeout")
}

func TestInjectBufferCap(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "v"})
	g := h.grantFor(t, ids, 60)

	// 11 MiB of raw output trips the 10 MiB cap
	_, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sh", "-c", "head -c 11534336 /dev/zero"}, Options{Timeout: 30 * time.Second})
	require.ErrorIs(t, err, ErrBufferExceeded)
	assert.Contains(t, err.Error(), "10485760")
}

func TestInjectSpawnFailure(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "v"})
	g := h.grantFor(t, ids, 60)

	_, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"/nonexistent/binary"}, Options{})
	require.ErrorIs(t, err, ErrSpawnFailure)

	stored, _ := h.grants.GetGrant(g.ID)
	assert.True(t, stored.Used, "grant consumed even on spawn failure")
}

func TestInjectSignalledChildExitCode(t *testing.T) {
	h, ids := newHarness(t, map[string]string{"deploy-key": "v"})
	g := h.grantFor(t, ids, 60)

	result, err := h.injector.Inject(context.Background(), g.ID,
		[]string{"sh", "-c", "kill -9 $$"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, -1, result.ExitCode)
}
