// pkg/workflow/workflow_test.go

package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/approval"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMeta struct {
	items map[string]store.ListingItem
}

func (f *fakeMeta) GetMetadata(id string) (store.ListingItem, error) {
	item, ok := f.items[id]
	if !ok {
		return store.ListingItem{}, store.ErrNotFound
	}
	return item, nil
}

type stubChannel struct {
	verdict      approval.Verdict
	sendErr      error
	waitErr      error
	sendCalls    int
	lastSummary  approval.Summary
	notifyCalls  int
	notifyTexts  []string
	notifyResult error
}

func (s *stubChannel) SendApprovalRequest(_ context.Context, summary approval.Summary) (string, error) {
	s.sendCalls++
	s.lastSummary = summary
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return "msg-1", nil
}

func (s *stubChannel) WaitForResponse(_ context.Context, _ string, _ time.Duration) (approval.Verdict, error) {
	if s.waitErr != nil {
		return "", s.waitErr
	}
	return s.verdict, nil
}

func (s *stubChannel) SendNotification(_ context.Context, text string) error {
	s.notifyCalls++
	s.notifyTexts = append(s.notifyTexts, text)
	return s.notifyResult
}

func fixture(tags ...[]string) (*fakeMeta, []string) {
	meta := &fakeMeta{items: map[string]store.ListingItem{}}
	ids := make([]string, 0, len(tags))
	for i, tagSet := range tags {
		id := uuid.NewString()
		meta.items[id] = store.ListingItem{UUID: id, Ref: refName(i), Tags: tagSet}
		ids = append(ids, id)
	}
	return meta, ids
}

func refName(i int) string {
	return string(rune('a'+i)) + "-secret"
}

func newRequest(t *testing.T, ids []string) *request.Request {
	t.Helper()
	req, err := request.New(ids, "ship", "T-1", 60)
	require.NoError(t, err)
	return req
}

func TestAutoApproval(t *testing.T) {
	meta, ids := fixture([]string{"dev"})
	ch := &stubChannel{verdict: approval.VerdictApproved}
	e := NewEngine(meta, ch, Policy{
		RequireApproval: map[string]bool{"production": true},
	})

	req := newRequest(t, ids)
	verdict, err := e.ProcessRequest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, approval.VerdictApproved, verdict)
	assert.Equal(t, request.StatusApproved, req.Status)
	assert.Zero(t, ch.sendCalls, "auto-approval must not touch the channel")
}

func TestApprovalORSemantics(t *testing.T) {
	tests := []struct {
		name          string
		tags          [][]string
		policy        map[string]bool
		defaultNeeds  bool
		needsApproval bool
	}{
		{
			name:          "dev plus production requires approval",
			tags:          [][]string{{"dev"}, {"production"}},
			policy:        map[string]bool{"production": true},
			needsApproval: true,
		},
		{
			name:          "only dev auto-approves",
			tags:          [][]string{{"dev"}, {"dev"}},
			policy:        map[string]bool{"production": true},
			needsApproval: false,
		},
		{
			name:          "explicit false dominates default",
			tags:          [][]string{{"sandbox"}},
			policy:        map[string]bool{"sandbox": false},
			defaultNeeds:  true,
			needsApproval: false,
		},
		{
			name:          "one secret's false does not cancel another's true",
			tags:          [][]string{{"sandbox"}, {"production"}},
			policy:        map[string]bool{"sandbox": false, "production": true},
			needsApproval: true,
		},
		{
			name:          "unlisted tags fall back to default",
			tags:          [][]string{{"whatever"}},
			policy:        map[string]bool{},
			defaultNeeds:  true,
			needsApproval: true,
		},
		{
			name:          "untagged secret with default off",
			tags:          [][]string{{}},
			policy:        map[string]bool{"production": true},
			needsApproval: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, ids := fixture(tt.tags...)
			ch := &stubChannel{verdict: approval.VerdictApproved}
			e := NewEngine(meta, ch, Policy{
				RequireApproval:        tt.policy,
				DefaultRequireApproval: tt.defaultNeeds,
			})

			req := newRequest(t, ids)
			_, err := e.ProcessRequest(context.Background(), req)
			require.NoError(t, err)

			if tt.needsApproval {
				assert.Equal(t, 1, ch.sendCalls)
			} else {
				assert.Zero(t, ch.sendCalls)
			}
		})
	}
}

func TestHumanApprovalVerdicts(t *testing.T) {
	tests := []struct {
		verdict approval.Verdict
		status  request.Status
	}{
		{approval.VerdictApproved, request.StatusApproved},
		{approval.VerdictDenied, request.StatusDenied},
		{approval.VerdictTimeout, request.StatusTimeout},
	}

	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			meta, ids := fixture([]string{"production"})
			ch := &stubChannel{verdict: tt.verdict}
			e := NewEngine(meta, ch, Policy{
				RequireApproval: map[string]bool{"production": true},
			})

			req := newRequest(t, ids)
			verdict, err := e.ProcessRequest(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, verdict)
			assert.Equal(t, tt.status, req.Status)
		})
	}
}

func TestSummaryCarriesUUIDsAndRefs(t *testing.T) {
	meta, ids := fixture([]string{"production"}, []string{"production"})
	ch := &stubChannel{verdict: approval.VerdictApproved}
	e := NewEngine(meta, ch, Policy{RequireApproval: map[string]bool{"production": true}})

	req := newRequest(t, ids)
	_, err := e.ProcessRequest(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, ch.lastSummary.Secrets, 2)
	rendered := ch.lastSummary.Render()
	for _, id := range ids {
		assert.Contains(t, rendered, id)
		assert.Contains(t, rendered, meta.items[id].Ref)
	}
	assert.Contains(t, rendered, req.ID)
	assert.Contains(t, rendered, "ship")
}

func TestMetadataFailureDenies(t *testing.T) {
	meta := &fakeMeta{items: map[string]store.ListingItem{}}
	ch := &stubChannel{}
	e := NewEngine(meta, ch, Policy{})

	req := newRequest(t, []string{uuid.NewString()})
	_, err := e.ProcessRequest(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, request.StatusDenied, req.Status)
	assert.Zero(t, ch.sendCalls)
}

func TestChannelFailureDenies(t *testing.T) {
	t.Run("send failure", func(t *testing.T) {
		meta, ids := fixture([]string{"production"})
		ch := &stubChannel{sendErr: cerr.New("webhook down")}
		e := NewEngine(meta, ch, Policy{RequireApproval: map[string]bool{"production": true}})

		req := newRequest(t, ids)
		_, err := e.ProcessRequest(context.Background(), req)
		require.ErrorIs(t, err, ErrChannelFailure)
		assert.Equal(t, request.StatusDenied, req.Status)
	})

	t.Run("wait failure", func(t *testing.T) {
		meta, ids := fixture([]string{"production"})
		ch := &stubChannel{waitErr: cerr.New("poll failed")}
		e := NewEngine(meta, ch, Policy{RequireApproval: map[string]bool{"production": true}})

		req := newRequest(t, ids)
		_, err := e.ProcessRequest(context.Background(), req)
		require.ErrorIs(t, err, ErrChannelFailure)
		assert.Equal(t, request.StatusDenied, req.Status)
	})

	t.Run("no channel configured", func(t *testing.T) {
		meta, ids := fixture([]string{"production"})
		e := NewEngine(meta, nil, Policy{RequireApproval: map[string]bool{"production": true}})

		req := newRequest(t, ids)
		_, err := e.ProcessRequest(context.Background(), req)
		require.ErrorIs(t, err, ErrChannelFailure)
		assert.Equal(t, request.StatusDenied, req.Status)
	})
}
