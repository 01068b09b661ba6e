// pkg/workflow/workflow.go
//
// Drives an access request to a terminal status: resolve the approval
// policy from the secrets' tags, consult the channel when required, and
// record the verdict on the request.

package workflow

import (
	"context"
	"os/user"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/approval"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrChannelFailure marks approval-channel errors surfaced through the
// workflow; the request is denied before this is returned.
var ErrChannelFailure = cerr.New("approval channel failure")

// MetadataSource is the slice of the secret store the engine needs.
type MetadataSource interface {
	GetMetadata(uuid string) (store.ListingItem, error)
}

// Policy is the tag-based approval configuration.
type Policy struct {
	// RequireApproval maps a tag to an explicit decision. True forces
	// approval; false is an explicit opt-out that dominates the default.
	RequireApproval map[string]bool
	// DefaultRequireApproval applies to secrets with no listed tag.
	DefaultRequireApproval bool
	// ApprovalTimeout bounds the channel poll.
	ApprovalTimeout time.Duration
}

// Engine resolves policy and drives requests through the channel.
type Engine struct {
	store   MetadataSource
	channel approval.Channel
	policy  Policy
}

// NewEngine builds a workflow engine. channel may be nil when no approval
// backend is configured; requests that need approval then fail.
func NewEngine(meta MetadataSource, channel approval.Channel, policy Policy) *Engine {
	return &Engine{store: meta, channel: channel, policy: policy}
}

// Channel returns the configured approval channel, nil when none.
func (e *Engine) Channel() approval.Channel {
	return e.channel
}

// ProcessRequest fetches metadata for every requested secret, decides
// whether human approval is needed, and writes the terminal status onto
// req. Any failure denies the request and is re-raised.
func (e *Engine) ProcessRequest(ctx context.Context, req *request.Request) (approval.Verdict, error) {
	logger := otelzap.Ctx(ctx)

	items := make([]store.ListingItem, 0, len(req.SecretUUIDs))
	for _, id := range req.SecretUUIDs {
		item, err := e.store.GetMetadata(id)
		if err != nil {
			req.Status = request.StatusDenied
			return "", cerr.Wrapf(err, "failed to fetch metadata for secret %s", id)
		}
		items = append(items, item)
	}

	if !e.needsApproval(items) {
		req.Status = request.StatusApproved
		logger.Info("Request auto-approved by policy", zap.String("request_id", req.ID))
		return approval.VerdictApproved, nil
	}

	if e.channel == nil {
		req.Status = request.StatusDenied
		return "", cerr.Wrap(ErrChannelFailure, "approval required but no channel is configured")
	}

	summary := buildSummary(req, items)
	messageID, err := e.channel.SendApprovalRequest(ctx, summary)
	if err != nil {
		req.Status = request.StatusDenied
		return "", cerr.WithSecondaryError(ErrChannelFailure, err)
	}

	logger.Info("Approval request posted",
		zap.String("request_id", req.ID),
		zap.String("message_id", messageID))

	verdict, err := e.channel.WaitForResponse(ctx, messageID, e.policy.ApprovalTimeout)
	if err != nil {
		req.Status = request.StatusDenied
		return "", cerr.WithSecondaryError(ErrChannelFailure, err)
	}

	switch verdict {
	case approval.VerdictApproved:
		req.Status = request.StatusApproved
	case approval.VerdictDenied:
		req.Status = request.StatusDenied
	case approval.VerdictTimeout:
		req.Status = request.StatusTimeout
	}
	logger.Info("Approval verdict recorded",
		zap.String("request_id", req.ID),
		zap.String("verdict", string(verdict)))
	return verdict, nil
}

// needsApproval: per secret, the first tag listed in the policy decides
// that secret (explicit false opts it out of the default); an unlisted
// secret falls back to the default. The result is the OR across secrets:
// one secret's explicit false never cancels another's true.
func (e *Engine) needsApproval(items []store.ListingItem) bool {
	for _, item := range items {
		decided := false
		for _, tag := range item.Tags {
			v, ok := e.policy.RequireApproval[tag]
			if !ok {
				continue
			}
			if v {
				return true
			}
			decided = true
			break
		}
		if !decided && e.policy.DefaultRequireApproval {
			return true
		}
	}
	return false
}

func buildSummary(req *request.Request, items []store.ListingItem) approval.Summary {
	lines := make([]approval.SecretLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, approval.SecretLine{UUID: item.UUID, Ref: item.Ref})
	}
	return approval.Summary{
		RequestID:       req.ID,
		Requester:       currentUser(),
		Reason:          req.Reason,
		TaskRef:         req.TaskRef,
		DurationSeconds: req.DurationSeconds,
		Secrets:         lines,
	}
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}
