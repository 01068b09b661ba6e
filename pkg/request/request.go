// pkg/request/request.go
//
// Access request value object. A request is created pending and mutated
// exactly once to a terminal status by the workflow engine. Requests are
// in-memory only.

package request

import (
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Status of an access request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusTimeout  Status = "timeout"
	StatusExpired  Status = "expired"
)

// Duration bounds in seconds.
const (
	MinDurationSeconds     = 30
	MaxDurationSeconds     = 3600
	DefaultDurationSeconds = 300
)

// ErrInvalidInput marks request validation failures.
var ErrInvalidInput = cerr.New("invalid request input")

// Request is one access attempt: which secrets, why, for how long.
type Request struct {
	ID              string   `json:"id"`
	SecretUUIDs     []string `json:"secretUuids" validate:"required,min=1,dive,uuid4"`
	Reason          string   `json:"reason" validate:"required"`
	TaskRef         string   `json:"taskRef" validate:"required"`
	DurationSeconds int      `json:"durationSeconds"`
	RequestedAt     string   `json:"requestedAt"`
	Status          Status   `json:"status"`
}

var validate = validator.New()

// New validates the fields and builds a pending request. SecretUUIDs are
// deduplicated preserving order; durationSeconds 0 means the default.
func New(secretUUIDs []string, reason, taskRef string, durationSeconds int) (*Request, error) {
	reason = strings.TrimSpace(reason)
	taskRef = strings.TrimSpace(taskRef)

	if durationSeconds == 0 {
		durationSeconds = DefaultDurationSeconds
	}
	if durationSeconds < MinDurationSeconds {
		return nil, cerr.Wrapf(ErrInvalidInput, "durationSeconds %d is below the minimum of %d", durationSeconds, MinDurationSeconds)
	}
	if durationSeconds > MaxDurationSeconds {
		return nil, cerr.Wrapf(ErrInvalidInput, "durationSeconds %d exceeds the maximum of %d", durationSeconds, MaxDurationSeconds)
	}

	deduped := make([]string, 0, len(secretUUIDs))
	seen := make(map[string]struct{}, len(secretUUIDs))
	for _, id := range secretUUIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}

	req := &Request{
		ID:              uuid.NewString(),
		SecretUUIDs:     deduped,
		Reason:          reason,
		TaskRef:         taskRef,
		DurationSeconds: durationSeconds,
		RequestedAt:     time.Now().UTC().Format(time.RFC3339),
		Status:          StatusPending,
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if cerr.As(err, &verrs) && len(verrs) > 0 {
			return nil, cerr.Wrapf(ErrInvalidInput, "field %s failed %s validation", verrs[0].Field(), verrs[0].Tag())
		}
		return nil, cerr.Wrap(ErrInvalidInput, err.Error())
	}
	return req, nil
}

// Duration returns the requested grant lifetime.
func (r *Request) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// Copy returns a deep copy so callers cannot alias internal state.
func (r *Request) Copy() *Request {
	cp := *r
	cp.SecretUUIDs = make([]string, len(r.SecretUUIDs))
	copy(cp.SecretUUIDs, r.SecretUUIDs)
	return &cp
}
