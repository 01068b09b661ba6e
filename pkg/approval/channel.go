// pkg/approval/channel.go

package approval

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Verdict is the outcome of a human approval poll.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictDenied   Verdict = "denied"
	VerdictTimeout  Verdict = "timeout"
)

// Channel is the capability a human approval backend provides. A message
// id returned by SendApprovalRequest is an opaque handle WaitForResponse
// understands; no other structure is assumed.
type Channel interface {
	// SendApprovalRequest posts a human-readable summary and returns a
	// handle for polling the verdict.
	SendApprovalRequest(ctx context.Context, summary Summary) (string, error)

	// WaitForResponse blocks until a verdict is observable or the timeout
	// elapses, in which case it returns VerdictTimeout with a nil error.
	WaitForResponse(ctx context.Context, messageID string, timeout time.Duration) (Verdict, error)

	// SendNotification posts a fire-and-forget audit event. Failures
	// surface as an error; callers decide whether that is fatal.
	SendNotification(ctx context.Context, text string) error
}

// SecretLine names one secret in an approval summary. Metadata only.
type SecretLine struct {
	UUID string
	Ref  string
}

// Summary is the information a human needs to judge an access request.
type Summary struct {
	RequestID       string
	Requester       string
	Reason          string
	TaskRef         string
	DurationSeconds int
	Secrets         []SecretLine
}

// Render formats the summary for posting to a channel.
func (s Summary) Render() string {
	var sb strings.Builder
	sb.WriteString("**2kc access request**\n")
	fmt.Fprintf(&sb, "Request: %s\n", s.RequestID)
	fmt.Fprintf(&sb, "Requester: %s\n", s.Requester)
	fmt.Fprintf(&sb, "Reason: %s\n", s.Reason)
	fmt.Fprintf(&sb, "Task: %s\n", s.TaskRef)
	fmt.Fprintf(&sb, "Duration: %ds\n", s.DurationSeconds)
	sb.WriteString("Secrets:\n")
	for _, line := range s.Secrets {
		fmt.Fprintf(&sb, "  - %s (%s)\n", line.Ref, line.UUID)
	}
	sb.WriteString("React ✅ to approve or ❌ to deny.")
	return sb.String()
}
