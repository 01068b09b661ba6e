// pkg/orchestrator/audit.go

package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/approval"
)

// Auditor sends audit events to the notification channel. Delivery
// failures are warnings on stderr and never abort the main flow.
type Auditor struct {
	channel approval.Channel
	stderr  io.Writer
	now     func() time.Time
}

// NewAuditor builds an auditor. channel may be nil, in which case events
// are dropped silently.
func NewAuditor(channel approval.Channel, stderr io.Writer) *Auditor {
	return &Auditor{channel: channel, stderr: stderr, now: time.Now}
}

// Emit formats and delivers one audit event.
func (a *Auditor) Emit(ctx context.Context, requestID, event, details string) {
	if a.channel == nil {
		return
	}
	line := a.Format(requestID, event, details)
	if err := a.channel.SendNotification(ctx, line); err != nil {
		fmt.Fprintf(a.stderr, "[audit] Warning: %v\n", err)
	}
}

// Format renders the audit line: [2kc] [<ISO timestamp>] [<requestId>] <event>: <details>
func (a *Auditor) Format(requestID, event, details string) string {
	ts := a.now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("[2kc] [%s] [%s] %s", ts, requestID, event)
	if strings.TrimSpace(details) != "" {
		line += ": " + details
	}
	return line
}

// SetClock overrides the timestamp source. Test hook.
func (a *Auditor) SetClock(now func() time.Time) {
	a.now = now
}
