// pkg/orchestrator/orchestrator.go
//
// End-to-end access attempt: build the request, obtain a grant through the
// workflow, inject into a child process, forward its output, and emit the
// audit trail. This is what `2kc request` runs.

package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/grant"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/inject"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/service"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Options for one access attempt.
type Options struct {
	// Secrets are refs or uuids; resolved against the store before the
	// request is created.
	Secrets         []string
	Reason          string
	TaskRef         string
	DurationSeconds int
	EnvVarName      string
	Command         []string
}

// Orchestrator drives the facade and emits audit events.
type Orchestrator struct {
	svc     service.Service
	auditor *Auditor
	stdout  io.Writer
	stderr  io.Writer
}

// New builds an orchestrator writing forwarded child output to the given
// writers.
func New(svc service.Service, auditor *Auditor, stdout, stderr io.Writer) *Orchestrator {
	return &Orchestrator{svc: svc, auditor: auditor, stdout: stdout, stderr: stderr}
}

// Run executes the full sequence. It returns nil on success; otherwise an
// error for which kc_err.GetExitCode yields the child's code when the child
// exited non-zero, and 1 in every other case.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	logger := otelzap.Ctx(ctx)

	if opts.DurationSeconds < 0 {
		return kc_err.NewExpectedError(ctx, cerr.New("duration must be a positive number of seconds"))
	}
	if len(opts.Command) == 0 {
		return kc_err.NewExpectedError(ctx, cerr.New("no command given; pass it after -- or via --cmd"))
	}

	uuids := make([]string, 0, len(opts.Secrets))
	for _, ref := range opts.Secrets {
		item, err := o.svc.ResolveSecret(ctx, ref)
		if err != nil {
			return kc_err.NewExpectedError(ctx, rewriteUserMessage(err))
		}
		uuids = append(uuids, item.UUID)
	}

	req, err := o.svc.CreateRequest(ctx, uuids, opts.Reason, opts.TaskRef, opts.DurationSeconds)
	if err != nil {
		return kc_err.NewExpectedError(ctx, rewriteUserMessage(err))
	}
	o.auditor.Emit(ctx, req.ID, "Request created",
		fmt.Sprintf("secrets=%s reason=%q task=%s duration=%ds",
			strings.Join(req.SecretUUIDs, ","), req.Reason, req.TaskRef, req.DurationSeconds))

	approved, err := o.svc.ValidateGrant(ctx, req.ID)
	if err != nil {
		o.auditor.Emit(ctx, req.ID, "Approval failed", err.Error())
		return rewriteUserMessage(err)
	}
	verdict := "approved"
	if !approved {
		verdict = "denied"
	}
	o.auditor.Emit(ctx, req.ID, "Approval "+verdict, "")

	if !approved {
		return kc_err.NewExpectedError(ctx, cerr.Newf("access request %s was not approved", req.ID))
	}

	// metadata only: the audit trail never carries a secret value
	o.auditor.Emit(ctx, req.ID, "Secret injected",
		fmt.Sprintf("env=%s command=%q", opts.EnvVarName, strings.Join(opts.Command, " ")))

	result, injectErr := o.svc.Inject(ctx, req.ID, opts.EnvVarName, opts.Command)

	o.auditor.Emit(ctx, req.ID, "Grant used",
		fmt.Sprintf("exitCode=%d", result.ExitCode))

	fmt.Fprint(o.stdout, result.Stdout)
	fmt.Fprint(o.stderr, result.Stderr)

	if injectErr != nil {
		return rewriteUserMessage(injectErr)
	}
	if result.ExitCode != 0 {
		logger.Info("Child exited non-zero", zap.Int("exit_code", result.ExitCode))
		return kc_err.NewChildExitError(result.ExitCode)
	}
	return nil
}

// rewriteUserMessage turns common internal phrasings into the messages the
// CLI shows.
func rewriteUserMessage(err error) error {
	switch {
	case cerr.Is(err, store.ErrNotFound):
		return cerr.Newf("Secret UUID not found: %v", err)
	case cerr.Is(err, grant.ErrNotValid), cerr.Is(err, inject.ErrGrantNotValid):
		return cerr.Newf("Grant expired: %v", err)
	default:
		return err
	}
}
