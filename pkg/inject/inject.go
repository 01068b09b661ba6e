// pkg/inject/inject.go
//
// Spawns one child process with secrets present in its environment and
// streams the child's output through the redactor. The grant is consumed
// whether the child succeeds or not.

package inject

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/grant"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/redact"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// MaxBufferBytes caps the raw (pre-redaction) bytes accepted from each of
// the child's pipes.
const MaxBufferBytes = 10 * 1024 * 1024

// DefaultTimeout bounds the whole child run when the caller does not.
const DefaultTimeout = 30 * time.Second

// Sentinel errors.
var (
	ErrEmptyCommand          = cerr.New("command must not be empty")
	ErrGrantNotValid         = cerr.New("grant is not valid")
	ErrGrantNotFound         = cerr.New("grant not found")
	ErrPlaceholderOutOfScope = cerr.New("placeholder resolves outside the grant")
	ErrSpawnFailure          = cerr.New("failed to spawn child process")
	ErrBufferExceeded        = cerr.New("output buffer limit exceeded")
	ErrTimeout               = cerr.New("child process timed out")
)

// placeholderPattern matches a full env-var value of the form
// 2k://<slug-or-uuid>. Partial substrings are never substituted.
var placeholderPattern = regexp.MustCompile(`^2k://(.+)$`)

// ValueSource is the slice of the secret store the injector needs.
type ValueSource interface {
	GetValue(uuid string) (string, error)
	ResolveRef(refOrUUID string) (store.ResolvedSecret, error)
}

// Options tune a single injection.
type Options struct {
	// EnvVarName, when set, receives the value of the grant's first secret.
	EnvVarName string
	// Timeout bounds the whole run; zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the redacted outcome of the child run. ExitCode is -1 when the
// child was terminated by a signal; callers map that to a non-zero status.
type Result struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Injector validates grants, builds child environments, and runs children.
type Injector struct {
	store  ValueSource
	grants *grant.Manager
}

// New returns an injector over the given store and grant manager.
func New(values ValueSource, grants *grant.Manager) *Injector {
	return &Injector{store: values, grants: grants}
}

// Inject runs command with the grant's secrets in its environment. The run
// is bounded by opts.Timeout and by MaxBufferBytes of raw output per pipe;
// see runChild.
func (inj *Injector) Inject(ctx context.Context, grantID string, command []string, opts Options) (Result, error) {
	logger := otelzap.Ctx(ctx)

	// The grant is consumed however this call ends, preflight failures
	// included. A markUsed failure never masks the primary outcome.
	defer func() {
		if err := inj.grants.MarkUsed(grantID); err != nil {
			logger.Debug("markUsed after injection failed", zap.Error(err))
		}
	}()

	// Preflight: nothing is spawned unless all of this passes.
	if len(command) == 0 {
		return Result{}, ErrEmptyCommand
	}
	if !inj.grants.ValidateGrant(grantID) {
		return Result{}, cerr.Wrapf(ErrGrantNotValid, "grant %s", grantID)
	}
	g, ok := inj.grants.GetGrant(grantID)
	if !ok {
		return Result{}, cerr.Wrapf(ErrGrantNotFound, "grant %s", grantID)
	}

	env, err := inj.buildEnv(g, opts.EnvVarName)
	if err != nil {
		return Result{}, err
	}

	secrets := inj.collectSecrets(g)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result, err := runChild(ctx, command, env, secrets, timeout)
	if err != nil {
		return result, err
	}

	logger.Info("Child process completed",
		zap.String("grant_id", grantID),
		zap.Int("exit_code", result.ExitCode))
	return result, nil
}

// buildEnv copies the parent environment, applies explicit injection, and
// substitutes full-value 2k:// placeholders. A placeholder resolving to a
// uuid outside the grant aborts before any child exists.
func (inj *Injector) buildEnv(g *grant.Grant, envVarName string) ([]string, error) {
	env := os.Environ()

	if envVarName != "" {
		value, err := inj.store.GetValue(g.SecretUUIDs[0])
		if err != nil {
			return nil, cerr.Wrapf(err, "failed to resolve value for env var %s", envVarName)
		}
		env = setEnv(env, envVarName, value)
	}

	granted := make(map[string]struct{}, len(g.SecretUUIDs))
	for _, id := range g.SecretUUIDs {
		granted[id] = struct{}{}
	}

	for i, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m := placeholderPattern.FindStringSubmatch(value)
		if m == nil {
			continue
		}
		resolved, err := inj.store.ResolveRef(m[1])
		if err != nil {
			return nil, cerr.Wrapf(err, "failed to resolve placeholder %q in env var %s", value, name)
		}
		if _, ok := granted[resolved.UUID]; !ok {
			return nil, cerr.Wrapf(ErrPlaceholderOutOfScope,
				"env var %s placeholder %q resolved to uuid %s", name, value, resolved.UUID)
		}
		env[i] = name + "=" + resolved.Value
	}
	return env, nil
}

// collectSecrets gathers the values of every granted uuid for redaction,
// silently skipping any that no longer resolve.
func (inj *Injector) collectSecrets(g *grant.Grant) []string {
	var secrets []string
	for _, id := range g.SecretUUIDs {
		value, err := inj.store.GetValue(id)
		if err != nil {
			continue
		}
		secrets = append(secrets, value)
	}
	return secrets
}

func setEnv(env []string, name, value string) []string {
	prefix := name + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// runChild spawns the command and enforces the timeout and buffer caps.
func runChild(ctx context.Context, command, env, secrets []string, timeout time.Duration) (Result, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = env
	cmd.Stdin = nil // child reads from the null device

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, cerr.WithSecondaryError(ErrSpawnFailure, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, cerr.WithSecondaryError(ErrSpawnFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, cerr.Wrapf(ErrSpawnFailure, "%v", err)
	}

	var (
		stdoutBuf, stderrBuf bytes.Buffer
		exceeded             atomic.Bool
		timedOut             atomic.Bool
	)
	kill := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}

	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		kill()
	})
	defer timer.Stop()

	var wg sync.WaitGroup
	drain := func(pipe io.Reader, dst *bytes.Buffer) {
		defer wg.Done()
		redactor := redact.New(dst, secrets)
		defer redactor.Close()

		var raw int64
		chunk := make([]byte, 32*1024)
		for {
			n, readErr := pipe.Read(chunk)
			if n > 0 {
				raw += int64(n)
				if raw > MaxBufferBytes {
					exceeded.Store(true)
					kill()
					return
				}
				if _, werr := redactor.Write(chunk[:n]); werr != nil {
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}
	wg.Add(2)
	go drain(stdoutPipe, &stdoutBuf)
	go drain(stderrPipe, &stderrBuf)

	wg.Wait()
	waitErr := cmd.Wait()
	timer.Stop()

	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}

	if exceeded.Load() {
		return result, cerr.Wrapf(ErrBufferExceeded, "raw output exceeded %d bytes", MaxBufferBytes)
	}
	if timedOut.Load() {
		return result, cerr.Wrapf(ErrTimeout, "budget of %s elapsed", timeout)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if cerr.As(waitErr, &exitErr) {
			// non-zero exit is a result, not an injection error
			return result, nil
		}
		return result, cerr.WithSecondaryError(ErrSpawnFailure, waitErr)
	}
	return result, nil
}
