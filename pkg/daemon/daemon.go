// pkg/daemon/daemon.go
//
// Supervision of the background 2kc server: a detached child process, a
// PID file, and an append-only log file. Stale PID files are detected with
// a zero-signal probe and reaped.

package daemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrNotRunning is returned by Stop and Status when no live server exists.
var ErrNotRunning = cerr.New("server is not running")

// PIDFilePath returns ~/.2kc/server.pid.
func PIDFilePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "server.pid"), nil
}

// LogFilePath returns ~/.2kc/server.log.
func LogFilePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "server.log"), nil
}

// Start launches the server as a detached child running `2kc server run`
// and records its pid. Fails if a live server already holds the PID file.
func Start(ctx context.Context) (int, error) {
	logger := otelzap.Ctx(ctx)

	if pid, err := Status(ctx); err == nil {
		return 0, cerr.Newf("server already running with pid %d", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, cerr.Wrap(err, "failed to resolve own executable")
	}

	logPath, err := LogFilePath()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return 0, cerr.Wrap(err, "failed to create log directory")
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return 0, cerr.Wrapf(err, "failed to open server log %s", logPath)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "server", "run")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, cerr.Wrap(err, "failed to start server process")
	}
	pid := cmd.Process.Pid

	// detach: the supervisor does not wait on the child
	if err := cmd.Process.Release(); err != nil {
		logger.Warn("Failed to release server process handle", zap.Error(err))
	}

	if err := writePIDFile(pid); err != nil {
		return pid, err
	}
	logger.Info("Server started", zap.Int("pid", pid), zap.String("log", logPath))
	return pid, nil
}

// Stop terminates the recorded server process and removes the PID file.
func Stop(ctx context.Context) error {
	logger := otelzap.Ctx(ctx)

	pid, err := Status(ctx)
	if err != nil {
		return err
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return cerr.Wrapf(err, "failed to signal pid %d", pid)
	}
	if err := removePIDFile(); err != nil {
		return err
	}
	logger.Info("Server stopped", zap.Int("pid", pid))
	return nil
}

// Status returns the pid of the live server. A PID file pointing at a dead
// process is stale; it is reaped and ErrNotRunning returned.
func Status(ctx context.Context) (int, error) {
	path, err := PIDFilePath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotRunning
		}
		return 0, cerr.Wrapf(err, "failed to read pid file %s", path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		_ = removePIDFile()
		return 0, cerr.Wrapf(ErrNotRunning, "pid file %s was malformed", path)
	}

	if err := syscall.Kill(pid, 0); err != nil {
		if cerr.Is(err, syscall.ESRCH) {
			otelzap.Ctx(ctx).Info("Reaping stale pid file", zap.Int("pid", pid))
			_ = removePIDFile()
			return 0, ErrNotRunning
		}
		// EPERM means the process exists but belongs to someone else
		return pid, nil
	}
	return pid, nil
}

func writePIDFile(pid int) error {
	path, err := PIDFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return cerr.Wrap(err, "failed to create pid directory")
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600)
}

func removePIDFile() error {
	path, err := PIDFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cerr.Wrapf(err, "failed to remove pid file %s", path)
	}
	return nil
}
