// pkg/logger/paths.go

package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
)

// FindWritableLogPath returns the first log file path whose directory can be
// created and written. Preference order: ~/.2kc/2kc.log, then the system
// temp directory.
func FindWritableLogPath() (string, error) {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".2kc", "2kc.log"))
	}
	candidates = append(candidates, filepath.Join(os.TempDir(), "2kc.log"))

	var lastErr error
	for _, path := range candidates {
		if err := ensureLogPermissions(path); err != nil {
			lastErr = err
			continue
		}
		return path, nil
	}
	return "", lastErr
}

// GetLogFileWriter opens the log file for appending.
func GetLogFileWriter(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

// ensureLogPermissions creates the log directory (0700) and file (0600).
// Log files can end up holding command names and slugs, so they get the
// same restrictive mode as the secret store.
func ensureLogPermissions(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		f.Close()
	}
	return os.Chmod(path, 0600)
}
