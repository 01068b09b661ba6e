// pkg/install/install.go
//
// Installs a 2kc symlink into a sibling agent tool's workspace so the
// agent can invoke the broker without PATH changes.

package install

import (
	"context"
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Symlink drops <workspace>/bin/2kc -> the current executable. Idempotent:
// an existing symlink is replaced; anything else at that path is refused.
func Symlink(ctx context.Context, workspace string) (string, error) {
	logger := otelzap.Ctx(ctx)

	exe, err := os.Executable()
	if err != nil {
		return "", cerr.Wrap(err, "failed to resolve own executable")
	}

	binDir := filepath.Join(workspace, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return "", cerr.Wrapf(err, "failed to create %s", binDir)
	}

	link := filepath.Join(binDir, "2kc")
	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return "", cerr.Newf("%s exists and is not a symlink; refusing to replace it", link)
		}
		if err := os.Remove(link); err != nil {
			return "", cerr.Wrapf(err, "failed to replace existing symlink %s", link)
		}
	} else if !os.IsNotExist(err) {
		return "", cerr.Wrapf(err, "failed to inspect %s", link)
	}

	if err := os.Symlink(exe, link); err != nil {
		return "", cerr.Wrapf(err, "failed to create symlink %s", link)
	}

	logger.Info("Installed workspace symlink",
		zap.String("link", link),
		zap.String("target", exe))
	return link, nil
}
