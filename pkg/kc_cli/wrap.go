// pkg/kc_cli/wrap.go

package kc_cli

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_io"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/logger"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Wrap adapts a RuntimeContext-aware command body to cobra's RunE with
// panic recovery, span lifecycle, and expected-error handling.
func Wrap(fn func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger.InitFallback()

		rc := kc_io.NewContext(context.Background(), cmd.Name())
		defer rc.End(&err)

		defer func() {
			if r := recover(); r != nil {
				err = cerr.AssertionFailedf("panic: %v", r)
				rc.Log.Error("Panic recovered", zap.Any("panic", r))
			}
		}()

		err = fn(rc, cmd, args)
		if err != nil && !kc_err.IsExpectedUserError(err) {
			err = cerr.WithStack(err)
		}
		return err
	}
}
