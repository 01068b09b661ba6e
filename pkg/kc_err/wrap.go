// pkg/kc_err/wrap.go

package kc_err

import (
	"context"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// expectedError marks an error as an expected, user-correctable condition.
// Expected errors are reported without stack traces and do not indicate a
// bug in 2kc.
type expectedError struct {
	err error
}

func (e *expectedError) Error() string { return e.err.Error() }
func (e *expectedError) Unwrap() error { return e.err }

// NewExpectedError wraps err as an expected user error and logs it at warn
// level on the context-scoped logger.
func NewExpectedError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	otelzap.Ctx(ctx).Warn("Expected user error", zap.Error(err))
	return &expectedError{err: err}
}

// IsExpectedUserError reports whether err (or anything it wraps) was flagged
// via NewExpectedError.
func IsExpectedUserError(err error) bool {
	if err == nil {
		return false
	}
	var expected *expectedError
	return cerr.As(err, &expected)
}
