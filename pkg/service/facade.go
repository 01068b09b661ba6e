// pkg/service/facade.go
//
// The uniform operation surface over the broker. Two realizations exist:
// Standalone calls the components in-process; Client carries the same
// operations over HTTP to a running 2kc server.

package service

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/inject"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	cerr "github.com/cockroachdb/errors"
)

// HealthInfo is the broker's liveness report.
type HealthInfo struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
	PID    int     `json:"pid"`
}

// Service is the broker capability surface.
type Service interface {
	Health(ctx context.Context) (HealthInfo, error)

	ListSecrets(ctx context.Context) ([]store.ListingItem, error)
	AddSecret(ctx context.Context, ref, value string, tags []string) (string, error)
	RemoveSecret(ctx context.Context, uuid string) error
	GetSecretMetadata(ctx context.Context, uuid string) (store.ListingItem, error)
	ResolveSecret(ctx context.Context, refOrUUID string) (store.ListingItem, error)

	CreateRequest(ctx context.Context, secretUUIDs []string, reason, taskRef string, durationSeconds int) (*request.Request, error)
	ValidateGrant(ctx context.Context, requestID string) (bool, error)
	Inject(ctx context.Context, requestID, envVarName string, command []string) (inject.Result, error)
}

// New resolves the facade for the configured mode.
func New(cfg *config.Config) (Service, error) {
	switch cfg.Mode {
	case config.ModeStandalone:
		return NewStandalone(cfg)
	case config.ModeClient:
		if cfg.Server.AuthToken == "" {
			return nil, cerr.New("client mode requires server.authToken in the configuration")
		}
		return NewClient(cfg), nil
	default:
		return nil, cerr.Newf("unknown mode %q", cfg.Mode)
	}
}
