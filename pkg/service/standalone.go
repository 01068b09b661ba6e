// pkg/service/standalone.go

package service

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/approval"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/grant"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/inject"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/workflow"
	cerr "github.com/cockroachdb/errors"
)

// ErrRequestNotFound is returned for grant/inject calls naming an unknown
// request.
var ErrRequestNotFound = cerr.New("request not found")

// Standalone is the in-process realization of the facade.
type Standalone struct {
	store    *store.Store
	log      *request.Log
	grants   *grant.Manager
	engine   *workflow.Engine
	injector *inject.Injector

	mu             sync.Mutex
	grantByRequest map[string]string

	startedAt time.Time
}

// NewStandalone wires the broker components from config.
func NewStandalone(cfg *config.Config) (*Standalone, error) {
	st := store.New(cfg.Store.Path)
	grants := grant.NewManager()

	var channel approval.Channel
	if cfg.Discord != nil && cfg.Discord.WebhookURL != "" {
		ch, err := approval.NewDiscordChannel(cfg.Discord.WebhookURL, cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			return nil, err
		}
		channel = ch
	}

	policy := workflow.Policy{
		RequireApproval:        cfg.RequireApproval,
		DefaultRequireApproval: cfg.DefaultRequireApproval,
		ApprovalTimeout:        time.Duration(cfg.ApprovalTimeoutMs) * time.Millisecond,
	}

	return &Standalone{
		store:          st,
		log:            request.NewLog(),
		grants:         grants,
		engine:         workflow.NewEngine(st, channel, policy),
		injector:       inject.New(st, grants),
		grantByRequest: make(map[string]string),
		startedAt:      time.Now(),
	}, nil
}

// Channel exposes the configured approval channel for audit use; nil when
// none is configured.
func (s *Standalone) Channel() approval.Channel {
	return s.engine.Channel()
}

// Grants exposes the grant manager for maintenance (cleanup, revocation).
func (s *Standalone) Grants() *grant.Manager {
	return s.grants
}

func (s *Standalone) Health(ctx context.Context) (HealthInfo, error) {
	return HealthInfo{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Seconds(),
		PID:    os.Getpid(),
	}, nil
}

func (s *Standalone) ListSecrets(ctx context.Context) ([]store.ListingItem, error) {
	return s.store.List()
}

func (s *Standalone) AddSecret(ctx context.Context, ref, value string, tags []string) (string, error) {
	return s.store.Add(ref, value, tags)
}

func (s *Standalone) RemoveSecret(ctx context.Context, uuid string) error {
	return s.store.Remove(uuid)
}

func (s *Standalone) GetSecretMetadata(ctx context.Context, uuid string) (store.ListingItem, error) {
	return s.store.GetMetadata(uuid)
}

func (s *Standalone) ResolveSecret(ctx context.Context, refOrUUID string) (store.ListingItem, error) {
	return s.store.Resolve(refOrUUID)
}

func (s *Standalone) CreateRequest(ctx context.Context, secretUUIDs []string, reason, taskRef string, durationSeconds int) (*request.Request, error) {
	req, err := request.New(secretUUIDs, reason, taskRef, durationSeconds)
	if err != nil {
		return nil, err
	}
	s.log.Append(req)
	return req.Copy(), nil
}

// ValidateGrant composes the workflow engine and grant manager: the first
// call for a request runs the approval workflow and, on approval, creates
// the grant; later calls re-validate the existing grant.
func (s *Standalone) ValidateGrant(ctx context.Context, requestID string) (bool, error) {
	req := s.log.Live(requestID)
	if req == nil {
		return false, cerr.Wrapf(ErrRequestNotFound, "request %s", requestID)
	}

	if grantID, ok := s.grantID(requestID); ok {
		return s.grants.ValidateGrant(grantID), nil
	}

	verdict, err := s.engine.ProcessRequest(ctx, req)
	if err != nil {
		return false, err
	}
	if verdict != approval.VerdictApproved {
		return false, nil
	}

	g, err := s.grants.CreateGrant(req)
	if err != nil {
		return false, err
	}
	s.setGrantID(requestID, g.ID)
	return true, nil
}

func (s *Standalone) Inject(ctx context.Context, requestID, envVarName string, command []string) (inject.Result, error) {
	grantID, ok := s.grantID(requestID)
	if !ok {
		return inject.Result{}, cerr.Wrapf(inject.ErrGrantNotFound, "no grant for request %s", requestID)
	}
	return s.injector.Inject(ctx, grantID, command, inject.Options{EnvVarName: envVarName})
}

func (s *Standalone) grantID(requestID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.grantByRequest[requestID]
	return id, ok
}

func (s *Standalone) setGrantID(requestID, grantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grantByRequest[requestID] = grantID
}
