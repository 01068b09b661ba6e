// pkg/server/server.go
//
// HTTP surface over the standalone facade. Every /api route sits behind
// bearer authentication; /health is exempt. Error bodies are
// {error, statusCode}; 5xx responses elide the internal message.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/crypto"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/grant"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/inject"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/service"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/workflow"
	cerr "github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Server exposes the broker facade over HTTP.
type Server struct {
	svc    service.Service
	token  string
	addr   string
	router *mux.Router
}

// New builds the server. A missing auth token is a hard failure: the
// broker never listens unauthenticated.
func New(cfg *config.Config, svc service.Service) (*Server, error) {
	if cfg.Server.AuthToken == "" {
		return nil, cerr.New("server.authToken is not configured; run '2kc server token generate' first")
	}

	s := &Server{
		svc:   svc,
		token: cfg.Server.AuthToken,
		addr:  fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the configured HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs until ctx is cancelled or SIGINT/SIGTERM arrives,
// then shuts down gracefully. Running injector children are not signalled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	logger := otelzap.Ctx(ctx)

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	// reap expired grants while the server lives
	if standalone, ok := s.svc.(*service.Standalone); ok {
		janitorCtx, cancelJanitor := context.WithCancel(ctx)
		defer cancelJanitor()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-janitorCtx.Done():
					return
				case <-ticker.C:
					standalone.Grants().Cleanup()
				}
			}
		}()
	}

	logger.Info("2kc server listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		return cerr.Wrap(err, "server failed")
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Info("Shutting down on signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/secrets", s.handleListSecrets).Methods(http.MethodGet)
	api.HandleFunc("/secrets", s.handleAddSecret).Methods(http.MethodPost)
	api.HandleFunc("/secrets/resolve/{refOrUuid}", s.handleResolveSecret).Methods(http.MethodGet)
	api.HandleFunc("/secrets/{uuid}", s.handleGetSecret).Methods(http.MethodGet)
	api.HandleFunc("/secrets/{uuid}", s.handleRemoveSecret).Methods(http.MethodDelete)
	api.HandleFunc("/requests", s.handleCreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/grants/{requestId}", s.handleValidateGrant).Methods(http.MethodGet)
	api.HandleFunc("/inject", s.handleInject).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not Found", StatusCode: http.StatusNotFound})
	})
	return r
}

// authMiddleware constant-time-compares the bearer token. Missing,
// malformed, and non-matching tokens all produce the same 401 body.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !crypto.ConstantTimeCompare(s.token, token) {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Error:      "Invalid or missing auth token",
				StatusCode: http.StatusUnauthorized,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Health(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListSecrets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []store.ListingItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddSecret(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ref   string   `json:"ref"`
		Value string   `json:"value"`
		Tags  []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body", StatusCode: http.StatusBadRequest})
		return
	}
	uuid, err := s.svc.AddSecret(r.Context(), body.Ref, body.Value, body.Tags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uuid": uuid})
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.GetSecretMetadata(r.Context(), mux.Vars(r)["uuid"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleResolveSecret(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.ResolveSecret(r.Context(), mux.Vars(r)["refOrUuid"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRemoveSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveSecret(r.Context(), mux.Vars(r)["uuid"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SecretUUIDs []string `json:"secretUuids"`
		Reason      string   `json:"reason"`
		TaskRef     string   `json:"taskRef"`
		Duration    int      `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body", StatusCode: http.StatusBadRequest})
		return
	}
	req, err := s.svc.CreateRequest(r.Context(), body.SecretUUIDs, body.Reason, body.TaskRef, body.Duration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleValidateGrant(w http.ResponseWriter, r *http.Request) {
	valid, err := s.svc.ValidateGrant(r.Context(), mux.Vars(r)["requestId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, valid)
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID  string   `json:"requestId"`
		EnvVarName string   `json:"envVarName"`
		Command    []string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body", StatusCode: http.StatusBadRequest})
		return
	}
	result, err := s.svc.Inject(r.Context(), body.RequestID, body.EnvVarName, body.Command)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeError maps domain errors to HTTP statuses. Internal errors are
// logged in full but serialized without the message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		otelzap.Ctx(r.Context()).Error("Request failed", zap.Error(err))
		writeJSON(w, status, errorBody{Error: "Internal Server Error", StatusCode: status})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), StatusCode: status})
}

func statusFor(err error) int {
	switch {
	case cerr.Is(err, store.ErrNotFound),
		cerr.Is(err, grant.ErrNotFound),
		cerr.Is(err, service.ErrRequestNotFound):
		return http.StatusNotFound
	case cerr.Is(err, store.ErrDuplicateRef):
		return http.StatusConflict
	case cerr.Is(err, store.ErrInvalidRef),
		cerr.Is(err, request.ErrInvalidInput),
		cerr.Is(err, inject.ErrEmptyCommand):
		return http.StatusBadRequest
	case cerr.Is(err, grant.ErrNotApproved),
		cerr.Is(err, grant.ErrNotValid),
		cerr.Is(err, inject.ErrGrantNotValid),
		cerr.Is(err, inject.ErrPlaceholderOutOfScope):
		return http.StatusForbidden
	case cerr.Is(err, inject.ErrGrantNotFound):
		return http.StatusNotFound
	case cerr.Is(err, workflow.ErrChannelFailure):
		return http.StatusBadGateway
	case kc_err.IsExpectedUserError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
