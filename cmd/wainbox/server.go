package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wainbox/internal/constants"
	"wainbox/internal/database"
	apperrors "wainbox/internal/errors"
	"wainbox/internal/httputil"
	"wainbox/internal/middleware"
	"wainbox/internal/models"
	"wainbox/internal/security"
	"wainbox/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type contextKey string

const workspaceContextKey contextKey = "workspace"

// Server owns the HTTP surface: webhook, websocket, health and metrics.
type Server struct {
	cfg      *models.Config
	db       *database.Database
	ingestor *service.Ingestor
	hasher   *security.KeyHasher
	logger   *logrus.Logger
	httpSrv  *http.Server
}

func NewServer(cfg *models.Config, db *database.Database, ingestor *service.Ingestor, hasher *security.KeyHasher, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		db:       db,
		ingestor: ingestor,
		hasher:   hasher,
		logger:   logger,
	}

	router := mux.NewRouter()
	router.Use(middleware.Observability(logger))

	router.HandleFunc("/webhook/whatsapp", s.handleWebhookLiveness()).Methods(http.MethodGet)
	router.Handle("/webhook/whatsapp", s.requireWorkspace(s.handleWebhook())).Methods(http.MethodPost)
	router.Handle("/socket", s.requireWorkspace(s.handleSocket()))
	router.HandleFunc("/healthz", s.handleHealth()).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpSrv.Addr).Info("HTTP server starting")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// requireWorkspace resolves the X-Api-Key header to a workspace through the
// deterministic lookup hash. Raw keys are never stored or logged.
func (s *Server) requireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Api-Key")
		if apiKey == "" {
			s.writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		workspace, err := s.db.GetWorkspaceByAPIKeyHash(r.Context(), s.hasher.Hash(apiKey))
		if err != nil {
			s.logger.WithError(err).Error("Workspace lookup failed")
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if workspace == nil {
			s.logger.WithField(service.LogFieldRemoteIP, httputil.GetClientIP(r)).Warn("Rejected request with unknown API key")
			s.writeError(w, http.StatusUnauthorized, "unknown API key")
			return
		}

		ctx := context.WithValue(r.Context(), workspaceContextKey, workspace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func workspaceFromContext(ctx context.Context) *models.Workspace {
	ws, _ := ctx.Value(workspaceContextKey).(*models.Workspace)
	return ws
}

// handleWebhookLiveness answers provider endpoint verification probes.
func (s *Server) handleWebhookLiveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspace := workspaceFromContext(r.Context())
		if workspace == nil {
			s.writeError(w, http.StatusUnauthorized, "missing workspace")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxWebhookBodyBytes))
		if err != nil {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		headers, err := json.Marshal(map[string]string{
			"Content-Type": r.Header.Get("Content-Type"),
			"User-Agent":   r.Header.Get("User-Agent"),
		})
		if err != nil {
			headers = []byte("{}")
		}

		outcome, err := s.ingestor.IngestWebhook(r.Context(), workspace, body, string(headers))
		if err != nil {
			s.writeIngestError(w, err)
			return
		}

		response := map[string]interface{}{"ok": true}
		if outcome.Duplicate {
			response["idempotent"] = true
		}
		s.writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// writeIngestError maps pipeline error codes onto HTTP statuses. Invalid
// payloads and unresolvable instances are the caller's fault; everything
// else is ours.
func (s *Server) writeIngestError(w http.ResponseWriter, err error) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeUnknownInstance:
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case apperrors.ErrCodeAuthentication:
		s.writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.WithError(err).Error("Webhook processing failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"ok":    false,
		"error": message,
	})
}
