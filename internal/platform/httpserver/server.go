package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	callvoteregister "istruecaller/contexts/trust-safety/call-vote-register"
	websocketadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/websocket"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	registererrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	registerhttp "istruecaller/contexts/trust-safety/call-vote-register/transport/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "istruecaller/internal/platform/httpserver/docs"
)

const maxRequestBodyBytes = 1 << 20

type Server struct {
	mux      *http.ServeMux
	http     *http.Server
	logger   *slog.Logger
	addr     string
	register callvoteregister.Module
	hub      *websocketadapter.Hub
	gatherer prometheus.Gatherer
}

// New builds the API server. hub and gatherer are optional; without them the
// watch and metrics routes are not mounted.
func New(
	register callvoteregister.Module,
	hub *websocketadapter.Hub,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		register: register,
		hub:      hub,
		gatherer: gatherer,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.mux.HandleFunc("POST /v1/calls/{call_id}/votes", s.handleAddVote)
	s.mux.HandleFunc("GET /v1/calls/{call_id}/votes", s.handleGetVotes)
	s.mux.HandleFunc("DELETE /v1/calls/{call_id}/votes", s.handleClearCallVotes)
	s.mux.HandleFunc("GET /v1/calls/{call_id}/verdict", s.handleCheckVoteResult)
	s.mux.HandleFunc("GET /v1/calls", s.handleListCallIDs)
	s.mux.HandleFunc("DELETE /v1/calls", s.handleClearAllVotes)

	if s.hub != nil {
		s.mux.HandleFunc("GET /ws/calls/{call_id}", s.handleWatchCall)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, registerhttp.HealthResponse{Status: "ok"})
}

func (s *Server) handleAddVote(w http.ResponseWriter, r *http.Request) {
	var req registerhttp.AddVoteRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeRegisterError(w, http.StatusBadRequest, "invalid_json", describeDecodeError(err))
		return
	}
	if decoder.More() {
		writeRegisterError(w, http.StatusBadRequest, "invalid_json", "request body must hold a single JSON object")
		return
	}

	resp, err := s.register.Handler.AddVoteHandler(r.Context(), r.PathValue("call_id"), req)
	if err != nil {
		s.writeRegisterDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckVoteResult(w http.ResponseWriter, r *http.Request) {
	resp, err := s.register.Handler.CheckVoteResultHandler(r.Context(), r.PathValue("call_id"))
	if err != nil {
		s.writeRegisterDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCallVotes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.register.Handler.ClearCallVotesHandler(r.Context(), r.PathValue("call_id"))
	if err != nil {
		s.writeRegisterDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearAllVotes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.register.Handler.ClearAllVotesHandler(r.Context())
	if err != nil {
		s.writeRegisterDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCallIDs(w http.ResponseWriter, r *http.Request) {
	resp, err := s.register.Handler.ListCallIDsHandler(r.Context())
	if err != nil {
		s.writeRegisterDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetVotes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.register.Handler.GetVotesHandler(r.Context(), r.PathValue("call_id"))
	if err != nil {
		s.writeRegisterDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchCall(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	if _, err := s.register.Handler.CurrentVerdictUpdate(r.Context(), callID); err != nil {
		s.writeRegisterDomainError(w, r, err)
		return
	}
	// The sent verdict is re-read once the watcher is registered with the hub.
	s.hub.Serve(w, r, callID, func(ctx context.Context) (entities.VerdictUpdate, error) {
		return s.register.Handler.CurrentVerdictUpdate(ctx, callID)
	})
}

func (s *Server) writeRegisterDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registererrors.ErrInvalidCallID):
		writeRegisterError(w, http.StatusBadRequest, "invalid_call_id", err.Error())
	case errors.Is(err, registererrors.ErrInvalidVotePayload):
		writeRegisterError(w, http.StatusBadRequest, "invalid_vote", err.Error())
	case errors.Is(err, registererrors.ErrRegisterClosed):
		writeRegisterError(w, http.StatusServiceUnavailable, "register_closed", err.Error())
	default:
		s.logger.Error("register request failed",
			"event", "http_register_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "transport",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeRegisterError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeRegisterError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, registerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func describeDecodeError(err error) string {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &maxBytes):
		return fmt.Sprintf("request body exceeds %d bytes", maxBytes.Limit)
	default:
		return "request body must be valid JSON: " + err.Error()
	}
}
