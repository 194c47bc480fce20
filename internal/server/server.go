package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/marwant/zizh/internal/play"
	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/repository"
	"github.com/marwant/zizh/internal/session"
	"github.com/marwant/zizh/internal/viewmodel"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the view model's intents over HTTP for remote control.
type Server struct {
	vm      *viewmodel.ViewModel
	arbiter *session.Arbiter
	metrics http.Handler
	addr    string
	router  chi.Router
}

// RateRequest is the body of PUT /api/slowmotion/rate.
type RateRequest struct {
	Rate float64 `json:"rate"`
}

// New builds the router. metricsHandler may be nil, in which case /metrics
// is not served.
func New(addr string, vm *viewmodel.ViewModel, arbiter *session.Arbiter, metricsHandler http.Handler) *Server {
	s := &Server{
		vm:      vm,
		arbiter: arbiter,
		metrics: metricsHandler,
		addr:    addr,
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/recordings", s.handleRecordings)
		r.Delete("/recordings/{id}", s.handleDeleteRecording)
		r.Post("/recordings/{id}/play", s.handlePlayRecording)
		r.Post("/recording/toggle", s.handleToggleRecording)
		r.Post("/playback/stop", s.handleStopPlayback)
		r.Post("/slowmotion/toggle", s.handleToggleSlowMotion)
		r.Put("/slowmotion/rate", s.handleSetRate)
		r.Post("/session/interrupt", s.handleInterrupt)
		r.Post("/session/resume", s.handleResume)
		r.Post("/permission", s.handlePermission)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Starting zizh web server",
			"address", s.addr,
			"local_url", fmt.Sprintf("http://%s%s", getLocalIP(), portSuffix(s.addr)))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("Web server stopped")
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.vm.State())
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if err := s.vm.SyncRecordings(r.Context()); err != nil {
		s.sendError(w, err, "operation", "sync_recordings")
		return
	}
	recs := s.vm.State().Recordings
	if recs == nil {
		recs = []recording.Recording{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordings":  recs,
		"total_count": len(recs),
	})
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid recording id")
		return uuid.Nil, false
	}
	return id, true
}

// lookup resolves the {id} URL parameter to a row of the current list.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (recording.Recording, bool) {
	id, ok := s.parseID(w, r)
	if !ok {
		return recording.Recording{}, false
	}
	for _, rec := range s.vm.State().Recordings {
		if rec.ID == id {
			return rec, true
		}
	}
	s.sendErrorResponse(w, http.StatusNotFound, "Recording not found", "id", id)
	return recording.Recording{}, false
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}
	if err := s.vm.DeleteRecordingsByID(r.Context(), id); err != nil {
		s.sendError(w, err, "operation", "delete_recording", "id", id)
		return
	}
	writeSuccess(w, "Recording deleted")
}

func (s *Server) handlePlayRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.vm.PlayRecording(r.Context(), rec); err != nil {
		s.sendError(w, err, "operation", "play_recording", "id", rec.ID)
		return
	}
	writeSuccess(w, "Playback started")
}

func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.vm.ToggleRecording(r.Context()); err != nil {
		s.sendError(w, err, "operation", "toggle_recording")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"is_recording": s.vm.State().IsRecording,
	})
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	if err := s.vm.StopPlaying(r.Context()); err != nil {
		s.sendError(w, err, "operation", "stop_playback")
		return
	}
	writeSuccess(w, "Playback stopped")
}

func (s *Server) handleToggleSlowMotion(w http.ResponseWriter, r *http.Request) {
	if err := s.vm.ToggleSlowMotion(r.Context()); err != nil {
		s.sendError(w, err, "operation", "toggle_slow_motion")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"is_slow_motion": s.vm.State().IsSlowMotion,
	})
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "error", err)
		return
	}
	if err := s.vm.SetRate(r.Context(), req.Rate); err != nil {
		s.sendError(w, err, "operation", "set_rate")
		return
	}
	writeSuccess(w, "Rate updated")
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	s.arbiter.Interrupt()
	writeSuccess(w, "Audio session interrupted")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.arbiter.EndInterruption()
	writeSuccess(w, "Audio session resumed")
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	granted, err := s.vm.RequestPermission(r.Context())
	if err != nil {
		s.sendError(w, err, "operation", "request_permission")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"granted": granted,
	})
}

// sendError maps a domain error to a status code.
func (s *Server) sendError(w http.ResponseWriter, err error, logContext ...interface{}) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, viewmodel.ErrStopped), errors.Is(err, play.ErrServiceClosed), errors.Is(err, repository.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, viewmodel.ErrNotListed):
		status = http.StatusNotFound
	case errors.Is(err, play.ErrInvalidMediaAddress):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, viewmodel.ErrInvalidRate), errors.Is(err, viewmodel.ErrIndexOutOfRange):
		status = http.StatusBadRequest
	}
	s.sendErrorResponse(w, status, err.Error(), logContext...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func portSuffix(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return ""
	}
	return ":" + port
}

func getLocalIP() string {
	// Connecting a UDP socket sends nothing but selects the outbound address.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
