package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/flowgate/flowgate/internal/forward"
	"github.com/flowgate/flowgate/internal/router"
	"github.com/flowgate/flowgate/internal/status"
	"github.com/flowgate/flowgate/internal/version"
)

// userIDHeaders are checked in order for the user identity.
var userIDHeaders = []string{"user_id", "x-flow-user-id"}

// Config holds server behavior settings.
type Config struct {
	// Mode selects the proxy forwarding discipline: "buffer" or "stream".
	Mode string
}

// Server handles inbound routing requests.
type Server struct {
	cfg    Config
	router router.Router
	fwd    *forward.Forwarder
	logger *slog.Logger
}

// New creates a Server.
func New(cfg Config, rt router.Router, fwd *forward.Forwarder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		router: rt,
		fwd:    fwd,
		logger: logger,
	}
}

// Handler returns the public request mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/route", s.handleRoute)
	mux.HandleFunc("/chat/completions", s.handleProxy)
	mux.HandleFunc("/v1/chat/completions", s.handleProxy)
	return mux
}

// handleRoute accepts a request for asynchronous dispatch and responds
// immediately with the assignment.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id header is missing")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	qr := s.router.Submit(userID, http.MethodPost, r.URL.Path, r.Header, body, true)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "queued",
		"request_id":       qr.ID,
		"assigned_machine": qr.Backend,
	})
}

// handleProxy dispatches a request and relays the backend's response to the
// caller, buffered or streamed per configuration.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id header is missing")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	qr := s.router.Submit(userID, r.Method, r.URL.Path, r.Header, body, false)

	// Block until the backend worker admits this request. On caller
	// disconnect the entry is abandoned and there is nobody to answer.
	if err := s.router.Await(r.Context(), qr); err != nil {
		return
	}

	s.router.BeginForwarding(qr)

	if s.cfg.Mode == "stream" {
		sw := &statusWriter{ResponseWriter: w}
		err := s.fwd.Stream(r.Context(), s.router.ForwardRequest(qr), sw)
		s.router.Complete(qr, err)
		if err != nil && !sw.wroteHeader {
			s.writeForwardError(w, err)
		}
		return
	}

	resp, err := s.fwd.Buffered(r.Context(), s.router.ForwardRequest(qr))
	s.router.Complete(qr, err)
	if err != nil {
		s.writeForwardError(w, err)
		return
	}

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// writeForwardError maps a forwarding failure to a response. Backend
// transport failures are server errors distinct from client input errors,
// so callers can tell retriable infrastructure issues from fixable requests.
func (s *Server) writeForwardError(w http.ResponseWriter, err error) {
	var berr *forward.BackendError
	if errors.As(err, &berr) {
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// AdminHandler returns the observability mux. feed may be nil.
func AdminHandler(rt router.Router, feed *status.Feed, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := rt.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"version": version.String(),
			"components": map[string]any{
				"router": map[string]any{
					"backends":     len(stats.Backends),
					"total_routed": stats.TotalRouted,
					"unique_users": stats.TotalUsers,
					"uptime_secs":  int64(stats.Uptime.Seconds()),
				},
			},
		})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Stats())
	})

	mux.HandleFunc("/status/requests", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Recent())
	})

	if feed != nil {
		mux.Handle("/status/ws", feed)
	}

	return mux
}

// userID extracts the user identity header.
func userID(r *http.Request) (string, bool) {
	for _, h := range userIDHeaders {
		if v := r.Header.Get(h); v != "" {
			return v, true
		}
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusWriter tracks whether the backend's status line was already relayed,
// so transport failures before that point can still become a 502.
type statusWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Flush forwards flushes so streamed chunks reach the caller immediately.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
