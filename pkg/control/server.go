// Package control serves a small local HTTP API over the running session:
// health, build info, metrics, the current session and its media, the
// conversation, and a seek endpoint.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otherjamesbrown/documind-cli/pkg/buildinfo"
	"github.com/otherjamesbrown/documind-cli/pkg/contentid"
	"github.com/otherjamesbrown/documind-cli/pkg/conversation"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
	"github.com/otherjamesbrown/documind-cli/pkg/upload"
)

// ServiceName is reported by /version.
const ServiceName = "documind"

// Sessions exposes the current session.
type Sessions interface {
	Current() *session.Session
}

// Dialogue exposes the rendered conversation.
type Dialogue interface {
	Render() []conversation.RenderedTurn
}

// Uploads exposes the upload state.
type Uploads interface {
	Status() upload.Status
}

// Options wires the server to the running app. Nil members disable their
// routes (they answer 404).
type Options struct {
	Sessions Sessions
	Dialogue Dialogue
	Uploads  Uploads
	Seeks    seek.Publisher
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// Server is the control API.
type Server struct {
	router *chi.Mux
	opts   Options
	logger logging.Logger

	srv *http.Server
	lis net.Listener
}

// SeekRequest moves playback. Exactly one of Seconds or At is set. When
// SessionID is set the seek is refused unless that session is still current.
type SeekRequest struct {
	Seconds   *float64 `json:"seconds,omitempty"`
	At        string   `json:"at,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	router := chi.NewRouter()
	s := &Server{
		router: router,
		opts:   opts,
		logger: opts.Logger.With(logging.F("component", "control")),
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)

	router.Get("/healthz", s.health)
	router.Get("/version", buildinfo.Handler(ServiceName))
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", s.currentSession)
		r.Get("/sessions/{id}", s.sessionByID)
		r.Get("/media", s.media)
		r.Get("/conversation", s.conversation)
		r.Get("/upload", s.uploadStatus)
		r.Post("/seek", s.seek)
	})
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control listen %s: %w", addr, err)
	}
	s.lis = lis
	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("control API listening", logging.F("addr", lis.Addr().String()))

	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control API stopped", logging.Err(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("control request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", ww.Status()),
			logging.F("request_id", middleware.GetReqID(r.Context())),
			logging.F("duration_ms", time.Since(start).Milliseconds()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) current() *session.Session {
	if s.opts.Sessions == nil {
		return nil
	}
	return s.opts.Sessions.Current()
}

type sessionView struct {
	*session.Session
	Playable bool `json:"playable"`
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess := s.current()
	if sess == nil {
		writeError(w, http.StatusNotFound, "no session")
		return
	}
	writeJSON(w, http.StatusOK, sessionView{Session: sess, Playable: sess.Playable()})
}

func (s *Server) sessionByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if msg := checkSessionID(id); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	sess := s.current()
	if sess == nil || sess.ID != id {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionView{Session: sess, Playable: sess.Playable()})
}

// checkSessionID returns a client-facing message when id is malformed.
func checkSessionID(id string) string {
	if _, err := contentid.Parse(id); err != nil {
		return fmt.Sprintf("invalid session id %q: %v (prefixes: %s)", id, err, strings.Join(contentid.ValidTypes(), ", "))
	}
	return ""
}

// media serves the session's local file. http.ServeContent handles Range.
func (s *Server) media(w http.ResponseWriter, r *http.Request) {
	sess := s.current()
	if sess == nil || sess.SourceLocator == "" {
		writeError(w, http.StatusNotFound, "no session")
		return
	}
	f, err := os.Open(sess.SourceLocator)
	if err != nil {
		s.logger.Warn("opening session media", logging.Err(err))
		writeError(w, http.StatusNotFound, "media not available")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "media not available")
		return
	}
	http.ServeContent(w, r, sess.FileName, info.ModTime(), f)
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	if s.opts.Dialogue == nil {
		writeError(w, http.StatusNotFound, "no conversation")
		return
	}
	turns := s.opts.Dialogue.Render()
	if turns == nil {
		turns = []conversation.RenderedTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) uploadStatus(w http.ResponseWriter, r *http.Request) {
	if s.opts.Uploads == nil {
		writeError(w, http.StatusNotFound, "no uploader")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Uploads.Status())
}

// seek publishes a seek command. It answers 202 whether or not a player is
// mounted; a seek nobody listens to is dropped.
func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	if s.opts.Seeks == nil {
		writeError(w, http.StatusNotFound, "seeking unavailable")
		return
	}
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var target float64
	switch {
	case req.Seconds != nil && req.At != "":
		writeError(w, http.StatusBadRequest, "set either seconds or at")
		return
	case req.Seconds != nil:
		target = *req.Seconds
	case req.At != "":
		secs, err := timeref.ParseTarget(req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		target = secs
	default:
		writeError(w, http.StatusBadRequest, "seconds or at is required")
		return
	}

	if req.SessionID != "" {
		if msg := checkSessionID(req.SessionID); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if sess := s.current(); sess == nil || sess.ID != req.SessionID {
			writeError(w, http.StatusConflict, "session is no longer current")
			return
		}
	}

	cmd := s.opts.Seeks.Publish(target)
	writeJSON(w, http.StatusAccepted, cmd)
}
