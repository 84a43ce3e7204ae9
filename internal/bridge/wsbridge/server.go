// Package wsbridge exposes bridge channels over HTTP and websockets.
//
// Routes:
//
//	GET  /healthz
//	GET  /scan/results                        drains the result history
//	POST /channels/{channel}/methods/{method} body is the JSON argument value
//	GET  /channels/{channel}/events           websocket: events out, calls in
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/bridge"
	"github.com/srg/tracktag/internal/platform"
)

const (
	// DefaultQueueSize is the per-connection outbound buffer.
	DefaultQueueSize = 256
	// DefaultMethodTimeout bounds a single HTTP method call.
	DefaultMethodTimeout = 20 * time.Second

	maxBodyBytes = 1 << 16
)

// ResultSource supplies buffered scan results to polling clients.
type ResultSource interface {
	Drain(max int) ([]platform.ScanResult, error)
}

// Options configures a Server.
type Options struct {
	QueueSize     int
	MethodTimeout time.Duration
	// CheckOrigin is passed to the websocket upgrader; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

type channelPair struct {
	methods *bridge.MethodChannel
	events  *bridge.EventChannel
}

// Server serves registered channels.
type Server struct {
	opts     Options
	logger   *logrus.Logger
	results  ResultSource
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	channels map[string]channelPair
	conns    sync.WaitGroup
}

// New creates a server. results may be nil, in which case /scan/results
// answers 404.
func New(opts Options, results ResultSource, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MethodTimeout <= 0 {
		opts.MethodTimeout = DefaultMethodTimeout
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Server{
		opts:     opts,
		logger:   logger,
		results:  results,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		channels: make(map[string]channelPair),
	}
}

// Register exposes a method channel and, optionally, its event channel under
// the method channel's name.
func (s *Server) Register(methods *bridge.MethodChannel, events *bridge.EventChannel) {
	s.mu.Lock()
	s.channels[methods.Name()] = channelPair{methods: methods, events: events}
	s.mu.Unlock()
}

func (s *Server) lookup(name string) (channelPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.channels[name]
	return p, ok
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoverJSON(s.logger))
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.health)
	r.Get("/scan/results", s.scanResults)
	r.Route("/channels/{channel}", func(cr chi.Router) {
		cr.With(middleware.Timeout(s.opts.MethodTimeout)).Post("/methods/{method}", s.invoke)
		cr.Get("/events", s.events)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "channels": names})
}

func (s *Server) scanResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusNotFound, bridge.NewChannelError(bridge.CodeNotImplemented, "scan results are not exposed"))
		return
	}

	max := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, bridge.NewChannelError(bridge.CodeInvalidArguments, "max must be a non-negative integer"))
			return
		}
		max = v
	}

	items, err := s.results.Drain(max)
	if err != nil {
		writeError(w, http.StatusInternalServerError, bridge.AsChannelError(err))
		return
	}
	if items == nil {
		items = []platform.ScanResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.lookup(chi.URLParam(r, "channel"))
	if !ok {
		writeError(w, http.StatusNotFound, bridge.NewChannelError(bridge.CodeNotImplemented, "unknown channel"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, bridge.NewChannelError(bridge.CodeInvalidArguments, "failed to read body"))
		return
	}

	call := bridge.Call{
		ID:     middleware.GetReqID(r.Context()),
		Method: chi.URLParam(r, "method"),
		Args:   json.RawMessage(body),
	}
	reply := pair.methods.Dispatch(r.Context(), call)
	if reply.Error != nil {
		writeJSON(w, StatusFor(reply.Error.Code), reply)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.lookup(chi.URLParam(r, "channel"))
	if !ok || pair.events == nil {
		writeError(w, http.StatusNotFound, bridge.NewChannelError(bridge.CodeNotImplemented, "unknown event channel"))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already answered the client
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()
	newConn(ws, pair, s.opts.QueueSize, s.logger).serve(r.Context())
}

// Wait blocks until every websocket session has ended.
func (s *Server) Wait() {
	s.conns.Wait()
}

// StatusFor maps a channel error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case bridge.CodeInvalidArguments:
		return http.StatusBadRequest
	case bridge.CodePermissionDenied:
		return http.StatusForbidden
	case bridge.CodeNotImplemented:
		return http.StatusNotFound
	case bridge.CodeDisabled:
		return http.StatusConflict
	case bridge.CodeUnavailable, bridge.CodeShutdown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, ce *bridge.ChannelError) {
	writeJSON(w, status, map[string]any{"error": ce})
}

// RunServer serves until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, server *http.Server, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.New()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.WithField("addr", server.Addr).Info("Bridge server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Bridge server failed")
			return err
		}
		return nil
	}
}
