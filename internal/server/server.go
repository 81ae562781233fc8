package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/orchestrator"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
	"github.com/openbadge/bridge/internal/trace"
)

// Bridge is the part of the orchestrator exposed over HTTP.
type Bridge interface {
	Status() orchestrator.Snapshot
	InjectTrigger() error
	RecentLogs(seconds int) []logbook.Entry
	LogEvents() <-chan logbook.Entry
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type StatusMessage struct {
	Type   string                `json:"type"`
	Status orchestrator.Snapshot `json:"status"`
}

type LogMessage struct {
	Type  string        `json:"type"`
	Entry logbook.Entry `json:"entry"`
}

type TriggerResultMessage struct {
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	bridge Bridge
	mu     sync.RWMutex
	conns  map[*websocket.Conn]struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a server and starts its broadcasters.
func New(bridge Bridge) *Server {
	s := &Server{
		bridge: bridge,
		conns:  make(map[*websocket.Conn]struct{}),
		done:   make(chan struct{}),
	}

	go s.broadcastLogs()
	go s.broadcastStatus()

	return s
}

// Close stops the broadcasters. Open WebSocket connections end with the
// HTTP server.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/trigger", s.handleTrigger)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	log := trace.Logger(r.Context())
	if err := s.bridge.InjectTrigger(); err != nil {
		log.Info("remote trigger refused", "error", err)
		writeError(w, err)
		return
	}
	log.Info("remote trigger queued", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	seconds := DefaultLogSeconds
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid seconds %q", v))
			return
		}
		seconds = n
	}
	entries := s.bridge.RecentLogs(seconds)
	if entries == nil {
		entries = []logbook.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"seconds": seconds, "entries": entries})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, httpStatus(code), ErrorResponse{Error: err.Error(), Code: code.String()})
}

// httpStatus maps an error code to the HTTP status returned to clients.
func httpStatus(c apperrors.Code) int {
	switch c {
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeNotConnected, apperrors.CodeSessionActive:
		return http.StatusConflict
	case apperrors.CodeUnavailable, apperrors.CodeTransportInit:
		return http.StatusServiceUnavailable
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	rl := &rateLimiter{}
	s.send(baseCtx, conn, StatusMessage{Type: "status", Status: s.bridge.Status()})

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "trigger":
			if !rl.allow() {
				log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
				s.send(baseCtx, conn, RateLimitedMessage{Type: "error", Message: "rate limit exceeded"})
				continue
			}
			s.send(baseCtx, conn, s.trigger(baseCtx))
		case "status":
			s.send(baseCtx, conn, StatusMessage{Type: "status", Status: s.bridge.Status()})
		}
	}
}

func (s *Server) trigger(ctx context.Context) TriggerResultMessage {
	ctx, span := trace.StartSpan(ctx, "ws_trigger")
	err := s.bridge.InjectTrigger()
	span.Finish(err)
	if err != nil {
		trace.Logger(ctx).Info("remote trigger refused", "error", err)
		return TriggerResultMessage{Type: "trigger_result", Code: apperrors.CodeOf(err).String(), Error: err.Error()}
	}
	return TriggerResultMessage{Type: "trigger_result", OK: true}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, v any) {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, v)
}

func (s *Server) broadcast(v any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		go s.send(context.Background(), conn, v)
	}
}

func (s *Server) broadcastLogs() {
	events := s.bridge.LogEvents()
	for {
		select {
		case <-s.done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.broadcast(LogMessage{Type: "log", Entry: e})
		}
	}
}

// broadcastStatus pushes a snapshot whenever it differs from the last one
// pushed.
func (s *Server) broadcastStatus() {
	ticker := time.NewTicker(StatusPushInterval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			snap := s.bridge.Status()
			data, err := json.Marshal(snap)
			if err != nil || bytes.Equal(data, last) {
				continue
			}
			last = data
			s.broadcast(StatusMessage{Type: "status", Status: snap})
		}
	}
}
