package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jpalmerr/gpuboard/internal/humanize"
	"github.com/jpalmerr/gpuboard/internal/session"
	"github.com/jpalmerr/gpuboard/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "GPUBoard"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	// maxRequestBody bounds POST bodies on the add-server endpoint.
	maxRequestBody = 64 << 10
)

// Controller is the part of the board the HTTP layer drives.
type Controller interface {
	// Servers returns the configured addresses in insertion order.
	Servers() []string

	// AddServers appends new addresses and returns the ones actually added.
	AddServers(addrs ...string) ([]string, error)

	// Refresh requests a poll cycle and reports whether a new one was
	// started (false when coalesced into the cycle in flight).
	Refresh() bool

	// Busy reports whether a cycle is in flight.
	Busy() bool
}

// Server handles HTTP requests for the GPUBoard dashboard and API.
//
// Routes:
//   - GET  /:             embedded dashboard HTML
//   - GET  /api/board:    current board as JSON
//   - GET  /api/servers:  configured server addresses
//   - POST /api/servers:  add server addresses, then refresh
//   - POST /api/refresh:  manual refresh
//   - GET  /api/sse:      Server-Sent Events stream of board updates
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	ctl        Controller
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
	now        func() time.Time
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the latest board
//   - ctl: Controller for server list and refresh actions
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "GPUBoard" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, ctl Controller, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:  st,
		ctl:    ctl,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
		now:    time.Now,
	}
}

// Handler returns the router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	api.HandleFunc("/servers", s.handleListServers).Methods(http.MethodGet)
	api.HandleFunc("/servers", s.handleAddServers).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/sse", s.handleSSE).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleBoard returns the current board with humanized update times.
func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentBoard())
}

type serversResponse struct {
	Servers []string `json:"servers"`
}

func (s *Server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	servers := s.ctl.Servers()
	if servers == nil {
		servers = []string{}
	}
	s.writeJSON(w, http.StatusOK, serversResponse{Servers: servers})
}

type addServersRequest struct {
	Address   string   `json:"address"`
	Addresses []string `json:"addresses"`
}

type addServersResponse struct {
	Added   []string `json:"added"`
	Servers []string `json:"servers"`
	Started bool     `json:"started"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAddServers appends addresses to the session and starts a refresh
// so the new rows appear without waiting for the timer.
func (s *Server) handleAddServers(w http.ResponseWriter, r *http.Request) {
	var req addServersRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	addrs := req.Addresses
	if req.Address != "" {
		addrs = append([]string{req.Address}, addrs...)
	}
	nonBlank := 0
	for _, a := range addrs {
		if strings.TrimSpace(a) != "" {
			nonBlank++
		}
	}
	if nonBlank == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no server address given"})
		return
	}

	added, err := s.ctl.AddServers(addrs...)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrPersist) {
			status = http.StatusInternalServerError
			s.logger.Error("failed to add servers", "error", err)
		}
		s.writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	if added == nil {
		added = []string{}
	}

	resp := addServersResponse{Added: added, Servers: s.ctl.Servers()}
	if len(added) > 0 {
		s.logger.Info("servers added", "servers", added)
		resp.Started = s.ctl.Refresh()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	Started bool `json:"started"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusAccepted, refreshResponse{Started: s.ctl.Refresh()})
}

// handleSSE streams board updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(board store.Board) error {
		data, err := json.Marshal(board)
		if err != nil {
			return err
		}
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	if err := writeAndFlush(s.currentBoard()); err != nil {
		return
	}

	for {
		select {
		case board, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(s.render(board)); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

func (s *Server) currentBoard() store.Board {
	return s.render(s.store.Get())
}

// render fills in the reader-side fields of a board copy.
func (s *Server) render(board store.Board) store.Board {
	now := s.now()
	rows := make([]store.Row, len(board.Servers))
	for i, row := range board.Servers {
		row.Update = humanize.Since(now, row.LastUpdate)
		rows[i] = row
	}
	board.Servers = rows
	if board.Warnings == nil {
		board.Warnings = []store.Warning{}
	}
	board.Refreshing = s.ctl.Busy()
	return board
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
