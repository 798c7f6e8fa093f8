// Package api serves the web UI and the HTTP/WebSocket control surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/capture"
	"github.com/bryanchriswhite/FocusAssist/internal/config"
	"github.com/bryanchriswhite/FocusAssist/internal/display"
	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/bryanchriswhite/FocusAssist/internal/output"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// StatusProvider reports capture loop counters
type StatusProvider interface {
	Status() capture.Status
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	sink      *display.Sink
	status    StatusProvider
	configMgr *config.Manager
	stream    *output.MJPEGOutput
	upgrader  websocket.Upgrader
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	capture.Status
	FocusText    string       `json:"focus_text"`
	ClippingText string       `json:"clipping_text"`
	Error        string       `json:"error,omitempty"`
	Stream       output.Stats `json:"stream"`
}

// NewServer creates a new API server
func NewServer(sink *display.Sink, status StatusProvider, configMgr *config.Manager, stream *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		sink:      sink,
		status:    status,
		configMgr: configMgr,
		stream:    stream,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, any origin
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Capture control
	api.HandleFunc("/capture/{command:once|continuous|start|stop}", s.handleCommand).Methods("POST")
	api.HandleFunc("/quit", s.handleQuit).Methods("POST")

	// State
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/stream/stats", s.stream.GetStatsHandler()).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Images
	s.router.HandleFunc("/stream", s.stream.GetHTTPHandler()).Methods("GET")
	s.router.HandleFunc("/frame.jpg", s.stream.GetFrameHandler()).Methods("GET")
	s.router.HandleFunc("/histogram.png", s.handleHistogram).Methods("GET")

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Run serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log := logger.WithComponent("api")
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("url", "http://localhost"+addr).Msg("Starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HTTP Handlers

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd := display.Command(mux.Vars(r)["command"])
	s.dispatch(w, cmd)
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, display.CmdQuit)
}

func (s *Server) dispatch(w http.ResponseWriter, cmd display.Command) {
	if err := s.sink.Dispatch(cmd); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, capture.ErrClosed) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"command": string(cmd),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.sink.Snapshot()
	resp := StatusResponse{
		Status:       s.status.Status(),
		FocusText:    snap.FocusText,
		ClippingText: snap.ClippingText,
		Stream:       s.stream.Stats(),
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// command is a message a WebSocket client may send
type command struct {
	Command display.Command `json:"command"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.sink.Subscribe()
	defer s.sink.Unsubscribe(updates)

	// Commands from the client
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.sink.Dispatch(msg.Command); err != nil {
				log.Warn().Err(err).Str("command", string(msg.Command)).Msg("WebSocket command failed")
			}
		}
	}()

	if err := conn.WriteJSON(s.sink.CurrentUpdate()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(u); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	data := s.sink.HistogramPNG()
	if data == nil {
		http.Error(w, "no histogram yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
