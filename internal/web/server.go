package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/guidoenr/pulsefield/internal/app"
	"github.com/guidoenr/pulsefield/internal/palette"
)

//go:embed static/index.html
var staticFiles embed.FS

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 16
	maxMessage = 1024
)

// Controller is the part of the scheduler the web layer drives.
type Controller interface {
	Stats() app.Stats
	Tunables() (palette.Accent, float64)
	SetAccent(palette.Accent)
	SetSensitivity(float64) error
	PointerMove(x, y float64) bool
	PointerDown(x, y float64) bool
	Burst() bool
}

var _ Controller = (*app.App)(nil)

type Server struct {
	mu       sync.RWMutex
	ctrl     Controller
	log      *log.Logger
	interval time.Duration
	clients  map[string]*websocketClient
	upgrader websocket.Upgrader
}

type websocketClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// Message is the envelope for everything sent over /ws.
type Message struct {
	Type  string     `json:"type"`
	ID    string     `json:"id,omitempty"`
	Stats *app.Stats `json:"stats,omitempty"`
}

// ClientMessage is what browsers may send over /ws.
type ClientMessage struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type UpdateRequest struct {
	Accent      *string  `json:"accent,omitempty"`
	Sensitivity *float64 `json:"sensitivity,omitempty"`
}

type TunablesResponse struct {
	Accent      string  `json:"accent"`
	Sensitivity float64 `json:"sensitivity"`
}

type BurstRequest struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the control plane to ctrl. Status is pushed to websocket
// clients every interval.
func NewServer(ctrl Controller, logger *log.Logger, interval time.Duration) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Server{
		ctrl:     ctrl,
		log:      logger,
		interval: interval,
		clients:  make(map[string]*websocketClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the routes without starting the broadcaster.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/update", s.handleUpdate)
	mux.HandleFunc("/api/burst", s.handleBurst)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Printf("[web] server starting on http://%s", addr)
	go s.broadcastLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

// handleUpdate validates every field before applying any of them.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessage)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode update: %w", err))
		return
	}

	var accent palette.Accent
	if req.Accent != nil {
		a, err := palette.ParseAccent(*req.Accent)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		accent = a
	}
	if req.Sensitivity != nil {
		if err := s.ctrl.SetSensitivity(*req.Sensitivity); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.log.Printf("[web] sensitivity -> %g", *req.Sensitivity)
	}
	if req.Accent != nil {
		s.ctrl.SetAccent(accent)
		s.log.Printf("[web] accent -> %s", accent)
	}

	current, sensitivity := s.ctrl.Tunables()
	writeJSON(w, http.StatusOK, TunablesResponse{Accent: current.Hex(), Sensitivity: sensitivity})
}

func (s *Server) handleBurst(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var req BurstRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxMessage)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode burst: %w", err))
			return
		}
	}

	var queued bool
	if req.X != nil && req.Y != nil {
		queued = s.ctrl.PointerDown(*req.X, *req.Y)
	} else {
		queued = s.ctrl.Burst()
	}
	if !queued {
		writeError(w, http.StatusServiceUnavailable, errors.New("input queue full"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("[web] websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}
	hello, _ := json.Marshal(Message{Type: "hello", ID: client.id})
	client.send <- hello

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()
	s.log.Printf("[web] client %s connected", client.id)

	go client.writePump()
	go client.readPump()
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastStatus()
		}
	}
}

// broadcastStatus pushes one status message to every client. Clients whose
// buffer is full are dropped.
func (s *Server) broadcastStatus() {
	stats := s.ctrl.Stats()
	data, err := json.Marshal(Message{Type: "status", Stats: &stats})
	if err != nil {
		s.log.Printf("[web] encode status: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, client := range s.clients {
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(s.clients, id)
			s.log.Printf("[web] client %s too slow, dropped", id)
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) unregister(c *websocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		close(c.send)
		delete(s.clients, c.id)
		s.log.Printf("[web] client %s disconnected", c.id)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, client := range s.clients {
		close(client.send)
		delete(s.clients, id)
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			return
		}
		switch msg.Type {
		case "pointermove":
			c.server.ctrl.PointerMove(msg.X, msg.Y)
		case "pointerdown":
			c.server.ctrl.PointerDown(msg.X, msg.Y)
		case "burst":
			c.server.ctrl.Burst()
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
