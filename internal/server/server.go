package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/logging"
	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/syncer"
)

// DefaultListenAddr keeps the bridge on loopback
const DefaultListenAddr = "127.0.0.1:8765"

// Config holds the server configuration
type Config struct {
	Addr      string
	BackupDir string // Used when a backup request names no directory
}

// Server exposes one device session to a local frontend. Requests go
// through the same monitor and coordinator as the CLI, so the single
// operation rule still holds: a second network operation gets 409.
type Server struct {
	cfg   Config
	mon   *session.Monitor
	coord *syncer.Coordinator
	keys  device.KeyManager
	hub   *Hub

	httpServer *http.Server
	listener   net.Listener
}

var _ syncer.Observer = (*Server)(nil)

// New creates a server and subscribes it to monitor and coordinator events.
// keys may be nil to use the keys in ~/.ssh.
func New(cfg Config, mon *session.Monitor, coord *syncer.Coordinator, keys device.KeyManager) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultListenAddr
	}
	if keys == nil {
		keys = device.NewFileKeyManager()
	}
	s := &Server{
		cfg:   cfg,
		mon:   mon,
		coord: coord,
		keys:  keys,
		hub:   NewHub(),
	}
	mon.OnChange(s.onStateChange)
	coord.AddObserver(s)
	return s
}

// Handler returns the HTTP handler serving the API and the event stream
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on the configured address and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Bridge listening", zap.String("addr", listener.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listening address once Start has bound it
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and disconnects websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) event(t EventType, data any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

func (s *Server) broadcastTemplates() {
	s.hub.Broadcast(EventTemplates, s.templatesBody())
}

type stateEvent struct {
	From  session.State `json:"from"`
	To    session.State `json:"to"`
	Error string        `json:"error,omitempty"`
}

func (s *Server) onStateChange(ch session.Change) {
	ev := stateEvent{From: ch.From, To: ch.To}
	if ch.Err != nil {
		ev.Error = ch.Err.Error()
	}
	s.hub.Broadcast(EventState, ev)
}

type finishedEvent struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SyncStarted implements syncer.Observer
func (s *Server) SyncStarted(plan syncer.Plan) {
	s.hub.Broadcast(EventSyncStarted, plan)
}

// SyncFinished implements syncer.Observer
func (s *Server) SyncFinished(result syncer.Result, err error) {
	ev := finishedEvent{Result: result}
	if err != nil {
		ev = finishedEvent{Error: err.Error()}
	}
	s.hub.Broadcast(EventSyncFinished, ev)
	s.broadcastTemplates()
}

// BackupStarted implements syncer.Observer
func (s *Server) BackupStarted(targetDir string) {
	s.hub.Broadcast(EventBackupStarted, map[string]string{"dir": targetDir})
}

// BackupFinished implements syncer.Observer
func (s *Server) BackupFinished(result *device.BackupResult, err error) {
	ev := finishedEvent{Result: result}
	if err != nil {
		ev = finishedEvent{Error: err.Error()}
	}
	s.hub.Broadcast(EventBackupFinished, ev)
}
