// Package web serves the experimenter dashboard: the current session's
// status over REST and a live event stream over a websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-freefield/pkg/experiment"
	"github.com/teslashibe/go-freefield/pkg/gaze"
	"github.com/teslashibe/go-freefield/pkg/hub"
	"github.com/teslashibe/go-freefield/pkg/storage"
)

// maxWarnings bounds the warning list kept in Status.
const maxWarnings = 20

// Status is the dashboard's view of the running session.
type Status struct {
	Running    bool                `json:"running"`
	SessionID  string              `json:"session_id,omitempty"`
	Paradigm   string              `json:"paradigm,omitempty"`
	Subject    string              `json:"subject,omitempty"`
	Trials     int                 `json:"trials"`
	Correct    int                 `json:"correct"`
	LastTrial  *storage.Trial      `json:"last_trial,omitempty"`
	Thresholds []storage.Threshold `json:"thresholds"`
	Gaze       *gaze.Event         `json:"gaze,omitempty"`
	Warnings   []string            `json:"warnings"`
	Result     string              `json:"result,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Update is what websocket clients receive for every session event.
type Update struct {
	Event  experiment.Event `json:"event"`
	Status Status           `json:"status"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	store  *storage.Store
	hub    *hub.Hub
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
}

// NewServer builds the dashboard. store may be nil, in which case the
// session endpoints answer 503.
func NewServer(store *storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		hub:    hub.New("status", logger),
		logger: logger.With("component", "web"),
		status: Status{Thresholds: []storage.Threshold{}, Warnings: []string{}},
	}

	app := fiber.New(fiber.Config{
		AppName:               "freefield dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Get("/sessions/:id/trials", s.handleTrials)
	api.Get("/sessions/:id/thresholds", s.handleThresholds)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Serve runs the hub and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)
	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return err
		}
		return nil
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// StartAsync serves in the background and logs the outcome.
func (s *Server) StartAsync(ctx context.Context, addr string) {
	go func() {
		if err := s.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("dashboard stopped", "error", err)
		}
	}()
}

// Observe folds a session event into the status and broadcasts it. It has
// the experiment.Observer signature.
func (s *Server) Observe(e experiment.Event) {
	s.mu.Lock()
	st := &s.status
	switch e.Type {
	case experiment.EventSessionStarted:
		*st = Status{
			Running:    true,
			SessionID:  e.SessionID.String(),
			Paradigm:   e.Paradigm,
			Subject:    e.Message,
			Thresholds: []storage.Threshold{},
			Warnings:   []string{},
		}
	case experiment.EventTrial:
		st.Trials++
		if e.Trial != nil {
			if e.Trial.Correct {
				st.Correct++
			}
			t := *e.Trial
			st.LastTrial = &t
		}
	case experiment.EventThreshold:
		if e.Threshold != nil {
			st.Thresholds = append(st.Thresholds, *e.Threshold)
		}
	case experiment.EventGate:
		if e.Gate != nil {
			g := *e.Gate
			st.Gaze = &g
		}
	case experiment.EventWarning:
		st.Warnings = append(st.Warnings, e.Message)
		if len(st.Warnings) > maxWarnings {
			st.Warnings = st.Warnings[len(st.Warnings)-maxWarnings:]
		}
	case experiment.EventSessionFinished:
		st.Running = false
		st.Result = e.Message
	}
	st.UpdatedAt = e.Time
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.hub.BroadcastJSON(Update{Event: e, Status: snapshot}); err != nil {
		s.logger.Warn("encode update", "error", err)
	}
}

// Status returns a copy of the current status.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() Status {
	st := s.status
	st.Thresholds = append([]storage.Threshold{}, s.status.Thresholds...)
	st.Warnings = append([]string{}, s.status.Warnings...)
	return st
}
