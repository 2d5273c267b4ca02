package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-freefield/pkg/hub"
	"github.com/teslashibe/go-freefield/pkg/storage"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	if s.store == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "no store")
	}
	sessions, err := s.store.ListSessions(c.UserContext(), c.Query("subject"))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	if sessions == nil {
		sessions = []storage.Session{}
	}
	return c.JSON(sessions)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id, ok, err := s.sessionID(c)
	if !ok {
		return err
	}
	sess, err := s.store.GetSession(c.UserContext(), id)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(sess)
}

func (s *Server) handleTrials(c *fiber.Ctx) error {
	id, ok, err := s.sessionID(c)
	if !ok {
		return err
	}
	if _, err := s.store.GetSession(c.UserContext(), id); err != nil {
		return storeError(c, err)
	}
	trials, err := s.store.Trials(c.UserContext(), id)
	if err != nil {
		return storeError(c, err)
	}
	if trials == nil {
		trials = []storage.Trial{}
	}
	return c.JSON(trials)
}

func (s *Server) handleThresholds(c *fiber.Ctx) error {
	id, ok, err := s.sessionID(c)
	if !ok {
		return err
	}
	if _, err := s.store.GetSession(c.UserContext(), id); err != nil {
		return storeError(c, err)
	}
	ths, err := s.store.Thresholds(c.UserContext(), id)
	if err != nil {
		return storeError(c, err)
	}
	if ths == nil {
		ths = []storage.Threshold{}
	}
	return c.JSON(ths)
}

// sessionID parses :id. When ok is false the response has been written
// and err is what the handler should return.
func (s *Server) sessionID(c *fiber.Ctx) (uuid.UUID, bool, error) {
	if s.store == nil {
		return uuid.Nil, false, errorJSON(c, fiber.StatusServiceUnavailable, "no store")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, false, errorJSON(c, fiber.StatusBadRequest, "invalid session id")
	}
	return id, true, nil
}

func storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	}
	return errorJSON(c, fiber.StatusInternalServerError, err.Error())
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// handleStatusWS sends the current status, then streams updates.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := hub.NewClient(s.hub, conn)
	if client == nil {
		return
	}
	if err := conn.WriteJSON(Update{Status: s.Status()}); err != nil {
		s.logger.Debug("initial status write failed", "error", err)
	}
	client.Run()
}
