package ws

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/chatrelay/internal/protocol"
	"github.com/matheus3301/chatrelay/internal/relay"
	"go.uber.org/zap"
)

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Online      int    `json:"online"`
}

type presenceResponse struct {
	Online []string `json:"online"`
}

func (s *Server) handleUpgrade(c echo.Context) error {
	if !s.gate.Accepting() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "relay is "+string(s.gate.Current()))
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	s.serve(conn)
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	code := http.StatusOK
	if !s.gate.Accepting() {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, healthResponse{
		Status:      string(s.gate.Current()),
		Connections: s.Connections(),
		Online:      len(s.roster.Users()),
	})
}

func (s *Server) handlePresence(c echo.Context) error {
	return c.JSON(http.StatusOK, presenceResponse{Online: s.roster.Users()})
}

func (s *Server) handleHistory(c echo.Context) error {
	chatID := c.Param("id")
	limit := s.opts.HistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	chat, err := s.history.GetChat(chatID)
	if err != nil {
		s.logger.Error("history: get chat", zap.String("chat_id", chatID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "chat lookup failed")
	}
	if chat == nil {
		return echo.NewHTTPError(http.StatusNotFound, relay.ErrChatNotFound.Error())
	}

	msgs, err := s.history.ListMessages(chatID, limit)
	if err != nil {
		s.logger.Error("history: list messages", zap.String("chat_id", chatID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "history lookup failed")
	}
	out := make([]protocol.NewMessage, len(msgs))
	for i := range msgs {
		out[i] = relay.MessagePayload(&msgs[i])
	}
	return c.JSON(http.StatusOK, out)
}
