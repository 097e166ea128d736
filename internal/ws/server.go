package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/matheus3301/chatrelay/internal/status"
	"github.com/matheus3301/chatrelay/internal/store"
	"go.uber.org/zap"
)

// Gate reports the daemon lifecycle state to the HTTP surface.
type Gate interface {
	Accepting() bool
	Current() status.State
}

// Roster lists the users with a registered connection.
type Roster interface {
	Users() []string
}

// History serves pull-based message reloads.
type History interface {
	GetChat(chatID string) (*store.Chat, error)
	ListMessages(chatID string, limit int) ([]store.Message, error)
}

// Options sizes per-connection resources.
type Options struct {
	SendBuffer    int
	MaxFrameBytes int64
	HistoryLimit  int
}

// Server owns the echo instance and every live websocket connection.
type Server struct {
	echo     *echo.Echo
	upgrader websocket.Upgrader
	handler  Handler
	gate     Gate
	roster   Roster
	history  History
	opts     Options
	logger   *zap.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
	ln    net.Listener
}

// NewServer builds the HTTP surface and registers its routes.
func NewServer(handler Handler, gate Gate, roster Roster, history History, opts Options, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))

	s := &Server{
		echo: e,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		handler: handler,
		gate:    gate,
		roster:  roster,
		history: history,
		opts:    opts,
		logger:  logger,
		conns:   make(map[*Conn]struct{}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/ws", s.handleUpgrade)
	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/presence", s.handlePresence)
	api.GET("/chats/:id/messages", s.handleHistory)
}

// Start binds addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.echo.Listener = ln
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown closes every live connection, waits for their pumps, and stops
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("connections still draining at shutdown deadline")
	}
	return s.echo.Shutdown(ctx)
}

// Connections returns the number of live websocket connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) serve(ws *websocket.Conn) {
	c := newConn(ws, s.opts.SendBuffer, s.opts.MaxFrameBytes, s.logger)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	c.logger.Info("connection opened")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump(s.handler)
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
}
