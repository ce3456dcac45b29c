package server

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ragchat/llm/providers"
	"ragchat/llm/vector"
	"ragchat/rag"
	"ragchat/store"
)

// Dependencies are the collaborators the HTTP layer needs.
type Dependencies struct {
	RAG       *rag.Service
	Models    *providers.Registry
	Documents *store.DocumentStore
	QueryLogs *store.QueryLogStore
	Vectors   vector.VectorStore
	Logger    *slog.Logger
}

// Server is the HTTP and WebSocket front of the query pipeline.
type Server struct {
	echo *echo.Echo
	addr string
}

// New builds the echo server with all routes registered.
func New(addr string, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := &handlers{deps: deps}
	e.GET("/healthz", h.health)
	e.GET("/api/models", h.listModels)
	e.POST("/api/chat", h.chat)
	e.POST("/api/search", h.search)
	e.GET("/api/stats", h.stats)
	e.GET("/api/stats/queries", h.recentQueries)
	e.GET("/ws/chat", h.wsChat)

	return &Server{echo: e, addr: addr}
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type handlers struct {
	deps Dependencies
}
