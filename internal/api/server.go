// Package api exposes the control surface of the trading engine: auth,
// status, positions, policy and a websocket event stream.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"spottrader/internal/engine"
	"spottrader/internal/events"
	"spottrader/internal/position"
	"spottrader/internal/state"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
)

// Server wires HTTP endpoints around the trading engine.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Queries   *db.Queries
	State     *state.Manager
	Positions *position.Manager
	Engine    *engine.Engine
	Policy    config.Policy

	jwtSecret    string
	adminUser    string
	adminPwdHash string
	startedAt    time.Time
}

func NewServer(cfg *config.Config, policy config.Policy, bus *events.Bus, queries *db.Queries, st *state.Manager, positions *position.Manager, eng *engine.Engine) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:       r,
		Bus:          bus,
		Queries:      queries,
		State:        st,
		Positions:    positions,
		Engine:       eng,
		Policy:       policy,
		jwtSecret:    cfg.JWTSecret,
		adminUser:    cfg.AdminUser,
		adminPwdHash: cfg.AdminPasswordHash,
		startedAt:    time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.jwtSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/positions", s.getPositions)
			protected.GET("/orders", s.getOrders)
			protected.GET("/policy", s.getPolicy)

			protected.POST("/monitor/start", s.startMonitor)
			protected.POST("/monitor/stop", s.stopMonitor)
			protected.POST("/positions/:symbol/close", s.closePosition)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
