package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"opsbridge/console/internal/connector"
	"opsbridge/console/internal/engine"
	"opsbridge/console/internal/store"
	"opsbridge/console/internal/websocket"
)

// Server wraps the REST API server
type Server struct {
	handler *Handler
	router  *gin.Engine
	hub     *websocket.Hub
}

// NewServer creates a new API server
func NewServer(s *store.Store, coord *engine.Coordinator, registry *connector.Registry, hub *websocket.Hub) *Server {
	handler := NewHandler(s, coord, registry)

	// Use gin.New() instead of gin.Default() to keep control of logging
	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s %s \"%s\" %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.ClientIP,
			param.Method,
			param.StatusCode,
			param.Latency,
			param.Path,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Execution event stream for console clients
	router.GET("/ws/executions", websocket.HandleWebSocket(hub))

	// API routes
	api := router.Group("/api/v1")
	{
		// Dashboard
		api.GET("/stats", handler.GetDashboardStats)

		// Jobs
		api.GET("/jobs", handler.ListJobs)
		api.POST("/jobs", handler.CreateJob)
		api.GET("/jobs/:num", handler.GetJob)
		api.PUT("/jobs/:num", handler.UpdateJob)
		api.POST("/jobs/:num/execute", handler.ExecuteJob)
		api.GET("/jobs/:num/executions", handler.ListExecutions)

		// Executions
		api.GET("/executions/:id", handler.GetExecution)
		api.GET("/executions/:id/branches/:branch/results", handler.GetBranchResults)
		api.POST("/executions/:id/cancel", handler.CancelExecution)

		// Result search
		api.GET("/results/search", handler.SearchResults)

		// Targets
		api.GET("/targets", handler.ListTargets)
		api.POST("/targets", handler.CreateTarget)
		api.GET("/targets/:id", handler.GetTarget)
		api.POST("/targets/:id/test", handler.TestTarget)
	}

	return &Server{
		handler: handler,
		router:  router,
		hub:     hub,
	}
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *websocket.Hub {
	return s.hub
}

// GetRouter returns the router (for WebSocket setup)
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
