package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/state"
)

type Server struct {
	Router *gin.Engine
	store  *state.Store
	logger *zap.Logger
}

func NewServer(store *state.Store, mode string, logger *zap.Logger) *Server {
	gin.SetMode(mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(Logger(logger))

	server := &Server{
		Router: router,
		store:  store,
		logger: logger,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.Health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.Router.Group("/api/v1")
	{
		v1.GET("/domains", s.ListDomains)
		v1.POST("/domains", s.AddDomain)
		v1.DELETE("/domains/:name", s.RemoveDomain)
		v1.POST("/domains/:name/reset", s.ResetDomain)
		v1.GET("/status", s.Status)
	}
}
