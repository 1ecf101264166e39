package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leozw/domain-tracker/internal/core"
	"github.com/leozw/domain-tracker/internal/state"
)

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) ListDomains(c *gin.Context) {
	snapshot := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"domains": snapshot.Domains,
		"count":   len(snapshot.Domains),
	})
}

type addDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

func (s *Server) AddDomain(c *gin.Context) {
	var req addDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !core.ValidateDomain(req.Domain) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain name"})
		return
	}

	name := core.NormalizeDomain(req.Domain)
	if err := s.store.Add(name); err != nil {
		if errors.Is(err, state.ErrAlreadyTracked) {
			c.JSON(http.StatusConflict, gin.H{"error": "domain already tracked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add domain"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"domain": name})
}

func (s *Server) RemoveDomain(c *gin.Context) {
	name := core.NormalizeDomain(c.Param("name"))
	if err := s.store.Remove(name); err != nil {
		if errors.Is(err, state.ErrNotTracked) {
			c.JSON(http.StatusNotFound, gin.H{"error": "domain not tracked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove domain"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": name})
}

func (s *Server) ResetDomain(c *gin.Context) {
	name := core.NormalizeDomain(c.Param("name"))
	if err := s.store.Reset(name); err != nil {
		if errors.Is(err, state.ErrNotTracked) {
			c.JSON(http.StatusNotFound, gin.H{"error": "domain not tracked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset domain"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": name, "status": string(core.StatusUnknown)})
}

func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Stats())
}
