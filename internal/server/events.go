package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
)

func (s *Server) CreateEvent(c *gin.Context) {
	var req eventdomain.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	item, err := s.eventSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) ListEvents(c *gin.Context) {
	filter := eventdomain.ListEventFilter{
		Upcoming: c.Query("upcoming") == "true",
	}
	items, err := s.eventSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

// GetEvent resolves by snowflake ID first, then by slug.
func (s *Server) GetEvent(c *gin.Context) {
	ref := c.Param("id")

	if id, err := eventdomain.ParseID(ref); err == nil {
		item, err := s.eventSvc.GetByID(c.Request.Context(), id)
		if err == nil {
			c.JSON(http.StatusOK, item)
			return
		}
	}

	item, err := s.eventSvc.GetBySlug(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
