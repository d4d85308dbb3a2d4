package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	"github.com/entrada-events/entrada/pkg/db/pagination"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := auditdomain.ListAuditLogRequest{
		Pagination: page,
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		ActorType:  c.Query("actor_type"),
	}
	if v := c.Query("start_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, auditdomain.ErrInvalidTimeRange)
			return
		}
		req.StartAt = &t
	}
	if v := c.Query("end_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, auditdomain.ErrInvalidTimeRange)
			return
		}
		req.EndAt = &t
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auditdomain.ErrInvalidPageToken) || errors.Is(err, auditdomain.ErrInvalidTimeRange) {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
