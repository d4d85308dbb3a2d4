package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ticketdomain "github.com/entrada-events/entrada/internal/ticket/domain"
)

func (s *Server) GetTicket(c *gin.Context) {
	t, err := s.ticketSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type checkInRequest struct {
	Ticket   string `json:"ticket" binding:"required"`
	StaffID  string `json:"staff_id" binding:"required"`
	Location string `json:"location"`
}

func (s *Server) CheckInTicket(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.ticketSvc.CheckIn(c.Request.Context(), req.Ticket, req.StaffID, req.Location)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := "checked_in"
	if result.Repeat {
		status = "already_checked_in"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"ticket": result.Ticket,
	})
}

func (s *Server) CancelTicket(c *gin.Context) {
	t, err := s.ticketSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) TransferTicket(c *gin.Context) {
	var req ticketdomain.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	t, err := s.ticketSvc.Transfer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
