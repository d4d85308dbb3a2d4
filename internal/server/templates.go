package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	certdomain "github.com/entrada-events/entrada/internal/certificate/domain"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
)

type createTemplateRequest struct {
	EventID        string               `json:"event_id" binding:"required"`
	Name           string               `json:"name"`
	Variant        string               `json:"variant"`
	BodyHTML       string               `json:"body_html"`
	BackgroundPath string               `json:"background_path"`
	Boxes          []certdomain.TextBox `json:"boxes"`
	IsDefault      bool                 `json:"is_default"`
}

func (s *Server) CreateCertificateTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	eventID, err := eventdomain.ParseID(req.EventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tmpl, err := s.certificateSvc.CreateTemplate(c.Request.Context(), certdomain.CreateTemplateRequest{
		EventID:        eventID,
		Name:           req.Name,
		Variant:        certdomain.Variant(req.Variant),
		BodyHTML:       req.BodyHTML,
		BackgroundPath: req.BackgroundPath,
		Boxes:          req.Boxes,
		IsDefault:      req.IsDefault,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (s *Server) GetCertificateTemplate(c *gin.Context) {
	id, err := eventdomain.ParseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, certdomain.ErrTemplateNotFound)
		return
	}
	tmpl, err := s.certificateSvc.GetTemplate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (s *Server) ListCertificateTemplates(c *gin.Context) {
	eventID, err := eventdomain.ParseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	templates, err := s.certificateSvc.ListTemplates(c.Request.Context(), eventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}
