package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	certdomain "github.com/entrada-events/entrada/internal/certificate/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
)

type renderCertificateRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	TemplateID    string `json:"template_id"`
	Force         bool   `json:"force"`
}

func (s *Server) RenderCertificate(c *gin.Context) {
	var req renderCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	participantID, err := regdomain.ParseID(req.ParticipantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	renderReq := certdomain.RenderRequest{
		ParticipantID: participantID,
		Force:         req.Force,
	}
	if req.TemplateID != "" {
		templateID, err := regdomain.ParseID(req.TemplateID)
		if err != nil {
			AbortWithError(c, certdomain.ErrTemplateNotFound)
			return
		}
		renderReq.TemplateID = templateID
	}

	cert, err := s.certificateSvc.Render(c.Request.Context(), renderReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cert)
}

func (s *Server) GetCertificate(c *gin.Context) {
	id, err := regdomain.ParseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, certdomain.ErrNotFound)
		return
	}
	cert, err := s.certificateSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (s *Server) DownloadCertificate(c *gin.Context) {
	id, err := regdomain.ParseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, certdomain.ErrNotFound)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "pdf"))
	switch format {
	case "pdf":
		data, err := s.certificateSvc.DownloadPDF(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("certificate-%s.pdf", c.Param("id"))))
		c.Data(http.StatusOK, "application/pdf", data)
	case "jpg", "jpeg":
		data, err := s.certificateSvc.DownloadJPG(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("certificate-%s.jpg", c.Param("id"))))
		c.Data(http.StatusOK, "image/jpeg", data)
	default:
		AbortWithError(c, certdomain.ErrUnsupportedFormat)
	}
}

func (s *Server) EmailCertificate(c *gin.Context) {
	id, err := regdomain.ParseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, certdomain.ErrNotFound)
		return
	}
	if err := s.certificateSvc.Email(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}
