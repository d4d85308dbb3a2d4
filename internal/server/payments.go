package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	paymentdomain "github.com/entrada-events/entrada/internal/payment/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
)

type createOrderRequest struct {
	EventID    string `json:"event_id" binding:"required"`
	TicketName string `json:"ticket_name" binding:"required"`
	Quantity   int    `json:"quantity"`
}

func (s *Server) CreatePaymentOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	eventID, err := eventdomain.ParseID(req.EventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.paymentSvc.CreateOrder(c.Request.Context(), paymentdomain.CreateOrderRequest{
		EventID:    eventID,
		TicketName: req.TicketName,
		Quantity:   req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// participantPayload is the checkout frontend's camelCase shape.
type participantPayload struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Phone       string `json:"phone"`
	TicketName  string `json:"ticketName" binding:"required"`
	Quantity    int    `json:"quantity"`
	IsVolunteer bool   `json:"isVolunteer"`
	TshirtSize  string `json:"tshirtSize"`
}

type verifyPaymentRequest struct {
	OrderID     string             `json:"razorpay_order_id" binding:"required"`
	PaymentID   string             `json:"razorpay_payment_id" binding:"required"`
	Signature   string             `json:"razorpay_signature" binding:"required"`
	EventID     string             `json:"eventId" binding:"required"`
	Amount      int64              `json:"amount"`
	Currency    string             `json:"currency"`
	Participant participantPayload `json:"participantData" binding:"required"`
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	eventID, err := eventdomain.ParseID(req.EventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.paymentSvc.VerifyAndRegister(c.Request.Context(), paymentdomain.VerifyRequest{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		EventID:   eventID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Participant: regdomain.ParticipantData{
			Name:        req.Participant.Name,
			Email:       req.Participant.Email,
			Phone:       req.Participant.Phone,
			TicketName:  req.Participant.TicketName,
			Quantity:    req.Participant.Quantity,
			IsVolunteer: req.Participant.IsVolunteer,
			TshirtSize:  req.Participant.TshirtSize,
		},
	})
	if errors.Is(err, paymentdomain.ErrCallbackAlreadyProcessed) {
		// A repeat of a settled callback is not a failure for the
		// caller; acknowledge it.
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.paymentSvc.HandleWebhook(c.Request.Context(), payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, paymentdomain.ErrCallbackAlreadyProcessed):
		// Providers retry until they see 2xx; replays must settle.
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
	case errors.Is(err, regdomain.ErrDuplicateRegistration):
		c.JSON(http.StatusOK, gin.H{"status": "duplicate_registration"})
	default:
		AbortWithError(c, err)
	}
}
