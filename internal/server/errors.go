package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	certdomain "github.com/entrada-events/entrada/internal/certificate/domain"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	paymentdomain "github.com/entrada-events/entrada/internal/payment/domain"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	ticketdomain "github.com/entrada-events/entrada/internal/ticket/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	// Payment reference is included for duplicate registrations so the
	// buyer has something to quote to support.
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var dupErr *regdomain.DuplicateError
	if errors.As(err, &dupErr) {
		return http.StatusBadRequest, errorPayload{
			Type:      "duplicate_registration",
			Message:   "this email is already registered for the event; quote the payment reference when contacting support",
			OrderID:   dupErr.OrderID,
			PaymentID: dupErr.PaymentID,
		}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "payment signature verification failed",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ticketdomain.ErrTicketAlreadyUsed):
		return http.StatusConflict, errorPayload{
			Type:    "ticket_already_used",
			Message: "ticket has already been used",
		}
	case errors.Is(err, ticketdomain.ErrTicketCancelled):
		return http.StatusConflict, errorPayload{
			Type:    "ticket_cancelled",
			Message: "ticket has been cancelled",
		}
	case errors.Is(err, ticketdomain.ErrTicketExpired):
		return http.StatusConflict, errorPayload{
			Type:    "ticket_expired",
			Message: "ticket has expired",
		}
	case errors.Is(err, ticketdomain.ErrNotTransferable):
		return http.StatusConflict, errorPayload{
			Type:    "not_transferable",
			Message: "tickets for this event cannot be transferred",
		}
	case errors.Is(err, ticketdomain.ErrTransfereeHasTicket):
		return http.StatusConflict, errorPayload{
			Type:    "transferee_has_ticket",
			Message: "the recipient already holds a ticket for this event",
		}
	case errors.Is(err, certdomain.ErrEventNotEnded):
		return http.StatusConflict, errorPayload{
			Type:    "event_not_ended",
			Message: "certificates are issued after the event ends",
		}
	case errors.Is(err, certdomain.ErrEmailAlreadySent):
		return http.StatusConflict, errorPayload{
			Type:    "email_already_sent",
			Message: "certificate email was already delivered",
		}
	case errors.Is(err, eventdomain.ErrSlugTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "an event with this name already exists",
		}
	case errors.Is(err, ticketdomain.ErrNumberSpaceExhausted),
		errors.Is(err, certdomain.ErrNumberSpaceExhausted):
		// Payment has been taken at this point. Never tell the buyer
		// their money vanished into a generic 500.
		return http.StatusInternalServerError, errorPayload{
			Type:    "issuance_failed",
			Message: "your payment was received but issuance failed; please contact support with your payment reference",
		}
	case errors.Is(err, paymentdomain.ErrOrderFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "order_failed",
			Message: "payment provider rejected the order",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, eventdomain.ErrInvalidName),
		errors.Is(err, eventdomain.ErrInvalidOrganizer),
		errors.Is(err, eventdomain.ErrInvalidSchedule),
		errors.Is(err, eventdomain.ErrInvalidID),
		errors.Is(err, regdomain.ErrInvalidName),
		errors.Is(err, regdomain.ErrInvalidEmail),
		errors.Is(err, regdomain.ErrInvalidTicketName),
		errors.Is(err, regdomain.ErrInvalidQuantity),
		errors.Is(err, regdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrMissingFields),
		errors.Is(err, paymentdomain.ErrInvalidCallback),
		errors.Is(err, ticketdomain.ErrInvalidTransferee),
		errors.Is(err, ticketdomain.ErrInvalidStaff),
		errors.Is(err, certdomain.ErrInvalidTemplate),
		errors.Is(err, certdomain.ErrUnsupportedFormat):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, eventdomain.ErrNotFound),
		errors.Is(err, regdomain.ErrNotFound),
		errors.Is(err, regdomain.ErrEventNotFound),
		errors.Is(err, ticketdomain.ErrNotFound),
		errors.Is(err, certdomain.ErrNotFound),
		errors.Is(err, certdomain.ErrTemplateNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog maps domain errors to log fields without leaking
// internals into access logs.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return "signature", "invalid_signature"
	case errors.Is(err, regdomain.ErrDuplicateRegistration):
		return "duplicate", "duplicate_registration"
	case isValidationError(err):
		return "validation", "invalid_request"
	case isNotFoundError(err):
		return "not_found", "not_found"
	default:
		return "internal", "internal_error"
	}
}
