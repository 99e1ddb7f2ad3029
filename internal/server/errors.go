package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/freya/internal/authorization"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInvalidRequest = errors.New("invalid_request")
)

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "missing " + HeaderAccount + " header",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    err.Error(),
			Message: "caller is not permitted to perform this action",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    err.Error(),
			Message: "not found",
		}
	case isStateError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: "invoice state does not allow this operation",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrInvalidDueDate),
		errors.Is(err, invoicedomain.ErrInvalidParty),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, disputedomain.ErrInvalidReason),
		errors.Is(err, disputedomain.ErrInvalidOutcome),
		errors.Is(err, feedomain.ErrInvalidRecipient),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidRole),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrNotClient),
		errors.Is(err, invoicedomain.ErrNotIssuer),
		errors.Is(err, disputedomain.ErrNotResolver),
		errors.Is(err, feedomain.ErrNotOwner),
		errors.Is(err, authorization.ErrForbidden):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, escrowdomain.ErrEscrowNotFound),
		errors.Is(err, disputedomain.ErrDisputeNotFound),
		errors.Is(err, receiptdomain.ErrReceiptNotFound):
		return true
	default:
		return false
	}
}

func isStateError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrAlreadySettled),
		errors.Is(err, invoicedomain.ErrAlreadyDisputed),
		errors.Is(err, invoicedomain.ErrInvoiceCompleted),
		errors.Is(err, invoicedomain.ErrInvoiceDisputed),
		errors.Is(err, invoicedomain.ErrInvoiceCancelled),
		errors.Is(err, invoicedomain.ErrWrongAmount),
		errors.Is(err, invoicedomain.ErrPartialPaymentNotSupported),
		errors.Is(err, escrowdomain.ErrAlreadyReleased),
		errors.Is(err, escrowdomain.ErrAlreadyRefunded),
		errors.Is(err, escrowdomain.ErrEscrowLocked),
		errors.Is(err, receiptdomain.ErrInvoiceNotSettled),
		errors.Is(err, feedomain.ErrRecipientNotConfigured):
		return true
	default:
		return false
	}
}

func isFatalError(err error) bool {
	switch {
	case errors.Is(err, receiptdomain.ErrReceiptExists),
		errors.Is(err, escrowdomain.ErrEscrowExists),
		errors.Is(err, ledgerdomain.ErrUnbalancedEntry),
		errors.Is(err, ledgerdomain.ErrDuplicateEntry),
		errors.Is(err, store.ErrDuplicate):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation", err.Error()
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", err.Error()
	case isForbiddenError(err):
		return "forbidden", err.Error()
	case isNotFoundError(err):
		return "not_found", err.Error()
	case isStateError(err):
		return "conflict", err.Error()
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", err.Error()
	case isFatalError(err):
		return "invariant", err.Error()
	default:
		return "internal", "internal_error"
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_invoice_id":
		return "id"
	case "invalid_party", "invalid_actor":
		return "address"
	}
	return strings.TrimPrefix(code, "invalid_")
}
