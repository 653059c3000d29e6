package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/kasira/internal/apikey/domain"
	"github.com/smallbiznis/kasira/internal/authorization"
	customerdomain "github.com/smallbiznis/kasira/internal/customer/domain"
	grndomain "github.com/smallbiznis/kasira/internal/grn/domain"
	invoicedomain "github.com/smallbiznis/kasira/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/kasira/internal/payment/domain"
	productdomain "github.com/smallbiznis/kasira/internal/product/domain"
	reminderdomain "github.com/smallbiznis/kasira/internal/reminder/domain"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	supplierdomain "github.com/smallbiznis/kasira/internal/supplier/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"gorm.io/gorm"
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
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// reconnectRetryAfter advertises the gateway's reconnect cadence; the
// cooldown window is measured in tens of seconds, so a short client wait
// is enough.
const reconnectRetryAfter = "5"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
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
		if errors.Is(lastErr.Err, db.ErrReconnectCooldown) {
			c.Header("Retry-After", reconnectRetryAfter)
		}
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
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
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
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, db.ErrReconnectCooldown):
		// Distinct from a hard outage: the gateway refused to redial inside
		// its cooldown window, so the database is likely back soon.
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "database reconnecting, retry in a few seconds",
		}
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service temporarily unavailable",
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
		errors.Is(err, shopdomain.ErrInvalidName),
		errors.Is(err, shopdomain.ErrInvalidID),
		errors.Is(err, shopdomain.ErrInvalidTaxRate),
		errors.Is(err, productdomain.ErrInvalidSKU),
		errors.Is(err, productdomain.ErrInvalidName),
		errors.Is(err, productdomain.ErrInvalidID),
		errors.Is(err, productdomain.ErrInvalidPrice),
		errors.Is(err, productdomain.ErrInvalidQuantity),
		errors.Is(err, customerdomain.ErrInvalidName),
		errors.Is(err, customerdomain.ErrInvalidEmail),
		errors.Is(err, customerdomain.ErrInvalidID),
		errors.Is(err, supplierdomain.ErrInvalidName),
		errors.Is(err, supplierdomain.ErrInvalidID),
		errors.Is(err, grndomain.ErrInvalidSupplier),
		errors.Is(err, grndomain.ErrInvalidLines),
		errors.Is(err, grndomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidCustomer),
		errors.Is(err, invoicedomain.ErrInvalidLines),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidToken),
		errors.Is(err, paymentdomain.ErrInvalidInvoice),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidID),
		errors.Is(err, reminderdomain.ErrInvalidInvoice),
		errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidRole),
		errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, shopdomain.ErrSlugTaken),
		errors.Is(err, productdomain.ErrSKUTaken),
		errors.Is(err, productdomain.ErrInsufficient),
		errors.Is(err, grndomain.ErrDuplicateNumber),
		errors.Is(err, grndomain.ErrAlreadyReceived),
		errors.Is(err, invoicedomain.ErrDuplicateNumber),
		errors.Is(err, invoicedomain.ErrInsufficient),
		errors.Is(err, invoicedomain.ErrAlreadyVoid),
		errors.Is(err, invoicedomain.ErrHasPayments),
		errors.Is(err, paymentdomain.ErrInvoiceVoid),
		errors.Is(err, paymentdomain.ErrOverpayment):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, productdomain.ErrInsufficient),
		errors.Is(err, invoicedomain.ErrInsufficient):
		return "insufficient stock"
	case errors.Is(err, paymentdomain.ErrOverpayment):
		return "payment exceeds amount due"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, shopdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, supplierdomain.ErrNotFound),
		errors.Is(err, grndomain.ErrNotFound),
		errors.Is(err, grndomain.ErrUnknownProduct),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrUnknownProduct),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// isUnavailableError covers the gateway's connectivity failures. Callers
// get a 503 and retry later instead of a misleading 500.
func isUnavailableError(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, db.ErrNotConnected) ||
		errors.Is(err, db.ErrReconnectCooldown) {
		return true
	}
	_, classified := db.Classify(err)
	return classified
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// classifyErrorForLog feeds the request logger's error_type and
// error_code fields.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	if status >= 500 {
		return payload.Type, err.Error()
	}
	return payload.Type, payload.Type
}
