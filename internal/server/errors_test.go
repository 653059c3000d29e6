package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/kasira/internal/apikey/domain"
	"github.com/smallbiznis/kasira/internal/authorization"
	invoicedomain "github.com/smallbiznis/kasira/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/kasira/internal/payment/domain"
	productdomain "github.com/smallbiznis/kasira/internal/product/domain"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		errType string
	}{
		{apikeydomain.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{shopdomain.ErrInvalidTaxRate, http.StatusBadRequest, "validation_error"},
		{productdomain.ErrInvalidQuantity, http.StatusBadRequest, "validation_error"},
		{productdomain.ErrSKUTaken, http.StatusConflict, "conflict"},
		{invoicedomain.ErrInsufficient, http.StatusConflict, "conflict"},
		{invoicedomain.ErrAlreadyVoid, http.StatusConflict, "conflict"},
		{paymentdomain.ErrOverpayment, http.StatusConflict, "conflict"},
		{productdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{invoicedomain.ErrUnknownProduct, http.StatusNotFound, "not_found"},
		{ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"},
		{db.ErrNotConnected, http.StatusServiceUnavailable, "service_unavailable"},
		{db.ErrReconnectCooldown, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.errType, payload.Type)
		})
	}
}

func TestMapErrorWrappedSentinel(t *testing.T) {
	status, payload := mapError(fmt.Errorf("record payment: %w", paymentdomain.ErrInvoiceVoid))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)
}

func TestMapErrorValidationDetail(t *testing.T) {
	status, payload := mapError(invoicedomain.ErrInvalidCustomer)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "customer", payload.Errors[0].Field)
	assert.Equal(t, "invalid_customer", payload.Errors[0].Code)
}

func TestMapErrorCooldownIsDistinguishable(t *testing.T) {
	_, cooldown := mapError(db.ErrReconnectCooldown)
	_, outage := mapError(db.ErrNotConnected)
	assert.NotEqual(t, outage.Message, cooldown.Message)
	assert.Contains(t, cooldown.Message, "retry")
}

func TestErrorHandlingMiddlewareSetsRetryAfterOnCooldown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/cooling", func(c *gin.Context) {
		AbortWithError(c, fmt.Errorf("load invoice: %w", db.ErrReconnectCooldown))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cooling", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error.Message, "retry")
}

func TestErrorHandlingMiddlewareWritesBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/boom", func(c *gin.Context) {
		AbortWithError(c, productdomain.ErrSKUTaken)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body.Error.Type)
}

func TestErrorHandlingMiddlewareSkipsWrittenResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "fine"})
		_ = c.Error(errors.New("late error"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fine")
}
