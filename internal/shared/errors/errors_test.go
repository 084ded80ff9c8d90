package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("internal error", cause)

	assert.Equal(t, "internal error: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   string
	}{
		{"not found", NotFound("order"), http.StatusNotFound, "NOT_FOUND"},
		{"bad request", BadRequest("bad"), http.StatusBadRequest, "BAD_REQUEST"},
		{"conflict", Conflict("busy"), http.StatusConflict, "CONFLICT"},
		{"validation", ValidationError("amount"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad gateway", BadGateway("", errors.New("timeout")), http.StatusBadGateway, "BAD_GATEWAY"},
		{"unavailable", Unavailable(""), http.StatusServiceUnavailable, "UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.code, tt.err.ToResponse().Error.Code)
		})
	}
}

func TestWithCode(t *testing.T) {
	err := Conflict("already captured").WithCode("payment.error.fully_captured")
	assert.Equal(t, "payment.error.fully_captured", err.Code)
	assert.Equal(t, "payment.error.fully_captured", Conflict("x").WithCode("payment.error.fully_captured").ToResponse().Error.Code)
	assert.Equal(t, "CONFLICT", Conflict("x").WithCode("").Code)
}

func TestGetStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, GetStatusCode(fmt.Errorf("load: %w", NotFound("order"))))
	assert.Equal(t, http.StatusConflict, GetStatusCode(fmt.Errorf("save: %w", ErrConflict)))
	assert.Equal(t, http.StatusBadGateway, GetStatusCode(ErrUpstream))
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(errors.New("boom")))
}
