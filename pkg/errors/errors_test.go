package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphboard/pkg/common"
)

func TestAppErrorChain(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := fmt.Errorf("saving graph: %w", NewPersistenceError("update graphs", cause).WithCode("42501"))

	assert.True(t, IsPersistence(err))
	assert.False(t, IsNotFound(err))
	assert.ErrorIs(t, err, cause)

	appErr := GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "42501", appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
	assert.Nil(t, GetAppError(cause))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))

	wrapped := Wrap(NewNotFoundError("graph"), "open editor")
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, "open editor: graph not found", GetAppError(wrapped).Message)

	plain := Wrap(fmt.Errorf("boom"), "load")
	assert.Equal(t, ErrorTypeInternal, GetAppError(plain).Type)
}

func TestAuthErrorKeepsReason(t *testing.T) {
	err := NewAuthError("Invalid login credentials")
	assert.True(t, IsAuth(err))
	assert.Equal(t, "Invalid login credentials", err.Message)
	assert.Equal(t, "authentication failed", NewAuthError("").Message)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		debug      bool
		err        error
		wantStatus int
		wantType   ErrorType
		wantMsg    string
	}{
		{
			name:       "typed error",
			err:        NewValidationError("title is required"),
			wantStatus: http.StatusBadRequest,
			wantType:   ErrorTypeValidation,
			wantMsg:    "title is required",
		},
		{
			name:       "malformed document",
			err:        NewMalformedDocumentError("nodes is not an array"),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   ErrorTypeMalformedDocument,
			wantMsg:    "malformed graph document: nodes is not an array",
		},
		{
			name:       "untyped error hides its text",
			err:        fmt.Errorf("dial tcp: refused"),
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeInternal,
			wantMsg:    "An internal error occurred",
		},
		{
			name:       "untyped error in debug mode",
			debug:      true,
			err:        fmt.Errorf("dial tcp: refused"),
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeInternal,
			wantMsg:    "dial tcp: refused",
		},
		{
			name:       "deadline",
			err:        fmt.Errorf("save: %w", context.DeadlineExceeded),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   ErrorTypeUnavailable,
			wantMsg:    "service 'request deadline' is unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewErrorHandler(zap.NewNop(), tt.debug)
			rec := httptest.NewRecorder()
			h.Handle(rec, httptest.NewRequest(http.MethodGet, "/api/v1/graphs", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body common.APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, string(tt.wantType), body.Error.Type)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
		})
	}
}

func TestErrorHandlerDebugDetails(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), true)
	rec := httptest.NewRecorder()
	err := NewPersistenceError("create graphs", fmt.Errorf("timeout"))
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/api/v1/graphs", nil), err)

	var body common.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "timeout", body.Error.Details["cause"])
	assert.NotEmpty(t, body.Error.Details["stack_trace"])
}
