package errors

import (
	"context"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"graphboard/pkg/common"
)

// ErrorHandler turns errors into HTTP responses and logs them.
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

// NewErrorHandler creates a new error handler. In debug mode stack traces and
// raw causes are included in the response.
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle processes an error and sends an HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	requestID := chimiddleware.GetReqID(r.Context())

	// A request that ran out of time is reported as unavailable, not as a
	// server fault.
	if errors.Is(err, context.DeadlineExceeded) {
		err = NewUnavailableError("request deadline")
	}

	appErr := GetAppError(err)
	if appErr == nil {
		h.logger.Error("Unhandled error",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("requestID", requestID),
		)

		message := "An internal error occurred"
		if h.debug {
			message = err.Error()
		}
		common.RespondError(w, http.StatusInternalServerError, &common.ErrorInfo{
			Type:    string(ErrorTypeInternal),
			Message: message,
		}, requestID)
		return
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	h.logError(r, appErr, status, requestID)

	info := &common.ErrorInfo{
		Type:    string(appErr.Type),
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	if len(appErr.Details) > 0 || h.debug {
		info.Details = make(map[string]interface{}, len(appErr.Details)+2)
		for k, v := range appErr.Details {
			info.Details[k] = v
		}
		if h.debug {
			if appErr.StackTrace != "" {
				info.Details["stack_trace"] = appErr.StackTrace
			}
			if appErr.Cause != nil {
				info.Details["cause"] = appErr.Cause.Error()
			}
		}
	}

	common.RespondError(w, status, info, requestID)
}

func (h *ErrorHandler) logError(r *http.Request, err *AppError, status int, requestID string) {
	fields := []zap.Field{
		zap.String("errorType", string(err.Type)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("requestID", requestID),
	}
	if err.Code != "" {
		fields = append(fields, zap.String("errorCode", err.Code))
	}
	if err.Cause != nil {
		fields = append(fields, zap.NamedError("cause", err.Cause))
	}

	switch {
	case status >= 500:
		h.logger.Error(err.Message, fields...)
	default:
		h.logger.Warn(err.Message, fields...)
	}
}
