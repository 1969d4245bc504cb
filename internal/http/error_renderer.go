package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// statusClientClosedRequest is the nginx convention for a request the client abandoned.
const statusClientClosedRequest = 499

// errorStatus maps an application error code to an HTTP status.
func errorStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeThrottled:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeUnavailable:
		return http.StatusBadGateway
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RenderError writes err as a JSON error response. Internal errors are logged and
// replaced by a generic message; client errors keep their message.
func RenderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || apperrors.IsCanceled(err) {
		w.WriteHeader(statusClientClosedRequest)
		return
	}

	code := apperrors.GetCode(err)
	if code == "" && errors.Is(err, context.DeadlineExceeded) {
		code = apperrors.ErrCodeTimeout
	}
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	status := errorStatus(code)

	msgErr := err
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"error", err,
			)
		}
		msgErr = errors.New(http.StatusText(status))
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: msgErr, Field: apperrors.GetField(err)})
}
