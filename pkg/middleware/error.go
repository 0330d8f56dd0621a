package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error renders handler errors as JSON. Domain errors keep their code and map onto
// the matching HTTP status; anything unrecognised is a 500.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		resp := ErrorResponse{
			Message:   "Internal Server Error",
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      map[string]any{},
		}
		status := http.StatusInternalServerError

		var domainErr *domainerrors.Error
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &domainErr):
			status = domainerrors.StatusCode(domainErr.Code)
			resp.Code = string(domainErr.Code)
			if status != http.StatusInternalServerError {
				resp.Message = domainErr.Message
			}
		case httperror.IsHTTPError(err):
			httpErr := httperror.ToHTTPError(err)
			status = httperror.GetStatusCode(err)
			resp.Message = httpErr.Error()
			if httpErr.Meta != nil {
				resp.Meta = httpErr.Meta
			}
		case errors.As(err, &echoErr):
			status = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				resp.Message = msg
			}
		}

		log := logger.WithContext(ctx).WithError(err).WithField("status", status)
		if status >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api rejected the request")
		}

		_ = c.JSON(status, resp)
	}
}
