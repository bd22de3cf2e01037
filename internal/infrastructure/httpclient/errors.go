package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// serverError is the {code, message} body of 4xx/5xx responses
type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// authError is the {error, errorDescription} body of 401/403 responses
type authError struct {
	Error       string `json:"error"`
	Description string `json:"errorDescription"`
}

// ClassifyStatus maps a non-2xx response onto the error taxonomy
func ClassifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		var e authError
		_ = sonic.Unmarshal(body, &e)
		msg := e.Description
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return types.ServerError(status, msg)
	case status == http.StatusNotFound:
		return types.NewError(types.KindNotFound, messageOf(status, body))
	case status == http.StatusTooManyRequests:
		return types.NewError(types.KindTooManyRequests, messageOf(status, body))
	default:
		return types.ServerError(status, messageOf(status, body))
	}
}

func messageOf(status int, body []byte) string {
	var e serverError
	if err := sonic.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return http.StatusText(status)
}

// ClassifyTransport maps a failed round trip onto the error taxonomy.
// Cancellation is passed through so callers can tell it apart from
// connectivity loss; everything else is Offline.
func ClassifyTransport(err error, what string) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return types.Wrap(types.KindOffline, err, what)
}

// countsAgainstBreaker reports whether err indicates the platform itself is unhealthy
func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return types.IsOffline(err) || types.IsTransient(err)
}
