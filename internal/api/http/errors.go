package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// ErrorBody is the payload of every failed request
type ErrorBody struct {
	Kind    types.ErrorKind        `json:"kind"`
	Message string                 `json:"message"`
	Missing []types.PermissionType `json:"missing,omitempty"`
}

var statusByKind = map[types.ErrorKind]int{
	types.KindInvalidAppID:        http.StatusBadRequest,
	types.KindInvalidVersionID:    http.StatusBadRequest,
	types.KindInvalidURL:          http.StatusBadRequest,
	types.KindNotFound:            http.StatusNotFound,
	types.KindNoPublishedVersion:  http.StatusNotFound,
	types.KindMetaDataFailure:     http.StatusConflict,
	types.KindUnavailable:         http.StatusUnprocessableEntity,
	types.KindTooManyRequests:     http.StatusTooManyRequests,
	types.KindOffline:             http.StatusServiceUnavailable,
	types.KindInvalidResponseData: http.StatusBadGateway,
	types.KindServerError:         http.StatusBadGateway,
	types.KindDownloadingFailed:   http.StatusBadGateway,
	types.KindInvalidSignature:    http.StatusBadGateway,
	types.KindCorrupted:           http.StatusBadGateway,
}

// StatusOf maps an error onto an HTTP status
func StatusOf(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if status, ok := statusByKind[types.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func bodyOf(err error) ErrorBody {
	body := ErrorBody{Kind: types.KindOf(err), Message: err.Error()}
	var e *types.Error
	if errors.As(err, &e) {
		body.Missing = e.Missing
	}
	return body
}

// RespondError writes err as a JSON error with its mapped status
func RespondError(c *gin.Context, err error) {
	c.JSON(StatusOf(err), gin.H{"error": bodyOf(err)})
}
