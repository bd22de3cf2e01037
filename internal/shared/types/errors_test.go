package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NewError(KindNotFound, "no entry for app1"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidAppID))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{NewError(KindCorrupted, "missing index.html"), "Corrupted: missing index.html"},
		{ServerError(503, "unavailable"), "ServerError(503): unavailable"},
		{Wrap(KindOffline, errors.New("dial tcp: refused"), "fetch info"), "Offline: fetch info: dial tcp: refused"},
		{&Error{Kind: KindUnknown}, "Unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindDownloadingFailed, cause, "asset a.js")

	assert.ErrorIs(t, err, cause)

	var typed *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &typed)
	assert.Equal(t, KindDownloadingFailed, typed.Kind)
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsOffline(Wrap(KindOffline, errors.New("x"), "")))
	assert.False(t, IsOffline(ServerError(500, "")))

	assert.True(t, IsTransient(ServerError(500, "")))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ServerError(502, ""))))
	assert.False(t, IsTransient(ServerError(404, "")))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}
