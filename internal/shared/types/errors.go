package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure surfaced by the core
type ErrorKind string

const (
	KindInvalidAppID        ErrorKind = "InvalidAppId"
	KindInvalidVersionID    ErrorKind = "InvalidVersionId"
	KindInvalidURL          ErrorKind = "InvalidURL"
	KindInvalidResponseData ErrorKind = "InvalidResponseData"
	KindServerError         ErrorKind = "ServerError"
	KindDownloadingFailed   ErrorKind = "DownloadingFailed"
	KindNoPublishedVersion  ErrorKind = "NoPublishedVersion"
	KindNotFound            ErrorKind = "NotFound"
	KindInvalidSignature    ErrorKind = "InvalidSignature"
	KindCorrupted           ErrorKind = "Corrupted"
	KindMetaDataFailure     ErrorKind = "MetaDataFailure"
	KindUnavailable         ErrorKind = "Unavailable"
	KindTooManyRequests     ErrorKind = "TooManyRequests"
	KindOffline             ErrorKind = "Offline"
	KindUnknown             ErrorKind = "Unknown"
)

// Sentinels for errors.Is; they match any *Error of the same kind
var (
	ErrInvalidAppID        = &Error{Kind: KindInvalidAppID}
	ErrInvalidVersionID    = &Error{Kind: KindInvalidVersionID}
	ErrInvalidURL          = &Error{Kind: KindInvalidURL}
	ErrInvalidResponseData = &Error{Kind: KindInvalidResponseData}
	ErrServerError         = &Error{Kind: KindServerError}
	ErrDownloadingFailed   = &Error{Kind: KindDownloadingFailed}
	ErrNoPublishedVersion  = &Error{Kind: KindNoPublishedVersion}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
	ErrCorrupted           = &Error{Kind: KindCorrupted}
	ErrMetaDataFailure     = &Error{Kind: KindMetaDataFailure}
	ErrUnavailable         = &Error{Kind: KindUnavailable}
	ErrTooManyRequests     = &Error{Kind: KindTooManyRequests}
	ErrOffline             = &Error{Kind: KindOffline}
	ErrUnknown             = &Error{Kind: KindUnknown}
)

// Error is the typed error returned by every core operation
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error

	// Missing lists permissions still awaiting consent (MetaDataFailure only)
	Missing []PermissionType
}

// NewError creates a typed error
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ServerError creates a ServerError(code, message)
func ServerError(code int, message string) *Error {
	return &Error{Kind: KindServerError, Code: code, Message: message}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s(%d)", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so sentinels work through wrapping
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsOffline reports whether err is an offline-class failure
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// IsTransient reports whether err is a retryable server failure (5xx)
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindServerError && e.Code >= 500
}
