package core

import (
	"errors"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated   = "unauthenticated"
	ErrCodeForbidden         = "forbidden"
	ErrCodeBadRequest        = "bad_request"
	ErrCodePersistenceFailed = "persistence_failed"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeInvalidMessage    = "invalid_message"
	// ErrCodeInternal covers failures that are neither the caller's fault
	// nor a failed write, such as a membership lookup outage.
	ErrCodeInternal = "internal_error"
)

var (
	// ErrAuthorization is returned when an authenticated user acts on a
	// group they do not belong to.
	ErrAuthorization = errors.New("not a member of this group")
	// ErrValidation is returned for malformed commands. It is the same
	// sentinel the store uses, so both layers classify alike.
	ErrValidation = store.ErrValidation
	// ErrPersistence is returned when the message store rejects a write.
	ErrPersistence = errors.New("message could not be saved")
	// ErrDelivery marks a push that could not reach a connection. It is
	// logged and counted, never reported to the sender.
	ErrDelivery = errors.New("delivery failed")
	// ErrClientClosed is returned when pushing to a closed connection.
	ErrClientClosed = errors.New("client closed")
	// ErrHubStopped is returned when registering with a hub that is not running.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message. ClientKey echoes the
// key of the send that failed so the client can flag its optimistic copy.
type CoreError struct {
	Code      string
	Message   string
	ClientKey string
	Err       error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}
