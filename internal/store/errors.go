package store

import (
	"errors"
	"strings"
)

var (
	// ErrValidation marks a message that violates the persistence invariants.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Is lets callers match any ValidationError against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidateMessage checks the invariants every persisted message must hold:
// a sender, a non-blank body and exactly one target.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return &ValidationError{Field: "message", Reason: "is nil"}
	}
	if msg.SenderID <= 0 {
		return &ValidationError{Field: "sender", Reason: "is required"}
	}
	if strings.TrimSpace(msg.Body) == "" {
		return &ValidationError{Field: "body", Reason: "is required"}
	}

	hasGroup := msg.GroupID != nil && *msg.GroupID > 0
	hasRecipient := msg.RecipientID != nil && *msg.RecipientID > 0
	switch {
	case hasGroup && hasRecipient:
		return &ValidationError{Field: "target", Reason: "must be a group or a recipient, not both"}
	case !hasGroup && !hasRecipient:
		return &ValidationError{Field: "target", Reason: "is required"}
	case hasRecipient && *msg.RecipientID == msg.SenderID:
		return &ValidationError{Field: "recipient", Reason: "cannot message yourself"}
	}

	return nil
}
