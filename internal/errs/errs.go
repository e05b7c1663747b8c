package errs

import (
	"errors"
	"fmt"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrInvalidKind          = errors.New("invalid conversation kind")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrMissingField         = errors.New("missing required field")
	ErrEmptyMessage         = errors.New("message text is empty")

	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("access denied")
	ErrSessionExpired = errors.New("agent session expired")
	ErrInactiveAgent  = errors.New("agent is inactive")

	ErrNotConfirmed = errors.New("subscription not confirmed")
)

// Field сообщает о пропущенном обязательном поле. errors.Is(err, ErrMissingField) выполняется.
func Field(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}

// Transition сообщает о смене статуса, которую запрещает таблица переходов.
func Transition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
