package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAssistantInactive = errors.New("assistant is inactive")
	ErrConflict          = errors.New("conflict")
	ErrTokenLimitReached = errors.New("token limit reached")
	ErrCapacityExceeded  = errors.New("all models rate limited")
)

// TokenLimitError carries the user-facing message for a daily or monthly
// token budget breach. It matches ErrTokenLimitReached via errors.Is.
type TokenLimitError struct {
	Message string
}

func (e *TokenLimitError) Error() string {
	return e.Message
}

func (e *TokenLimitError) Unwrap() error {
	return ErrTokenLimitReached
}
