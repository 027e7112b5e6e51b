package bankgrow

import (
	"errors"
	"fmt"
)

var (
	ErrInternalServer = errors.New("internal server error")

	// ErrServiceUnavailable is returned by the load-shedding middlewares when
	// the service cannot accept more work right now.
	ErrServiceUnavailable = errors.New("service unavailable")
)

type ErrBadRequest struct {
	Fields map[string]string `json:"fields"`
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("missing/invalid params: %v", e.Fields)
}

type ErrNotFound struct {
	UserID int64 `json:"user_id"`
}

func (e ErrNotFound) Error() string {
	return "account not found"
}

// ErrInsufficientFunds is a business rejection: the balance observed on the
// re-read after a failed conditional update is below the requested amount.
// Retrying with the same amount will reproduce the same result.
type ErrInsufficientFunds struct {
	UserID int64 `json:"user_id"`
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds on account of user %d", e.UserID)
}

// ErrConcurrentModification signals that a conditional update lost to a
// concurrent writer even though the business precondition holds on the
// re-read. The caller may retry the identical operation.
type ErrConcurrentModification struct {
	UserID int64 `json:"user_id"`
}

func (e ErrConcurrentModification) Error() string {
	return fmt.Sprintf("concurrent modification detected for account of user %d", e.UserID)
}

// ErrCeilingExceeded is a business rejection raised by Grow when the account
// has no headroom left below its growth ceiling.
type ErrCeilingExceeded struct {
	UserID int64 `json:"user_id"`
}

func (e ErrCeilingExceeded) Error() string {
	return fmt.Sprintf("growth ceiling reached for account of user %d", e.UserID)
}
