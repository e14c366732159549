package services

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials is returned by Authenticate for any unknown user or bad password.
var ErrInvalidCredentials = errors.New("invalid username or password")

type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

type ConflictError struct {
	Entity string
	Field  string
	Value  any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %v already exists", e.Entity, e.Field, e.Value)
}

type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientBalanceError carries the balance observed at the time of the
// failed debit.
type InsufficientBalanceError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Shortfall() int64 {
	return e.Requested - e.Balance
}

// ImportError means the row source itself could not be read.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string {
	return "import failed: " + e.Err.Error()
}

func (e *ImportError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsInvalidArgument(err error) bool {
	var e *InvalidArgumentError
	return errors.As(err, &e)
}

func IsInsufficientBalance(err error) bool {
	var e *InsufficientBalanceError
	return errors.As(err, &e)
}
