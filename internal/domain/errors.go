package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ValidationError rejects malformed input: non-positive amounts, unknown
// sides, out-of-tolerance slippage. Never retriable.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation [%s]: %s", e.Field, e.Msg)
}

func (e *ValidationError) IsRetriable() bool { return false }

// NotFoundError is returned when a token or account is unknown.
type NotFoundError struct {
	Kind string // "token", "holding", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) IsRetriable() bool { return false }

// ConflictError is returned on duplicate unique keys, e.g. a settlement
// reference submitted twice.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

func (e *ConflictError) IsRetriable() bool { return false }

// InsufficientBalanceError is returned when a sell exceeds the holding.
type InsufficientBalanceError struct {
	Wallet string
	Mint   string
	Need   int64
	Have   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: wallet %s mint %s need %d have %d",
		e.Wallet, e.Mint, e.Need, e.Have)
}

func (e *InsufficientBalanceError) IsRetriable() bool { return false }

// ExternalServiceError wraps a failed chain read (timeout, transport, RPC
// error, missing account). Retriable: the next sync cycle tries again.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExternalServiceError) IsRetriable() bool { return true }

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// DecodeError is returned for malformed or truncated account bytes.
// A sync cycle never proceeds on partially parsed data.
type DecodeError struct {
	Msg    string
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s (len=%d)", e.Msg, e.Length)
}

func (e *DecodeError) IsRetriable() bool { return false }

// ArithmeticError aborts a single pricing computation: zero reserve
// division, int64 overflow, a reserve driven non-positive.
type ArithmeticError struct {
	Op  string
	Msg string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic [%s]: %s", e.Op, e.Msg)
}

func (e *ArithmeticError) IsRetriable() bool { return false }

// Predicate helpers for callers that branch on the taxonomy.

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsInsufficientBalance(err error) bool {
	var e *InsufficientBalanceError
	return errors.As(err, &e)
}

func IsExternalService(err error) bool {
	var e *ExternalServiceError
	return errors.As(err, &e)
}

func IsDecode(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

func IsArithmetic(err error) bool {
	var e *ArithmeticError
	return errors.As(err, &e)
}
