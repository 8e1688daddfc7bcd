// Package traideerr defines the stable error taxonomy shared by the trade
// engine and its callers. Every failure carries a machine-readable Kind and
// a human-readable message; the HTTP layer maps kinds to status codes.
package traideerr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind is the stable classification of a failure.
type Kind string

const (
	KindQuoteUnavailable     Kind = "quote_unavailable"
	KindInsufficientFunds    Kind = "insufficient_funds"
	KindInsufficientHoldings Kind = "insufficient_holdings"
	KindInvalidQuantity      Kind = "invalid_quantity"
	KindNotFound             Kind = "not_found"
	KindUnauthorized         Kind = "unauthorized"
	KindConflict             Kind = "conflict"
	KindInternal             Kind = "internal"
)

// Error is the envelope for all domain failures.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Shortfall detail, set for InsufficientFunds / InsufficientHoldings.
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from any error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// Is matches errors by kind so callers can compare against sentinels.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New creates an error with a kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// QuoteUnavailable marks an upstream quote fetch failure for a symbol.
func QuoteUnavailable(symbol string, cause error) *Error {
	return &Error{
		Kind:    KindQuoteUnavailable,
		Message: fmt.Sprintf("no usable quote for %s", symbol),
		Err:     cause,
	}
}

// InsufficientFunds reports a buy whose total exceeds the balance.
func InsufficientFunds(required, available decimal.Decimal) *Error {
	return &Error{
		Kind:      KindInsufficientFunds,
		Message:   fmt.Sprintf("insufficient funds: required %s, available %s", required.Round(2), available.Round(2)),
		Required:  required,
		Available: available,
	}
}

// InsufficientHoldings reports a sell exceeding the held quantity.
func InsufficientHoldings(symbol string, requested, held decimal.Decimal) *Error {
	return &Error{
		Kind:      KindInsufficientHoldings,
		Message:   fmt.Sprintf("insufficient holdings of %s: requested %s, held %s", symbol, requested, held),
		Required:  requested,
		Available: held,
	}
}

// InvalidQuantity rejects a non-positive trade quantity or deposit amount.
func InvalidQuantity(quantity decimal.Decimal) *Error {
	return &Error{
		Kind:    KindInvalidQuantity,
		Message: fmt.Sprintf("quantity must be positive, got %s", quantity),
	}
}

// NotFound reports an unknown entity.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// Unauthorized reports a missing, invalid, or expired credential.
func Unauthorized(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Message: reason}
}
