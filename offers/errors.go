package offers

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, wire-visible code mirroring the JSON-RPC codes
// the original offers surface exposes.
type ErrorCode int

const (
	// CodeOfferAlreadyExists signals creation of an offer whose id is
	// already stored.
	CodeOfferAlreadyExists ErrorCode = 1000

	// CodeOfferAlreadyDisabled signals disabling an offer that can no
	// longer be disabled: a used single-use offer.
	CodeOfferAlreadyDisabled ErrorCode = 1001

	// CodeOfferExpired signals a request against an offer past its
	// absolute expiry.
	CodeOfferExpired ErrorCode = 1002

	// CodeOfferRouteNotFound signals that no onion message route to
	// the offering node exists.
	CodeOfferRouteNotFound ErrorCode = 1003

	// CodeOfferBadInvreqReply signals that the reply to an invoice
	// request violated a BOLT-12 invariant.
	CodeOfferBadInvreqReply ErrorCode = 1004

	// CodeInvalidParams signals malformed or inconsistent user
	// parameters.
	CodeInvalidParams ErrorCode = -32602
)

// String returns the code's stable symbolic name.
func (c ErrorCode) String() string {
	switch c {
	case CodeOfferAlreadyExists:
		return "OFFER_ALREADY_EXISTS"
	case CodeOfferAlreadyDisabled:
		return "OFFER_ALREADY_DISABLED"
	case CodeOfferExpired:
		return "OFFER_EXPIRED"
	case CodeOfferRouteNotFound:
		return "OFFER_ROUTE_NOT_FOUND"
	case CodeOfferBadInvreqReply:
		return "OFFER_BAD_INVREQ_REPLY"
	case CodeInvalidParams:
		return "JSONRPC_INVALID_PARAMS"
	default:
		return fmt.Sprintf("code<%d>", int(c))
	}
}

// Error pairs a stable code with a human readable cause naming the
// offending field.
type Error struct {
	// Code is the stable error code.
	Code ErrorCode

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.Code, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps a cause with a stable code.
func NewError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf wraps a formatted cause with a stable code.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the stable code from an error chain, returning false
// if none is attached.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}

	return 0, false
}
