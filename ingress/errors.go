package ingress

import "errors"

// Kind is a stable category for programmatic error handling.
//
// KindContract marks a caller-side contract breach (e.g. a derivation
// attempted before acceptance). It indicates a programming error in the
// integration, not recoverable input, and must never be swallowed.
type Kind string

const (
	KindValidation Kind = "Validation"
	KindContract   Kind = "Contract"
	KindNotFound   Kind = "NotFound"
	KindInternal   Kind = "Internal"
)

// Error is the package's structured error type. RuleID names the violated
// invariant (e.g., ING-GRD-001); Message is for humans.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
