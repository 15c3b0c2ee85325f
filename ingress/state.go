package ingress

import "fmt"

// VerificationState gates all post-import processing. Every item is born
// pending; accepted and rejected are terminal.
type VerificationState string

const (
	StatePending  VerificationState = "pending_verification"
	StateAccepted VerificationState = "accepted"
	StateRejected VerificationState = "rejected"
)

// Terminal reports whether the state can never change again.
func (s VerificationState) Terminal() bool {
	return s == StateAccepted || s == StateRejected
}

// canTransition encodes the full machine: pending may resolve either way,
// terminal states go nowhere.
func (s VerificationState) canTransition(to VerificationState) bool {
	if s != StatePending {
		return false
	}
	return to == StateAccepted || to == StateRejected
}

// AssertProcessable is the premature-processing guard. Every derivation,
// parse, decrypt or render entry point must call it before touching an
// imported payload.
//
// A violation is a caller-side contract breach, tagged KindContract so it
// cannot be confused with ordinary validation failure.
func AssertProcessable(state VerificationState, operation string) error {
	if state == StateAccepted {
		return nil
	}
	return newError(KindContract, "ING-GRD-001",
		fmt.Sprintf("operation %q attempted while verification state is %q; processing requires acceptance", operation, state))
}
