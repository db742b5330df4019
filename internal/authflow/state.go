package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/recipereels/backend/internal/identity"
)

// State is the position of the sign-in / sign-up flow.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateAuthenticated
	StateChallengePending
	StateVerificationPending
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateAuthenticated:
		return "authenticated"
	case StateChallengePending:
		return "challengePending"
	case StateVerificationPending:
		return "verificationPending"
	case StateFailed:
		return "error"
	default:
		return "unknown"
	}
}

// VerificationStatus is the position of the email verification sub-flow.
type VerificationStatus int

const (
	Unverified VerificationStatus = iota
	Verifying
	Verified
	Expired
	Mismatched
)

func (v VerificationStatus) String() string {
	switch v {
	case Unverified:
		return "unverified"
	case Verifying:
		return "verifying"
	case Verified:
		return "verified"
	case Expired:
		return "expired"
	case Mismatched:
		return "mismatched"
	default:
		return "unknown"
	}
}

// ErrIllegalTransition indicates a verification status change that skips a step.
var ErrIllegalTransition = errors.New("authflow: illegal verification transition")

var verificationTransitions = map[VerificationStatus][]VerificationStatus{
	Unverified: {Verifying},
	Verifying:  {Verified, Expired, Mismatched, Unverified},
	Expired:    {Unverified},
	Mismatched: {Unverified},
}

// Verification tracks one identifier awaiting its confirmation code.
type Verification struct {
	Identifier string
	Email      string
	Status     VerificationStatus
}

// Advance moves the status forward, rejecting any change the sub-flow does not allow.
func (v *Verification) Advance(to VerificationStatus) error {
	for _, allowed := range verificationTransitions[v.Status] {
		if allowed == to {
			v.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v.Status, to)
}

// Route names the screen the UI should show next.
type Route string

const (
	RouteHome           Route = "/home"
	RouteSignIn         Route = "/sign-in"
	RouteChangePassword Route = "/change-password"
	RouteMFA            Route = "/mfa"
	RouteMFASetup       Route = "/mfa-setup"
	RouteVerify         Route = "/verified"
)

// Navigation instructs the UI to move to Route with Params after Delay.
type Navigation struct {
	Route  Route             `json:"route"`
	Params map[string]string `json:"params,omitempty"`
	Delay  time.Duration     `json:"delay,omitempty"`
}

// Result is what the UI renders after an operation.
type Result struct {
	State        State
	Verification VerificationStatus
	Message      string
	Navigation   *Navigation
	Tokens       *identity.TokenSet
	Challenge    *identity.Challenge
	Err          error
}
