package authflow

import "errors"

var (
	// ErrInFlight indicates a submit was attempted while another is pending.
	ErrInFlight = errors.New("authflow: submission already in flight")
	// ErrAbandoned indicates the result arrived after the user left the screen.
	ErrAbandoned = errors.New("authflow: flow abandoned")
)

// ValidationError is raised before any network call when a form is malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return "validation: " + e.Field + ": " + e.Message
}

// StateError indicates the flow was asked to act without the data it needs, such as
// a verification screen opened without an identifier.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "authflow state: " + e.Reason
}
