package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInFlight indicates another attempt for the same session has not completed yet.
	ErrInFlight = errors.New("identity: attempt already in flight")
	// ErrTransport indicates the provider could not be reached or returned no usable code.
	ErrTransport = errors.New("identity: transport failure")
	// ErrStaleChallenge indicates a challenge from an earlier attempt was presented.
	ErrStaleChallenge = errors.New("identity: challenge does not belong to the latest attempt")
	// ErrProviderUnavailable indicates the session was built without a provider.
	ErrProviderUnavailable = errors.New("identity: provider unavailable")
	// ErrUnauthenticated indicates a caller presented no valid access token.
	ErrUnauthenticated = errors.New("identity: caller is not authenticated")
)

// ErrorKind classifies provider failures independently of the provider's own codes.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUserNotFound
	KindNotAuthorized
	KindUserNotConfirmed
	KindUsernameTaken
	KindInvalidPassword
	KindInvalidParameter
	KindCodeMismatch
	KindCodeExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindUserNotFound:
		return "userNotFound"
	case KindNotAuthorized:
		return "notAuthorized"
	case KindUserNotConfirmed:
		return "userNotConfirmed"
	case KindUsernameTaken:
		return "usernameTaken"
	case KindInvalidPassword:
		return "invalidPassword"
	case KindInvalidParameter:
		return "invalidParameter"
	case KindCodeMismatch:
		return "codeMismatch"
	case KindCodeExpired:
		return "codeExpired"
	default:
		return "unknown"
	}
}

// Fields named by KindInvalidParameter failures.
const (
	FieldPhone    = "phone"
	FieldEmail    = "email"
	FieldUsername = "username"
)

// ProviderError is a coded failure reported by the identity provider.
type ProviderError struct {
	Kind    ErrorKind
	Field   string
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches against another *ProviderError by kind, so callers can test with
// errors.Is(err, &ProviderError{Kind: KindCodeExpired}).
func (e *ProviderError) Is(target error) bool {
	var other *ProviderError
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Kind == other.Kind
}

var providerCodes = map[string]ErrorKind{
	"UserNotFoundException":     KindUserNotFound,
	"NotAuthorizedException":    KindNotAuthorized,
	"UserNotConfirmedException": KindUserNotConfirmed,
	"UsernameExistsException":   KindUsernameTaken,
	"InvalidPasswordException":  KindInvalidPassword,
	"InvalidParameterException": KindInvalidParameter,
	"CodeMismatchException":     KindCodeMismatch,
	"ExpiredCodeException":      KindCodeExpired,
}

// ClassifyCode maps a provider failure code and message onto a ProviderError.
func ClassifyCode(code, message string) *ProviderError {
	kind, ok := providerCodes[code]
	if !ok {
		kind = KindUnknown
	}

	pe := &ProviderError{Kind: kind, Code: code, Message: message}
	if kind == KindInvalidParameter {
		pe.Field = parameterField(message)
	}
	return pe
}

func parameterField(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "phone"):
		return FieldPhone
	case strings.Contains(lower, "email"):
		return FieldEmail
	default:
		return FieldUsername
	}
}
