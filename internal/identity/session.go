// Package identity wraps round trips with the hosted identity provider and reports
// each of them as a single tagged Outcome.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/recipereels/backend/internal/logging"
)

// Attribute names understood by the user pool.
const (
	AttributeEmail    = "email"
	AttributePhone    = "phone_number"
	AttributeNickname = "nickname"
)

const minSecretLength = 8

var (
	emailPattern      = regexp.MustCompile(`\S+@\S+\.\S+`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	phonePattern      = regexp.MustCompile(`^\+?[\d\s-]+$`)
	digitPattern      = regexp.MustCompile(`\d`)
)

// Registration carries the attributes collected by the sign-up form.
type Registration struct {
	Identifier string
	Secret     string
	Email      string
	Phone      string
}

// Session performs one round trip at a time against the identity provider.
type Session struct {
	provider Provider
	logger   *slog.Logger

	inFlight atomic.Bool
	attempt  atomic.Uint64
}

// NewSession binds a Session to the process-wide provider client.
func NewSession(provider Provider) *Session {
	return &Session{provider: provider}
}

// WithLogger overrides the logger used when no request logger is on the context.
func (s *Session) WithLogger(logger *slog.Logger) *Session {
	s.logger = logger
	return s
}

// Authenticate checks the credentials and returns success(tokens), challenge or failure.
func (s *Session) Authenticate(ctx context.Context, identifier, secret string) (Outcome, error) {
	attempt, release, err := s.begin()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	ctx, span := logging.StartSpan(ctx, "identity.authenticate")
	defer span.End()
	logger := s.log(ctx).With("identifier", identifier)

	result, err := s.provider.AuthenticateUser(ctx, identifier, secret)
	if err != nil {
		return s.classify(logger, attempt, "authenticate", err)
	}

	if c := result.Challenge; c != nil {
		if c.Kind == ChallengeNone {
			logger.Error("unsupported challenge", "name", c.Name)
			return Outcome{}, fmt.Errorf("authenticate %s: %w: unsupported challenge %q", identifier, ErrTransport, c.Name)
		}
		logger.Info("authentication challenged", "challenge", c.Kind.String(), "name", c.Name)
		return Outcome{Kind: OutcomeChallenge, Attempt: attempt, Challenge: c}, nil
	}
	if result.Tokens == nil {
		logger.Error("provider returned neither tokens nor challenge")
		return Outcome{}, fmt.Errorf("authenticate %s: %w: empty response", identifier, ErrTransport)
	}

	logger.Info("authentication succeeded")
	out := success(attempt)
	out.Tokens = result.Tokens
	return out, nil
}

// Register validates the registration locally, normalises the phone number and
// submits it with the email, phone_number and nickname attributes.
func (s *Session) Register(ctx context.Context, reg Registration) (Outcome, error) {
	attempt, release, err := s.begin()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	if pe := ValidateRegistration(reg); pe != nil {
		return failure(attempt, pe), nil
	}

	ctx, span := logging.StartSpan(ctx, "identity.register")
	defer span.End()
	logger := s.log(ctx).With("identifier", reg.Identifier)

	email := strings.TrimSpace(reg.Email)
	attributes := []Attribute{
		{Name: AttributeEmail, Value: email},
		{Name: AttributePhone, Value: NormalizePhone(reg.Phone)},
		{Name: AttributeNickname, Value: strings.TrimSpace(reg.Identifier)},
	}

	result, err := s.provider.SignUp(ctx, reg.Identifier, reg.Secret, attributes)
	if err != nil {
		return s.classify(logger, attempt, "register", err)
	}

	logger.Info("registration accepted", "confirmed", result.Confirmed, "medium", result.Medium)
	out := success(attempt)
	out.Pending = &PendingVerification{
		Identifier:  reg.Identifier,
		Email:       email,
		UserSub:     result.UserSub,
		Confirmed:   result.Confirmed,
		Destination: result.Destination,
		Medium:      result.Medium,
	}
	return out, nil
}

// ConfirmRegistration submits the confirmation code for a pending account.
func (s *Session) ConfirmRegistration(ctx context.Context, identifier, code string) (Outcome, error) {
	attempt, release, err := s.begin()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	ctx, span := logging.StartSpan(ctx, "identity.confirm")
	defer span.End()
	logger := s.log(ctx).With("identifier", identifier)

	if err := s.provider.ConfirmRegistration(ctx, identifier, strings.TrimSpace(code)); err != nil {
		return s.classify(logger, attempt, "confirm", err)
	}

	logger.Info("registration confirmed")
	return success(attempt), nil
}

// ResendCode asks the provider to deliver a fresh confirmation code.
func (s *Session) ResendCode(ctx context.Context, identifier string) (Outcome, error) {
	attempt, release, err := s.begin()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	ctx, span := logging.StartSpan(ctx, "identity.resend")
	defer span.End()
	logger := s.log(ctx).With("identifier", identifier)

	delivery, err := s.provider.ResendConfirmationCode(ctx, identifier)
	if err != nil {
		return s.classify(logger, attempt, "resend", err)
	}

	logger.Info("confirmation code resent", "medium", delivery.Medium)
	out := success(attempt)
	out.Pending = &PendingVerification{
		Identifier:  identifier,
		Destination: delivery.Destination,
		Medium:      delivery.Medium,
	}
	return out, nil
}

// Current reports whether the outcome belongs to the most recent attempt.
func (s *Session) Current(out Outcome) bool {
	return out.Attempt != 0 && out.Attempt == s.attempt.Load()
}

// CheckChallenge returns ErrStaleChallenge unless out is a challenge produced by the
// most recent attempt.
func (s *Session) CheckChallenge(out Outcome) error {
	if out.Kind != OutcomeChallenge || out.Challenge == nil || !s.Current(out) {
		return ErrStaleChallenge
	}
	return nil
}

// InFlight reports whether a round trip is currently pending.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Session) begin() (uint64, func(), error) {
	if s == nil || s.provider == nil {
		return 0, nil, ErrProviderUnavailable
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return 0, nil, ErrInFlight
	}
	attempt := s.attempt.Add(1)
	return attempt, func() { s.inFlight.Store(false) }, nil
}

func (s *Session) classify(logger *slog.Logger, attempt uint64, op string, err error) (Outcome, error) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		logger.Warn("provider rejected request", "op", op, "kind", pe.Kind.String(), "code", pe.Code)
		return failure(attempt, pe), nil
	}
	logger.Error("provider call failed", "op", op, "error", err)
	return Outcome{}, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

func (s *Session) log(ctx context.Context) *slog.Logger {
	if logging.HasLogger(ctx) || s.logger == nil {
		return logging.FromContext(ctx)
	}
	return s.logger
}

// NormalizePhone trims the number and prepends "+" when it is missing.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}

// ValidateRegistration mirrors the user pool's constraints. It returns nil when the
// registration may be sent.
func ValidateRegistration(reg Registration) *ProviderError {
	switch {
	case len(reg.Secret) < minSecretLength:
		return &ProviderError{Kind: KindInvalidPassword, Message: "password must be at least 8 characters"}
	case !emailPattern.MatchString(strings.TrimSpace(reg.Email)):
		return &ProviderError{Kind: KindInvalidParameter, Field: FieldEmail, Message: "invalid email address"}
	case !ValidPhone(reg.Phone):
		return &ProviderError{Kind: KindInvalidParameter, Field: FieldPhone, Message: "invalid phone number"}
	case !identifierPattern.MatchString(reg.Identifier):
		return &ProviderError{Kind: KindInvalidParameter, Field: FieldUsername, Message: "username may only contain letters, digits and underscores"}
	}
	return nil
}

// ValidPhone accepts an optional leading "+", digits, spaces and hyphens, with at
// least one digit.
func ValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	return phonePattern.MatchString(phone) && digitPattern.MatchString(phone)
}

// ValidIdentifier reports whether the identifier uses only letters, digits and underscores.
func ValidIdentifier(identifier string) bool {
	return identifierPattern.MatchString(identifier)
}

// ValidEmail reports whether the address has the local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}
