package identity

import "context"

// Attribute is a named user attribute sent with a registration.
type Attribute struct {
	Name  string
	Value string
}

// AuthResult is what the provider returns for a credential check that did not fail:
// either tokens or a challenge.
type AuthResult struct {
	Tokens    *TokenSet
	Challenge *Challenge
}

// SignUpResult is the provider's acknowledgement of a registration.
type SignUpResult struct {
	UserSub     string
	Confirmed   bool
	Destination string
	Medium      string
}

// CodeDelivery reports where a confirmation code was sent.
type CodeDelivery struct {
	Destination string
	Medium      string
}

// Provider is the capability set of the hosted identity service. Coded failures are
// returned as *ProviderError; any other error is treated as a transport failure.
type Provider interface {
	AuthenticateUser(ctx context.Context, identifier, secret string) (AuthResult, error)
	SignUp(ctx context.Context, identifier, secret string, attributes []Attribute) (SignUpResult, error)
	ConfirmRegistration(ctx context.Context, identifier, code string) error
	ResendConfirmationCode(ctx context.Context, identifier string) (CodeDelivery, error)
}
