package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/recipereels/backend/internal/config"
)

type cognitoStub struct {
	initiate    *cip.InitiateAuthOutput
	initiateErr error
	signUp      *cip.SignUpOutput
	signUpErr   error
	confirmErr  error
	resend      *cip.ResendConfirmationCodeOutput
	user        *cip.GetUserOutput
	userErr     error

	lastInitiate *cip.InitiateAuthInput
	lastSignUp   *cip.SignUpInput
	lastConfirm  *cip.ConfirmSignUpInput
}

func (c *cognitoStub) InitiateAuth(_ context.Context, in *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	c.lastInitiate = in
	return c.initiate, c.initiateErr
}

func (c *cognitoStub) SignUp(_ context.Context, in *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	c.lastSignUp = in
	return c.signUp, c.signUpErr
}

func (c *cognitoStub) ConfirmSignUp(_ context.Context, in *cip.ConfirmSignUpInput, _ ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error) {
	c.lastConfirm = in
	if c.confirmErr != nil {
		return nil, c.confirmErr
	}
	return &cip.ConfirmSignUpOutput{}, nil
}

func (c *cognitoStub) ResendConfirmationCode(_ context.Context, _ *cip.ResendConfirmationCodeInput, _ ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error) {
	return c.resend, nil
}

func (c *cognitoStub) GetUser(_ context.Context, _ *cip.GetUserInput, _ ...func(*cip.Options)) (*cip.GetUserOutput, error) {
	return c.user, c.userErr
}

func TestCognitoAuthenticateTokens(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	api := &cognitoStub{initiate: &cip.InitiateAuthOutput{
		AuthenticationResult: &ciptypes.AuthenticationResultType{
			AccessToken:  aws.String("access"),
			IdToken:      aws.String("id"),
			RefreshToken: aws.String("refresh"),
			TokenType:    aws.String("Bearer"),
			ExpiresIn:    3600,
		},
	}}
	provider := newCognitoProvider(api, config.IdentityConfig{ClientID: "client"})
	provider.now = func() time.Time { return now }

	result, err := provider.AuthenticateUser(context.Background(), "chef_01", "abcdefgh")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Tokens == nil || result.Tokens.AccessToken != "access" || result.Tokens.RefreshToken != "refresh" {
		t.Fatalf("unexpected tokens: %+v", result.Tokens)
	}
	if !result.Tokens.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", result.Tokens.ExpiresAt)
	}
	if api.lastInitiate.AuthFlow != ciptypes.AuthFlowTypeUserPasswordAuth {
		t.Fatalf("unexpected auth flow: %v", api.lastInitiate.AuthFlow)
	}
	if _, ok := api.lastInitiate.AuthParameters["SECRET_HASH"]; ok {
		t.Fatal("expected no secret hash without client secret")
	}
}

func TestCognitoAuthenticateChallenges(t *testing.T) {
	cases := map[string]ChallengeKind{
		"NEW_PASSWORD_REQUIRED": ChallengeNewPasswordRequired,
		"SMS_MFA":               ChallengeMFARequired,
		"SOFTWARE_TOKEN_MFA":    ChallengeMFARequired,
		"MFA_SETUP":             ChallengeMFASetup,
		"CUSTOM_CHALLENGE":      ChallengeNone,
	}
	for name, want := range cases {
		api := &cognitoStub{initiate: &cip.InitiateAuthOutput{
			ChallengeName:       ciptypes.ChallengeNameType(name),
			ChallengeParameters: map[string]string{"CODE_DELIVERY_DESTINATION": "+*******4567"},
			Session:             aws.String("session-token"),
		}}
		provider := newCognitoProvider(api, config.IdentityConfig{ClientID: "client"})

		result, err := provider.AuthenticateUser(context.Background(), "chef_01", "abcdefgh")
		if err != nil {
			t.Fatalf("%s: authenticate: %v", name, err)
		}
		if result.Challenge == nil || result.Challenge.Kind != want || result.Challenge.Name != name {
			t.Fatalf("%s: unexpected challenge %+v", name, result.Challenge)
		}
		if result.Challenge.Session != "session-token" || result.Challenge.Parameters["CODE_DELIVERY_DESTINATION"] == "" {
			t.Fatalf("%s: expected parameters and session to be carried verbatim", name)
		}
	}
}

func TestCognitoErrorTranslation(t *testing.T) {
	api := &cognitoStub{initiateErr: &smithy.GenericAPIError{Code: "NotAuthorizedException", Message: "Incorrect username or password."}}
	provider := newCognitoProvider(api, config.IdentityConfig{ClientID: "client"})

	_, err := provider.AuthenticateUser(context.Background(), "chef_01", "wrong-pass")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindNotAuthorized {
		t.Fatalf("expected not authorized provider error got %v", err)
	}

	api.initiateErr = &ciptypes.UserNotFoundException{Message: aws.String("User does not exist.")}
	_, err = provider.AuthenticateUser(context.Background(), "ghost", "abcdefgh")
	if !errors.As(err, &pe) || pe.Kind != KindUserNotFound {
		t.Fatalf("expected user not found provider error got %v", err)
	}

	network := errors.New("dial tcp: i/o timeout")
	api.initiateErr = network
	_, err = provider.AuthenticateUser(context.Background(), "chef_01", "abcdefgh")
	if !errors.Is(err, network) || errors.As(err, &pe) {
		t.Fatalf("expected raw transport error got %v", err)
	}
}

func TestCognitoSignUpWithSecretHash(t *testing.T) {
	api := &cognitoStub{signUp: &cip.SignUpOutput{
		UserSub:       aws.String("sub-123"),
		UserConfirmed: false,
		CodeDeliveryDetails: &ciptypes.CodeDeliveryDetailsType{
			Destination:    aws.String("a***@b.com"),
			DeliveryMedium: ciptypes.DeliveryMediumTypeEmail,
		},
	}}
	provider := newCognitoProvider(api, config.IdentityConfig{ClientID: "client", ClientSecret: "shh"})

	result, err := provider.SignUp(context.Background(), "chef_01", "abcdefgh", []Attribute{
		{Name: AttributeEmail, Value: "a@b.com"},
		{Name: AttributePhone, Value: "+5551234567"},
		{Name: AttributeNickname, Value: "chef_01"},
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if result.UserSub != "sub-123" || result.Medium != "EMAIL" || result.Destination != "a***@b.com" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(api.lastSignUp.UserAttributes) != 3 {
		t.Fatalf("expected 3 attributes got %d", len(api.lastSignUp.UserAttributes))
	}

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte("chef_01client"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if aws.ToString(api.lastSignUp.SecretHash) != want {
		t.Fatalf("unexpected secret hash %q", aws.ToString(api.lastSignUp.SecretHash))
	}
}

func TestCognitoConfirmErrors(t *testing.T) {
	api := &cognitoStub{confirmErr: &smithy.GenericAPIError{Code: "CodeMismatchException", Message: "Invalid verification code provided, please try again."}}
	provider := newCognitoProvider(api, config.IdentityConfig{ClientID: "client"})

	err := provider.ConfirmRegistration(context.Background(), "chef_01", "000000")
	if !errors.Is(err, &ProviderError{Kind: KindCodeMismatch}) {
		t.Fatalf("expected code mismatch got %v", err)
	}
	if aws.ToString(api.lastConfirm.ConfirmationCode) != "000000" {
		t.Fatalf("unexpected code sent: %q", aws.ToString(api.lastConfirm.ConfirmationCode))
	}
}

func TestNewCognitoProviderRequiresClientID(t *testing.T) {
	if _, err := NewCognitoProvider(aws.Config{Region: "us-east-2"}, config.IdentityConfig{}); err == nil {
		t.Fatal("expected error for missing client id")
	}
}

func TestCognitoSubjectForAccessToken(t *testing.T) {
	api := &cognitoStub{user: &cip.GetUserOutput{
		Username: aws.String("chef_ana"),
		UserAttributes: []ciptypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String("ana@example.com")},
			{Name: aws.String("sub"), Value: aws.String("user-42")},
		},
	}}
	p := newCognitoProvider(api, config.IdentityConfig{ClientID: "client"})

	sub, err := p.SubjectForAccessToken(context.Background(), "access")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != "user-42" {
		t.Fatalf("expected user-42 got %q", sub)
	}

	if _, err := p.SubjectForAccessToken(context.Background(), " "); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for an empty token, got %v", err)
	}

	api.user = &cip.GetUserOutput{}
	if _, err := p.SubjectForAccessToken(context.Background(), "access"); !errors.Is(err, ErrSubjectMissing) {
		t.Fatalf("expected ErrSubjectMissing, got %v", err)
	}
}

func TestCognitoSubjectForRejectedToken(t *testing.T) {
	api := &cognitoStub{userErr: &smithy.GenericAPIError{Code: "NotAuthorizedException", Message: "Access Token has been revoked"}}
	p := newCognitoProvider(api, config.IdentityConfig{ClientID: "client"})

	if _, err := p.SubjectForAccessToken(context.Background(), "forged"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	api.userErr = errors.New("dial tcp: timeout")
	_, err := p.SubjectForAccessToken(context.Background(), "access")
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected a transport error, got %v", err)
	}
}
