package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/recipereels/backend/internal/config"
)

// cognitoAPI is the subset of the Cognito user pool client used by CognitoProvider.
type cognitoAPI interface {
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	GetUser(ctx context.Context, in *cip.GetUserInput, optFns ...func(*cip.Options)) (*cip.GetUserOutput, error)
}

// CognitoProvider implements Provider against an Amazon Cognito user pool app client.
type CognitoProvider struct {
	api          cognitoAPI
	clientID     string
	clientSecret string
	now          func() time.Time
}

// NewCognitoProvider builds a provider from the shared AWS configuration handle.
func NewCognitoProvider(awsCfg aws.Config, cfg config.IdentityConfig) (*CognitoProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("cognito provider: client id is required")
	}
	return newCognitoProvider(cip.NewFromConfig(awsCfg), cfg), nil
}

func newCognitoProvider(api cognitoAPI, cfg config.IdentityConfig) *CognitoProvider {
	return &CognitoProvider{
		api:          api,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AuthenticateUser runs the USER_PASSWORD_AUTH flow.
func (p *CognitoProvider) AuthenticateUser(ctx context.Context, identifier, secret string) (AuthResult, error) {
	params := map[string]string{
		"USERNAME": identifier,
		"PASSWORD": secret,
	}
	if hash := p.secretHash(identifier); hash != nil {
		params["SECRET_HASH"] = *hash
	}

	out, err := p.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       ciptypes.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(p.clientID),
		AuthParameters: params,
	})
	if err != nil {
		return AuthResult{}, translateError(err)
	}

	if name := string(out.ChallengeName); name != "" {
		return AuthResult{Challenge: &Challenge{
			Kind:       challengeKind(name),
			Name:       name,
			Parameters: out.ChallengeParameters,
			Session:    aws.ToString(out.Session),
		}}, nil
	}

	res := out.AuthenticationResult
	if res == nil {
		return AuthResult{}, errors.New("cognito: authentication result missing")
	}

	return AuthResult{Tokens: &TokenSet{
		AccessToken:  aws.ToString(res.AccessToken),
		IDToken:      aws.ToString(res.IdToken),
		RefreshToken: aws.ToString(res.RefreshToken),
		TokenType:    aws.ToString(res.TokenType),
		ExpiresAt:    p.now().Add(time.Duration(res.ExpiresIn) * time.Second),
	}}, nil
}

// SignUp registers a new user with the supplied attributes.
func (p *CognitoProvider) SignUp(ctx context.Context, identifier, secret string, attributes []Attribute) (SignUpResult, error) {
	attrs := make([]ciptypes.AttributeType, 0, len(attributes))
	for _, a := range attributes {
		attrs = append(attrs, ciptypes.AttributeType{Name: aws.String(a.Name), Value: aws.String(a.Value)})
	}

	out, err := p.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(p.clientID),
		Username:       aws.String(identifier),
		Password:       aws.String(secret),
		UserAttributes: attrs,
		SecretHash:     p.secretHash(identifier),
	})
	if err != nil {
		return SignUpResult{}, translateError(err)
	}

	result := SignUpResult{
		UserSub:   aws.ToString(out.UserSub),
		Confirmed: out.UserConfirmed,
	}
	if d := out.CodeDeliveryDetails; d != nil {
		result.Destination = aws.ToString(d.Destination)
		result.Medium = string(d.DeliveryMedium)
	}
	return result, nil
}

// ConfirmRegistration confirms a sign-up with the delivered code.
func (p *CognitoProvider) ConfirmRegistration(ctx context.Context, identifier, code string) error {
	_, err := p.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(p.clientID),
		Username:         aws.String(identifier),
		ConfirmationCode: aws.String(code),
		SecretHash:       p.secretHash(identifier),
	})
	if err != nil {
		return translateError(err)
	}
	return nil
}

// ResendConfirmationCode requests a fresh confirmation code.
func (p *CognitoProvider) ResendConfirmationCode(ctx context.Context, identifier string) (CodeDelivery, error) {
	out, err := p.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(p.clientID),
		Username:   aws.String(identifier),
		SecretHash: p.secretHash(identifier),
	})
	if err != nil {
		return CodeDelivery{}, translateError(err)
	}

	var delivery CodeDelivery
	if d := out.CodeDeliveryDetails; d != nil {
		delivery.Destination = aws.ToString(d.Destination)
		delivery.Medium = string(d.DeliveryMedium)
	}
	return delivery, nil
}

// secretHash is required only when the app client was created with a secret.
func (p *CognitoProvider) secretHash(identifier string) *string {
	if p.clientSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(p.clientSecret))
	mac.Write([]byte(identifier + p.clientID))
	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

// SubjectForAccessToken asks the user pool who owns accessToken and returns the
// user's "sub". Revoked, expired or forged tokens fail with ErrUnauthenticated.
func (p *CognitoProvider) SubjectForAccessToken(ctx context.Context, accessToken string) (string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return "", ErrUnauthenticated
	}
	out, err := p.api.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		err = translateError(err)
		var perr *ProviderError
		if errors.As(err, &perr) && (perr.Kind == KindNotAuthorized || perr.Kind == KindUserNotFound) {
			return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return "", err
	}
	for _, attr := range out.UserAttributes {
		if aws.ToString(attr.Name) == "sub" && aws.ToString(attr.Value) != "" {
			return aws.ToString(attr.Value), nil
		}
	}
	return "", ErrSubjectMissing
}

func translateError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return ClassifyCode(apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}

func challengeKind(name string) ChallengeKind {
	switch name {
	case "NEW_PASSWORD_REQUIRED":
		return ChallengeNewPasswordRequired
	case "MFA_SETUP":
		return ChallengeMFASetup
	case "SMS_MFA", "SOFTWARE_TOKEN_MFA", "EMAIL_OTP", "SELECT_MFA_TYPE", "SMS_OTP":
		return ChallengeMFARequired
	default:
		return ChallengeNone
	}
}
