package identity

import "time"

// OutcomeKind tags the result of a round trip with the identity provider.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeChallenge
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeChallenge:
		return "challenge"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ChallengeKind identifies a follow-up requirement issued by the provider.
type ChallengeKind int

const (
	ChallengeNone ChallengeKind = iota
	ChallengeNewPasswordRequired
	ChallengeMFARequired
	ChallengeMFASetup
)

func (k ChallengeKind) String() string {
	switch k {
	case ChallengeNewPasswordRequired:
		return "newPasswordRequired"
	case ChallengeMFARequired:
		return "mfaRequired"
	case ChallengeMFASetup:
		return "mfaSetup"
	default:
		return "none"
	}
}

// Challenge is valid only for the attempt that produced it.
type Challenge struct {
	Kind       ChallengeKind
	Name       string
	Parameters map[string]string
	Session    string
}

// TokenSet groups the credentials returned by a successful authentication.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// PendingVerification describes an account awaiting its confirmation code.
type PendingVerification struct {
	Identifier  string
	Email       string
	UserSub     string
	Confirmed   bool
	Destination string
	Medium      string
}

// Outcome is the tagged result of an authenticate, register, confirm or resend call.
// Exactly one of Tokens, Challenge, Pending or Err is meaningful for a given Kind;
// confirm and resend successes carry none of them.
type Outcome struct {
	Kind      OutcomeKind
	Attempt   uint64
	Tokens    *TokenSet
	Challenge *Challenge
	Pending   *PendingVerification
	Err       *ProviderError
}

func success(attempt uint64) Outcome {
	return Outcome{Kind: OutcomeSuccess, Attempt: attempt}
}

func failure(attempt uint64, err *ProviderError) Outcome {
	return Outcome{Kind: OutcomeFailure, Attempt: attempt, Err: err}
}
