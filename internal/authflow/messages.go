package authflow

import "github.com/recipereels/backend/internal/identity"

// Operation names the user action a message is rendered for.
type Operation string

const (
	OpSignIn Operation = "signIn"
	OpSignUp Operation = "signUp"
	OpVerify Operation = "verify"
	OpResend Operation = "resend"
)

// User-facing messages.
const (
	MsgFillAllFields     = "Please fill in all fields"
	MsgAllFieldsRequired = "All fields are required"
	MsgPasswordTooShort  = "Password must be at least 8 characters"
	MsgInvalidEmail      = "Please enter a valid email"
	MsgInvalidUsername   = "Username can only contain letters, numbers, and underscores"
	MsgInvalidPhone      = "Please enter a valid phone number"
	MsgCodeRequired      = "Please enter the verification code"
	MsgUserNotFound      = "User not found"
	MsgNotAuthorized     = "Incorrect username or password"
	MsgUserNotConfirmed  = "Please verify your email first"
	MsgUsernameTaken     = "This username is already taken"
	MsgPasswordPolicy    = "Password must be at least 8 characters long and contain numbers, special characters, uppercase and lowercase letters"
	MsgPhoneFormat       = "Please provide a valid phone number in international format (e.g., +1234567890)"
	MsgEmailFormat       = "Please provide a valid email address"
	MsgCodeMismatch      = "Invalid verification code. Please try again."
	MsgCodeExpired       = "Verification code has expired. Please request a new one."
	MsgNewPassword       = "You need to change your password"
	MsgUnexpected        = "An unexpected error occurred. Please try again."
	MsgVerified          = "Email verified successfully!"
	MsgCodeResent        = "A new verification code has been sent"
	MsgNoPendingAccount  = "No account is awaiting verification. Please sign up again."
	MsgAccountReady      = "Account created. Please sign in."
	MsgAlreadyVerified   = "This account is already verified"
)

var fallbackMessages = map[Operation]string{
	OpSignIn: "An error occurred during sign in",
	OpSignUp: "An error occurred during sign up",
	OpVerify: "An error occurred during verification",
	OpResend: "Failed to resend verification code",
}

// Message selects the user message for a provider failure.
func Message(pe *identity.ProviderError, op Operation) string {
	if pe == nil {
		return MsgUnexpected
	}
	switch pe.Kind {
	case identity.KindUserNotFound:
		return MsgUserNotFound
	case identity.KindNotAuthorized:
		return MsgNotAuthorized
	case identity.KindUserNotConfirmed:
		return MsgUserNotConfirmed
	case identity.KindUsernameTaken:
		return MsgUsernameTaken
	case identity.KindInvalidPassword:
		return MsgPasswordPolicy
	case identity.KindInvalidParameter:
		switch pe.Field {
		case identity.FieldPhone:
			return MsgPhoneFormat
		case identity.FieldEmail:
			return MsgEmailFormat
		default:
			return MsgInvalidUsername
		}
	case identity.KindCodeMismatch:
		return MsgCodeMismatch
	case identity.KindCodeExpired:
		return MsgCodeExpired
	}
	if pe.Message != "" {
		return pe.Message
	}
	return fallbackMessages[op]
}
