package authflow

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/recipereels/backend/internal/identity"
)

// SignInForm holds the raw sign-in values submitted by the UI.
type SignInForm struct {
	Identifier string `json:"email" validate:"required"`
	Secret     string `json:"password" validate:"required"`
}

// SignUpForm holds the raw sign-up values submitted by the UI.
type SignUpForm struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,emailshape"`
	Secret   string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phonenumber" validate:"required,phone"`
}

// Normalize applies the same trimming and casing the sign-up screen applies as the
// user types.
func (f SignUpForm) Normalize() SignUpForm {
	f.Username = strings.ToLower(strings.TrimSpace(f.Username))
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	return f
}

// Normalize trims the identifier.
func (f SignInForm) Normalize() SignInForm {
	f.Identifier = strings.TrimSpace(f.Identifier)
	return f
}

// sign-up rules are reported in this order after the required check.
var signUpRuleOrder = []struct {
	field   string
	message string
}{
	{"Secret", MsgPasswordTooShort},
	{"Email", MsgInvalidEmail},
	{"Username", MsgInvalidUsername},
	{"Phone", MsgInvalidPhone},
}

var formFields = map[string]string{
	"Username":   "username",
	"Email":      "email",
	"Secret":     "password",
	"Phone":      "phonenumber",
	"Identifier": "email",
}

// Validator checks forms before anything is sent to the identity provider.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the username, emailshape and phone rules.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return identity.ValidIdentifier(fl.Field().String())
	})
	_ = v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
		return identity.ValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return identity.ValidPhone(fl.Field().String())
	})
	return &Validator{v: v}
}

// SignIn returns nil when both fields are present.
func (fv *Validator) SignIn(form SignInForm) *ValidationError {
	if err := fv.v.Struct(form); err != nil {
		field := ""
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = formFields[verrs[0].StructField()]
		}
		return &ValidationError{Field: field, Message: MsgFillAllFields}
	}
	return nil
}

// SignUp returns the first failing rule: missing fields, then password length,
// email, username and phone.
func (fv *Validator) SignUp(form SignUpForm) *ValidationError {
	err := fv.v.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}

	failed := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &ValidationError{Field: formFields[fe.StructField()], Message: MsgAllFieldsRequired}
		}
		failed[fe.StructField()] = true
	}

	for _, rule := range signUpRuleOrder {
		if failed[rule.field] {
			return &ValidationError{Field: formFields[rule.field], Message: rule.message}
		}
	}
	return &ValidationError{Message: MsgAllFieldsRequired}
}
