package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var serialPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_. ]*$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	v.RegisterValidation("password_strength", passwordStrength)
	v.RegisterValidation("printer_serial", printerSerial)
	v.RegisterValidation("institution_code", institutionCode)

	return &Validator{validate: v}
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

// Message turns a validation failure into a single client-facing sentence.
func Message(err error) string {
	var verr validator.ValidationErrors
	if !errors.As(err, &verr) || len(verr) == 0 {
		return "invalid request"
	}

	fe := verr[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "password_strength":
		return "password must be at least 8 characters with upper case, lower case and a digit"
	case "printer_serial":
		return fmt.Sprintf("%s is not a valid serial number", field)
	case "institution_code":
		return fmt.Sprintf("%s is not a valid institution code", field)
	case "min":
		return fmt.Sprintf("%s is too short", field)
	case "max":
		return fmt.Sprintf("%s is too long", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// Passwords need length plus three character classes. Kept in sync with the
// registration manager's own check.
func passwordStrength(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

func printerSerial(fl validator.FieldLevel) bool {
	serial := strings.TrimSpace(fl.Field().String())
	return serial != "" && len(serial) <= 64 && serialPattern.MatchString(serial)
}

func institutionCode(fl validator.FieldLevel) bool {
	code := strings.TrimSpace(fl.Field().String())
	return code != "" && len(code) <= 32
}
