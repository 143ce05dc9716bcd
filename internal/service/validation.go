package service

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Indonesian mobile numbers: +62, 62 or 0 followed by 8, a non-zero operator digit and 6 to 10 digits.
var indonesianPhonePattern = regexp.MustCompile(`^(?:\+62|62|0)8[1-9][0-9]{6,10}$`)

// NewValidator returns a validator with the admission-specific tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerAdmissionValidations(v)
	return v
}

func registerAdmissionValidations(v *validator.Validate) {
	_ = v.RegisterValidation("idphone", func(fl validator.FieldLevel) bool {
		return IsValidPhone(fl.Field().String())
	})
}

// IsValidPhone reports whether the number, trimmed, is an Indonesian mobile number.
func IsValidPhone(phone string) bool {
	return indonesianPhonePattern.MatchString(strings.TrimSpace(phone))
}
