package httperr

import (
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var specialRegex = regexp.MustCompile(`[ !"#$%&'()*+,\-./:;<=>?@\[\\\]^_` + "`" + `{|}~]`)

// Password requires at least one letter, one digit and one special character.
func Password(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	var letter, digit bool
	for _, ch := range val {
		switch {
		case unicode.IsLetter(ch):
			letter = true
		case unicode.IsDigit(ch):
			digit = true
		}
	}
	return letter && digit && specialRegex.MatchString(val)
}

// RegisterValidators installs the custom rules and makes validation errors report
// JSON field names instead of Go struct field names.
func RegisterValidators(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v.RegisterValidation("password", Password)
}
