package services

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/server/auth"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors runs the struct tags and returns the failures.
func fieldErrors(in any) []common.FieldError {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []common.FieldError{{Field: "body", Tag: "invalid"}}
	}

	out := make([]common.FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, common.FieldError{Field: e.Field(), Tag: e.Tag(), Param: e.Param()})
	}
	return out
}

// passwordErrors applies the length and composition rules.
func passwordErrors(field, pw string, minLen int, strong bool) []common.FieldError {
	switch {
	case len(pw) < minLen:
		return []common.FieldError{{Field: field, Tag: "min", Param: strconv.Itoa(minLen)}}
	case len(pw) > auth.MaxPasswordBytes:
		return []common.FieldError{{Field: field, Tag: "max", Param: strconv.Itoa(auth.MaxPasswordBytes)}}
	}

	if strong {
		var lower, upper, digit bool
		for _, r := range pw {
			switch {
			case unicode.IsLower(r):
				lower = true
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		if !lower || !upper || !digit {
			return []common.FieldError{{Field: field, Tag: "strong"}}
		}
	}
	return nil
}

// Validate checks the struct tags of a request and reports every failing
// field by its JSON name.
func Validate(in any) error {
	return asValidationError(fieldErrors(in))
}

func asValidationError(fields ...[]common.FieldError) error {
	var all []common.FieldError
	for _, f := range fields {
		all = append(all, f...)
	}
	if len(all) == 0 {
		return nil
	}
	return &common.ValidationError{Fields: all}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
