// Package validation rejects or normalizes untrusted student input before
// it reaches the store.
//
// Validation is explicit: handlers call Student with the raw form values
// and get back either the normalized input or an Errors map keyed by form
// field name. Nothing is bound to the request automatically.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/aanand-mishra/student-records/internal/types"
	"github.com/go-playground/validator/v10"
)

// Messages shown next to the offending form field.
const (
	MsgRequired    = "This field is required."
	MsgLength      = "Must be between 2 and 50 characters long."
	MsgOnlyLetters = "Only letters allowed"
	MsgEmail       = "Invalid email format"
	MsgInvalid     = "Invalid value"
)

// Form field names, used as keys of Errors.
const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldEmail     = "email"
)

var lettersAndSpaces = regexp.MustCompile(`^[A-Za-z ]+$`)

// validate is safe for concurrent use and caches struct metadata, so one
// instance is shared by every request.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report errors under the HTML form field name instead of the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// Both registrations only fail on an empty tag name.
	_ = v.RegisterValidation("alphaspace", func(fl validator.FieldLevel) bool {
		return lettersAndSpaces.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("dotteddomain", func(fl validator.FieldLevel) bool {
		email := fl.Field().String()
		at := strings.LastIndexByte(email, '@')
		if at < 1 {
			return false
		}
		domain := email[at+1:]
		dot := strings.IndexByte(domain, '.')
		return dot > 0 && dot < len(domain)-1
	})

	return v
}

// Errors maps a form field name to a human-readable rejection reason.
type Errors map[string]string

// Error implements error. Fields are listed in a stable order.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Student trims every field of in and checks it against the student rules.
// On success it returns the normalized input and a nil error; otherwise the
// error is an Errors value naming every rejected field, and the trimmed
// input is still returned so a form can be re-rendered with it.
func Student(in types.StudentInput) (types.StudentInput, error) {
	normalized := types.StudentInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
	}

	err := validate.Struct(normalized)
	if err == nil {
		return normalized, nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.StudentInput{}, err
	}

	// validator stops at the first failing tag per field, so every
	// field appears at most once.
	errs := make(Errors, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs[fe.Field()] = message(fe)
	}
	return normalized, errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "min", "max":
		return MsgLength
	case "alphaspace":
		return MsgOnlyLetters
	case "email", "dotteddomain":
		return MsgEmail
	default:
		return MsgInvalid
	}
}
