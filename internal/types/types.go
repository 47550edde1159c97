// Package types holds the shared data structures used across the
// application. Keeping them in one place prevents import cycles:
// handlers, storage, and validation can all import types without
// depending on each other.
package types

// Student represents a persisted student record.
//
// The json tags match the shape returned by the search endpoint:
//
//	{"id": 1, "fname": "Ann", "lname": "Lee", "email": "ann@x.com"}
type Student struct {
	ID        int64  `json:"id"`
	FirstName string `json:"fname"`
	LastName  string `json:"lname"`
	Email     string `json:"email"`
}

// StudentInput is the untrusted form submission for creating or replacing
// a student. The form tags name the HTML form fields; validate tags hold
// the rules applied by the validation package.
type StudentInput struct {
	FirstName string `form:"first_name" validate:"required,min=2,max=50,alphaspace"`
	LastName  string `form:"last_name"  validate:"required,min=2,max=50,alphaspace"`
	Email     string `form:"email"      validate:"required,email,dotteddomain"`
}

// Input returns the editable fields of s, e.g. to pre-fill an update form.
func (s Student) Input() StudentInput {
	return StudentInput{
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Email:     s.Email,
	}
}
