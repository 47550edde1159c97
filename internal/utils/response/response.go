// Package response provides helpers for writing consistent JSON HTTP
// responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/aanand-mishra/student-records/internal/types"
)

// Response is the standard envelope returned for JSON error cases:
//
//	{ "status": "error", "error": "internal server error" }
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Status string constants.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StudentResults is the envelope of the search endpoint:
//
//	{ "result": [ {"id": 1, "fname": "Ann", "lname": "Lee", "email": "ann@x.com"} ] }
type StudentResults struct {
	Result []types.Student `json:"result"`
}

// Results wraps students, encoding a nil slice as [] rather than null.
func Results(students []types.Student) StudentResults {
	if students == nil {
		students = []types.Student{}
	}
	return StudentResults{Result: students}
}

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GeneralError wraps err into the standard error envelope. Only pass
// errors whose text is safe to show to clients.
func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}
