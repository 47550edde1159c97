// Package storage defines the Storage interface, the contract any database
// backend must satisfy to work with this application.
//
// Handlers depend only on this interface, so tests can pass a fake that
// satisfies it and no real database is needed to exercise the web layer.
package storage

import (
	"errors"

	"github.com/aanand-mishra/student-records/internal/types"
)

// ErrNotFound is returned when no student has the requested id.
var ErrNotFound = errors.New("student not found")

// Storage is the database contract. Implementations wrap every other
// failure (connectivity, constraints) with %w so callers can log the cause
// without matching on driver errors.
type Storage interface {
	// CreateStudent inserts a new student record and returns the
	// generated primary-key ID.
	CreateStudent(firstName, lastName, email string) (int64, error)

	// GetStudentByID fetches a single student by primary key, or
	// ErrNotFound.
	GetStudentByID(id int64) (types.Student, error)

	// GetStudents returns every student in insertion order.
	// Returns an empty slice (not nil) if there are none.
	GetStudents() ([]types.Student, error)

	// UpdateStudentByID replaces all editable fields of an existing
	// student and returns the stored record, or ErrNotFound.
	UpdateStudentByID(id int64, student types.Student) (types.Student, error)

	// DeleteStudentByID removes a student permanently, or returns
	// ErrNotFound.
	DeleteStudentByID(id int64) error

	// GetStudentsByEmail returns the students whose email equals email
	// exactly. The value is always bound as a query parameter.
	GetStudentsByEmail(email string) ([]types.Student, error)
}
