// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using database/sql.
//
// Queries are built with squirrel, which only ever emits "?" placeholders
// and passes values as separate arguments. User input is never spliced
// into SQL text.
//
// Every mutation runs inside its own transaction. If any step fails the
// transaction is rolled back before the error is returned, so a failed
// request never leaves a half-applied change behind.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"

	// Blank import: registers the "sqlite3" driver with database/sql.
	_ "github.com/mattn/go-sqlite3"
)

const table = "student"

var columns = []string{"id", "first_name", "last_name", "email"}

// SQLite is the concrete implementation of storage.Storage.
// Db is a connection pool and is safe for concurrent use.
type SQLite struct {
	Db *sql.DB
	sb squirrel.StatementBuilderType
}

// New opens the SQLite database at cfg.StoragePath, creating its parent
// directory and the student table if needed.
func New(cfg *config.Config) (*SQLite, error) {
	if dir := filepath.Dir(cfg.StoragePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
		}
	}

	// busy_timeout makes concurrent writers wait for the file lock
	// instead of failing immediately with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", cfg.StoragePath)

	// sql.Open only validates its arguments; Ping makes the first real
	// connection so a bad path fails at startup.
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", err)
	}

	s := NewWithDB(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewWithDB wraps an already opened database without touching its schema.
func NewWithDB(db *sql.DB) *SQLite {
	return &SQLite{
		Db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// migrate is idempotent and safe to run on every startup.
//
// The column sizes document the form limits; SQLite does not enforce them.
// Email is deliberately not UNIQUE.
func (s *SQLite) migrate() error {
	_, err := s.Db.Exec(`
		CREATE TABLE IF NOT EXISTS student (
			id         INTEGER      PRIMARY KEY AUTOINCREMENT,
			first_name VARCHAR(100) NOT NULL,
			last_name  VARCHAR(100) NOT NULL,
			email      VARCHAR(120) NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sqlite.New: create table: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// inTx runs fn inside a transaction, committing on success and rolling
// back on any error, including storage.ErrNotFound, or on a panic in fn.
func (s *SQLite) inTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.Db.Begin()
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	// Covers a panic in fn. After Commit or the explicit Rollback below it
	// returns sql.ErrTxDone without reaching the driver.
	defer tx.Rollback()

	// The rollback error is joined so neither cause is lost.
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("%s: rollback: %w", op, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// CreateStudent inserts a new row and returns its generated id.
func (s *SQLite) CreateStudent(firstName, lastName, email string) (int64, error) {
	query, args, err := s.sb.Insert(table).
		Columns("first_name", "last_name", "email").
		Values(firstName, lastName, email).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("CreateStudent: build: %w", err)
	}

	// ── Execute inside a transaction ──────────────────────────────────
	// lastID is captured by the closure and filled in on success.
	var lastID int64
	err = s.inTx("CreateStudent", func(tx *sql.Tx) error {
		result, err := tx.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("CreateStudent: exec: %w", err)
		}

		// LastInsertId is the AUTOINCREMENT value SQLite just assigned.
		lastID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("CreateStudent: last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return lastID, nil
}

// GetStudentByID fetches exactly one row matched by primary key.
func (s *SQLite) GetStudentByID(id int64) (types.Student, error) {
	query, args, err := s.sb.Select(columns...).
		From(table).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByID: build: %w", err)
	}

	// QueryRow defers any error until Scan; Scan copies the columns into
	// the struct fields in SELECT order.
	var student types.Student
	err = s.Db.QueryRow(query, args...).Scan(
		&student.ID,
		&student.FirstName,
		&student.LastName,
		&student.Email,
	)
	// sql.ErrNoRows is translated so callers never import database/sql.
	if errors.Is(err, sql.ErrNoRows) {
		return types.Student{}, fmt.Errorf("GetStudentByID %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByID: scan: %w", err)
	}

	return student, nil
}

// GetStudents returns all rows ordered by id, which is insertion order.
func (s *SQLite) GetStudents() ([]types.Student, error) {
	query, args, err := s.sb.Select(columns...).
		From(table).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("GetStudents: build: %w", err)
	}

	students, err := s.queryStudents(query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetStudents: %w", err)
	}
	return students, nil
}

// GetStudentsByEmail is an exact-match lookup. email is bound as a
// parameter, so a value such as "x' OR '1'='1" is compared literally and
// simply matches nothing.
func (s *SQLite) GetStudentsByEmail(email string) ([]types.Student, error) {
	query, args, err := s.sb.Select(columns...).
		From(table).
		Where(squirrel.Eq{"email": email}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("GetStudentsByEmail: build: %w", err)
	}

	students, err := s.queryStudents(query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetStudentsByEmail: %w", err)
	}
	return students, nil
}

func (s *SQLite) queryStudents(query string, args ...any) ([]types.Student, error) {
	rows, err := s.Db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	// Rows holds a pooled connection until closed.
	defer rows.Close()

	// Non-nil so an empty result encodes as [] rather than null.
	students := make([]types.Student, 0)
	for rows.Next() {
		var student types.Student
		if err := rows.Scan(
			&student.ID,
			&student.FirstName,
			&student.LastName,
			&student.Email,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		students = append(students, student)
	}

	// rows.Next returning false can mean an error, not just the end.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return students, nil
}

// UpdateStudentByID replaces first name, last name and email of the row
// with the given id. The id itself never changes.
func (s *SQLite) UpdateStudentByID(id int64, student types.Student) (types.Student, error) {
	query, args, err := s.sb.Update(table).
		Set("first_name", student.FirstName).
		Set("last_name", student.LastName).
		Set("email", student.Email).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudentByID: build: %w", err)
	}

	err = s.inTx("UpdateStudentByID", func(tx *sql.Tx) error {
		return execOne(tx, "UpdateStudentByID", id, query, args...)
	})
	if err != nil {
		return types.Student{}, err
	}

	// Re-fetch so the caller sees exactly what is stored.
	return s.GetStudentByID(id)
}

// DeleteStudentByID removes the row with the given id.
func (s *SQLite) DeleteStudentByID(id int64) error {
	query, args, err := s.sb.Delete(table).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: build: %w", err)
	}

	return s.inTx("DeleteStudentByID", func(tx *sql.Tx) error {
		return execOne(tx, "DeleteStudentByID", id, query, args...)
	})
}

// execOne runs a statement that must touch exactly the row with the given
// id; zero affected rows means the id does not exist.
func execOne(tx *sql.Tx, op string, id int64, query string, args ...any) error {
	result, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	// RowsAffected is how an UPDATE or DELETE tells a missing id apart
	// from success; neither returns an error for it.
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, storage.ErrNotFound)
	}
	return nil
}
