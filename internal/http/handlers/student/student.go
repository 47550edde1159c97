// Package student contains the HTTP handlers for the student pages.
//
// Handlers are built with the factory pattern: each exported function
// receives the application dependencies once, at route registration, and
// returns the http.HandlerFunc that runs on every request.
//
//	router.HandleFunc("GET /{$}", student.Index(deps))
//
// Everything a handler needs travels in Deps; there is no package-level
// state.
package student

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aanand-mishra/student-records/internal/hasher"
	"github.com/aanand-mishra/student-records/internal/http/flash"
	"github.com/aanand-mishra/student-records/internal/http/middleware"
	"github.com/aanand-mishra/student-records/internal/http/views"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
	"github.com/aanand-mishra/student-records/internal/utils/response"
	"github.com/aanand-mishra/student-records/internal/validation"
	"github.com/gorilla/csrf"
)

// Notices shown after a successful mutation.
const (
	NoticeCreated = "Student added successfully and securely!"
	NoticeUpdated = "Record updated securely!"
	NoticeDeleted = "Student deleted securely!"
)

// Hasher is the credential hasher used by the demo endpoint.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Deps is the application context shared by all handlers.
type Deps struct {
	Storage  storage.Storage
	Hasher   Hasher
	Views    *views.Views
	Flash    *flash.Flasher
	Logger   *slog.Logger
	DemoMode bool
}

func (d Deps) log(r *http.Request) *slog.Logger {
	return d.Logger.With(slog.String("request_id", middleware.RequestIDFromContext(r.Context())))
}

// render writes page, falling back to a bare 500 if the template fails.
func (d Deps) render(w http.ResponseWriter, r *http.Request, status int, page string, data views.Page) {
	data.CSRFField = csrf.TemplateField(r)
	if err := d.Views.Render(w, status, page, data); err != nil {
		d.log(r).Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (d Deps) notFound(w http.ResponseWriter, r *http.Request) {
	d.render(w, r, http.StatusNotFound, views.NotFound, views.Page{Title: "Not found"})
}

// serverError logs err with its context and shows the generic error page.
// Nothing about err reaches the client.
func (d Deps) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	d.log(r).Error(msg, slog.String("error", err.Error()))
	d.render(w, r, http.StatusInternalServerError, views.InternalError, views.Page{Title: "Error"})
}

// notify queues a notice. Losing a notice is not worth failing the request.
func (d Deps) notify(w http.ResponseWriter, r *http.Request, category, message string) {
	if err := d.Flash.Add(w, r, category, message); err != nil {
		d.log(r).Warn("failed to save notice", slog.String("error", err.Error()))
	}
}

// notices pops pending notices, logging instead of failing on a bad cookie.
func (d Deps) notices(w http.ResponseWriter, r *http.Request) []flash.Notice {
	notices, err := d.Flash.Pop(w, r)
	if err != nil {
		d.log(r).Warn("failed to read notices", slog.String("error", err.Error()))
	}
	return notices
}

// pathID parses the {id} path segment. Anything that is not a positive
// integer cannot name a record.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// formInput reads the student fields from a POSTed form. The body size is
// capped by middleware.LimitForm before this runs; ParseForm is a no-op
// when the form was already parsed.
func formInput(r *http.Request) (types.StudentInput, error) {
	if err := r.ParseForm(); err != nil {
		return types.StudentInput{}, err
	}
	return types.StudentInput{
		FirstName: r.PostForm.Get(validation.FieldFirstName),
		LastName:  r.PostForm.Get(validation.FieldLastName),
		Email:     r.PostForm.Get(validation.FieldEmail),
	}, nil
}

// fieldErrors extracts per-field messages from a validation result.
func fieldErrors(err error) (validation.Errors, bool) {
	var errs validation.Errors
	ok := errors.As(err, &errs)
	return errs, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Index handles GET /
// Renders every student plus an empty creation form and any pending
// notices.
// ─────────────────────────────────────────────────────────────────────────────
func Index(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// ── Step 1: Pop pending notices ───────────────────────────────
		// Popping rewrites the session cookie, and cookies are headers, so
		// this must happen before the body is written.
		notices := d.notices(w, r)

		// ── Step 2: Load every student ────────────────────────────────
		students, err := d.Storage.GetStudents()
		if err != nil {
			d.serverError(w, r, "error getting students", err)
			return
		}

		// ── Step 3: Render the list with an empty creation form ───────
		d.render(w, r, http.StatusOK, views.Index, views.Page{
			Notices:  notices,
			Students: students,
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Create handles POST /
// Validates the form and, on success, stores the student and redirects to
// the list with a notice. On failure the form is shown again with the
// submitted values and a message next to each rejected field.
// ─────────────────────────────────────────────────────────────────────────────
func Create(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// ── Step 1: Read the form fields ──────────────────────────────
		in, err := formInput(r)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		// ── Step 2: Normalise and validate ────────────────────────────
		// validation.Student trims the values and returns them even when
		// a rule fails, so the form can be re-filled with what was sent.
		student, err := validation.Student(in)
		if errs, ok := fieldErrors(err); ok {
			d.log(r).Info("rejected student form", slog.String("error", errs.Error()))

			// The list is rendered again under the form, so it is reloaded.
			students, err := d.Storage.GetStudents()
			if err != nil {
				d.serverError(w, r, "error getting students", err)
				return
			}

			d.render(w, r, http.StatusUnprocessableEntity, views.Index, views.Page{
				Students: students,
				Form:     views.Form{Values: student, Errors: errs},
			})
			return
		}
		if err != nil {
			d.serverError(w, r, "error validating student", err)
			return
		}

		// ── Step 3: Persist ───────────────────────────────────────────
		// The handler only knows the Storage interface, never SQLite.
		id, err := d.Storage.CreateStudent(student.FirstName, student.LastName, student.Email)
		if err != nil {
			d.serverError(w, r, "error creating student", err)
			return
		}

		d.log(r).Info("student created", slog.Int64("id", id))

		// ── Step 4: Queue a notice and redirect (Post/Redirect/Get) ───
		// 303 makes the browser follow up with a GET, so a refresh does
		// not submit the form twice.
		d.notify(w, r, flash.Success, NoticeCreated)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Edit handles GET /update/{id}
// Renders the update form pre-filled with the stored values.
// ─────────────────────────────────────────────────────────────────────────────
func Edit(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			d.notFound(w, r)
			return
		}

		// storage.ErrNotFound is the only error the visitor may learn
		// about; everything else is logged and shown as a generic 500.
		student, err := d.Storage.GetStudentByID(id)
		if errors.Is(err, storage.ErrNotFound) {
			d.notFound(w, r)
			return
		}
		if err != nil {
			d.serverError(w, r, "error getting student", err)
			return
		}

		// Input() turns the stored record back into form values.
		d.render(w, r, http.StatusOK, views.Update, views.Page{
			Title:   "Update",
			Student: student,
			Form:    views.Form{Values: student.Input()},
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles POST /update/{id}
// Replaces all three fields of an existing student.
// ─────────────────────────────────────────────────────────────────────────────
func Update(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			d.notFound(w, r)
			return
		}

		// ── Step 1: The record must exist ─────────────────────────────
		// It is also needed to re-render the page if validation fails.
		current, err := d.Storage.GetStudentByID(id)
		if errors.Is(err, storage.ErrNotFound) {
			d.notFound(w, r)
			return
		}
		if err != nil {
			d.serverError(w, r, "error getting student", err)
			return
		}

		// ── Step 2: Read and validate the form ────────────────────────
		in, err := formInput(r)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		student, err := validation.Student(in)
		if errs, ok := fieldErrors(err); ok {
			d.log(r).Info("rejected student form",
				slog.Int64("id", id),
				slog.String("error", errs.Error()))
			d.render(w, r, http.StatusUnprocessableEntity, views.Update, views.Page{
				Title:   "Update",
				Student: current,
				Form:    views.Form{Values: student, Errors: errs},
			})
			return
		}
		if err != nil {
			d.serverError(w, r, "error validating student", err)
			return
		}

		// ── Step 3: Replace all three fields ──────────────────────────
		_, err = d.Storage.UpdateStudentByID(id, types.Student{
			FirstName: student.FirstName,
			LastName:  student.LastName,
			Email:     student.Email,
		})
		// The record may have been deleted since it was read above.
		if errors.Is(err, storage.ErrNotFound) {
			d.notFound(w, r)
			return
		}
		if err != nil {
			d.serverError(w, r, "error updating student", err)
			return
		}

		// ── Step 4: Notice + redirect back to the list ────────────────
		d.log(r).Info("student updated", slog.Int64("id", id))
		d.notify(w, r, flash.Info, NoticeUpdated)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ConfirmDelete handles GET /delete/{id}
// Shows a confirmation form. A GET never deletes anything, so following a
// link or a prefetch cannot destroy a record.
// ─────────────────────────────────────────────────────────────────────────────
func ConfirmDelete(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			d.notFound(w, r)
			return
		}

		student, err := d.Storage.GetStudentByID(id)
		if errors.Is(err, storage.ErrNotFound) {
			d.notFound(w, r)
			return
		}
		if err != nil {
			d.serverError(w, r, "error getting student", err)
			return
		}

		// The confirmation form POSTs back to the same URL with a token.
		d.render(w, r, http.StatusOK, views.ConfirmDelete, views.Page{
			Title:   "Delete",
			Student: student,
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles POST /delete/{id}
// Permanently removes a student and redirects to the list with a notice.
// ─────────────────────────────────────────────────────────────────────────────
func Delete(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			d.notFound(w, r)
			return
		}

		// The CSRF middleware has already checked the token and origin by
		// the time this runs.
		err := d.Storage.DeleteStudentByID(id)
		if errors.Is(err, storage.ErrNotFound) {
			d.notFound(w, r)
			return
		}
		if err != nil {
			d.serverError(w, r, "error deleting student", err)
			return
		}

		d.log(r).Info("student deleted", slog.Int64("id", id))
		d.notify(w, r, flash.Danger, NoticeDeleted)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Search handles GET /search?email=...
// Returns the students with exactly that email:
//
//	{ "result": [ { "id": 1, "fname": "Ann", "lname": "Lee", "email": "ann@x.com" } ] }
//
// A missing or empty email yields { "result": [] }. The value goes to the
// store as a bound parameter and is never validated or rejected here;
// injection attempts simply match nothing.
// ─────────────────────────────────────────────────────────────────────────────
func Search(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.URL.Query() decodes the query string; a missing key gives "".
		email := r.URL.Query().Get("email")
		if email == "" {
			response.WriteJSON(w, http.StatusOK, response.Results(nil))
			return
		}

		students, err := d.Storage.GetStudentsByEmail(email)
		if err != nil {
			// Log the cause, answer with a fixed message.
			d.log(r).Error("error searching students", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError,
				response.GeneralError(errors.New("internal server error")))
			return
		}

		// Results turns a nil slice into [] so the JSON is never null.
		response.WriteJSON(w, http.StatusOK, response.Results(students))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// HashPassword handles GET /hash_password/{plaintext}
// Demonstration only: echoes the plaintext next to its hash. Served only
// when demo mode is on; otherwise the route does not exist.
// ─────────────────────────────────────────────────────────────────────────────
func HashPassword(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Outside demo mode the route behaves as if it were not registered.
		if !d.DemoMode {
			d.notFound(w, r)
			return
		}

		plaintext := r.PathValue("plaintext")
		hashed, err := d.Hasher.Hash(plaintext)
		// bcrypt only looks at the first 72 bytes; longer input is refused
		// rather than silently truncated.
		if errors.Is(err, hasher.ErrTooLong) {
			http.Error(w, "plaintext must be at most 72 bytes", http.StatusBadRequest)
			return
		}
		if err != nil {
			d.serverError(w, r, "error hashing plaintext", err)
			return
		}

		d.render(w, r, http.StatusOK, views.Hash, views.Page{
			Title:     "Hash",
			Plaintext: plaintext,
			Hashed:    hashed,
		})
	}
}

// NotFound renders the generic 404 page for unmatched routes.
func NotFound(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.notFound(w, r)
	}
}

// InternalError renders the generic 500 page, e.g. after a recovered panic.
func InternalError(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.render(w, r, http.StatusInternalServerError, views.InternalError, views.Page{Title: "Error"})
	}
}

// Forbidden renders the page shown when a form fails CSRF verification.
func Forbidden(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reason := "unknown"
		if err := csrf.FailureReason(r); err != nil {
			reason = err.Error()
		}
		d.log(r).Warn("csrf check failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("reason", reason))
		d.render(w, r, http.StatusForbidden, views.Forbidden, views.Page{Title: "Forbidden"})
	}
}
