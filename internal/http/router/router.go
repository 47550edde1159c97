// Package router wires the student handlers and middlewares into a single
// http.Handler.
package router

import (
	"crypto/sha256"
	"io"
	"net/http"

	"github.com/aanand-mishra/student-records/internal/http/handlers/student"
	"github.com/aanand-mishra/student-records/internal/http/middleware"
	"golang.org/x/crypto/hkdf"
)

// maxFormBytes caps the size of a submitted form.
const maxFormBytes = 64 << 10

// Options are the security settings of the router.
type Options struct {
	// SecretKey seeds the CSRF key.
	SecretKey string
	// SecureCookies marks the CSRF cookie HTTPS-only and enables the
	// strict Referer check for requests without an Origin header.
	SecureCookies bool
}

// DeriveKey turns the configured secret into a 32-byte key for one
// purpose, so the CSRF and session keys never coincide.
func DeriveKey(secret, purpose string) []byte {
	key := make([]byte, 32)
	// HKDF-SHA256 can emit up to 255*32 bytes, so reading 32 never fails.
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose)), key); err != nil {
		panic("router: derive key: " + err.Error())
	}
	return key
}

// New registers every route on a ServeMux and wraps it with the
// middlewares. Route table:
//
//	GET  /                          list + creation form
//	POST /                          create a student
//	GET  /update/{id}               update form
//	POST /update/{id}               update a student
//	GET  /delete/{id}               delete confirmation
//	POST /delete/{id}               delete a student
//	GET  /search?email=             JSON lookup by exact email
//	GET  /hash_password/{plaintext} hash demo (demo mode only)
//
// Anything else gets the 404 page.
func New(deps student.Deps, opts Options) http.Handler {
	mux := http.NewServeMux()

	// {$} anchors the pattern so "/" does not match every path.
	mux.HandleFunc("GET /{$}", student.Index(deps))
	mux.HandleFunc("POST /{$}", student.Create(deps))
	mux.HandleFunc("GET /update/{id}", student.Edit(deps))
	mux.HandleFunc("POST /update/{id}", student.Update(deps))
	mux.HandleFunc("GET /delete/{id}", student.ConfirmDelete(deps))
	mux.HandleFunc("POST /delete/{id}", student.Delete(deps))
	mux.HandleFunc("GET /search", student.Search(deps))
	mux.HandleFunc("GET /hash_password/{plaintext}", student.HashPassword(deps))
	mux.HandleFunc("/", student.NotFound(deps))

	return middleware.Chain(mux,
		middleware.RequestID(deps.Logger),
		middleware.Recoverer(deps.Logger, student.InternalError(deps)),
		middleware.SecureHeaders,
		middleware.LimitForm(maxFormBytes),
		middleware.CSRF(DeriveKey(opts.SecretKey, "csrf"), opts.SecureCookies, student.Forbidden(deps)),
	)
}
