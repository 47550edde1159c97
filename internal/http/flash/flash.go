// Package flash carries one-shot notices across a redirect in a signed
// session cookie.
package flash

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// Notice categories, also used as CSS classes by the templates.
const (
	Success = "success"
	Info    = "info"
	Danger  = "danger"
)

var categories = []string{Success, Info, Danger}

// SessionName is the name of the cookie holding pending notices.
const SessionName = "student-records"

// Notice is a single user-facing message.
type Notice struct {
	Category string
	Message  string
}

// Flasher adds and consumes notices.
type Flasher struct {
	store sessions.Store
}

// New returns a Flasher backed by store.
func New(store sessions.Store) *Flasher {
	return &Flasher{store: store}
}

// NewCookieStore returns a cookie store signed with key whose cookies are
// HttpOnly, SameSite=Lax, and Secure when secure is true.
func NewCookieStore(key []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Add queues a notice for the next page render. It must be called before
// anything is written to w.
func (f *Flasher) Add(w http.ResponseWriter, r *http.Request, category, message string) error {
	// A tampered or expired cookie yields a fresh session and an error;
	// the fresh session is still usable.
	session, _ := f.store.Get(r, SessionName)
	session.AddFlash(message, category)
	return session.Save(r, w)
}

// Pop returns and clears all pending notices, grouped by category in a
// fixed order.
func (f *Flasher) Pop(w http.ResponseWriter, r *http.Request) ([]Notice, error) {
	session, _ := f.store.Get(r, SessionName)

	var notices []Notice
	for _, category := range categories {
		for _, v := range session.Flashes(category) {
			if msg, ok := v.(string); ok {
				notices = append(notices, Notice{Category: category, Message: msg})
			}
		}
	}

	if len(notices) == 0 {
		return nil, nil
	}
	return notices, session.Save(r, w)
}
