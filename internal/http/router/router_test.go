package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/hasher"
	"github.com/aanand-mishra/student-records/internal/http/flash"
	"github.com/aanand-mishra/student-records/internal/http/handlers/student"
	"github.com/aanand-mishra/student-records/internal/http/middleware"
	"github.com/aanand-mishra/student-records/internal/http/views"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/storage/sqlite"
	"github.com/aanand-mishra/student-records/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "router-test-secret-0123456789abcdef"

var tokenField = regexp.MustCompile(`name="` + middleware.CSRFFieldName + `" value="([^"]+)"`)

// client keeps cookies between requests the way a browser would, and
// sends an Origin header on form posts.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
	origin  string
}

func (c *client) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if method != http.MethodGet && c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

// token fetches a page and returns the CSRF token embedded in its form.
func (c *client) token(target string) string {
	c.t.Helper()
	rec := c.do(http.MethodGet, target, nil)
	require.Equal(c.t, http.StatusOK, rec.Code)

	m := tokenField.FindStringSubmatch(rec.Body.String())
	require.Len(c.t, m, 2, "no csrf field on %s", target)
	return m[1]
}

func (c *client) submit(target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	form.Set(middleware.CSRFFieldName, c.token(target))
	return c.do(http.MethodPost, target, form)
}

type panickingStorage struct {
	storage.Storage
}

func (panickingStorage) GetStudents() ([]types.Student, error) {
	panic("boom: internal detail")
}

func newTestHandler(t *testing.T, store storage.Storage, demo bool) http.Handler {
	t.Helper()
	deps := student.Deps{
		Storage:  store,
		Hasher:   hasher.New(bcrypt.MinCost),
		Views:    views.MustNew(),
		Flash:    flash.New(flash.NewCookieStore(DeriveKey(testSecret, "session"), true)),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		DemoMode: demo,
	}
	return New(deps, Options{SecretKey: testSecret, SecureCookies: true})
}

func newSQLiteStore(t *testing.T) *sqlite.SQLite {
	t.Helper()
	s, err := sqlite.New(&config.Config{StoragePath: filepath.Join(t.TempDir(), "students.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newClient(t *testing.T, handler http.Handler) *client {
	// httptest requests are addressed to example.com.
	return &client{t: t, handler: handler, cookies: make(map[string]*http.Cookie), origin: "https://example.com"}
}

func TestStudentScenario(t *testing.T) {
	store := newSQLiteStore(t)
	c := newClient(t, newTestHandler(t, store, false))

	// Create.
	rec := c.submit("/", url.Values{
		"first_name": {"Ann"},
		"last_name":  {"Lee"},
		"email":      {"ann@x.com"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	page := c.do(http.MethodGet, "/", nil)
	assert.Contains(t, page.Body.String(), student.NoticeCreated)

	rec = c.do(http.MethodGet, "/search?email=ann%40x.com", nil)
	assert.JSONEq(t, `{"result":[{"id":1,"fname":"Ann","lname":"Lee","email":"ann@x.com"}]}`, rec.Body.String())

	// Update.
	rec = c.submit("/update/1", url.Values{
		"first_name": {"Anne"},
		"last_name":  {"Lee"},
		"email":      {"anne@x.com"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	got, err := store.GetStudentByID(1)
	require.NoError(t, err)
	assert.Equal(t, "anne@x.com", got.Email)

	// Delete needs the confirmation form.
	rec = c.submit("/delete/1", url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	_, err = store.GetStudentByID(1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/update/1", nil).Code)
}

func TestInvalidSubmissionAddsNothing(t *testing.T) {
	store := newSQLiteStore(t)
	c := newClient(t, newTestHandler(t, store, false))

	rec := c.submit("/", url.Values{
		"first_name": {"A1"},
		"last_name":  {"Lee"},
		"email":      {"not-an-email"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-field="first_name"`)
	assert.Contains(t, rec.Body.String(), `data-field="email"`)

	all, err := store.GetStudents()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	store := newSQLiteStore(t)
	id, err := store.CreateStudent("Ann", "Lee", "ann@x.com")
	require.NoError(t, err)
	c := newClient(t, newTestHandler(t, store, false))

	// Even with a valid cookie from an earlier page, a form without the
	// token is rejected.
	c.do(http.MethodGet, "/", nil)

	rec := c.do(http.MethodPost, "/delete/1", url.Values{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Forbidden")

	rec = c.do(http.MethodPost, "/", url.Values{
		"first_name":             {"Bob"},
		"last_name":              {"Lee"},
		"email":                  {"bob@x.com"},
		middleware.CSRFFieldName: {"forged"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err = store.GetStudentByID(id)
	assert.NoError(t, err)
	all, err := store.GetStudents()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCrossOriginPostIsForbidden(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.CreateStudent("Ann", "Lee", "ann@x.com")
	require.NoError(t, err)
	c := newClient(t, newTestHandler(t, store, false))

	// A valid cookie and token do not help a page on another origin.
	c.origin = "https://evil.attacker.example"
	rec := c.submit("/delete/1", url.Values{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Same with only a foreign Referer.
	form := url.Values{middleware.CSRFFieldName: {c.token("/delete/1")}}
	req := httptest.NewRequest(http.MethodPost, "/delete/1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "https://evil.attacker.example/page")
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec = httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err = store.GetStudentByID(1)
	assert.NoError(t, err)
}

func TestOversizedFormIsRejected(t *testing.T) {
	store := newSQLiteStore(t)
	c := newClient(t, newTestHandler(t, store, false))

	rec := c.submit("/", url.Values{
		"first_name": {strings.Repeat("a", 1<<20)},
		"last_name":  {"Lee"},
		"email":      {"ann@x.com"},
	})

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	all, err := store.GetStudents()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGetDeleteNeverDeletes(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.CreateStudent("Ann", "Lee", "ann@x.com")
	require.NoError(t, err)
	c := newClient(t, newTestHandler(t, store, false))

	rec := c.do(http.MethodGet, "/delete/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err = store.GetStudentByID(1)
	assert.NoError(t, err)
}

func TestSearchInjectionMatchesNothing(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.CreateStudent("Foo", "Bar", "foo@example.com")
	require.NoError(t, err)
	c := newClient(t, newTestHandler(t, store, false))

	rec := c.do(http.MethodGet, "/search?email="+url.QueryEscape("foo@example.com' OR '1'='1"), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Result []types.Student `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotNil(t, out.Result)
	assert.Empty(t, out.Result)
}

func TestCommonHeadersAndNotFound(t *testing.T) {
	c := newClient(t, newTestHandler(t, newSQLiteStore(t), false))

	rec := c.do(http.MethodGet, "/no/such/page", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/hash_password/secret", nil).Code)
}

func TestHashPasswordInDemoMode(t *testing.T) {
	c := newClient(t, newTestHandler(t, newSQLiteStore(t), true))

	rec := c.do(http.MethodGet, "/hash_password/secret", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hashed: $2a$")
}

func TestPanicRendersInternalErrorPage(t *testing.T) {
	c := newClient(t, newTestHandler(t, panickingStorage{Storage: newSQLiteStore(t)}, false))

	rec := c.do(http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.NotContains(t, rec.Body.String(), "boom")

	// The process keeps serving.
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/search", nil).Code)
}

func TestDeriveKey(t *testing.T) {
	a := DeriveKey(testSecret, "csrf")
	b := DeriveKey(testSecret, "session")

	assert.Len(t, a, 32)
	assert.Len(t, b, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, DeriveKey(testSecret, "csrf"))
	assert.NotEqual(t, a, DeriveKey(testSecret+"x", "csrf"))

	// Purpose and secret are kept apart, so shifting a separator between
	// them gives a different key.
	assert.NotEqual(t, DeriveKey("a:b", "c"), DeriveKey("b", "c:a"))
}
