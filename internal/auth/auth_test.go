package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(nil, securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(16))
}

func TestPasswords(t *testing.T) {
	t.Parallel()

	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "battery staple"))
}

func TestSession_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	rec := httptest.NewRecorder()
	require.NoError(t, s.SetSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), 17))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	sess, ok := s.GetSession(req)
	require.True(t, ok)
	assert.Equal(t, int64(17), sess.UserID)

	// a cookie from another key pair is rejected
	_, ok = newTestStore().GetSession(req)
	assert.False(t, ok)
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	var seen int64
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	login := httptest.NewRecorder()
	require.NoError(t, s.SetSession(login, httptest.NewRequest(http.MethodPost, "/login", nil), 5))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(login.Result().Cookies()[0])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(5), seen)
}

func TestClearSession(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestStore().ClearSession(rec)
	c := rec.Result().Cookies()
	require.Len(t, c, 1)
	assert.Equal(t, cookieName, c[0].Name)
	assert.Negative(t, c[0].MaxAge)
}
