package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ff-monheim/ams-console/internal/session"
)

func TestUserFromClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		claims  *Claims
		want    User
		wantErr bool
	}{
		{
			name:   "email claim",
			claims: &Claims{OID: "oid-1", Name: "Max Mustermann", Email: "max@example.org", PreferredUsername: "max@tenant.example"},
			want:   User{ID: "oid-1", Name: "Max Mustermann", Email: "max@example.org"},
		},
		{
			name:   "email falls back to preferred username",
			claims: &Claims{OID: "oid-2", Name: "Erika", PreferredUsername: "erika@tenant.example"},
			want:   User{ID: "oid-2", Name: "Erika", Email: "erika@tenant.example"},
		},
		{
			name:   "name and email are optional",
			claims: &Claims{OID: "oid-3"},
			want:   User{ID: "oid-3"},
		},
		{name: "missing oid", claims: &Claims{Name: "Niemand", Email: "n@example.org"}, wantErr: true},
		{name: "blank oid", claims: &Claims{OID: "   "}, wantErr: true},
		{name: "nil claims", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := UserFromClaims(tt.claims)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUser_Initial(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ö", User{Name: "östlich"}.Initial())
	assert.Equal(t, "M", User{Name: " Max"}.Initial())
	assert.Equal(t, "?", User{}.Initial())
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	p := NewDevProvider(User{ID: "oid-dev", Name: "Entwickler", Email: "dev@localhost"})

	_, err := CurrentUser(p, nil)
	require.ErrorIs(t, err, ErrUnauthenticated)

	sess := session.New()
	_, err = CurrentUser(p, sess)
	require.ErrorIs(t, err, ErrUnauthenticated)

	storeAccount(sess, Account{HomeAccountID: "a", IDTokenClaims: Claims{OID: "a", Name: "Anna"}})
	storeAccount(sess, Account{HomeAccountID: "b", IDTokenClaims: Claims{OID: "b", Name: "Bernd"}})

	user, err := CurrentUser(p, sess)
	require.NoError(t, err)
	assert.Equal(t, "a", user.ID, "first account without an active choice")

	SetActiveAccount(sess, "b")
	user, err = CurrentUser(p, sess)
	require.NoError(t, err)
	assert.Equal(t, "Bernd", user.Name)

	storeAccount(sess, Account{HomeAccountID: "broken"})
	SetActiveAccount(sess, "broken")
	_, err = CurrentUser(p, sess)
	require.ErrorIs(t, err, ErrUnauthenticated, "account without oid claim")
}

func TestStoreAccount_ReplacesSameIdentity(t *testing.T) {
	t.Parallel()

	sess := session.New()
	storeAccount(sess, Account{HomeAccountID: "a", Name: "alt"})
	storeAccount(sess, Account{HomeAccountID: "a", Name: "neu"})

	accounts := loadAccounts(sess)
	require.Len(t, accounts, 1)
	assert.Equal(t, "neu", accounts[0].Name)

	sess.Set(sessionAccountsKey, "{not json")
	assert.Empty(t, loadAccounts(sess))
	assert.Nil(t, loadAccounts(nil))
}

func TestSubscribe_DeliversMatchingEventsUntilUnsubscribed(t *testing.T) {
	t.Parallel()

	p := NewDevProvider(User{ID: "oid-dev", Name: "Entwickler", Email: "dev@localhost"})

	var mu sync.Mutex
	var logins, logouts []Event
	loginID := p.Subscribe(EventLoginSuccess, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		logins = append(logins, ev)
	})
	p.Subscribe(EventLogout, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		logouts = append(logouts, ev)
	})

	sess := session.New()
	login(t, p, sess, "/")
	require.Len(t, logins, 1)
	assert.Equal(t, "oid-dev", logins[0].Account.HomeAccountID)
	assert.Same(t, sess, logins[0].Session)
	assert.Empty(t, logouts)

	p.Unsubscribe(loginID)
	login(t, p, session.New(), "/")
	assert.Len(t, logins, 1)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	p.LogoutRedirect(rec, req.WithContext(session.NewContext(req.Context(), sess)))
	require.Len(t, logouts, 1)
	assert.False(t, p.IsAuthenticated(sess))
}

func TestDevProvider_LoginAndLogout(t *testing.T) {
	t.Parallel()

	p := NewDevProvider(User{ID: "oid-dev", Name: "Entwickler", Email: "dev@localhost"})
	sess := session.New()
	oldID := sess.ID()

	rec := login(t, p, sess, "/lehrgänge")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	location, err := url.PathUnescape(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/lehrgänge", location)
	assert.NotContains(t, rec.Header().Get("Location"), "ä", "redirects escape non-ASCII")
	assert.NotEqual(t, oldID, sess.ID(), "login renews the session id")
	require.True(t, p.IsAuthenticated(sess))

	user, err := CurrentUser(p, sess)
	require.NoError(t, err)
	assert.Equal(t, User{ID: "oid-dev", Name: "Entwickler", Email: "dev@localhost"}, user)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	require.NoError(t, p.HandleCallback(rec, req))
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestDevProvider_ExpiredAccountSignsOut(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	p := NewDevProvider(User{ID: "oid-dev", Name: "Entwickler", Email: "dev@localhost"})
	p.now = func() time.Time { return now }

	sess := session.New()
	login(t, p, sess, "/")
	require.True(t, p.IsAuthenticated(sess))

	now = now.Add(24*time.Hour - time.Second)
	assert.True(t, p.IsAuthenticated(sess), "still valid just before expiry")

	now = now.Add(time.Second)
	assert.False(t, p.IsAuthenticated(sess))
	assert.Empty(t, p.Accounts(sess))
	_, err := CurrentUser(p, sess)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCurrentUser_SkipsExpiredActiveAccount(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	p := NewDevProvider(User{})
	p.now = func() time.Time { return now }

	sess := session.New()
	storeAccount(sess, Account{HomeAccountID: "a", IDTokenClaims: Claims{OID: "a", Name: "Anna"}, ExpiresAt: now.Add(-time.Minute)})
	storeAccount(sess, Account{HomeAccountID: "b", IDTokenClaims: Claims{OID: "b", Name: "Bernd"}, ExpiresAt: now.Add(time.Hour)})
	SetActiveAccount(sess, "a")

	user, err := CurrentUser(p, sess)
	require.NoError(t, err)
	assert.Equal(t, "b", user.ID)
}

func TestSafeReturnTo(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/standorte", safeReturnTo("/standorte"))
	assert.Equal(t, "/", safeReturnTo(""))
	assert.Equal(t, "/", safeReturnTo("https://evil.example"))
	assert.Equal(t, "/", safeReturnTo("//evil.example"))
	assert.Equal(t, "/", safeReturnTo("/\\evil.example"))
}

func login(t *testing.T, p Provider, sess *session.Session, returnTo string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	q := req.URL.Query()
	q.Set("return_to", returnTo)
	req.URL.RawQuery = q.Encode()
	p.LoginRedirect(rec, req.WithContext(session.NewContext(req.Context(), sess)))
	return rec
}

func TestUserContext(t *testing.T) {
	t.Parallel()

	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), User{ID: "oid-1", Name: "Anna"})
	user, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "Anna", user.Name)
}
