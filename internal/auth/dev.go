package auth

import (
	"net/http"
	"time"

	"github.com/ff-monheim/ams-console/internal/session"
)

// DevProvider signs everyone in as one fixed identity. It exists for local
// development without an identity provider.
type DevProvider struct {
	base
	user User
}

// NewDevProvider returns a provider that logs in as user.
func NewDevProvider(user User) *DevProvider {
	return &DevProvider{base: base{now: time.Now}, user: user}
}

// LoginRedirect implements Provider. The login completes immediately.
func (p *DevProvider) LoginRedirect(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	now := p.clock()
	claims := Claims{
		OID:               p.user.ID,
		Name:              p.user.Name,
		Email:             p.user.Email,
		PreferredUsername: p.user.Email,
	}
	p.signIn(sess, Account{
		HomeAccountID: p.user.ID,
		Username:      p.user.Email,
		Name:          p.user.Name,
		IDTokenClaims: claims,
		ExpiresAt:     now.Add(24 * time.Hour),
	})
	http.Redirect(w, r, safeReturnTo(r.URL.Query().Get("return_to")), http.StatusSeeOther)
}

// HandleCallback implements Provider. There is no callback in dev mode.
func (p *DevProvider) HandleCallback(w http.ResponseWriter, r *http.Request) error {
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}

// LogoutRedirect implements Provider.
func (p *DevProvider) LogoutRedirect(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess != nil {
		p.signOut(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
