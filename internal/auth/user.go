package auth

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ff-monheim/ams-console/internal/session"
)

// ErrUnauthenticated means there is no signed-in user, or the ID token lacks
// the claims a user needs.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims are the ID token claims the console reads.
type Claims struct {
	// OID is the directory object ID, the user's stable identifier.
	OID               string `json:"oid"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Nonce             string `json:"nonce,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// User is the signed-in staff member.
type User struct {
	ID    string
	Name  string
	Email string
}

// Initial returns the upper-cased first letter of the name, for the avatar.
func (u User) Initial() string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(u.Name))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// UserFromClaims projects claims onto a User. The object ID is required;
// email falls back to the preferred username.
func UserFromClaims(claims *Claims) (User, error) {
	if claims == nil {
		return User{}, ErrUnauthenticated
	}
	id := strings.TrimSpace(claims.OID)
	if id == "" {
		return User{}, ErrUnauthenticated
	}

	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = strings.TrimSpace(claims.PreferredUsername)
	}
	return User{
		ID:    id,
		Name:  strings.TrimSpace(claims.Name),
		Email: email,
	}, nil
}

// CurrentUser returns the user of the session's active account.
func CurrentUser(p Provider, sess *session.Session) (User, error) {
	if p == nil || sess == nil {
		return User{}, ErrUnauthenticated
	}
	account, ok := pickActive(sess, p.Accounts(sess))
	if !ok {
		return User{}, ErrUnauthenticated
	}
	return UserFromClaims(&account.IDTokenClaims)
}

type userContextKey struct{}

// WithUser stores the signed-in user on ctx.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey{}).(User)
	return user, ok
}
