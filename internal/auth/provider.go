// Package auth signs staff in through the identity provider and resolves the
// upstream API token.
//
// Accounts live in the browser session, so signing out or closing the
// browser ends them. Providers announce completed logins through a small
// event subscription, which the web layer uses to pick the active account.
package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ff-monheim/ams-console/internal/session"
)

const (
	sessionAccountsKey = "auth.accounts"
	sessionActiveKey   = "auth.active"
	sessionPendingKey  = "auth.pending"
)

// EventType names a provider event.
type EventType string

const (
	// EventLoginSuccess fires after an account was added to the session.
	EventLoginSuccess EventType = "login_success"
	// EventLogout fires before the session is destroyed on logout.
	EventLogout EventType = "logout"
)

// Account is one signed-in identity.
type Account struct {
	HomeAccountID string    `json:"homeAccountId"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	IDTokenClaims Claims    `json:"idTokenClaims"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired reports whether the account's ID token has expired at now.
func (a Account) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// Event is delivered to subscribers.
type Event struct {
	Type    EventType
	Account Account
	Session *session.Session
}

// Provider is the identity provider adapter.
type Provider interface {
	IsAuthenticated(sess *session.Session) bool
	Accounts(sess *session.Session) []Account
	// LoginRedirect sends the browser to the identity provider.
	LoginRedirect(w http.ResponseWriter, r *http.Request)
	// LogoutRedirect clears the session and signs out at the provider.
	LogoutRedirect(w http.ResponseWriter, r *http.Request)
	// HandleCallback completes a login and redirects to the page the user
	// came from. On error nothing is written.
	HandleCallback(w http.ResponseWriter, r *http.Request) error
	Subscribe(t EventType, fn func(Event)) string
	Unsubscribe(id string)
}

type subscription struct {
	eventType EventType
	fn        func(Event)
}

// base implements the session and event parts shared by all providers.
type base struct {
	mu   sync.RWMutex
	subs map[string]subscription
	now  func() time.Time
}

func (b *base) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

// IsAuthenticated implements Provider. Expired accounts do not count.
func (b *base) IsAuthenticated(sess *session.Session) bool {
	return len(b.Accounts(sess)) > 0
}

// Accounts implements Provider. Accounts whose ID token has expired are left
// out; a zero ExpiresAt never expires.
func (b *base) Accounts(sess *session.Session) []Account {
	now := b.clock()
	var live []Account
	for _, account := range loadAccounts(sess) {
		if account.Expired(now) {
			continue
		}
		live = append(live, account)
	}
	return live
}

// Subscribe implements Provider.
func (b *base) Subscribe(t EventType, fn func(Event)) string {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = map[string]subscription{}
	}
	b.subs[id] = subscription{eventType: t, fn: fn}
	return id
}

// Unsubscribe implements Provider.
func (b *base) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *base) emit(ev Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.eventType == ev.Type {
			fns = append(fns, sub.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (b *base) signIn(sess *session.Session, account Account) {
	// New identity, new session ID.
	sess.Renew()
	storeAccount(sess, account)
	b.emit(Event{Type: EventLoginSuccess, Account: account, Session: sess})
}

func (b *base) signOut(sess *session.Session) {
	if active, ok := ActiveAccount(sess); ok {
		b.emit(Event{Type: EventLogout, Account: active, Session: sess})
	}
	sess.Destroy()
}

// ActiveAccount returns the active account, or the first one when none was
// chosen yet.
func ActiveAccount(sess *session.Session) (Account, bool) {
	return pickActive(sess, loadAccounts(sess))
}

func pickActive(sess *session.Session, accounts []Account) (Account, bool) {
	if len(accounts) == 0 {
		return Account{}, false
	}
	activeID := sess.Get(sessionActiveKey)
	for _, account := range accounts {
		if account.HomeAccountID == activeID {
			return account, true
		}
	}
	return accounts[0], true
}

// SetActiveAccount marks the account with homeAccountID as active.
func SetActiveAccount(sess *session.Session, homeAccountID string) {
	if sess == nil {
		return
	}
	sess.Set(sessionActiveKey, homeAccountID)
}

func loadAccounts(sess *session.Session) []Account {
	if sess == nil {
		return nil
	}
	raw := sess.Get(sessionAccountsKey)
	if raw == "" {
		return nil
	}
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil
	}
	return accounts
}

func storeAccount(sess *session.Session, account Account) {
	accounts := loadAccounts(sess)
	replaced := false
	for i := range accounts {
		if accounts[i].HomeAccountID == account.HomeAccountID {
			accounts[i] = account
			replaced = true
		}
	}
	if !replaced {
		accounts = append(accounts, account)
	}
	raw, err := json.Marshal(accounts)
	if err != nil {
		return
	}
	sess.Set(sessionAccountsKey, string(raw))
}

// safeReturnTo keeps post-login redirects on this site.
func safeReturnTo(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	return raw
}
