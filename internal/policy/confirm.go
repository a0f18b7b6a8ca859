package policy

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

const defaultConfirmTTL = 5 * time.Minute

var (
	// ErrConfirmationRequired is returned when a delete arrives without confirm=true.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrInvalidConfirmToken is returned for unknown, expired, reused or foreign tokens.
	ErrInvalidConfirmToken = errors.New("invalid or expired confirmation token")
)

// Target is the record a confirmation token was issued for.
type Target struct {
	SessionID string
	Resource  string
	ID        string
}

// Confirmations issues one-time tokens for the two-phase delete: showing
// the dialog issues a token, and only a POST carrying confirm=true and that
// token may delete the record.
type Confirmations struct {
	tokens *ttlcache.Cache[string, Target]
}

// NewConfirmations returns a started token store. Call Close to stop eviction.
func NewConfirmations(ttl time.Duration) *Confirmations {
	if ttl <= 0 {
		ttl = defaultConfirmTTL
	}
	tokens := ttlcache.New(
		ttlcache.WithTTL[string, Target](ttl),
		ttlcache.WithDisableTouchOnHit[string, Target](),
	)
	go tokens.Start()
	return &Confirmations{tokens: tokens}
}

// Issue returns a fresh token bound to target.
func (c *Confirmations) Issue(target Target) string {
	token := uuid.NewString()
	c.tokens.Set(token, target, ttlcache.DefaultTTL)
	return token
}

// Consume checks the submitted form and spends its token. A token is valid
// once, for the session, resource and record it was issued for.
func (c *Confirmations) Consume(form url.Values, target Target) error {
	if err := RequireConfirmation(target.Resource, form); err != nil {
		return err
	}

	token := strings.TrimSpace(form.Get("token"))
	if token == "" {
		return ErrInvalidConfirmToken
	}
	item, found := c.tokens.GetAndDelete(token)
	if !found || item.IsExpired() || item.Value() != target {
		return ErrInvalidConfirmToken
	}
	return nil
}

// Pending returns the number of unspent tokens.
func (c *Confirmations) Pending() int {
	return c.tokens.Len()
}

// Close stops background eviction.
func (c *Confirmations) Close() {
	c.tokens.Stop()
}

// RequireConfirmation enforces an explicit confirm=true on destructive posts.
func RequireConfirmation(resource string, form url.Values) error {
	confirm, err := strconv.ParseBool(strings.TrimSpace(form.Get("confirm")))
	if err == nil && confirm {
		return nil
	}
	name := strings.TrimSpace(resource)
	if name == "" {
		name = "unknown"
	}
	return fmt.Errorf("deleting %s requires confirm=true: %w", name, ErrConfirmationRequired)
}
