package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

const (
	defaultKeyTTL             = 24 * time.Hour
	defaultMinRefreshInterval = time.Minute
)

// ErrUnknownKey is returned when a token's kid is not in the provider's key set.
var ErrUnknownKey = errors.New("unknown signing key")

// JWKSet is a JSON Web Key Set document.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWK is one JSON Web Key. Only RSA signing keys are used.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet caches the identity provider's signing keys by kid. An unknown kid
// triggers a refresh, at most once per minimum interval.
type KeySet struct {
	url        string
	httpClient *http.Client
	minRefresh time.Duration
	now        func() time.Time

	keys  *ttlcache.Cache[string, *rsa.PublicKey]
	group singleflight.Group

	mu          sync.Mutex
	lastRefresh time.Time
}

// KeySetOptions configures a KeySet.
type KeySetOptions struct {
	HTTPClient         *http.Client
	KeyTTL             time.Duration
	MinRefreshInterval time.Duration
	Now                func() time.Time
}

// NewKeySet returns a started key set for the JWKS document at url.
func NewKeySet(url string, opts KeySetOptions) *KeySet {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.KeyTTL <= 0 {
		opts.KeyTTL = defaultKeyTTL
	}
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = defaultMinRefreshInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	keys := ttlcache.New(
		ttlcache.WithTTL[string, *rsa.PublicKey](opts.KeyTTL),
		ttlcache.WithDisableTouchOnHit[string, *rsa.PublicKey](),
	)
	go keys.Start()

	return &KeySet{
		url:        url,
		httpClient: opts.HTTPClient,
		minRefresh: opts.MinRefreshInterval,
		now:        opts.Now,
		keys:       keys,
	}
}

// Close stops background eviction.
func (k *KeySet) Close() {
	k.keys.Stop()
}

// Key returns the public key for kid, refreshing the set when it is unknown.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if item := k.keys.Get(kid); item != nil {
		return item.Value(), nil
	}

	if !k.refreshDue() {
		return nil, fmt.Errorf("kid %q: %w", kid, ErrUnknownKey)
	}
	if err := k.Refresh(ctx); err != nil {
		return nil, err
	}

	if item := k.keys.Get(kid); item != nil {
		return item.Value(), nil
	}
	return nil, fmt.Errorf("kid %q: %w", kid, ErrUnknownKey)
}

// Keyfunc adapts the key set to jwt.ParseWithClaims.
func (k *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid: %w", ErrUnknownKey)
		}
		return k.Key(ctx, kid)
	}
}

// Refresh downloads the key set. Concurrent callers share one download.
func (k *KeySet) Refresh(ctx context.Context) error {
	_, err, _ := k.group.Do("refresh", func() (any, error) {
		k.mu.Lock()
		k.lastRefresh = k.now()
		k.mu.Unlock()
		return nil, k.fetch(ctx)
	})
	return err
}

func (k *KeySet) refreshDue() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastRefresh.IsZero() || k.now().Sub(k.lastRefresh) >= k.minRefresh
}

func (k *KeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("building jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetching jwks: unexpected status %d", resp.StatusCode)
	}

	var set JWKSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("decoding jwks: %w", err)
	}

	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || jwk.Kid == "" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		key, err := jwk.PublicKey()
		if err != nil {
			continue
		}
		k.keys.Set(jwk.Kid, key, ttlcache.DefaultTTL)
	}
	return nil
}

// PublicKey decodes the RSA modulus and exponent.
func (j JWK) PublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	exponent := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exponent.IsInt64() || exponent.Int64() < 3 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(exponent.Int64()),
	}, nil
}
