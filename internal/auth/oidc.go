package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/ff-monheim/ams-console/internal/session"
)

const (
	discoveryPath  = "/.well-known/openid-configuration"
	defaultLeeway  = time.Minute
	defaultTimeout = 10 * time.Second
)

var (
	// ErrLoginFailed wraps errors reported by the identity provider.
	ErrLoginFailed = errors.New("login failed")
	// ErrStateMismatch means the callback does not belong to a login started in this session.
	ErrStateMismatch = errors.New("login state mismatch")
	// ErrNonceMismatch means the ID token was not issued for this login.
	ErrNonceMismatch = errors.New("id token nonce mismatch")
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "profile", "email"}

// OIDCConfig configures an OIDCProvider.
type OIDCConfig struct {
	// Authority is the issuer base URL, for example
	// https://login.microsoftonline.com/<tenant>/v2.0.
	Authority             string
	ClientID              string
	ClientSecret          string
	RedirectURL           string
	PostLogoutRedirectURL string
	Scopes                []string

	HTTPClient *http.Client
	Logger     zerolog.Logger
	Leeway     time.Duration
	Now        func() time.Time
}

type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
}

// pendingLogin is kept in the session between redirect and callback.
type pendingLogin struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"`
	ReturnTo string `json:"returnTo"`
}

// OIDCProvider signs users in with the OpenID Connect authorization-code
// flow (PKCE, state and nonce checked).
type OIDCProvider struct {
	base

	cfg       OIDCConfig
	discovery discoveryDocument
	oauth     *oauth2.Config
	keys      *KeySet
	logger    zerolog.Logger
}

// NewOIDCProvider loads the provider's discovery document and returns a
// ready provider. Call Close to release the key cache.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	authority := strings.TrimRight(strings.TrimSpace(cfg.Authority), "/")
	if authority == "" {
		return nil, fmt.Errorf("oidc: authority is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("oidc: client id is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultLeeway
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	doc, err := fetchDiscovery(ctx, cfg.HTTPClient, authority+discoveryPath)
	if err != nil {
		return nil, err
	}

	return &OIDCProvider{
		base:      base{now: cfg.Now},
		cfg:       cfg,
		discovery: doc,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  doc.AuthorizationEndpoint,
				TokenURL: doc.TokenEndpoint,
			},
		},
		keys:   NewKeySet(doc.JWKSURI, KeySetOptions{HTTPClient: cfg.HTTPClient, Now: cfg.Now}),
		logger: cfg.Logger.With().Str("component", "oidc").Logger(),
	}, nil
}

// Close stops the key cache.
func (p *OIDCProvider) Close() {
	p.keys.Close()
}

// Ready checks that the identity provider's keys can be loaded.
func (p *OIDCProvider) Ready(ctx context.Context) error {
	return p.keys.Refresh(ctx)
}

// LoginRedirect implements Provider.
func (p *OIDCProvider) LoginRedirect(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	pending := pendingLogin{
		State:    uuid.NewString(),
		Nonce:    uuid.NewString(),
		Verifier: oauth2.GenerateVerifier(),
		ReturnTo: safeReturnTo(r.URL.Query().Get("return_to")),
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		http.Error(w, "login unavailable", http.StatusInternalServerError)
		return
	}
	sess.Set(sessionPendingKey, string(raw))

	target := p.oauth.AuthCodeURL(
		pending.State,
		oauth2.S256ChallengeOption(pending.Verifier),
		oauth2.SetAuthURLParam("nonce", pending.Nonce),
	)
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleCallback implements Provider.
func (p *OIDCProvider) HandleCallback(w http.ResponseWriter, r *http.Request) error {
	sess := session.FromContext(r.Context())
	if sess == nil {
		return errors.New("session unavailable")
	}

	query := r.URL.Query()
	if code := query.Get("error"); code != "" {
		sess.Delete(sessionPendingKey)
		return fmt.Errorf("%s: %s: %w", code, query.Get("error_description"), ErrLoginFailed)
	}

	var pending pendingLogin
	if raw := sess.Get(sessionPendingKey); raw == "" || json.Unmarshal([]byte(raw), &pending) != nil {
		return ErrStateMismatch
	}
	sess.Delete(sessionPendingKey)
	if pending.State == "" || query.Get("state") != pending.State {
		return ErrStateMismatch
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, p.cfg.HTTPClient)
	tok, err := p.oauth.Exchange(ctx, query.Get("code"), oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return fmt.Errorf("token response has no id_token: %w", ErrLoginFailed)
	}

	claims, err := p.verify(r.Context(), rawIDToken)
	if err != nil {
		return err
	}
	if claims.Nonce != pending.Nonce {
		return ErrNonceMismatch
	}
	user, err := UserFromClaims(claims)
	if err != nil {
		return err
	}

	account := Account{
		HomeAccountID: user.ID,
		Username:      user.Email,
		Name:          user.Name,
		IDTokenClaims: *claims,
	}
	if claims.ExpiresAt != nil {
		account.ExpiresAt = claims.ExpiresAt.Time
	}
	p.signIn(sess, account)
	p.logger.Info().Str("user_id", user.ID).Msg("login succeeded")

	http.Redirect(w, r, pending.ReturnTo, http.StatusSeeOther)
	return nil
}

// LogoutRedirect implements Provider.
func (p *OIDCProvider) LogoutRedirect(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess != nil {
		p.signOut(sess)
	}

	target := p.cfg.PostLogoutRedirectURL
	if p.discovery.EndSessionEndpoint != "" {
		q := url.Values{}
		q.Set("client_id", p.cfg.ClientID)
		if p.cfg.PostLogoutRedirectURL != "" {
			q.Set("post_logout_redirect_uri", p.cfg.PostLogoutRedirectURL)
		}
		target = p.discovery.EndSessionEndpoint + "?" + q.Encode()
	}
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (p *OIDCProvider) verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, p.keys.Keyfunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(p.discovery.Issuer),
		jwt.WithAudience(p.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.cfg.Leeway),
		jwt.WithTimeFunc(p.cfg.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("verifying id token: %w", err)
	}
	return claims, nil
}

func fetchDiscovery(ctx context.Context, client *http.Client, endpoint string) (discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return discoveryDocument{}, fmt.Errorf("building discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return discoveryDocument{}, fmt.Errorf("fetching discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return discoveryDocument{}, fmt.Errorf("fetching discovery document: unexpected status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return discoveryDocument{}, fmt.Errorf("decoding discovery document: %w", err)
	}
	if doc.Issuer == "" || doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.JWKSURI == "" {
		return discoveryDocument{}, errors.New("discovery document is missing required endpoints")
	}
	return doc, nil
}
