// Package credentials stores per-user OAuth tokens encrypted at rest and
// hands out auto-refreshing HTTP clients.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dayplan/internal/database"
	"dayplan/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ExpiryMargin is subtracted from a token's expiry when judging validity so
// a token never expires mid-request.
const ExpiryMargin = 5 * time.Minute

type Store interface {
	UpsertCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, userID int64, provider string) (*models.Credential, error)
	DeleteCredential(ctx context.Context, userID int64, provider string) error
}

// Tokens is the decrypted view of a credential.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
}

type Manager struct {
	store  Store
	cipher *Cipher
	oauth  *oauth2.Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager fails unless key is exactly 32 bytes. oauth may be nil, in
// which case GetValidClient returns ErrNotConfigured.
func NewManager(store Store, key []byte, oauth *oauth2.Config, logger *zerolog.Logger) (*Manager, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "credentials").Logger()
	}

	return &Manager{store: store, cipher: c, oauth: oauth, logger: l, now: time.Now}, nil
}

// Configured reports whether an OAuth client is available.
func (m *Manager) Configured() bool {
	return m.oauth != nil && m.oauth.ClientID != "" && m.oauth.ClientSecret != ""
}

// StoreTokens encrypts and upserts tokens for (user, provider).
func (m *Manager) StoreTokens(ctx context.Context, userID int64, provider string, tokens Tokens) (*Tokens, error) {
	access, err := m.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := m.cipher.Encrypt(tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	scopes := tokens.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	scopeJSON, err := json.Marshal(scopes)
	if err != nil {
		return nil, fmt.Errorf("encode scopes: %w", err)
	}

	cred := &models.Credential{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    tokens.ExpiresAt,
		Scopes:       string(scopeJSON),
	}
	if err := m.store.UpsertCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}

	out := tokens
	out.Scopes = scopes
	return &out, nil
}

func (m *Manager) GetTokens(ctx context.Context, userID int64, provider string) (*Tokens, error) {
	cred, err := m.store.GetCredential(ctx, userID, provider)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	access, err := m.cipher.Decrypt(cred.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := m.cipher.Decrypt(cred.RefreshToken)
	if err != nil {
		return nil, err
	}

	var scopes []string
	if cred.Scopes != "" {
		if err := json.Unmarshal([]byte(cred.Scopes), &scopes); err != nil {
			return nil, fmt.Errorf("decode scopes: %w", err)
		}
	}

	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: cred.ExpiresAt, Scopes: scopes}, nil
}

// IsExpired is true once now is within ExpiryMargin of the expiry.
func (m *Manager) IsExpired(tokens *Tokens) bool {
	return !m.now().Before(tokens.ExpiresAt.Add(-ExpiryMargin))
}

func (m *Manager) DeleteTokens(ctx context.Context, userID int64, provider string) error {
	err := m.store.DeleteCredential(ctx, userID, provider)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// AuthCodeURL returns the consent URL for the configured client.
func (m *Manager) AuthCodeURL(state string) (string, error) {
	if !m.Configured() {
		return "", ErrNotConfigured
	}
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for tokens and stores them.
func (m *Manager) Exchange(ctx context.Context, userID int64, code string) (*Tokens, error) {
	if !m.Configured() {
		return nil, ErrNotConfigured
	}
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return m.StoreTokens(ctx, userID, models.ProviderGoogle, Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scopes:       m.oauth.Scopes,
	})
}

// GetValidClient returns an HTTP client for the user's Google account whose
// token refreshes automatically. Every refresh is written back to the store.
func (m *Manager) GetValidClient(ctx context.Context, userID int64) (*http.Client, error) {
	if !m.Configured() {
		return nil, ErrNotConfigured
	}

	tokens, err := m.GetTokens(ctx, userID, models.ProviderGoogle)
	if err != nil {
		return nil, err
	}

	// The client outlives this call; keep ctx values but drop its deadline.
	bg := context.WithoutCancel(ctx)

	current := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       tokens.ExpiresAt,
	}
	refresher := &persistingSource{
		manager:      m,
		ctx:          bg,
		userID:       userID,
		scopes:       tokens.Scopes,
		refreshToken: tokens.RefreshToken,
	}
	src := oauth2.ReuseTokenSourceWithExpiry(current, refresher, ExpiryMargin)

	if _, err := src.Token(); err != nil {
		return nil, err
	}
	return oauth2.NewClient(bg, src), nil
}

// persistingSource performs a refresh on every call and saves the result.
// The ReuseTokenSource in front of it decides when a refresh is due.
type persistingSource struct {
	manager *Manager
	ctx     context.Context
	userID  int64
	scopes  []string

	mu           sync.Mutex
	refreshToken string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.manager.oauth.TokenSource(p.ctx, &oauth2.Token{RefreshToken: p.refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.Response == nil || re.Response.StatusCode < http.StatusInternalServerError) {
			p.manager.logger.Warn().Int64("user_id", p.userID).Str("error_code", re.ErrorCode).
				Msg("token refresh rejected, reauthentication required")
			return nil, &ReauthRequiredError{UserID: p.userID, Provider: models.ProviderGoogle, Cause: err}
		}
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	// Providers usually omit the refresh token on refresh; keep the stored one.
	if tok.RefreshToken == "" {
		tok.RefreshToken = p.refreshToken
	}
	p.refreshToken = tok.RefreshToken

	if _, err := p.manager.StoreTokens(p.ctx, p.userID, models.ProviderGoogle, Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scopes:       p.scopes,
	}); err != nil {
		p.manager.logger.Error().Err(err).Int64("user_id", p.userID).Msg("failed to persist refreshed token")
	} else {
		p.manager.logger.Debug().Int64("user_id", p.userID).Time("expires_at", tok.Expiry).Msg("access token refreshed")
	}

	return tok, nil
}
