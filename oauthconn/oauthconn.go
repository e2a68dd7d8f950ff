// Package oauthconn manages OAuth connections between MyCoach users and
// external providers (calendar, fitness trackers).
//
// Access and refresh tokens live in plaintext only inside the process;
// the persistence layer stores them encrypted under the token key domain,
// isolated from the general PII key.
package oauthconn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/gaelgael5/mycoach-sub001/account"
	"github.com/gaelgael5/mycoach-sub001/audit"
	"github.com/gaelgael5/mycoach-sub001/domain"
)

// Provider holds the OAuth2 settings for one external provider.
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

func (p Provider) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// Manager drives authorization-code exchange and token refresh for the
// configured providers.
type Manager struct {
	providers  map[string]Provider
	store      domain.OAuthConnectionStorage
	auditStore audit.Store
}

// NewManager creates a connection manager. auditStore may be nil.
func NewManager(providers map[string]Provider, store domain.OAuthConnectionStorage, auditStore audit.Store) *Manager {
	return &Manager{providers: providers, store: store, auditStore: auditStore}
}

func (m *Manager) provider(name string) (Provider, error) {
	p, ok := m.providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("oauthconn: unknown provider %q", name)
	}
	return p, nil
}

// AuthURL returns the provider's consent URL for the given CSRF state.
func (m *Manager) AuthURL(providerName, state string) (string, error) {
	p, err := m.provider(providerName)
	if err != nil {
		return "", err
	}
	return p.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange trades an authorization code for tokens and persists the
// connection for the user.
func (m *Manager) Exchange(ctx context.Context, providerName, userID, code string) (*account.OAuthConnection, error) {
	p, err := m.provider(providerName)
	if err != nil {
		return nil, err
	}

	token, err := p.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauthconn: code exchange failed: %w", err)
	}

	now := time.Now()
	conn := &account.OAuthConnection{
		ID:           uuid.New().String(),
		UserID:       userID,
		Provider:     providerName,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.SaveConnection(ctx, conn); err != nil {
		return nil, err
	}

	m.audit(ctx, audit.EventOAuthConnected, userID, providerName)
	return conn, nil
}

// FreshToken returns a valid access token for the user's connection,
// refreshing and re-persisting if it has expired.
func (m *Manager) FreshToken(ctx context.Context, providerName, userID string) (string, error) {
	p, err := m.provider(providerName)
	if err != nil {
		return "", err
	}

	conn, err := m.store.GetConnection(ctx, userID, providerName)
	if err != nil {
		return "", err
	}

	if time.Now().Before(conn.TokenExpiry.Add(-time.Minute)) {
		return conn.AccessToken, nil
	}

	src := p.oauthConfig().TokenSource(ctx, &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		Expiry:       conn.TokenExpiry,
	})
	token, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("oauthconn: token refresh failed: %w", err)
	}

	conn.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		conn.RefreshToken = token.RefreshToken
	}
	conn.TokenExpiry = token.Expiry
	conn.UpdatedAt = time.Now()

	if err := m.store.SaveConnection(ctx, conn); err != nil {
		return "", err
	}

	m.audit(ctx, audit.EventOAuthRefreshed, userID, providerName)
	return token.AccessToken, nil
}

// Disconnect removes the user's connection to a provider.
func (m *Manager) Disconnect(ctx context.Context, providerName, userID string) error {
	if err := m.store.DeleteConnection(ctx, userID, providerName); err != nil {
		return err
	}
	m.audit(ctx, audit.EventOAuthDisconnected, userID, providerName)
	return nil
}

func (m *Manager) audit(ctx context.Context, eventType, subjectID, message string) {
	if m.auditStore == nil {
		return
	}
	m.auditStore.SaveEvent(ctx, &audit.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SubjectID: subjectID,
		Status:    "success",
		Message:   message,
		CreatedAt: time.Now(),
	})
}
