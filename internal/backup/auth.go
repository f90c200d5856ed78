package backup

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/cryptox"
	"github.com/dmitrijs2005/carekeeper/internal/kv"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
)

// DriveFileScope limits the session to files the app created.
const DriveFileScope = "https://www.googleapis.com/auth/drive.file"

const stateTTL = 10 * time.Minute

// TokenStore persists the provider session.
type TokenStore interface {
	// Load returns (nil, nil) when no token is stored.
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
	Clear(ctx context.Context) error
}

// KVTokenStore keeps the token sealed in the local cache.
type KVTokenStore struct {
	repo kv.Repository
	key  string
	seal []byte
}

func NewKVTokenStore(repo kv.Repository, appPrefix, secret string) *KVTokenStore {
	return &KVTokenStore{
		repo: repo,
		key:  appPrefix + "-backup-token",
		seal: cryptox.DeriveKey([]byte(secret), []byte(appPrefix+"-backup-token")),
	}
}

func (s *KVTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.repo.Get(ctx, s.key)
	if err != nil || len(data) == 0 {
		return nil, err
	}
	var tok oauth2.Token
	if err := cryptox.Open(data, s.seal, &tok); err != nil {
		return nil, fmt.Errorf("open stored token: %w", err)
	}
	return &tok, nil
}

func (s *KVTokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	sealed, err := cryptox.Seal(tok, s.seal)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	return s.repo.Set(ctx, s.key, sealed)
}

func (s *KVTokenStore) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, s.key)
}

// AuthConfig describes the OAuth client registered with the provider.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	// StateSecret signs the short-lived state parameter.
	StateSecret string
}

type stateClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// Authenticator runs the authorization-code flow and hands out authorized
// HTTP clients. It implements ClientSource.
type Authenticator struct {
	oauth    *oauth2.Config
	tokens   TokenStore
	stateKey []byte
	logger   logging.Logger

	mu sync.Mutex
}

func NewAuthenticator(cfg AuthConfig, tokens TokenStore, logger logging.Logger) *Authenticator {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{DriveFileScope}
	}
	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      scopes,
		},
		tokens:   tokens,
		stateKey: []byte(cfg.StateSecret),
		logger:   logger.With("module", "backup-auth"),
	}
}

// AuthCodeURL returns the consent URL carrying a signed state value.
func (a *Authenticator) AuthCodeURL() (string, error) {
	nonce, err := cryptox.RandomHex(16)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(stateTTL)),
		},
		Nonce: nonce,
	})
	state, err := token.SignedString(a.stateKey)
	if err != nil {
		return "", err
	}

	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (a *Authenticator) verifyState(state string) error {
	claims := &stateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		return a.stateKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidState, err)
	}
	if !token.Valid || claims.Nonce == "" {
		return common.ErrInvalidState
	}
	return nil
}

// Exchange completes the flow started by AuthCodeURL and stores the token.
func (a *Authenticator) Exchange(ctx context.Context, state, code string) error {
	if err := a.verifyState(state); err != nil {
		return err
	}

	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.tokens.Save(ctx, tok); err != nil {
		return err
	}
	a.logger.Info(ctx, "backup provider authorized", "expiry", tok.Expiry)
	return nil
}

// Authenticated reports whether a session is stored.
func (a *Authenticator) Authenticated(ctx context.Context) (bool, error) {
	tok, err := a.tokens.Load(ctx)
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

// Logout forgets the stored session.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens.Clear(ctx)
}

// HTTPClient returns a client that authorizes requests and persists
// refreshed tokens.
func (a *Authenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	a.mu.Lock()
	tok, err := a.tokens.Load(ctx)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, common.ErrNotAuthenticated
	}

	base := context.WithoutCancel(ctx)
	src := &persistingSource{
		base:   oauth2.ReuseTokenSource(tok, a.oauth.TokenSource(base, tok)),
		last:   tok.AccessToken,
		auth:   a,
		ctx:    base,
		logger: a.logger,
	}
	return oauth2.NewClient(base, src), nil
}

// persistingSource saves every token the refresh flow hands back.
type persistingSource struct {
	base   oauth2.TokenSource
	auth   *Authenticator
	ctx    context.Context
	logger logging.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		p.auth.mu.Lock()
		if err := p.auth.tokens.Save(p.ctx, tok); err != nil {
			p.logger.Warn(p.ctx, "persist refreshed token failed", "error", err)
		}
		p.auth.mu.Unlock()
	}
	return tok, nil
}
