package adrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/adrive-go/internal/tokenfile"
)

// ErrNotLoggedIn is returned when no saved token exists at the token path.
var ErrNotLoggedIn = errors.New("adrive: not logged in")

// OAuth endpoints relative to the API base URL.
const (
	authorizePath   = "/oauth/authorize"
	accessTokenPath = "/oauth/access_token"
)

// OAuthConfig returns the oauth2 configuration used to refresh tokens
// against baseURL. Sign-in happens elsewhere; this is only the refresh leg.
func OAuthConfig(baseURL, clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   baseURL + authorizePath,
			TokenURL:  baseURL + accessTokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// TokenSourceFromPath loads a saved token from the given path and returns a
// TokenSource that refreshes through cfg and writes refreshed tokens back to
// the same file. Returns ErrNotLoggedIn if no token file exists at the path.
//
// The returned TokenSource binds ctx to the underlying oauth2 token source.
// ctx must outlive the TokenSource.
func TokenSourceFromPath(ctx context.Context, tokenPath string, cfg *oauth2.Config, logger *slog.Logger) (TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, ErrNotLoggedIn
	}

	tok := tf.Token
	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	p := &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		path:   tokenPath,
		last:   tok.AccessToken,
		logger: logger,
	}

	return &tokenBridge{src: oauth2.ReuseTokenSource(tok, p), logger: logger}, nil
}

// persistingSource writes a token back to disk whenever the wrapped source
// hands out a new access token.
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	p.last = tok.AccessToken

	if err := tokenfile.UpdateToken(p.path, tok); err != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("path", p.path),
			slog.String("error", err.Error()),
		)

		return tok, nil
	}

	p.logger.Info("persisted refreshed token",
		slog.String("path", p.path),
		slog.Time("new_expiry", tok.Expiry),
	)

	return tok, nil
}

// tokenBridge adapts oauth2.TokenSource to adrive.TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("adrive: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}

// StaticToken is a TokenSource that always returns the same bearer token.
// Useful when the surrounding layer manages refresh itself.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrNotLoggedIn
	}

	return string(s), nil
}
