package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Environment variables read by SettingsFromEnv.
const (
	EnvClientID     = "GITHUB_CLIENT_ID"
	EnvClientSecret = "GITHUB_CLIENT_SECRET"
	EnvRedirectURI  = "OAUTH_REDIRECT_URI"

	DefaultAPIURL      = "https://api.github.com"
	DefaultRedirectURI = "http://localhost:8000/auth/github/callback"
)

// Settings configures the GitHub identity provider. Empty URLs use the
// public GitHub endpoints.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	APIURL   string
	AuthURL  string
	TokenURL string

	HTTPClient *http.Client
	Retry      *apperrors.RetryConfig
}

// SettingsFromEnv reads the OAuth application from the environment.
func SettingsFromEnv() Settings {
	redirect := os.Getenv(EnvRedirectURI)
	if redirect == "" {
		redirect = DefaultRedirectURI
	}
	return Settings{
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		RedirectURL:  redirect,
	}
}

// Identity is the account a token belongs to.
type Identity struct {
	Login string `json:"login"`
}

// GitHub validates tokens and runs the OAuth web flow.
type GitHub struct {
	oauth   *oauth2.Config
	apiURL  string
	client  *http.Client
	retry   *apperrors.RetryConfig
	breaker *apperrors.CircuitBreaker
	logger  *observability.Logger
}

// NewGitHub creates a provider from settings.
func NewGitHub(settings Settings, logger *observability.Logger) *GitHub {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	logger = logger.WithField("component", "github")

	endpoint := github.Endpoint
	if settings.AuthURL != "" {
		endpoint.AuthURL = settings.AuthURL
	}
	if settings.TokenURL != "" {
		endpoint.TokenURL = settings.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	apiURL := strings.TrimRight(settings.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	client := settings.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	retry := settings.Retry
	if retry == nil {
		retry = apperrors.DefaultRetryConfig()
	}
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.WarnWithFields("GitHub request failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err,
		})
	}

	return &GitHub{
		oauth: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURL,
			Scopes:       []string{"repo"},
			Endpoint:     endpoint,
		},
		apiURL:  apiURL,
		client:  client,
		retry:   retry,
		breaker: apperrors.NewCircuitBreaker("github", 5, time.Minute),
		logger:  logger,
	}
}

// Configured reports whether an OAuth application is set up.
func (g *GitHub) Configured() bool {
	return g.oauth.ClientID != ""
}

// AuthorizeURL returns the consent page URL carrying state.
func (g *GitHub) AuthorizeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and resolves its owner.
func (g *GitHub) Exchange(ctx context.Context, code string) (string, *Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		var ue *url.Error
		switch {
		case errors.As(err, &re):
			msg := re.ErrorDescription
			if msg == "" {
				msg = "Authorization failed"
			}
			return "", nil, apperrors.New(apperrors.ErrCodeOAuthExchangeFailed, msg).
				WithKind(apperrors.KindAuthFailure).
				WithContext("error", re.ErrorCode)
		case errors.As(err, &ue):
			return "", nil, apperrors.NetworkError("could not reach GitHub to exchange the code", err)
		default:
			return "", nil, apperrors.Wrap(err, apperrors.ErrCodeOAuthExchangeFailed, "Authorization failed").
				WithKind(apperrors.KindAuthFailure)
		}
	}
	if token.AccessToken == "" {
		return "", nil, apperrors.New(apperrors.ErrCodeOAuthExchangeFailed, "No access token received").
			WithKind(apperrors.KindAuthFailure)
	}

	identity, err := g.ValidateToken(ctx, token.AccessToken)
	if err != nil {
		return "", nil, err
	}
	return token.AccessToken, identity, nil
}

// ValidateToken resolves the account owning token. A rejected token is an
// auth failure; transient failures are retried.
func (g *GitHub) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	var identity *Identity
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return apperrors.Retry(ctx, g.retry, func(ctx context.Context) error {
			id, err := g.fetchUser(ctx, token)
			if err != nil {
				return err
			}
			identity = id
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (g *GitHub) fetchUser(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"/user", nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build identity request")
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "datasync")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperrors.NetworkError("could not reach GitHub to validate the token", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 500:
		return nil, apperrors.New(apperrors.ErrCodeServiceUnavailable,
			fmt.Sprintf("GitHub returned %d", resp.StatusCode)).AsRecoverable()
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		g.logger.WarnWithFields("GitHub rejected the token", map[string]interface{}{
			"status": resp.StatusCode,
		})
		return nil, apperrors.AuthError("GitHub token is invalid or lacks permission", nil).
			WithContext("status", resp.StatusCode)
	}

	var identity Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "unexpected identity response")
	}
	return &identity, nil
}
