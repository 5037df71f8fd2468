package service

import (
	"context"
	"strings"

	apperrors "datasync/pkg/errors"
)

// AuthStatus reports the stored authorization.
type AuthStatus struct {
	Authorized bool   `json:"authorized"`
	Username   string `json:"username"`
}

// AuthStatus returns whether a token is authorized and its owner.
func (s *Service) AuthStatus() AuthStatus {
	cfg := s.store.Get()
	return AuthStatus{Authorized: cfg.IsAuthorized, Username: cfg.Username}
}

// SetToken validates token against the identity provider and stores it.
func (s *Service) SetToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.ValidationError("token", "", "token is missing")
	}

	identity, err := s.provider.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.store.SetToken(token, identity.Login); err != nil {
		return "", err
	}
	s.logger.InfoWithFields("GitHub token stored", map[string]interface{}{"username": identity.Login})
	return identity.Login, nil
}

// AuthorizeURL starts the OAuth web flow.
func (s *Service) AuthorizeURL() (string, error) {
	if !s.provider.Configured() {
		return "", apperrors.ConfigError("GitHub OAuth is not configured", "GITHUB_CLIENT_ID")
	}
	state, err := s.states.Issue()
	if err != nil {
		return "", err
	}
	return s.provider.AuthorizeURL(state), nil
}

// CompleteOAuth checks state, exchanges code for a token and stores it.
func (s *Service) CompleteOAuth(ctx context.Context, code, state string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", apperrors.ValidationError("code", "", "authorization code is missing")
	}
	if !s.states.Consume(state) {
		return "", apperrors.New(apperrors.ErrCodeOAuthStateInvalid, "unknown or expired OAuth state").
			WithSuggestions("Start the authorization again")
	}

	token, identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	if err := s.store.SetToken(token, identity.Login); err != nil {
		return "", err
	}
	s.logger.InfoWithFields("GitHub authorization completed", map[string]interface{}{"username": identity.Login})
	return identity.Login, nil
}
