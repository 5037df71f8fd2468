package git

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// CredentialUser is the userinfo name GitHub accepts for token auth.
const CredentialUser = "x-access-token"

const redacted = "***"

var userinfoPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)[^/@\s'"]+@`)

// InjectCredential returns rawURL with the token as userinfo. It reports
// false, leaving the URL alone, for non-https URLs and URLs that already
// carry userinfo.
func InjectCredential(rawURL, token string) (string, bool) {
	if token == "" {
		return rawURL, false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return rawURL, false
	}
	if u.User != nil {
		return rawURL, false
	}
	u.User = url.UserPassword(CredentialUser, token)
	return u.String(), true
}

// Redact masks userinfo in every URL found in s.
func Redact(s string) string {
	return userinfoPattern.ReplaceAllString(s, "${1}"+redacted+"@")
}

// RedactSecret masks URLs and every literal occurrence of secret.
func RedactSecret(s, secret string) string {
	s = Redact(s)
	if secret != "" {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

// RedactArgs returns a redacted copy of args.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Redact(a)
	}
	return out
}

// IsSSHURL checks if a git URL is using SSH protocol
func IsSSHURL(gitURL string) bool {
	return strings.HasPrefix(gitURL, "git@") || strings.HasPrefix(gitURL, "ssh://")
}

// IsHTTPSURL checks if a git URL is using HTTPS protocol
func IsHTTPSURL(gitURL string) bool {
	return strings.HasPrefix(gitURL, "https://") || strings.HasPrefix(gitURL, "http://")
}

// ExtractRepoName extracts the repository name from a git URL
func ExtractRepoName(gitURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(gitURL), "/"), ".git")
	if trimmed == "" {
		return "unknown"
	}
	if IsSSHURL(trimmed) && !strings.HasPrefix(trimmed, "ssh://") {
		// git@github.com:user/repo
		if i := strings.Index(trimmed, ":"); i >= 0 {
			trimmed = trimmed[i+1:]
		}
	}
	parts := strings.Split(filepath.ToSlash(trimmed), "/")
	return parts[len(parts)-1]
}

// ValidateGitURL performs basic validation on a git URL
func ValidateGitURL(gitURL string) error {
	gitURL = strings.TrimSpace(gitURL)
	if gitURL == "" {
		return fmt.Errorf("git URL cannot be empty")
	}

	switch {
	case IsSSHURL(gitURL):
		return nil
	case IsHTTPSURL(gitURL), strings.HasPrefix(gitURL, "file://"):
		u, err := url.Parse(gitURL)
		if err != nil {
			return fmt.Errorf("invalid git URL: %w", err)
		}
		if u.Scheme != "file" && u.Host == "" {
			return fmt.Errorf("invalid git URL: missing host")
		}
		return nil
	case filepath.IsAbs(gitURL):
		return nil
	}
	return fmt.Errorf("invalid git URL: must be SSH, HTTPS, or absolute local path")
}
