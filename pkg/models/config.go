package models

import (
	"strconv"
	"strings"
	"time"
)

// DefaultBranch is used when no branch is configured and detection fails.
const DefaultBranch = "main"

// DefaultDisplayInterval is reported for an unset sync interval.
const DefaultDisplayInterval = 60

// MaxSyncInterval is the longest accepted schedule, one year in minutes.
const MaxSyncInterval = 365 * 24 * 60

// Config is the persisted sync record.
type Config struct {
	RepoURL      string     `yaml:"repo_url"`
	Branch       string     `yaml:"branch"`
	AutoSync     bool       `yaml:"auto_sync"`
	SyncInterval int        `yaml:"sync_interval"` // minutes, 0 disables the schedule
	LastSync     *time.Time `yaml:"last_sync"`
	Token        string     `yaml:"github_token"` // ENC[...] or keyring marker, never plaintext on save
	IsAuthorized bool       `yaml:"is_authorized"`
	Username     string     `yaml:"username"`
}

// DefaultConfig returns a record with every field at its default.
func DefaultConfig() *Config {
	return &Config{Branch: DefaultBranch}
}

// EffectiveBranch returns the configured branch or the default.
func (c *Config) EffectiveBranch() string {
	if b := strings.TrimSpace(c.Branch); b != "" {
		return b
	}
	return DefaultBranch
}

// ScheduleEnabled reports whether the auto-sync timer should run.
func (c *Config) ScheduleEnabled() bool {
	return c.AutoSync && c.SyncInterval > 0
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.LastSync != nil {
		ts := *c.LastSync
		out.LastSync = &ts
	}
	return &out
}

// Public returns the view that may leave the process.
func (c *Config) Public() PublicConfig {
	interval := c.SyncInterval
	if interval == 0 {
		interval = DefaultDisplayInterval
	}
	return PublicConfig{
		RepoURL:      c.RepoURL,
		Branch:       c.EffectiveBranch(),
		AutoSync:     c.AutoSync,
		SyncInterval: interval,
		LastSync:     c.LastSync,
		HasToken:     c.Token != "",
		IsAuthorized: c.IsAuthorized,
		Username:     c.Username,
	}
}

// PublicConfig never carries the credential, only whether one is held.
type PublicConfig struct {
	RepoURL      string     `json:"repoUrl"`
	Branch       string     `json:"branch"`
	AutoSync     bool       `json:"autoSync"`
	SyncInterval int        `json:"syncInterval"`
	LastSync     *time.Time `json:"lastSync"`
	HasToken     bool       `json:"hasToken"`
	IsAuthorized bool       `json:"isAuthorized"`
	Username     string     `json:"username,omitempty"`
}

// ConfigUpdate holds the user-editable fields of a POST /config body.
type ConfigUpdate struct {
	RepoURL      string      `json:"repoUrl"`
	Branch       string      `json:"branch"`
	AutoSync     bool        `json:"autoSync"`
	SyncInterval FlexibleInt `json:"syncInterval"`
}

// Apply copies the update onto c, defaulting the branch.
func (u ConfigUpdate) Apply(c *Config) {
	c.RepoURL = strings.TrimSpace(u.RepoURL)
	c.Branch = strings.TrimSpace(u.Branch)
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	c.AutoSync = u.AutoSync
	c.SyncInterval = int(u.SyncInterval)
}

// FlexibleInt accepts a JSON number or a numeric string. Anything that does
// not parse leniently decodes to zero.
type FlexibleInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	*f = FlexibleInt(parseLeadingInt(s))
	return nil
}

// parseLeadingInt reads an optional sign and the leading digits of s.
func parseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		ch := s[end]
		if ch >= '0' && ch <= '9' || (end == 0 && (ch == '-' || ch == '+')) {
			end++
			continue
		}
		break
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
