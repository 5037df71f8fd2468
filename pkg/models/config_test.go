package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPublicConfigHidesToken(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := &Config{
		RepoURL:      "https://github.com/acme/data.git",
		Branch:       "sync",
		AutoSync:     true,
		SyncInterval: 15,
		LastSync:     &ts,
		Token:        "ENC[abc]",
		IsAuthorized: true,
		Username:     "octo",
	}

	pub := cfg.Public()
	assert.True(t, pub.HasToken)
	assert.Equal(t, "sync", pub.Branch)
	assert.Equal(t, 15, pub.SyncInterval)

	data, err := json.Marshal(pub)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ENC[abc]")
	assert.Contains(t, string(data), `"hasToken":true`)
	assert.Contains(t, string(data), `"repoUrl":"https://github.com/acme/data.git"`)
}

func TestPublicConfigDefaults(t *testing.T) {
	pub := DefaultConfig().Public()
	assert.Equal(t, DefaultBranch, pub.Branch)
	assert.Equal(t, DefaultDisplayInterval, pub.SyncInterval)
	assert.False(t, pub.HasToken)
	assert.Nil(t, pub.LastSync)

	assert.Equal(t, DefaultBranch, (&Config{Branch: "  "}).EffectiveBranch())
}

func TestScheduleEnabled(t *testing.T) {
	assert.False(t, (&Config{AutoSync: true}).ScheduleEnabled())
	assert.False(t, (&Config{SyncInterval: 5}).ScheduleEnabled())
	assert.False(t, (&Config{AutoSync: true, SyncInterval: -1}).ScheduleEnabled())
	assert.True(t, (&Config{AutoSync: true, SyncInterval: 5}).ScheduleEnabled())
}

func TestConfigUpdateApply(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		branch   string
		interval int
	}{
		{"numeric interval", `{"repoUrl":"https://x/y.git","branch":"dev","autoSync":true,"syncInterval":30}`, "dev", 30},
		{"string interval", `{"repoUrl":"https://x/y.git","autoSync":true,"syncInterval":"45"}`, DefaultBranch, 45},
		{"garbage interval", `{"repoUrl":"https://x/y.git","syncInterval":"soon"}`, DefaultBranch, 0},
		{"leading digits", `{"syncInterval":"12min"}`, DefaultBranch, 12},
		{"missing interval", `{"repoUrl":" https://x/y.git "}`, DefaultBranch, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var update ConfigUpdate
			require.NoError(t, json.Unmarshal([]byte(tt.body), &update))

			cfg := &Config{Token: "keep", Username: "octo"}
			update.Apply(cfg)

			assert.Equal(t, tt.branch, cfg.Branch)
			assert.Equal(t, tt.interval, cfg.SyncInterval)
			assert.Equal(t, "keep", cfg.Token)
			assert.Equal(t, "octo", cfg.Username)
		})
	}
}

func TestConfigUpdateTrimsURL(t *testing.T) {
	cfg := DefaultConfig()
	ConfigUpdate{RepoURL: "  https://github.com/acme/data.git\n"}.Apply(cfg)
	assert.Equal(t, "https://github.com/acme/data.git", cfg.RepoURL)
}

func TestConfigYAMLKeys(t *testing.T) {
	cfg := &Config{RepoURL: "https://github.com/acme/data.git", Branch: "main", SyncInterval: 10, IsAuthorized: true}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	out := string(data)
	for _, key := range []string{"repo_url:", "branch:", "auto_sync:", "sync_interval:", "last_sync:", "github_token:", "is_authorized:", "username:"} {
		assert.Contains(t, out, key)
	}
}

func TestCloneIsDeep(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := &Config{LastSync: &ts}

	clone := cfg.Clone()
	*clone.LastSync = ts.Add(time.Hour)

	assert.Equal(t, ts, *cfg.LastSync)
}
