package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCredential() Credential {
	return Credential{
		Realm:          "1234567",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		TokenKey:       "tk",
		TokenSecret:    "ts",
	}
}

func TestCredential_Validate(t *testing.T) {
	assert.NoError(t, validCredential().Validate())

	tests := []struct {
		name   string
		mutate func(*Credential)
	}{
		{"realm", func(c *Credential) { c.Realm = "" }},
		{"consumer_key", func(c *Credential) { c.ConsumerKey = "" }},
		{"consumer_secret", func(c *Credential) { c.ConsumerSecret = "" }},
		{"token_key", func(c *Credential) { c.TokenKey = "" }},
		{"token_secret", func(c *Credential) { c.TokenSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := validCredential()
			tt.mutate(&cred)
			err := cred.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name)
		})
	}
}

func TestConfig_ValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{Credential: validCredential()}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Upstream.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Upstream.TotalTimeout)
	assert.Equal(t, 1000, cfg.Upstream.MaxPageSize)
	assert.Equal(t, 100, cfg.Upstream.MaxPages)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cfg := NewConfig()
	cfg.Credential = validCredential()
	cfg.Upstream.RetryAttempts = -1
	assert.Error(t, cfg.Validate())

	cfg = NewConfig()
	cfg.Credential = validCredential()
	cfg.RateLimit.InboundPerSec = -1
	assert.Error(t, cfg.Validate())
}

func TestConfig_DefaultPageSizeClampedToMax(t *testing.T) {
	cfg := NewConfig()
	cfg.Credential = validCredential()
	cfg.Upstream.MaxPageSize = 100
	cfg.Upstream.DefaultPageSize = 500
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Upstream.DefaultPageSize)
}

func TestConfig_URLs(t *testing.T) {
	cfg := NewConfig()
	cfg.Credential = validCredential()

	assert.Equal(t,
		"https://1234567.suitetalk.api.netsuite.com/services/rest/record/v1",
		cfg.RecordURL())
	assert.Equal(t,
		"https://1234567.suitetalk.api.netsuite.com/services/rest/query/v1/suiteql",
		cfg.SuiteQLURL())

	cfg.Upstream.BaseURL = "http://127.0.0.1:8080"
	assert.Equal(t, "http://127.0.0.1:8080/services/rest/record/v1", cfg.RecordURL())
	assert.Equal(t, "http://127.0.0.1:8080/services/rest/query/v1/suiteql", cfg.SuiteQLURL())
}

func TestLoad_YAMLWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_NS_SECRET", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
credential:
  realm: "1234567"
  consumer_key: ck
  consumer_secret: ${TEST_NS_SECRET}
  token_key: tk
  token_secret: ts
upstream:
  retry_attempts: 5
  max_page_size: 200
cache:
  ttl: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "from-env", cfg.Credential.ConsumerSecret)
	assert.Equal(t, 5, cfg.Upstream.RetryAttempts)
	assert.Equal(t, 200, cfg.Upstream.MaxPageSize)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
}

func TestLoad_MissingFile(t *testing.T) {
	assert.Error(t, Load("/does/not/exist.yaml", NewConfig()))
}

func TestFromEnv(t *testing.T) {
	t.Setenv("NETSUITE_REALM", "7654321")
	t.Setenv("NETSUITE_CONSUMER_KEY", "ck")
	t.Setenv("NETSUITE_CONSUMER_SECRET", "cs")
	t.Setenv("NETSUITE_TOKEN_KEY", "tk")
	t.Setenv("NETSUITE_TOKEN_SECRET", "ts")

	cfg := FromEnv()
	assert.Equal(t, "7654321", cfg.Credential.Realm)
	assert.NoError(t, cfg.Credential.Validate())
}
