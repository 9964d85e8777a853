package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestEffectiveMaxPages(t *testing.T) {
	s := ScanConfig{DefaultMaxPages: 25, MaxPagesLimit: 200}
	tests := []struct {
		requested int
		want      int
	}{
		{0, 25},
		{1, 1},
		{50, 50},
		{200, 200},
		{500, 200},
		{-3, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.EffectiveMaxPages(tt.requested), "requested=%d", tt.requested)
	}
}

func TestMaxPagesInRange(t *testing.T) {
	s := ScanConfig{MaxPagesLimit: 200}
	assert.False(t, s.MaxPagesInRange(0))
	assert.True(t, s.MaxPagesInRange(1))
	assert.True(t, s.MaxPagesInRange(200))
	assert.False(t, s.MaxPagesInRange(201))
}

func TestValidate_Defaults(t *testing.T) {
	cfg := &AppConfig{}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, 25, cfg.Scan.DefaultMaxPages)
	assert.Equal(t, 200, cfg.Scan.MaxPagesLimit)
	assert.Equal(t, 12*time.Second, cfg.Scan.FetchTimeout)
	assert.Equal(t, 250, cfg.Scan.ThinWordsThreshold)
	assert.Equal(t, 120, cfg.Scan.LinkCheckCap)
	assert.Equal(t, 1, cfg.Scan.NumWorkers)
	assert.Equal(t, 10*time.Second, cfg.Scan.PingInterval)
	assert.Equal(t, DefaultUserAgent, cfg.Scan.UserAgent)
	assert.Equal(t, int64(5<<20), cfg.Scan.MaxBodyBytes)

	assert.Equal(t, 12*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 10, cfg.HTTPClientSettings.MaxRedirects)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 10, cfg.Server.RateLimitMax)
	assert.Equal(t, 5*time.Minute, cfg.Server.RateLimitWindow)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdio", cfg.MCP.Transport)
	assert.Equal(t, 8080, cfg.MCP.Port)
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		warning string
		check   func(*testing.T, *AppConfig)
	}{
		{
			name:    "negative retries",
			mutate:  func(c *AppConfig) { c.MaxRetries = -1 },
			warning: "max_retries cannot be negative",
			check:   func(t *testing.T, c *AppConfig) { assert.Equal(t, 0, c.MaxRetries) },
		},
		{
			name: "initial delay above max",
			mutate: func(c *AppConfig) {
				c.MaxRetries = 2
				c.InitialRetryDelay = 10 * time.Second
				c.MaxRetryDelay = time.Second
			},
			warning: "initial_retry_delay",
			check:   func(t *testing.T, c *AppConfig) { assert.Equal(t, time.Second, c.InitialRetryDelay) },
		},
		{
			name:    "default above limit",
			mutate:  func(c *AppConfig) { c.Scan.DefaultMaxPages = 500; c.Scan.MaxPagesLimit = 100 },
			warning: "exceeds scan.max_pages_limit",
			check:   func(t *testing.T, c *AppConfig) { assert.Equal(t, 100, c.Scan.DefaultMaxPages) },
		},
		{
			name:    "negative link cap",
			mutate:  func(c *AppConfig) { c.Scan.LinkCheckCap = -5 },
			warning: "link_check_cap cannot be negative",
			check:   func(t *testing.T, c *AppConfig) { assert.Equal(t, 120, c.Scan.LinkCheckCap) },
		},
		{
			name:    "unknown log format",
			mutate:  func(c *AppConfig) { c.Logging.Format = "xml" },
			warning: "logging.format",
			check:   func(t *testing.T, c *AppConfig) { assert.Equal(t, "text", c.Logging.Format) },
		},
		{
			name:    "private targets allowed",
			mutate:  func(c *AppConfig) { c.Server.AllowPrivateTargets = true },
			warning: "safety gate is bypassed",
		},
		{
			name:    "storage without dir",
			mutate:  func(c *AppConfig) { c.Storage.Enabled = true },
			warning: "storage.state_dir is empty",
			check:   func(t *testing.T, c *AppConfig) { assert.Equal(t, "./seo_audit_state", c.Storage.StateDir) },
		},
		{
			name:    "watch without interval",
			mutate:  func(c *AppConfig) { c.Watch.Targets = []string{"example.com"} },
			warning: "watch.interval is empty",
			check:   func(t *testing.T, c *AppConfig) { assert.Equal(t, "24h", c.Watch.Interval) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &AppConfig{}
			tt.mutate(cfg)
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.warning), "expected warning %q in %v", tt.warning, warnings)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidate_UnknownMCPTransport(t *testing.T) {
	cfg := &AppConfig{MCP: MCPConfig{Transport: "websocket"}}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
scan:
  default_max_pages: 40
  fetch_timeout: 5s
server:
  addr: ":9000"
  rate_limit_max: 3
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SEO_AUDIT_SERVER_ADDR", ":9100")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Scan.DefaultMaxPages)
	assert.Equal(t, 5*time.Second, cfg.Scan.FetchTimeout)
	assert.Equal(t, ":9100", cfg.Server.Addr, "env should override file")
	assert.Equal(t, 3, cfg.Server.RateLimitMax)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 250, cfg.Scan.ThinWordsThreshold, "defaults still applied")
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Scan.DefaultMaxPages)
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Dump(Default(), &buf))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Contains(t, back, "scan")
	assert.Contains(t, back, "server")
	assert.Contains(t, buf.String(), "default_max_pages: 25")
}
