package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

const (
	DefaultUserAgent    = "seo-audit/1.0 (+SEO scan)"
	defaultMaxPages     = 25
	defaultMaxPagesCap  = 200
	defaultFetchTimeout = 12 * time.Second
	defaultThinWords    = 250
	defaultLinkCheckCap = 120
	defaultPingInterval = 10 * time.Second
	defaultMaxBodyBytes = 5 << 20
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	warnings = append(warnings, c.Scan.validate()...)

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 500 * time.Millisecond
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 5 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	c.validateHTTPClientSettings()
	warnings = append(warnings, c.Server.validate()...)
	warnings = append(warnings, c.Storage.validate()...)
	warnings = append(warnings, c.Logging.validate()...)

	// MCP transport is the only fatal misconfiguration: the server cannot start without it
	if c.MCP.Transport == "" {
		c.MCP.Transport = "stdio"
	}
	if c.MCP.Transport != "stdio" && c.MCP.Transport != "sse" {
		return warnings, fmt.Errorf("%w: mcp.transport %q (supported: stdio, sse)", utils.ErrConfigValidation, c.MCP.Transport)
	}
	if c.MCP.Port <= 0 {
		c.MCP.Port = 8080
	}

	if len(c.Watch.Targets) > 0 && c.Watch.Interval == "" {
		warnings = append(warnings, "watch.interval is empty, defaulting to '24h'")
		c.Watch.Interval = "24h"
	}

	return warnings, nil
}

// validate applies scan defaults and returns warnings
func (s *ScanConfig) validate() (warnings []string) {
	if s.MaxPagesLimit <= 0 {
		s.MaxPagesLimit = defaultMaxPagesCap
	}
	if s.DefaultMaxPages <= 0 {
		s.DefaultMaxPages = defaultMaxPages
	}
	if s.DefaultMaxPages > s.MaxPagesLimit {
		warnings = append(warnings, fmt.Sprintf(
			"scan.default_max_pages (%d) exceeds scan.max_pages_limit (%d), clamping",
			s.DefaultMaxPages, s.MaxPagesLimit))
		s.DefaultMaxPages = s.MaxPagesLimit
	}

	if s.FetchTimeout <= 0 {
		s.FetchTimeout = defaultFetchTimeout
	} else if s.FetchTimeout > 15*time.Second {
		warnings = append(warnings, fmt.Sprintf(
			"scan.fetch_timeout (%v) is above 15s, a single slow host can stall the scan", s.FetchTimeout))
	}

	if s.ThinWordsThreshold <= 0 {
		s.ThinWordsThreshold = defaultThinWords
	}
	if s.LinkCheckCap < 0 {
		warnings = append(warnings, "scan.link_check_cap cannot be negative, defaulting to 120")
		s.LinkCheckCap = defaultLinkCheckCap
	} else if s.LinkCheckCap == 0 {
		s.LinkCheckCap = defaultLinkCheckCap
	}
	if s.LinkCheckWorkers <= 0 {
		s.LinkCheckWorkers = 4
	}
	if s.NumWorkers <= 0 {
		s.NumWorkers = 1
	}
	if s.MaxRequestsPerHost <= 0 {
		s.MaxRequestsPerHost = 2
	}
	if s.PingInterval <= 0 {
		s.PingInterval = defaultPingInterval
	}
	if strings.TrimSpace(s.UserAgent) == "" {
		s.UserAgent = DefaultUserAgent
	}
	if s.DelayPerHost < 0 {
		warnings = append(warnings, "scan.delay_per_host cannot be negative, disabling delay")
		s.DelayPerHost = 0
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = defaultMaxBodyBytes
	}
	return warnings
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = c.Scan.FetchTimeout
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 10 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

func (s *ServerConfig) validate() (warnings []string) {
	if s.Addr == "" {
		s.Addr = ":8000"
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	if s.RateLimitMax <= 0 {
		s.RateLimitMax = 10
	}
	if s.RateLimitWindow <= 0 {
		s.RateLimitWindow = 5 * time.Minute
	}
	if s.RateLimitMaxClients <= 0 {
		s.RateLimitMaxClients = 10000
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
	if s.AllowPrivateTargets {
		warnings = append(warnings, "server.allow_private_targets is enabled, the host safety gate is bypassed")
	}
	return warnings
}

func (s *StorageConfig) validate() (warnings []string) {
	if !s.Enabled {
		return nil
	}
	if s.StateDir == "" {
		warnings = append(warnings, "storage.state_dir is empty, defaulting to './seo_audit_state'")
		s.StateDir = "./seo_audit_state"
	}
	if s.HistoryLimit < 0 {
		warnings = append(warnings, "storage.history_limit cannot be negative, keeping all reports")
		s.HistoryLimit = 0
	}
	if s.GCInterval <= 0 {
		s.GCInterval = 10 * time.Minute
	}
	return warnings
}

func (l *LogConfig) validate() (warnings []string) {
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Format {
	case "text", "json":
	case "":
		l.Format = "text"
	default:
		warnings = append(warnings, fmt.Sprintf("logging.format %q unknown, defaulting to 'text'", l.Format))
		l.Format = "text"
	}
	if l.File != "" {
		if l.MaxSizeMB <= 0 {
			l.MaxSizeMB = 10
		}
		if l.MaxBackups <= 0 {
			l.MaxBackups = 3
		}
		if l.MaxAgeDays <= 0 {
			l.MaxAgeDays = 28
		}
	}
	return warnings
}
