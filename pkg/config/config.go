package config

import "time"

// ScanConfig holds the knobs of a single scan: budget, timeouts, thresholds and politeness
type ScanConfig struct {
	DefaultMaxPages    int           `mapstructure:"default_max_pages" yaml:"default_max_pages"`
	MaxPagesLimit      int           `mapstructure:"max_pages_limit" yaml:"max_pages_limit"`           // Upper bound accepted from clients
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`               // Per-request timeout
	ThinWordsThreshold int           `mapstructure:"thin_words_threshold" yaml:"thin_words_threshold"` // Pages below this word count are thin
	LinkCheckCap       int           `mapstructure:"link_check_cap" yaml:"link_check_cap"`             // Hard ceiling on link probes per scan
	LinkCheckWorkers   int           `mapstructure:"link_check_workers" yaml:"link_check_workers"`
	NumWorkers         int           `mapstructure:"num_workers" yaml:"num_workers"` // Concurrent crawl fetches (1 = strict BFS)
	MaxRequestsPerHost int           `mapstructure:"max_requests_per_host" yaml:"max_requests_per_host"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	UserAgent          string        `mapstructure:"user_agent" yaml:"user_agent"`
	DelayPerHost       time.Duration `mapstructure:"delay_per_host" yaml:"delay_per_host,omitempty"` // Minimum spacing between requests to one host (0 = none)
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RespectRobots      bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`                                 // Overall request timeout (defaults to scan.fetch_timeout)
	MaxIdleConns          int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty"`                   // Max total idle connections
	MaxIdleConnsPerHost   int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"tls_handshake_timeout" yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `mapstructure:"expect_continue_timeout" yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `mapstructure:"force_attempt_http2" yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `mapstructure:"dialer_timeout" yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `mapstructure:"dialer_keep_alive" yaml:"dialer_keep_alive,omitempty"`
	MaxRedirects          int           `mapstructure:"max_redirects" yaml:"max_redirects,omitempty"`
}

// ServerConfig holds settings for the HTTP/SSE service
type ServerConfig struct {
	Addr                string        `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins      []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimitMax        int           `mapstructure:"rate_limit_max" yaml:"rate_limit_max"`       // Scans admitted per client per window
	RateLimitWindow     time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"` // Rolling window length
	RateLimitMaxClients int           `mapstructure:"rate_limit_max_clients" yaml:"rate_limit_max_clients"`
	AllowPrivateTargets bool          `mapstructure:"allow_private_targets" yaml:"allow_private_targets"` // Skip the host safety gate (local development only)
	TrustForwardedFor   bool          `mapstructure:"trust_forwarded_for" yaml:"trust_forwarded_for"`
	DisableMetrics      bool          `mapstructure:"disable_metrics" yaml:"disable_metrics"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageConfig controls the finished-report history
type StorageConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	StateDir     string        `mapstructure:"state_dir" yaml:"state_dir"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit"` // Reports kept (0 = unlimited)
	GCInterval   time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
}

// LogConfig controls the root logger
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // "text" or "json"
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days,omitempty"`
	Compress   bool   `mapstructure:"compress" yaml:"compress,omitempty"`
}

// WatchConfig lists targets re-scanned on a schedule
type WatchConfig struct {
	Targets  []string `mapstructure:"targets" yaml:"targets,omitempty"`
	Interval string   `mapstructure:"interval" yaml:"interval,omitempty"` // e.g. "30m", "24h", "7d"
	MaxPages int      `mapstructure:"max_pages" yaml:"max_pages,omitempty"`
}

// MCPConfig holds settings for the MCP tool server
type MCPConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"` // "stdio" or "sse"
	Port      int    `mapstructure:"port" yaml:"port"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	Scan               ScanConfig       `mapstructure:"scan" yaml:"scan"`
	MaxRetries         int              `mapstructure:"max_retries" yaml:"max_retries"`
	InitialRetryDelay  time.Duration    `mapstructure:"initial_retry_delay" yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `mapstructure:"max_retry_delay" yaml:"max_retry_delay,omitempty"`
	HTTPClientSettings HTTPClientConfig `mapstructure:"http_client_settings" yaml:"http_client_settings"`
	Server             ServerConfig     `mapstructure:"server" yaml:"server"`
	Storage            StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Logging            LogConfig        `mapstructure:"logging" yaml:"logging"`
	Watch              WatchConfig      `mapstructure:"watch" yaml:"watch,omitempty"`
	MCP                MCPConfig        `mapstructure:"mcp" yaml:"mcp"`
}

// EffectiveMaxPages resolves a client-requested page budget: 0 means the default,
// anything else is clamped to [1, MaxPagesLimit].
func (s ScanConfig) EffectiveMaxPages(requested int) int {
	if requested == 0 {
		requested = s.DefaultMaxPages
	}
	if requested < 1 {
		requested = 1
	}
	if s.MaxPagesLimit > 0 && requested > s.MaxPagesLimit {
		requested = s.MaxPagesLimit
	}
	return requested
}

// MaxPagesInRange reports whether a client-supplied budget is acceptable as-is
func (s ScanConfig) MaxPagesInRange(requested int) bool {
	return requested >= 1 && (s.MaxPagesLimit <= 0 || requested <= s.MaxPagesLimit)
}
