package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// EnvPrefix is prepended to every environment override, e.g. SEO_AUDIT_SERVER_ADDR
const EnvPrefix = "SEO_AUDIT"

// envKeys are bound explicitly so overrides work even when the YAML file omits the key
var envKeys = []string{
	"scan.default_max_pages",
	"scan.max_pages_limit",
	"scan.fetch_timeout",
	"scan.thin_words_threshold",
	"scan.link_check_cap",
	"scan.num_workers",
	"scan.user_agent",
	"scan.respect_robots",
	"max_retries",
	"server.addr",
	"server.allowed_origins",
	"server.rate_limit_max",
	"server.rate_limit_window",
	"server.allow_private_targets",
	"server.trust_forwarded_for",
	"server.disable_metrics",
	"storage.enabled",
	"storage.state_dir",
	"storage.history_limit",
	"logging.level",
	"logging.format",
	"logging.file",
	"mcp.transport",
	"mcp.port",
}

// Load reads configuration from an optional YAML file plus SEO_AUDIT_* environment
// overrides, then validates it. An empty path loads environment and defaults only.
func Load(path string) (*AppConfig, []string, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, nil, fmt.Errorf("%w: bind env %s: %v", utils.ErrConfigValidation, key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, nil, fmt.Errorf("%w: config file not found: %s", utils.ErrConfigValidation, path)
			}
			return nil, nil, fmt.Errorf("%w: read config '%s': %v", utils.ErrConfigValidation, path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: decode config: %v", utils.ErrConfigValidation, err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// Default returns a validated configuration with every default applied
func Default() *AppConfig {
	cfg := &AppConfig{}
	_, _ = cfg.Validate()
	return cfg
}

// Dump writes the effective configuration as YAML
func Dump(cfg *AppConfig, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
