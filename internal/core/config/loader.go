package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file on top of Default, then applies
// RUNGUARD_* environment overrides. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Host.TargetFPS == 0 {
		cfg.Host.TargetFPS = 60
	}
	if cfg.Host.Profile == "" && len(cfg.Host.Phases) == 0 {
		cfg.Host.Profile = "steady"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects threshold combinations the monitor cannot honor.
func (c *AppConfig) Validate() error {
	var errs []error
	p := c.Perf
	if p.LowFPS > 0 && p.GoodFPS > 0 && p.GoodFPS < p.LowFPS {
		errs = append(errs, fmt.Errorf("perf.good_fps (%v) below perf.low_fps (%v)", p.GoodFPS, p.LowFPS))
	}
	if p.GoodFPS > 0 && p.RecoverFPS > 0 && p.RecoverFPS < p.GoodFPS {
		errs = append(errs, fmt.Errorf("perf.recover_fps (%v) below perf.good_fps (%v)", p.RecoverFPS, p.GoodFPS))
	}
	if c.Loader.BaseDelay < 0 {
		errs = append(errs, errors.New("loader.base_delay must not be negative"))
	}
	if c.Host.TargetFPS < 0 {
		errs = append(errs, errors.New("host.target_fps must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
