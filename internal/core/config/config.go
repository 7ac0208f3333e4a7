package config

import (
	"github.com/vietddude/runguard/internal/host"
	"github.com/vietddude/runguard/internal/infra/kv"
	"github.com/vietddude/runguard/internal/stability/loader"
	"github.com/vietddude/runguard/internal/stability/perf"
	"github.com/vietddude/runguard/internal/stability/recovery"
)

// EnvPrefix prefixes every environment override, e.g. RUNGUARD_PERF_LOW_FPS.
const EnvPrefix = "RUNGUARD_"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"   envPrefix:"SERVER_"`
	Logging  LoggingConfig   `yaml:"logging"  envPrefix:"LOG_"`
	Perf     perf.Config     `yaml:"perf"     envPrefix:"PERF_"`
	Loader   loader.Config   `yaml:"loader"   envPrefix:"LOADER_"`
	Recovery recovery.Config `yaml:"recovery" envPrefix:"RECOVERY_"`
	KV       kv.Config       `yaml:"kv"       envPrefix:"KV_"`
	Host     host.Config     `yaml:"host"     envPrefix:"HOST_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port"    env:"PORT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`  // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, text
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Server:   ServerConfig{Enabled: true, Port: 8080},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Perf:     perf.DefaultConfig(),
		Loader:   loader.DefaultConfig(),
		Recovery: recovery.DefaultConfig(),
		KV:       kv.Config{Backend: kv.BackendMemory},
		Host:     host.DefaultConfig(),
	}
}
