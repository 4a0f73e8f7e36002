// Package config loads operator-facing settings from the environment
// (spec.md §10's ambient configuration), following the same
// viper-bind-then-unmarshal pattern used elsewhere in the examples.
package config

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds every setting a coveragectl process needs to boot.
type Config struct {
	AssetsRoot            string  `mapstructure:"RADAR_ASSETS_ROOT"`
	HTTPPort              string  `mapstructure:"RADAR_HTTP_PORT"`
	TerrainCacheCapacity  int     `mapstructure:"RADAR_CACHE_CAPACITY"`
	CoverageCacheCapacity int     `mapstructure:"RADAR_COVERAGE_CACHE_CAPACITY"`
	ViewshedWorkers       int     `mapstructure:"RADAR_VIEWSHED_WORKERS"`
	DefaultRadiusM        float64 `mapstructure:"RADAR_DEFAULT_RADIUS_M"`
	GatewayVerifyKey      string  `mapstructure:"RADAR_GATEWAY_VERIFY_KEY"`
}

// Addr returns the HTTP listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

// Load reads configuration from a local .env file (if present) and the
// process environment, applying defaults for anything unset.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("RADAR_ASSETS_ROOT")
	viper.BindEnv("RADAR_HTTP_PORT")
	viper.BindEnv("RADAR_CACHE_CAPACITY")
	viper.BindEnv("RADAR_COVERAGE_CACHE_CAPACITY")
	viper.BindEnv("RADAR_VIEWSHED_WORKERS")
	viper.BindEnv("RADAR_DEFAULT_RADIUS_M")
	viper.BindEnv("RADAR_GATEWAY_VERIFY_KEY")

	viper.SetDefault("RADAR_ASSETS_ROOT", "./assets/terrain")
	viper.SetDefault("RADAR_HTTP_PORT", "8080")
	viper.SetDefault("RADAR_CACHE_CAPACITY", 64)
	viper.SetDefault("RADAR_COVERAGE_CACHE_CAPACITY", 100)
	viper.SetDefault("RADAR_VIEWSHED_WORKERS", 4)
	viper.SetDefault("RADAR_DEFAULT_RADIUS_M", 470_000.0)

	if err := viper.ReadInConfig(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
