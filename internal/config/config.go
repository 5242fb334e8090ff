// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the server.
type Config struct {
	ListenAddr     string `mapstructure:"listen_addr" yaml:"listen_addr"`
	APIBaseURL     string `mapstructure:"api_base_url" yaml:"api_base_url"`
	DataDir        string `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`
	LogJSON        bool   `mapstructure:"log_json" yaml:"log_json"`
	AllowedOrigins string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	KeycloakBaseURL  string `mapstructure:"keycloak_base_url" yaml:"keycloak_base_url"`
	KeycloakRealm    string `mapstructure:"keycloak_realm" yaml:"keycloak_realm"`
	KeycloakClientID string `mapstructure:"keycloak_client_id" yaml:"keycloak_client_id"`

	ChannelAppKey string `mapstructure:"channel_app_key" yaml:"channel_app_key"`
	ChannelSecret string `mapstructure:"channel_secret" yaml:"channel_secret"`
}

// Load loads configuration with precedence:
// ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("wealthyfy")

	// Secrets have no defaults; they must come from env or config.
	v.SetDefault("listen_addr", ":4000")
	v.SetDefault("api_base_url", "http://localhost:8000")
	v.SetDefault("data_dir", ".wealthyfy")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("allowed_origins", "")
	v.SetDefault("keycloak_realm", "wealthyfy")
	v.SetDefault("keycloak_client_id", "wealthyfy-web")

	v.SetEnvPrefix("WEALTHYFY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool parsing
	bindings := []string{
		"listen_addr", "api_base_url", "data_dir", "log_level", "log_json",
		"allowed_origins", "keycloak_base_url", "keycloak_realm",
		"keycloak_client_id", "channel_app_key", "channel_secret",
	}
	for _, key := range bindings {
		env := "WEALTHYFY_" + strings.ToUpper(key)
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Origins splits the comma-separated allowed_origins value.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GlobalPath returns the XDG global config path.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wealthyfy", "wealthyfy.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "wealthyfy", "wealthyfy.yml")
}

// ProjectPath returns the project-local config path.
func ProjectPath() string {
	return "wealthyfy.yml"
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(ProjectPath(), data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
