package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".wagateway"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("WAGATEWAY_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("WAGATEWAY_HOME")); h != "" {
		return expandHome(h)
	}
	return os.UserHomeDir()
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// Load loads the configuration from file and environment variables.
// Priority: WAGATEWAY_* env > plain env (API_TOKEN, PORT, ...) > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Env files never override variables already set in the process.
	LoadEnvFileCandidates()

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if err := loadFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	dataDir, err := expandHome(cfg.WhatsApp.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.WhatsApp.DataDir = dataDir
	if cfg.WhatsApp.QRFile != "" {
		if cfg.WhatsApp.QRFile, err = expandHome(cfg.WhatsApp.QRFile); err != nil {
			return nil, err
		}
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = []byte(substituteEnv(string(data)))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err = toml.Decode(string(data), cfg)
		return err
	}
	return json.Unmarshal(data, cfg)
}

// applyEnv overlays environment variables. envconfig looks up
// WAGATEWAY_<TAG> first and falls back to the bare tag, so plain API_TOKEN
// and PORT keep working.
func applyEnv(cfg *Config) error {
	for _, spec := range []any{&cfg.Gateway, &cfg.WhatsApp, &cfg.Reconnect, &cfg.Kafka, &cfg.Timeline, &cfg.Log} {
		if err := envconfig.Process("WAGATEWAY", spec); err != nil {
			return fmt.Errorf("env: %w", err)
		}
	}
	cfg.Gateway.AuthToken = strings.TrimSpace(cfg.Gateway.AuthToken)
	return nil
}

// Save writes the configuration to the config file as JSON.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with owner-only permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnv expands ${VAR} references; unknown variables are left as is.
func substituteEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		if value, ok := os.LookupEnv(parts[1]); ok {
			return value
		}
		return match
	})
}
