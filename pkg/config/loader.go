package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadEnvFile loads variables from a .env file without overriding ones that
// are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration: defaults, then the file at configPath (if
// any), then environment overrides. The result is validated.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the file onto cfg. Unset fields keep their defaults.
func loadFile(configPath string, cfg *Config) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dataStr := substituteEnv(string(data))

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(dataStr), cfg); err != nil {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal([]byte(dataStr), cfg); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return nil
}

// substituteEnv replaces ${VAR} placeholders with environment values.
// Placeholders for unset variables are left as-is.
func substituteEnv(data string) string {
	return envVarRegex.ReplaceAllStringFunc(data, func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvModelID); v != "" {
		cfg.Primary.ModelID = v
	}
	if v := os.Getenv(EnvFallbackModelID); v != "" {
		cfg.Fallback.ModelID = v
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxRetries, v, err)
		}
		cfg.Retry.MaxRetries = n
	}
	for env, dst := range map[string]*Duration{EnvMinWait: &cfg.Retry.MinWait, EnvMaxWait: &cfg.Retry.MaxWait} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		*dst = Duration(secs * float64(time.Second))
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvLedgerPath); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDebug, v, err)
		}
		cfg.Debug.Enabled = enabled
	}
	if v := os.Getenv(EnvDebugDomains); v != "" {
		var domains []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				domains = append(domains, d)
			}
		}
		cfg.Debug.Domains = domains
	}
	return nil
}
