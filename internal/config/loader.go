package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1 << 20

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "EMBEDPOOL_"
)

// Load loads configuration from a YAML or TOML file, then overrides it with
// environment variables.
//
// Environment variables win over the file (default
// ~/.config/embedpool/config.yaml), which wins over built-in defaults.
//
// A missing file is not an error. The format follows the extension: .toml
// files are parsed as TOML, everything else as YAML.
//
// The file must live under ~/.config/embedpool/ or /etc/embedpool/, be
// readable by its owner only and be at most 1MiB.
//
// Environment keys drop the prefix and split on the first underscore:
//
//	EMBEDPOOL_POOL_MAX_SIZE  -> pool.max_size
//	EMBEDPOOL_MODEL_API_KEY  -> model.api_key
//	EMBEDPOOL_SERVER_HTTP_PORT -> server.http_port
//
// EMBEDPOOL_MODEL_EXECUTION_PROVIDERS takes a comma separated list.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation: %w", err)
	}

	k := koanf.New(".")
	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), parserFor(configPath)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading %s* environment: %w", EnvPrefix, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// envKey maps EMBEDPOOL_SECTION_FIELD_NAME to section.field_name.
func envKey(key, value string) (string, any) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower, value
	}
	path := section + "." + field
	if path == "model.execution_providers" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return path, parts
	}
	return path, value
}

// readConfigFile returns nil, nil for a missing file. Mode and size are
// checked on the open descriptor so the file cannot be swapped in between.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if err := checkFileMode(info); err != nil {
		return nil, err
	}
	// One byte past the limit catches files that grew after Stat.
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("file too large: over %d bytes", maxConfigFileSize)
	}
	return content, nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML()
	}
	return yaml.Parser()
}

// Dir returns the per-user config directory, ~/.config/embedpool.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".config", "embedpool"), nil
}

// EnsureConfigDir creates Dir with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// systemConfigDir is the other directory a config file may live in.
const systemConfigDir = "/etc/embedpool"

// validateConfigPath requires path, after resolving symlinks, to sit under
// Dir or systemConfigDir. The file itself need not exist.
func validateConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	userDir, err := Dir()
	if err != nil {
		return err
	}
	for _, dir := range []string{userDir, systemConfigDir} {
		if rel, err := filepath.Rel(dir, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%s is outside %s and %s", abs, userDir, systemConfigDir)
}

// checkFileMode rejects config files that group or others can read, since
// they may carry an API key, and files over maxConfigFileSize.
func checkFileMode(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return fmt.Errorf("insecure permissions %v: group and other must have no access", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("file too large: %d bytes, max %d", info.Size(), maxConfigFileSize)
	}
	return nil
}
