package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RAGD_"
)

// DefaultPath returns ~/.config/ragd/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ragd", "config.yaml"), nil
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
//
// An empty configPath uses DefaultPath; a missing default file is not an
// error, a missing explicit file is. Config files must be 0600 or 0400 and
// at most 1MB.
//
// Environment variables carry the RAGD_ prefix and split on the first
// underscore after it:
//
//	RAGD_QDRANT_HOST          -> qdrant.host
//	RAGD_SEGMENT_CHUNK_SIZE   -> segment.chunk_size
//	RAGD_GENERATION_API_KEY   -> generation.api_key
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	content, err := readConfigFile(configPath)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %v", ragerr.ErrConfiguration, configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// no file: defaults and environment only
	default:
		return nil, fmt.Errorf("%w: %v", ragerr.ErrConfiguration, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", ragerr.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps RAGD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

// readConfigFile opens the file once and validates permissions and size on
// the open descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
