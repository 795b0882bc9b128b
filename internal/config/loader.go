package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".corpuscrawl"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .corpuscrawl configuration file.
type File struct {
	// Sources maps source names to their configurations.
	Sources map[string]SourceConfig `yaml:"sources,omitempty"`

	// Defaults is applied to every source unless the source overrides it.
	Defaults SourceConfig `yaml:"defaults,omitempty"`
}

// GetSourceConfig returns the configuration for the named source, built by
// layering the built-in defaults, the file defaults and the source entry.
// An unknown name yields the defaults.
func (cf *File) GetSourceConfig(name string) SourceConfig {
	result := mergeSource(DefaultSourceConfig(), cf.Defaults)
	if sc, ok := cf.Sources[name]; ok {
		result = mergeSource(result, sc)
	}
	if result.Name == "" {
		result.Name = name
	}
	return result
}

// SourceNames returns the configured source names.
func (cf *File) SourceNames() []string {
	names := make([]string, 0, len(cf.Sources))
	for name := range cf.Sources {
		names = append(names, name)
	}
	return names
}

// LoadConfigFile loads source configurations from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	if cf.Sources == nil {
		cf.Sources = make(map[string]SourceConfig)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .corpuscrawl in the current directory
// 3. Look for .corpuscrawl in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}

// LoadPatternList reads a JSON array of strings, such as a safe or blocked
// translator list. A missing file returns a *ConfigError of kind
// ConfigMissingListFile; callers are expected to fall back to an empty list.
func LoadPatternList(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{Kind: ConfigMissingListFile, Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to read list %s: %w", path, err)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &ConfigError{Kind: ConfigMalformedList, Path: path, Err: err}
	}
	return list, nil
}
