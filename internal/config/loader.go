package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gigi-net/gigi-core/internal/discovery"
	"github.com/gigi-net/gigi-core/internal/validate"
)

// checkConfigFilePermissions returns an error if a config file has overly
// permissive permissions (any group/world bits set), which makes
// LoadNodeConfig refuse to load it. Config files carry the node's
// credential file path and network topology.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadNodeConfig loads node configuration from a YAML file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade gigid", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}
	if cfg.Telemetry.Metrics.Enabled && cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = "127.0.0.1:9091"
	}

	return &cfg, nil
}

// ValidateNodeConfig validates node configuration and resolves the
// discovery timer overrides against discovery.DefaultConfig.
func ValidateNodeConfig(cfg *NodeConfig) error {
	if cfg.Identity.CredentialFile == "" {
		return fmt.Errorf("identity.credential_file is required")
	}
	if len(cfg.Network.ListenAddresses) == 0 {
		return fmt.Errorf("network.listen_addresses must contain at least one address")
	}
	for _, addr := range cfg.Network.ListenAddresses {
		if err := validate.Multiaddr(addr); err != nil {
			return fmt.Errorf("network.listen_addresses: %w", err)
		}
	}
	if cfg.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}
	if cfg.Storage.ShareIndexFile == "" {
		return fmt.Errorf("storage.share_index_file is required")
	}
	if cfg.Storage.MessageLogFile == "" {
		return fmt.Errorf("storage.message_log_file is required")
	}
	if _, err := DiscoveryTimers(cfg.Discovery); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	return nil
}

// DiscoveryTimers resolves a DiscoveryConfig's string durations against
// discovery.DefaultConfig, applying the package's own [min, max] clamp
// to any value the operator overrode.
func DiscoveryTimers(cfg DiscoveryConfig) (discovery.Config, error) {
	out := discovery.DefaultConfig()

	parse := func(s string, dst *time.Duration, field string) error {
		if s == "" {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = d
		return nil
	}

	if err := parse(cfg.AnnounceInterval, &out.AnnounceInterval, "announce_interval"); err != nil {
		return out, err
	}
	if err := parse(cfg.QueryInterval, &out.QueryInterval, "query_interval"); err != nil {
		return out, err
	}
	if err := parse(cfg.CleanupInterval, &out.CleanupInterval, "cleanup_interval"); err != nil {
		return out, err
	}
	out.Clamp()
	return out, nil
}

// FindConfigFile searches for a gigi config file in standard locations.
// Search order: explicitPath (if given), ./gigi.yaml, ~/.config/gigi/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{"gigi.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "gigi", "config.yaml"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nRun 'gigid init' to create one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// ResolveConfigPaths resolves relative file paths in the config to be
// relative to the config file's directory. This allows configs in
// ~/.config/gigi/ to reference the credential file and storage paths
// relatively.
func ResolveConfigPaths(cfg *NodeConfig, configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&cfg.Identity.CredentialFile)
	resolve(&cfg.Storage.OutputDir)
	resolve(&cfg.Storage.ShareIndexFile)
	resolve(&cfg.Storage.MessageLogFile)
}

// DefaultConfigDir returns the default gigi config directory (~/.config/gigi).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "gigi"), nil
}
