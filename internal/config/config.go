package config

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// NodeConfig is the unified configuration for a gigi daemon instance.
type NodeConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Identity  IdentityConfig  `yaml:"identity"`
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery,omitempty"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// IdentityConfig points at the password-encrypted account envelope.
// The peer ID, group ID, transport key, and nickname are all derived
// from the recovery phrase sealed inside it at login time, not stored
// in the plaintext config.
type IdentityConfig struct {
	CredentialFile string `yaml:"credential_file"`
}

// NetworkConfig holds libp2p transport configuration.
type NetworkConfig struct {
	ListenAddresses []string `yaml:"listen_addresses"`
}

// DiscoveryConfig overrides the LAN discovery timers. Zero values
// fall back to discovery.DefaultConfig.
type DiscoveryConfig struct {
	AnnounceInterval string `yaml:"announce_interval,omitempty"` // default: "15s"
	QueryInterval    string `yaml:"query_interval,omitempty"`    // default: "300s"
	CleanupInterval  string `yaml:"cleanup_interval,omitempty"`  // default: "30s"
}

// StorageConfig holds filesystem paths for the node's local state.
type StorageConfig struct {
	OutputDir      string `yaml:"output_dir"`       // completed downloads land here
	ShareIndexFile string `yaml:"share_index_file"` // local share index
	MessageLogFile string `yaml:"message_log_file"` // SQLite message history + offline queue
}

// TelemetryConfig holds observability settings. Disabled by default.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // default: "127.0.0.1:9091"
}
