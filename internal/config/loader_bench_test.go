package config

import (
	"testing"
)

func BenchmarkLoadNodeConfig(b *testing.B) {
	dir := b.TempDir()
	path := writeTestConfig(b, dir, testConfigYAML)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LoadNodeConfig(path)
	}
}

func BenchmarkValidateNodeConfig(b *testing.B) {
	cfg := &NodeConfig{
		Identity: IdentityConfig{CredentialFile: "account.db"},
		Network:  NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0"}},
		Storage: StorageConfig{
			OutputDir:      "downloads",
			ShareIndexFile: "shares.json",
			MessageLogFile: "messages.db",
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateNodeConfig(cfg)
	}
}
