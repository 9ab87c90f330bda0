package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/gigi-net/gigi-core/internal/config"
	"github.com/gigi-net/gigi-core/internal/credential"
	"github.com/gigi-net/gigi-core/internal/kv"
)

func runWhoami(args []string) {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, _ := loadConfigOrFatal(*configFlag)

	store, err := kv.Open(cfg.Identity.CredentialFile)
	if err != nil {
		fatal("Failed to open credential store: %v", err)
	}
	defer store.Close()

	account := credential.New(store)
	info, err := account.GetAccountInfo()
	if err != nil {
		fatal("Failed to read account: %v", err)
	}

	fmt.Printf("Nickname:       %s\n", info.Name)
	fmt.Printf("Peer ID:        %s\n", info.PeerID)
	fmt.Printf("Group ID:       %s\n", info.GroupID)
	fmt.Printf("Wallet address: %s\n", info.Address)
}

// loadConfigOrFatal finds, loads, validates, and path-resolves the
// node config, or exits the process with a diagnostic. Shared by every
// subcommand that needs a runnable config.
func loadConfigOrFatal(configFlag string) (*config.NodeConfig, string) {
	cfgFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		fatal("Config error: %v", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		fatal("Config error: %v", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))
	if err := config.ValidateNodeConfig(cfg); err != nil {
		fatal("Config invalid: %v", err)
	}
	return cfg, cfgFile
}
