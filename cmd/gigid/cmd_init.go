package main

import (
	"bufio"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/gigi-net/gigi-core/internal/config"
	"github.com/gigi-net/gigi-core/internal/credential"
	"github.com/gigi-net/gigi-core/internal/kv"
)

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file to write")
	importFlag := fs.Bool("import", false, "restore an account from an existing recovery phrase instead of generating one")
	nameFlag := fs.String("name", "", "display nickname for this account")
	fs.Parse(args)

	configDir, err := config.DefaultConfigDir()
	if err != nil {
		fatal("Cannot determine config directory: %v", err)
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		fatal("Cannot create config directory: %v", err)
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, "config.yaml")
	}
	if _, err := os.Stat(cfgPath); err == nil {
		fatal("Config file already exists at %s", cfgPath)
	}

	reader := bufio.NewReader(os.Stdin)

	var phrase string
	if *importFlag {
		fmt.Print("Enter your recovery phrase: ")
		line, _ := reader.ReadString('\n')
		phrase = strings.TrimSpace(line)
	} else {
		phrase, err = generateMnemonic()
		if err != nil {
			fatal("Failed to generate recovery phrase: %v", err)
		}
		fmt.Println("Your recovery phrase (write it down, it cannot be recovered if lost):")
		fmt.Println()
		fmt.Println("  " + phrase)
		fmt.Println()
	}

	name := *nameFlag
	if name == "" {
		fmt.Print("Nickname: ")
		line, _ := reader.ReadString('\n')
		name = strings.TrimSpace(line)
	}
	if name == "" {
		fatal("A nickname is required")
	}

	password, err := readPasswordTwice()
	if err != nil {
		fatal("%v", err)
	}

	credPath := filepath.Join(configDir, "account.db")
	store, err := kv.Open(credPath)
	if err != nil {
		fatal("Failed to open credential store: %v", err)
	}
	defer store.Close()

	account := credential.New(store)
	info, err := account.CreateAccount(phrase, password, name)
	if err != nil {
		fatal("Failed to create account: %v", err)
	}

	cfg := config.NodeConfig{
		Version:  config.CurrentConfigVersion,
		Identity: config.IdentityConfig{CredentialFile: "account.db"},
		Network:  config.NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0", "/ip6/::/tcp/0"}},
		Storage: config.StorageConfig{
			OutputDir:      "downloads",
			ShareIndexFile: "shares.json",
			MessageLogFile: "messages.db",
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		fatal("Failed to render config: %v", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		fatal("Failed to write config: %v", err)
	}

	fmt.Println()
	fmt.Printf("Account created: %s\n", info.Name)
	fmt.Printf("  Peer ID:        %s\n", info.PeerID)
	fmt.Printf("  Group ID:       %s\n", info.GroupID)
	fmt.Printf("  Wallet address: %s\n", info.Address)
	fmt.Printf("Config written to %s\n", cfgPath)
	fmt.Println()
	fmt.Println("Start the node with: gigid serve")
}

// generateMnemonic produces a fresh BIP-39 English-wordlist recovery
// phrase from 256 bits of entropy (24 words).
func generateMnemonic() (string, error) {
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func readPasswordTwice() (string, error) {
	fmt.Print("Password: ")
	pw1, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Print("Confirm password: ")
	pw2, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(pw1) != string(pw2) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(pw1) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	return string(pw1), nil
}
