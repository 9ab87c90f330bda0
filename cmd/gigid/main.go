package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o gigid ./cmd/gigid
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		osExit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "serve", "daemon":
		runServe(os.Args[2:])
	case "whoami":
		runWhoami(os.Args[2:])
	case "config":
		runConfig(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

func printVersion() {
	fmt.Printf("gigid %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: gigid <command> [options]")
	fmt.Println()
	fmt.Println("  init                              Create an account and write a config file")
	fmt.Println("  init --import                     Restore an account from an existing recovery phrase")
	fmt.Println("  serve [--config path]             Start the node (P2P host + discovery + messaging)")
	fmt.Println("  whoami [--config path]            Show this node's peer ID, group ID, and wallet address")
	fmt.Println("  config validate [--config path]   Validate a config file")
	fmt.Println("  config show [--config path]       Show the resolved config")
	fmt.Println("  version                           Show version information")
	fmt.Println()
	fmt.Println("Without --config, gigid searches: ./gigi.yaml, ~/.config/gigi/config.yaml")
	fmt.Println()
	fmt.Println("Get started:  gigid init")
}
