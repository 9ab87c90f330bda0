package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/gigi-net/gigi-core/internal/credential"
	"github.com/gigi-net/gigi-core/internal/kv"
	"github.com/gigi-net/gigi-core/internal/messagelog"
	"github.com/gigi-net/gigi-core/internal/node"
)

// retrySweepInterval is how often the daemon wakes to retry offline
// queue entries whose backoff has elapsed and to purge expired rows.
const retrySweepInterval = time.Minute

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, cfgFile := loadConfigOrFatal(*configFlag)
	fmt.Printf("gigid %s (%s), config %s\n", version, commit, cfgFile)

	store, err := kv.Open(cfg.Identity.CredentialFile)
	if err != nil {
		fatal("Failed to open credential store: %v", err)
	}
	defer store.Close()

	account := credential.New(store)
	password, err := readPassword()
	if err != nil {
		fatal("%v", err)
	}
	login, err := account.Login(password)
	if err != nil {
		fatal("Login failed: %v", err)
	}

	n, err := node.New(login.TransportPrivateKeyHex, login.Name, cfg.Storage.OutputDir, cfg.Storage.ShareIndexFile)
	if err != nil {
		fatal("Failed to start node: %v", err)
	}

	for _, addr := range cfg.Network.ListenAddresses {
		if err := n.StartListening(addr); err != nil {
			n.Shutdown()
			fatal("Failed to listen on %s: %v", addr, err)
		}
	}

	log, err := messagelog.Open(cfg.Storage.MessageLogFile)
	if err != nil {
		n.Shutdown()
		fatal("Failed to open message log: %v", err)
	}
	defer log.Close()

	slog.Info("node started", "peer_id", n.PeerID(), "group_id", login.GroupID, "nickname", login.Name)
	for _, addr := range n.Host().Addrs() {
		slog.Info("listening", "address", fmt.Sprintf("%s/p2p/%s", addr, n.PeerID()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	if cfg.Telemetry.Metrics.Enabled {
		go serveMetrics(ctx, n, cfg.Telemetry.Metrics.ListenAddress)
	}

	go runRetrySweep(ctx, n, log)

	runEventLoop(ctx, n, log)

	n.Shutdown()
	slog.Info("node stopped")
}

func serveMetrics(ctx context.Context, n *node.Node, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", n.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "error", err)
	}
}

// runEventLoop is the cooperative dispatch driving Node.HandleNextSwarmEvent:
// one caller, one event at a time, logging and persisting as each kind
// requires.
func runEventLoop(ctx context.Context, n *node.Node, log *messagelog.Log) {
	for {
		ev, err := n.HandleNextSwarmEvent(ctx)
		if err != nil {
			return
		}
		handleEvent(n, log, ev)
	}
}

func handleEvent(n *node.Node, log *messagelog.Log, ev node.Event) {
	switch ev.Kind {
	case node.EventConnected:
		slog.Info("peer connected", "peer_id", ev.PeerID)
	case node.EventDisconnected:
		slog.Info("peer disconnected", "peer_id", ev.PeerID)
	case node.EventPeerDiscovered:
		slog.Info("peer discovered", "peer_id", ev.PeerID, "addr", ev.Addr)
	case node.EventNicknameUpdated:
		slog.Info("peer nickname", "peer_id", ev.PeerID, "nickname", ev.Nickname)
	case node.EventDirectMessage, node.EventDirectFileShareMessage:
		persistInbound(log, n.Nickname(), ev)
	case node.EventGroupMessage, node.EventGroupFileShareMessage:
		persistInboundGroup(log, ev)
	case node.EventFileDownloadCompleted:
		slog.Info("download complete", "download_id", ev.Download.DownloadID, "path", ev.Download.Path)
	case node.EventFileDownloadFailed:
		slog.Warn("download failed", "download_id", ev.Download.DownloadID)
	case node.EventError:
		slog.Error("node error", "error", ev.Err)
	}
}

func persistInbound(log *messagelog.Log, selfNickname string, ev node.Event) {
	m := messagelog.Message{
		ID:                uuid.NewString(),
		SenderNickname:    ev.Nickname,
		RecipientNickname: selfNickname,
		Content:           ev.Message,
		IsImage:           ev.Kind == node.EventDirectFileShareMessage,
		Filename:          ev.Filename,
		Timestamp:         time.Now(),
		SyncStatus:        "delivered",
		ExpiresAt:         time.Now().Add(30 * 24 * time.Hour),
	}
	if ev.Kind == node.EventDirectFileShareMessage {
		m.Content = ev.ShareCode
	}
	if err := log.StoreMessage(m); err != nil {
		slog.Error("persist direct message failed", "error", err)
	}
}

func persistInboundGroup(log *messagelog.Log, ev node.Event) {
	m := messagelog.Message{
		ID:              uuid.NewString(),
		SenderNickname:  ev.Nickname,
		GroupName:       ev.GroupName,
		Content:         ev.Message,
		IsImage:         ev.Kind == node.EventGroupFileShareMessage,
		Filename:        ev.Filename,
		Timestamp:       time.Now(),
		SyncStatus:      "delivered",
		ExpiresAt:       time.Now().Add(30 * 24 * time.Hour),
	}
	if err := log.StoreMessage(m); err != nil {
		slog.Error("persist group message failed", "error", err)
	}
}

// runRetrySweep periodically retries offline-queued direct messages
// whose backoff has elapsed and purges anything past its expiry.
func runRetrySweep(ctx context.Context, n *node.Node, log *messagelog.Log) {
	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepRetries(n, log)
			if removed, err := log.CleanupExpired(time.Now()); err != nil {
				slog.Error("cleanup expired messages failed", "error", err)
			} else if removed > 0 {
				slog.Info("cleaned up expired messages", "count", removed)
			}
		}
	}
}

func sweepRetries(n *node.Node, log *messagelog.Log) {
	entries, err := log.GetRetryMessages(time.Now())
	if err != nil {
		slog.Error("get retry messages failed", "error", err)
		return
	}
	for _, entry := range entries {
		msg, err := log.GetMessage(entry.MessageID)
		if err != nil {
			slog.Error("retry: load message failed", "message_id", entry.MessageID, "error", err)
			continue
		}
		sendErr := n.SendDirectMessage(entry.TargetNickname, msg.Content)
		if err := log.UpdateRetry(entry.ID, sendErr == nil, time.Now()); err != nil {
			slog.Error("update retry state failed", "error", err)
		}
		if sendErr == nil {
			if err := log.MarkDelivered(entry.MessageID); err != nil {
				slog.Error("mark delivered failed", "error", err)
			}
		}
	}
}

func readPassword() (string, error) {
	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
