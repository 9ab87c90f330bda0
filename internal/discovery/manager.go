package discovery

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ExpireStaleFunc sweeps the peer directory for records past their TTL
// and returns how many were removed. Injected so discovery need not
// import peerdir; the node adapts peerdir.Directory.ExpireStale, which
// returns the removal events rather than a count, to this shape.
type ExpireStaleFunc func(now time.Time) int

// Manager enumerates non-loopback, multicast-capable interfaces and
// runs one Task per (interface, address-family) pair, starting and
// stopping tasks as interfaces come up or down (§4.C). Cleanup runs on
// a single shared ticker here rather than once per interface task,
// since the peer directory it sweeps is shared across all of them —
// a per-task cleanup loop would emit duplicate PeerExpired events.
type Manager struct {
	localPeerID  string
	nickname     func() string
	addresses    AddressSource
	cfg          Config
	pollInterval time.Duration
	expireStale  ExpireStaleFunc

	Announcements chan Announcement

	mu     sync.Mutex
	cancel map[string]context.CancelFunc

	listInterfaces func() ([]net.Interface, error)
	openSocket     func(iface *net.Interface, ip net.IP, family string) (packetSocket, error)
}

// NewManager builds a Manager. addresses and nickname are consulted
// live on every announce tick so they reflect the node's current state.
func NewManager(localPeerID string, nickname func() string, addresses AddressSource, cfg Config, expireStale ExpireStaleFunc) *Manager {
	cfg.Clamp()
	return &Manager{
		localPeerID:   localPeerID,
		nickname:      nickname,
		addresses:     addresses,
		cfg:           cfg,
		pollInterval:  10 * time.Second,
		expireStale:   expireStale,
		Announcements: make(chan Announcement, 256),
		cancel:        make(map[string]context.CancelFunc),
		listInterfaces: net.Interfaces,
		openSocket: func(iface *net.Interface, ip net.IP, family string) (packetSocket, error) {
			return openMulticastSocket(iface, ip, family)
		},
	}
}

// Run blocks until ctx is cancelled, reconciling interface tasks on
// startup and on every poll tick, and sweeping the peer directory on
// every cleanup tick.
func (m *Manager) Run(ctx context.Context) {
	m.reconcile(ctx)

	pollTicker := time.NewTicker(m.pollInterval)
	defer pollTicker.Stop()
	cleanupTicker := time.NewTicker(m.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return
		case <-pollTicker.C:
			m.reconcile(ctx)
		case <-cleanupTicker.C:
			if m.expireStale != nil {
				m.expireStale(time.Now())
			}
		}
	}
}

func (m *Manager) reconcile(ctx context.Context) {
	ifaces, err := m.listInterfaces()
	if err != nil {
		slog.Warn("discovery: enumerate interfaces failed", "error", err)
		return
	}

	seen := make(map[string]bool)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}

			family := "ipv4"
			ip := ipNet.IP.To4()
			if ip == nil {
				family = "ipv6"
				ip = ipNet.IP
				if ip.IsLinkLocalUnicast() {
					continue // would need a zone id threaded through the socket layer
				}
			}

			key := iface.Name + "/" + family
			seen[key] = true

			m.mu.Lock()
			_, running := m.cancel[key]
			m.mu.Unlock()
			if running {
				continue
			}
			m.startTask(ctx, iface, ip, family, key)
		}
	}

	m.mu.Lock()
	for key, cancel := range m.cancel {
		if !seen[key] {
			cancel()
			delete(m.cancel, key)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) startTask(ctx context.Context, iface net.Interface, ip net.IP, family, key string) {
	sock, err := m.openSocket(&iface, ip, family)
	if err != nil {
		slog.Warn("discovery: open socket failed", "iface", iface.Name, "family", family, "error", err)
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := newTask(iface.Name, family, m.localPeerID, m.nickname, m.addresses, m.cfg, sock, m.Announcements)

	m.mu.Lock()
	m.cancel[key] = cancel
	m.mu.Unlock()

	go task.Run(taskCtx)
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cancel := range m.cancel {
		cancel()
		delete(m.cancel, key)
	}
}
