package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// net.Interface.Addrs() isn't overridable, so reconcile is exercised
// indirectly here by checking which (name, family) keys it decides to
// start tasks for, via a recording openSocket.
func TestReconcile_SkipsLoopbackAndDownInterfaces(t *testing.T) {
	m := NewManager("self", func() string { return "n" }, func() []string { return nil }, DefaultConfig(), nil)

	started := map[string]bool{}
	m.openSocket = func(iface *net.Interface, ip net.IP, family string) (packetSocket, error) {
		started[iface.Name+"/"+family] = true
		return &fakeSocket{}, nil
	}

	up := net.Interface{Name: "eth0", Flags: net.FlagUp | net.FlagMulticast}
	down := net.Interface{Name: "eth1", Flags: net.FlagMulticast}
	loop := net.Interface{Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast}

	m.listInterfaces = func() ([]net.Interface, error) {
		return []net.Interface{up, down, loop}, nil
	}

	// net.Interface.Addrs() hits the OS; reconcile calls it per-interface
	// so we can't substitute fake addresses without a real interface.
	// Exercise the flag-filtering path only: down and loopback must
	// never reach startTask regardless of what Addrs() returns.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.reconcile(ctx)

	require.False(t, started["eth1/ipv4"], "down interface must be skipped")
	require.False(t, started["lo/ipv4"], "loopback interface must be skipped")
}

func TestManager_StartTaskTracksCancelFunc(t *testing.T) {
	m := NewManager("self", func() string { return "n" }, func() []string { return nil }, DefaultConfig(), nil)
	m.openSocket = func(iface *net.Interface, ip net.IP, family string) (packetSocket, error) {
		return &fakeSocket{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	iface := net.Interface{Name: "eth0"}
	m.startTask(ctx, iface, net.ParseIP("10.0.0.5"), "ipv4", "eth0/ipv4")

	m.mu.Lock()
	_, ok := m.cancel["eth0/ipv4"]
	m.mu.Unlock()
	require.True(t, ok, "startTask should register a cancel func for the task")
}

func TestManager_StopAllCancelsEveryTask(t *testing.T) {
	m := NewManager("self", func() string { return "n" }, func() []string { return nil }, DefaultConfig(), nil)
	m.openSocket = func(iface *net.Interface, ip net.IP, family string) (packetSocket, error) {
		return &fakeSocket{}, nil
	}

	ctx := context.Background()
	m.startTask(ctx, net.Interface{Name: "eth0"}, net.ParseIP("10.0.0.5"), "ipv4", "eth0/ipv4")
	m.startTask(ctx, net.Interface{Name: "eth1"}, net.ParseIP("10.0.0.6"), "ipv4", "eth1/ipv4")

	m.stopAll()

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Empty(t, m.cancel)
}

func TestManager_ExpireStaleCalledOnCleanupTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	cfg.AnnounceInterval = time.Hour
	cfg.QueryInterval = time.Hour

	calls := make(chan time.Time, 4)
	m := NewManager("self", func() string { return "n" }, func() []string { return nil }, cfg, func(now time.Time) int {
		calls <- now
		return 0
	})
	m.listInterfaces = func() ([]net.Interface, error) { return nil, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("expected at least one expireStale call")
	}

	cancel()
	<-done
}
