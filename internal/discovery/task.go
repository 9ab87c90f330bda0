// Package discovery implements the per-interface discovery task
// (§4.C): adaptive probing, announce/query/cleanup timers, and the two
// independent rate limiters layered on top of internal/wire/dnswire's
// packet codec.
package discovery

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/gigi-net/gigi-core/internal/wire/dnswire"
)

// DefaultPeerTTL is the TTL advertised in this node's own announcements
// and used by the peer directory to expire records derived from them.
const DefaultPeerTTL = 60 * time.Second

// AddressSource supplies the node's currently reachable transport
// addresses (§4.C "Address updates"), consulted on every announce tick.
type AddressSource func() []string

// Announcement is a decoded, non-self discovery announcement, tagged
// with the interface it arrived on.
type Announcement struct {
	dnswire.Announcement
	Interface string
	TTL       time.Duration
}

// Task drives discovery on a single (interface, address-family) pair.
type Task struct {
	ifaceName   string
	family      string
	localPeerID string
	nickname    func() string
	addresses   AddressSource
	cfg         Config
	sock        packetSocket

	tracker     *dnswire.QueryTracker
	errLimiter  *dnswire.ErrorRateLimiter
	respLimiter *queryResponseLimiter

	out chan<- Announcement

	mu        sync.Mutex
	peerFound bool
}

func newTask(ifaceName, family, localPeerID string, nickname func() string, addresses AddressSource, cfg Config, sock packetSocket, out chan<- Announcement) *Task {
	return &Task{
		ifaceName:   ifaceName,
		family:      family,
		localPeerID: localPeerID,
		nickname:    nickname,
		addresses:   addresses,
		cfg:         cfg,
		sock:        sock,
		tracker:     dnswire.NewQueryTracker(),
		errLimiter:  dnswire.NewErrorRateLimiter(),
		respLimiter: newQueryResponseLimiter(),
		out:         out,
	}
}

// Run blocks until ctx is cancelled, driving the announce/query loop
// and an inbound-packet reader. On cancellation both sockets are
// closed and pending state dropped (§4.C "Interface teardown").
func (t *Task) Run(ctx context.Context) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		t.readLoop(ctx)
	}()

	t.sendQuery()
	t.sendAnnounce()

	announceTicker := time.NewTicker(t.cfg.AnnounceInterval)
	defer announceTicker.Stop()

	queryInterval := NextQueryInterval(0, t.cfg.QueryInterval)
	queryTimer := time.NewTimer(jitter(queryInterval))
	defer queryTimer.Stop()

	gcTicker := time.NewTicker(5 * time.Second)
	defer gcTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.sock.close() // unblocks readLoop's pending readFrom
			<-readDone
			return
		case <-announceTicker.C:
			t.sendAnnounce()
		case <-queryTimer.C:
			if !t.hasFoundPeer() {
				t.sendQuery()
			}
			queryInterval = NextQueryInterval(queryInterval, t.cfg.QueryInterval)
			queryTimer.Reset(jitter(queryInterval))
		case <-gcTicker.C:
			t.tracker.GC(time.Now())
		}
	}
}

func (t *Task) sendQuery() {
	id := t.tracker.NextID(time.Now())
	pkt, err := dnswire.BuildQuery(id)
	if err != nil {
		slog.Warn("discovery: build query failed", "iface", t.ifaceName, "error", err)
		return
	}
	if _, err := t.sock.writeTo(pkt); err != nil {
		slog.Warn("discovery: send query failed", "iface", t.ifaceName, "error", err)
	}
}

func (t *Task) sendAnnounce() {
	addrs := t.addresses()
	if len(addrs) == 0 {
		return
	}
	id := t.tracker.NextID(time.Now())
	for _, addr := range addrs {
		ann := dnswire.Announcement{PeerID: t.localPeerID, Nickname: t.nickname(), Addr: addr}
		pkt, err := dnswire.BuildResponse(id, uint32(DefaultPeerTTL.Seconds()), ann)
		if err != nil {
			slog.Warn("discovery: build response failed", "iface", t.ifaceName, "error", err)
			continue
		}
		if _, err := t.sock.writeTo(pkt); err != nil {
			slog.Warn("discovery: send response failed", "iface", t.ifaceName, "error", err)
		}
	}
}

func (t *Task) readLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	const maxBuf = 64 * 1024
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := t.sock.readFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if n == len(buf) && len(buf) < maxBuf {
			buf = make([]byte, len(buf)*2)
			continue // truncated; retry with a larger buffer on the next read
		}
		t.handlePacket(buf[:n])
	}
}

func (t *Task) handlePacket(data []byte) {
	now := time.Now()
	if t.errLimiter.ShouldDrop(now) {
		return
	}

	pkt, err := dnswire.Parse(data)
	if err != nil {
		t.errLimiter.RecordError(now)
		return
	}

	if pkt.IsQuery {
		if !t.respLimiter.Allow(now) {
			return
		}
		t.sendAnnounce()
		return
	}

	t.tracker.Resolve(pkt.TxID)
	for _, ann := range pkt.Announcements {
		if ann.PeerID == t.localPeerID {
			continue // self-discovery, discard silently
		}
		t.markPeerFound()
		select {
		case t.out <- Announcement{Announcement: ann, Interface: t.ifaceName, TTL: DefaultPeerTTL}:
		default:
		}
	}
}

func (t *Task) markPeerFound() {
	t.mu.Lock()
	t.peerFound = true
	t.mu.Unlock()
}

func (t *Task) hasFoundPeer() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerFound
}

func jitter(base time.Duration) time.Duration {
	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return base
	}
	return base + time.Duration(n.Int64())*time.Millisecond
}
