// Package peerdir implements the in-memory peer directory (§4.D):
// peer-id -> PeerRecord, an auxiliary nickname -> peer-id index, and the
// lifecycle events their transitions emit. All mutation is expected to
// happen from the unified node's single event loop; the directory
// itself only guards against accidental concurrent access with a mutex,
// it does not attempt to serialize callers.
package peerdir

import (
	"sync"
	"time"
)

// EventKind enumerates the peer-lifecycle events the directory emits.
type EventKind int

const (
	PeerDiscovered EventKind = iota
	NicknameUpdated
	Connected
	Disconnected
	PeerExpired
)

func (k EventKind) String() string {
	switch k {
	case PeerDiscovered:
		return "PeerDiscovered"
	case NicknameUpdated:
		return "NicknameUpdated"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case PeerExpired:
		return "PeerExpired"
	default:
		return "Unknown"
	}
}

// Event is emitted on every directory transition.
type Event struct {
	Kind     EventKind
	PeerID   string
	Nickname string
}

// Record mirrors the §3 PeerRecord.
type Record struct {
	PeerID    string
	Nickname  string
	Addrs     []string
	FirstSeen time.Time
	LastSeen  time.Time
	TTL       time.Duration
}

// ExpiresAt returns the record's computed expiry instant.
func (r *Record) ExpiresAt() time.Time {
	return r.LastSeen.Add(r.TTL)
}

// Directory is the peer-id -> Record map plus the nickname index.
type Directory struct {
	mu        sync.RWMutex
	peers     map[string]*Record
	nicknames map[string]string // nickname -> peer-id
}

func New() *Directory {
	return &Directory{
		peers:     make(map[string]*Record),
		nicknames: make(map[string]string),
	}
}

// Discover inserts a PeerRecord if absent (by peer-id), updating its
// known addresses and last-seen time either way, and returns the
// PeerDiscovered event only when the record was newly created.
func (d *Directory) Discover(peerID string, addrs []string, ttl time.Duration, now time.Time) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, exists := d.peers[peerID]
	if !exists {
		rec = &Record{
			PeerID:    peerID,
			Addrs:     addrs,
			FirstSeen: now,
			LastSeen:  now,
			TTL:       ttl,
		}
		d.peers[peerID] = rec
		return &Event{Kind: PeerDiscovered, PeerID: peerID}
	}

	rec.Addrs = addrs
	rec.LastSeen = now
	rec.TTL = ttl
	return nil
}

// UpdateNickname updates a record's nickname, re-keying the nickname
// index: any previous binding for this nickname or for this peer-id is
// removed first, so the index stays a function. Returns NicknameUpdated
// unless the record does not exist.
func (d *Directory) UpdateNickname(peerID, nickname string) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.peers[peerID]
	if !ok {
		return nil
	}

	if rec.Nickname != "" {
		delete(d.nicknames, rec.Nickname)
	}
	if displaced, ok := d.nicknames[nickname]; ok && displaced != peerID {
		if other := d.peers[displaced]; other != nil {
			other.Nickname = ""
		}
	}

	rec.Nickname = nickname
	d.nicknames[nickname] = peerID

	return &Event{Kind: NicknameUpdated, PeerID: peerID, Nickname: nickname}
}

// Connected emits a Connected event for an established transport
// connection, inserting the record if this is the first the directory
// has heard of the peer.
func (d *Directory) Connected(peerID string, now time.Time, defaultTTL time.Duration) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[peerID]; !ok {
		d.peers[peerID] = &Record{PeerID: peerID, FirstSeen: now, LastSeen: now, TTL: defaultTTL}
	}
	return &Event{Kind: Connected, PeerID: peerID}
}

// Remove deletes the record and its nickname binding, used for both
// explicit disconnects and TTL-driven expiry. kind selects which event
// is returned (Disconnected or PeerExpired, per §4.D).
func (d *Directory) Remove(peerID string, kind EventKind) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.peers[peerID]
	if !ok {
		return nil
	}
	if rec.Nickname != "" {
		delete(d.nicknames, rec.Nickname)
	}
	delete(d.peers, peerID)
	return &Event{Kind: kind, PeerID: peerID, Nickname: rec.Nickname}
}

// ExpireStale walks the directory and returns Remove-equivalent events
// for every record whose TTL has elapsed as of now.
func (d *Directory) ExpireStale(now time.Time) []*Event {
	d.mu.Lock()
	expired := make([]string, 0)
	for id, rec := range d.peers {
		if now.After(rec.ExpiresAt()) {
			expired = append(expired, id)
		}
	}
	d.mu.Unlock()

	events := make([]*Event, 0, len(expired))
	for _, id := range expired {
		if ev := d.Remove(id, PeerExpired); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

// ListPeers returns a snapshot of all known records.
func (d *Directory) ListPeers() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Record, 0, len(d.peers))
	for _, r := range d.peers {
		out = append(out, *r)
	}
	return out
}

// GetByNickname resolves a nickname to a peer record.
func (d *Directory) GetByNickname(nickname string) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	peerID, ok := d.nicknames[nickname]
	if !ok {
		return Record{}, false
	}
	rec, ok := d.peers[peerID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// GetNickname resolves a peer-id to its current nickname, if any.
func (d *Directory) GetNickname(peerID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.peers[peerID]
	if !ok || rec.Nickname == "" {
		return "", false
	}
	return rec.Nickname, true
}

// Get returns the record for peerID, if known.
func (d *Directory) Get(peerID string) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.peers[peerID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Count reports the number of tracked peers, for tests and metrics.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}
