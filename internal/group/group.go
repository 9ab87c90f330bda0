// Package group implements the gossip-based group channel (§4.G): a
// group is a topic on the libp2p pubsub substrate, named by the
// user-facing group name, with content-addressed message deduplication
// via a BLAKE3 message-id function.
package group

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/zeebo/blake3"
)

// ErrGroupNotFound is returned by Publish/Leave for an unjoined topic.
var ErrGroupNotFound = errors.New("group: not joined")

// HeartbeatInterval matches §4.G's gossip heartbeat.
const HeartbeatInterval = 10 * time.Second

// Envelope is the JSON wire shape carried over the gossip topic.
type Envelope struct {
	SenderNickname string `json:"sender_nickname"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	IsImage        bool   `json:"is_image"`
	Filename       string `json:"filename,omitempty"`
	Data           []byte `json:"data,omitempty"`
}

// Message is delivered to the node for every inbound gossip message
// this peer did not itself publish.
type Message struct {
	Topic    string
	From     peer.ID
	Envelope Envelope
}

// Manager owns the joined topics and fans inbound messages into a
// single channel the unified node's event loop drains.
type Manager struct {
	ps   *pubsub.PubSub
	self peer.ID

	mu     sync.Mutex
	topics map[string]*joinedTopic

	Inbound chan Message
}

type joinedTopic struct {
	name     string
	topic    *pubsub.Topic
	sub      *pubsub.Subscription
	joinedAt time.Time
	cancel   context.CancelFunc
}

// New constructs a pubsub-backed Manager over h, using BLAKE3(body) as
// the message-id function for content-based deduplication.
func New(ctx context.Context, h host.Host) (*Manager, error) {
	params := pubsub.DefaultGossipSubParams()
	params.HeartbeatInterval = HeartbeatInterval
	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithGossipSubParams(params),
		pubsub.WithMessageIdFn(messageIDFn),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
	)
	if err != nil {
		return nil, fmt.Errorf("group: new gossipsub: %w", err)
	}
	return &Manager{
		ps:      ps,
		self:    h.ID(),
		topics:  make(map[string]*joinedTopic),
		Inbound: make(chan Message, 256),
	}, nil
}

func messageIDFn(pmsg *pb.Message) string {
	sum := blake3.Sum256(pmsg.Data)
	return hex.EncodeToString(sum[:])
}

// Join subscribes to the named topic, recording a GroupSubscription
// (§3) and starting the per-topic read loop.
func (m *Manager) Join(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.topics[name]; ok {
		return nil
	}

	topic, err := m.ps.Join(name)
	if err != nil {
		return fmt.Errorf("group: join %s: %w", name, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return fmt.Errorf("group: subscribe %s: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	jt := &joinedTopic{name: name, topic: topic, sub: sub, joinedAt: time.Now(), cancel: cancel}
	m.topics[name] = jt

	go m.readLoop(ctx, jt)
	return nil
}

// Leave unsubscribes from and closes the named topic.
func (m *Manager) Leave(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	jt, ok := m.topics[name]
	if !ok {
		return ErrGroupNotFound
	}
	jt.cancel()
	jt.sub.Cancel()
	jt.topic.Close()
	delete(m.topics, name)
	return nil
}

// Publish serializes env as JSON and publishes it to the named topic.
func (m *Manager) Publish(ctx context.Context, name string, env Envelope) error {
	m.mu.Lock()
	jt, ok := m.topics[name]
	m.mu.Unlock()
	if !ok {
		return ErrGroupNotFound
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("group: marshal envelope: %w", err)
	}
	return jt.topic.Publish(ctx, data)
}

// Joined reports whether name is currently joined.
func (m *Manager) Joined(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.topics[name]
	return ok
}

// Close leaves every joined topic, stopping each one's read loop. Call
// this once, when the owning node shuts down.
func (m *Manager) Close() {
	m.mu.Lock()
	names := make([]string, 0, len(m.topics))
	for name := range m.topics {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.Leave(name)
	}
}

func (m *Manager) readLoop(ctx context.Context, jt *joinedTopic) {
	for {
		psMsg, err := jt.sub.Next(ctx)
		if err != nil {
			return // context cancelled on Leave, or subscription closed
		}
		if psMsg.ReceivedFrom == m.self {
			continue // this node's own publish looped back
		}
		var env Envelope
		if err := json.Unmarshal(psMsg.Data, &env); err != nil {
			continue // malformed envelope from a misbehaving peer; drop
		}
		select {
		case m.Inbound <- Message{Topic: jt.name, From: psMsg.ReceivedFrom, Envelope: env}:
		case <-ctx.Done():
			return
		}
	}
}
