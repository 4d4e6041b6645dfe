package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel events are mirrored to.
const DefaultRedisChannel = "salesdesk:events"

// RedisMirror relays every bus event to a Redis pub/sub channel so dashboards
// outside this process can follow along. Relay is one-way.
type RedisMirror struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	sub     Subscription
	bus     *Bus
}

// WireEvent is the JSON shape written to Redis.
type WireEvent struct {
	Type      EventName       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRedisMirror connects to redisURL and verifies the server is reachable.
func NewRedisMirror(ctx context.Context, redisURL, channel string) (*RedisMirror, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisMirror{client: client, channel: channel, timeout: 2 * time.Second}, nil
}

// Attach subscribes the mirror to every event on bus.
func (m *RedisMirror) Attach(bus *Bus) {
	m.bus = bus
	m.sub = bus.SubscribeAll(m.forward)
}

func (m *RedisMirror) forward(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.client.Publish(ctx, m.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s failed: %w", m.channel, err)
	}
	return nil
}

// Tail subscribes to the mirror channel and calls fn for each event until ctx
// is cancelled. Undecodable messages are skipped.
func (m *RedisMirror) Tail(ctx context.Context, fn func(WireEvent)) error {
	ps := m.client.Subscribe(ctx, m.channel)
	defer func() { _ = ps.Close() }()

	// Wait for the subscription to be confirmed before reading
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe to %s failed: %w", m.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e WireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				continue
			}
			fn(e)
		}
	}
}

// Close detaches from the bus and closes the Redis client.
func (m *RedisMirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	if m.bus != nil {
		m.bus.Unsubscribe(m.sub)
	}
	return m.client.Close()
}
