// Package pubsub wires go-redis for two concerns the engine needs across
// a multi-node deployment: a cache in front of the cooldown index, and
// cross-node fanout of push-channel events (spec §4.5, §6: monitor:update,
// incident:opened, incident:resolved topics reach every node's connected
// websocket clients, not just the node that produced the event).
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"
)

// Client wraps a go-redis client with the namespace-prefixed key
// conventions the engine uses.
type Client struct {
	rdb       *redis.Client
	namespace string
}

func New(addr, namespace string) *Client {
	if namespace == "" {
		namespace = "monitor"
	}
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		namespace: namespace,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) key(parts ...string) string {
	k := c.namespace
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// CooldownCache caches (proberID, targetID) -> lastSubmittedAt ahead of the
// Postgres cooldown index, so a busy prober's cooldown check rarely touches
// the database (spec §5 design note on the Submission Gateway hot path).
type CooldownCache struct {
	client *Client
	ttl    time.Duration
}

func NewCooldownCache(client *Client, ttl time.Duration) *CooldownCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &CooldownCache{client: client, ttl: ttl}
}

func (c *CooldownCache) cooldownKey(proberID, targetID string) string {
	return c.client.key("cooldown", proberID, targetID)
}

// Get returns the cached LastSubmitted time, if present.
func (c *CooldownCache) Get(ctx context.Context, proberID, targetID string) (*monitoring.CooldownIndex, bool, error) {
	v, err := c.client.rdb.Get(ctx, c.cooldownKey(proberID, targetID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, engerrors.Unavailable("cooldown_cache_get", err)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, false, engerrors.Internal("cooldown cache value corrupt", err)
	}
	return &monitoring.CooldownIndex{ProberID: proberID, TargetID: targetID, LastSubmitted: t}, true, nil
}

// Set records a submission, so the next cooldown check for this pair skips
// the database entirely until ttl expires.
func (c *CooldownCache) Set(ctx context.Context, proberID, targetID string, at time.Time) error {
	err := c.client.rdb.Set(ctx, c.cooldownKey(proberID, targetID), at.Format(time.RFC3339Nano), c.ttl).Err()
	if err != nil {
		return engerrors.Unavailable("cooldown_cache_set", err)
	}
	return nil
}

// PushHub publishes to and fans out from Redis pub/sub channels so a push
// update produced on one node reaches websocket clients connected to any
// node (spec §1: "decentralized... platform").
type PushHub struct {
	client *Client
}

func NewPushHub(client *Client) *PushHub {
	return &PushHub{client: client}
}

func (h *PushHub) channel(topic string) string {
	return h.client.key("push", topic)
}

// Publish satisfies ports.PushChannel by publishing payload as JSON to the
// Redis channel for topic.
func (h *PushHub) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return engerrors.Internal("marshal push payload", err)
	}
	if err := h.client.rdb.Publish(ctx, h.channel(topic), data).Err(); err != nil {
		return engerrors.Unavailable("push_publish", err)
	}
	return nil
}

// Subscribe returns a channel of raw JSON payloads published to topic
// across the whole cluster, and a cancel func to stop receiving. The
// websocket hub (engine/notifier) forwards each payload to its locally
// connected clients.
func (h *PushHub) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	sub := h.client.rdb.Subscribe(ctx, h.channel(topic))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, engerrors.Unavailable("push_subscribe", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { sub.Close() }
	return out, cancel, nil
}

// TopicForTarget renders the monitor:update topic name for one target.
func TopicForTarget(targetID string) string { return fmt.Sprintf("monitor:update:%s", targetID) }
func TopicIncidentOpened() string           { return "incident:opened" }
func TopicIncidentResolved() string         { return "incident:resolved" }
