package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

// Redis is the go-redis/v9-backed Transport spec §4.6 names explicitly:
// mailboxes are Redis lists (LPUSH/BRPOP), presence is a key with
// PEXPIRE, and pub/sub rides native PUBLISH/SUBSCRIBE.
type Redis struct {
	client     *redis.Client
	prefix     string
	thresholds BackpressureThresholds
	metrics    *observability.Metrics
}

// NewRedis builds a Redis transport from an already-configured client.
// keyPrefix scopes every key/channel this transport touches.
func NewRedis(client *redis.Client, keyPrefix string, thresholds BackpressureThresholds) *Redis {
	return &Redis{client: client, prefix: keyPrefix, thresholds: thresholds}
}

// SetMetrics attaches the instrument set Send reports mailbox depth to.
func (r *Redis) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

func (r *Redis) mailboxKey(agentID models.MeshAgentID) string {
	return r.prefix + "mailbox:" + string(agentID)
}

func (r *Redis) presenceKey(agentID models.MeshAgentID) string {
	return r.prefix + "presence:" + string(agentID)
}

func (r *Redis) channel(topic models.Topic) string {
	return r.prefix + "topic:" + string(topic)
}

// Send LPUSHes the encoded envelope onto agentID's mailbox list, per
// spec's at-least-once point-to-point contract; it rejects sends once
// the list is at the configured hard cap.
func (r *Redis) Send(ctx context.Context, agentID models.MeshAgentID, msg models.Message) error {
	depth, err := r.QueueDepth(ctx, agentID)
	if err != nil {
		return err
	}
	if r.thresholds.Exceeds(depth) {
		return &models.MeshError{Kind: models.MeshBackpressureSaturated, Message: string(agentID)}
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		return &models.MeshError{Kind: models.MeshPublishFailed, Message: err.Error()}
	}
	if err := r.client.LPush(ctx, r.mailboxKey(agentID), data).Err(); err != nil {
		return &models.MeshError{Kind: models.MeshConnection, Message: err.Error()}
	}
	if r.metrics != nil {
		r.metrics.SetMeshQueueDepth(string(agentID), float64(depth+1))
	}
	return nil
}

// Receive blocks via BRPOP for up to timeout waiting on agentID's
// mailbox; a zero timeout blocks until ctx is canceled.
func (r *Redis) Receive(ctx context.Context, agentID models.MeshAgentID, timeout time.Duration) (models.Message, bool, error) {
	res, err := r.client.BRPop(ctx, timeout, r.mailboxKey(agentID)).Result()
	if err == redis.Nil {
		return models.Message{}, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return models.Message{}, false, ctx.Err()
		}
		return models.Message{}, false, &models.MeshError{Kind: models.MeshConnection, Message: err.Error()}
	}
	// res is [key, value]; BRPop on a single key always returns exactly two.
	if len(res) != 2 {
		return models.Message{}, false, &models.MeshError{Kind: models.MeshConnection, Message: "malformed BRPOP reply"}
	}
	msg, err := DecodeMessage([]byte(res[1]))
	if err != nil {
		return models.Message{}, false, &models.MeshError{Kind: models.MeshConnection, Message: err.Error()}
	}
	return msg, true, nil
}

// Broadcast publishes to the well-known broadcast topic.
func (r *Redis) Broadcast(ctx context.Context, msg models.Message) error {
	return r.Publish(ctx, models.BroadcastTopic, msg)
}

// Publish is at-most-once: PUBLISH delivers only to currently-connected
// SUBSCRIBEers, matching native Redis semantics.
func (r *Redis) Publish(ctx context.Context, topic models.Topic, msg models.Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return &models.MeshError{Kind: models.MeshPublishFailed, Message: err.Error()}
	}
	if err := r.client.Publish(ctx, r.channel(topic), data).Err(); err != nil {
		return &models.MeshError{Kind: models.MeshPublishFailed, Message: err.Error()}
	}
	return nil
}

// redisSubscription adapts *redis.PubSub to the Subscription interface,
// decoding each raw payload into a Message before handing it to the
// caller.
type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan models.Message
	done   chan struct{}
}

func (s *redisSubscription) Messages() <-chan models.Message { return s.out }

func (s *redisSubscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.pubsub.Close()
}

// Subscribe opens a native Redis SUBSCRIBE on topic's channel and
// decodes incoming envelopes on a background goroutine.
func (r *Redis) Subscribe(ctx context.Context, topic models.Topic) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, &models.MeshError{Kind: models.MeshSubscribeFailed, Message: err.Error()}
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan models.Message, 64),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.out)
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				msg, err := DecodeMessage([]byte(m.Payload))
				if err != nil {
					continue
				}
				select {
				case sub.out <- msg:
				case <-sub.done:
					return
				}
			}
		}
	}()

	return sub, nil
}

// RegisterPresence sets agentID's presence key with a PEXPIRE TTL. A
// ttl of zero sets the key without expiry.
func (r *Redis) RegisterPresence(ctx context.Context, agentID models.MeshAgentID, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.presenceKey(agentID), time.Now().Unix(), ttl).Err(); err != nil {
		return &models.MeshError{Kind: models.MeshConnection, Message: err.Error()}
	}
	return nil
}

// DeregisterPresence deletes agentID's presence key immediately.
func (r *Redis) DeregisterPresence(ctx context.Context, agentID models.MeshAgentID) error {
	if err := r.client.Del(ctx, r.presenceKey(agentID)).Err(); err != nil {
		return &models.MeshError{Kind: models.MeshConnection, Message: err.Error()}
	}
	return nil
}

// IsPresent reports whether agentID currently has a live presence key.
func (r *Redis) IsPresent(ctx context.Context, agentID models.MeshAgentID) bool {
	n, err := r.client.Exists(ctx, r.presenceKey(agentID)).Result()
	return err == nil && n > 0
}

// QueueDepth reports the current LLEN of agentID's mailbox list.
func (r *Redis) QueueDepth(ctx context.Context, agentID models.MeshAgentID) (int, error) {
	n, err := r.client.LLen(ctx, r.mailboxKey(agentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("mesh: redis queue depth: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying Redis client.
func (r *Redis) Close(ctx context.Context) error {
	return r.client.Close()
}
