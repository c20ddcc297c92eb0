package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const receiveBuffer = 256

// Topic is the pub/sub channel shared by every context of a tenant.
func Topic(namespace string) string {
	return fmt.Sprintf("sentiment:%s:events", namespace)
}

// RedisChannel carries envelopes over Redis pub/sub.
type RedisChannel struct {
	client *redis.Client
	pubsub *redis.PubSub
	topic  string
	out    chan Envelope
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
}

// NewRedisChannel subscribes before returning so no envelope sent after it
// returns is missed.
func NewRedisChannel(ctx context.Context, client *redis.Client, namespace string, logger *zap.Logger) (*RedisChannel, error) {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	topic := Topic(namespace)
	ps := client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	c := &RedisChannel{
		client: client,
		pubsub: ps,
		topic:  topic,
		out:    make(chan Envelope, receiveBuffer),
		done:   make(chan struct{}),
		logger: logger.Named("redis_channel").With(zap.String("topic", topic)),
	}
	go c.pump()
	return c, nil
}

func (c *RedisChannel) pump() {
	defer close(c.out)

	for msg := range c.pubsub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.logger.Warn("dropping malformed envelope", zap.Error(err))
			continue
		}
		select {
		case c.out <- env:
		case <-c.done:
			return
		}
	}
}

func (c *RedisChannel) Send(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.client.Publish(ctx, c.topic, data).Err()
}

func (c *RedisChannel) Receive() <-chan Envelope {
	return c.out
}

// Close unsubscribes; the shared client stays open.
func (c *RedisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pubsub.Close()
	})
	return err
}
