package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Broker carries events from the instance that produced them to every
// instance holding sessions of the recipients.
type Broker interface {
	Start(ctx context.Context) error
	Publish(ctx context.Context, userIDs []int64, ev Event) error
	Close() error
}

// LocalBroker delivers straight into the registry of this process.
type LocalBroker struct {
	registry *Registry
}

func NewLocalBroker(registry *Registry) *LocalBroker {
	return &LocalBroker{registry: registry}
}

func (b *LocalBroker) Start(context.Context) error { return nil }

func (b *LocalBroker) Publish(_ context.Context, userIDs []int64, ev Event) error {
	b.registry.Deliver(userIDs, ev)
	return nil
}

func (b *LocalBroker) Close() error { return nil }

type envelope struct {
	UserIDs []int64 `json:"user_ids"`
	Event   Event   `json:"event"`
}

// RedisBroker relays envelopes over a Redis pub/sub channel. Every instance
// subscribes and hands what it receives to its own registry, including the
// publisher itself.
type RedisBroker struct {
	client   *redis.Client
	channel  string
	registry *Registry
	log      logrus.FieldLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

func NewRedisBroker(client *redis.Client, channel string, registry *Registry, log logrus.FieldLogger) *RedisBroker {
	return &RedisBroker{
		client:   client,
		channel:  channel,
		registry: registry,
		log:      log.WithField("component", "redis_broker"),
	}
}

// NewRedisClient connects and pings with a short timeout.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Start subscribes and returns once the subscription is confirmed, so events
// published afterwards are not missed.
func (b *RedisBroker) Start(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.pubsub = ps
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(ps.Channel())
	}()

	b.log.WithField("channel", b.channel).Info("redis relay subscribed")
	return nil
}

func (b *RedisBroker) consume(msgs <-chan *redis.Message) {
	for msg := range msgs {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.log.WithError(err).Warn("skip malformed relay envelope")
			continue
		}
		b.registry.Deliver(env.UserIDs, env.Event)
	}
}

func (b *RedisBroker) Publish(ctx context.Context, userIDs []int64, ev Event) error {
	raw, err := json.Marshal(envelope{UserIDs: userIDs, Event: ev})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Close stops the subscriber. The Redis client is owned by the caller.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	ps := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	b.wg.Wait()
	return err
}
