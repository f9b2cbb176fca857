package pubsub

import (
	"context"
	"fmt"
	"sync"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisTransport carries session notifications over redis pub/sub channels.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (v *RedisTransport) Publish(ctx context.Context, topic string, notification models.RawNotification) error {
	data, err := EncodeNotification(notification)
	if err != nil {
		return err
	}
	return v.client.Publish(ctx, topic, data).Err()
}

func (v *RedisTransport) Subscribe(ctx context.Context, topic string) (services.TransportSubscription, error) {
	ps := v.client.Subscribe(ctx, topic)
	// Wait for the subscription confirmation so a dead broker fails here
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("unable to subscribe %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		topic:  topic,
		ps:     ps,
		ch:     make(chan models.RawNotification, subscriptionBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(loopCtx)
	return sub, nil
}

type redisSubscription struct {
	topic  string
	ps     *redis.PubSub
	ch     chan models.RawNotification
	cancel context.CancelFunc
	done   chan struct{}

	lock   sync.Mutex
	closed bool
	err    error
}

func (v *redisSubscription) Notifications() <-chan models.RawNotification {
	return v.ch
}

func (v *redisSubscription) Err() error {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.err
}

func (v *redisSubscription) Close() error {
	v.lock.Lock()
	if v.closed {
		v.lock.Unlock()
		return nil
	}
	v.closed = true
	v.lock.Unlock()

	v.cancel()
	err := v.ps.Close()
	<-v.done
	return err
}

func (v *redisSubscription) run(ctx context.Context) {
	defer close(v.done)
	defer close(v.ch)

	for {
		msg, err := v.ps.ReceiveMessage(ctx)
		if err != nil {
			v.lock.Lock()
			if !v.closed && ctx.Err() == nil {
				v.err = err
			}
			v.lock.Unlock()
			return
		}

		notification, err := DecodeNotification([]byte(msg.Payload))
		if err != nil {
			log.Debug().Err(err).Str("topic", v.topic).Msg("Dropped undecodable redis notification...")
			continue
		}

		select {
		case v.ch <- notification:
		case <-ctx.Done():
			return
		}
	}
}
