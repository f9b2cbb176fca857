package pubsub

import (
	"context"
	"errors"
	"sync"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/rs/zerolog/log"
)

var (
	ErrDisconnected = errors.New("transport disconnected")
	ErrOverflow     = errors.New("subscriber fell behind")
)

const subscriptionBuffer = 64

// Hub is the in process transport, used when no broker is configured.
type Hub struct {
	lock    sync.Mutex
	topics  map[string]map[*hubSubscription]struct{}
	offline map[string]error
}

func NewHub() *Hub {
	return &Hub{
		topics:  make(map[string]map[*hubSubscription]struct{}),
		offline: make(map[string]error),
	}
}

type hubSubscription struct {
	hub   *Hub
	topic string
	ch    chan models.RawNotification
	once  sync.Once
	err   error
}

func (v *hubSubscription) Notifications() <-chan models.RawNotification {
	return v.ch
}

func (v *hubSubscription) Err() error {
	v.hub.lock.Lock()
	defer v.hub.lock.Unlock()
	return v.err
}

func (v *hubSubscription) Close() error {
	v.hub.lock.Lock()
	defer v.hub.lock.Unlock()
	v.hub.drop(v, nil)
	return nil
}

func (v *Hub) Subscribe(_ context.Context, topic string) (services.TransportSubscription, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if err, ok := v.offline[topic]; ok {
		return nil, err
	}

	sub := &hubSubscription{
		hub:   v,
		topic: topic,
		ch:    make(chan models.RawNotification, subscriptionBuffer),
	}
	if _, ok := v.topics[topic]; !ok {
		v.topics[topic] = make(map[*hubSubscription]struct{})
	}
	v.topics[topic][sub] = struct{}{}
	return sub, nil
}

// Publish never blocks. A subscriber with a full buffer is dropped with
// ErrOverflow rather than silently missing the notification, so it
// reconnects and resyncs.
func (v *Hub) Publish(_ context.Context, topic string, notification models.RawNotification) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	for sub := range v.topics[topic] {
		select {
		case sub.ch <- notification:
		default:
			log.Warn().Str("topic", topic).Msg("Realtime subscriber fell behind, dropping its subscription...")
			v.drop(sub, ErrOverflow)
		}
	}
	return nil
}

// Disconnect closes every subscription of the topic with err and refuses
// new ones until Restore is called.
func (v *Hub) Disconnect(topic string, err error) {
	if err == nil {
		err = ErrDisconnected
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	v.offline[topic] = err
	for sub := range v.topics[topic] {
		v.drop(sub, err)
	}
}

func (v *Hub) Restore(topic string) {
	v.lock.Lock()
	defer v.lock.Unlock()
	delete(v.offline, topic)
}

func (v *Hub) Subscribers(topic string) int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.topics[topic])
}

// drop must be called with the lock held.
func (v *Hub) drop(sub *hubSubscription, err error) {
	sub.once.Do(func() {
		sub.err = err
		close(sub.ch)
		if subs, ok := v.topics[sub.topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(v.topics, sub.topic)
			}
		}
	})
}
