package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

const DefaultReconnectInterval = 3 * time.Second

type SubscriberState = int32

const (
	StateDetached = SubscriberState(iota)
	StateConnecting
	StateActive
	StateDegraded
)

func StateName(state SubscriberState) string {
	switch state {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	default:
		return "detached"
	}
}

type SubscriberConfig struct {
	TopicPrefix       string
	ReconnectInterval time.Duration
}

// SubscriberHandlers are invoked from the subscription goroutine, one
// notification at a time in arrival order. They must not call Detach.
type SubscriberHandlers struct {
	OnInsert func(message models.Message)
	OnDelete func(id string)
	OnState  func(state SubscriberState, err error)
	// OnResync runs after the transport came back, missed events are not replayed
	OnResync func(ctx context.Context)
}

type Subscription struct {
	sessionID string
	state     atomic.Int32
	handlers  SubscriberHandlers
	cancel    context.CancelFunc
	done      chan struct{}
}

func (v *Subscription) SessionID() string {
	return v.sessionID
}

func (v *Subscription) State() SubscriberState {
	return v.state.Load()
}

func (v *Subscription) Done() <-chan struct{} {
	return v.done
}

func (v *Subscription) setState(state SubscriberState, err error) {
	if v.state.Swap(state) == state && err == nil {
		return
	}
	if v.handlers.OnState != nil {
		v.handlers.OnState(state, err)
	}
}

type RealtimeSubscriber struct {
	transport Transport
	persist   Persistence
	resolver  *ReplyResolver
	cfg       SubscriberConfig
	registry  *subscriptionRegistry
}

func NewRealtimeSubscriber(transport Transport, persist Persistence, resolver *ReplyResolver, cfg SubscriberConfig) *RealtimeSubscriber {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if resolver == nil {
		resolver = NewReplyResolver(persist)
	}
	return &RealtimeSubscriber{
		transport: transport,
		persist:   persist,
		resolver:  resolver,
		cfg:       cfg,
		registry:  newSubscriptionRegistry(),
	}
}

func (v *RealtimeSubscriber) topic(sessionID string) string {
	return models.SessionTopic(v.cfg.TopicPrefix, sessionID)
}

// Attach connects to the session topic and starts delivering notifications.
// A previous subscription of the same session is detached first.
func (v *RealtimeSubscriber) Attach(ctx context.Context, sessionID string, handlers SubscriberHandlers) (*Subscription, error) {
	if prior := v.registry.get(sessionID); prior != nil {
		v.Detach(prior)
	}

	handle := &Subscription{
		sessionID: sessionID,
		handlers:  handlers,
		done:      make(chan struct{}),
	}
	handle.setState(StateConnecting, nil)

	sub, err := v.transport.Subscribe(ctx, v.topic(sessionID))
	if err != nil {
		handle.setState(StateDetached, err)
		close(handle.done)
		return nil, fmt.Errorf("unable to subscribe session %s: %w", sessionID, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	handle.cancel = cancel
	v.registry.put(handle)
	handle.setState(StateActive, nil)

	go v.run(loopCtx, handle, sub)

	return handle, nil
}

// Detach stops delivery and waits until no handler is running any more.
func (v *RealtimeSubscriber) Detach(handle *Subscription) {
	if handle == nil || handle.cancel == nil {
		return
	}
	v.registry.remove(handle)
	handle.cancel()
	<-handle.done
}

func (v *RealtimeSubscriber) run(ctx context.Context, handle *Subscription, sub TransportSubscription) {
	defer close(handle.done)

	for {
		v.consume(ctx, handle, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			handle.setState(StateDetached, nil)
			return
		}

		reason := sub.Err()
		log.Warn().Err(reason).Str("session", handle.sessionID).Msg("Realtime transport disconnected, waiting for reconnect...")
		handle.setState(StateDegraded, fmt.Errorf("%w: %v", ErrTransportDegraded, reason))

		if sub = v.reconnect(ctx, handle); sub == nil {
			handle.setState(StateDetached, nil)
			return
		}

		log.Info().Str("session", handle.sessionID).Msg("Realtime transport reconnected, resyncing session...")
		handle.setState(StateActive, nil)
		if handle.handlers.OnResync != nil {
			handle.handlers.OnResync(ctx)
		}
	}
}

func (v *RealtimeSubscriber) consume(ctx context.Context, handle *Subscription, sub TransportSubscription) {
	notifications := sub.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-notifications:
			if !ok {
				return
			}
			v.dispatch(ctx, handle, raw)
		}
	}
}

func (v *RealtimeSubscriber) reconnect(ctx context.Context, handle *Subscription) TransportSubscription {
	ticker := time.NewTicker(v.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sub, err := v.transport.Subscribe(ctx, v.topic(handle.sessionID))
			if err == nil {
				return sub
			}
			log.Debug().Err(err).Str("session", handle.sessionID).Msg("Realtime reconnect attempt failed...")
		}
	}
}

func (v *RealtimeSubscriber) dispatch(ctx context.Context, handle *Subscription, raw models.RawNotification) {
	notification, err := models.ParseNotification(raw)
	if err != nil {
		log.Debug().Err(err).Str("session", handle.sessionID).Msg("Dropped malformed realtime notification...")
		return
	}
	// Transports may filter coarser than a single session
	if notification.SessionID != handle.sessionID {
		log.Debug().
			Str("session", handle.sessionID).
			Str("target", notification.SessionID).
			Msg("Dropped realtime notification of another session...")
		return
	}

	switch notification.Kind {
	case models.NotificationInsert:
		message, err := v.fetch(ctx, handle.sessionID, notification.ID)
		if err != nil {
			if errors.Is(err, models.ErrMessageNotFound) {
				log.Debug().Str("message", notification.ID).Msg("Inserted message is already gone, skipping...")
			} else {
				log.Warn().Err(err).Str("message", notification.ID).Msg("An error occurred when fetching inserted message...")
			}
			return
		}
		if handle.handlers.OnInsert != nil {
			handle.handlers.OnInsert(message)
		}
	case models.NotificationDelete:
		if handle.handlers.OnDelete != nil {
			handle.handlers.OnDelete(notification.ID)
		}
	}
}

// fetch loads the full row since notification payloads can be partial.
func (v *RealtimeSubscriber) fetch(ctx context.Context, sessionID string, id string) (models.Message, error) {
	message, err := v.persist.GetMessage(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	if message.SessionID != sessionID {
		return models.Message{}, fmt.Errorf("message %s belongs to session %s", id, message.SessionID)
	}

	resolved, err := v.resolver.ResolveOne(ctx, *message)
	if err != nil {
		log.Warn().Err(err).Str("message", id).Msg("An error occurred when resolving reply of inserted message...")
	}
	return resolved, nil
}

// ActiveCount is the number of sessions currently attached.
func (v *RealtimeSubscriber) ActiveCount() int {
	return v.registry.count()
}
