package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// ConversationPool keeps one open conversation per session and author.
type ConversationPool struct {
	lock    sync.Mutex
	items   map[string]*Conversation
	opening singleflight.Group
	factory func(authorID string) *Conversation
}

func NewConversationPool(factory func(authorID string) *Conversation) *ConversationPool {
	return &ConversationPool{
		items:   make(map[string]*Conversation),
		factory: factory,
	}
}

func conversationKey(sessionID, authorID string) string {
	return fmt.Sprintf("%s#%s", sessionID, authorID)
}

func (v *ConversationPool) lookup(key string) (*Conversation, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()
	conv, ok := v.items[key]
	return conv, ok
}

// Acquire returns the open conversation, opening it on first use.
// Opening runs outside the pool lock, concurrent callers of the same key share one open.
func (v *ConversationPool) Acquire(ctx context.Context, sessionID, authorID string) (*Conversation, error) {
	key := conversationKey(sessionID, authorID)
	if conv, ok := v.lookup(key); ok {
		return conv, nil
	}

	out, err, _ := v.opening.Do(key, func() (any, error) {
		if conv, ok := v.lookup(key); ok {
			return conv, nil
		}
		conv := v.factory(authorID)
		if err := conv.Open(ctx, sessionID); err != nil {
			return nil, err
		}
		v.lock.Lock()
		v.items[key] = conv
		v.lock.Unlock()
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Conversation), nil
}

func (v *ConversationPool) Release(sessionID, authorID string) bool {
	key := conversationKey(sessionID, authorID)

	v.lock.Lock()
	conv, ok := v.items[key]
	delete(v.items, key)
	v.lock.Unlock()

	if ok {
		conv.Close()
	}
	return ok
}

func (v *ConversationPool) CloseAll() {
	v.lock.Lock()
	items := lo.Values(v.items)
	v.items = make(map[string]*Conversation)
	v.lock.Unlock()

	for _, conv := range items {
		conv.Close()
	}
	log.Debug().Int("count", len(items)).Msg("Closed all conversations...")
}

func (v *ConversationPool) Len() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.items)
}
