package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const DefaultHistorySize = 200

type ConversationConfig struct {
	Window           int
	History          int
	NotifierCooldown time.Duration
}

func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		Window:           DefaultViewWindow,
		History:          DefaultHistorySize,
		NotifierCooldown: DefaultNotifierCooldown,
	}
}

type ConversationDeps struct {
	Persist    Persistence
	Linker     *AttachmentLinker
	Resolver   *ReplyResolver
	Subscriber *RealtimeSubscriber
	Translator Translator
}

// View is what listeners receive after every change.
type View struct {
	SessionID string
	Messages  []models.Message
	State     SubscriberState
}

// Conversation is the facade of one author looking at one session at a time.
// It owns the session's MessageStore and its realtime subscription.
type Conversation struct {
	authorID string
	deps     ConversationDeps
	cfg      ConversationConfig

	lock         sync.Mutex
	sessionID    string
	store        *MessageStore
	subscription *Subscription
	notifier     *Notifier
	state        atomic.Int32

	listenerLock sync.Mutex
	listeners    map[int]func(View)
	listenerSeq  int
	onNotice     func(Notice)
}

func NewConversation(authorID string, deps ConversationDeps, cfg ConversationConfig) *Conversation {
	if cfg.Window <= 0 {
		cfg.Window = DefaultViewWindow
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistorySize
	}
	if deps.Resolver == nil {
		deps.Resolver = NewReplyResolver(deps.Persist)
	}
	return &Conversation{
		authorID:  authorID,
		deps:      deps,
		cfg:       cfg,
		listeners: make(map[int]func(View)),
	}
}

// OnNotice sets the sink of rate limited user facing notices.
// It applies to sessions opened afterwards.
func (v *Conversation) OnNotice(fn func(Notice)) {
	v.listenerLock.Lock()
	defer v.listenerLock.Unlock()
	v.onNotice = fn
}

// Subscribe registers a listener and returns a function removing it.
func (v *Conversation) Subscribe(fn func(View)) func() {
	v.listenerLock.Lock()
	defer v.listenerLock.Unlock()
	v.listenerSeq++
	id := v.listenerSeq
	v.listeners[id] = fn
	return func() {
		v.listenerLock.Lock()
		defer v.listenerLock.Unlock()
		delete(v.listeners, id)
	}
}

func (v *Conversation) AuthorID() string {
	return v.authorID
}

func (v *Conversation) SessionID() string {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.sessionID
}

func (v *Conversation) State() SubscriberState {
	return v.state.Load()
}

func (v *Conversation) current() (string, *MessageStore, *Notifier, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.store == nil {
		return "", nil, nil, ErrSessionNotOpen
	}
	return v.sessionID, v.store, v.notifier, nil
}

// Open loads the session history, resolves replies and attaches the
// realtime subscription. An already open session is closed first.
func (v *Conversation) Open(ctx context.Context, sessionID string) error {
	v.Close()

	v.listenerLock.Lock()
	sink := v.onNotice
	v.listenerLock.Unlock()

	store := NewMessageStore(v.cfg.Window)
	notifier := NewNotifier(sessionID, v.cfg.NotifierCooldown, sink)

	if err := v.hydrate(ctx, sessionID, store); err != nil {
		return err
	}

	v.lock.Lock()
	v.sessionID = sessionID
	v.store = store
	v.notifier = notifier
	v.lock.Unlock()

	if v.deps.Subscriber != nil {
		sub, err := v.deps.Subscriber.Attach(ctx, sessionID, v.handlers(sessionID, store, notifier))
		if err != nil {
			v.reset()
			return err
		}
		v.lock.Lock()
		v.subscription = sub
		v.lock.Unlock()
	}

	log.Debug().Str("session", sessionID).Str("author", v.authorID).Int("messages", store.Len()).Msg("Conversation opened...")
	v.emit()
	return nil
}

func (v *Conversation) fetchHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	messages, err := v.deps.Persist.ListMessages(ctx, sessionID, v.cfg.History)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch messages of session %s: %w", sessionID, err)
	}
	resolved, err := v.deps.Resolver.Resolve(ctx, messages)
	if err != nil {
		// Replies render as dangling until the next hydrate
		log.Warn().Err(err).Str("session", sessionID).Msg("An error occurred when resolving replies...")
	}
	return resolved, nil
}

func (v *Conversation) hydrate(ctx context.Context, sessionID string, store *MessageStore) error {
	messages, err := v.fetchHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	store.Hydrate(messages)
	return nil
}

func (v *Conversation) handlers(sessionID string, store *MessageStore, notifier *Notifier) SubscriberHandlers {
	return SubscriberHandlers{
		OnInsert: func(message models.Message) {
			if store.Insert(message) {
				v.emit()
			}
		},
		OnDelete: func(id string) {
			if store.Remove(id) {
				v.emit()
			}
		},
		OnState: func(state SubscriberState, err error) {
			previous := v.state.Swap(state)
			switch {
			case state == StateDegraded:
				notifier.Notify(NoticeTransportDegraded, err)
			case state == StateActive && previous == StateDegraded:
				notifier.Notify(NoticeTransportRestored, nil)
			}
			v.emit()
		},
		OnResync: func(ctx context.Context) {
			messages, err := v.fetchHistory(ctx, sessionID)
			if err != nil {
				log.Error().Err(err).Str("session", sessionID).Msg("An error occurred when resyncing session...")
				return
			}
			store.Resync(messages)
			v.emit()
		},
	}
}

// Send persists the message through the AttachmentLinker and inserts it
// locally right away; the realtime echo of the same id is absorbed by the store.
// A *PartialAttachmentFailure comes back with a non-nil message.
func (v *Conversation) Send(ctx context.Context, text string, files []StagedFile, replyTo *string) (*models.Message, error) {
	sessionID, store, notifier, err := v.current()
	if err != nil {
		return nil, err
	}

	message, err := v.deps.Linker.Send(ctx, SendRequest{
		SessionID:        sessionID,
		AuthorID:         v.authorID,
		Text:             text,
		Files:            files,
		ReplyToMessageID: replyTo,
	})
	if message == nil {
		if !errors.Is(err, ErrInvalidSendRequest) {
			notifier.Notify(NoticeSendFailed, err)
		}
		return nil, err
	}

	local := v.withReply(ctx, store, *message)
	if !store.Insert(local) {
		// The echo won the race, keep the linker's attachment list
		store.Update(local.ID, func(item *models.Message) {
			item.Attachments = append([]models.Attachment(nil), local.Attachments...)
		})
	}
	v.emit()

	if err != nil {
		notifier.Notify(NoticePartialAttachment, err)
	}
	return &local, err
}

func (v *Conversation) withReply(ctx context.Context, store *MessageStore, message models.Message) models.Message {
	if message.ReplyToMessageID == nil {
		return message
	}
	if parent, ok := store.Get(*message.ReplyToMessageID); ok {
		message.ReplyTo = lo.ToPtr(parent.Summary())
		return message
	}
	resolved, err := v.deps.Resolver.ResolveOne(ctx, message)
	if err != nil {
		log.Debug().Err(err).Str("message", message.ID).Msg("Unable to resolve reply of sent message...")
	}
	return resolved
}

// Delete removes the message from the persistence service and from the local view.
func (v *Conversation) Delete(ctx context.Context, id string) error {
	_, store, _, err := v.current()
	if err != nil {
		return err
	}

	if err := v.deps.Persist.DeleteMessage(ctx, id); err != nil && !errors.Is(err, models.ErrMessageNotFound) {
		return fmt.Errorf("unable to delete message %s: %w", id, err)
	}
	if store.Remove(id) {
		v.emit()
	}
	return nil
}

// Translate is best effort, a failure leaves the message untranslated.
func (v *Conversation) Translate(ctx context.Context, id string, targetLang string) {
	_, store, _, err := v.current()
	if err != nil || v.deps.Translator == nil {
		return
	}
	message, ok := store.Get(id)
	if !ok {
		return
	}

	text, err := v.deps.Translator.Translate(ctx, message.Content, targetLang)
	if err != nil {
		log.Debug().Err(err).Str("message", id).Str("lang", targetLang).Msg("Translation failed, keeping original content...")
		return
	}
	if store.Update(id, func(item *models.Message) {
		item.TranslatedContent = &text
	}) {
		v.emit()
	}
}

func (v *Conversation) Message(id string) (models.Message, bool) {
	_, store, _, err := v.current()
	if err != nil {
		return models.Message{}, false
	}
	return store.Get(id)
}

// View returns the windowed message list, empty while no session is open.
func (v *Conversation) View(limit int) []models.Message {
	_, store, _, err := v.current()
	if err != nil {
		return nil
	}
	return store.View(limit)
}

// Close detaches the realtime subscription and discards the store.
// It must not be called from a listener.
func (v *Conversation) Close() {
	v.lock.Lock()
	sub := v.subscription
	open := v.store != nil
	v.lock.Unlock()

	if v.deps.Subscriber != nil && sub != nil {
		v.deps.Subscriber.Detach(sub)
	}
	v.reset()
	if open {
		v.emit()
	}
}

func (v *Conversation) reset() {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.sessionID = ""
	v.store = nil
	v.subscription = nil
	v.notifier = nil
	v.state.Store(StateDetached)
}

func (v *Conversation) emit() {
	view := View{State: v.state.Load()}
	if sessionID, store, _, err := v.current(); err == nil {
		view.SessionID = sessionID
		view.Messages = store.View(0)
	}

	v.listenerLock.Lock()
	listeners := lo.Values(v.listeners)
	v.listenerLock.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}
