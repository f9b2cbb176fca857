package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
)

var errInjected = errors.New("injected failure")

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return baseTime.Add(time.Duration(seconds) * time.Second)
}

type fakePersistence struct {
	lock        sync.Mutex
	messages    map[string]models.Message
	attachments map[string][]models.Attachment
	seq         int
	attachSeq   int
	byIDCalls   int

	failCreate       bool
	failAttachmentAt map[int]bool
	publisher        Publisher

	// attachment rows present when each message was announced
	announcedAttachments map[string]int
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		messages:         make(map[string]models.Message),
		attachments:      make(map[string][]models.Attachment),
		failAttachmentAt: make(map[int]bool),

		announcedAttachments: make(map[string]int),
	}
}

// put seeds a row without publishing anything.
func (v *fakePersistence) put(message models.Message) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.messages[message.ID] = message
}

func (v *fakePersistence) notify(ctx context.Context, sessionID string, notification models.RawNotification) {
	if v.publisher != nil {
		_ = v.publisher.Publish(ctx, models.SessionTopic("", sessionID), notification)
	}
}

func (v *fakePersistence) CreateMessage(ctx context.Context, message *models.Message) error {
	v.lock.Lock()
	if v.failCreate {
		v.lock.Unlock()
		return errInjected
	}
	v.seq++
	message.ID = fmt.Sprintf("m%d", v.seq)
	message.CreatedAt = at(1000 + v.seq)
	stored := message.Clone()
	stored.Attachments = nil
	v.messages[message.ID] = stored
	v.lock.Unlock()
	return nil
}

func (v *fakePersistence) AnnounceMessage(ctx context.Context, message models.Message) {
	v.lock.Lock()
	v.announcedAttachments[message.ID] = len(v.attachments[message.ID])
	v.lock.Unlock()

	v.notify(ctx, message.SessionID, models.RawNotification{
		Operation: models.NotificationOperationInsert,
		RowID:     message.ID,
		SessionID: message.SessionID,
		Payload:   map[string]any{"id": message.ID},
	})
}

// create stores and announces a message written by someone else.
func (v *fakePersistence) create(ctx context.Context, message *models.Message) error {
	if err := v.CreateMessage(ctx, message); err != nil {
		return err
	}
	v.AnnounceMessage(ctx, *message)
	return nil
}

func (v *fakePersistence) CreateAttachment(_ context.Context, attachment *models.Attachment) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.attachSeq++
	if v.failAttachmentAt[v.attachSeq] {
		return errInjected
	}
	if _, ok := v.messages[attachment.MessageID]; !ok {
		return models.ErrMessageNotFound
	}
	attachment.ID = fmt.Sprintf("a%d", v.attachSeq)
	v.attachments[attachment.MessageID] = append(v.attachments[attachment.MessageID], *attachment)
	return nil
}

func (v *fakePersistence) GetMessage(_ context.Context, id string) (*models.Message, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	message, ok := v.messages[id]
	if !ok {
		return nil, models.ErrMessageNotFound
	}
	out := message.Clone()
	out.Attachments = append([]models.Attachment(nil), v.attachments[id]...)
	return &out, nil
}

func (v *fakePersistence) ListMessages(_ context.Context, sessionID string, take int) ([]models.Message, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	out := lo.Filter(lo.Values(v.messages), func(item models.Message, _ int) bool {
		return item.SessionID == sessionID
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if take > 0 && len(out) > take {
		out = out[len(out)-take:]
	}
	for idx := range out {
		out[idx].Attachments = append([]models.Attachment(nil), v.attachments[out[idx].ID]...)
	}
	return out, nil
}

func (v *fakePersistence) ListMessagesByID(_ context.Context, ids []string) ([]models.Message, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.byIDCalls++
	return lo.FilterMap(ids, func(id string, _ int) (models.Message, bool) {
		item, ok := v.messages[id]
		return item, ok
	}), nil
}

func (v *fakePersistence) DeleteMessage(ctx context.Context, id string) error {
	v.lock.Lock()
	message, ok := v.messages[id]
	if !ok {
		v.lock.Unlock()
		return models.ErrMessageNotFound
	}
	delete(v.messages, id)
	delete(v.attachments, id)
	v.lock.Unlock()

	v.notify(ctx, message.SessionID, models.RawNotification{
		Operation: models.NotificationOperationDelete,
		RowID:     id,
		SessionID: message.SessionID,
	})
	return nil
}

func (v *fakePersistence) attachmentCount(id string) int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.attachments[id])
}

func (v *fakePersistence) calls() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.byIDCalls
}

type fakeBlobs struct {
	lock    sync.Mutex
	fail    map[string]bool
	uploads []string
}

func (v *fakeBlobs) Upload(_ context.Context, name string, _ string, data io.Reader) (string, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.fail[name] {
		return "", errInjected
	}
	_, _ = io.Copy(io.Discard, data)
	v.uploads = append(v.uploads, name)
	return "https://blobs.local/" + name, nil
}

type fakeTranslator struct {
	fail bool
}

func (v *fakeTranslator) Translate(_ context.Context, text string, lang string) (string, error) {
	if v.fail {
		return "", errInjected
	}
	return fmt.Sprintf("[%s] %s", lang, text), nil
}

type fakeTransport struct {
	lock        sync.Mutex
	subs        map[string][]*fakeSubscription
	failPending int
	subscribes  int
	paused      bool
	pending     []pendingNotification
}

type pendingNotification struct {
	topic        string
	notification models.RawNotification
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string][]*fakeSubscription)}
}

type fakeSubscription struct {
	transport *fakeTransport
	topic     string
	ch        chan models.RawNotification
	once      sync.Once
	err       error
}

func (v *fakeSubscription) Notifications() <-chan models.RawNotification { return v.ch }

func (v *fakeSubscription) Err() error {
	v.transport.lock.Lock()
	defer v.transport.lock.Unlock()
	return v.err
}

func (v *fakeSubscription) Close() error {
	v.transport.lock.Lock()
	defer v.transport.lock.Unlock()
	v.transport.drop(v, nil)
	return nil
}

func (v *fakeTransport) Subscribe(_ context.Context, topic string) (TransportSubscription, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.subscribes++
	if v.failPending > 0 {
		v.failPending--
		return nil, errInjected
	}
	sub := &fakeSubscription{transport: v, topic: topic, ch: make(chan models.RawNotification, 64)}
	v.subs[topic] = append(v.subs[topic], sub)
	return sub, nil
}

func (v *fakeTransport) Publish(_ context.Context, topic string, notification models.RawNotification) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.paused {
		v.pending = append(v.pending, pendingNotification{topic, notification})
		return nil
	}
	v.deliver(topic, notification)
	return nil
}

func (v *fakeTransport) deliver(topic string, notification models.RawNotification) {
	for _, sub := range v.subs[topic] {
		sub.ch <- notification
	}
}

func (v *fakeTransport) pause() {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.paused = true
}

func (v *fakeTransport) flush() {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.paused = false
	for _, item := range v.pending {
		v.deliver(item.topic, item.notification)
	}
	v.pending = nil
}

// disconnect drops every live subscription of the topic and makes the next
// fails subscribe attempts error out.
func (v *fakeTransport) disconnect(topic string, fails int) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.failPending = fails
	for _, sub := range append([]*fakeSubscription(nil), v.subs[topic]...) {
		v.drop(sub, errors.New("connection reset"))
	}
}

func (v *fakeTransport) subscribers(topic string) int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.subs[topic])
}

func (v *fakeTransport) drop(sub *fakeSubscription, err error) {
	sub.once.Do(func() {
		sub.err = err
		close(sub.ch)
		v.subs[sub.topic] = lo.Without(v.subs[sub.topic], sub)
	})
}

type recording struct {
	inserted []models.Message
	deleted  []string
	states   []SubscriberState
	errs     []error
	resyncs  int
}

// recorder collects handler callbacks from the subscription goroutine.
type recorder struct {
	lock sync.Mutex
	data recording
}

func (v *recorder) handlers() SubscriberHandlers {
	return SubscriberHandlers{
		OnInsert: func(message models.Message) {
			v.lock.Lock()
			defer v.lock.Unlock()
			v.data.inserted = append(v.data.inserted, message)
		},
		OnDelete: func(id string) {
			v.lock.Lock()
			defer v.lock.Unlock()
			v.data.deleted = append(v.data.deleted, id)
		},
		OnState: func(state SubscriberState, err error) {
			v.lock.Lock()
			defer v.lock.Unlock()
			v.data.states = append(v.data.states, state)
			v.data.errs = append(v.data.errs, err)
		},
		OnResync: func(context.Context) {
			v.lock.Lock()
			defer v.lock.Unlock()
			v.data.resyncs++
		},
	}
}

func (v *recorder) snapshot() recording {
	v.lock.Lock()
	defer v.lock.Unlock()
	return recording{
		inserted: append([]models.Message(nil), v.data.inserted...),
		deleted:  append([]string(nil), v.data.deleted...),
		states:   append([]SubscriberState(nil), v.data.states...),
		errs:     append([]error(nil), v.data.errs...),
		resyncs:  v.data.resyncs,
	}
}
