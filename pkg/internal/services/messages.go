package services

import (
	"sort"
	"sync"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
)

const DefaultViewWindow = 50

// MessageStore is the in-memory ordered message list of one open session.
// Entries are unique by id and kept ascending by CreatedAt.
type MessageStore struct {
	lock    sync.RWMutex
	entries []models.Message
	index   map[string]struct{}
	window  int
}

func NewMessageStore(window int) *MessageStore {
	if window <= 0 {
		window = DefaultViewWindow
	}
	return &MessageStore{
		index:  make(map[string]struct{}),
		window: window,
	}
}

// Hydrate replaces the whole content. Input is expected sorted already,
// it is sorted again (stable) and deduplicated anyway.
func (v *MessageStore) Hydrate(messages []models.Message) {
	v.replace(messages, false)
}

// Resync replaces the whole content like Hydrate but keeps client local
// fields, such as translations, of messages that are still present.
func (v *MessageStore) Resync(messages []models.Message) {
	v.replace(messages, true)
}

func (v *MessageStore) replace(messages []models.Message, keepLocal bool) {
	entries := make([]models.Message, 0, len(messages))
	index := make(map[string]struct{}, len(messages))
	for _, item := range messages {
		if _, ok := index[item.ID]; ok {
			continue
		}
		index[item.ID] = struct{}{}
		entries = append(entries, item.Clone())
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	v.lock.Lock()
	defer v.lock.Unlock()
	if keepLocal {
		translated := make(map[string]string)
		for _, item := range v.entries {
			if item.TranslatedContent != nil {
				translated[item.ID] = *item.TranslatedContent
			}
		}
		for idx := range entries {
			if text, ok := translated[entries[idx].ID]; ok && entries[idx].TranslatedContent == nil {
				entries[idx].TranslatedContent = lo.ToPtr(text)
			}
		}
	}
	v.entries = entries
	v.index = index
}

// Insert places the message after every entry not newer than it.
// It returns false when a message with the same id is already stored.
func (v *MessageStore) Insert(message models.Message) bool {
	v.lock.Lock()
	defer v.lock.Unlock()

	if _, ok := v.index[message.ID]; ok {
		return false
	}

	pos := sort.Search(len(v.entries), func(i int) bool {
		return v.entries[i].CreatedAt.After(message.CreatedAt)
	})
	v.entries = append(v.entries, models.Message{})
	copy(v.entries[pos+1:], v.entries[pos:])
	v.entries[pos] = message.Clone()
	v.index[message.ID] = struct{}{}

	return true
}

// Remove deletes by id. Unknown ids are ignored so a delete racing ahead
// of its insert is harmless.
func (v *MessageStore) Remove(id string) bool {
	v.lock.Lock()
	defer v.lock.Unlock()

	if _, ok := v.index[id]; !ok {
		return false
	}
	delete(v.index, id)
	v.entries = lo.Reject(v.entries, func(item models.Message, _ int) bool {
		return item.ID == id
	})
	return true
}

// Update applies fn to the stored copy of a message, used for client
// local fields such as the translation.
func (v *MessageStore) Update(id string, fn func(message *models.Message)) bool {
	v.lock.Lock()
	defer v.lock.Unlock()

	if _, ok := v.index[id]; !ok {
		return false
	}
	for idx := range v.entries {
		if v.entries[idx].ID == id {
			fn(&v.entries[idx])
			return true
		}
	}
	return false
}

func (v *MessageStore) Get(id string) (models.Message, bool) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	if _, ok := v.index[id]; !ok {
		return models.Message{}, false
	}
	item, ok := lo.Find(v.entries, func(item models.Message) bool {
		return item.ID == id
	})
	return item.Clone(), ok
}

func (v *MessageStore) Len() int {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return len(v.entries)
}

// View returns a copy of the most recent messages, oldest first.
// A limit of zero or less falls back to the configured window.
func (v *MessageStore) View(limit int) []models.Message {
	if limit <= 0 {
		limit = v.window
	}

	v.lock.RLock()
	defer v.lock.RUnlock()

	start := 0
	if len(v.entries) > limit {
		start = len(v.entries) - limit
	}
	return lo.Map(v.entries[start:], func(item models.Message, _ int) models.Message {
		return item.Clone()
	})
}
