package services

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(id string, seconds int) models.Message {
	return models.Message{ID: id, SessionID: "s1", AuthorID: "u1", Content: id, CreatedAt: at(seconds)}
}

func ids(messages []models.Message) []string {
	return lo.Map(messages, func(item models.Message, _ int) string { return item.ID })
}

func TestMessageStoreDedupe(t *testing.T) {
	store := NewMessageStore(0)

	assert.True(t, store.Insert(message("a", 1)))
	assert.False(t, store.Insert(message("a", 1)))

	changed := message("a", 5)
	changed.Content = "other"
	assert.False(t, store.Insert(changed))

	require.Equal(t, 1, store.Len())
	item, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", item.Content)
}

func TestMessageStoreOrderAnyArrival(t *testing.T) {
	source := make([]models.Message, 30)
	for i := range source {
		source[i] = message(fmt.Sprintf("m%02d", i), i)
	}

	random := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		shuffled := append([]models.Message(nil), source...)
		random.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		store := NewMessageStore(100)
		for _, item := range shuffled {
			store.Insert(item)
		}

		view := store.View(0)
		require.Len(t, view, len(source))
		assert.True(t, sort.SliceIsSorted(view, func(i, j int) bool {
			return view[i].CreatedAt.Before(view[j].CreatedAt)
		}))
		assert.Equal(t, ids(source), ids(view))
	}
}

func TestMessageStoreTiesKeepArrivalOrder(t *testing.T) {
	store := NewMessageStore(0)
	store.Insert(message("late", 10))
	store.Insert(message("first", 5))
	store.Insert(message("second", 5))

	assert.Equal(t, []string{"first", "second", "late"}, ids(store.View(0)))
}

func TestMessageStoreWindow(t *testing.T) {
	store := NewMessageStore(50)
	for i := 0; i < 120; i++ {
		store.Insert(message(fmt.Sprintf("m%03d", i), i))
	}

	view := store.View(0)
	require.Len(t, view, 50)
	assert.Equal(t, "m070", view[0].ID)
	assert.Equal(t, "m119", view[49].ID)
	assert.Equal(t, 120, store.Len())

	assert.True(t, store.Remove("m000"))
	assert.Equal(t, 119, store.Len())
	assert.Len(t, store.View(10), 10)
	assert.Len(t, store.View(500), 119)
}

func TestMessageStoreRemove(t *testing.T) {
	store := NewMessageStore(0)
	assert.False(t, store.Remove("ghost"))

	store.Insert(message("a", 1))
	store.Insert(message("b", 2))
	assert.True(t, store.Remove("a"))
	assert.False(t, store.Remove("a"))
	assert.Equal(t, []string{"b"}, ids(store.View(0)))

	// re-inserting after removal is allowed
	assert.True(t, store.Insert(message("a", 1)))
	assert.Equal(t, []string{"a", "b"}, ids(store.View(0)))
}

func TestMessageStoreHydrate(t *testing.T) {
	store := NewMessageStore(0)
	store.Insert(message("stale", 0))

	store.Hydrate([]models.Message{message("b", 2), message("a", 1), message("b", 2)})

	assert.Equal(t, []string{"a", "b"}, ids(store.View(0)))
	_, ok := store.Get("stale")
	assert.False(t, ok)
	assert.False(t, store.Insert(message("a", 1)))
}

func TestMessageStoreResyncKeepsTranslations(t *testing.T) {
	store := NewMessageStore(0)
	store.Hydrate([]models.Message{message("a", 1), message("b", 2)})
	store.Update("a", func(item *models.Message) { item.TranslatedContent = lo.ToPtr("A!") })

	store.Resync([]models.Message{message("a", 1), message("c", 3)})

	assert.Equal(t, []string{"a", "c"}, ids(store.View(0)))
	a, ok := store.Get("a")
	require.True(t, ok)
	require.NotNil(t, a.TranslatedContent)
	assert.Equal(t, "A!", *a.TranslatedContent)

	store.Hydrate([]models.Message{message("a", 1)})
	a, _ = store.Get("a")
	assert.Nil(t, a.TranslatedContent)
}

func TestMessageStoreViewIsCopy(t *testing.T) {
	store := NewMessageStore(0)
	item := message("a", 1)
	item.Attachments = []models.Attachment{{ID: "x", FileName: "x.png"}}
	store.Insert(item)

	view := store.View(0)
	view[0].Content = "mutated"
	view[0].Attachments[0].FileName = "mutated"

	stored, _ := store.Get("a")
	assert.Equal(t, "a", stored.Content)
	assert.Equal(t, "x.png", stored.Attachments[0].FileName)
}

func TestMessageStoreUpdate(t *testing.T) {
	store := NewMessageStore(0)
	store.Insert(message("a", 1))

	assert.True(t, store.Update("a", func(item *models.Message) {
		item.TranslatedContent = lo.ToPtr("translated")
	}))
	assert.False(t, store.Update("b", func(*models.Message) {}))

	stored, _ := store.Get("a")
	require.NotNil(t, stored.TranslatedContent)
	assert.Equal(t, "translated", *stored.TranslatedContent)
}
