package services

import (
	"context"
	"testing"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(id string, seconds int, parent string) models.Message {
	item := message(id, seconds)
	item.ReplyToMessageID = lo.ToPtr(parent)
	return item
}

func TestReplyResolverBatchesLookups(t *testing.T) {
	persist := newFakePersistence()
	persist.put(message("a", 1))
	persist.put(message("b", 2))
	resolver := NewReplyResolver(persist)

	out, err := resolver.Resolve(context.Background(), []models.Message{
		message("plain", 3),
		reply("r1", 4, "a"),
		reply("r2", 5, "a"),
		reply("r3", 6, "b"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, persist.calls())

	assert.Nil(t, out[0].ReplyTo)
	require.NotNil(t, out[1].ReplyTo)
	assert.Equal(t, "a", out[1].ReplyTo.ID)
	assert.Equal(t, "a", out[2].ReplyTo.Content)
	assert.Equal(t, "b", out[3].ReplyTo.ID)
}

func TestReplyResolverSkipsLookupWithoutReplies(t *testing.T) {
	persist := newFakePersistence()
	out, err := NewReplyResolver(persist).Resolve(context.Background(), []models.Message{message("a", 1)})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Zero(t, persist.calls())
}

func TestReplyResolverIdempotent(t *testing.T) {
	persist := newFakePersistence()
	persist.put(message("a", 1))
	resolver := NewReplyResolver(persist)
	ctx := context.Background()

	input := []models.Message{message("a", 1), reply("b", 2, "a")}
	once, err := resolver.Resolve(ctx, input)
	require.NoError(t, err)
	twice, err := resolver.Resolve(ctx, once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Nil(t, input[1].ReplyTo)
}

func TestReplyResolverDangling(t *testing.T) {
	persist := newFakePersistence()
	persist.put(message("a", 1))
	resolver := NewReplyResolver(persist)
	ctx := context.Background()

	b, err := resolver.ResolveOne(ctx, reply("b", 2, "a"))
	require.NoError(t, err)
	require.NotNil(t, b.ReplyTo)

	require.NoError(t, persist.DeleteMessage(ctx, "a"))

	b, err = resolver.ResolveOne(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, b.ReplyToMessageID)
	assert.Equal(t, "a", *b.ReplyToMessageID)
	assert.Nil(t, b.ReplyTo)
	assert.True(t, b.IsDanglingReply())
}

func TestReplyResolverIgnoresParentOfAnotherSession(t *testing.T) {
	persist := newFakePersistence()
	persist.put(models.Message{ID: "secret", SessionID: "s2", AuthorID: "u9", Content: "private", CreatedAt: at(1)})
	resolver := NewReplyResolver(persist)

	out, err := resolver.ResolveOne(context.Background(), reply("b", 2, "secret"))
	require.NoError(t, err)
	assert.Nil(t, out.ReplyTo)
	assert.True(t, out.IsDanglingReply())
}
