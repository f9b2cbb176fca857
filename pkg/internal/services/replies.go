package services

import (
	"context"
	"fmt"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
)

type ReplyResolver struct {
	persist Persistence
}

func NewReplyResolver(persist Persistence) *ReplyResolver {
	return &ReplyResolver{persist: persist}
}

// Resolve attaches parent summaries to replies with a single batched lookup.
// Unresolvable parents, and parents of another session, leave the reply
// dangling: the reference is kept and the summary is cleared. The input slice
// is not modified.
func (v *ReplyResolver) Resolve(ctx context.Context, messages []models.Message) ([]models.Message, error) {
	out := lo.Map(messages, func(item models.Message, _ int) models.Message {
		return item.Clone()
	})

	ids := lo.Uniq(lo.FilterMap(out, func(item models.Message, _ int) (string, bool) {
		if item.ReplyToMessageID == nil || len(*item.ReplyToMessageID) == 0 {
			return "", false
		}
		return *item.ReplyToMessageID, true
	}))
	if len(ids) == 0 {
		return out, nil
	}

	parents, err := v.persist.ListMessagesByID(ctx, ids)
	if err != nil {
		return out, fmt.Errorf("unable to resolve reply parents: %w", err)
	}
	byID := lo.KeyBy(parents, func(item models.Message) string {
		return item.ID
	})

	for idx := range out {
		if out[idx].ReplyToMessageID == nil {
			out[idx].ReplyTo = nil
			continue
		}
		if parent, ok := byID[*out[idx].ReplyToMessageID]; ok && parent.SessionID == out[idx].SessionID {
			out[idx].ReplyTo = lo.ToPtr(parent.Summary())
		} else {
			out[idx].ReplyTo = nil
		}
	}

	return out, nil
}

func (v *ReplyResolver) ResolveOne(ctx context.Context, message models.Message) (models.Message, error) {
	out, err := v.Resolve(ctx, []models.Message{message})
	if len(out) == 0 {
		return message, err
	}
	return out[0], err
}
