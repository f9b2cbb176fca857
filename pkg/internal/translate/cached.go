package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
)

const DefaultCacheTTL = 24 * time.Hour

// Cached remembers translations by text and target language.
type Cached struct {
	next    services.Translator
	marshal *marshaler.Marshaler
	ttl     time.Duration
}

func NewCached(next services.Translator, backend store.StoreInterface, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		next:    next,
		marshal: marshaler.New(cache.New[any](backend)),
		ttl:     ttl,
	}
}

func GetTranslationCacheKey(text string, lang string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("translation#%s@%s", hex.EncodeToString(sum[:]), lang)
}

func (v *Cached) Translate(ctx context.Context, text string, targetLang string) (string, error) {
	key := GetTranslationCacheKey(text, targetLang)
	if val, err := v.marshal.Get(ctx, key, new(string)); err == nil {
		if out, ok := val.(*string); ok && out != nil {
			return *out, nil
		}
	}

	out, err := v.next.Translate(ctx, text, targetLang)
	if err != nil {
		return "", err
	}

	_ = v.marshal.Set(
		ctx,
		key,
		out,
		store.WithExpiration(v.ttl),
		store.WithTags([]string{"translation", fmt.Sprintf("lang#%s", targetLang)}),
	)
	return out, nil
}

// Invalidate drops every cached translation.
func (v *Cached) Invalidate(ctx context.Context) error {
	return v.marshal.Invalidate(ctx, store.WithInvalidateTags([]string{"translation"}))
}
