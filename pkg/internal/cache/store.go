package cache

import (
	"time"

	"github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	redis_store "github.com/eko/gocache/store/redis/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var S store.StoreInterface

// NewCache sets up the process cache, backed by redis when a client is
// given and by an in memory go-cache otherwise.
func NewCache(client *redis.Client) error {
	if client != nil {
		S = redis_store.NewRedis(client)
	} else {
		S = gocache_store.NewGoCache(gocache.New(5*time.Minute, 10*time.Minute))
	}
	return nil
}
