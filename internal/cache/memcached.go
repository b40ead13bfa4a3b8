package cache

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal"
	"github.com/bradfitz/gomemcache/memcache"
	jsoniter "github.com/json-iterator/go"
)

// memcached treats expirations above 30 days as an absolute unix time.
const maxRelativeExpiration = 30 * 24 * time.Hour

type CachedClient interface {
	LastArchiveTime(url string) (time.Time, bool)
	SaveArchiveTime(url string, archivedAt time.Time, ttl time.Duration)
	Close()
}

type memcachedAPI interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Ping() error
	Close() error
}

type archiveEntry struct {
	URL        string    `json:"url"`
	ArchivedAt time.Time `json:"archived_at"`
}

// MemcachedClient shares recent archive times between spiders that crawl the same site.
type MemcachedClient struct {
	client memcachedAPI
	cfg    *config.CacheConfig
	mu     sync.Mutex
	now    func() time.Time
}

func NewMemcachedClient(cacheConfig *config.CacheConfig) (*MemcachedClient, error) {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	if err := ss.SetServers(cacheConfig.Servers...); err != nil {
		return nil, err
	}
	c := newMemcachedClient(memcache.NewFromSelector(ss), cacheConfig)
	slog.Info("pinging the memcached.")
	if err := c.client.Ping(); err != nil {
		return nil, err
	}
	slog.Info("connected to memcached!")

	return c, nil
}

func newMemcachedClient(client memcachedAPI, cacheConfig *config.CacheConfig) *MemcachedClient {
	return &MemcachedClient{
		client: client,
		cfg:    cacheConfig,
		now:    time.Now,
	}
}

func (mc *MemcachedClient) LastArchiveTime(url string) (time.Time, bool) {
	key := internal.HashURL(url)
	item, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.Warn("failed to read archive time from cache.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return time.Time{}, false
	}

	var entry archiveEntry
	if err = jsoniter.Unmarshal(item.Value, &entry); err != nil || entry.URL != url {
		slog.Warn("unexpected cache entry. ignoring.", slog.String("key", key), slog.String("url", url))
		return time.Time{}, false
	}
	slog.Debug("archive time found in cache.", slog.String("url", url))

	return entry.ArchivedAt, true
}

func (mc *MemcachedClient) SaveArchiveTime(url string, archivedAt time.Time, ttl time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := internal.HashURL(url)
	if err := mc.set(key, &archiveEntry{URL: url, ArchivedAt: archivedAt.UTC()}, mc.expiration(ttl)); err != nil {
		slog.Error("failed to save archive time to cache.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	slog.Debug("archive time saved to cache.", slog.String("key", key), slog.String("url", url))
}

func (mc *MemcachedClient) Close() {
	slog.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		slog.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) expiration(ttl time.Duration) int32 {
	if ttl > maxRelativeExpiration {
		return int32(mc.now().Add(ttl).Unix())
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	return int32(ttl.Seconds())
}

func (mc *MemcachedClient) set(key string, value any, expiration int32) error {
	byteValue, err := jsoniter.Marshal(value)
	if err != nil {
		return err
	}
	item := &memcache.Item{
		Key:        key,
		Value:      byteValue,
		Expiration: expiration,
	}

	return mc.client.Set(item)
}
