package swcache

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/cespare/xxhash/v2"
)

const shards = 64

// entry is a cache entry.
type entry struct {
	Val     *Response
	Written time.Time
}

type bucket struct {
	sync.RWMutex
	data map[string]entry
}

// MemoryConfig controls in-memory storage instance.
type MemoryConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker
}

var (
	_ Storage  = &MemoryStorage{}
	_ Cache    = &MemoryCache{}
	_ Walker   = &MemoryCache{}
	_ Dumper   = &MemoryStorage{}
	_ Restorer = &MemoryStorage{}
)

// MemoryStorage keeps cache generations in memory.
//
// Please use NewMemoryStorage to create instance.
type MemoryStorage struct {
	sync.RWMutex
	generations map[string]*MemoryCache
	order       []string

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewMemoryStorage creates an instance of in-memory storage with optional configuration.
func NewMemoryStorage(cfg ...MemoryConfig) *MemoryStorage {
	config := MemoryConfig{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	s := &MemoryStorage{
		generations: make(map[string]*MemoryCache),
		config:      config,
		log:         config.Logger,
		stat:        config.Stats,
	}

	if s.log == nil {
		s.log = ctxd.NoOpLogger{}
	}

	if s.stat == nil {
		s.stat = stats.NoOp{}
	}

	return s
}

// Open returns existing generation or creates a new one.
func (s *MemoryStorage) Open(ctx context.Context, name string) (Cache, error) {
	return s.open(ctx, name), nil
}

func (s *MemoryStorage) open(ctx context.Context, name string) *MemoryCache {
	s.RLock()
	c, ok := s.generations[name]
	s.RUnlock()

	if ok {
		return c
	}

	s.Lock()
	defer s.Unlock()

	if c, ok := s.generations[name]; ok {
		return c
	}

	c = newMemoryCache(name, s.log, s.stat)
	s.generations[name] = c
	s.order = append(s.order, name)

	s.log.Debug(ctx, "created cache generation", "name", name)

	return c
}

// Lookup returns existing generation.
func (s *MemoryStorage) Lookup(_ context.Context, name string) (Cache, error) {
	s.RLock()
	c, ok := s.generations[name]
	s.RUnlock()

	if !ok {
		return nil, ErrGenerationNotFound
	}

	return c, nil
}

// Has checks if generation exists.
func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.RLock()
	_, ok := s.generations[name]
	s.RUnlock()

	return ok, nil
}

// Delete removes generation.
//
// Handles of deleted generation fail with ErrStorageClosed afterwards.
func (s *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.Lock()
	c, ok := s.generations[name]

	if ok {
		delete(s.generations, name)

		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)

				break
			}
		}
	}
	s.Unlock()

	if !ok {
		return false, nil
	}

	c.close()
	s.log.Debug(ctx, "deleted cache generation", "name", name)

	return true, nil
}

// Keys returns generation names in order of creation.
func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)

	return names, nil
}

// MemoryCache is a sharded in-memory cache generation.
type MemoryCache struct {
	name    string
	buckets [shards]bucket

	closedMu sync.RWMutex
	closed   bool

	log  ctxd.Logger
	stat stats.Tracker
}

func newMemoryCache(name string, log ctxd.Logger, stat stats.Tracker) *MemoryCache {
	c := &MemoryCache{
		name: name,
		log:  log,
		stat: stat,
	}

	for i := 0; i < shards; i++ {
		c.buckets[i].data = make(map[string]entry)
	}

	return c
}

// Name returns generation name.
func (c *MemoryCache) Name() string {
	return c.name
}

func (c *MemoryCache) isClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	return c.closed
}

func (c *MemoryCache) close() {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()

	for i := range c.buckets {
		b := &c.buckets[i]
		b.Lock()
		b.data = make(map[string]entry)
		b.Unlock()
	}
}

func (c *MemoryCache) bucket(key string) *bucket {
	return &c.buckets[xxhash.Sum64String(key)%shards]
}

// Match returns stored response copy.
func (c *MemoryCache) Match(ctx context.Context, key string) (*Response, error) {
	if c.isClosed() {
		return nil, ErrStorageClosed
	}

	b := c.bucket(key)
	b.RLock()
	cacheEntry, found := b.data[key]
	b.RUnlock()

	if !found {
		c.log.Debug(ctx, "cache miss", "name", c.name, "key", key)
		c.stat.Add(ctx, MetricMiss, 1, "name", c.name)

		return nil, ErrNotFound
	}

	c.stat.Add(ctx, MetricHit, 1, "name", c.name)
	c.log.Debug(ctx, "cache hit", "name", c.name, "key", key, "written", cacheEntry.Written)

	return cacheEntry.Val.Clone(), nil
}

// Put stores response copy.
func (c *MemoryCache) Put(ctx context.Context, key string, resp *Response) error {
	if len(key) < 4 || key[:4] != http.MethodGet+" " {
		return ErrNotGET
	}

	if c.isClosed() {
		return ErrStorageClosed
	}

	b := c.bucket(key)
	b.Lock()
	b.data[key] = entry{Val: resp.Clone(), Written: time.Now()}
	b.Unlock()

	c.log.Debug(ctx, "wrote to cache", "name", c.name, "key", key, "status", resp.Status, "size", len(resp.Body))
	c.stat.Add(ctx, MetricWrite, 1, "name", c.name)

	return nil
}

// Delete removes entry.
func (c *MemoryCache) Delete(ctx context.Context, key string) (bool, error) {
	if c.isClosed() {
		return false, ErrStorageClosed
	}

	b := c.bucket(key)
	b.Lock()
	_, found := b.data[key]
	delete(b.data, key)
	b.Unlock()

	if found {
		c.log.Debug(ctx, "deleted cache entry", "name", c.name, "key", key)
	}

	return found, nil
}

// Keys returns sorted request keys.
func (c *MemoryCache) Keys(_ context.Context) ([]string, error) {
	if c.isClosed() {
		return nil, ErrStorageClosed
	}

	keys := make([]string, 0, c.Len())

	_, err := c.Walk(func(key string, _ *Response) error {
		keys = append(keys, key)

		return nil
	})

	sort.Strings(keys)

	return keys, err
}

// Len returns number of entries.
func (c *MemoryCache) Len() int {
	cnt := 0

	for i := range c.buckets {
		b := &c.buckets[i]
		b.RLock()
		cnt += len(b.data)
		b.RUnlock()
	}

	return cnt
}

// Walk walks stored entries, values are not copied and must not be mutated.
func (c *MemoryCache) Walk(walkFn func(key string, resp *Response) error) (int, error) {
	n := 0

	for i := range c.buckets {
		b := &c.buckets[i]

		b.RLock()
		items := make([]struct {
			k string
			v *Response
		}, 0, len(b.data))

		for k, v := range b.data {
			items = append(items, struct {
				k string
				v *Response
			}{k: k, v: v.Val})
		}
		b.RUnlock()

		for _, item := range items {
			if err := walkFn(item.k, item.v); err != nil {
				return n, err
			}

			n++
		}
	}

	return n, nil
}
