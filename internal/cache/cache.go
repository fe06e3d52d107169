// Package cache implements the proxy's disk-backed, fingerprinted,
// bucketed content cache with single-flight coherence, per spec.md §4.5:
// at most one resolver call is in flight for a given key at a time, and
// every reader observes either a FRESH body within TTL or the bytes a
// just-completed resolver produced.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
)

// status is an entry's position in the FRESH/STALE/IN_FLIGHT automaton.
type status int

const (
	stale status = iota
	fresh
	inFlight
)

// defaultBuckets is the default bucket count: a power of two, at least
// 1024, matching spec.md §4.5's sizing guidance.
const defaultBuckets = 4096

// entry is one cache slot, stored in its bucket's map under its
// fingerprint (the original string key is kept alongside for the LRU
// extension) and guarded by that bucket's mutex.
type entry struct {
	key            string
	fingerprint    string // 32-char lowercase hex, also the on-disk filename
	status         status
	users          int
	materializedAt time.Time
}

// Resolver produces the bytes for a cache miss by writing the complete
// serialized response to w. A non-nil error must leave w untouched
// (callers write only after the origin fetch has fully succeeded).
type Resolver func(w io.Writer) error

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithBuckets overrides the default bucket count.
func WithBuckets(n int) Option {
	return func(c *Cache) { c.numBuckets = n }
}

// WithLRU enables the optional capacity-bounded LRU eviction extension
// spec.md §4.5 permits. Disabled by default (unbounded growth).
func WithLRU(capacity int) Option {
	return func(c *Cache) { c.lruCapacity = capacity }
}

// Cache is a disk-backed cache keyed by an application-supplied string
// key (typically host+path), bucketed by a murmur3 fingerprint, with a
// per-bucket mutex-and-condvar coordination loop.
type Cache struct {
	dir string
	ttl time.Duration

	numBuckets int
	buckets    []bucket

	mu    sync.Mutex // global: guards `users` (readers plus resolvers currently holding an entry)
	users int

	lruCapacity int
	lru         *lru.Cache[string, struct{}]
}

type bucket struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
}

// New creates (or reuses) dir as the cache's on-disk store and builds an
// empty in-memory index. On-disk files persist across restarts, but the
// index is always rebuilt empty and old files are not read back: the
// first lookup of a key after a restart is a miss like any other, and
// the resolver's output replaces the file left on disk.
func New(dir string, ttl time.Duration, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, perr.New(perr.KindCacheIOError, err)
	}
	c := &Cache{
		dir:        dir,
		ttl:        ttl,
		numBuckets: defaultBuckets,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.buckets = make([]bucket, c.numBuckets)
	for i := range c.buckets {
		c.buckets[i].entries = make(map[string]*entry)
		c.buckets[i].cond = sync.NewCond(&c.buckets[i].mu)
	}
	if c.lruCapacity > 0 {
		l, err := lru.NewWithEvict[string, struct{}](c.lruCapacity, func(key string, _ struct{}) {
			c.evictIfIdle(key)
		})
		if err != nil {
			return nil, perr.New(perr.KindCacheIOError, err)
		}
		c.lru = l
	}
	return c, nil
}

// touchLRU records key as recently used when the LRU extension is
// enabled; a no-op otherwise.
func (c *Cache) touchLRU(key string) {
	if c.lru != nil {
		c.lru.Add(key, struct{}{})
	}
}

// fingerprint returns the 32-char lowercase hex fingerprint for key and
// the bucket index it belongs to.
func (c *Cache) fingerprint(key string) (string, int) {
	hi, lo := murmur3.Sum128([]byte(key))
	fp := fmt.Sprintf("%016x%016x", hi, lo)
	return fp, int(lo % uint64(c.numBuckets))
}

// Get implements spec.md §4.5's coordination loop. It returns the bytes
// of a FRESH entry's file, invoking resolve at most once across all
// concurrent callers for the same key within a single miss episode.
func (c *Cache) Get(ctx context.Context, key string, resolve Resolver) ([]byte, error) {
	fp, bi := c.fingerprint(key)
	b := &c.buckets[bi]

	b.mu.Lock()
	for {
		e, ok := b.entries[fp]
		if !ok {
			e = &entry{key: key, fingerprint: fp, status: stale}
			b.entries[fp] = e
		}

		switch e.status {
		case fresh:
			if time.Since(e.materializedAt) <= c.ttl {
				e.users++
				c.incrUsers(1)
				b.mu.Unlock()
				c.touchLRU(key)
				data, err := c.readAndRelease(b, e)
				return data, err
			}
			// Past TTL: revert to stale. A lingering reader may still be
			// draining the old file (users > 0), so wait rather than spin
			// on the lock below instead of claiming it immediately.
			e.status = stale
			if e.users > 0 {
				if err := c.waitOnCond(ctx, b); err != nil {
					return nil, err
				}
			}

		case inFlight:
			// Bounded wait on the bucket's condvar instead of a sleep
			// loop, per spec.md §4.5 step 3.
			if err := c.waitOnCond(ctx, b); err != nil {
				return nil, err
			}

		case stale:
			if e.users == 0 {
				e.status = inFlight
				e.users++
				c.incrUsers(1)
				b.mu.Unlock()
				return c.resolveAndStore(ctx, b, e, resolve)
			}
			// A fresh-but-expired entry can be momentarily stale with a
			// lingering reader (users > 0) still draining its old file.
			// Release the mutex and wait instead of spinning on it, or
			// that reader could never reacquire b.mu to decrement users.
			if err := c.waitOnCond(ctx, b); err != nil {
				return nil, err
			}
		}
	}
}

// waitOnCond releases b.mu and blocks on b.cond until broadcast, per
// spec.md §4.5 step 3 ("release mutex, sleep, retry"), then re-acquires
// b.mu before returning. sync.Cond.Wait cannot observe ctx directly, so
// a watcher goroutine bridges ctx.Done() into a Broadcast when ctx is
// cancelable. Returns with b.mu held; on ctx cancellation it unlocks
// b.mu itself and returns the error.
func (c *Cache) waitOnCond(ctx context.Context, b *bucket) error {
	waitCtxDone := ctxDoneChan(ctx)
	if waitCtxDone != nil {
		stop := make(chan struct{})
		go func() {
			select {
			case <-waitCtxDone:
				b.cond.Broadcast()
			case <-stop:
			}
		}()
		b.cond.Wait()
		close(stop)
	} else {
		b.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		b.mu.Unlock()
		return perr.New(perr.KindCacheIOError, err)
	}
	return nil
}

// ctxDoneChan returns ctx.Done() unless ctx is context.Background() (no
// cancellation possible, avoids spinning up a watcher goroutine).
func ctxDoneChan(ctx context.Context) <-chan struct{} {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Done()
	default:
	}
	if ctx.Done() == nil {
		return nil
	}
	return ctx.Done()
}

// resolveAndStore runs resolve for the entry this goroutine has claimed
// (status already set to inFlight by the caller, mutex already
// released), writes the result atomically to disk on success, and
// updates the entry's state under the bucket mutex before returning.
func (c *Cache) resolveAndStore(ctx context.Context, b *bucket, e *entry, resolve Resolver) ([]byte, error) {
	tmp, err := os.CreateTemp(c.dir, e.fingerprint+".*.tmp")
	if err != nil {
		c.rollback(b, e)
		return nil, perr.New(perr.KindCacheIOError, err)
	}
	tmpPath := tmp.Name()

	resolveErr := resolve(tmp)
	closeErr := tmp.Close()

	if resolveErr != nil {
		_ = os.Remove(tmpPath)
		c.rollback(b, e)
		return nil, perr.New(perr.KindFetchFailed, resolveErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		c.rollback(b, e)
		return nil, perr.New(perr.KindCacheIOError, closeErr)
	}

	dst := filepath.Join(c.dir, e.fingerprint)
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		c.rollback(b, e)
		return nil, perr.New(perr.KindCacheIOError, err)
	}

	b.mu.Lock()
	e.status = fresh
	e.materializedAt = time.Now()
	b.cond.Broadcast()
	b.mu.Unlock()

	c.touchLRU(e.key)

	return c.readAndRelease(b, e)
}

// rollback reverts a failed claim: status back to stale, counters
// decremented, waiters woken so they retry instead of hanging on a dead
// in-flight entry. This is the spec.md §9 open-question fix.
func (c *Cache) rollback(b *bucket, e *entry) {
	b.mu.Lock()
	e.status = stale
	e.users--
	b.cond.Broadcast()
	b.mu.Unlock()
	c.incrUsers(-1)
}

// readAndRelease reads the entry's on-disk file to completion and
// decrements both the entry's and the cache's user counts.
func (c *Cache) readAndRelease(b *bucket, e *entry) ([]byte, error) {
	defer func() {
		b.mu.Lock()
		e.users--
		b.cond.Broadcast()
		b.mu.Unlock()
		c.incrUsers(-1)
	}()

	data, err := os.ReadFile(filepath.Join(c.dir, e.fingerprint))
	if err != nil {
		return nil, perr.New(perr.KindCacheIOError, err)
	}
	return data, nil
}

func (c *Cache) incrUsers(delta int) {
	c.mu.Lock()
	c.users += delta
	c.mu.Unlock()
}

// Shutdown blocks until every claimed entry has been released (users
// reaches zero) or ctx expires, then drops the in-memory index. On-disk
// files are left in place.
func (c *Cache) Shutdown(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		done := c.users == 0
		c.mu.Unlock()
		if done {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	for i := range c.buckets {
		c.buckets[i].mu.Lock()
		c.buckets[i].entries = make(map[string]*entry)
		c.buckets[i].mu.Unlock()
	}
	return nil
}

// evictIfIdle removes an LRU-evicted key's bucket entry and on-disk file,
// but only if it is not currently claimed by any reader or resolver
// (spec.md §4.5's eviction-gating note). A claimed entry and its file are
// kept; the LRU has already dropped the key, so the entry is considered
// for eviction again only after a later Get adds the key back.
func (c *Cache) evictIfIdle(key string) {
	fp, bi := c.fingerprint(key)
	b := &c.buckets[bi]
	b.mu.Lock()
	e, ok := b.entries[fp]
	if !ok || e.users != 0 || e.status == inFlight {
		b.mu.Unlock()
		return
	}
	delete(b.entries, fp)
	b.mu.Unlock()
	_ = os.Remove(filepath.Join(c.dir, fp))
}
