package memory

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

const (
	// DefaultShardCount is the default number of shards.
	DefaultShardCount = 2048

	// Shard-local counter deltas are flushed into the global byte
	// counter when either threshold is reached. The global counter may
	// therefore lag by at most numShards*counterFlushBytes.
	counterFlushOps   = 256
	counterFlushBytes = 64 << 10

	// touchPercent is the probability (in percent) that a read updates
	// the entry's last-access timestamp.
	touchPercent = 10
)

// Options configures a Store.
type Options struct {
	// NumShards is the shard count; must be a power of two.
	// Zero selects DefaultShardCount.
	NumShards int

	// Policy selects behavior under memory pressure.
	Policy Policy

	// MaxMemory is the memory budget in bytes; 0 means unlimited.
	MaxMemory int64

	// SampleSize is the number of keys sampled per eviction attempt.
	// Zero selects DefaultSampleSize.
	SampleSize int
}

// Store is a sharded in-memory key-value store.
type Store struct {
	shards    []*shard
	shardMask uint64

	policy     Policy
	maxMemory  int64
	sampleSize int

	// flushBytes is the per-shard delta threshold. With a memory
	// budget configured it shrinks so the worst-case global counter
	// lag (numShards * flushBytes) stays within 1% of the budget.
	flushBytes int64

	usedBytes atomic.Int64
	keyCount  atomic.Int64
	evicted   atomic.Uint64
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*Entry

	// Uncredited byte delta and the number of operations since the
	// last flush into the global counter. Guarded by mu.
	pendingBytes int64
	pendingOps   int
}

// New creates a store. NumShards must be a power of two.
func New(opts Options) (*Store, error) {
	n := opts.NumShards
	if n == 0 {
		n = DefaultShardCount
	}
	if n < 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("shard count %d is not a power of two", n)
	}

	sample := opts.SampleSize
	if sample <= 0 {
		sample = DefaultSampleSize
	}

	flushBytes := int64(counterFlushBytes)
	if opts.MaxMemory > 0 {
		if capped := opts.MaxMemory / 100 / int64(n); capped < flushBytes {
			flushBytes = max(capped, 1)
		}
	}

	s := &Store{
		shards:     make([]*shard, n),
		shardMask:  uint64(n - 1),
		policy:     opts.Policy,
		maxMemory:  opts.MaxMemory,
		sampleSize: sample,
		flushBytes: flushBytes,
	}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]*Entry)}
	}
	return s, nil
}

// shardFor maps a key to its shard using the low bits of MurmurHash3.
func (s *Store) shardFor(key []byte) *shard {
	return s.shards[murmur3.Sum64(key)&s.shardMask]
}

// Set inserts or replaces the entry for key. A ttl > 0 sets an
// expiration that many seconds after now. Reports whether the key
// already existed.
func (s *Store) Set(key, value []byte, ttl, now int64) bool {
	sh := s.shardFor(key)
	e := newEntry(value, ttl, now)
	size := EntrySize(len(key), len(value))

	sh.mu.Lock()
	k := string(key)
	old, existed := sh.items[k]
	sh.items[k] = e
	delta := size
	if existed {
		delta -= EntrySize(len(k), len(old.Value))
	}
	sh.accountLocked(s, delta)
	sh.mu.Unlock()

	if !existed {
		s.keyCount.Add(1)
	}
	return existed
}

// Get returns the value for key if present and unexpired. Expired
// entries are removed lazily. Under allkeys-lru with a memory budget
// the access probabilistically refreshes the entry's LRU timestamp.
func (s *Store) Get(key []byte, now int64) ([]byte, bool) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.items[string(key)]
	if !ok {
		sh.mu.RUnlock()
		return nil, false
	}
	if e.Expired(now) {
		sh.mu.RUnlock()
		s.reapExpired(sh, key, now)
		return nil, false
	}
	if s.shouldTouch() {
		e.Touch(now)
	}
	v := e.Value
	sh.mu.RUnlock()
	return v, true
}

// shouldTouch gates LRU timestamp updates: skipped entirely when no
// memory budget is set or the policy is not allkeys-lru, otherwise
// taken with probability touchPercent.
func (s *Store) shouldTouch() bool {
	if s.maxMemory == 0 || s.policy != AllKeysLRU {
		return false
	}
	return rand.IntN(100) < touchPercent
}

// reapExpired removes key if it is still present and expired.
func (s *Store) reapExpired(sh *shard, key []byte, now int64) {
	sh.mu.Lock()
	k := string(key)
	e, ok := sh.items[k]
	if !ok || !e.Expired(now) {
		sh.mu.Unlock()
		return
	}
	delete(sh.items, k)
	sh.accountLocked(s, -EntrySize(len(k), len(e.Value)))
	sh.mu.Unlock()
	s.keyCount.Add(-1)
}

// Del removes the given keys. Returns the number actually removed.
func (s *Store) Del(keys [][]byte) int {
	removed := 0
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.Lock()
		k := string(key)
		if e, ok := sh.items[k]; ok {
			delete(sh.items, k)
			sh.accountLocked(s, -EntrySize(len(k), len(e.Value)))
			removed++
			sh.mu.Unlock()
			s.keyCount.Add(-1)
			continue
		}
		sh.mu.Unlock()
	}
	return removed
}

// Exists counts how many of the given keys are present and unexpired.
// Duplicate keys count once per occurrence.
func (s *Store) Exists(keys [][]byte, now int64) int {
	count := 0
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.RLock()
		e, ok := sh.items[string(key)]
		if ok && !e.Expired(now) {
			count++
		}
		sh.mu.RUnlock()
	}
	return count
}

// Keys snapshots all unexpired keys. The snapshot is consistent per
// shard but not across shards: an insertion racing with the scan may or
// may not appear. O(keys); intended for KEYS only.
func (s *Store) Keys(now int64) [][]byte {
	var out [][]byte
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.items {
			if !e.Expired(now) {
				out = append(out, []byte(k))
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the global key count. Expired-but-unreaped entries may
// still be counted.
func (s *Store) Len() int64 {
	return s.keyCount.Load()
}

// Clear removes every entry and resets the byte and key counters.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[string]*Entry)
		sh.pendingBytes = 0
		sh.pendingOps = 0
		sh.mu.Unlock()
	}
	s.usedBytes.Store(0)
	s.keyCount.Store(0)
}

// UsedMemory returns the global byte counter. The value lags exact
// usage by at most the sum of unflushed shard deltas; SyncCounters
// forces convergence.
func (s *Store) UsedMemory() int64 {
	return s.usedBytes.Load()
}

// SyncCounters flushes every shard's pending byte delta into the
// global counter. After a quiescent SyncCounters, UsedMemory equals
// the sum of per-entry sizes.
func (s *Store) SyncCounters() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		if sh.pendingBytes != 0 {
			s.usedBytes.Add(sh.pendingBytes)
			sh.pendingBytes = 0
		}
		sh.pendingOps = 0
		sh.mu.Unlock()
	}
}

// Policy returns the configured eviction policy.
func (s *Store) Policy() Policy { return s.policy }

// MaxMemory returns the configured memory budget (0 = unlimited).
func (s *Store) MaxMemory() int64 { return s.maxMemory }

// EvictedKeys returns the number of keys evicted under memory pressure.
func (s *Store) EvictedKeys() uint64 { return s.evicted.Load() }

// NumShards returns the shard count.
func (s *Store) NumShards() int { return len(s.shards) }

// accountLocked records a byte delta against the shard and flushes the
// accumulated delta into the global counter once a threshold is hit.
// Caller holds sh.mu.
func (sh *shard) accountLocked(s *Store, delta int64) {
	sh.pendingBytes += delta
	sh.pendingOps++
	p := sh.pendingBytes
	if p < 0 {
		p = -p
	}
	if p >= s.flushBytes || sh.pendingOps >= counterFlushOps {
		s.usedBytes.Add(sh.pendingBytes)
		sh.pendingBytes = 0
		sh.pendingOps = 0
	}
}
