package memory

import (
	"math/rand/v2"

	"github.com/spaolacci/murmur3"
)

const (
	// DefaultSampleSize is the number of keys sampled per eviction
	// attempt when none is configured.
	DefaultSampleSize = 5

	// maxEvictionsPerCycle bounds the keys removed by one eviction
	// trigger so a single SET never absorbs an unbounded latency hit;
	// the loop resumes on the next trigger or tick.
	maxEvictionsPerCycle = 32
)

// EnsureCapacity makes room for an insert of size bytes. It returns
// true when the insert fits the budget, evicting first if the policy
// allows. Under NoEviction it returns false once the budget would be
// exceeded; the caller rejects the write.
func (s *Store) EnsureCapacity(size, now int64) bool {
	if s.maxMemory == 0 {
		return true
	}
	if s.usedBytes.Load()+size <= s.maxMemory {
		return true
	}
	if s.policy == NoEviction {
		return false
	}

	s.SyncCounters()
	for i := 0; i < maxEvictionsPerCycle; i++ {
		if s.usedBytes.Load()+size <= s.maxMemory {
			return true
		}
		if s.evictOne(now) == 0 {
			break
		}
	}
	return s.usedBytes.Load()+size <= s.maxMemory
}

// RunEvictionCycle is the periodic pressure check: while the store is
// over budget it evicts keys, up to the per-cycle bound. Returns the
// number of keys evicted.
func (s *Store) RunEvictionCycle(now int64) int {
	if s.maxMemory == 0 || s.policy == NoEviction {
		return 0
	}
	if s.usedBytes.Load() <= s.maxMemory {
		return 0
	}

	s.SyncCounters()
	n := 0
	for n < maxEvictionsPerCycle && s.usedBytes.Load() > s.maxMemory {
		if s.evictOne(now) == 0 {
			break
		}
		n++
	}
	return n
}

// candidate is one sampled key.
type candidate struct {
	shardIdx   int
	key        string
	lastAccess int64
	size       int64
}

// evictOne samples sampleSize keys from random shards and removes one
// according to the policy. Returns the bytes freed, 0 when nothing
// could be evicted.
func (s *Store) evictOne(now int64) int64 {
	samples := s.sample()
	if len(samples) == 0 {
		return 0
	}

	var victim candidate
	switch s.policy {
	case AllKeysRandom:
		victim = samples[rand.IntN(len(samples))]
	default:
		victim = oldestOf(samples)
	}
	return s.remove(victim)
}

// sample draws up to sampleSize keys, one from each randomly chosen
// shard. Shards hit while empty contribute nothing, so fewer than
// sampleSize candidates may be returned.
func (s *Store) sample() []candidate {
	samples := make([]candidate, 0, s.sampleSize)
	for i := 0; i < s.sampleSize; i++ {
		idx := rand.IntN(len(s.shards))
		sh := s.shards[idx]

		sh.mu.RLock()
		// Map iteration order is randomized, so the first key visited
		// is an adequate random pick.
		for k, e := range sh.items {
			samples = append(samples, candidate{
				shardIdx:   idx,
				key:        k,
				lastAccess: e.LastAccess(),
				size:       EntrySize(len(k), len(e.Value)),
			})
			break
		}
		sh.mu.RUnlock()
	}
	return samples
}

// oldestOf picks the least-recently-accessed candidate. Ties break by
// shard index, then by key hash, so the choice is deterministic for a
// given sample.
func oldestOf(samples []candidate) candidate {
	victim := samples[0]
	for _, c := range samples[1:] {
		switch {
		case c.lastAccess < victim.lastAccess:
			victim = c
		case c.lastAccess == victim.lastAccess:
			if c.shardIdx < victim.shardIdx ||
				(c.shardIdx == victim.shardIdx && keyHash(c.key) < keyHash(victim.key)) {
				victim = c
			}
		}
	}
	return victim
}

func keyHash(k string) uint64 {
	return murmur3.Sum64([]byte(k))
}

// remove deletes the victim if still present, crediting the global
// counters immediately so eviction progress is visible to the budget
// check within the same cycle.
func (s *Store) remove(c candidate) int64 {
	sh := s.shards[c.shardIdx]

	sh.mu.Lock()
	e, ok := sh.items[c.key]
	if !ok {
		sh.mu.Unlock()
		return 0
	}
	delete(sh.items, c.key)
	size := EntrySize(len(c.key), len(e.Value))
	sh.mu.Unlock()

	s.usedBytes.Add(-size)
	s.keyCount.Add(-1)
	s.evicted.Add(1)
	return size
}
