package memory

import "sync/atomic"

// entryOverhead is the fixed per-entry bookkeeping cost (map slot, entry
// header, timestamps) charged against the memory budget in addition to
// key and value bytes.
const entryOverhead = 100

// Entry is a stored value together with its expiration and access
// metadata. All timestamps are seconds on the monotonic clock that
// callers pass in as now (the server uses seconds since it started).
//
// Entries are immutable once inserted: a SET on an existing key replaces
// the whole entry. Only the last-access timestamp is written in place,
// and only through the atomic Touch.
type Entry struct {
	Value     []byte
	CreatedAt int64

	// ExpiresAt is the absolute expiration time; 0 means no expiration.
	ExpiresAt int64

	lastAccess atomic.Int64
}

// newEntry builds an entry for value with an optional TTL in seconds.
// A ttl <= 0 means no expiration.
func newEntry(value []byte, ttl, now int64) *Entry {
	e := &Entry{Value: value, CreatedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now + ttl
	}
	e.lastAccess.Store(now)
	return e
}

// Expired reports whether the entry's expiration time has passed.
// Entries with no expiration never expire.
func (e *Entry) Expired(now int64) bool {
	return e.ExpiresAt != 0 && e.ExpiresAt <= now
}

// Touch records an access at now. Callers gate this probabilistically;
// the timestamp is an LRU hint, not an exact access record.
func (e *Entry) Touch(now int64) {
	e.lastAccess.Store(now)
}

// LastAccess returns the most recent recorded access time.
func (e *Entry) LastAccess() int64 {
	return e.lastAccess.Load()
}

// EntrySize returns the number of bytes charged against the memory
// budget for an entry with the given key and value lengths.
func EntrySize(keyLen, valueLen int) int64 {
	return int64(keyLen) + int64(valueLen) + entryOverhead
}
