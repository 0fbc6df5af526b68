// Package store implements the size-bounded LRU key/value engine described
// by the cache's storage contract: unconditional put, conditional put,
// replace, delete, and a touching read, all ordered so that eviction never
// removes the entry an operation is itself installing.
package store

import (
	"sync"
)

// nilIndex terminates the doubly-linked list kept inside the arena.
const nilIndex = int32(-1)

// node is one arena slot. Nodes are addressed by their stable integer index
// into Store.nodes rather than by pointer: moving a node to the tail, or
// unlinking it for eviction, is index rewiring, and a freed slot is pushed
// onto freeList for reuse. This replaces the classic owning/borrowing
// doubly-linked-list pointer pair (and its self-eviction failure mode) with
// a flat, trivially-inspectable representation.
type node struct {
	key   string
	value []byte
	// compressed reports whether value holds zstd-compressed bytes rather
	// than the caller's original bytes.
	compressed bool
	// size is what counts against Store.usedSize: len(key) + len(value) as
	// actually retained (compressed or not).
	size int64

	prev, next int32
	inUse      bool
}

// Store is a size-bounded, LRU-evicting key/value map. It is safe for
// concurrent use: every operation takes Store's single mutex for its full
// duration (see spec: store concurrency is coarse-grained by design).
type Store struct {
	mu sync.Mutex

	nodes    []node
	freeList []int32
	index    map[string]int32

	head, tail int32 // arena indices; nilIndex when the list is empty

	maxSize  int64
	usedSize int64

	// compressionThreshold is the minimum value length, in bytes, at or
	// above which a value is stored zstd-compressed (when compression
	// actually shrinks it). Zero disables compression.
	compressionThreshold int64

	metrics *metrics
}

// New returns a Store bounded to maxSize bytes of combined key+value data.
// compressionThreshold of 0 disables value compression.
func New(maxSize int64, compressionThreshold int64) *Store {
	return &Store{
		index:                make(map[string]int32),
		head:                 nilIndex,
		tail:                 nilIndex,
		maxSize:              maxSize,
		compressionThreshold: compressionThreshold,
		metrics:              newMetrics(),
	}
}

// MaxSize returns the configured capacity in bytes.
func (s *Store) MaxSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSize
}

// UsedSize returns the current combined key+value size of all entries.
func (s *Store) UsedSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedSize
}

// Len returns the number of entries currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

func entrySize(key string, storedValueLen int) int64 {
	return int64(len(key)) + int64(storedValueLen)
}

// Fits reports whether key/value could ever be admitted by Put,
// PutIfAbsent, or Set, on its own, regardless of what else is currently
// stored: it applies the same compression maybeCompress would and
// compares the resulting size against MaxSize. It does not allocate a
// node or otherwise mutate the store. Callers that need to distinguish
// "too large to ever fit" from a conditional failure (key already
// present, key absent) before incurring the cost of the actual
// operation should check this first.
func (s *Store) Fits(key string, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, _ := s.maybeCompress(value)
	return entrySize(key, len(stored)) <= s.maxSize
}

// Put unconditionally stores (key, value). If key is absent it is inserted;
// if present, its value is replaced in place. Returns false (without
// modifying the store) if len(key) plus the retained (possibly compressed)
// value length exceeds MaxSize.
func (s *Store) Put(key string, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, compressed := s.maybeCompress(value)
	newSize := entrySize(key, len(stored))
	if newSize > s.maxSize {
		return false
	}

	if idx, ok := s.index[key]; ok {
		s.updateInPlace(idx, stored, compressed, newSize)
	} else {
		s.insertNew(key, stored, compressed, newSize)
	}
	s.metrics.sets.Inc()
	s.syncGauges()
	return true
}

// PutIfAbsent stores (key, value) only if key is not already present.
// Returns false if key exists, or if len(key) plus the retained (possibly
// compressed) value length exceeds MaxSize.
func (s *Store) PutIfAbsent(key string, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; ok {
		return false
	}

	stored, compressed := s.maybeCompress(value)
	newSize := entrySize(key, len(stored))
	if newSize > s.maxSize {
		return false
	}

	s.insertNew(key, stored, compressed, newSize)
	s.metrics.sets.Inc()
	s.syncGauges()
	return true
}

// Set replaces the value of an already-present key. Returns false if key is
// absent, or if len(key) plus the retained (possibly compressed) value
// length exceeds MaxSize.
func (s *Store) Set(key string, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[key]
	if !ok {
		return false
	}

	stored, compressed := s.maybeCompress(value)
	newSize := entrySize(key, len(stored))
	if newSize > s.maxSize {
		return false
	}

	s.updateInPlace(idx, stored, compressed, newSize)
	s.metrics.sets.Inc()
	s.syncGauges()
	return true
}

// Get copies key's value into the returned slice and moves the entry to the
// tail (most recently used). Returns ok=false if key is absent.
func (s *Store) Get(key string) (value []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found := s.index[key]
	if !found {
		s.metrics.misses.Inc()
		return nil, false
	}

	s.moveToTail(idx)
	n := &s.nodes[idx]
	out, err := s.maybeDecompress(n.value, n.compressed)
	if err != nil {
		// Corrupt compressed payload: treat as a miss rather than handing
		// back garbage bytes to the caller.
		s.metrics.misses.Inc()
		return nil, false
	}
	s.metrics.hits.Inc()
	return out, true
}

// Delete removes key. Returns false if key is absent.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[key]
	if !ok {
		return false
	}

	s.unlinkAndFree(idx)
	s.metrics.deletes.Inc()
	s.syncGauges()
	return true
}

// insertNew allocates a fresh node for key, evicting from the head as
// needed to fit newSize, and links it at the tail.
func (s *Store) insertNew(key string, value []byte, compressed bool, newSize int64) {
	s.evictUntilFits(newSize)

	idx := s.alloc()
	n := &s.nodes[idx]
	n.key = key
	n.value = value
	n.compressed = compressed
	n.size = newSize
	n.inUse = true

	s.index[key] = idx
	s.linkAtTail(idx)
	s.usedSize += newSize
}

// updateInPlace implements the mandated (a,b,c,d) ordering for updating an
// existing key: release its old size, move it to the tail, evict from the
// head until the new value fits, then install the new value and charge its
// new size. Steps (a) and (b) must happen before (c) so that an eviction
// pass can never remove the very entry being updated.
func (s *Store) updateInPlace(idx int32, value []byte, compressed bool, newSize int64) {
	n := &s.nodes[idx]

	// (a) release old size.
	s.usedSize -= n.size

	// (b) move to tail before any eviction can run.
	s.moveToTail(idx)

	// (c) evict from the head until the new value fits. evictUntilFits
	// never touches idx because idx is now at the tail and eviction only
	// ever removes the head.
	s.evictUntilFits(newSize)

	// (d) install the new value and charge its size.
	n = &s.nodes[idx]
	n.value = value
	n.compressed = compressed
	n.size = newSize
	s.usedSize += newSize
}

// evictUntilFits evicts from the LRU head, one entry at a time, until
// usedSize+needed fits within maxSize, or the store is empty.
func (s *Store) evictUntilFits(needed int64) {
	for s.usedSize+needed > s.maxSize && s.head != nilIndex {
		s.evictHead()
	}
}

func (s *Store) evictHead() {
	idx := s.head
	s.unlinkAndFree(idx)
	s.metrics.evictions.Inc()
}

func (s *Store) unlinkAndFree(idx int32) {
	n := &s.nodes[idx]
	s.usedSize -= n.size
	delete(s.index, n.key)
	s.unlink(idx)

	n.key = ""
	n.value = nil
	n.inUse = false
	s.freeList = append(s.freeList, idx)
}

// alloc returns the index of a free node, reusing a freed slot when
// available instead of growing the arena.
func (s *Store) alloc() int32 {
	if n := len(s.freeList); n > 0 {
		idx := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		return idx
	}
	s.nodes = append(s.nodes, node{})
	return int32(len(s.nodes) - 1)
}

func (s *Store) unlink(idx int32) {
	n := &s.nodes[idx]
	if n.prev != nilIndex {
		s.nodes[n.prev].next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nilIndex {
		s.nodes[n.next].prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev, n.next = nilIndex, nilIndex
}

func (s *Store) linkAtTail(idx int32) {
	n := &s.nodes[idx]
	n.prev = s.tail
	n.next = nilIndex
	if s.tail != nilIndex {
		s.nodes[s.tail].next = idx
	} else {
		s.head = idx
	}
	s.tail = idx
}

func (s *Store) moveToTail(idx int32) {
	if s.tail == idx {
		return
	}
	s.unlink(idx)
	s.linkAtTail(idx)
}

func (s *Store) syncGauges() {
	s.metrics.usedBytes.Set(float64(s.usedSize))
	s.metrics.items.Set(float64(len(s.index)))
}

// Stats is a point-in-time snapshot used by the admin status page and the
// "stats" text command.
type Stats struct {
	Items     int64
	UsedBytes int64
	MaxBytes  int64
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
}

// Snapshot returns the current counters. Counter fields reflect the
// lifetime of the process, not just the current contents.
func (s *Store) Snapshot() Stats {
	s.mu.Lock()
	items := int64(len(s.index))
	used := s.usedSize
	max := s.maxSize
	s.mu.Unlock()

	return Stats{
		Items:     items,
		UsedBytes: used,
		MaxBytes:  max,
		Hits:      s.metrics.hitCount(),
		Misses:    s.metrics.missCount(),
		Sets:      s.metrics.setCount(),
		Deletes:   s.metrics.deleteCount(),
		Evictions: s.metrics.evictionCount(),
	}
}
