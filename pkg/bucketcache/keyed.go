package bucketcache

import (
	"hash/maphash"
)

// Hasher lets a key type supply its own 64-bit hash to a [Keyed] adapter.
type Hasher interface {
	CacheHash() uint64
}

// Keyed stores values under keys of type K in one table of a [Store].
//
// K is hashed to a 64-bit table key. Distinct keys with the same hash are
// told apart by keeping the original key in the record's meta slot and
// probing up to [MaxChainLength] consecutive table keys. Past that chain a
// Put overwrites the last slot of the chain and the displaced key becomes a
// miss. That loss is accepted, not reported.
//
// Keyed holds no state besides the table name, so it is cheap to create and
// safe for concurrent use.
type Keyed[K comparable] struct {
	store *Store
	table string
	hash  func(K) uint64
}

// KeyedOption configures [Keys].
type KeyedOption[K comparable] func(*Keyed[K])

// WithHash replaces the default hash for K.
func WithHash[K comparable](fn func(K) uint64) KeyedOption[K] {
	return func(k *Keyed[K]) {
		if fn != nil {
			k.hash = fn
		}
	}
}

// Keys returns an adapter for K-typed keys over the named table.
//
// Strings use [StringHash]; types implementing [Hasher] use CacheHash; all
// other types use [maphash.Comparable] with a per-adapter seed.
func Keys[K comparable](s *Store, table string, opts ...KeyedOption[K]) *Keyed[K] {
	k := &Keyed[K]{
		store: s,
		table: table,
		hash:  defaultHash[K](),
	}

	for _, o := range opts {
		o(k)
	}

	return k
}

func defaultHash[K comparable]() func(K) uint64 {
	var zero K

	if _, ok := any(zero).(string); ok {
		return func(key K) uint64 {
			s, _ := any(key).(string)

			return StringHash(s)
		}
	}

	if _, ok := any(zero).(Hasher); ok {
		return func(key K) uint64 {
			h, _ := any(key).(Hasher)

			return h.CacheHash()
		}
	}

	seed := maphash.MakeSeed()

	return func(key K) uint64 {
		return maphash.Comparable(seed, key)
	}
}

// Table returns the underlying table, creating it if needed.
func (k *Keyed[K]) Table() *Table {
	return k.store.GetOrCreateTable(k.table)
}

// Put stores value under key.
//
// The value replaces the chain slot that already holds key, wherever it is
// in the chain. Otherwise it goes to the first slot holding nothing; if
// every slot belongs to another key, the last one is overwritten. Page
// collision rules still apply to the chosen slot.
func (k *Keyed[K]) Put(key K, value any, opts PutOptions) (bool, *Record) {
	tbl := k.Table()

	return tbl.put(k.slotFor(tbl, key), value, key, opts)
}

// slotFor picks the chain position for a Put of key.
func (k *Keyed[K]) slotFor(tbl *Table, key K) uint64 {
	base := k.hash(key)
	match := k.matcher(key)

	free := base + MaxChainLength - 1
	haveFree := false

	for i := range uint64(MaxChainLength) {
		_, snap, live := tbl.probe(base+i, nil)
		if !live {
			if !haveFree {
				free, haveFree = base+i, true
			}

			continue
		}

		if match(snap.meta) {
			return base + i
		}
	}

	return free
}

// Get returns the record for key, or nil.
func (k *Keyed[K]) Get(key K) *Record {
	rec, _, ok := k.get(key)
	if !ok {
		return nil
	}

	return rec
}

// Lookup returns the value for key.
func (k *Keyed[K]) Lookup(key K) (any, bool) {
	_, v, ok := k.get(key)

	return v, ok
}

func (k *Keyed[K]) get(key K) (*Record, any, bool) {
	tbl, ok := k.store.Table(k.table)
	if !ok {
		return nil, nil, false
	}

	base := k.hash(key)
	match := k.matcher(key)

	// Gaps left by removals do not end the chain.
	for i := range uint64(MaxChainLength) {
		if rec, snap, found := tbl.probe(base+i, match); found {
			return tbl.hit(rec, snap, 0)
		}
	}

	tbl.stats.misses.Add(1)

	return nil, nil, false
}

// Remove deletes key. Reports whether it was found.
func (k *Keyed[K]) Remove(key K) bool {
	tbl, ok := k.store.Table(k.table)
	if !ok {
		return false
	}

	base := k.hash(key)
	match := k.matcher(key)

	for i := range uint64(MaxChainLength) {
		if _, _, found := tbl.probe(base+i, match); !found {
			continue
		}

		if tbl.remove(base+i, match) {
			return true
		}
	}

	tbl.stats.removeMisses.Add(1)

	return false
}

func (k *Keyed[K]) matcher(key K) func(meta any) bool {
	return func(meta any) bool {
		m, ok := meta.(K)

		return ok && m == key
	}
}
