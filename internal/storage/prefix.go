package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys. It
// isolates the state of one ledger instance within a shared database,
// which lets tests (and single-process deployments) run several ledgers
// against one backing store.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over keys within this namespace. Callbacks see keys
// with the namespace prefix stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return p.ForEachFrom(prefix, prefix, fn)
}

// ForEachFrom iterates like ForEach starting at the first key >= start.
func (p *PrefixDB) ForEachFrom(prefix, start []byte, fn func(key, value []byte) error) error {
	return p.inner.ForEachFrom(p.prefixed(prefix), p.prefixed(start), func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// Close is a no-op; the inner DB owns the underlying resources.
func (p *PrefixDB) Close() error {
	return nil
}
