package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"vestake/storage"
)

// Manager reads and writes ledger state on top of a key-value database.
// Writes accumulate in a journaled overlay until Commit flushes them as one
// batch; Snapshot and RevertToSnapshot undo nested groups of writes.
type Manager struct {
	mu      sync.RWMutex
	db      storage.Database
	dirty   map[string]entry
	journal []change
}

type entry struct {
	value   []byte
	deleted bool
}

type change struct {
	key     string
	prev    entry
	existed bool
}

// digestKey holds the running commit digest. It is stored unhashed so it can
// never collide with a Keccak-derived state key.
var digestKey = []byte("vestake/commit-digest")

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]entry)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut RLP encodes value and stages it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stage(string(kvKey(key)), entry{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.read(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete stages the removal of key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stage(string(kvKey(key)), entry{deleted: true})
	return nil
}

func (m *Manager) read(hashed []byte) ([]byte, bool, error) {
	m.mu.RLock()
	staged, ok := m.dirty[string(hashed)]
	m.mu.RUnlock()
	if ok {
		if staged.deleted {
			return nil, false, nil
		}
		return staged.value, true, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, len(data) > 0, nil
}

func (m *Manager) stage(key string, next entry) {
	prev, existed := m.dirty[key]
	m.journal = append(m.journal, change{key: key, prev: prev, existed: existed})
	m.dirty[key] = next
}

// Snapshot returns an identifier for the current overlay revision.
func (m *Manager) Snapshot() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.journal)
}

// RevertToSnapshot undoes every write staged after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		c := m.journal[i]
		if c.existed {
			m.dirty[c.key] = c.prev
		} else {
			delete(m.dirty, c.key)
		}
	}
	if id < len(m.journal) {
		m.journal = m.journal[:id]
	}
}

// Dirty reports the number of keys staged for the next commit.
func (m *Manager) Dirty() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dirty)
}

// Digest returns the commit digest of the persisted state. Each commit folds
// its sorted writes into the previous digest, so two ledgers that applied the
// same history report the same value. A fresh database reports the zero hash.
func (m *Manager) Digest() (common.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.digest()
}

func (m *Manager) digest() (common.Hash, error) {
	data, err := m.db.Get(digestKey)
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, nil
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: read digest: %w", err)
	}
	return common.BytesToHash(data), nil
}

// Commit flushes the staged writes to the database in a single batch together
// with the updated commit digest, then resets the journal.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) == 0 {
		m.journal = nil
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for key := range m.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	prev, err := m.digest()
	if err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	buf.Write(prev.Bytes())
	batch := m.db.NewBatch()
	for _, key := range keys {
		staged := m.dirty[key]
		writeDelimited(buf, []byte(key))
		if staged.deleted {
			buf.WriteByte(0)
			batch.Delete([]byte(key))
			continue
		}
		buf.WriteByte(1)
		writeDelimited(buf, staged.value)
		batch.Put([]byte(key), staged.value)
	}
	next := blake3.Sum256(buf.Bytes())
	batch.Put(digestKey, next[:])
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]entry)
	m.journal = nil
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = make(map[string]entry)
	m.journal = nil
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	buf.Write(size[:])
	buf.Write(data)
}
