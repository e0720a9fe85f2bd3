package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"serac-go/internal/serac"
)

type memoryObject struct {
	data       []byte
	class      serac.StorageClass
	modifiedAt time.Time
}

// MemoryVault is an in-memory implementation of the Vault interface,
// useful for testing. It is safe for concurrent use.
type MemoryVault struct {
	objects map[string]*memoryObject
	puts    []string // keys in the order they were stored
	mu      sync.RWMutex
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{objects: make(map[string]*memoryObject)}
}

// List returns the objects whose key starts with prefix, sorted by key.
func (m *MemoryVault) List(ctx context.Context, prefix string) ([]serac.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []serac.ObjectInfo
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, serac.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			StorageClass: obj.class,
			ModifiedAt:   obj.modifiedAt,
		})
	}
	slices.SortFunc(out, func(a, b serac.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Get writes the object's content to w.
func (m *MemoryVault) Get(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", serac.ErrObjectNotFound, key)
	}

	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// Put stores the object. Existing keys are never overwritten.
func (m *MemoryVault) Put(ctx context.Context, key string, r io.Reader, size int64, class serac.StorageClass) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; ok {
		return fmt.Errorf("%w: %s", serac.ErrObjectExists, key)
	}
	m.objects[key] = &memoryObject{data: data, class: class, modifiedAt: time.Now()}
	m.puts = append(m.puts, key)
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Puts returns the keys stored so far, in order.
func (m *MemoryVault) Puts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.puts)
}

// Object returns a copy of a stored object's content, or nil.
func (m *MemoryVault) Object(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if obj, ok := m.objects[key]; ok {
		return bytes.Clone(obj.data)
	}
	return nil
}

// Compile-time check that MemoryVault implements serac.Vault interface
var _ serac.Vault = (*MemoryVault)(nil)
