package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"launcher-core/internal/launcher"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for testing and is safe for concurrent use.
type MemoryVault struct {
	content map[string][]byte // hash -> blob
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{content: make(map[string][]byte)}
}

// Commit reads the staged file into memory.
func (m *MemoryVault) Commit(ctx context.Context, hash string, blob *launcher.StagedBlob) error {
	f, err := blob.Open()
	if err != nil {
		return fmt.Errorf("opening staged blob: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != blob.Size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", blob.Size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[hash] = data
	return nil
}

// Open returns a reader over the stored blob.
func (m *MemoryVault) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.content[hash]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", hash, launcher.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryVault) Exists(ctx context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[hash]
	return ok, nil
}

func (m *MemoryVault) Delete(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, hash)
	return nil
}

func (m *MemoryVault) Location(hash string) string {
	return "memory://" + hash
}

// Overwrite replaces a stored blob without rehashing. Tests use it to
// simulate on-disk corruption.
func (m *MemoryVault) Overwrite(hash string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[hash] = bytes.Clone(data)
}

// Len returns the number of stored blobs.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// ValidateSetup always succeeds for in-memory vaults.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemoryVault implements launcher.Vault interface
var _ launcher.Vault = (*MemoryVault)(nil)
