package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"serac-go/internal/serac"
	"serac-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault()
}

// FailingVault wraps a vault and fails selected operations.
type FailingVault struct {
	serac.Vault

	mu         sync.Mutex
	listErr    error
	getErr     error
	putErrs    map[string]error // key prefix -> error
	putTrigger int              // fail puts only after this many succeeded
	puts       int
}

// NewFailingVault wraps v. Nothing fails until configured.
func NewFailingVault(v serac.Vault) *FailingVault {
	return &FailingVault{Vault: v, putErrs: make(map[string]error)}
}

// FailList makes List fail with err.
func (f *FailingVault) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailGet makes Get fail with err.
func (f *FailingVault) FailGet(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// FailPut makes Put of keys starting with prefix fail with err.
func (f *FailingVault) FailPut(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErrs[prefix] = err
}

// FailPutAfter delays FailPut failures until n puts have succeeded.
func (f *FailingVault) FailPutAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putTrigger = n
}

// Heal clears all configured failures.
func (f *FailingVault) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr, f.getErr = nil, nil
	f.putErrs = make(map[string]error)
	f.putTrigger = 0
}

func (f *FailingVault) List(ctx context.Context, prefix string) ([]serac.ObjectInfo, error) {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Vault.List(ctx, prefix)
}

func (f *FailingVault) Get(ctx context.Context, key string, w io.Writer) error {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Vault.Get(ctx, key, w)
}

func (f *FailingVault) Put(ctx context.Context, key string, r io.Reader, size int64, class serac.StorageClass) error {
	f.mu.Lock()
	var err error
	if f.puts >= f.putTrigger {
		for prefix, e := range f.putErrs {
			if strings.HasPrefix(key, prefix) {
				err = e
				break
			}
		}
	}
	f.mu.Unlock()

	if err != nil {
		io.Copy(io.Discard, r)
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := f.Vault.Put(ctx, key, r, size, class); err != nil {
		return err
	}

	f.mu.Lock()
	f.puts++
	f.mu.Unlock()
	return nil
}

// Compile-time check
var _ serac.Vault = (*FailingVault)(nil)
