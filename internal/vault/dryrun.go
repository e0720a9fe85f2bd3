package vault

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"serac-go/internal/serac"
)

// DryRunVault reads from the wrapped vault but never writes to it. Put
// consumes the content so a dry run stages and hashes exactly as a real
// run would.
type DryRunVault struct {
	serac.Vault
	logger serac.Logger
}

// NewDryRunVault wraps v.
func NewDryRunVault(v serac.Vault, logger serac.Logger) *DryRunVault {
	return &DryRunVault{Vault: v, logger: logger}
}

// Put discards the content and logs what would have been uploaded.
func (d *DryRunVault) Put(ctx context.Context, key string, r io.Reader, size int64, class serac.StorageClass) error {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
	}
	d.logger.Info("dry run: skipping upload", "key", key, "size", humanize.IBytes(uint64(size)), "class", class)
	return nil
}

// Compile-time check that DryRunVault implements serac.Vault interface
var _ serac.Vault = (*DryRunVault)(nil)
