package vault

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"serac-go/internal/serac"
)

// ProgressVault prints upload progress of the wrapped vault to out.
type ProgressVault struct {
	serac.Vault
	out      io.Writer
	interval time.Duration
}

// NewProgressVault wraps v. Progress lines are rewritten in place, so out
// should be a terminal.
func NewProgressVault(v serac.Vault, out io.Writer) *ProgressVault {
	return &ProgressVault{Vault: v, out: out, interval: 500 * time.Millisecond}
}

// Put uploads through the wrapped vault while reporting bytes read.
func (p *ProgressVault) Put(ctx context.Context, key string, r io.Reader, size int64, class serac.StorageClass) error {
	pr := &progressReader{r: r, key: key, total: size, out: p.out, interval: p.interval}
	err := p.Vault.Put(ctx, key, pr, size, class)
	pr.print(true)
	return err
}

type progressReader struct {
	r        io.Reader
	key      string
	read     int64
	total    int64
	out      io.Writer
	interval time.Duration
	last     time.Time
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	pr.read += int64(n)
	if time.Since(pr.last) >= pr.interval {
		pr.print(false)
	}
	return n, err
}

func (pr *progressReader) print(done bool) {
	pr.last = time.Now()
	pct := 100.0
	if pr.total > 0 {
		pct = float64(pr.read) * 100 / float64(pr.total)
	}
	fmt.Fprintf(pr.out, "\r%s: %s / %s (%.0f%%)", pr.key,
		humanize.IBytes(uint64(pr.read)), humanize.IBytes(uint64(pr.total)), pct)
	if done {
		fmt.Fprintln(pr.out)
	}
}

// Compile-time check that ProgressVault implements serac.Vault interface
var _ serac.Vault = (*ProgressVault)(nil)
