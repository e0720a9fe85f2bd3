package serac

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"serac-go/internal/model"
)

var reportHeader = []string{"tar File", "Filename", "Size", "Modified", "SHA"}

// WriteReport writes the catalog as CSV: for every name (sorted) the
// authoritative record followed by its superseded versions, newest first.
// Text fields are always quoted and numbers never are, so spreadsheets keep
// digests and ids as text. Lines end with CRLF.
func WriteReport(w io.Writer, catalog *Catalog) error {
	bw := bufio.NewWriter(w)

	quoted := make([]string, len(reportHeader))
	for i, h := range reportHeader {
		quoted[i] = quoteField(h)
	}
	bw.WriteString(strings.Join(quoted, ",") + "\r\n")

	for _, name := range catalog.Names() {
		for _, e := range catalog.History(name) {
			writeReportRow(bw, e)
		}
	}
	return bw.Flush()
}

func writeReportRow(w *bufio.Writer, e *CatalogEntry) {
	r := e.Record
	fields := []string{
		quoteField(string(e.ChunkID) + archiveSuffix),
		quoteField(r.Name),
		strconv.FormatInt(r.Size, 10),
		quoteField(model.FormatModified(r.Modified)),
		quoteField(r.Digest),
	}
	w.WriteString(strings.Join(fields, ",") + "\r\n")
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// reportKeyAttempts bounds how many following seconds are tried when a
// report key is already taken by an earlier run.
const reportKeyAttempts = 10

// publishReport uploads the report of catalog and returns its key.
func (s *Service) publishReport(ctx context.Context, catalog *Catalog) (string, error) {
	var buf bytes.Buffer
	if err := WriteReport(&buf, catalog); err != nil {
		return "", fmt.Errorf("%w: writing report: %w", ErrReportPublish, err)
	}

	now := s.clock.Now()
	for i := range reportKeyAttempts {
		key := ReportKey(now.Add(time.Duration(i) * time.Second))
		err := s.vault.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), StorageClassStandard)
		if errors.Is(err, ErrObjectExists) {
			s.logger.Debug("report key taken", "key", key)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: uploading %s: %w", ErrReportPublish, key, err)
		}
		s.logger.Info("report published", "key", key, "files", catalog.Len())
		return key, nil
	}
	return "", fmt.Errorf("%w: no free report key after %s: %w", ErrReportPublish, ReportKey(now), ErrObjectExists)
}
