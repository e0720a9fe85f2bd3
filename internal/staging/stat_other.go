//go:build !linux

package staging

import (
	"io/fs"
	"time"
)

type statData struct {
	UID   int64
	GID   int64
	Ctime time.Time
}

func extractStatData(fs.FileInfo) (*statData, bool) {
	return nil, false
}
