//go:build linux

package staging

import (
	"io/fs"
	"syscall"
	"time"
)

// statData holds platform-specific file metadata extracted from fs.FileInfo.
type statData struct {
	UID   int64
	GID   int64
	Ctime time.Time
}

// extractStatData extracts Unix-specific stat data from a FileInfo.
// ok is false when Sys() is not a *syscall.Stat_t, e.g. for mock filesystems.
func extractStatData(info fs.FileInfo) (data *statData, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, false
	}
	return &statData{
		UID:   int64(stat.Uid),
		GID:   int64(stat.Gid),
		Ctime: time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec),
	}, true
}
