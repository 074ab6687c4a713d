package storage

import (
	"os"
	"path/filepath"
)

// Usage describes the disk footprint of a snapshot location.
type Usage struct {
	Bytes     int64 // size of the snapshot file, 0 when missing
	Leftovers int   // temp files left behind by interrupted persists
	LeftBytes int64
}

// SnapshotUsage stats the snapshot at path and the temp files next to it that a
// crashed WriteSnapshot may have left. A missing snapshot is not an error.
func SnapshotUsage(path string) (Usage, error) {
	var u Usage
	info, err := os.Stat(path)
	switch {
	case err == nil:
		u.Bytes = info.Size()
	case !os.IsNotExist(err):
		return u, err
	}
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*"))
	if err != nil {
		return u, err
	}
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		u.Leftovers++
		u.LeftBytes += fi.Size()
	}
	return u, nil
}
