package app

import (
	"os"
	"path/filepath"
	"time"
)

// StorageUsage reports what one of the station's directories (track cache,
// fallback library, data dir) holds on disk.
type StorageUsage struct {
	Dir            string    `json:"dir"`
	Exists         bool      `json:"exists"`
	Files          int       `json:"files"`
	SizeBytes      int64     `json:"sizeBytes"`
	AllocatedBytes int64     `json:"allocatedBytes"`
	ScannedAt      time.Time `json:"scannedAt"`
}

// ScanStorageUsage walks dir and totals file sizes. Allocated bytes count
// actual disk blocks, which differ from logical size for sparse files.
func ScanStorageUsage(dir string) StorageUsage {
	usage := StorageUsage{
		Dir:       filepath.Clean(dir),
		ScannedAt: time.Now().UTC(),
	}
	if dir == "" {
		return usage
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return usage
	}
	usage.Exists = true

	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		fileInfo, err := d.Info()
		if err != nil {
			return nil
		}
		usage.Files++
		usage.SizeBytes += fileInfo.Size()
		usage.AllocatedBytes += fileAllocatedBytes(fileInfo)
		return nil
	})
	return usage
}
