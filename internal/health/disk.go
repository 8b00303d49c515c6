package health

import (
	"context"
)

// DiskUsage describes the files of the persistent cache directory.
type DiskUsage struct {
	Directory   string `json:"directory"`
	TotalSize   int64  `json:"total_size"`
	FileCount   int    `json:"file_count"`
	AvgFileSize int64  `json:"avg_file_size"`
	Free        int64  `json:"disk_free"`
}

// DiskSource is a cache level stored as files in a directory.
type DiskSource interface {
	Dir() string
	DiskUsage(ctx context.Context) (files int, bytes int64, err error)
}

// MeasureDisk walks the source directory and reads the free space of its
// file system.
func MeasureDisk(ctx context.Context, src DiskSource) (*DiskUsage, error) {
	files, size, err := src.DiskUsage(ctx)
	if err != nil {
		return nil, err
	}

	usage := &DiskUsage{
		Directory: src.Dir(),
		TotalSize: size,
		FileCount: files,
	}
	if files > 0 {
		usage.AvgFileSize = size / int64(files)
	}

	free, err := freeSpace(usage.Directory)
	if err != nil {
		return nil, err
	}
	usage.Free = free
	return usage, nil
}
