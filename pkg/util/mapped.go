package util

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MappedFile is a read-only view of a file's bytes.
//
// Data is backed by a memory mapping when possible and by a heap copy when
// mmap fails. Data must not be retained after Close.
type MappedFile struct {
	// Path is the file that was mapped.
	Path string

	// Data is the mapped region. Nil for empty files.
	Data mmap.MMap

	// Size is the file size in bytes.
	Size int64

	file   *os.File
	mapped bool
}

// MapFile opens path and maps it read-only. Empty files and mmap failures
// fall back to a regular read, so callers always get the full content.
func MapFile(path string) (*MappedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file %q: %w", path, err)
	}

	// Zero bytes cannot be mapped.
	if stat.Size() == 0 {
		file.Close()
		return &MappedFile{Path: path}, nil
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		fallback, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("mmap failed and fallback failed for %q: mmap error: %v, read error: %w",
				path, err, readErr)
		}
		return &MappedFile{Path: path, Data: mmap.MMap(fallback), Size: int64(len(fallback))}, nil
	}

	return &MappedFile{
		Path:   path,
		Data:   data,
		Size:   stat.Size(),
		file:   file,
		mapped: true,
	}, nil
}

// Close unmaps the region and closes the file. Safe to call more than once.
func (mf *MappedFile) Close() error {
	if mf == nil {
		return nil
	}
	var err error
	if mf.mapped {
		err = mf.Data.Unmap()
		mf.mapped = false
	}
	mf.Data = nil
	if mf.file != nil {
		if cerr := mf.file.Close(); err == nil {
			err = cerr
		}
		mf.file = nil
	}
	return err
}

// ScanFile maps path, hands the bytes to fn and unmaps again. It is meant for
// cheap content probes where copying the file would be wasted work.
func ScanFile(path string, fn func(data []byte) bool) (bool, error) {
	mf, err := MapFile(path)
	if err != nil {
		return false, err
	}
	defer mf.Close()
	return fn(mf.Data), nil
}
