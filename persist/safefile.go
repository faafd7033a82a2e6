package persist

import (
	"os"
	"path/filepath"
)

// A SafeFile is a file that is atomically renamed into place when Commit is
// called. Until then, writes land in a sibling temp file so that a reader of
// the final path never observes a partially-written file. The chunk
// metadata stores do not use it (header-mode metadata is rewritten in place
// in the chunk file), and the ring module keeps no on-disk snapshot.
type SafeFile struct {
	*os.File
	finalName string
}

// NewSafeFile creates a new SafeFile. The file is created in the same
// directory as name so that the final os.Rename is guaranteed to be within a
// single filesystem.
func NewSafeFile(name string) (*SafeFile, error) {
	absName, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}
	tempName := absName + ".tmp." + RandomSuffix()
	f, err := os.OpenFile(tempName, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	return &SafeFile{File: f, finalName: absName}, nil
}

// Commit syncs and closes the temp file, then atomically renames it onto the
// SafeFile's final path.
func (sf *SafeFile) Commit() error {
	if err := sf.Sync(); err != nil {
		sf.File.Close()
		return err
	}
	if err := sf.File.Close(); err != nil {
		return err
	}
	return os.Rename(sf.Name(), sf.finalName)
}
