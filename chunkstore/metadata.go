package chunkstore

import (
	"encoding/binary"
	"os"

	"github.com/pkg/xattr"

	"github.com/chfsd/ringfs/modules"
)

// chunkMeta is a chunk file's persisted metadata: its declared chunk size,
// cache-state flags, and logical payload size.
type chunkMeta struct {
	ChunkSize uint64
	Flags     modules.CacheFlags
	Size      uint64
}

// MetadataStore persists and retrieves a chunk file's metadata. Two
// implementations are selected at configuration time (config.Config.UseXattr):
// XattrMetadata, which stores it as three extended attributes, and
// HeaderMetadata, which stores it as a fixed header at offset 0 of the
// chunk file for filesystems without xattr support.
type MetadataStore interface {
	// Get reads path's metadata.
	Get(path string) (chunkMeta, error)
	// Set writes path's metadata. Setting is idempotent.
	Set(path string, m chunkMeta) error
	// HeaderSize returns the number of bytes this store reserves at the
	// front of every chunk file for its own bookkeeping (the original
	// implementation's "msize"). XattrMetadata returns 0; HeaderMetadata
	// returns the size of its on-disk header struct. Every payload
	// read/write offset into a chunk file must be shifted by this amount.
	HeaderSize() int64
}

const (
	xattrChunkSize  = "user.chunk_size"
	xattrCacheFlags = "user.cache_flags"
	xattrSize       = "user.size"
)

// XattrMetadata stores chunk metadata as three named extended attributes,
// matching fs_null.c's USE_XATTR mode.
type XattrMetadata struct{}

func (XattrMetadata) HeaderSize() int64 { return 0 }

func (XattrMetadata) Get(path string) (chunkMeta, error) {
	var m chunkMeta
	cs, err := xattr.Get(path, xattrChunkSize)
	if err != nil {
		return m, err
	}
	m.ChunkSize = binary.LittleEndian.Uint64(cs)

	fl, err := xattr.Get(path, xattrCacheFlags)
	if err != nil {
		return m, err
	}
	m.Flags = modules.CacheFlags(binary.LittleEndian.Uint16(fl))

	sz, err := xattr.Get(path, xattrSize)
	if err != nil {
		return m, err
	}
	m.Size = binary.LittleEndian.Uint64(sz)
	return m, nil
}

func (XattrMetadata) Set(path string, m chunkMeta) error {
	var cs [8]byte
	binary.LittleEndian.PutUint64(cs[:], m.ChunkSize)
	if err := xattr.Set(path, xattrChunkSize, cs[:]); err != nil {
		return err
	}

	var fl [2]byte
	binary.LittleEndian.PutUint16(fl[:], uint16(m.Flags))
	if err := xattr.Set(path, xattrCacheFlags, fl[:]); err != nil {
		return err
	}

	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], m.Size)
	return xattr.Set(path, xattrSize, sz[:])
}

// headerSize is the on-disk size of a HeaderMetadata header: chunk_size
// (8 bytes) + msize (2 bytes) + flags (2 bytes), padded to an 8-byte
// alignment the way the original C struct would be.
const headerSize = 16

// HeaderMetadata stores chunk metadata as a fixed 16-byte header at offset
// 0 of the chunk file, for filesystems that don't support extended
// attributes (fs_null.c's non-USE_XATTR struct metadata). The logical
// payload begins immediately after the header.
type HeaderMetadata struct{}

func (HeaderMetadata) HeaderSize() int64 { return headerSize }

// Get reads the header and derives Size from the file's actual length:
// header mode has no separate size field (only chunk_size/msize/flags are
// in the struct), so the payload length is whatever is on disk past the
// header.
func (HeaderMetadata) Get(path string) (chunkMeta, error) {
	var m chunkMeta
	f, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer f.Close()

	var buf [headerSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return m, err
	}
	m.ChunkSize = binary.LittleEndian.Uint64(buf[0:8])
	m.Flags = modules.CacheFlags(binary.LittleEndian.Uint16(buf[10:12]))

	fi, err := f.Stat()
	if err != nil {
		return m, err
	}
	if fi.Size() > headerSize {
		m.Size = uint64(fi.Size() - headerSize)
	}
	return m, nil
}

// Set writes the header fields and truncates the file so that its length
// past the header matches m.Size. A directory has no file to carry a
// header, so Set records nothing for one and returns nil.
func (HeaderMetadata) Set(path string, m chunkMeta) error {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf [headerSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], m.ChunkSize)
	binary.LittleEndian.PutUint16(buf[8:10], headerSize)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(m.Flags))
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return err
	}
	return f.Truncate(headerSize + int64(m.Size))
}
