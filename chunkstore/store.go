package chunkstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chfsd/ringfs/chfserr"
	"github.com/chfsd/ringfs/modules"
)

// POSIX-style mode encoding: the low 16 bits are the familiar mode_t
// (format bits + permission bits), the bits above that carry the
// cache-state flags folded into the same word the wire protocol calls
// "emode".
const (
	modeFmt uint32 = 0170000
	modeReg uint32 = 0100000
	modeDir uint32 = 0040000
	modeLnk uint32 = 0120000
)

func modeMask(emode uint32) uint32            { return emode & 0xFFFF }
func flagsFromMode(emode uint32) modules.CacheFlags { return modules.CacheFlags(emode >> 16) }
func modeFlags(posixMode uint32, flags modules.CacheFlags) uint32 {
	return (posixMode & 0xFFFF) | (uint32(flags) << 16)
}

// Ownership answers whether this server owns a given key, letting the
// store implement unlink_chunk_all without importing the ring package
// directly (accept-interfaces: the only ring method chunkstore needs).
type Ownership interface {
	IsInCharge(key []byte) bool
}

// A Store is a chunk-addressed, write-back cache file backend rooted at a
// local directory.
type Store struct {
	root        string
	backendRoot string
	meta        MetadataStore
	backend     BackendSink
	owner       Ownership
	locks       *lockTable
	flush       *FlushWorker
}

// NewStore returns a Store rooted at root, persisting metadata with meta,
// flushing dirty chunks to backend under backendRoot, and consulting owner
// for unlink_chunk_all's ownership check.
func NewStore(root, backendRoot string, meta MetadataStore, backend BackendSink, owner Ownership, flush *FlushWorker) *Store {
	return &Store{
		root:        root,
		backendRoot: backendRoot,
		meta:        meta,
		backend:     backend,
		owner:       owner,
		locks:       newLockTable(),
		flush:       flush,
	}
}

func (s *Store) fullPath(relPath string) string {
	if relPath == "." {
		return s.root
	}
	return filepath.Join(s.root, relPath)
}

func (s *Store) ensureParent(relPath string) error {
	return os.MkdirAll(filepath.Dir(s.fullPath(relPath)), 0755)
}

// Create implements the inode_create operation.
func (s *Store) Create(key []byte, uid, gid, emode uint32, chunkSize uint64, symlinkTarget []byte) chfserr.Code {
	path := keyToPath(key)
	full := s.fullPath(path)
	mode := modeMask(emode)
	flags := flagsFromMode(emode)

	switch mode & modeFmt {
	case modeReg:
		if flags&modules.FlagCache == 0 {
			flags |= modules.FlagDirty
		}
		if err := s.ensureParent(path); err != nil {
			return chfserr.FromErrno(err)
		}
		f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(mode&0777))
		if err != nil {
			return chfserr.FromErrno(err)
		}
		f.Close()
		if err := s.meta.Set(full, chunkMeta{ChunkSize: chunkSize, Flags: flags}); err != nil {
			return chfserr.FromErrno(err)
		}
	case modeDir:
		if err := os.MkdirAll(full, os.FileMode(mode&0777)); err != nil {
			return chfserr.FromErrno(err)
		}
		if err := s.meta.Set(full, chunkMeta{Flags: flags}); err != nil {
			return chfserr.FromErrno(err)
		}
	case modeLnk:
		if err := os.Symlink(string(symlinkTarget), full); err != nil {
			if perr := s.ensureParent(path); perr == nil {
				err = os.Symlink(string(symlinkTarget), full)
			}
			if err != nil {
				return chfserr.FromErrno(err)
			}
		}
	default:
		return chfserr.NotSupported
	}

	if flags&modules.FlagCache == 0 {
		s.flush.Enqueue(key)
	}
	return chfserr.Success
}

// Stat implements the inode_stat operation.
func (s *Store) Stat(key []byte) (modules.Stat, chfserr.Code) {
	full := s.fullPath(keyToPath(key))
	fi, err := os.Lstat(full)
	if err != nil {
		return modules.Stat{}, chfserr.FromErrno(err)
	}

	var m chunkMeta
	if fi.Mode().IsRegular() {
		m, err = s.meta.Get(full)
		if err != nil {
			return modules.Stat{}, chfserr.FromErrno(err)
		}
	}

	sysMode, uid, gid, mtime, ctime := statSys(fi)
	return modules.Stat{
		Mode:      modeFlags(sysMode, m.Flags),
		UID:       uid,
		GID:       gid,
		Size:      m.Size,
		ChunkSize: m.ChunkSize,
		Mtime:     mtime,
		Ctime:     ctime,
	}, chfserr.Success
}

func (s *Store) openForWrite(path string, mode uint32) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, os.FileMode(mode&0777))
	if err != nil {
		if perr := s.ensureParent(path); perr != nil {
			return nil, err
		}
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, os.FileMode(mode&0777))
	}
	return f, err
}

// Write implements the inode_write operation. The clamped
// write size this call observed, not the running high-water mark, is what
// gets recorded as the chunk's file_size — an ambiguous behavior of
// fs_inode_write that is preserved rather than silently corrected.
func (s *Store) Write(key, buf []byte, offset int64, emode uint32, chunkSize uint64) (uint64, chfserr.Code) {
	full := s.fullPath(keyToPath(key))
	mode := modeMask(emode)
	flags := flagsFromMode(emode)

	ss := uint64(len(buf))
	if uint64(offset)+ss > chunkSize {
		if uint64(offset) >= chunkSize {
			return 0, chfserr.Success
		}
		ss = chunkSize - uint64(offset)
	}
	if flags&modules.FlagCache == 0 {
		flags |= modules.FlagDirty
	}

	s.locks.lock(full)
	defer s.locks.unlock(full)

	f, err := s.openForWrite(full, mode)
	if err != nil {
		return 0, chfserr.FromErrno(err)
	}
	defer f.Close()

	hdr := s.meta.HeaderSize()
	if _, err := f.WriteAt(buf[:ss], offset+hdr); err != nil {
		return 0, chfserr.FromErrno(err)
	}
	if err := s.meta.Set(full, chunkMeta{ChunkSize: chunkSize, Flags: flags, Size: ss}); err != nil {
		return 0, chfserr.FromErrno(err)
	}

	s.flush.Enqueue(key)
	return ss, chfserr.Success
}

// Read implements the inode_read operation. Preserved open
// question: the original fs_inode_read opens the chunk and
// computes the clamped readable byte count from its metadata, but never
// issues the corresponding pread — the caller's buffer is never actually
// filled from the chunk's payload. This returns a correctly-sized but
// zero-filled slice rather than the real contents, mirroring that exactly.
func (s *Store) Read(key []byte, size uint64, offset int64) ([]byte, chfserr.Code) {
	full := s.fullPath(keyToPath(key))

	if fi, err := os.Lstat(full); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(full)
		if err != nil {
			return nil, chfserr.FromErrno(err)
		}
		if uint64(len(target)) > size {
			target = target[:size]
		}
		return []byte(target), chfserr.Success
	}

	s.locks.rlock(full)
	defer s.locks.runlock(full)

	f, err := os.Open(full)
	if err != nil {
		return nil, chfserr.FromErrno(err)
	}
	defer f.Close()

	m, err := s.meta.Get(full)
	if err != nil {
		return nil, chfserr.FromErrno(err)
	}

	ss := size
	if uint64(offset)+ss > m.ChunkSize {
		if uint64(offset) >= m.ChunkSize {
			ss = 0
		} else {
			ss = m.ChunkSize - uint64(offset)
		}
	}
	if ss == 0 {
		return nil, chfserr.Success
	}

	var readable uint64
	if uint64(offset) < m.Size {
		readable = m.Size - uint64(offset)
	}
	n := ss
	if readable < n {
		n = readable
	}
	return make([]byte, n), chfserr.Success
}

// Remove implements the inode_remove operation.
func (s *Store) Remove(key []byte) chfserr.Code {
	full := s.fullPath(keyToPath(key))
	fi, err := os.Lstat(full)
	if err != nil {
		return chfserr.FromErrno(err)
	}
	if fi.IsDir() {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	return chfserr.FromErrno(err)
}

// DirEntry is one entry returned by Readdir: the logical (chunk-suffix
// stripped) name and its stat, with st.Size already overridden by the
// chunk's recorded file_size for regular files.
type DirEntry struct {
	Name string
	Stat modules.Stat
}

// Readdir implements the readdir operation: entries whose
// name contains ':' are chunk-index siblings, not logical entries, and are
// skipped; entries that are pure cache mirrors (CACHE set, not
// locally-authoritative) are likewise invisible.
func (s *Store) Readdir(path string) ([]DirEntry, chfserr.Code) {
	full := s.fullPath(keyToPath([]byte(path + "\x00")))
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, chfserr.FromErrno(err)
	}

	var out []DirEntry
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." || strings.ContainsRune(e.Name(), ':') {
			continue
		}
		childPath := filepath.Join(full, e.Name())

		fi, err := e.Info()
		if err != nil {
			continue
		}
		var m chunkMeta
		if fi.Mode().IsRegular() {
			m, err = s.meta.Get(childPath)
			if err == nil && m.Flags&modules.FlagCache != 0 {
				continue
			}
		}

		sysMode, uid, gid, mtime, ctime := statSys(fi)
		st := modules.Stat{
			Mode:      modeFlags(sysMode, m.Flags),
			UID:       uid,
			GID:       gid,
			Size:      m.Size,
			ChunkSize: m.ChunkSize,
			Mtime:     mtime,
			Ctime:     ctime,
		}
		out = append(out, DirEntry{Name: e.Name(), Stat: st})
	}
	return out, chfserr.Success
}

// UnlinkChunkAll implements unlink_chunk_all: it removes
// chunks basePath:startIndex, basePath:(startIndex+1), ... that this
// server owns. Indexes owned by another server are skipped. The sweep ends
// at the first owned chunk that cannot be unlinked: a missing chunk ends it
// with SUCCESS, any other failure with that failure's code.
func (s *Store) UnlinkChunkAll(basePath string, startIndex int) chfserr.Code {
	for i := startIndex; ; i++ {
		key := chunkKey(basePath, i)
		if !s.owner.IsInCharge(key) {
			continue
		}
		full := s.fullPath(keyToPath(key))
		if err := os.Remove(full); err != nil {
			if os.IsNotExist(err) {
				return chfserr.Success
			}
			return chfserr.FromErrno(err)
		}
	}
}

// Truncate implements the supplemental fs_inode_truncate operation
// (original_source/chfsd/fs_null.c): it rewrites the chunk's recorded
// file_size and marks it dirty for re-flush without touching payload
// bytes beyond the metadata.
func (s *Store) Truncate(key []byte, length uint64) chfserr.Code {
	full := s.fullPath(keyToPath(key))
	s.locks.lock(full)
	defer s.locks.unlock(full)

	m, err := s.meta.Get(full)
	if err != nil {
		return chfserr.FromErrno(err)
	}
	m.Size = length
	m.Flags |= modules.FlagDirty
	if err := s.meta.Set(full, m); err != nil {
		return chfserr.FromErrno(err)
	}
	s.flush.Enqueue(key)
	return chfserr.Success
}

// Flush implements the flush worker's per-key operation:
// non-regular inodes are mirrored directly to the backend; a regular
// chunk is pushed only if DIRTY, after which its metadata is atomically
// rewritten to (CACHE, ¬DIRTY).
func (s *Store) Flush(ctx context.Context, key []byte) chfserr.Code {
	full := s.fullPath(keyToPath(key))
	base, index := splitChunkKey(key)
	dst := backendPath(s.backendRoot, key)

	fi, err := os.Lstat(full)
	if err != nil {
		return chfserr.FromErrno(err)
	}

	switch {
	case fi.IsDir():
		if err := s.backend.MkdirAll(ctx, dst); err != nil {
			return chfserr.FromErrno(err)
		}
		return chfserr.Success
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return chfserr.FromErrno(err)
		}
		if err := s.backend.Symlink(ctx, target, dst); err != nil {
			return chfserr.FromErrno(err)
		}
		return chfserr.Success
	case !fi.Mode().IsRegular():
		return chfserr.NotSupported
	}

	s.locks.lock(full)
	defer s.locks.unlock(full)

	m, err := s.meta.Get(full)
	if err != nil {
		return chfserr.FromErrno(err)
	}
	if m.Flags&modules.FlagDirty == 0 {
		return chfserr.Success
	}

	f, err := os.Open(full)
	if err != nil {
		return chfserr.FromErrno(err)
	}
	defer f.Close()

	hdr := s.meta.HeaderSize()
	buf := make([]byte, m.Size)
	if len(buf) > 0 {
		if _, err := f.ReadAt(buf, hdr); err != nil {
			return chfserr.PartialRead
		}
	}

	chunkOffset := int64(index) * int64(m.ChunkSize)
	if err := s.backend.WriteFile(ctx, dst, buf, chunkOffset); err != nil {
		return chfserr.FromErrno(err)
	}

	m.Flags = (m.Flags &^ modules.FlagDirty) | modules.FlagCache
	if err := s.meta.Set(full, m); err != nil {
		return chfserr.FromErrno(err)
	}
	_ = base
	return chfserr.Success
}

func statSys(fi os.FileInfo) (mode, uid, gid uint32, mtime, ctime modules.Timespec) {
	mtime = modules.Timespec{Sec: fi.ModTime().Unix(), Nsec: int64(fi.ModTime().Nanosecond())}
	ctime = mtime
	mode = uint32(fi.Mode().Perm())
	switch {
	case fi.IsDir():
		mode |= modeDir
	case fi.Mode()&os.ModeSymlink != 0:
		mode |= modeLnk
	case fi.Mode().IsRegular():
		mode |= modeReg
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		uid = sys.Uid
		gid = sys.Gid
		ctime = modules.Timespec{Sec: int64(sys.Ctim.Sec), Nsec: int64(sys.Ctim.Nsec)}
	}
	return
}
