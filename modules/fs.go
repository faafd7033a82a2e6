package modules

// CacheFlags are the per-chunk cache-state bits persisted alongside a
// chunk's size fields in the chunk-metadata store. They travel packed into
// the RPC "mode" field's high bits the same way the original emode argument
// folds POSIX mode bits and cache flags into one word.
type CacheFlags uint16

const (
	// FlagCache marks a chunk as a clean-or-dirty mirror of a backend
	// object, as opposed to one that only exists locally.
	FlagCache CacheFlags = 1 << iota
	// FlagDirty marks a chunk as having local data not yet flushed to
	// the backend.
	FlagDirty
)

// Stat is the wire shape of an inode_stat response:
//
//	stat:{mode:u32, uid, gid:u32, size:u64, chunk_size:u64, mtime, ctime:{s:i64, ns:i64}}
type Stat struct {
	Mode      uint32
	UID       uint32
	GID       uint32
	Size      uint64
	ChunkSize uint64
	Mtime     Timespec
	Ctime     Timespec
}

// Timespec is a wire-encoded {seconds, nanoseconds} pair.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// InodeCreateRequest is the inode_create RPC's input:
// key:bytes, uid:u32, gid:u32, mode:u32, chunk_size:u64.
type InodeCreateRequest struct {
	Key       []byte
	UID       uint32
	GID       uint32
	Mode      uint32
	ChunkSize uint64
}

// InodeCreateResponse is the inode_create RPC's output: err:i32.
type InodeCreateResponse struct {
	Err int32
}

// InodeStatRequest is the inode_stat RPC's input: key:bytes.
type InodeStatRequest struct {
	Key []byte
}

// InodeStatResponse is the inode_stat RPC's output: err:i32, stat:{...}.
type InodeStatResponse struct {
	Err  int32
	Stat Stat
}

// InodeWriteRequest is the inode_write RPC's input: key:bytes, value:bytes,
// offset:i64, mode:u32, chunk_size:u64.
type InodeWriteRequest struct {
	Key       []byte
	Value     []byte
	Offset    int64
	Mode      uint32
	ChunkSize uint64
}

// InodeWriteResponse is the inode_write RPC's output: err:i32,
// value_size:u64.
type InodeWriteResponse struct {
	Err       int32
	ValueSize uint64
}

// InodeReadRequest is the inode_read RPC's input: key:bytes, size:u64,
// offset:i64.
type InodeReadRequest struct {
	Key    []byte
	Size   uint64
	Offset int64
}

// InodeReadResponse is the inode_read RPC's output: err:i32, value:bytes.
type InodeReadResponse struct {
	Err   int32
	Value []byte
}

// InodeRemoveRequest is the inode_remove RPC's input: key:bytes.
type InodeRemoveRequest struct {
	Key []byte
}

// InodeRemoveResponse is the inode_remove RPC's output: err:i32.
type InodeRemoveResponse struct {
	Err int32
}

// NodeListEntry is one {address, name} pair of a node_list response,
// mirroring string_list_t's element shape.
type NodeListEntry struct {
	Address NetAddress
	Name    string
}

// NodeListResponse carries the ring membership table, one {address, name}
// entry per member, for the node_list RPC used by a freshly-started or
// rejoining node to seed its ring. Name is whatever the responding node
// last derived for that member (see ring.Table.Update's ServerFlag /
// ClientFlag); a caller adopting this response should fold it in with
// ClientFlag so it isn't re-qualified a second time.
type NodeListResponse struct {
	Entries []NodeListEntry
}
