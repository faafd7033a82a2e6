// Package chunkstore implements the chunk-addressed file backend and its
// write-back cache layer: translating an RPC key into an
// on-disk chunk file, persisting per-chunk metadata, and lazily flushing
// dirty chunks to a durable BackendSink.
//
// This is adapted from chfsd/fs_null.c, keeping its key_to_path translation,
// its metadata/cache-flag split, and its create/stat/write/read/flush
// operations, expressed as methods on a Store instead of a set of C
// functions operating on package-level state.
package chunkstore

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
)

// keyToPath mirrors key_to_path: leading slashes are stripped (keys are
// relative to the store root), a lone separator addresses the root itself,
// and when the key carries a chunk-index suffix after its first NUL byte,
// that NUL is rewritten to ':' so the whole key becomes one path component
// (e.g. "dir/file\x003" -> "dir/file:3").
func keyToPath(key []byte) string {
	for len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	if len(key) == 0 || key[0] == 0 {
		return "."
	}
	path := make([]byte, len(key))
	copy(path, key)

	klen := bytes.IndexByte(path, 0)
	switch {
	case klen < 0:
		// No NUL at all: the whole key is the path.
	case klen+1 < len(path):
		// A chunk-index suffix follows the NUL: fold it into one
		// component by rewriting the separator.
		path[klen] = ':'
	default:
		// A lone trailing NUL with nothing after it: chunk 0 of this
		// base, addressed by the base name alone.
		path = path[:klen]
	}
	return string(path)
}

// splitChunkKey separates a wire key "base\0index" into its base path and
// chunk index. A key with no NUL-delimited suffix addresses chunk 0 (the
// fs_inode_flush: "if keylen == key_size, index is 0").
func splitChunkKey(key []byte) (base string, index int) {
	nul := bytes.IndexByte(key, 0)
	if nul < 0 || nul+1 >= len(key) {
		return string(bytes.TrimRight(key, "\x00")), 0
	}
	base = string(key[:nul])
	index, _ = strconv.Atoi(string(key[nul+1:]))
	return base, index
}

// chunkKey builds the wire key for chunk i of base.
func chunkKey(base string, i int) []byte {
	b := append([]byte(base), 0)
	return append(b, []byte(strconv.Itoa(i))...)
}

// backendPath derives the durable-store destination for key: the chunk
// index suffix is stripped (the backend is addressed by file, not by
// chunk), and the remainder is joined under the backend root.
func backendPath(backendRoot string, key []byte) string {
	base, _ := splitChunkKey(key)
	base = strings.TrimPrefix(base, "/")
	return filepath.Join(backendRoot, base)
}
