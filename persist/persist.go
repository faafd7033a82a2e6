// Package persist provides utilities for saving node state to disk durably:
// atomic (copy-on-write) file replacement through SafeFile, and the
// file-backed process logger that cmd/ringfsd hands to rpcserver. The logger
// does not rotate its file, and neither ring nor chunkstore uses SafeFile.
package persist

import (
	"crypto/rand"
	"encoding/hex"
)

// persistDir names a subdirectory for this node's own state, as opposed to
// the chunk data itself. No code in this module references it; the log file
// path comes from cmd/ringfsd's -log flag.
const persistDir = "persist"

// RandomSuffix returns a random hex string, used to give SafeFile temporary
// files unpredictable names so that concurrent writers targeting the same
// final path never collide on their temp file.
func RandomSuffix() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("persist: no entropy available: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
