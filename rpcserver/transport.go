// Package rpcserver implements the inode RPC surface: it
// decodes a request, looks its key up on the ring, either executes it
// locally against a chunkstore.Store or forwards it to the owning peer,
// and responds — triggering a re-election when a forward discovers the
// target is unreachable.
//
// This is restyled after a gateway's RegisterRPC/handlerName/
// threadedHandleConn dispatch loop: an 8-byte RPC identifier header, a
// handler map guarded by a mutex, and a goroutine-per-connection accept
// loop, built on this module's own length-prefixed encoding package instead
// of a generated RPC stub.
package rpcserver

import (
	"net"
	"sync"

	"github.com/chfsd/ringfs/encoding"
	"github.com/chfsd/ringfs/modules"
)

type rpcID [8]byte

func handlerName(name string) (id rpcID) {
	copy(id[:], name)
	return
}

func (id rpcID) String() string {
	b := id[:]
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

const maxObjectSize = 64 << 20

// A Transport dials peers and dispatches incoming connections to
// registered handlers, the way Gateway does for its own peer RPCs.
type Transport struct {
	mu         sync.RWMutex
	handlerMap map[rpcID]modules.RPCFunc
	log        Logger
}

// Logger is the narrow interface Transport needs from persist.Logger, so
// tests can substitute a fake without opening a real log file.
type Logger interface {
	Info(args ...interface{})
	Error(args ...interface{})
}

// NewTransport returns a Transport with no handlers registered.
func NewTransport(log Logger) *Transport {
	return &Transport{handlerMap: make(map[rpcID]modules.RPCFunc), log: log}
}

// RegisterRPC registers fn as the handler for name. Identifiers longer
// than 8 bytes are truncated, matching handlerName's wire encoding.
func (t *Transport) RegisterRPC(name string, fn modules.RPCFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlerMap[handlerName(name)] = fn
}

// Call dials addr, writes name's header, and runs fn over the resulting
// connection.
func (t *Transport) Call(addr modules.NetAddress, name string, fn modules.RPCFunc) error {
	conn, err := net.Dial("tcp", string(addr))
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := encoding.WriteObject(conn, handlerName(name)); err != nil {
		return err
	}
	return fn(conn)
}

// Serve accepts connections on ln until it is closed, dispatching each to
// threadedHandleConn in its own goroutine.
func (t *Transport) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go t.threadedHandleConn(conn)
	}
}

func (t *Transport) threadedHandleConn(conn net.Conn) {
	defer conn.Close()

	var id rpcID
	if err := encoding.ReadObject(conn, 8, &id); err != nil {
		t.log.Error("could not read RPC identifier from", conn.RemoteAddr(), ":", err)
		return
	}

	t.mu.RLock()
	fn, ok := t.handlerMap[id]
	t.mu.RUnlock()
	if !ok {
		t.log.Error("incoming conn", conn.RemoteAddr(), "requested unknown RPC", id.String())
		return
	}

	if err := fn(conn); err != nil {
		t.log.Error("RPC", id.String(), "from", conn.RemoteAddr(), "failed:", err)
	}
}

// writerRPC returns an RPCFunc that writes obj then reads resp.
func writerRPC(obj, resp interface{}) modules.RPCFunc {
	return func(conn net.Conn) error {
		if _, err := encoding.WriteObject(conn, obj); err != nil {
			return err
		}
		return encoding.ReadObject(conn, maxObjectSize, resp)
	}
}

