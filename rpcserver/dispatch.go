package rpcserver

import (
	"net"

	"github.com/chfsd/ringfs/chfserr"
	"github.com/chfsd/ringfs/chunkstore"
	"github.com/chfsd/ringfs/encoding"
	"github.com/chfsd/ringfs/modules"
)

// RPC names, matching chfsd/fs_server.c's margo handler names.
const (
	RPCInodeCreate = "InodeCreate"
	RPCInodeStat   = "InodeStat"
	RPCInodeWrite  = "InodeWrite"
	RPCInodeRead   = "InodeRead"
	RPCInodeRemove = "InodeRemove"
	RPCNodeList    = "NodeList"
)

// Backend is the subset of chunkstore.Store's surface the dispatcher
// drives directly, narrowed to an interface so tests can substitute a
// fake without standing up a real on-disk store.
type Backend interface {
	Create(key []byte, uid, gid, emode uint32, chunkSize uint64, symlinkTarget []byte) chfserr.Code
	Stat(key []byte) (modules.Stat, chfserr.Code)
	Write(key, buf []byte, offset int64, emode uint32, chunkSize uint64) (uint64, chfserr.Code)
	Read(key []byte, size uint64, offset int64) ([]byte, chfserr.Code)
	Remove(key []byte) chfserr.Code
}

var _ Backend = (*chunkstore.Store)(nil)

// Ring is the subset of ring.Table the dispatcher needs to route a
// request: who owns a key, and this node's own address.
type Ring interface {
	Self() modules.NetAddress
	Lookup(key []byte) modules.NetAddress
}

// Elector starts a new coordinator election. The election protocol itself
// is an external collaborator; the dispatcher only needs the call site that
// triggers one.
type Elector interface {
	TriggerElection(reason string)
}

// Dispatcher serves the inode RPC surface, routing each request to its
// owning node — locally against store, or forwarded over transport to a
// peer — and triggering an election whenever a forward reports the peer
// unreachable. This mirrors chfsd/fs_server.c's uniform
// ring_get_self/lookup/execute-or-forward/ring_release_self/
// election-on-SERVER_DOWN shape across all five inode handlers; the
// explicit get_self/release_self refcount pair collapses into ring.Table's
// own RWMutex, since every Lookup/Self call here already takes a
// consistent snapshot under lock and there is no pointer to pin.
type Dispatcher struct {
	store     Backend
	ring      Ring
	transport *Transport
	elector   Elector
	log       Logger
}

// NewDispatcher returns a Dispatcher and registers its handlers on
// transport.
func NewDispatcher(store Backend, ring Ring, transport *Transport, elector Elector, log Logger) *Dispatcher {
	d := &Dispatcher{store: store, ring: ring, transport: transport, elector: elector, log: log}
	transport.RegisterRPC(RPCInodeCreate, d.handleCreate)
	transport.RegisterRPC(RPCInodeStat, d.handleStat)
	transport.RegisterRPC(RPCInodeWrite, d.handleWrite)
	transport.RegisterRPC(RPCInodeRead, d.handleRead)
	transport.RegisterRPC(RPCInodeRemove, d.handleRemove)
	return d
}

// isLocal reports whether this node owns key, and the address to forward
// to otherwise.
func (d *Dispatcher) isLocal(key []byte) (local bool, target modules.NetAddress) {
	target = d.ring.Lookup(key)
	return target == d.ring.Self() || target == "", target
}

func (d *Dispatcher) onErr(code chfserr.Code) {
	if code.IsAdvisory() {
		return
	}
	d.log.Error("RPC returned", code.String())
	if code == chfserr.ServerDown {
		d.elector.TriggerElection("forwarded RPC reported SERVER_DOWN")
	}
}

func readReq(conn net.Conn, req interface{}) error {
	return encoding.ReadObject(conn, maxObjectSize, req)
}

func writeResp(conn net.Conn, resp interface{}) error {
	_, err := encoding.WriteObject(conn, resp)
	return err
}

func (d *Dispatcher) handleCreate(conn net.Conn) error {
	var req modules.InodeCreateRequest
	if err := readReq(conn, &req); err != nil {
		return err
	}

	var code chfserr.Code
	if local, target := d.isLocal(req.Key); local {
		code = d.store.Create(req.Key, req.UID, req.GID, req.Mode, req.ChunkSize, nil)
	} else {
		var resp modules.InodeCreateResponse
		if err := d.transport.Call(target, RPCInodeCreate, writerRPC(&req, &resp)); err != nil {
			code = chfserr.ServerDown
		} else {
			code = chfserr.Code(resp.Err)
		}
	}
	d.onErr(code)
	return writeResp(conn, &modules.InodeCreateResponse{Err: int32(code)})
}

func (d *Dispatcher) handleStat(conn net.Conn) error {
	var req modules.InodeStatRequest
	if err := readReq(conn, &req); err != nil {
		return err
	}

	var st modules.Stat
	var code chfserr.Code
	if local, target := d.isLocal(req.Key); local {
		st, code = d.store.Stat(req.Key)
	} else {
		var resp modules.InodeStatResponse
		if err := d.transport.Call(target, RPCInodeStat, writerRPC(&req, &resp)); err != nil {
			code = chfserr.ServerDown
		} else {
			code = chfserr.Code(resp.Err)
			st = resp.Stat
		}
	}
	d.onErr(code)

	resp := modules.InodeStatResponse{Err: int32(code)}
	if code == chfserr.Success {
		resp.Stat = st
		// Preserved verbatim from chfsd/fs_server.c's inode_stat handler:
		// the response's mtime field is populated from ctime, not mtime.
		resp.Stat.Mtime = st.Ctime
	}
	return writeResp(conn, &resp)
}

func (d *Dispatcher) handleWrite(conn net.Conn) error {
	var req modules.InodeWriteRequest
	if err := readReq(conn, &req); err != nil {
		return err
	}

	var size uint64
	var code chfserr.Code
	if local, target := d.isLocal(req.Key); local {
		size, code = d.store.Write(req.Key, req.Value, req.Offset, req.Mode, req.ChunkSize)
	} else {
		var resp modules.InodeWriteResponse
		if err := d.transport.Call(target, RPCInodeWrite, writerRPC(&req, &resp)); err != nil {
			code = chfserr.ServerDown
		} else {
			code = chfserr.Code(resp.Err)
			size = resp.ValueSize
		}
	}
	d.onErr(code)
	return writeResp(conn, &modules.InodeWriteResponse{Err: int32(code), ValueSize: size})
}

func (d *Dispatcher) handleRead(conn net.Conn) error {
	var req modules.InodeReadRequest
	if err := readReq(conn, &req); err != nil {
		return err
	}
	if req.Size == 0 {
		return writeResp(conn, &modules.InodeReadResponse{Err: int32(chfserr.Success)})
	}

	var value []byte
	var code chfserr.Code
	if local, target := d.isLocal(req.Key); local {
		value, code = d.store.Read(req.Key, req.Size, req.Offset)
	} else {
		var resp modules.InodeReadResponse
		if err := d.transport.Call(target, RPCInodeRead, writerRPC(&req, &resp)); err != nil {
			code = chfserr.ServerDown
		} else {
			code = chfserr.Code(resp.Err)
			value = resp.Value
		}
	}
	d.onErr(code)
	return writeResp(conn, &modules.InodeReadResponse{Err: int32(code), Value: value})
}

func (d *Dispatcher) handleRemove(conn net.Conn) error {
	var req modules.InodeRemoveRequest
	if err := readReq(conn, &req); err != nil {
		return err
	}

	var code chfserr.Code
	if local, target := d.isLocal(req.Key); local {
		code = d.store.Remove(req.Key)
	} else {
		var resp modules.InodeRemoveResponse
		if err := d.transport.Call(target, RPCInodeRemove, writerRPC(&req, &resp)); err != nil {
			code = chfserr.ServerDown
		} else {
			code = chfserr.Code(resp.Err)
		}
	}
	d.onErr(code)
	return writeResp(conn, &modules.InodeRemoveResponse{Err: int32(code)})
}
