package rpcserver

import (
	"net"

	"github.com/chfsd/ringfs/modules"
)

// MemberLister exposes the current ring snapshot, used to answer node_list
// requests (lib/ring_list_rpc.c's node_list handler, which responds with
// ring_list_copy's member list).
type MemberLister interface {
	Members() []modules.NodeListEntry
}

// RegisterNodeList registers the node_list RPC, responding with lister's
// current membership snapshot.
func RegisterNodeList(transport *Transport, lister MemberLister) {
	transport.RegisterRPC(RPCNodeList, func(conn net.Conn) error {
		var discard int32
		if err := readReq(conn, &discard); err != nil {
			return err
		}
		return writeResp(conn, &modules.NodeListResponse{Entries: lister.Members()})
	})
}

// PullNodeList calls node_list on addr and returns the peer's membership
// snapshot, the way ring_list_rpc_node_list does for a rejoining node
// before folding the result into its own table with ring.Table.Update.
func PullNodeList(transport *Transport, addr modules.NetAddress) (modules.NodeListResponse, error) {
	var resp modules.NodeListResponse
	var req int32
	err := transport.Call(addr, RPCNodeList, writerRPC(&req, &resp))
	return resp, err
}
