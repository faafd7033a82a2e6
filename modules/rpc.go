package modules

import "net"

// An RPCFunc is the calling or handling side of a single RPC exchange: given
// an open connection already positioned just past the handler-name header,
// it reads and/or writes exactly one request/response pair and returns any
// error encountered doing so.
type RPCFunc func(net.Conn) error
