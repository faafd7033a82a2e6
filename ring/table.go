// Package ring implements the consistent-hash membership table: an ordered
// list of nodes keyed by a digest of each member's hashed name (derived
// from its address and an incoming name either by address-qualifying it,
// for gossip updates, or taking it verbatim, when adopting a peer's
// already-resolved list — see ServerFlag/ClientFlag), the ownership
// predicate used to decide whether this server must handle a key locally,
// and the lookup used to route a key to its owner.
//
// This is adapted from lib/ring_list.c, which kept a single global
// ring_list protected by one ABT mutex; here the
// same structure (and the same linear/binary lookup split at 7 nodes) is
// expressed as a Table value with a sync.RWMutex, the same way a gateway's
// peer map guards concurrent access to its own node list.
package ring

import (
	"sort"
	"sync"

	"github.com/chfsd/ringfs/crypto"
	"github.com/chfsd/ringfs/modules"
)

// linearLookupThreshold is the node count under which Lookup performs an
// O(n) scan instead of a binary search (ring_list_lookup in ring_list.c).
const linearLookupThreshold = 7

// A Node is one member of the ring: its advertised address, the node name
// used (together with the address) as hash input, and the resulting ring
// position.
type Node struct {
	Address modules.NetAddress
	Name    string
	Digest  crypto.Digest
}

// A Table is the in-memory ring membership table. The zero Table is not
// usable; construct one with New.
type Table struct {
	mu             sync.RWMutex
	nodes          []Node // kept sorted by Digest at all times
	self           modules.NetAddress
	selfIndex      int // -1 if self is not currently a member
	hasher         crypto.RingHasher
	enableHashPort bool
}

// New returns an empty Table that hashes ring positions with hasher. If
// enableHashPort is false (the default), two addresses differing only by
// port hash identically, mirroring address_name_dup's ENABLE_HASH_PORT
// switch.
func New(hasher crypto.RingHasher, enableHashPort bool) *Table {
	return &Table{
		hasher:         hasher,
		enableHashPort: enableHashPort,
		selfIndex:      -1,
	}
}

// UpdateFlag selects how Update derives each node's ring-hashed name from
// the incoming (address, name) pair, reproducing ring_list_update's
// "flag: 0 - server, 1 - client" parameter.
type UpdateFlag int

const (
	// ServerFlag derives the hashed name via address_name_dup: the node's
	// advertised address (with its trailing ":port" stripped unless
	// enableHashPort is set) is prefixed onto the incoming name. This is
	// the steady-state membership-gossip path, where a node re-qualifies a
	// bare peer name against that peer's own advertised address.
	ServerFlag UpdateFlag = iota
	// ClientFlag takes the incoming name verbatim, with no address
	// qualification — used when adopting a peer's own node_list response,
	// whose names that peer has already resolved.
	ClientFlag
)

// deriveName reproduces address_name_dup for ServerFlag, or passes name
// through unchanged for ClientFlag.
func (t *Table) deriveName(addr modules.NetAddress, name string, flag UpdateFlag) string {
	if flag == ClientFlag {
		return name
	}
	host := string(addr)
	if !t.enableHashPort {
		host = crypto.StripPort(host)
	}
	return host + ":" + name
}

// Init seeds the table with exactly one node: self, named after its own
// address (ring_list_init passes name=NULL, which address_name_dup turns
// into the empty string).
func (t *Table) Init(self modules.NetAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.self = self
	name := t.deriveName(self, "", ServerFlag)
	t.nodes = []Node{{
		Address: self,
		Name:    name,
		Digest:  t.hasher.Sum([]byte(name)),
	}}
	t.selfIndex = 0
}

// Members is one entry of the source list passed to Update: the address a
// node advertises and the logical name to hash, interpreted according to
// the flag Update is called with.
type Member struct {
	Address modules.NetAddress
	Name    string
}

// Update replaces the entire membership list (ring_list_update). Each
// member's hashed name is derived from (Address, Name) according to flag;
// the new list is then sorted by digest and self's index within it is
// recomputed. If self is not present in src, the table becomes
// "unanchored" (selfIndex == -1) and IsInCharge answers true for every key
// (see IsInCharge); IsCoordinator does not depend on selfIndex.
func (t *Table) Update(src []Member, flag UpdateFlag) {
	nodes := make([]Node, len(src))
	for i, m := range src {
		name := t.deriveName(m.Address, m.Name, flag)
		nodes[i] = Node{
			Address: m.Address,
			Name:    name,
			Digest:  t.hasher.Sum([]byte(name)),
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Digest.Compare(nodes[j].Digest) < 0
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = nodes
	t.selfIndex = -1
	if t.self == "" {
		return
	}
	for i, n := range nodes {
		if n.Address == t.self {
			t.selfIndex = i
			break
		}
	}
}

// Remove deletes the node advertising addr, if present (ring_list_remove).
// Removing an address not in the table is a no-op.
func (t *Table) Remove(addr modules.NetAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, n := range t.nodes {
		if n.Address == addr {
			t.nodes = append(t.nodes[:i], t.nodes[i+1:]...)
			break
		}
	}
	t.selfIndex = -1
	if t.self == "" {
		return
	}
	for i, n := range t.nodes {
		if n.Address == t.self {
			t.selfIndex = i
			break
		}
	}
}

// Copy returns a snapshot of the current membership, safe to range over
// without holding the Table's lock (ring_list_copy).
func (t *Table) Copy() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Members returns each current node's address and hashed name, the
// {address, name} pairs node_list's RPC response carries over the wire
// (lib/ring_list_rpc.c's node_list handler, which responds with
// ring_list_copy's member list verbatim). A caller folding this response
// into its own table with Update should use ClientFlag: these names have
// already been resolved by this node and must not be re-qualified.
func (t *Table) Members() []modules.NodeListEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]modules.NodeListEntry, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = modules.NodeListEntry{Address: n.Address, Name: n.Name}
	}
	return out
}

// IsInCharge reports whether self owns key: the ring arc that is
// half-open on the low end and closed on the high end, with the arc before
// index 0 wrapping around from the highest-digest node (ring_list_is_in_charge).
// A table with no members owns nothing; a table with members but no self
// index (self not currently present in the ring) defaults to true — an
// isolated node still serves the keys it held before losing its membership
// entry, the same way ring_list_is_in_charge initializes r=1 and only
// overrides it when self_index is a valid index into the list.
func (t *Table) IsInCharge(key []byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.nodes) == 0 {
		return false
	}
	if t.selfIndex < 0 {
		return true
	}
	d := t.hasher.Sum(key)
	n := len(t.nodes)
	if t.selfIndex > 0 {
		return t.nodes[t.selfIndex-1].Digest.Compare(d) < 0 &&
			d.Compare(t.nodes[t.selfIndex].Digest) <= 0
	}
	// selfIndex == 0: owns everything above the last node, wrapping
	// around through the bottom of the ring up to and including index 0.
	return t.nodes[n-1].Digest.Compare(d) < 0 ||
		d.Compare(t.nodes[0].Digest) <= 0
}

// Lookup returns the address of the node that owns key, or "" if the table
// has no members. Below linearLookupThreshold members it scans linearly;
// at or above it, it binary searches (ring_list_lookup / _linear / _binary).
func (t *Table) Lookup(key []byte) modules.NetAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.nodes) == 0 {
		return ""
	}
	d := t.hasher.Sum(key)
	if len(t.nodes) < linearLookupThreshold {
		return t.lookupLinear(d)
	}
	return t.lookupBinary(d)
}

// lookupLinear returns the first node whose digest is >= d, wrapping to
// index 0 if none qualifies (every digest in the table is less than d).
func (t *Table) lookupLinear(d crypto.Digest) modules.NetAddress {
	for _, n := range t.nodes {
		if n.Digest.Compare(d) >= 0 {
			return n.Address
		}
	}
	return t.nodes[0].Address
}

// lookupBinary is the binary-search equivalent of lookupLinear: it finds
// the leftmost node whose digest is >= d. Values at or below the first
// node's digest, and values above the last node's digest, both wrap to
// node 0 (ring_list_lookup_binary's boundary check).
func (t *Table) lookupBinary(d crypto.Digest) modules.NetAddress {
	n := len(t.nodes)
	if t.nodes[0].Digest.Compare(d) >= 0 || t.nodes[n-1].Digest.Compare(d) < 0 {
		return t.nodes[0].Address
	}
	low, hi := 0, n-1
	for hi-low > 1 {
		mid := (low + hi) / 2
		if t.nodes[mid].Digest.Compare(d) < 0 {
			low = mid
		} else {
			hi = mid
		}
	}
	return t.nodes[hi].Address
}

// IsCoordinator reports whether self sorts after every other member of the
// table (ring_list_is_coordinator): the coordinator role used to trigger a
// re-election is held by the node whose address is lexicographically
// greatest among current members.
func (t *Table) IsCoordinator() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.nodes {
		if n.Address != t.self && string(t.self) < string(n.Address) {
			return false
		}
	}
	return true
}

// Self returns this table's own address.
func (t *Table) Self() modules.NetAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.self
}

// Len returns the current number of members.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// String renders the membership table one node per line, in the same
// "address name digest" layout as ring_list_display, so operators running
// ringfsd by hand get a familiar diagnostic dump.
func (t *Table) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b []byte
	for _, n := range t.nodes {
		b = append(b, n.Address...)
		b = append(b, ' ')
		b = append(b, n.Name...)
		b = append(b, ' ')
		b = append(b, n.Digest.String()...)
		b = append(b, '\n')
	}
	return string(b)
}
