// Command ringfsd runs one node of a distributed, consistent-hash-sharded
// object store. CLI argument parsing is deliberately minimal (an explicit
// non-goal): every operational option is read from the TOML file named by
// -config, and the flags below only locate that file, override its log
// destination, and name a -seed peer to pull the ring from — grounded on cmd/siad's entry point in spirit, though siad
// itself delegates to cobra while this reaches only for the standard
// library's flag package, since no pack dependency is wired for CLI
// parsing beyond what flag already covers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/NebulousLabs/threadgroup"

	"github.com/chfsd/ringfs/chunkstore"
	"github.com/chfsd/ringfs/config"
	"github.com/chfsd/ringfs/crypto"
	"github.com/chfsd/ringfs/modules"
	"github.com/chfsd/ringfs/persist"
	"github.com/chfsd/ringfs/ring"
	"github.com/chfsd/ringfs/rpcserver"
)

// election is a narrow Elector stub: the election protocol itself is an
// external collaborator, so this only logs the trigger and marks the table
// unanchored, standing in until a real coordinator-election implementation
// is wired in.
type election struct {
	table *ring.Table
	log   *persist.Logger
}

func (e election) TriggerElection(reason string) {
	e.log.Error("election triggered:", reason)
	e.table.Remove(e.table.Self())
}

func main() {
	configPath := flag.String("config", "ringfsd.toml", "path to the node's TOML configuration file")
	logPath := flag.String("log", "ringfsd.log", "path to the node's log file")
	seedPeer := flag.String("seed", "", "address of an existing member to fetch the initial ring from (empty: start a new ring)")
	flag.Parse()

	if err := run(*configPath, *logPath, *seedPeer); err != nil {
		fmt.Fprintln(os.Stderr, "ringfsd:", err)
		os.Exit(1)
	}
}

func run(configPath, logPath, seedPeer string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := persist.NewLogger(logPath)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer log.Close()

	// tg gates every background goroutine's shutdown the way a module
	// gates its own against its threadgroup: nothing added after
	// tg.Stop() begins is allowed to start, and OnStop runs the teardown
	// in LIFO order once every in-flight Add has called Done.
	var tg threadgroup.ThreadGroup
	defer tg.Stop()

	var hasher crypto.RingHasher
	if cfg.UseMurmur3 {
		hasher = crypto.NewDigest32Hasher()
	} else {
		hasher = crypto.NewDigest128Hasher()
	}

	self := modules.NetAddress(cfg.SelfAddress)
	if err := self.IsValid(); err != nil {
		return fmt.Errorf("self_address: %w", err)
	}

	table := ring.New(hasher, cfg.EnableHashPort)
	table.Init(self)

	transport := rpcserver.NewTransport(log)

	var meta chunkstore.MetadataStore = chunkstore.XattrMetadata{}
	if !cfg.UseXattr {
		meta = chunkstore.HeaderMetadata{}
	}

	backend, err := newBackendSink(cfg)
	if err != nil {
		return fmt.Errorf("configuring backend sink: %w", err)
	}

	fw := chunkstore.NewFlushWorker(flushWorkerCount(cfg), 256, log)
	store := chunkstore.NewStore(cfg.DataRoot, cfg.BackendRoot, meta, backend, table, fw)
	fw.SetFlusher(store)
	tg.OnStop(func() error {
		fw.Close()
		return nil
	})

	elector := election{table: table, log: log}
	rpcserver.NewDispatcher(store, table, transport, elector, log)
	rpcserver.RegisterNodeList(transport, table)

	if seedPeer != "" {
		resp, err := rpcserver.PullNodeList(transport, modules.NetAddress(seedPeer))
		if err != nil {
			return fmt.Errorf("fetching node list from %s: %w", seedPeer, err)
		}
		members := make([]ring.Member, len(resp.Entries))
		for i, e := range resp.Entries {
			members[i] = ring.Member{Address: e.Address, Name: e.Name}
		}
		// Carry this node's own already-resolved name (derived by Init)
		// forward unchanged, alongside the peer's already-resolved names:
		// this is the client-flag path, taking every incoming name
		// verbatim instead of re-qualifying it against its address.
		for _, e := range table.Members() {
			if e.Address == self {
				members = append(members, ring.Member{Address: e.Address, Name: e.Name})
				break
			}
		}
		table.Update(members, ring.ClientFlag)
	}

	ln, err := net.Listen("tcp", string(self))
	if err != nil {
		return fmt.Errorf("listening on %s: %w", self, err)
	}
	tg.OnStop(func() error {
		return ln.Close()
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("received shutdown signal")
		tg.Stop()
	}()

	log.Info("ringfsd listening on", self)
	err = transport.Serve(ln)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// newBackendSink builds the durable backend sink chunks are flushed to: an
// S3 bucket when the node is configured for it, a second local directory
// tree otherwise.
func newBackendSink(cfg config.Config) (chunkstore.BackendSink, error) {
	if !cfg.UseS3Backend {
		return chunkstore.LocalBackend{Root: cfg.BackendRoot}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return chunkstore.S3Backend{Client: s3.NewFromConfig(awsCfg), Bucket: cfg.S3Bucket}, nil
}

// flushWorkerCount derives the flush pool's goroutine count from the
// configured I/O thread pool size, defaulting to a small fixed pool when
// IOThreads is left at zero (no dedicated offload requested).
func flushWorkerCount(cfg config.Config) int {
	if cfg.IOThreads > 0 {
		return cfg.IOThreads
	}
	return 4
}
