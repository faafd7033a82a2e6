package chunkstore

import (
	"context"
	"sync"

	"github.com/chfsd/ringfs/chfserr"
)

// Flusher performs the actual write-back of one key to its backend. Store
// implements this; it is pulled out as an interface so FlushWorker can be
// constructed before the Store that owns it (they reference each other).
type Flusher interface {
	Flush(ctx context.Context, key []byte) chfserr.Code
}

// FlushLogger receives one line per failed flush, the way fs_inode_flush's
// callers log_error on anything but KV_SUCCESS.
type FlushLogger interface {
	Printf(format string, args ...interface{})
}

// FlushWorker drains a FIFO queue of dirty chunk keys into a Flusher,
// restyled after modules/gateway's threadedBroadcast worker-pool idiom and
// the background syncing goroutine in
// modules/host/contractmanager/writeaheadlog.go. Enqueue is at-least-once:
// a key already pending is not deduplicated out, and a failed flush is not
// automatically requeued — the next write or a future
// explicit flush pass picks it back up because the chunk is still DIRTY.
type FlushWorker struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue  chan []byte
	logger FlushLogger

	wg sync.WaitGroup

	mu      sync.Mutex
	flusher Flusher
}

// NewFlushWorker starts workers goroutines draining a queue of depth
// backlog. SetFlusher must be called before any enqueued key is processed
// (chunkstore.NewStore does this for its own FlushWorker).
func NewFlushWorker(workers, backlog int, logger FlushLogger) *FlushWorker {
	ctx, cancel := context.WithCancel(context.Background())
	fw := &FlushWorker{
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan []byte, backlog),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		fw.wg.Add(1)
		go fw.run()
	}
	return fw
}

// SetFlusher wires the Flusher this worker drains into. Store and
// FlushWorker are constructed as a pair with a circular dependency; this
// setter breaks the cycle.
func (fw *FlushWorker) SetFlusher(f Flusher) {
	fw.mu.Lock()
	fw.flusher = f
	fw.mu.Unlock()
}

func (fw *FlushWorker) run() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return
		case key, ok := <-fw.queue:
			if !ok {
				return
			}
			fw.mu.Lock()
			f := fw.flusher
			fw.mu.Unlock()
			if f == nil {
				continue
			}
			if code := f.Flush(fw.ctx, key); code != chfserr.Success && fw.logger != nil {
				fw.logger.Printf("flush %q: %s", key, code)
			}
		}
	}
}

// Enqueue schedules key for a future flush. It never blocks the caller
// past the queue's configured backlog: a full queue applies backpressure
// to the writer that triggered the flush, mirroring that the original
// implementation's enqueue call is made inline from fs_inode_write/create.
func (fw *FlushWorker) Enqueue(key []byte) {
	cp := make([]byte, len(key))
	copy(cp, key)
	select {
	case fw.queue <- cp:
	case <-fw.ctx.Done():
	}
}

// Close stops accepting new work and waits for in-flight flushes to drain.
func (fw *FlushWorker) Close() {
	fw.cancel()
	fw.wg.Wait()
}
