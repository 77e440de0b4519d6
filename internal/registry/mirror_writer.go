package registry

import (
	"context"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/metrics"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/hashicorp/go-hclog"
)

// mirrorWriter pushes snapshots to the mirror from one goroutine. Only the newest pending snapshot of
// each node is kept, so a slow mirror never blocks Update and never receives an older snapshot after
// a newer one.
type mirrorWriter struct {
	mirror    Mirror
	ttl       time.Duration
	timeout   time.Duration
	logger    hclog.Logger
	collector *metrics.Collector

	mu        sync.Mutex
	pending   map[string]model.NodeMetrics
	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	runCtx    context.Context
	cancelRun context.CancelFunc
}

func newMirrorWriter(logger hclog.Logger, collector *metrics.Collector, mirror Mirror, ttl, timeout time.Duration) *mirrorWriter {
	writer := &mirrorWriter{
		mirror:    mirror,
		ttl:       ttl,
		timeout:   timeout,
		logger:    logger,
		collector: collector,
		pending:   make(map[string]model.NodeMetrics),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	writer.runCtx, writer.cancelRun = context.WithCancel(context.Background())
	go writer.run()

	return writer
}

// enqueue replaces any pending snapshot of the node. Callers hold the registry lock so pending
// order matches the local map.
func (writer *mirrorWriter) enqueue(nodeMetrics model.NodeMetrics) {
	writer.mu.Lock()
	writer.pending[nodeMetrics.NodeId] = nodeMetrics
	writer.mu.Unlock()

	select {
	case writer.wake <- struct{}{}:
	default:
	}
}

func (writer *mirrorWriter) run() {
	defer close(writer.done)

	for {
		select {
		case <-writer.wake:
			writer.flush(writer.runCtx)
		case <-writer.stop:
			writer.flush(writer.runCtx)
			return
		}
	}
}

// flush writes the pending batch. Once parent is done the rest of the batch is dropped.
func (writer *mirrorWriter) flush(parent context.Context) {
	writer.mu.Lock()
	batch := writer.pending
	writer.pending = make(map[string]model.NodeMetrics, len(batch))
	writer.mu.Unlock()

	written := 0
	for nodeId, nodeMetrics := range batch {
		if parent.Err() != nil {
			writer.logger.Warn("metrics cache unavailable, dropping pending writes", "dropped", len(batch)-written)
			return
		}
		written++

		ctx, cancel := context.WithTimeout(parent, writer.timeout)
		err := writer.mirror.Put(ctx, nodeMetrics, writer.ttl)
		cancel()
		if err != nil {
			writer.collector.MirrorFailed("put")
			writer.logger.Warn("metrics cache write failed, keeping local copy only", "node", nodeId, "error", err)
		}
	}
}

// close writes what is still pending, within one mirror timeout, and stops the goroutine.
func (writer *mirrorWriter) close() {
	writer.stopOnce.Do(func() {
		close(writer.stop)
		deadline := time.AfterFunc(writer.timeout, writer.cancelRun)
		<-writer.done
		deadline.Stop()
		writer.cancelRun()
	})
	<-writer.done
}
