package registry

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/metrics"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-hclog"
)

var ErrNodeNotFound = errors.New("node not found")

const defaultMirrorTimeout = 250 * time.Millisecond

// Mirror shares node snapshots with other processes. The in-process map stays authoritative.
type Mirror interface {
	Put(ctx context.Context, metrics model.NodeMetrics, ttl time.Duration) error
	Get(ctx context.Context, nodeId string) (model.NodeMetrics, error)
	Close() error
}

type Options struct {
	Mirror        Mirror
	MirrorTTL     time.Duration
	MirrorTimeout time.Duration
}

// Registry keeps the latest telemetry snapshot of every node that ever reported.
// Entries are never deleted; staleness is applied when reading through ActiveNodes.
type Registry struct {
	mu            sync.RWMutex
	nodes         map[string]model.NodeMetrics
	mirror        Mirror
	mirrorWriter  *mirrorWriter
	mirrorTimeout time.Duration
	clock         clock.Clock
	logger        hclog.Logger
	collector     *metrics.Collector
}

func NewRegistry(logger hclog.Logger, clk clock.Clock, collector *metrics.Collector, options Options) *Registry {
	if options.MirrorTTL <= 0 {
		options.MirrorTTL = common.METRICS_CACHE_TTL
	}
	if options.MirrorTimeout <= 0 {
		options.MirrorTimeout = defaultMirrorTimeout
	}

	registry := &Registry{
		nodes:         make(map[string]model.NodeMetrics),
		mirror:        options.Mirror,
		mirrorTimeout: options.MirrorTimeout,
		clock:         clk,
		logger:        logger.Named("registry"),
		collector:     collector,
	}
	if options.Mirror != nil {
		registry.mirrorWriter = newMirrorWriter(registry.logger, collector, options.Mirror, options.MirrorTTL, options.MirrorTimeout)
	}

	return registry
}

// Update inserts or overwrites the node snapshot, stamped with the current time, and queues it for the
// mirror. Mirror writes happen in the background; their failures are logged and never returned.
func (registry *Registry) Update(ctx context.Context, nodeId string, telemetry model.Telemetry) model.NodeMetrics {
	nodeMetrics := telemetry.ToNodeMetrics(nodeId, registry.clock.Now())

	registry.mu.Lock()
	registry.nodes[nodeId] = nodeMetrics
	if registry.mirrorWriter != nil {
		registry.mirrorWriter.enqueue(nodeMetrics)
	}
	registry.mu.Unlock()

	return nodeMetrics
}

// ActiveNodes yields every node whose last report is younger than window at now.
// The sequence is evaluated lazily on each range and can be restarted.
func (registry *Registry) ActiveNodes(now time.Time, window time.Duration) iter.Seq[model.NodeMetrics] {
	return func(yield func(model.NodeMetrics) bool) {
		for _, nodeMetrics := range registry.snapshot() {
			if !nodeMetrics.IsFresh(now, window) {
				continue
			}
			if !yield(nodeMetrics) {
				return
			}
		}
	}
}

// Get returns the local snapshot of a node, falling back to the mirror for nodes reported to another process.
func (registry *Registry) Get(ctx context.Context, nodeId string) (model.NodeMetrics, error) {
	registry.mu.RLock()
	nodeMetrics, found := registry.nodes[nodeId]
	registry.mu.RUnlock()
	if found {
		return nodeMetrics, nil
	}

	if registry.mirror == nil {
		return model.NodeMetrics{}, ErrNodeNotFound
	}

	mirrorCtx, cancel := context.WithTimeout(ctx, registry.mirrorTimeout)
	defer cancel()

	nodeMetrics, err := registry.mirror.Get(mirrorCtx, nodeId)
	if err != nil {
		if !errors.Is(err, ErrNodeNotFound) {
			registry.collector.MirrorFailed("get")
			registry.logger.Warn("metrics cache read failed", "node", nodeId, "error", err)
		}
		return model.NodeMetrics{}, ErrNodeNotFound
	}

	return nodeMetrics, nil
}

func (registry *Registry) Len() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return len(registry.nodes)
}

// Close writes pending snapshots to the mirror and closes it.
func (registry *Registry) Close() error {
	if registry.mirror == nil {
		return nil
	}
	registry.mirrorWriter.close()
	return registry.mirror.Close()
}

func (registry *Registry) snapshot() []model.NodeMetrics {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	nodes := make([]model.NodeMetrics, 0, len(registry.nodes))
	for _, nodeMetrics := range registry.nodes {
		nodes = append(nodes, nodeMetrics)
	}

	return nodes
}
