package routing

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/metrics"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/registry"
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

const (
	BestMatchMode    = "best"
	LoadBalancedMode = "balanced"
)

// Router answers node selection queries from registry snapshots. It never mutates the registry
// while selecting.
type Router struct {
	registry        *registry.Registry
	scoring         *ScoringEngine
	weights         *WeightManager
	clock           clock.Clock
	logger          hclog.Logger
	collector       *metrics.Collector
	freshnessWindow time.Duration
}

func NewRouter(logger hclog.Logger, clk clock.Clock, nodeRegistry *registry.Registry, scoring *ScoringEngine,
	weights *WeightManager, collector *metrics.Collector, freshnessWindow time.Duration) *Router {
	if freshnessWindow <= 0 {
		freshnessWindow = common.FRESHNESS_WINDOW
	}

	return &Router{
		registry:        nodeRegistry,
		scoring:         scoring,
		weights:         weights,
		clock:           clk,
		logger:          logger.Named("router"),
		collector:       collector,
		freshnessWindow: freshnessWindow,
	}
}

// UpdateNodeMetrics applies a telemetry push. Omitted fields take their defaults.
func (router *Router) UpdateNodeMetrics(ctx context.Context, nodeId string, telemetry model.Telemetry, source string) model.NodeMetrics {
	nodeMetrics := router.registry.Update(ctx, nodeId, telemetry)
	router.collector.TelemetryReceived(source)
	return nodeMetrics
}

// UpdateWeightsFromGovernance replaces the scoring weights after a finalized policy change.
func (router *Router) UpdateWeightsFromGovernance(newWeights map[string]float64) (Weights, error) {
	return router.weights.SetWeights(newWeights)
}

func (router *Router) Weights() Weights {
	return router.weights.Current()
}

func (router *Router) Node(ctx context.Context, nodeId string) (model.NodeMetrics, error) {
	return router.registry.Get(ctx, nodeId)
}

// ActiveNodes lists fresh nodes ordered by id.
func (router *Router) ActiveNodes() []model.NodeMetrics {
	nodes := slices.Collect(router.registry.ActiveNodes(router.clock.Now(), router.freshnessWindow))
	slices.SortFunc(nodes, func(a, b model.NodeMetrics) int {
		return strings.Compare(a.NodeId, b.NodeId)
	})
	return nodes
}

type scoredNode struct {
	node      model.NodeMetrics
	score     float64
	breakdown model.ScoreBreakdown
}

// SelectBest ranks fresh nodes with spare capacity and quality of at least minQuality by composite
// score for a client at (userLat, userLon). Equal scores are ordered by node id. An empty candidate set
// yields an empty result. The only error is a cancelled ctx.
func (router *Router) SelectBest(ctx context.Context, userLat, userLon float64, numNodes int, minQuality float64) ([]model.RoutingDecision, error) {
	start := router.clock.Now()

	candidates := []model.NodeMetrics{}
	active := 0
	for node := range router.registry.ActiveNodes(start, router.freshnessWindow) {
		active++
		if node.QualityScore >= minQuality && node.HasCapacity() {
			candidates = append(candidates, node)
		}
	}
	router.collector.SetActiveNodes(active)

	if len(candidates) == 0 || numNodes <= 0 {
		if len(candidates) == 0 {
			router.logger.Warn("no active nodes available", "active", active, "minQuality", minQuality)
		}
		router.collector.SelectionServed(BestMatchMode, router.clock.Since(start), 0)
		return []model.RoutingDecision{}, nil
	}

	weights := router.weights.Current()
	scored, err := router.scoreCandidates(ctx, candidates, userLat, userLon, weights)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(scored, func(a, b scoredNode) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.node.NodeId, b.node.NodeId)
	})

	decisions := make([]model.RoutingDecision, 0, min(numNodes, len(scored)))
	for _, candidate := range scored[:min(numNodes, len(scored))] {
		breakdown := candidate.breakdown
		decisions = append(decisions, model.RoutingDecision{
			NodeId:             candidate.node.NodeId,
			Score:              candidate.score,
			EstimatedLatency:   candidate.node.AvgLatency,
			EstimatedBandwidth: candidate.node.BandwidthAvailable,
			Confidence:         min(candidate.score*common.CONFIDENCE_MULTIPLIER, 1.0),
			Breakdown:          &breakdown,
		})
	}

	router.collector.SelectionServed(BestMatchMode, router.clock.Since(start), len(decisions))
	router.logger.Debug("best match selection", "candidates", len(candidates), "returned", len(decisions))

	return decisions, nil
}

// scoreCandidates scores nodes in parallel. Results keep the order of candidates.
func (router *Router) scoreCandidates(ctx context.Context, candidates []model.NodeMetrics, userLat, userLon float64,
	weights Weights) ([]scoredNode, error) {
	scored := make([]scoredNode, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i := range candidates {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			score, breakdown := router.scoring.Score(&candidates[i], userLat, userLon, weights)
			scored[i] = scoredNode{node: candidates[i], score: score, breakdown: breakdown}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return scored, nil
}

// SelectLoadBalanced returns the least loaded fresh nodes that offer at least requiredBandwidth and run
// below 80% of their connection limit. Scores are quality/100 with a fixed confidence; distance and
// reliability are not consulted.
func (router *Router) SelectLoadBalanced(requiredBandwidth float64, numNodes int) []model.RoutingDecision {
	start := router.clock.Now()

	suitable := []model.NodeMetrics{}
	for node := range router.registry.ActiveNodes(start, router.freshnessWindow) {
		if node.BandwidthAvailable >= requiredBandwidth &&
			float64(node.CurrentConnections) < float64(node.MaxConnections)*common.BALANCED_MAX_LOAD_RATIO {
			suitable = append(suitable, node)
		}
	}

	slices.SortStableFunc(suitable, func(a, b model.NodeMetrics) int {
		if c := cmp.Compare(a.LoadRatio(), b.LoadRatio()); c != 0 {
			return c
		}
		return strings.Compare(a.NodeId, b.NodeId)
	})

	decisions := []model.RoutingDecision{}
	if numNodes > 0 {
		for _, node := range suitable[:min(numNodes, len(suitable))] {
			decisions = append(decisions, model.RoutingDecision{
				NodeId:             node.NodeId,
				Score:              node.QualityScore / 100,
				EstimatedLatency:   node.AvgLatency,
				EstimatedBandwidth: node.BandwidthAvailable,
				Confidence:         common.BALANCED_CONFIDENCE,
			})
		}
	}

	if len(decisions) == 0 {
		router.logger.Debug("no nodes satisfy load balanced query", "requiredBandwidth", requiredBandwidth)
	}
	router.collector.SelectionServed(LoadBalancedMode, router.clock.Since(start), len(decisions))

	return decisions
}
