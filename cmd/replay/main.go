package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/routing"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/routing/prediction"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/telemetry/replay"
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-hclog"
)

const printInterval = 5 * time.Second

// replay <fleet.csv> <lat> <lon> [numNodes]
func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "relay-replay",
		Level: hclog.LevelFromString("DEBUG"),
	})

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: replay <fleet.csv> <lat> <lon> [numNodes]")
		os.Exit(2)
	}
	lat, _ := strconv.ParseFloat(os.Args[2], 64)
	lon, _ := strconv.ParseFloat(os.Args[3], 64)
	numNodes := common.DEFAULT_BEST_NUM_NODES
	if len(os.Args) == 5 {
		numNodes, _ = strconv.Atoi(os.Args[4])
	}

	clk := clock.New()
	eventBus := events.NewEventBus()

	weights, err := routing.NewWeightManager(logger, nil, common.DefaultWeights())
	if err != nil {
		logger.Error("Error creating weights", "error", err)
		return
	}
	router := routing.NewRouter(logger, clk,
		registry.NewRegistry(logger, clk, nil, registry.Options{}),
		routing.NewScoringEngine(prediction.NewLoadPredictor(logger, clk), prediction.NewReliabilityPredictor(logger, clk), 1),
		weights, nil, common.FRESHNESS_WINDOW)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Listen(ctx, eventBus)

	fleetReplay := replay.NewFleetReplay(logger, eventBus, os.Args[1], "@every 5s")
	if err := fleetReplay.Start(); err != nil {
		logger.Error("Error starting replay", "error", err)
		return
	}
	defer fleetReplay.Stop()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(printInterval)
	defer ticker.Stop()
	for {
		select {
		case sig := <-c:
			logger.Info("Got signal:", "signal", sig)
			return
		case <-ticker.C:
			printDecisions(ctx, logger, router, lat, lon, numNodes)
		}
	}
}

func printDecisions(ctx context.Context, logger hclog.Logger, router *routing.Router, lat, lon float64, numNodes int) {
	decisions, err := router.SelectBest(ctx, lat, lon, numNodes, common.DEFAULT_MIN_QUALITY)
	if err != nil {
		logger.Error("Error selecting nodes", "error", err)
		return
	}

	logger.Info(fmt.Sprintf("Best %d of %d active nodes for (%.4f, %.4f)", len(decisions), len(router.ActiveNodes()), lat, lon))
	for i, decision := range decisions {
		fmt.Printf("%d. %-16s score=%.3f confidence=%.3f latency=%.1fms bandwidth=%.1fMbps\n",
			i+1, decision.NodeId, decision.Score, decision.Confidence, decision.EstimatedLatency, decision.EstimatedBandwidth)
	}
}
