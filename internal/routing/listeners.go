package routing

import (
	"context"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
)

const eventBufferSize = 1024

// Listen applies telemetry and governance events from the bus until ctx is done.
func (router *Router) Listen(ctx context.Context, eventBus *events.EventBus) {
	telemetryChan := make(chan events.Event, eventBufferSize)
	governanceChan := make(chan events.Event, eventBufferSize)

	eventBus.Subscribe(common.TELEMETRY_EVENT_TYPE, telemetryChan)
	eventBus.Subscribe(common.WEIGHTS_PROPOSAL_EXECUTED_EVENT_TYPE, governanceChan)
	defer eventBus.Unsubscribe(common.TELEMETRY_EVENT_TYPE, telemetryChan)
	defer eventBus.Unsubscribe(common.WEIGHTS_PROPOSAL_EXECUTED_EVENT_TYPE, governanceChan)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-telemetryChan:
			router.telemetryHandler(ctx, event)
		case event := <-governanceChan:
			router.governanceHandler(event)
		}
	}
}

func (router *Router) telemetryHandler(ctx context.Context, event events.Event) {
	telemetryEvent, ok := event.Data.(events.TelemetryEvent)
	if !ok || telemetryEvent.NodeId == "" {
		router.logger.Info("Invalid event data", "type", event.Type)
		return
	}

	router.UpdateNodeMetrics(ctx, telemetryEvent.NodeId, telemetryEvent.Telemetry, telemetryEvent.Source)
}

func (router *Router) governanceHandler(event events.Event) {
	proposalEvent, ok := event.Data.(events.WeightsProposalExecutedEvent)
	if !ok {
		router.logger.Info("Invalid event data", "type", event.Type)
		return
	}

	if _, err := router.UpdateWeightsFromGovernance(proposalEvent.Weights); err != nil {
		router.logger.Error("rejected governance weight update", "proposal", proposalEvent.ProposalId, "error", err)
	}
}
