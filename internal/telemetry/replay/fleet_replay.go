package replay

import (
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/telemetry"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// FleetReplay re-reads a fleet CSV on a schedule and publishes every row as a telemetry reading.
// Editing the file while it runs changes what the router sees on the next tick.
type FleetReplay struct {
	eventBus      *events.EventBus
	cronScheduler *cron.Cron
	logger        hclog.Logger
	path          string
	schedule      string
}

func NewFleetReplay(logger hclog.Logger, eventBus *events.EventBus, path string, schedule string) *FleetReplay {
	return &FleetReplay{
		eventBus:      eventBus,
		cronScheduler: cron.New(cron.WithSeconds()),
		logger:        logger.Named("replay"),
		path:          path,
		schedule:      schedule,
	}
}

var _ telemetry.Source = (*FleetReplay)(nil)

// Start publishes the file once and then on every schedule tick. An empty schedule publishes only once.
func (replay *FleetReplay) Start() error {
	if _, err := replay.PublishFleet(); err != nil {
		return err
	}

	if replay.schedule == "" {
		return nil
	}
	if _, err := replay.cronScheduler.AddFunc(replay.schedule, replay.notifyFleetReadings); err != nil {
		return err
	}
	replay.cronScheduler.Start()

	return nil
}

func (replay *FleetReplay) Stop() {
	<-replay.cronScheduler.Stop().Done()
}

// PublishFleet reads the fleet file and publishes one event per node. It returns the number of events published.
func (replay *FleetReplay) PublishFleet() (int, error) {
	fleet, err := common.ReadFleetFile(replay.path)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for nodeId, reading := range fleet {
		dropped += replay.eventBus.Publish(common.NewTelemetryEvent(nodeId, reading, telemetry.REPLAY_SOURCE))
	}
	if dropped > 0 {
		replay.logger.Warn("subscribers fell behind, readings dropped", "dropped", dropped)
	}
	replay.logger.Debug("published fleet readings", "nodes", len(fleet))

	return len(fleet), nil
}

func (replay *FleetReplay) notifyFleetReadings() {
	if _, err := replay.PublishFleet(); err != nil {
		replay.logger.Error("Error while reading fleet file", "path", replay.path, "error", err)
	}
}
