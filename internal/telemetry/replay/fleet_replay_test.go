package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fleet = `id,lat,lon,bandwidth,connections,max_connections,latency,packet_loss,quality,uptime
zg-1,45.81,15.98,120,10,100,12,0.1,95,99.9
st-1,43.51,16.44,,,,,,,
`

func writeFleet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPublishFleet(t *testing.T) {
	bus := events.NewEventBus()
	received := make(chan events.Event, 10)
	bus.Subscribe(common.TELEMETRY_EVENT_TYPE, received)

	replay := NewFleetReplay(hclog.NewNullLogger(), bus, writeFleet(t, fleet), "")
	published, err := replay.PublishFleet()
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	readings := map[string]events.TelemetryEvent{}
	for i := 0; i < 2; i++ {
		event := <-received
		telemetryEvent, ok := event.Data.(events.TelemetryEvent)
		require.True(t, ok)
		readings[telemetryEvent.NodeId] = telemetryEvent
	}

	require.Contains(t, readings, "zg-1")
	assert.Equal(t, "replay", readings["zg-1"].Source)
	require.NotNil(t, readings["zg-1"].Telemetry.Bandwidth)
	assert.Equal(t, 120.0, *readings["zg-1"].Telemetry.Bandwidth)
	assert.Nil(t, readings["st-1"].Telemetry.Quality)
}

func TestStartFailsOnMissingFile(t *testing.T) {
	replay := NewFleetReplay(hclog.NewNullLogger(), events.NewEventBus(), filepath.Join(t.TempDir(), "missing.csv"), "@every 1s")
	assert.Error(t, replay.Start())
}

func TestScheduledReplay(t *testing.T) {
	bus := events.NewEventBus()
	received := make(chan events.Event, 100)
	bus.Subscribe(common.TELEMETRY_EVENT_TYPE, received)

	replay := NewFleetReplay(hclog.NewNullLogger(), bus, writeFleet(t, fleet), "@every 1s")
	require.NoError(t, replay.Start())
	defer replay.Stop()

	assert.Eventually(t, func() bool { return len(received) >= 4 }, 3*time.Second, 50*time.Millisecond)
}
