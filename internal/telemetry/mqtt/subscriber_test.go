package mqtt

import (
	"testing"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (message fakeMessage) Duplicate() bool   { return false }
func (message fakeMessage) Qos() byte         { return 0 }
func (message fakeMessage) Retained() bool    { return false }
func (message fakeMessage) Topic() string     { return message.topic }
func (message fakeMessage) MessageID() uint16 { return 1 }
func (message fakeMessage) Payload() []byte   { return message.payload }
func (message fakeMessage) Ack()              {}

func TestNodeIdFromTopic(t *testing.T) {
	nodeId, err := NodeIdFromTopic("nodes/+/metrics", "nodes/relay-7/metrics")
	require.NoError(t, err)
	assert.Equal(t, "relay-7", nodeId)

	for _, topic := range []string{"nodes/relay-7", "nodes/relay-7/status", "devices/relay-7/metrics", "nodes//metrics"} {
		_, err := NodeIdFromTopic("nodes/+/metrics", topic)
		assert.Error(t, err, topic)
	}
}

func TestDecodeReading(t *testing.T) {
	nodeId, reading, err := DecodeReading(DEFAULT_TOPIC, "nodes/n1/metrics", []byte(`{"latency": 12.5, "connections": 4}`))
	require.NoError(t, err)

	assert.Equal(t, "n1", nodeId)
	require.NotNil(t, reading.Latency)
	assert.Equal(t, 12.5, *reading.Latency)
	require.NotNil(t, reading.Connections)
	assert.Equal(t, 4, *reading.Connections)
	assert.Nil(t, reading.Bandwidth)

	_, _, err = DecodeReading(DEFAULT_TOPIC, "nodes/n1/metrics", []byte(`not json`))
	assert.Error(t, err)
}

func TestHandleMessagePublishesTelemetry(t *testing.T) {
	bus := events.NewEventBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(common.TELEMETRY_EVENT_TYPE, received)

	subscriber, err := NewSubscriber(hclog.NewNullLogger(), bus, Options{Broker: "tcp://127.0.0.1:1883", ClientId: "test"})
	require.NoError(t, err)

	subscriber.handleMessage(nil, fakeMessage{topic: "nodes/broken/metrics", payload: []byte("{")})
	subscriber.handleMessage(nil, fakeMessage{topic: "nodes/n2/metrics", payload: []byte(`{"quality": 91}`)})

	require.Len(t, received, 1)
	event := <-received
	telemetryEvent, ok := event.Data.(events.TelemetryEvent)
	require.True(t, ok)
	assert.Equal(t, "n2", telemetryEvent.NodeId)
	assert.Equal(t, "mqtt", telemetryEvent.Source)
	assert.Equal(t, 91.0, *telemetryEvent.Telemetry.Quality)
}

func TestNewSubscriberValidatesOptions(t *testing.T) {
	_, err := NewSubscriber(hclog.NewNullLogger(), events.NewEventBus(), Options{Topic: "nodes/metrics"})
	assert.Error(t, err)

	_, err = NewSubscriber(hclog.NewNullLogger(), events.NewEventBus(), Options{Qos: 3})
	assert.Error(t, err)
}
