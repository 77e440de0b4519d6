package telemetry

// Source feeds node readings into the event bus.
type Source interface {
	Start() error
	Stop()
}

const (
	HTTP_SOURCE   = "http"
	MQTT_SOURCE   = "mqtt"
	REPLAY_SOURCE = "replay"
)
