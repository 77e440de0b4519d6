package model

import "time"

type NodeMetrics struct {
	NodeId             string    `json:"nodeId"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	BandwidthAvailable float64   `json:"bandwidthAvailable"` // Mbps
	CurrentConnections int       `json:"currentConnections"`
	MaxConnections     int       `json:"maxConnections"`
	AvgLatency         float64   `json:"avgLatency"`   // ms
	PacketLoss         float64   `json:"packetLoss"`   // percentage, 0-100
	QualityScore       float64   `json:"qualityScore"` // 0-100
	UptimePercentage   float64   `json:"uptimePercentage"`
	LastSeen           time.Time `json:"lastSeen"`
}

// LoadRatio is the fraction of connection slots in use. A zero capacity counts as one slot.
func (metrics *NodeMetrics) LoadRatio() float64 {
	return float64(metrics.CurrentConnections) / float64(max(metrics.MaxConnections, 1))
}

// HasCapacity reports whether the node accepts another connection.
func (metrics *NodeMetrics) HasCapacity() bool {
	return metrics.CurrentConnections < metrics.MaxConnections
}

// IsFresh reports whether the node reported within window before now.
func (metrics *NodeMetrics) IsFresh(now time.Time, window time.Duration) bool {
	return now.Sub(metrics.LastSeen) < window
}

// Telemetry is a single reading pushed by a node. Every field is optional.
type Telemetry struct {
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Bandwidth      *float64 `json:"bandwidth,omitempty"`
	Connections    *int     `json:"connections,omitempty"`
	MaxConnections *int     `json:"max_connections,omitempty"`
	Latency        *float64 `json:"latency,omitempty"`
	PacketLoss     *float64 `json:"packet_loss,omitempty"`
	Quality        *float64 `json:"quality,omitempty"`
	Uptime         *float64 `json:"uptime,omitempty"`
}

const (
	DefaultBandwidth      = 100.0
	DefaultConnections    = 0
	DefaultMaxConnections = 100
	DefaultLatency        = 50.0
	DefaultPacketLoss     = 0.0
	DefaultQuality        = 80.0
	DefaultUptime         = 99.0
)

// ToNodeMetrics fills omitted fields with defaults and stamps the reading with seenAt.
func (telemetry *Telemetry) ToNodeMetrics(nodeId string, seenAt time.Time) NodeMetrics {
	return NodeMetrics{
		NodeId:             nodeId,
		Latitude:           valueOr(telemetry.Latitude, 0),
		Longitude:          valueOr(telemetry.Longitude, 0),
		BandwidthAvailable: valueOr(telemetry.Bandwidth, DefaultBandwidth),
		CurrentConnections: valueOr(telemetry.Connections, DefaultConnections),
		MaxConnections:     valueOr(telemetry.MaxConnections, DefaultMaxConnections),
		AvgLatency:         valueOr(telemetry.Latency, DefaultLatency),
		PacketLoss:         valueOr(telemetry.PacketLoss, DefaultPacketLoss),
		QualityScore:       valueOr(telemetry.Quality, DefaultQuality),
		UptimePercentage:   valueOr(telemetry.Uptime, DefaultUptime),
		LastSeen:           seenAt,
	}
}

// TelemetryFromMetrics is the inverse of ToNodeMetrics, with every field set.
func TelemetryFromMetrics(metrics NodeMetrics) Telemetry {
	return Telemetry{
		Latitude:       &metrics.Latitude,
		Longitude:      &metrics.Longitude,
		Bandwidth:      &metrics.BandwidthAvailable,
		Connections:    &metrics.CurrentConnections,
		MaxConnections: &metrics.MaxConnections,
		Latency:        &metrics.AvgLatency,
		PacketLoss:     &metrics.PacketLoss,
		Quality:        &metrics.QualityScore,
		Uptime:         &metrics.UptimePercentage,
	}
}

func valueOr[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}
