package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisMirror stores each node as a hash under node:{id}:metrics with an expiry.
type RedisMirror struct {
	client redis.UniversalClient
}

func NewRedisMirror(options *redis.Options) *RedisMirror {
	return &RedisMirror{client: redis.NewClient(options)}
}

func NewRedisMirrorFromClient(client redis.UniversalClient) *RedisMirror {
	return &RedisMirror{client: client}
}

func (mirror *RedisMirror) Put(ctx context.Context, nodeMetrics model.NodeMetrics, ttl time.Duration) error {
	key := metricsKey(nodeMetrics.NodeId)

	_, err := mirror.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, metricsToHash(nodeMetrics))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}

	return nil
}

func (mirror *RedisMirror) Get(ctx context.Context, nodeId string) (model.NodeMetrics, error) {
	key := metricsKey(nodeId)

	fields, err := mirror.client.HGetAll(ctx, key).Result()
	if err != nil {
		return model.NodeMetrics{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return model.NodeMetrics{}, ErrNodeNotFound
	}

	return hashToMetrics(nodeId, fields)
}

func (mirror *RedisMirror) Ping(ctx context.Context) error {
	return mirror.client.Ping(ctx).Err()
}

func (mirror *RedisMirror) Close() error {
	return mirror.client.Close()
}

func metricsKey(nodeId string) string {
	return fmt.Sprintf(common.METRICS_CACHE_KEY_FORMAT, nodeId)
}

func metricsToHash(nodeMetrics model.NodeMetrics) map[string]interface{} {
	return map[string]interface{}{
		"latitude":        nodeMetrics.Latitude,
		"longitude":       nodeMetrics.Longitude,
		"bandwidth":       nodeMetrics.BandwidthAvailable,
		"connections":     nodeMetrics.CurrentConnections,
		"max_connections": nodeMetrics.MaxConnections,
		"latency":         nodeMetrics.AvgLatency,
		"packet_loss":     nodeMetrics.PacketLoss,
		"quality":         nodeMetrics.QualityScore,
		"uptime":          nodeMetrics.UptimePercentage,
		"last_seen":       nodeMetrics.LastSeen.UTC().Format(time.RFC3339Nano),
	}
}

func hashToMetrics(nodeId string, fields map[string]string) (model.NodeMetrics, error) {
	nodeMetrics := model.NodeMetrics{NodeId: nodeId}

	floats := map[string]*float64{
		"latitude":    &nodeMetrics.Latitude,
		"longitude":   &nodeMetrics.Longitude,
		"bandwidth":   &nodeMetrics.BandwidthAvailable,
		"latency":     &nodeMetrics.AvgLatency,
		"packet_loss": &nodeMetrics.PacketLoss,
		"quality":     &nodeMetrics.QualityScore,
		"uptime":      &nodeMetrics.UptimePercentage,
	}
	for field, target := range floats {
		value, err := strconv.ParseFloat(fields[field], 64)
		if err != nil {
			return model.NodeMetrics{}, fmt.Errorf("field %s: %w", field, err)
		}
		*target = value
	}

	ints := map[string]*int{
		"connections":     &nodeMetrics.CurrentConnections,
		"max_connections": &nodeMetrics.MaxConnections,
	}
	for field, target := range ints {
		value, err := strconv.Atoi(fields[field])
		if err != nil {
			return model.NodeMetrics{}, fmt.Errorf("field %s: %w", field, err)
		}
		*target = value
	}

	lastSeen, err := time.Parse(time.RFC3339Nano, fields["last_seen"])
	if err != nil {
		return model.NodeMetrics{}, fmt.Errorf("field last_seen: %w", err)
	}
	nodeMetrics.LastSeen = lastSeen

	return nodeMetrics, nil
}
