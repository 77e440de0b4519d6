package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/telemetry"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/hashicorp/go-hclog"
)

const (
	DEFAULT_TOPIC           = "nodes/+/metrics"
	DEFAULT_CONNECT_TIMEOUT = 10 * time.Second
	disconnectQuiesceMs     = 250
)

type Options struct {
	Broker         string
	ClientId       string
	Topic          string
	Qos            byte
	ConnectTimeout time.Duration
}

// Subscriber listens for node readings on an MQTT topic filter with a single "+" level holding the node id,
// e.g. nodes/+/metrics. Payloads are JSON telemetry objects.
type Subscriber struct {
	client   paho.Client
	eventBus *events.EventBus
	logger   hclog.Logger
	options  Options
}

func NewSubscriber(logger hclog.Logger, eventBus *events.EventBus, options Options) (*Subscriber, error) {
	if options.Topic == "" {
		options.Topic = DEFAULT_TOPIC
	}
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = DEFAULT_CONNECT_TIMEOUT
	}
	if options.Qos > 2 {
		return nil, fmt.Errorf("invalid qos %d", options.Qos)
	}
	if strings.Count(options.Topic, "+") != 1 {
		return nil, fmt.Errorf("topic %q must contain exactly one '+' level for the node id", options.Topic)
	}

	subscriber := &Subscriber{
		eventBus: eventBus,
		logger:   logger.Named("mqtt"),
		options:  options,
	}

	clientOptions := paho.NewClientOptions().
		AddBroker(options.Broker).
		SetClientID(options.ClientId).
		SetAutoReconnect(true).
		SetConnectTimeout(options.ConnectTimeout).
		SetOnConnectHandler(subscriber.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			subscriber.logger.Warn("connection to broker lost", "broker", options.Broker, "error", err)
		})
	subscriber.client = paho.NewClient(clientOptions)

	return subscriber, nil
}

var _ telemetry.Source = (*Subscriber)(nil)

func (subscriber *Subscriber) Start() error {
	token := subscriber.client.Connect()
	if !token.WaitTimeout(subscriber.options.ConnectTimeout) {
		return fmt.Errorf("connect to %s: timed out", subscriber.options.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", subscriber.options.Broker, err)
	}

	subscriber.logger.Info("connected to broker", "broker", subscriber.options.Broker, "topic", subscriber.options.Topic)
	return nil
}

func (subscriber *Subscriber) Stop() {
	if subscriber.client.IsConnected() {
		subscriber.client.Disconnect(disconnectQuiesceMs)
	}
}

// onConnect subscribes again after every reconnect since the session may not have been kept.
func (subscriber *Subscriber) onConnect(client paho.Client) {
	token := client.Subscribe(subscriber.options.Topic, subscriber.options.Qos, subscriber.handleMessage)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			subscriber.logger.Error("subscribe failed", "topic", subscriber.options.Topic, "error", err)
		}
	}()
}

func (subscriber *Subscriber) handleMessage(_ paho.Client, message paho.Message) {
	nodeId, reading, err := DecodeReading(subscriber.options.Topic, message.Topic(), message.Payload())
	if err != nil {
		subscriber.logger.Warn("discarding reading", "topic", message.Topic(), "error", err)
		return
	}

	if dropped := subscriber.eventBus.Publish(common.NewTelemetryEvent(nodeId, reading, telemetry.MQTT_SOURCE)); dropped > 0 {
		subscriber.logger.Warn("subscribers fell behind, reading dropped", "nodeId", nodeId)
	}
}

var errTopicMismatch = errors.New("topic does not match filter")

// NodeIdFromTopic returns the topic level matched by the "+" wildcard of filter.
func NodeIdFromTopic(filter string, topic string) (string, error) {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")
	if len(filterLevels) != len(topicLevels) {
		return "", errTopicMismatch
	}

	nodeId := ""
	for i, level := range filterLevels {
		switch level {
		case "+":
			nodeId = topicLevels[i]
		case topicLevels[i]:
		default:
			return "", errTopicMismatch
		}
	}
	if nodeId == "" {
		return "", errors.New("empty node id")
	}

	return nodeId, nil
}

func DecodeReading(filter string, topic string, payload []byte) (string, model.Telemetry, error) {
	nodeId, err := NodeIdFromTopic(filter, topic)
	if err != nil {
		return "", model.Telemetry{}, err
	}

	var reading model.Telemetry
	if err := json.Unmarshal(payload, &reading); err != nil {
		return "", model.Telemetry{}, fmt.Errorf("decode payload: %w", err)
	}

	return nodeId, reading, nil
}
