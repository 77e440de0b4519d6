package common

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
)

const fleetCsvColumns = 10

// ReadFleetFile parses a fleet CSV with the columns
// id,lat,lon,bandwidth,connections,max_connections,latency,packet_loss,quality,uptime.
// Empty cells are left unset so telemetry defaults apply. A header row starting with "id" is skipped.
func ReadFleetFile(path string) (map[string]model.Telemetry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read fleet file %s: %w", path, err)
	}

	fleet := make(map[string]model.Telemetry)
	for i, record := range records {
		if i == 0 && strings.EqualFold(record[0], "id") {
			continue
		}
		if len(record) != fleetCsvColumns {
			return nil, fmt.Errorf("incorrect CSV record: %v", record)
		}

		telemetry := model.Telemetry{}
		floats := []**float64{&telemetry.Latitude, &telemetry.Longitude, &telemetry.Bandwidth}
		for j, target := range floats {
			if *target, err = parseOptionalFloat(record[1+j]); err != nil {
				return nil, fmt.Errorf("node %s: %w", record[0], err)
			}
		}
		if telemetry.Connections, err = parseOptionalInt(record[4]); err != nil {
			return nil, fmt.Errorf("node %s: %w", record[0], err)
		}
		if telemetry.MaxConnections, err = parseOptionalInt(record[5]); err != nil {
			return nil, fmt.Errorf("node %s: %w", record[0], err)
		}
		floats = []**float64{&telemetry.Latency, &telemetry.PacketLoss, &telemetry.Quality, &telemetry.Uptime}
		for j, target := range floats {
			if *target, err = parseOptionalFloat(record[6+j]); err != nil {
				return nil, fmt.Errorf("node %s: %w", record[0], err)
			}
		}

		fleet[strings.TrimSpace(record[0])] = telemetry
	}

	return fleet, nil
}

func parseOptionalFloat(cell string) (*float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func parseOptionalInt(cell string) (*int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(cell)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// NewTelemetryEvent wraps one node reading for the event bus.
func NewTelemetryEvent(nodeId string, telemetry model.Telemetry, source string) events.Event {
	return events.Event{
		Type:      TELEMETRY_EVENT_TYPE,
		Timestamp: time.Now(),
		Data: events.TelemetryEvent{
			NodeId:    nodeId,
			Telemetry: telemetry,
			Source:    source,
		},
	}
}
