package server

import (
	"encoding/json"
	"io"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	return d.Decode(i)
}

type SelectionResponse struct {
	RequestId string                  `json:"requestId"`
	Mode      string                  `json:"mode"`
	Decisions []model.RoutingDecision `json:"decisions"`
}

type NodesResponse struct {
	Nodes []model.NodeMetrics `json:"nodes"`
}

type WeightsResponse struct {
	Weights map[string]float64 `json:"weights"`
}

type LoadTrainingRequest struct {
	Samples []model.LoadSample `json:"samples"`
}

type ReliabilityTrainingRequest struct {
	Samples []model.ReliabilitySample `json:"samples"`
}

// TrainingResponse reports whether the predictor serves a trained model after the request. Fewer than
// the minimum number of samples leaves the predictor as it was.
type TrainingResponse struct {
	Predictor string `json:"predictor"`
	Samples   int    `json:"samples"`
	Trained   bool   `json:"trained"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
