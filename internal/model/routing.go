package model

type RoutingDecision struct {
	NodeId             string          `json:"nodeId"`
	Score              float64         `json:"score"`
	EstimatedLatency   float64         `json:"estimatedLatency"`
	EstimatedBandwidth float64         `json:"estimatedBandwidth"`
	Confidence         float64         `json:"confidence"`
	Breakdown          *ScoreBreakdown `json:"breakdown,omitempty"`
}

// ScoreBreakdown holds the normalized components of a composite score.
type ScoreBreakdown struct {
	Latency   float64 `json:"latency"`
	Bandwidth float64 `json:"bandwidth"`
	Quality   float64 `json:"quality"`
	Load      float64 `json:"load"`
	Distance  float64 `json:"distance"`
}

// Component returns the value for a criterion name, or false if the criterion is unknown.
func (breakdown *ScoreBreakdown) Component(criterion string) (float64, bool) {
	switch criterion {
	case "latency":
		return breakdown.Latency, true
	case "bandwidth":
		return breakdown.Bandwidth, true
	case "quality":
		return breakdown.Quality, true
	case "load":
		return breakdown.Load, true
	case "distance":
		return breakdown.Distance, true
	}
	return 0, false
}
