package model

type LoadSample struct {
	Bandwidth   float64 `json:"bandwidth"`
	Connections float64 `json:"connections"`
	Latency     float64 `json:"latency"`
	Quality     float64 `json:"quality"`
	Hour        int     `json:"hour"`
	DayOfWeek   int     `json:"day_of_week"` // Monday = 0
	Uptime      float64 `json:"uptime"`
	FutureLoad  float64 `json:"future_load"`
}

type ReliabilitySample struct {
	Quality    float64 `json:"quality"`
	Uptime     float64 `json:"uptime"`
	PacketLoss float64 `json:"packet_loss"`
	Latency    float64 `json:"latency"`
	Bandwidth  float64 `json:"bandwidth"`
	Reliable   bool    `json:"reliable"`
}
