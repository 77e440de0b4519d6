package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/metrics"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/routing"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/routing/prediction"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type testServer struct {
	*httptest.Server
	load        *prediction.LoadPredictor
	reliability *prediction.ReliabilityPredictor
	modelPaths  ModelPaths
}

func newTestServer(t *testing.T, limiter *rate.Limiter) testServer {
	t.Helper()

	logger := hclog.NewNullLogger()
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	load := prediction.NewLoadPredictor(logger, mockClock)
	reliability := prediction.NewReliabilityPredictor(logger, mockClock)
	weights, err := routing.NewWeightManager(logger, collector, common.DefaultWeights())
	require.NoError(t, err)

	router := routing.NewRouter(logger, mockClock,
		registry.NewRegistry(logger, mockClock, collector, registry.Options{}),
		routing.NewScoringEngine(load, reliability, 1),
		weights, collector, common.FRESHNESS_WINDOW)

	dir := t.TempDir()
	modelPaths := ModelPaths{Load: filepath.Join(dir, "load.model"), Reliability: filepath.Join(dir, "reliability.model")}
	handler := NewHandler(logger, router, load, reliability, routing.NewModelReloader(logger, collector), modelPaths)

	server := httptest.NewServer(NewRouter(handler, limiter, promRegistry))
	t.Cleanup(server.Close)

	return testServer{Server: server, load: load, reliability: reliability, modelPaths: modelPaths}
}

func (server testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	request, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	response, err := server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	return response.StatusCode, content
}

const perfectNodeJSON = `{"latitude": 0, "longitude": 0, "bandwidth": 100, "connections": 0, "max_connections": 100,
	"latency": 0, "packet_loss": 0, "quality": 100, "uptime": 100}`

func TestPushAndGetNode(t *testing.T) {
	server := newTestServer(t, nil)

	status, body := server.do(t, http.MethodPost, "/nodes/relay-1/metrics", `{"latency": 20}`)
	require.Equal(t, http.StatusOK, status)

	pushed := model.NodeMetrics{}
	require.NoError(t, json.Unmarshal(body, &pushed))
	assert.Equal(t, "relay-1", pushed.NodeId)
	assert.Equal(t, 20.0, pushed.AvgLatency)
	assert.Equal(t, 80.0, pushed.QualityScore)

	status, body = server.do(t, http.MethodGet, "/nodes/relay-1", "")
	require.Equal(t, http.StatusOK, status)
	fetched := model.NodeMetrics{}
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, pushed.AvgLatency, fetched.AvgLatency)

	status, _ = server.do(t, http.MethodGet, "/nodes/unknown", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = server.do(t, http.MethodGet, "/nodes", "")
	require.Equal(t, http.StatusOK, status)
	nodes := NodesResponse{}
	require.NoError(t, json.Unmarshal(body, &nodes))
	assert.Len(t, nodes.Nodes, 1)
}

func TestPushMetricsRejectsInvalidPayload(t *testing.T) {
	server := newTestServer(t, nil)

	status, _ := server.do(t, http.MethodPost, "/nodes/relay-1/metrics", `{"latency": "fast"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodPost, "/nodes/relay-1/metrics", `{"jitter": 3}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSelectBest(t *testing.T) {
	server := newTestServer(t, nil)
	server.do(t, http.MethodPost, "/nodes/A/metrics", perfectNodeJSON)

	status, body := server.do(t, http.MethodGet, "/routing/best?lat=0&lon=0&numNodes=1", "")
	require.Equal(t, http.StatusOK, status)

	response := SelectionResponse{}
	require.NoError(t, json.Unmarshal(body, &response))
	_, err := uuid.Parse(response.RequestId)
	assert.NoError(t, err)
	assert.Equal(t, routing.BestMatchMode, response.Mode)
	require.Len(t, response.Decisions, 1)
	assert.Equal(t, "A", response.Decisions[0].NodeId)
	assert.Nil(t, response.Decisions[0].Breakdown)

	status, body = server.do(t, http.MethodGet, "/routing/best?lat=0&lon=0&explain=true", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &response))
	require.NotNil(t, response.Decisions[0].Breakdown)
	assert.Equal(t, 1.0, response.Decisions[0].Breakdown.Distance)
}

func TestSelectBestValidatesQuery(t *testing.T) {
	server := newTestServer(t, nil)

	for _, query := range []string{"lon=0", "lat=0", "lat=north&lon=0", "lat=0&lon=0&numNodes=many", "lat=0&lon=0&explain=maybe",
		"lat=NaN&lon=0", "lat=0&lon=Inf", "lat=-Inf&lon=0", "lat=0&lon=0&minQuality=NaN"} {
		status, _ := server.do(t, http.MethodGet, "/routing/best?"+query, "")
		assert.Equal(t, http.StatusBadRequest, status, query)
	}
}

func TestSelectBestEmptyFleet(t *testing.T) {
	server := newTestServer(t, nil)

	status, body := server.do(t, http.MethodGet, "/routing/best?lat=45.8&lon=15.9", "")
	require.Equal(t, http.StatusOK, status)

	response := SelectionResponse{}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.NotNil(t, response.Decisions)
	assert.Empty(t, response.Decisions)
}

func TestSelectLoadBalanced(t *testing.T) {
	server := newTestServer(t, nil)
	server.do(t, http.MethodPost, "/nodes/A/metrics", perfectNodeJSON)
	server.do(t, http.MethodPost, "/nodes/B/metrics", `{"connections": 90}`)

	status, body := server.do(t, http.MethodGet, "/routing/balanced?requiredBandwidth=50", "")
	require.Equal(t, http.StatusOK, status)
	response := SelectionResponse{}
	require.NoError(t, json.Unmarshal(body, &response))
	require.Len(t, response.Decisions, 1)
	assert.Equal(t, "A", response.Decisions[0].NodeId)
	assert.Equal(t, 0.8, response.Decisions[0].Confidence)

	status, body = server.do(t, http.MethodGet, "/routing/balanced?requiredBandwidth=150", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Empty(t, response.Decisions)

	status, _ = server.do(t, http.MethodGet, "/routing/balanced", "")
	assert.Equal(t, http.StatusBadRequest, status)

	for _, query := range []string{"requiredBandwidth=NaN", "requiredBandwidth=Inf"} {
		status, _ = server.do(t, http.MethodGet, "/routing/balanced?"+query, "")
		assert.Equal(t, http.StatusBadRequest, status, query)
	}
}

func TestWriteJSONLogsEncodingFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &logs})

	recorder := httptest.NewRecorder()
	writeJSON(logger, recorder, map[string]float64{"score": math.NaN()})

	assert.Contains(t, logs.String(), "cannot encode response")
}

func TestWeightsEndpoints(t *testing.T) {
	server := newTestServer(t, nil)

	status, body := server.do(t, http.MethodPut, "/routing/weights", `{"weights": {"latency": 1, "bandwidth": 1}}`)
	require.Equal(t, http.StatusOK, status)
	response := WeightsResponse{}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, 0.5, response.Weights["latency"])
	assert.Equal(t, 0.0, response.Weights["distance"])

	status, body = server.do(t, http.MethodGet, "/routing/weights", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, 0.5, response.Weights["bandwidth"])

	for _, payload := range []string{`{"weights": {"latency": 0}}`, `{"weights": {"latency": -1, "load": 2}}`, `{"weights": {"jitter": 1}}`} {
		status, _ := server.do(t, http.MethodPut, "/routing/weights", payload)
		assert.Equal(t, http.StatusUnprocessableEntity, status, payload)
	}
}

func loadTrainingPayload(t *testing.T, count int) string {
	t.Helper()

	random := rand.New(rand.NewSource(3))
	samples := make([]model.LoadSample, count)
	for i := range samples {
		samples[i] = model.LoadSample{
			Bandwidth:   random.Float64() * 200,
			Connections: float64(random.Intn(100)),
			Latency:     random.Float64() * 150,
			Quality:     50 + random.Float64()*50,
			Hour:        random.Intn(24),
			DayOfWeek:   random.Intn(7),
			Uptime:      95 + random.Float64()*5,
		}
		samples[i].FutureLoad = 0.01*float64(samples[i].Hour) + 0.005*samples[i].Connections
	}

	payload, err := json.Marshal(LoadTrainingRequest{Samples: samples})
	require.NoError(t, err)
	return string(payload)
}

func TestTrainLoad(t *testing.T) {
	server := newTestServer(t, nil)

	status, body := server.do(t, http.MethodPost, "/models/load/train", loadTrainingPayload(t, 50))
	require.Equal(t, http.StatusOK, status)
	response := TrainingResponse{}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.False(t, response.Trained)
	assert.NoFileExists(t, server.modelPaths.Load)

	status, body = server.do(t, http.MethodPost, "/models/load/train", loadTrainingPayload(t, 150))
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, TrainingResponse{Predictor: LOAD_PREDICTOR, Samples: 150, Trained: true}, response)
	assert.True(t, server.load.Trained())
	assert.FileExists(t, server.modelPaths.Load)
}

func TestTrainReliabilitySingleClassIsSkipped(t *testing.T) {
	server := newTestServer(t, nil)

	samples := make([]model.ReliabilitySample, 120)
	for i := range samples {
		samples[i] = model.ReliabilitySample{Quality: 90, Uptime: 99, PacketLoss: 0.5, Latency: 10, Bandwidth: 100, Reliable: true}
	}
	payload, err := json.Marshal(ReliabilityTrainingRequest{Samples: samples})
	require.NoError(t, err)

	status, body := server.do(t, http.MethodPost, "/models/reliability/train", string(payload))
	require.Equal(t, http.StatusOK, status)
	response := TrainingResponse{}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.False(t, response.Trained)
	assert.NoFileExists(t, server.modelPaths.Reliability)
}

func TestRateLimit(t *testing.T) {
	server := newTestServer(t, rate.NewLimiter(rate.Every(time.Hour), 2))

	statuses := []int{}
	for i := 0; i < 3; i++ {
		status, _ := server.do(t, http.MethodGet, "/routing/weights", "")
		statuses = append(statuses, status)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

	status, _ := server.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, nil)
	server.do(t, http.MethodGet, "/routing/best?lat=0&lon=0", "")

	status, body := server.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), fmt.Sprintf(`relay_router_selections_total{mode="%s"} 1`, routing.BestMatchMode))
}
