package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/routing"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/telemetry"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

const (
	LOAD_PREDICTOR        = "load"
	RELIABILITY_PREDICTOR = "reliability"
)

type LoadTrainer interface {
	routing.PersistentModel
	Train(samples []model.LoadSample) error
}

type ReliabilityTrainer interface {
	routing.PersistentModel
	Train(samples []model.ReliabilitySample) error
}

// ModelPaths are the files a freshly trained model is written to. Empty paths skip saving.
type ModelPaths struct {
	Load        string
	Reliability string
}

type Handler struct {
	logger      hclog.Logger
	router      *routing.Router
	load        LoadTrainer
	reliability ReliabilityTrainer
	reloader    *routing.ModelReloader
	modelPaths  ModelPaths
}

func NewHandler(logger hclog.Logger, router *routing.Router, load LoadTrainer, reliability ReliabilityTrainer,
	reloader *routing.ModelReloader, modelPaths ModelPaths) *Handler {
	return &Handler{
		logger:      logger.Named("handler"),
		router:      router,
		load:        load,
		reliability: reliability,
		reloader:    reloader,
		modelPaths:  modelPaths,
	}
}

func (handler *Handler) PushMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	nodeId := getURLParameter(r, "nodeId")

	reading := model.Telemetry{}
	if err := fromJSON(&reading, r.Body); err != nil {
		handler.logger.Debug("invalid telemetry payload", "nodeId", nodeId, "error", err)
		handler.writeError(rw, http.StatusBadRequest, "invalid telemetry payload")
		return
	}

	nodeMetrics := handler.router.UpdateNodeMetrics(r.Context(), nodeId, reading, telemetry.HTTP_SOURCE)

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, nodeMetrics)
}

func (handler *Handler) GetNode(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	nodeId := getURLParameter(r, "nodeId")

	nodeMetrics, err := handler.router.Node(r.Context(), nodeId)
	if errors.Is(err, registry.ErrNodeNotFound) {
		handler.writeError(rw, http.StatusNotFound, fmt.Sprintf("no metrics for node %s", nodeId))
		return
	}
	if err != nil {
		handler.logger.Error("Error while reading node metrics", "nodeId", nodeId, "error", err)
		handler.writeError(rw, http.StatusInternalServerError, "cannot read node metrics")
		return
	}

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, nodeMetrics)
}

func (handler *Handler) ListNodes(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, NodesResponse{Nodes: handler.router.ActiveNodes()})
}

// SelectBest serves GET /routing/best?lat=..&lon=..[&numNodes=3][&minQuality=50][&explain=true].
func (handler *Handler) SelectBest(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	query := queryParser{r: r}
	lat := query.float("lat", nil)
	lon := query.float("lon", nil)
	numNodes := query.int("numNodes", common.DEFAULT_BEST_NUM_NODES)
	minQuality := query.float("minQuality", ptr(common.DEFAULT_MIN_QUALITY))
	explain := query.bool("explain")
	if query.err != nil {
		handler.writeError(rw, http.StatusBadRequest, query.err.Error())
		return
	}

	decisions, err := handler.router.SelectBest(r.Context(), lat, lon, numNodes, minQuality)
	if err != nil {
		handler.logger.Warn("selection aborted", "error", err)
		handler.writeError(rw, http.StatusServiceUnavailable, "selection aborted")
		return
	}
	if !explain {
		for i := range decisions {
			decisions[i].Breakdown = nil
		}
	}

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, SelectionResponse{RequestId: uuid.New().String(), Mode: routing.BestMatchMode, Decisions: decisions})
}

// SelectLoadBalanced serves GET /routing/balanced?requiredBandwidth=..[&numNodes=5].
func (handler *Handler) SelectLoadBalanced(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	query := queryParser{r: r}
	requiredBandwidth := query.float("requiredBandwidth", nil)
	numNodes := query.int("numNodes", common.DEFAULT_BALANCED_NUM_NODES)
	if query.err != nil {
		handler.writeError(rw, http.StatusBadRequest, query.err.Error())
		return
	}

	decisions := handler.router.SelectLoadBalanced(requiredBandwidth, numNodes)

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, SelectionResponse{RequestId: uuid.New().String(), Mode: routing.LoadBalancedMode, Decisions: decisions})
}

func (handler *Handler) GetWeights(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, WeightsResponse{Weights: handler.router.Weights()})
}

func (handler *Handler) UpdateWeights(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := WeightsResponse{}
	if err := fromJSON(&request, r.Body); err != nil {
		handler.writeError(rw, http.StatusBadRequest, "invalid weights payload")
		return
	}

	weights, err := handler.router.UpdateWeightsFromGovernance(request.Weights)
	if err != nil {
		handler.writeError(rw, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, WeightsResponse{Weights: weights})
}

func (handler *Handler) TrainLoad(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := LoadTrainingRequest{}
	if err := fromJSON(&request, r.Body); err != nil {
		handler.writeError(rw, http.StatusBadRequest, "invalid training payload")
		return
	}

	if err := handler.load.Train(request.Samples); err != nil {
		handler.logger.Error("Error while training load predictor", "error", err)
		handler.writeError(rw, http.StatusUnprocessableEntity, err.Error())
		return
	}
	handler.persist(LOAD_PREDICTOR, handler.load, handler.modelPaths.Load, len(request.Samples))

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, TrainingResponse{Predictor: LOAD_PREDICTOR, Samples: len(request.Samples), Trained: handler.load.Trained()})
}

func (handler *Handler) TrainReliability(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := ReliabilityTrainingRequest{}
	if err := fromJSON(&request, r.Body); err != nil {
		handler.writeError(rw, http.StatusBadRequest, "invalid training payload")
		return
	}

	if err := handler.reliability.Train(request.Samples); err != nil {
		handler.logger.Error("Error while training reliability predictor", "error", err)
		handler.writeError(rw, http.StatusUnprocessableEntity, err.Error())
		return
	}
	handler.persist(RELIABILITY_PREDICTOR, handler.reliability, handler.modelPaths.Reliability, len(request.Samples))

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, TrainingResponse{Predictor: RELIABILITY_PREDICTOR, Samples: len(request.Samples), Trained: handler.reliability.Trained()})
}

// persist saves a model trained by this request. A failed save keeps the in-memory model.
func (handler *Handler) persist(name string, trained routing.PersistentModel, path string, samples int) {
	if samples < common.MIN_TRAINING_SAMPLES {
		return
	}
	handler.reloader.MarkTrained(name, trained)

	if path == "" || !trained.Trained() {
		return
	}
	if err := trained.SaveModel(path); err != nil {
		handler.logger.Error("Error while saving trained model", "predictor", name, "path", path, "error", err)
	}
}

func (handler *Handler) Health(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	rw.WriteHeader(http.StatusOK)
	handler.writeJSON(rw, map[string]string{"status": "ok"})
}

func (handler *Handler) writeJSON(rw http.ResponseWriter, body interface{}) {
	writeJSON(handler.logger, rw, body)
}

func (handler *Handler) writeError(rw http.ResponseWriter, status int, message string) {
	writeError(handler.logger, rw, status, message)
}

func writeError(logger hclog.Logger, rw http.ResponseWriter, status int, message string) {
	rw.WriteHeader(status)
	writeJSON(logger, rw, ErrorResponse{Message: message})
}

// writeJSON runs after the status line is sent, so an encoding failure can only be logged.
func writeJSON(logger hclog.Logger, rw http.ResponseWriter, body interface{}) {
	if err := toJSON(body, rw); err != nil {
		logger.Error("cannot encode response", "error", err)
	}
}

func getURLParameter(r *http.Request, parameter string) string {
	vars := mux.Vars(r)
	id := vars[parameter]
	return id
}

// queryParser reads typed query parameters and keeps the first error.
type queryParser struct {
	r   *http.Request
	err error
}

// float reads a float parameter. A nil fallback makes the parameter required.
func (query *queryParser) float(name string, fallback *float64) float64 {
	raw := query.r.URL.Query().Get(name)
	if raw == "" {
		if fallback == nil && query.err == nil {
			query.err = fmt.Errorf("missing query parameter %s", name)
		}
		if fallback == nil {
			return 0
		}
		return *fallback
	}

	value, err := strconv.ParseFloat(raw, 64)
	if (err != nil || math.IsNaN(value) || math.IsInf(value, 0)) && query.err == nil {
		query.err = fmt.Errorf("invalid query parameter %s", name)
	}
	return value
}

func (query *queryParser) int(name string, fallback int) int {
	raw := query.r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil && query.err == nil {
		query.err = fmt.Errorf("invalid query parameter %s", name)
	}
	return value
}

func (query *queryParser) bool(name string) bool {
	raw := query.r.URL.Query().Get(name)
	if raw == "" {
		return false
	}

	value, err := strconv.ParseBool(raw)
	if err != nil && query.err == nil {
		query.err = fmt.Errorf("invalid query parameter %s", name)
	}
	return value
}

func ptr[T any](value T) *T {
	return &value
}
