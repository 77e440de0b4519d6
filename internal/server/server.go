package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter registers the API routes. A nil limiter serves requests unthrottled; /metrics and /health
// are never throttled.
func NewRouter(handler *Handler, limiter *rate.Limiter, gatherer prometheus.Gatherer) *mux.Router {
	defaultRouter := mux.NewRouter()
	defaultRouter.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	if gatherer != nil {
		defaultRouter.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := defaultRouter.NewRoute().Subrouter()
	if limiter != nil {
		api.Use(rateLimit(handler.logger, limiter))
	}
	api.HandleFunc("/nodes", handler.ListNodes).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{nodeId}", handler.GetNode).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{nodeId}/metrics", handler.PushMetrics).Methods(http.MethodPost)
	api.HandleFunc("/routing/best", handler.SelectBest).Methods(http.MethodGet)
	api.HandleFunc("/routing/balanced", handler.SelectLoadBalanced).Methods(http.MethodGet)
	api.HandleFunc("/routing/weights", handler.GetWeights).Methods(http.MethodGet)
	api.HandleFunc("/routing/weights", handler.UpdateWeights).Methods(http.MethodPut)
	api.HandleFunc("/models/load/train", handler.TrainLoad).Methods(http.MethodPost)
	api.HandleFunc("/models/reliability/train", handler.TrainReliability).Methods(http.MethodPost)

	return defaultRouter
}

func rateLimit(logger hclog.Logger, limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				rw.Header().Add("Content-Type", "application/json")
				writeError(logger, rw, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}

type HttpServer struct {
	server *http.Server
	logger hclog.Logger
}

func NewHttpServer(logger hclog.Logger, address string, defaultRouter http.Handler) *HttpServer {
	return &HttpServer{
		server: &http.Server{
			Addr:     address,                                               // configure the bind address
			Handler:  defaultRouter,                                         // set the default handler
			ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{}), // set the logger for the server
		},
		logger: logger.Named("http"),
	}
}

// Start binds the address and serves in the background. Bind errors are returned.
func (httpServer *HttpServer) Start() error {
	listener, err := net.Listen("tcp", httpServer.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", httpServer.server.Addr, err)
	}

	go func() {
		httpServer.logger.Info(fmt.Sprintf("Starting server on %s", listener.Addr()))

		err := httpServer.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpServer.logger.Error("Error serving requests", "error", err)
		}
	}()

	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (httpServer *HttpServer) Shutdown(ctx context.Context) error {
	httpServer.logger.Info("Shutting down server")
	return httpServer.server.Shutdown(ctx)
}
