// Package http is the local HTTP API of the upgrade daemon.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

// Device is the part of the HAL served over HTTP.
type Device interface {
	fwupgrade.Submitter
	GetUpgradeStatus() (mfr.UpgradeProgress, mfr.ErrorKind)
	GetSerializedData(t mfr.SerializedType) (mfr.SerializedData, mfr.ErrorKind)
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions

	device  Device
	tracker *fwupgrade.Tracker
	log     log.Logger
}

// NewServer wires the API routes. gatherer backs /metrics.
func NewServer(opts *options.HttpOptions, device Device, tracker *fwupgrade.Tracker, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		options: opts,
		device:  device,
		tracker: tracker,
		log:     log.WithName("http"),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Readiness: the HAL is initialized and accepting upgrades.
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/upgrades", s.handlePostUpgrade).Methods(http.MethodPost)
	api.HandleFunc("/upgrades", s.handleListUpgrades).Methods(http.MethodGet)
	api.HandleFunc("/upgrades/{id}", s.handleGetUpgrade).Methods(http.MethodGet)
	api.Handle("/upgrades/{id}/events", s.handleUpgradeEvents()).Methods(http.MethodGet)
	api.HandleFunc("/upgrade-status", s.handleUpgradeStatus).Methods(http.MethodGet)
	api.HandleFunc("/serialized/{type}", s.handleSerialized).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: opts.Timeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.Timeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, kind := s.device.GetUpgradeStatus(); kind == mfr.NotInitialized {
		http.Error(w, "not initialized", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
