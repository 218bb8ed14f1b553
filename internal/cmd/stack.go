// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/dotandev/eventaggregator/eventbus"
	"github.com/dotandev/eventaggregator/internal/config"
	"github.com/dotandev/eventaggregator/internal/logger"
	"github.com/dotandev/eventaggregator/internal/metrics"
	"github.com/dotandev/eventaggregator/internal/telemetry"
	"github.com/dotandev/eventaggregator/internal/workerpool"
	"github.com/dotandev/eventaggregator/mainloop"
)

// stack is an aggregator together with the loop, pool and exporters it runs on.
type stack struct {
	Aggregator *eventbus.Aggregator
	Loop       *mainloop.Loop
	Pool       *workerpool.Pool
	Registry   *prometheus.Registry

	metricsServer *http.Server
	metricsAddr   string
	telemetryStop func()

	closeOnce sync.Once
	closeErr  error
}

func newStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	log := logger.Logger

	stop, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ExporterURL: cfg.Telemetry.ExporterURL,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
	})
	if err != nil {
		return nil, err
	}

	tracing, err := telemetry.NewObserver(otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		stop()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		stop()
		return nil, err
	}

	s := &stack{
		Loop:          mainloop.New(log),
		Pool:          workerpool.New(cfg.Workers, log),
		Registry:      registry,
		telemetryStop: stop,
	}
	s.Aggregator = eventbus.New(
		eventbus.WithLogger(log),
		eventbus.WithObserver(eventbus.MultiObserver(tracing, collector)),
		eventbus.WithScheduler(s.Pool),
		eventbus.WithMainThreadContext(s.Loop),
	)

	if cfg.Metrics.Enabled {
		if err := s.serveMetrics(cfg.Metrics.Addr); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	log.Debug("Event aggregator ready", "workers", s.Pool.Size(), "telemetry", cfg.Telemetry.Enabled, "metrics", s.metricsAddr)
	return s, nil
}

func (s *stack) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.metricsAddr = ln.Addr().String()
	s.metricsServer = &http.Server{
		Handler:           metrics.Handler(s.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.metricsServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Metrics server stopped", "error", err)
		}
	}()

	logger.Logger.Info("Serving Prometheus metrics", "addr", s.metricsAddr)
	return nil
}

// MetricsAddr is the bound address of the metrics endpoint, or "" when disabled.
func (s *stack) MetricsAddr() string {
	return s.metricsAddr
}

// Close drains background handlers, stops the main loop and flushes exporters.
// It is safe to call more than once.
func (s *stack) Close() error {
	s.closeOnce.Do(func() {
		s.Aggregator.Close()
		s.Pool.Close()
		s.Loop.Close()

		if s.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			s.closeErr = s.metricsServer.Shutdown(ctx)
		}
		s.telemetryStop()
	})
	return s.closeErr
}
