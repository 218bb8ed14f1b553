// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes aggregator activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dotandev/eventaggregator/eventbus"
)

// Collector is an eventbus.Observer backed by Prometheus vectors.
type Collector struct {
	published *prometheus.CounterVec
	handled   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ eventbus.Observer = (*Collector)(nil)

// NewCollector creates the metric vectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "eventaggregator", Name: "published_total", Help: "Total number of published events by type."},
			[]string{"event_type"},
		),
		handled: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "eventaggregator", Name: "handled_total", Help: "Total number of subscription invocations by event type."},
			[]string{"event_type"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "eventaggregator", Name: "handler_failures_total", Help: "Total number of handler failures by event type and thread target."},
			[]string{"event_type", "thread_target"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "eventaggregator", Name: "handler_duration_seconds", Help: "Handler execution time.", Buckets: prometheus.DefBuckets},
			[]string{"event_type", "thread_target"},
		),
	}

	for _, col := range []prometheus.Collector{c.published, c.handled, c.failed, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) StartPublish(ctx context.Context, eventType reflect.Type) (context.Context, func(int)) {
	name := eventType.String()
	c.published.WithLabelValues(name).Inc()
	return ctx, func(handled int) {
		c.handled.WithLabelValues(name).Add(float64(handled))
	}
}

func (c *Collector) StartInvoke(ctx context.Context, sub *eventbus.Subscription) (context.Context, func(error)) {
	start := time.Now()
	name := sub.EventType().String()
	target := sub.Options().ThreadTarget().String()

	return ctx, func(err error) {
		c.duration.WithLabelValues(name, target).Observe(time.Since(start).Seconds())
		if err != nil {
			c.failed.WithLabelValues(name, target).Inc()
		}
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
