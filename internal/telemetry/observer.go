// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/dotandev/eventaggregator/eventbus"
)

// Span attribute keys.
const (
	TagEventType             = "eventaggregator.eventtype"
	TagSubscription          = "eventaggregator.subscription"
	TagHandled               = "eventaggregator.handled"
	TagOptionThreadTarget    = "eventaggregator.option.threadtype"
	TagOptionIgnoreCancelled = "eventaggregator.option.ignorecancelled"
	TagOptionEventPriority   = "eventaggregator.option.eventpriority"
)

// Observer traces publishes and handler executions and counts them.
type Observer struct {
	tracer    oteltrace.Tracer
	published metric.Int64Counter
	handled   metric.Int64Counter
	failed    metric.Int64Counter
}

var _ eventbus.Observer = (*Observer)(nil)

// NewObserver builds an Observer from explicit providers, usually the global
// ones installed by Init (otel.GetTracerProvider, otel.GetMeterProvider).
func NewObserver(tp oteltrace.TracerProvider, mp metric.MeterProvider) (*Observer, error) {
	meter := mp.Meter(ScopeName)

	published, err := meter.Int64Counter("eventaggregator.publish.count",
		metric.WithDescription("Events published"),
	)
	if err != nil {
		return nil, err
	}
	handled, err := meter.Int64Counter("eventaggregator.subscription.handled",
		metric.WithDescription("Subscriptions invoked by publishes"),
	)
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("eventaggregator.subscription.failed",
		metric.WithDescription("Handler executions that returned an error or panicked"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:    tp.Tracer(ScopeName),
		published: published,
		handled:   handled,
		failed:    failed,
	}, nil
}

func (o *Observer) StartPublish(ctx context.Context, eventType reflect.Type) (context.Context, func(int)) {
	typeAttr := attribute.String(TagEventType, eventType.String())

	ctx, span := o.tracer.Start(ctx, "Publish "+eventType.String(),
		oteltrace.WithAttributes(typeAttr),
	)
	o.published.Add(ctx, 1, metric.WithAttributes(typeAttr))

	return ctx, func(handled int) {
		span.SetAttributes(attribute.Int(TagHandled, handled))
		o.handled.Add(ctx, int64(handled), metric.WithAttributes(typeAttr))
		span.End()
	}
}

func (o *Observer) StartInvoke(ctx context.Context, sub *eventbus.Subscription) (context.Context, func(error)) {
	opts := sub.Options()
	typeAttr := attribute.String(TagEventType, sub.EventType().String())

	ctx, span := o.tracer.Start(ctx, "Invoke handler",
		oteltrace.WithAttributes(
			typeAttr,
			attribute.String(TagSubscription, sub.ID().String()),
			attribute.String(TagOptionEventPriority, opts.Priority().String()),
			attribute.String(TagOptionThreadTarget, opts.ThreadTarget().String()),
			attribute.Bool(TagOptionIgnoreCancelled, opts.IgnoreCancelled()),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.failed.Add(ctx, 1, metric.WithAttributes(typeAttr))
		}
		span.End()
	}
}
