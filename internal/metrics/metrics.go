// Package metrics exposes OpenTelemetry instruments through a Prometheus
// scrape handler.
package metrics

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	RPCCalls          metric.Int64Counter
	RenderCacheHits   metric.Int64Counter
	RenderCacheMisses metric.Int64Counter
	StreamConnections metric.Int64UpDownCounter
	PostsPublished    metric.Int64Counter
	NotificationsSent metric.Int64Counter
}

// Setup registers the instruments on a private registry and returns the
// handler serving it.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"codu_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"codu_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RPCCalls, err = meter.Int64Counter(
		"codu_rpc_calls_total",
		metric.WithDescription("RPC procedure calls by result code"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RenderCacheHits, err = meter.Int64Counter(
		"codu_render_cache_hits_total",
		metric.WithDescription("Rendered markdown served from cache"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RenderCacheMisses, err = meter.Int64Counter(
		"codu_render_cache_misses_total",
		metric.WithDescription("Markdown renders that missed the cache"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StreamConnections, err = meter.Int64UpDownCounter(
		"codu_sse_connections",
		metric.WithDescription("Number of open notification streams"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PostsPublished, err = meter.Int64Counter(
		"codu_posts_published_total",
		metric.WithDescription("Scheduled posts that went live"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotificationsSent, err = meter.Int64Counter(
		"codu_notifications_total",
		metric.WithDescription("Notifications created by type"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// Every recorder is safe on a nil *Metrics so callers need no guards.

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordRPC(ctx context.Context, procedure, code string) {
	if m == nil {
		return
	}
	m.RPCCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("procedure", procedure),
		attribute.String("code", code),
	))
}

func (m *Metrics) RecordRenderCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.RenderCacheHits.Add(ctx, 1)
	} else {
		m.RenderCacheMisses.Add(ctx, 1)
	}
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.StreamConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.StreamConnections.Add(ctx, -1)
}

func (m *Metrics) RecordPublished(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.PostsPublished.Add(ctx, int64(n))
}

func (m *Metrics) RecordNotification(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.NotificationsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("type", kind)))
}
