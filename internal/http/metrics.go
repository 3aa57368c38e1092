package http

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/embedpool/internal/http"

// requestMetrics records OTel request metrics per route.
type requestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
	active   metric.Int64UpDownCounter
}

func newRequestMetrics(mp metric.MeterProvider) (*requestMetrics, error) {
	meter := mp.Meter(httpInstrumentationName)
	m := &requestMetrics{}
	var errs [4]error

	m.requests, errs[0] = meter.Int64Counter("embedpool.http.requests",
		metric.WithDescription("HTTP requests served, by method, route and status."),
		metric.WithUnit("{request}"))
	m.duration, errs[1] = meter.Float64Histogram("embedpool.http.request.duration",
		metric.WithDescription("HTTP request latency including pool wait and model time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	m.size, errs[2] = meter.Int64Histogram("embedpool.http.response.size",
		metric.WithDescription("HTTP response body size."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1<<10, 4<<10, 16<<10, 64<<10, 256<<10, 1<<20, 4<<20))
	m.active, errs[3] = meter.Int64UpDownCounter("embedpool.http.requests.active",
		metric.WithDescription("HTTP requests in flight."),
		metric.WithUnit("{request}"))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return m, nil
}

// middleware must run outside logMiddleware, which renders handler errors,
// so the final status is visible here.
func (m *requestMetrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		start := time.Now()
		m.active.Add(ctx, 1)
		defer m.active.Add(ctx, -1)

		err := next(c)

		attrs := metric.WithAttributeSet(attribute.NewSet(
			attribute.String("http.request.method", c.Request().Method),
			attribute.String("http.route", routeLabel(c.Path())),
			attribute.Int("http.response.status_code", c.Response().Status),
		))
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		m.size.Record(ctx, c.Response().Size, attrs)
		return err
	}
}

// routeLabel gives unmatched requests one shared label so arbitrary URLs
// cannot grow cardinality.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
