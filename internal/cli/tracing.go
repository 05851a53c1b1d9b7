package cli

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"carerules/internal/config"
	"carerules/internal/core"
)

const serviceName = "rulehost"

type shutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// tracing is the selected tracer. provider is set only for OTLP so the HTTP
// server can put request spans on the same pipeline.
type tracing struct {
	tracer   core.Tracer
	provider trace.TracerProvider
	shutdown shutdownFunc
}

// setupTracing selects the host tracer. JSON spans go to logOut next to the
// logs; OTLP spans are batched to cfg.OTLPEndpoint, or to the exporter's
// default collector address when unset.
func setupTracing(ctx context.Context, cfg config.Config, logOut io.Writer) (tracing, error) {
	switch cfg.Tracing {
	case config.TracingJSON:
		return tracing{tracer: core.NewJSONTracer(logOut), shutdown: noopShutdown}, nil
	case config.TracingOTLP:
		var opts []otlptracehttp.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return tracing{}, fmt.Errorf("otlp exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(serviceName))),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		return tracing{tracer: core.NewOTelTracer(tp), provider: tp, shutdown: tp.Shutdown}, nil
	default:
		return tracing{shutdown: noopShutdown}, nil
	}
}
