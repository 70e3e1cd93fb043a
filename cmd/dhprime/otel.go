package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	gcpdetectors "go.opentelemetry.io/contrib/detectors/gcp"
	hostMetrics "go.opentelemetry.io/contrib/instrumentation/host"
	runtimeMetrics "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	metricReportingPeriod = 30 * time.Second
)

type shutdownFunction func(context.Context) error

func noopShutdownFunction(_ context.Context) error {
	return nil
}

// Create a new OpenTelemetry resource to describe the source of metrics and traces.
func newTelemetryResource(ctx context.Context, name string) (*resource.Resource, error) {
	logger := logger.V(1).WithValues("name", name)
	logger.Info("Creating new OpenTelemetry resource descriptor")
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for telemetry resource: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceNamespace(PackageName),
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
			semconv.ServiceInstanceID(id.String()),
		),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithOS(),
		// Some process information is unknown when running in a scratch
		// container.
		resource.WithProcessPID(),
		resource.WithProcessExecutableName(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithProcessRuntimeDescription(),
		// GCP detection goes last to override the base service attributes.
		resource.WithDetectors(gcpdetectors.NewDetector()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create new telemetry resource: %w", err)
	}
	logger.V(1).Info("OpenTelemetry resource created", "resource", res)
	return res, nil
}

// Initializes a periodic reader that will send OpenTelemetry metrics to the
// target provided, returning a shutdown function.
func initMetrics(ctx context.Context, target string, creds credentials.TransportCredentials, res *resource.Resource) (shutdownFunction, error) {
	logger := logger.V(1).WithValues("target", target)
	logger.V(1).Info("Creating OpenTelemetry metric handlers")
	if target == "" {
		logger.Info("OpenTelemetry endpoint is not set; no metrics will be sent to collector")
		return noopShutdownFunction, nil
	}
	options := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(target),
		otlpmetricgrpc.WithCompressor(gzip.Name),
	}
	if creds != nil {
		options = append(options, otlpmetricgrpc.WithTLSCredentials(creds))
	} else {
		options = append(options, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, options...)
	if err != nil {
		return noopShutdownFunction, fmt.Errorf("failed to create new metric exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricReportingPeriod))),
	)
	shutdown := func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("error during OpenTelemetry meter provider shutdown: %w", err)
		}
		return nil
	}
	if err = runtimeMetrics.Start(runtimeMetrics.WithMeterProvider(provider)); err != nil {
		return shutdown, fmt.Errorf("failed to start runtime metrics: %w", err)
	}
	if err = hostMetrics.Start(hostMetrics.WithMeterProvider(provider)); err != nil {
		return shutdown, fmt.Errorf("failed to start host metrics: %w", err)
	}
	otel.SetMeterProvider(provider)
	logger.V(1).Info("OpenTelemetry metric handlers created and started")
	return shutdown, nil
}

// Initializes a pipeline handler that will send OpenTelemetry spans to the target
// provided, returning a shutdown function.
func initTrace(ctx context.Context, target string, creds credentials.TransportCredentials, res *resource.Resource, sampler sdktrace.Sampler) (shutdownFunction, error) {
	logger := logger.V(1).WithValues("target", target, "sampler", sampler.Description())
	logger.V(1).Info("Creating new OpenTelemetry trace exporter")
	if target == "" {
		logger.Info("OpenTelemetry endpoint is not set; no traces will be sent to collector")
		return noopShutdownFunction, nil
	}
	options := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(target),
		otlptracegrpc.WithCompressor(gzip.Name),
	}
	if creds != nil {
		options = append(options, otlptracegrpc.WithTLSCredentials(creds))
	} else {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(options...))
	if err != nil {
		return noopShutdownFunction, fmt.Errorf("failed to create new trace exporter: %w", err)
	}
	// Shutting down the provider also shuts down every registered span processor.
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(provider)
	logger.V(1).Info("OpenTelemetry trace handlers created and started")
	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("error during OpenTelemetry trace provider shutdown: %w", err)
		}
		return nil
	}, nil
}

// Initializes OpenTelemetry metric and trace processing and deliver to a
// collector target, returning a function that will shutdown the background
// pipeline processes and report every error raised while doing so.
func initTelemetry(ctx context.Context, name string) (shutdownFunction, error) {
	otel.SetLogger(logger)
	target := viper.GetString(OpenTelemetryTargetFlagName)
	insecure := viper.GetBool(InsecureFlagName)
	ratio := viper.GetFloat64(SamplingRatioFlagName)
	logger := logger.V(1).WithValues("name", name, "target", target, "insecure", insecure, "ratio", ratio)
	logger.Info("Initializing OpenTelemetry")
	if target == "" {
		logger.Info("OpenTelemetry endpoint is not set; telemetry is disabled")
		return noopShutdownFunction, nil
	}
	res, err := newTelemetryResource(ctx, name)
	if err != nil {
		return noopShutdownFunction, err
	}
	var creds credentials.TransportCredentials
	if !insecure {
		material, err := loadTLSMaterial()
		if err != nil {
			return noopShutdownFunction, err
		}
		creds = credentials.NewTLS(material.clientConfig(viper.GetString(AuthorityFlagName)))
	}
	shutdownFunctions := []shutdownFunction{}
	shutdown := func(ctx context.Context) error {
		var result *multierror.Error
		for _, fn := range shutdownFunctions {
			if err := fn(ctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}
	shutdownTraces, err := initTrace(ctx, target, creds, res, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)))
	shutdownFunctions = append(shutdownFunctions, shutdownTraces)
	if err != nil {
		return shutdown, err
	}
	shutdownMetrics, err := initMetrics(ctx, target, creds, res)
	shutdownFunctions = append(shutdownFunctions, shutdownMetrics)
	if err != nil {
		return shutdown, err
	}
	logger.Info("OpenTelemetry initialization complete, returning shutdown function")
	return shutdown, nil
}
