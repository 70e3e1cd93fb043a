// Package client implements a gRPC client for the PrimalityService with
// optional OpenTelemetry metrics and traces.
package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/go-logr/logr"
	api "github.com/memes/dhprime/api/v1"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// The default maximum timeout that will be applied to requests.
	DefaultMaxTimeout = 10 * time.Second
	// The default name to use when registering OpenTelemetry components.
	DefaultOpenTelemetryClientName = "pkg.client"
)

// A client of PrimalityService endpoints.
type PrimalityClient struct {
	// The logr.Logger instance to use.
	logger logr.Logger
	// The client maximum timeout/deadline to use when making requests.
	maxTimeout time.Duration
	// The OpenTelemetry tracer to use for spans.
	tracer trace.Tracer
	// The OpenTelemetry meter to use for metrics.
	meter metric.Meter
	// The prefix to use for metrics.
	prefix string
	// A counter for the number of response errors.
	responseErrors metric.Int64Counter
	// A histogram of request durations.
	durationMs metric.Int64Histogram
}

// Defines a function signature for PrimalityClient options.
type PrimalityClientOption func(*PrimalityClient)

// Create a new PrimalityClient with optional settings.
func NewPrimalityClient(options ...PrimalityClientOption) (*PrimalityClient, error) {
	client := &PrimalityClient{
		logger:     logr.Discard(),
		maxTimeout: DefaultMaxTimeout,
		tracer:     tracenoop.NewTracerProvider().Tracer(DefaultOpenTelemetryClientName),
		meter:      metricnoop.NewMeterProvider().Meter(DefaultOpenTelemetryClientName),
		prefix:     DefaultOpenTelemetryClientName,
	}
	for _, option := range options {
		option(client)
	}
	var err error
	client.responseErrors, err = client.meter.Int64Counter(
		client.telemetryName("response_errors"),
		metric.WithDescription("The count of error responses received by client"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating responseErrors Counter: %w", err)
	}
	client.durationMs, err = client.meter.Int64Histogram(
		client.telemetryName("request_duration_ms"),
		metric.WithUnit("ms"),
		metric.WithDescription("The duration (ms) of requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating durationMs Histogram: %w", err)
	}
	return client, nil
}

// Use the supplied logr.logger.
func WithLogger(logger logr.Logger) PrimalityClientOption {
	return func(c *PrimalityClient) {
		c.logger = logger
	}
}

// Set the maximum timeout for client requests to a PrimalityService.
func WithMaxTimeout(maxTimeout time.Duration) PrimalityClientOption {
	return func(c *PrimalityClient) {
		c.maxTimeout = maxTimeout
	}
}

// Add an OpenTelemetry tracer implementation to the client.
func WithTracer(tracer trace.Tracer) PrimalityClientOption {
	return func(c *PrimalityClient) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Add an OpenTelemetry metric meter implementation to the client.
func WithMeter(meter metric.Meter) PrimalityClientOption {
	return func(c *PrimalityClient) {
		if meter != nil {
			c.meter = meter
		}
	}
}

// Set the prefix to use for OpenTelemetry metrics.
func WithPrefix(prefix string) PrimalityClientOption {
	return func(c *PrimalityClient) {
		c.prefix = prefix
	}
}

// Generates a name for the metric or span.
func (c *PrimalityClient) telemetryName(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "." + name
}

// Issue a single unary call, recording duration and error metrics.
func (c *PrimalityClient) call(ctx context.Context, method string, attributes []attribute.KeyValue, fn func(context.Context) (*structpb.Struct, error)) (*structpb.Struct, error) {
	ctx, span := c.tracer.Start(ctx, DefaultOpenTelemetryClientName+"/"+method)
	defer span.End()
	span.SetAttributes(attributes...)
	if c.maxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.maxTimeout)
		defer cancel()
	}
	span.AddEvent("Calling " + method)
	startTimestamp := time.Now()
	response, err := fn(ctx)
	duration := time.Since(startTimestamp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		attributes = append(attributes, attribute.Bool(c.telemetryName("success"), false))
		c.responseErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
		c.durationMs.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attributes...))
		return nil, fmt.Errorf("failure calling %s: %w", method, err)
	}
	attributes = append(attributes, attribute.Bool(c.telemetryName("success"), true))
	c.durationMs.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attributes...))
	return response, nil
}

// Ask the PrimalityService on conn whether candidate is probably prime. The
// metadata of the responding server is returned with the verdict.
func (c *PrimalityClient) IsPrime(ctx context.Context, conn grpc.ClientConnInterface, candidate *big.Int, iterations int) (bool, map[string]string, error) {
	logger := c.logger.V(1).WithValues("candidate", candidate, "iterations", iterations)
	logger.Info("Requesting primality verdict")
	attributes := []attribute.KeyValue{
		attribute.Int(c.telemetryName("bits"), candidate.BitLen()),
		attribute.Int(c.telemetryName("iterations"), iterations),
	}
	service := api.NewPrimalityServiceClient(conn)
	response, err := c.call(ctx, "IsPrime", attributes, func(ctx context.Context) (*structpb.Struct, error) {
		return service.IsPrime(ctx, api.NewIsPrimeRequest(candidate, iterations))
	})
	if err != nil {
		return false, nil, err
	}
	prime, err := api.PrimeFromResponse(response)
	if err != nil {
		return false, nil, fmt.Errorf("invalid IsPrime response: %w", err)
	}
	metadata := api.MetadataFromResponse(response)
	logger.Info("Response from remote", "prime", prime, "metadata", metadata)
	return prime, metadata, nil
}

// Ask the PrimalityService on conn for the Jacobi symbol (a/n).
func (c *PrimalityClient) Jacobi(ctx context.Context, conn grpc.ClientConnInterface, a, n *big.Int) (int, map[string]string, error) {
	logger := c.logger.V(1).WithValues("a", a, "n", n)
	logger.Info("Requesting Jacobi symbol")
	attributes := []attribute.KeyValue{
		attribute.Int(c.telemetryName("bits"), n.BitLen()),
	}
	service := api.NewPrimalityServiceClient(conn)
	response, err := c.call(ctx, "Jacobi", attributes, func(ctx context.Context) (*structpb.Struct, error) {
		return service.Jacobi(ctx, api.NewJacobiRequest(a, n))
	})
	if err != nil {
		return 0, nil, err
	}
	symbol, err := api.SymbolFromResponse(response)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid Jacobi response: %w", err)
	}
	metadata := api.MetadataFromResponse(response)
	logger.Info("Response from remote", "symbol", symbol, "metadata", metadata)
	return symbol, metadata, nil
}
