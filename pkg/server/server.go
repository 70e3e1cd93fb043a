// Package server implements a gRPC server (and optional REST gateway) that
// satisfies the PrimalityServiceServer interface, with optional OpenTelemetry
// metrics and traces.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/memes/dhprime"
	api "github.com/memes/dhprime/api/v1"
	cachepkg "github.com/memes/dhprime/pkg/cache"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// The default name to use when using OpenTelemetry components.
	OpenTelemetryPackageIdentifier = "pkg.server"
	// The metadata key that holds the server identity.
	IdentityMetadataKey = "identity"
	// The metadata key that holds the server's global unicast addresses.
	AddressesMetadataKey = "addresses"

	primeCacheKind = "prime"
	cachedPrime    = "1"
	cachedNotPrime = "0"
)

type PrimalityServer struct {
	api.UnimplementedPrimalityServiceServer
	// The logr.Logger implementation to use
	logger logr.Logger
	// An optional cache implementation
	cache cachepkg.Cache
	// The tester that makes primality decisions
	tester *dhprime.Tester
	// Holds the instance specific metadata that will be returned in responses
	metadata map[string]string
	// A histogram for calculation durations
	calculationMs metric.Int64Histogram
	// A counter for the number of errors returned by cache
	cacheErrors metric.Int64Counter
	// A counter for cache hits
	cacheHits metric.Int64Counter
	// A counter for cache misses
	cacheMisses metric.Int64Counter
	// A set of gRPC ServerOptions to use
	serverOptions []grpc.ServerOption
	// A set of gRPC DialOptions to use with REST gateway gRPC client
	dialOptions []grpc.DialOption
}

// Defines the function signature for PrimalityServer options.
type PrimalityServerOption func(*PrimalityServer)

// Create a new PrimalityServer and apply any options.
func NewPrimalityServer(options ...PrimalityServerOption) (*PrimalityServer, error) {
	var hostname string
	if host, err := os.Hostname(); err == nil {
		hostname = host
	} else {
		hostname = "unknown"
	}
	server := &PrimalityServer{
		logger: logr.Discard(),
		cache:  cachepkg.NewNoopCache(),
		tester: dhprime.NewTester(),
		metadata: map[string]string{
			IdentityMetadataKey:  hostname,
			AddressesMetadataKey: strings.Join(globalUnicastAddresses(), ","),
		},
		serverOptions: []grpc.ServerOption{
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
		},
		dialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		},
	}
	for _, option := range options {
		option(server)
	}
	var err error
	meter := otel.Meter(OpenTelemetryPackageIdentifier)
	server.calculationMs, err = meter.Int64Histogram(
		OpenTelemetryPackageIdentifier+".calc_duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("The duration (ms) of calculations"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating calculationMs Histogram: %w", err)
	}
	server.cacheErrors, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".cache_errors",
		metric.WithDescription("The count of error responses from verdict cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating cacheErrors Counter: %w", err)
	}
	server.cacheHits, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".cache_hits",
		metric.WithDescription("The count of cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating cacheHits Counter: %w", err)
	}
	server.cacheMisses, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".cache_misses",
		metric.WithDescription("The count of cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating cacheMisses Counter: %w", err)
	}
	return server, nil
}

// Returns the global unicast IP addresses of this host, or an empty slice.
func globalUnicastAddresses() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return []string{}
	}
	addresses := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.IsGlobalUnicast() {
			addresses = append(addresses, ipnet.IP.String())
		}
	}
	return addresses
}

// Use the supplied logger for the server and dhprime packages.
func WithLogger(logger logr.Logger) PrimalityServerOption {
	return func(s *PrimalityServer) {
		s.logger = logger
		dhprime.SetLogger(logger)
	}
}

// Use the Cache implementation to store IsPrime verdicts to avoid repeating
// a test that has already been made.
func WithCache(cache cachepkg.Cache) PrimalityServerOption {
	return func(s *PrimalityServer) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// Use the supplied Tester for primality decisions.
func WithTester(tester *dhprime.Tester) PrimalityServerOption {
	return func(s *PrimalityServer) {
		if tester != nil {
			s.tester = tester
		}
	}
}

// Add the key-value labels to the server's metadata.
func WithLabels(labels map[string]string) PrimalityServerOption {
	return func(s *PrimalityServer) {
		for k, v := range labels {
			s.metadata[k] = v
		}
	}
}

// Set the TransportCredentials to use for the PrimalityService gRPC listener.
func WithGRPCServerTransportCredentials(serverCredentials credentials.TransportCredentials) PrimalityServerOption {
	return func(s *PrimalityServer) {
		if serverCredentials != nil {
			s.serverOptions = append(s.serverOptions, grpc.Creds(serverCredentials))
		}
	}
}

// Set the TransportCredentials to use for the REST-to-gRPC client.
func WithRestClientGRPCTransportCredentials(restClientGRPCCredentials credentials.TransportCredentials) PrimalityServerOption {
	return func(s *PrimalityServer) {
		if restClientGRPCCredentials != nil {
			s.dialOptions = append(s.dialOptions, grpc.WithTransportCredentials(restClientGRPCCredentials))
		}
	}
}

// Set the authority string to use for REST-gRPC gateway calls.
func WithRestClientAuthority(restClientAuthority string) PrimalityServerOption {
	return func(s *PrimalityServer) {
		if restClientAuthority != "" {
			s.dialOptions = append(s.dialOptions, grpc.WithAuthority(restClientAuthority))
		}
	}
}

// Append additional DialOptions to the REST-to-gRPC client.
func WithRestClientDialOptions(options ...grpc.DialOption) PrimalityServerOption {
	return func(s *PrimalityServer) {
		s.dialOptions = append(s.dialOptions, options...)
	}
}

// Returns a copy of the metadata so responses cannot alias server state.
func (s *PrimalityServer) responseMetadata() map[string]string {
	metadata := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		metadata[k] = v
	}
	return metadata
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}

// Implement the PrimalityService IsPrime RPC method.
//
//nolint:funlen // OTEL options make this function appear longer than expected.
func (s *PrimalityServer) IsPrime(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := otel.Tracer(OpenTelemetryPackageIdentifier).Start(ctx, OpenTelemetryPackageIdentifier+"/IsPrime")
	defer span.End()
	request, err := api.ParseIsPrimeRequest(in)
	if err != nil {
		recordError(span, err)
		return nil, status.Error(codes.InvalidArgument, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	if request.Iterations < 1 {
		request.Iterations = dhprime.DefaultIterations
	}
	logger := s.logger.WithValues("bits", request.Candidate.BitLen(), "iterations", request.Iterations)
	logger.Info("IsPrime: enter")
	key := cachepkg.Key(primeCacheKind, request.Iterations, request.Candidate)
	attributes := []attribute.KeyValue{
		attribute.Int(OpenTelemetryPackageIdentifier+".bits", request.Candidate.BitLen()),
		attribute.Int(OpenTelemetryPackageIdentifier+".iterations", request.Iterations),
		attribute.String(OpenTelemetryPackageIdentifier+".cacheKey", key),
	}
	span.SetAttributes(attributes...)
	span.AddEvent("Checking cache")
	verdict, err := s.cache.GetValue(ctx, key)
	if err != nil {
		recordError(span, err)
		s.cacheErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
		return nil, status.Error(codes.Internal, fmt.Sprintf("cache %T GetValue method returned an error: %v", s.cache, err)) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	var prime bool
	switch verdict {
	case cachedPrime, cachedNotPrime:
		attributes := append(attributes, attribute.Bool(OpenTelemetryPackageIdentifier+".cache_hit", true))
		span.SetAttributes(attributes...)
		s.cacheHits.Add(ctx, 1, metric.WithAttributes(attributes...))
		prime = verdict == cachedPrime
	default:
		if verdict != "" {
			logger.Info("Ignoring unrecognised cached verdict", "verdict", verdict)
		}
		attributes := append(attributes, attribute.Bool(OpenTelemetryPackageIdentifier+".cache_hit", false))
		span.SetAttributes(attributes...)
		span.AddEvent("Testing candidate")
		s.cacheMisses.Add(ctx, 1, metric.WithAttributes(attributes...))
		ts := time.Now()
		prime = s.tester.IsPrime(request.Candidate, request.Iterations)
		s.calculationMs.Record(ctx, time.Since(ts).Milliseconds(), metric.WithAttributes(attributes...))
		verdict = cachedNotPrime
		if prime {
			verdict = cachedPrime
		}
		if err := s.cache.SetValue(ctx, key, verdict); err != nil {
			recordError(span, err)
			s.cacheErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
			return nil, status.Error(codes.Internal, fmt.Sprintf("cache %T SetValue method returned an error: %v", s.cache, err)) //nolint:wrapcheck // Errors returned should be gRPC statuses
		}
	}
	logger.Info("IsPrime: exit", "prime", prime)
	return api.NewIsPrimeResponse(request, prime, s.responseMetadata()), nil
}

// Implement the PrimalityService Jacobi RPC method.
func (s *PrimalityServer) Jacobi(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := otel.Tracer(OpenTelemetryPackageIdentifier).Start(ctx, OpenTelemetryPackageIdentifier+"/Jacobi")
	defer span.End()
	request, err := api.ParseJacobiRequest(in)
	if err != nil {
		recordError(span, err)
		return nil, status.Error(codes.InvalidArgument, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	logger := s.logger.WithValues("a", request.A, "n", request.N)
	logger.Info("Jacobi: enter")
	attributes := []attribute.KeyValue{
		attribute.Int(OpenTelemetryPackageIdentifier+".bits", request.N.BitLen()),
	}
	span.SetAttributes(attributes...)
	ts := time.Now()
	symbol := dhprime.Jacobi(request.A, request.N)
	s.calculationMs.Record(ctx, time.Since(ts).Milliseconds(), metric.WithAttributes(attributes...))
	logger.Info("Jacobi: exit", "symbol", symbol)
	return api.NewJacobiResponse(request, symbol, s.responseMetadata()), nil
}

// Create a new grpc.Server that is ready to be attached to a net.Listener.
func (s *PrimalityServer) NewGrpcServer() *grpc.Server {
	s.logger.V(1).Info("Building a standard gRPC server")
	grpcServer := grpc.NewServer(s.serverOptions...)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	api.RegisterPrimalityServiceServer(grpcServer, s)
	reflection.Register(grpcServer)
	return grpcServer
}

// Create a new REST gateway handler that translates and forwards incoming REST
// requests to the specified gRPC endpoint address. The gRPC client connection
// is closed when ctx is done.
func (s *PrimalityServer) NewRestGatewayHandler(ctx context.Context, grpcAddress string) (http.Handler, error) {
	conn, err := grpc.DialContext(ctx, grpcAddress, s.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gRPC endpoint %s for REST gateway: %w", grpcAddress, err)
	}
	go func() {
		<-ctx.Done()
		if err := conn.Close(); err != nil {
			s.logger.Error(err, "Closing REST gateway gRPC connection raised an error; continuing")
		}
	}()
	return s.newRestHandler(api.NewPrimalityServiceClient(conn))
}

func (s *PrimalityServer) newRestHandler(client api.PrimalityServiceClient) (http.Handler, error) {
	mux := runtime.NewServeMux()
	if err := mux.HandlePath(http.MethodGet, "/v1/prime/{candidate}",
		func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			candidate, err := api.ParseInteger(pathParams[api.CandidateField])
			if err != nil {
				s.writeError(w, r, status.Error(codes.InvalidArgument, err.Error()))
				return
			}
			iterations := 0
			if value := r.URL.Query().Get(api.IterationsField); value != "" {
				parsed, err := api.ParseInteger(value)
				if err != nil || !parsed.IsInt64() {
					s.writeError(w, r, status.Errorf(codes.InvalidArgument, "invalid iterations %q", value))
					return
				}
				iterations = int(parsed.Int64())
			}
			response, err := client.IsPrime(r.Context(), api.NewIsPrimeRequest(candidate, iterations))
			s.writeResponse(w, r, response, err)
		},
	); err != nil {
		return nil, fmt.Errorf("failed to register /v1/prime handler for REST gateway: %w", err)
	}
	if err := mux.HandlePath(http.MethodGet, "/v1/jacobi/{a}/{n}",
		func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			a, err := api.ParseInteger(pathParams[api.AField])
			if err != nil {
				s.writeError(w, r, status.Error(codes.InvalidArgument, err.Error()))
				return
			}
			n, err := api.ParseInteger(pathParams[api.NField])
			if err != nil {
				s.writeError(w, r, status.Error(codes.InvalidArgument, err.Error()))
				return
			}
			response, err := client.Jacobi(r.Context(), api.NewJacobiRequest(a, n))
			s.writeResponse(w, r, response, err)
		},
	); err != nil {
		return nil, fmt.Errorf("failed to register /v1/jacobi handler for REST gateway: %w", err)
	}
	return otelhttp.NewHandler(mux,
		OpenTelemetryPackageIdentifier+"/RestGatewayHandler",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	), nil
}

func (s *PrimalityServer) writeResponse(w http.ResponseWriter, r *http.Request, response *structpb.Struct, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := protojson.Marshal(response)
	if err != nil {
		s.writeError(w, r, status.Error(codes.Internal, err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.logger.Error(err, "Writing REST response raised an error; continuing")
	}
}

// Translate a gRPC status into an HTTP status and a JSON encoded status body.
func (s *PrimalityServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := status.Convert(err)
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String(OpenTelemetryPackageIdentifier+".grpc_code", st.Code().String()))
	span.SetStatus(otelcodes.Error, st.Message())
	body, marshalErr := structpb.NewStruct(map[string]interface{}{
		"code":    float64(st.Code()),
		"message": st.Message(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
	if marshalErr != nil {
		return
	}
	if payload, err := protojson.Marshal(body); err == nil {
		if _, err := w.Write(payload); err != nil {
			s.logger.Error(err, "Writing REST error response raised an error; continuing")
		}
	}
}
