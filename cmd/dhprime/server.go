package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memes/dhprime/pkg/cache"
	"github.com/memes/dhprime/pkg/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const (
	ServerServiceName        = "server"
	DefaultGRPCListenAddress = ":8443"
	DefaultShutdownTimeout   = 60 * time.Second
	AddressFlagName          = "address"
	RestAddressFlagName      = "rest-address"
	RedisTargetFlagName      = "redis-target"
	RedisTTLFlagName         = "redis-ttl"
	LabelFlagName            = "label"
	RestAuthorityFlagName    = "rest-authority"
	TLSClientAuthFlagName    = "tls-client-auth"
	readHeaderTimeout        = 10 * time.Second
)

// Implements the server sub-command.
func NewServerCmd() (*cobra.Command, error) {
	serverCmd := &cobra.Command{
		Use:   ServerServiceName,
		Short: "Run a gRPC primality service",
		Long: `Launches a gRPC PrimalityService server that tests candidates for primality and computes Jacobi symbols.

An optional REST gateway can be started alongside, and an optional Redis DB can be used to cache verdicts. Metrics and traces will be sent to an OpenTelemetry collection endpoint, if specified.`,
		Args: cobra.NoArgs,
		RunE: serverMain,
	}
	serverCmd.PersistentFlags().StringP(AddressFlagName, "a", DefaultGRPCListenAddress, "Address to listen for gRPC PrimalityService requests")
	serverCmd.PersistentFlags().String(RestAddressFlagName, "", "An optional listen address to launch a REST/gRPC gateway process")
	serverCmd.PersistentFlags().String(RestAuthorityFlagName, "", "Set the authoritative name used by the REST gateway for gRPC TLS verification")
	serverCmd.PersistentFlags().String(RedisTargetFlagName, "", "An optional Redis endpoint to use as a verdict cache")
	serverCmd.PersistentFlags().Duration(RedisTTLFlagName, 0, "An optional expiry for cached verdicts; zero keeps them indefinitely")
	serverCmd.PersistentFlags().StringToStringP(LabelFlagName, "l", nil, "An optional label key=value to add to PrimalityService response metadata; can be repeated")
	serverCmd.PersistentFlags().Bool(TLSClientAuthFlagName, false, "Require PrimalityService clients to provide a valid TLS client certificate")
	if err := bindFlags(serverCmd.PersistentFlags().Lookup,
		AddressFlagName,
		RestAddressFlagName,
		RestAuthorityFlagName,
		RedisTargetFlagName,
		RedisTTLFlagName,
		LabelFlagName,
		TLSClientAuthFlagName,
	); err != nil {
		return nil, err
	}
	return serverCmd, nil
}

// Server sub-command entrypoint. This function will launch the gRPC
// PrimalityService and an optional REST gateway.
func serverMain(cmd *cobra.Command, _ []string) error {
	address := viper.GetString(AddressFlagName)
	restAddress := viper.GetString(RestAddressFlagName)
	redisTarget := viper.GetString(RedisTargetFlagName)
	logger := logger.V(1).WithValues("address", address, "redisTarget", redisTarget, "restAddress", restAddress)
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger.Info("Preparing telemetry")
	shutdownTelemetry, err := initTelemetry(ctx, ServerServiceName)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Error(err, "Error raised while shutting down telemetry")
		}
	}()

	logger.Info("Preparing services")
	options := []server.PrimalityServerOption{
		server.WithLogger(logger),
		server.WithLabels(viper.GetStringMapString(LabelFlagName)),
	}
	if redisTarget != "" {
		options = append(options, server.WithCache(cache.NewRedisCache(ctx, redisTarget,
			cache.WithLogger(logger),
			cache.WithTTL(viper.GetDuration(RedisTTLFlagName)),
		)))
	}
	serverCreds, restClientCreds, err := newServerTransportCredentials()
	if err != nil {
		return err
	}
	options = append(options,
		server.WithGRPCServerTransportCredentials(serverCreds),
		server.WithRestClientGRPCTransportCredentials(restClientCreds),
		server.WithRestClientAuthority(viper.GetString(RestAuthorityFlagName)),
	)
	primalityServer, err := server.NewPrimalityServer(options...)
	if err != nil {
		return fmt.Errorf("failed to create new PrimalityServer: %w", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	grpcServer := primalityServer.NewGrpcServer()
	var restServer *http.Server
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting gRPC service")
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return fmt.Errorf("failed to start gRPC listener: %w", err)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
		return nil
	})
	if restAddress != "" {
		restHandler, err := primalityServer.NewRestGatewayHandler(ctx, address)
		if err != nil {
			grpcServer.Stop()
			return fmt.Errorf("failed to create new REST gateway handler: %w", err)
		}
		restServer = &http.Server{
			Addr:              restAddress,
			Handler:           restHandler,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			logger.Info("Starting REST/gRPC gateway")
			if err := restServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("restServer listener returned an error: %w", err)
			}
			return nil
		})
	}

	select {
	case <-interrupt:
		logger.V(0).Info("Shutting down on signal")
	case <-ctx.Done():
		logger.V(0).Info("Shutting down on error")
	}
	cancel()
	shutdownCtx, shutdown := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdown()
	if restServer != nil {
		if err := restServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "Failed to shutdown REST gateway cleanly")
		}
	}
	grpcServer.GracefulStop()
	return g.Wait() //nolint:wrapcheck // Errors are wrapped in the goroutines
}

// Creates the gRPC transport credentials to use with the PrimalityService from
// the various configuration options provided, along with the credentials the
// REST gateway should use to reach it. Both are nil when no certificate is
// configured and the service runs in plaintext.
func newServerTransportCredentials() (credentials.TransportCredentials, credentials.TransportCredentials, error) {
	certFile := viper.GetString(TLSCertFlagName)
	keyFile := viper.GetString(TLSKeyFlagName)
	cacerts := viper.GetStringSlice(CACertFlagName)
	tlsClientAuth := viper.GetBool(TLSClientAuthFlagName)
	logger := logger.V(1).WithValues(TLSCertFlagName, certFile, TLSKeyFlagName, keyFile, CACertFlagName, cacerts, TLSClientAuthFlagName, tlsClientAuth)
	if certFile == "" {
		logger.Info("No server certificate provided; PrimalityService will use plaintext")
		return nil, nil, nil
	}
	logger.Info("Preparing server TLS credentials")
	material, err := newTLSMaterial(certFile, keyFile, cacerts)
	if err != nil {
		return nil, nil, err
	}
	serverTLS := material.serverConfig(tlsClientAuth)
	// The gateway presents the same certificate when client auth is required.
	restTLS := material.clientConfig("")
	return credentials.NewTLS(serverTLS), credentials.NewTLS(restTLS), nil
}
