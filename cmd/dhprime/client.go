package main

import (
	"fmt"
	"math/big"
	"time"

	api "github.com/memes/dhprime/api/v1"
	"github.com/memes/dhprime/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
)

const (
	ClientServiceName      = "client"
	DefaultMaxTimeout      = 10 * time.Second
	MaxTimeoutFlagName     = "max-timeout"
	ClientInsecureFlagName = "insecure"
	ClientAuthorityFlag    = "authority"
)

// Implements the client sub-command which asks a PrimalityService for a
// verdict on each argument.
func NewClientCmd() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   ClientServiceName + " target N [N...]",
		Short: "Ask a remote PrimalityService whether values are prime",
		Long: `Connects to a PrimalityService target and requests a verdict for each value.

Metrics and traces will be sent to an OpenTelemetry collection endpoint, if specified.`,
		Args:    cobra.MinimumNArgs(2),
		PreRunE: bindLocalFlags(MaxTimeoutFlagName, ClientInsecureFlagName, ClientAuthorityFlag),
		RunE:    clientMain,
	}
	clientCmd.Flags().DurationP(MaxTimeoutFlagName, "m", DefaultMaxTimeout, "The maximum timeout for a PrimalityService request")
	clientCmd.Flags().Bool(ClientInsecureFlagName, false, "Connect to the PrimalityService without TLS")
	clientCmd.Flags().String(ClientAuthorityFlag, "", "Set the authoritative name of the PrimalityService target for TLS verification, overriding hostname")
	return clientCmd
}

// Client sub-command entrypoint.
func clientMain(cmd *cobra.Command, args []string) error {
	target := args[0]
	iterations := viper.GetInt(IterationsFlagName)
	logger := logger.V(1).WithValues("target", target, "iterations", iterations)
	values := make([]*big.Int, 0, len(args)-1)
	for _, arg := range args[1:] {
		value, err := api.ParseInteger(arg)
		if err != nil {
			return err //nolint:wrapcheck // ParseInteger errors already name the value
		}
		values = append(values, value)
	}
	ctx := cmd.Context()
	logger.Info("Preparing telemetry")
	shutdownTelemetry, err := initTelemetry(ctx, ClientServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Error(err, "Error raised while shutting down telemetry")
		}
	}()
	creds, err := newClientTransportCredentials(viper.GetBool(ClientInsecureFlagName))
	if err != nil {
		return err
	}
	dialOptions := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if authority := viper.GetString(ClientAuthorityFlag); authority != "" {
		dialOptions = append(dialOptions, grpc.WithAuthority(authority))
	}
	conn, err := grpc.DialContext(ctx, target, dialOptions...)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", target, err)
	}
	defer conn.Close()
	logger.Info("Building client")
	primalityClient, err := client.NewPrimalityClient(
		client.WithLogger(logger),
		client.WithMaxTimeout(viper.GetDuration(MaxTimeoutFlagName)),
		client.WithTracer(otel.Tracer(ClientServiceName)),
		client.WithMeter(otel.Meter(ClientServiceName)),
		client.WithPrefix(ClientServiceName),
	)
	if err != nil {
		return fmt.Errorf("failed to create new PrimalityClient: %w", err)
	}
	for _, value := range values {
		prime, metadata, err := primalityClient.IsPrime(ctx, conn, value, iterations)
		if err != nil {
			return err //nolint:wrapcheck // Client errors are already wrapped
		}
		logger.Info("Verdict received", "value", value, "metadata", metadata)
		fmt.Fprintln(cmd.OutOrStdout(), formatVerdict(value, prime))
	}
	return nil
}
