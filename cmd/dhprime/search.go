package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"runtime"
	"time"

	api "github.com/memes/dhprime/api/v1"
	"github.com/memes/dhprime/pkg/search"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	BitsFlagName    = "bits"
	FromFlagName    = "from"
	SafeFlagName    = "safe"
	TimeoutFlagName = "timeout"
	DefaultBits     = 1024
)

// Implements the search sub-command.
func NewSearchCmd() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Find a probable prime",
		Long: `Finds a probable prime and prints it in decimal.

With --from, the smallest probable prime greater than the value is returned. Otherwise a random prime of --bits bits is generated; --safe requires p = 2q + 1 with q also prime, as used for Diffie-Hellman moduli.`,
		Args:    cobra.NoArgs,
		PreRunE: bindLocalFlags(BitsFlagName, FromFlagName, SafeFlagName, ConcurrencyFlagName, TimeoutFlagName),
		RunE:    searchMain,
	}
	searchCmd.Flags().IntP(BitsFlagName, "b", DefaultBits, "The bit length of the prime to generate")
	searchCmd.Flags().String(FromFlagName, "", "Find the next probable prime after this value instead of a random prime")
	searchCmd.Flags().Bool(SafeFlagName, false, "Generate a safe prime")
	searchCmd.Flags().IntP(ConcurrencyFlagName, "c", runtime.NumCPU(), "The number of safe prime search workers")
	searchCmd.Flags().Duration(TimeoutFlagName, 0, "Abandon the search after this duration; zero disables the timeout")
	return searchCmd
}

// Search sub-command entrypoint.
func searchMain(cmd *cobra.Command, _ []string) error {
	bits := viper.GetInt(BitsFlagName)
	from := viper.GetString(FromFlagName)
	safe := viper.GetBool(SafeFlagName)
	concurrency := viper.GetInt(ConcurrencyFlagName)
	timeout := viper.GetDuration(TimeoutFlagName)
	iterations := viper.GetInt(IterationsFlagName)
	logger := logger.V(1).WithValues("bits", bits, "from", from, "safe", safe, "concurrency", concurrency, "timeout", timeout)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Info("Starting search")
	ts := time.Now()
	var result *big.Int
	switch {
	case from != "":
		start, err := api.ParseInteger(from)
		if err != nil {
			return err //nolint:wrapcheck // ParseInteger errors already name the value
		}
		if result, err = search.Next(ctx, start, iterations); err != nil {
			return fmt.Errorf("failed to find next prime: %w", err)
		}
	case safe:
		safePrime, err := search.Safe(ctx, rand.Reader, bits, iterations, concurrency)
		if err != nil {
			return fmt.Errorf("failed to find safe prime: %w", err)
		}
		result = safePrime.SafePrime()
	default:
		var err error
		if result, err = search.Random(ctx, rand.Reader, bits, iterations); err != nil {
			return fmt.Errorf("failed to find random prime: %w", err)
		}
	}
	logger.Info("Search complete", "elapsed", time.Since(ts), "resultBits", result.BitLen())
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
