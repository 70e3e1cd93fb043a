package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"runtime"

	"github.com/memes/dhprime"
	api "github.com/memes/dhprime/api/v1"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	VerifyFlagName      = "verify"
	ConcurrencyFlagName = "concurrency"
)

// Returned when a probabilistic verdict disagrees with trial division.
var errVerifyMismatch = errors.New("verdict disagrees with trial division")

// Implements the check sub-command.
func NewCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check N [N...]",
		Short: "Test one or more integers for primality",
		Long: `Runs IsPrime locally on each argument and prints whether it is probably prime or composite.

Arguments are decimal, or hexadecimal with a 0x prefix.`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: bindLocalFlags(VerifyFlagName, ConcurrencyFlagName),
		RunE:    checkMain,
	}
	checkCmd.Flags().Bool(VerifyFlagName, false, "Cross-check values below 2^32 with exact trial division")
	checkCmd.Flags().IntP(ConcurrencyFlagName, "c", runtime.NumCPU(), "The maximum number of values to test in parallel")
	return checkCmd
}

// Returns a line describing the verdict.
func formatVerdict(value *big.Int, prime bool) string {
	if prime {
		return value.String() + ": probably prime"
	}
	return value.String() + ": composite"
}

// Check sub-command entrypoint.
func checkMain(cmd *cobra.Command, args []string) error {
	iterations := viper.GetInt(IterationsFlagName)
	verify := viper.GetBool(VerifyFlagName)
	concurrency := viper.GetInt(ConcurrencyFlagName)
	logger := logger.V(1).WithValues("iterations", iterations, "verify", verify, "concurrency", concurrency)
	logger.Info("Preparing values")
	values := make([]*big.Int, len(args))
	for i, arg := range args {
		value, err := api.ParseInteger(arg)
		if err != nil {
			return err //nolint:wrapcheck // ParseInteger errors already name the value
		}
		values[i] = value
	}
	verdicts, err := checkValues(cmd.Context(), values, iterations, verify, concurrency)
	if err != nil {
		return err
	}
	for i, value := range values {
		fmt.Fprintln(cmd.OutOrStdout(), formatVerdict(value, verdicts[i]))
	}
	return nil
}

// Test each value with a bounded number of goroutines, preserving order.
func checkValues(ctx context.Context, values []*big.Int, iterations int, verify bool, concurrency int) ([]bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	verdicts := make([]bool, len(values))
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, value := range values {
		i, value := i, value
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("check cancelled: %w", err)
			}
			verdicts[i] = dhprime.IsPrime(value, iterations)
			if verify && value.Sign() >= 0 && value.IsUint64() && value.Uint64() < 1<<32 {
				if exact := dhprime.TrialDivision(value.Uint64()); exact != verdicts[i] {
					return fmt.Errorf("%w: %s", errVerifyMismatch, value)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // Errors are created in this package
	}
	return verdicts, nil
}
