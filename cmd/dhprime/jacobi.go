package main

import (
	"fmt"

	"github.com/memes/dhprime"
	api "github.com/memes/dhprime/api/v1"
	"github.com/spf13/cobra"
)

// Implements the jacobi sub-command.
func NewJacobiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jacobi A N",
		Short: "Print the Jacobi symbol (A/N)",
		Long:  "Computes the Jacobi symbol (A/N) for an integer A and a positive odd integer N.",
		Args:  cobra.ExactArgs(2),
		RunE:  jacobiMain,
	}
}

// Jacobi sub-command entrypoint.
func jacobiMain(cmd *cobra.Command, args []string) error {
	a, err := api.ParseInteger(args[0])
	if err != nil {
		return err //nolint:wrapcheck // ParseInteger errors already name the value
	}
	n, err := api.ParseInteger(args[1])
	if err != nil {
		return err //nolint:wrapcheck // ParseInteger errors already name the value
	}
	if n.Sign() <= 0 || n.Bit(0) == 0 {
		return fmt.Errorf("%w: %s", api.ErrInvalidModulus, n)
	}
	logger.V(1).Info("Calculating Jacobi symbol", "a", a, "n", n)
	fmt.Fprintln(cmd.OutOrStdout(), dhprime.Jacobi(a, n))
	return nil
}
