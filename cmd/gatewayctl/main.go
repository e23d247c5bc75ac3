package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/cmd/gatewayctl/commands"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Gateway management CLI",
		Long:  "Operational tooling for the gateway: pricing table management and circuit breaker inspection.",
	}

	rootCmd.AddCommand(commands.NewPricingCommand())
	rootCmd.AddCommand(commands.NewBreakerCommand())

	return rootCmd
}
