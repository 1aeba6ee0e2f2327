package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

var (
	portName string
	baudRate int
)

var rootCmd = &cobra.Command{
	Use:          "linkuds",
	Short:        "Talk UDS/OBD-II over an ELM327 or STN-class adapter",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 500000, "adapter baud rate")
}

// Execute runs the CLI, honoring ctx for interrupt-driven shutdown of any
// in-flight command.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
