package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oskay-diag/linkuds/pkg/serialio"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports available on this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := serialio.Ports()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
