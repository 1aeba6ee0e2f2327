package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oskay-diag/linkuds/adapter"
	"github.com/oskay-diag/linkuds/pkg/logx"
	"github.com/oskay-diag/linkuds/pkg/serialio"
)

// openAdapter opens portName at baudRate and runs an adapter through its
// discovery/negotiation handshake, returning it connected. The caller owns
// the returned adapter and must Close it.
func openAdapter(ctx context.Context) (*adapter.Adapter, error) {
	if portName == "" {
		return nil, fmt.Errorf("linkuds: --port is required")
	}
	stream, err := serialio.Open(portName, baudRate)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", portName, err)
	}

	a := adapter.New(stream, adapter.WithLogger(logx.Default()))
	if err := a.Connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Connect and print what the adapter negotiated",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		info := a.Info()
		fmt.Printf("adapter:   %s\n", info.Identify)
		if info.DeviceDescription != "" {
			fmt.Printf("device:    %s\n", info.DeviceDescription)
		}
		if info.SupportsSTCommands {
			fmt.Printf("st mode:   %s\n", info.ExtendedIdentify)
		}
		fmt.Printf("protocol:  %s\n", a.Protocol())
		fmt.Printf("mtu:       %d\n", a.MTU())
		fmt.Printf("responses: %d\n", len(a.DetectedMessages()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
