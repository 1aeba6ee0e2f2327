package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oskay-diag/linkuds"
)

var (
	toHeader    string
	replyHeader string
)

var sendCmd = &cobra.Command{
	Use:   "send <hex-payload>",
	Short: "Connect, send one UDS request, and print the response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("decoding payload: %w", err)
		}
		to, err := linkuds.ParseHeader(toHeader)
		if err != nil {
			return fmt.Errorf("parsing --to: %w", err)
		}
		reply, err := linkuds.ParseHeader(replyHeader)
		if err != nil {
			return fmt.Errorf("parsing --reply: %w", err)
		}

		a, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		pipeline := linkuds.NewPipeline(a)
		resp, err := pipeline.Send(cmd.Context(), to, reply, payload)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %X\n", resp.ID, resp.Bytes)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&toHeader, "to", "7DF", "request header")
	sendCmd.Flags().StringVar(&replyHeader, "reply", "7E8", "expected reply header")
	rootCmd.AddCommand(sendCmd)
}
