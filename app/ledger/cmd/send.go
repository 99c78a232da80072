package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var (
	from   string
	to     string
	amount uint64
)

// sendCmd represents the send command.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Queue a transfer for the next settlement",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := newState(context.Background())
		if err != nil {
			log.Fatal(err)
		}

		if err := st.SubmitTransfer(from, to, amount); err != nil {
			log.Fatal(err)
		}

		fmt.Printf("queued %d from %s to %s, %d pending\n", amount, from, to, st.PendingCount())
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&from, "from", "f", "", "Source account name.")
	sendCmd.Flags().StringVarP(&to, "to", "d", "", "Destination account name.")
	sendCmd.Flags().Uint64VarP(&amount, "value", "v", 0, "Amount to transfer.")
	sendCmd.MarkFlagRequired("from")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("value")
}
