package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// settleCmd represents the settle command.
var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Seal the pending transfers into a new block",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := newState(context.Background())
		if err != nil {
			log.Fatal(err)
		}

		block, err := st.Settle(context.Background(), miner)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("height: %d\n", block.Header.Height)
		fmt.Printf("hash:   %s\n", block.Hash)
		fmt.Printf("trans:  %d\n", len(block.Trans))
	},
}

func init() {
	rootCmd.AddCommand(settleCmd)
}
