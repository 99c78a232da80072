package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// balancesCmd represents the balances command.
var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Print every account with its balance and address",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := newState(context.Background())
		if err != nil {
			log.Fatal(err)
		}

		for _, account := range st.Accounts() {
			fmt.Printf("%-20s %12d  %s\n", account.Name, account.Balance, account.Address)
		}
	},
}

func init() {
	rootCmd.AddCommand(balancesCmd)
}
