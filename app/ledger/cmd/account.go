package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// accountCmd represents the account command.
var accountCmd = &cobra.Command{
	Use:   "account <name>",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := newState(context.Background())
		if err != nil {
			log.Fatal(err)
		}

		account, err := st.CreateAccount(args[0])
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("name:    %s\n", account.Name)
		fmt.Printf("address: %s\n", account.Address)
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
}
