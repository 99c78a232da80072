package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// verifyCmd represents the verify command.
var verifyCmd = &cobra.Command{
	Use:   "verify <name>",
	Short: "Verify the address derivation of an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := newState(context.Background())
		if err != nil {
			log.Fatal(err)
		}

		ok, err := st.VerifyAddress(args[0])
		if err != nil {
			log.Fatal(err)
		}
		if !ok {
			log.Fatalf("address for account %q does not match its keys", args[0])
		}

		fmt.Printf("address for account %q verified\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
