package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var validate bool

// chainCmd represents the chain command.
var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the block chain",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := newState(context.Background())
		if err != nil {
			log.Fatal(err)
		}

		if validate {
			if err := st.ValidateChain(); err != nil {
				log.Fatal(err)
			}
			fmt.Println("chain linkage valid")
		}

		for _, block := range st.Blocks() {
			fmt.Printf("blk[%d] hash[%s] prev[%s] trans[%d]\n",
				block.Header.Height, block.Hash, block.Header.PrevBlockHash, len(block.Trans))
		}
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.Flags().BoolVarP(&validate, "validate", "c", false, "Validate chain linkage before printing.")
}
