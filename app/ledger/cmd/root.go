// Package cmd contains the ledger cli commands.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgersim/ledger/foundation/ledger/pow"
	"github.com/ledgersim/ledger/foundation/ledger/state"
)

var (
	storePath string
	miner     string
	bits      uint
	subsidy   uint64
	threshold int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", "zledger/data", "Path to the ledger store directory.")
	rootCmd.PersistentFlags().StringVarP(&miner, "miner", "m", "miner1", "Account credited with block rewards.")
	rootCmd.PersistentFlags().UintVarP(&bits, "bits", "b", 15, "Difficulty bits for sealing new blocks.")
	rootCmd.PersistentFlags().Uint64VarP(&subsidy, "subsidy", "r", 50, "Reward for settling a block.")
	rootCmd.PersistentFlags().IntVarP(&threshold, "threshold", "t", 100, "Blocks per segment file.")
}

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Single process ledger",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newState opens the ledger store behind every command.
func newState(ctx context.Context) (*state.State, error) {
	return state.New(ctx, state.Config{
		Miner:            miner,
		StorePath:        storePath,
		DifficultyBits:   bits,
		Subsidy:          subsidy,
		SegmentThreshold: threshold,
		Sealer:           pow.New(nil),
	})
}
