package chain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ledgersim/ledger/foundation/ledger/chain"
	"github.com/ledgersim/ledger/foundation/ledger/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// stubSealer hands back a deterministic hash without doing any work so
// chain mechanics can be tested without mining.
type stubSealer struct{}

func (stubSealer) Seal(ctx context.Context, input chain.SealInput) (string, uint64, error) {
	return fmt.Sprintf("0x%064x", input.Height+1), input.Height + 1000, nil
}

// =============================================================================

func Test_ChainLinkage(t *testing.T) {
	t.Log("Given the need to grow an append-only chain of linked blocks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen building genesis and appending blocks.", testID)
		{
			ctx := context.Background()
			store := chain.New(stubSealer{}, 1)

			if _, err := store.Tip(); !errors.Is(err, chain.ErrEmptyChain) {
				t.Fatalf("\t%s\tTest %d:\tShould have no tip before genesis: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have no tip before genesis.", success, testID)

			genesis, err := store.Genesis(ctx, "reward: 50 -- to: miner1")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the genesis block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to build the genesis block.", success, testID)

			if genesis.Header.PrevBlockHash != signature.ZeroHash {
				t.Fatalf("\t%s\tTest %d:\tShould link genesis to the zero hash, got %s.", failed, testID, genesis.Header.PrevBlockHash)
			}
			t.Logf("\t%s\tTest %d:\tShould link genesis to the zero hash.", success, testID)

			if _, err := store.Genesis(ctx, "again"); !errors.Is(err, chain.ErrGenesisExists) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a second genesis: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a second genesis.", success, testID)

			block, err := store.Append(ctx, []string{"tx1", "tx2"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append a block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append a block.", success, testID)

			if block.Header.Height != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould carry height 1, got %d.", failed, testID, block.Header.Height)
			}
			if block.Header.PrevBlockHash != genesis.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould link to the genesis hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould link to the genesis hash.", success, testID)

			if store.Height() != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould report a height of 2, got %d.", failed, testID, store.Height())
			}
			t.Logf("\t%s\tTest %d:\tShould report a height of 2.", success, testID)

			if err := store.Validate(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould validate the linkage: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould validate the linkage.", success, testID)
		}
	}
}

func Test_RemoveTip(t *testing.T) {
	t.Log("Given the need to unwind an append whose durable write failed.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen removing the latest block.", testID)
		{
			ctx := context.Background()
			store := chain.New(stubSealer{}, 1)

			genesis, err := store.Genesis(ctx, "coinbase")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build genesis: %v", failed, testID, err)
			}
			block, err := store.Append(ctx, []string{"tx1"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append: %v", failed, testID, err)
			}

			removed, err := store.RemoveTip()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to remove the tip: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to remove the tip.", success, testID)

			if removed.Hash != block.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould hand back the removed block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould hand back the removed block.", success, testID)

			tip, err := store.Tip()
			if err != nil || tip.Hash != genesis.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould leave genesis as the tip: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould leave genesis as the tip.", success, testID)

			// A retried append must produce a valid chain again.
			if _, err := store.Append(ctx, []string{"tx1"}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append again: %v", failed, testID, err)
			}
			if err := store.Validate(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould validate after the retried append: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould validate after the retried append.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the chain is empty.", testID)
		{
			store := chain.New(stubSealer{}, 1)

			if _, err := store.RemoveTip(); !errors.Is(err, chain.ErrEmptyChain) {
				t.Fatalf("\t%s\tTest %d:\tShould report an empty chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report an empty chain.", success, testID)
		}
	}
}

func Test_ReloadValidation(t *testing.T) {
	t.Log("Given the need to validate blocks recovered from disk.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen reloading a valid sequence.", testID)
		{
			ctx := context.Background()
			store := chain.New(stubSealer{}, 1)
			if _, err := store.Genesis(ctx, "coinbase"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build genesis: %v", failed, testID, err)
			}
			if _, err := store.Append(ctx, []string{"tx1"}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append: %v", failed, testID, err)
			}

			blocks := store.Blocks()

			restored := chain.New(stubSealer{}, 1)
			if err := restored.Reload(blocks); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to reload valid blocks: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to reload valid blocks.", success, testID)

			if restored.Height() != store.Height() {
				t.Fatalf("\t%s\tTest %d:\tShould restore the full height, got %d.", failed, testID, restored.Height())
			}
			t.Logf("\t%s\tTest %d:\tShould restore the full height.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the sequence is tampered with.", testID)
		{
			ctx := context.Background()
			store := chain.New(stubSealer{}, 1)
			if _, err := store.Genesis(ctx, "coinbase"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build genesis: %v", failed, testID, err)
			}
			if _, err := store.Append(ctx, []string{"tx1"}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append: %v", failed, testID, err)
			}

			blocks := store.Blocks()
			blocks[1].Header.PrevBlockHash = signature.ZeroHash

			restored := chain.New(stubSealer{}, 1)
			if err := restored.Reload(blocks); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject broken linkage.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject broken linkage.", success, testID)

			blocks = store.Blocks()
			blocks[1].Trans = []string{"tx-forged"}
			if err := restored.Reload(blocks); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a forged transaction set.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a forged transaction set.", success, testID)
		}
	}
}

func Test_SameContent(t *testing.T) {
	t.Log("Given the need to compare block content by transaction root.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen comparing blocks with equal and unequal transactions.", testID)
		{
			ctx := context.Background()

			storeA := chain.New(stubSealer{}, 1)
			if _, err := storeA.Genesis(ctx, "coinbase"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build genesis: %v", failed, testID, err)
			}
			a, err := storeA.Append(ctx, []string{"tx1", "tx2"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append: %v", failed, testID, err)
			}

			storeB := chain.New(stubSealer{}, 1)
			if _, err := storeB.Genesis(ctx, "coinbase"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build genesis: %v", failed, testID, err)
			}
			b, err := storeB.Append(ctx, []string{"tx1", "tx2"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append: %v", failed, testID, err)
			}

			same, err := chain.SameContent(a, b)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to compare blocks: %v", failed, testID, err)
			}
			if !same {
				t.Fatalf("\t%s\tTest %d:\tShould match blocks with the same transactions.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould match blocks with the same transactions.", success, testID)

			c, err := storeB.Append(ctx, []string{"tx3"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append: %v", failed, testID, err)
			}
			same, err = chain.SameContent(a, c)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to compare blocks: %v", failed, testID, err)
			}
			if same {
				t.Fatalf("\t%s\tTest %d:\tShould not match blocks with different transactions.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not match blocks with different transactions.", success, testID)
		}
	}
}

func Test_BlockDataRoundTrip(t *testing.T) {
	t.Log("Given the need to convert blocks to and from their disk form.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen converting a sealed block.", testID)
		{
			ctx := context.Background()
			store := chain.New(stubSealer{}, 1)
			if _, err := store.Genesis(ctx, "coinbase"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build genesis: %v", failed, testID, err)
			}
			block, err := store.Append(ctx, []string{"tx1"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append: %v", failed, testID, err)
			}

			data := chain.NewBlockData(block)
			restored := chain.ToBlock(data)

			if restored.Hash != block.Hash || restored.Header != block.Header {
				t.Fatalf("\t%s\tTest %d:\tShould round trip the header and hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould round trip the header and hash.", success, testID)

			if len(restored.Trans) != 1 || restored.Trans[0] != "tx1" {
				t.Fatalf("\t%s\tTest %d:\tShould round trip the transactions.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould round trip the transactions.", success, testID)
		}
	}
}
