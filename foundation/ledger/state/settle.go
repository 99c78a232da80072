package state

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledgersim/ledger/foundation/ledger/chain"
	"github.com/ledgersim/ledger/foundation/ledger/pool"
)

// Settle seals the pending transfers plus a coinbase reward into a new
// block, applies the balance effects and clears the pool.
//
// Every intent is validated cumulatively against one balance snapshot
// BEFORE the block is sealed. Balances can drift between enqueue time
// and settlement time; that gap is caught here while the chain is
// still untouched. A validation failure surfaces as an
// insufficient balance error, the pool and chain unchanged. Once the
// block is durably appended the apply phase consists only of in-memory
// arithmetic over accounts proven to exist, so a failure there
// (ErrSettlementInconsistency) indicates memory corruption and leaves
// the block committed.
func (s *State) Settle(ctx context.Context, miner string) (chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	traceID := uuid.NewString()
	s.evHandler("state: settle: started: traceid[%s] miner[%s] pending[%d]", traceID, miner, s.pool.Count())

	pending := s.pool.Copy()
	if err := s.validateIntents(pending); err != nil {
		return chain.Block{}, err
	}

	coinbase, err := s.coinbase(miner)
	if err != nil {
		return chain.Block{}, err
	}
	trans := append(s.pool.SignData(), coinbase)

	block, err := s.chain.Append(ctx, trans)
	if err != nil {
		return chain.Block{}, err
	}

	if err := s.disk.AppendBlock(s.chain.Height(), chain.NewBlockData(block)); err != nil {

		// Unwind the in-memory append so memory and disk stay in step
		// and the settlement can be retried.
		if _, rerr := s.chain.RemoveTip(); rerr != nil {
			return chain.Block{}, fmt.Errorf("unwinding block %d: %s: %w", block.Header.Height, rerr, err)
		}
		return chain.Block{}, fmt.Errorf("persisting block %d: %w", block.Header.Height, err)
	}

	// The block is committed. Everything below is in-memory arithmetic
	// followed by durable snapshots of the results.
	if err := s.vault.Credit(miner, s.subsidy); err != nil {
		return block, fmt.Errorf("%w: crediting miner: %s", ErrSettlementInconsistency, err)
	}

	for _, tx := range pending {
		if err := s.vault.Move(tx.Source, tx.Dest, tx.Amount); err != nil {
			return block, fmt.Errorf("%w: applying %s: %s", ErrSettlementInconsistency, tx.Payload(), err)
		}
	}

	if err := s.disk.RewriteAccounts(s.vault.Records()); err != nil {
		return block, fmt.Errorf("persisting accounts: %w", err)
	}

	s.pool.Truncate()
	if err := s.disk.WritePending(nil); err != nil {
		return block, fmt.Errorf("truncating pending log: %w", err)
	}

	s.evHandler("state: settle: completed: traceid[%s] blk[%d] hash[%s] trans[%d]",
		traceID, block.Header.Height, block.Hash, len(block.Trans))

	return block, nil
}

// validateIntents replays the pending transfers against a snapshot of
// the current balances, failing on the first transfer the snapshot
// cannot cover. Both sides of every transfer must exist in the snapshot
// so the apply phase consists only of arithmetic over known accounts.
func (s *State) validateIntents(pending []pool.PendingTx) error {
	balances := s.vault.CopyBalances()

	for _, tx := range pending {
		balance, exists := balances[tx.Source]
		if !exists || balance < tx.Amount {
			return fmt.Errorf("settlement of %s: %w: account %s holds %d, needs %d",
				tx.Payload(), pool.ErrInsufficientBalance, tx.Source, balance, tx.Amount)
		}

		if _, exists := balances[tx.Dest]; !exists {
			return fmt.Errorf("settlement of %s: %w: destination %s",
				tx.Payload(), pool.ErrUnknownAccount, tx.Dest)
		}

		balances[tx.Source] = balance - tx.Amount
		balances[tx.Dest] += tx.Amount
	}

	return nil
}
