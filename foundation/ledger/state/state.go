// Package state is the core API for the ledger and implements all the
// business rules and processing. It keeps the account vault, the pending
// pool, the block chain and the disk store mutually consistent.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ledgersim/ledger/foundation/ledger/chain"
	"github.com/ledgersim/ledger/foundation/ledger/disk"
	"github.com/ledgersim/ledger/foundation/ledger/pool"
	"github.com/ledgersim/ledger/foundation/ledger/signature"
	"github.com/ledgersim/ledger/foundation/ledger/vault"
)

// Defaults applied when a fresh store is initialized without explicit
// settings. A reloaded store always takes its values from metadata.
const (
	DefaultDifficultyBits   = 15
	DefaultSubsidy          = 50
	DefaultSegmentThreshold = disk.DefaultThreshold
)

// ErrSettlementInconsistency reports a settlement that failed applying
// balances after its block was already durably committed. Recovery is
// partial: the block stays, the remaining intents were not applied.
var ErrSettlementInconsistency = errors.New("settlement failed after block commit")

// EventHandler defines a function that is called when events occur in
// the processing of the ledger.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct the ledger
// state.
type Config struct {
	Miner            string
	StorePath        string
	DifficultyBits   uint
	Subsidy          uint64
	SegmentThreshold int
	Sealer           chain.Sealer
	EvHandler        EventHandler
}

// State manages the ledger. All operations are serialized; the process
// is the unit of concurrency and the store directory has a single
// writer.
type State struct {
	mu        sync.Mutex
	miner     string
	subsidy   uint64
	evHandler EventHandler

	vault *vault.Vault
	pool  *pool.Pool
	chain *chain.Store
	disk  *disk.Store
}

// New constructs the ledger state from the store directory, initializing
// a fresh store with a genesis block when no metadata exists yet.
func New(ctx context.Context, cfg Config) (*State, error) {

	// The difficulty target is 2^(256-bits); anything past 255 bits has
	// no representable target.
	if cfg.DifficultyBits > 255 {
		return nil, fmt.Errorf("difficulty bits %d exceeds the 255 bit maximum", cfg.DifficultyBits)
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	store, err := disk.New(cfg.StorePath, cfg.SegmentThreshold, ev)
	if err != nil {
		return nil, err
	}

	v := vault.New()

	s := State{
		miner:     cfg.Miner,
		evHandler: ev,
		vault:     v,
		pool:      pool.New(v),
		disk:      store,
	}

	snapshot, err := store.Load()
	switch {
	case errors.Is(err, disk.ErrUninitialized):
		if err := s.initialize(ctx, cfg); err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}

	case err != nil:
		return nil, err

	default:
		if err := s.restore(cfg, snapshot); err != nil {
			return nil, fmt.Errorf("restoring store: %w", err)
		}
	}

	return &s, nil
}

// initialize prepares a fresh store: the miner account, the genesis
// block and the first durable records.
func (s *State) initialize(ctx context.Context, cfg Config) error {
	bits := cfg.DifficultyBits
	if bits == 0 {
		bits = DefaultDifficultyBits
	}
	subsidy := cfg.Subsidy
	if subsidy == 0 {
		subsidy = DefaultSubsidy
	}

	s.subsidy = subsidy
	s.chain = chain.New(cfg.Sealer, bits)

	if err := s.disk.Init(bits, subsidy); err != nil {
		return err
	}

	account, err := s.vault.Create(cfg.Miner)
	if err != nil {
		return err
	}
	if err := s.disk.AppendAccount(vault.NewRecord(account)); err != nil {
		return err
	}

	coinbase, err := s.coinbase(cfg.Miner)
	if err != nil {
		return err
	}

	genesis, err := s.chain.Genesis(ctx, coinbase)
	if err != nil {
		return err
	}
	if err := s.disk.WriteGenesis(chain.NewBlockData(genesis)); err != nil {
		return err
	}

	// The founding account earns the genesis reward.
	if err := s.vault.Credit(cfg.Miner, subsidy); err != nil {
		return err
	}
	if err := s.disk.RewriteAccounts(s.vault.Records()); err != nil {
		return err
	}

	s.evHandler("state: initialize: genesis blk[%s] miner[%s]", genesis.Hash, cfg.Miner)

	return nil
}

// restore rebuilds the in-memory structures from a loaded snapshot. The
// replayed pending intents are signed again through the vault so every
// pooled transaction carries a valid signature after a restart.
func (s *State) restore(cfg Config, snapshot disk.Snapshot) error {
	s.subsidy = snapshot.Metadata.Subsidy
	s.chain = chain.New(cfg.Sealer, snapshot.Metadata.DifficultyBits)

	for _, record := range snapshot.Accounts {
		account, err := vault.ToAccount(record)
		if err != nil {
			return fmt.Errorf("account %q: %w", record.Name, err)
		}
		if err := s.vault.Install(account); err != nil {
			return err
		}
	}

	blocks := make([]chain.Block, 0, len(snapshot.Blocks))
	for _, blockData := range snapshot.Blocks {
		blocks = append(blocks, chain.ToBlock(blockData))
	}
	if err := s.chain.Reload(blocks); err != nil {
		return err
	}

	for _, intent := range snapshot.Pending {
		sig, err := s.vault.Sign(intent.Source, intent.Payload())
		if err != nil {
			return fmt.Errorf("replaying transfer from %q: %w", intent.Source, err)
		}
		s.pool.Append(pool.NewPendingTx(intent, sig))
	}

	s.evHandler("state: restore: height[%d] accounts[%d] pending[%d]",
		snapshot.Metadata.Height, len(snapshot.Accounts), len(snapshot.Pending))

	return nil
}

// =============================================================================

// CreateAccount generates a keypair and address for the specified name
// and durably records the new account.
func (s *State) CreateAccount(name string) (vault.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.vault.Create(name)
	if err != nil {
		return vault.Account{}, err
	}

	if err := s.disk.AppendAccount(vault.NewRecord(account)); err != nil {
		return vault.Account{}, err
	}

	s.evHandler("state: create account: name[%s] address[%s]", account.Name, account.Address)

	return account, nil
}

// SubmitTransfer validates, signs and queues a transfer for the next
// settlement and rewrites the pending recovery log.
func (s *State) SubmitTransfer(source string, dest string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Add(source, dest, amount)
	if err != nil {
		return err
	}

	if err := s.disk.WritePending(s.pool.Intents()); err != nil {
		return err
	}

	s.evHandler("state: submit transfer: %s", tx.Payload())

	return nil
}

// PendingCount returns the number of transfers waiting for settlement.
func (s *State) PendingCount() int {
	return s.pool.Count()
}

// Accounts returns a copy of the current account set.
func (s *State) Accounts() []vault.Account {
	return s.vault.CopyAccounts()
}

// Balance returns the current balance for the specified account.
func (s *State) Balance(name string) (uint64, error) {
	return s.vault.Balance(name)
}

// VerifyAddress recomputes the address derivation for the named account
// and reports whether the stored address matches.
func (s *State) VerifyAddress(name string) (bool, error) {
	account, err := s.vault.Account(name)
	if err != nil {
		return false, err
	}

	return vault.VerifyAddress(account), nil
}

// Tip returns the latest block in the chain.
func (s *State) Tip() (chain.Block, error) {
	return s.chain.Tip()
}

// Blocks returns a copy of the block sequence in chain order.
func (s *State) Blocks() []chain.Block {
	return s.chain.Blocks()
}

// ValidateChain walks the chain checking the linkage of every block.
func (s *State) ValidateChain() error {
	return s.chain.Validate()
}

// Metadata returns the current durable metadata view.
func (s *State) Metadata() disk.Metadata {
	return s.disk.Metadata()
}

// PersistAll rewrites every durable structure that is not already
// append-only on disk: the account set, the pending log and the
// metadata record.
func (s *State) PersistAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.disk.RewriteAccounts(s.vault.Records()); err != nil {
		return err
	}
	if err := s.disk.WritePending(s.pool.Intents()); err != nil {
		return err
	}

	return s.disk.SyncMetadata(s.chain.Height())
}

// =============================================================================

// coinbase builds and signs the reward transaction crediting the miner.
func (s *State) coinbase(miner string) (string, error) {
	payload := fmt.Sprintf("reward: %d -- to: %s", s.subsidy, miner)

	sig, err := s.vault.Sign(miner, payload)
	if err != nil {
		return "", fmt.Errorf("signing coinbase: %w", err)
	}

	return payload + "|" + signature.EncodeSignature(sig), nil
}
