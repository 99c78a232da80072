// Package chain maintains the ordered, append-only sequence of blocks and
// the rules that link them together.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ledgersim/ledger/foundation/ledger/signature"
)

// Set of error variables for chain operations.
var (
	ErrEmptyChain    = errors.New("chain has no blocks")
	ErrGenesisExists = errors.New("genesis block already exists")
)

// SealInput carries everything the sealing collaborator needs to produce
// a valid hash/nonce pair for a candidate block.
type SealInput struct {
	Height         uint64 `json:"height"`
	TimeStamp      uint64 `json:"timestamp"`
	DifficultyBits uint   `json:"difficulty_bits"`
	PrevBlockHash  string `json:"prev_block_hash"`
	TransRoot      string `json:"trans_root"`
}

// Sealer interface represents the behavior required to be implemented by
// any package providing proof-of-work support. The chain treats the
// returned hash as a black box that meets the difficulty target.
type Sealer interface {
	Seal(ctx context.Context, input SealInput) (hash string, nonce uint64, err error)
}

// =============================================================================

// Store manages the in-memory sequence of blocks and builds new blocks
// through the sealing collaborator.
type Store struct {
	mu     sync.RWMutex
	bits   uint
	sealer Sealer
	blocks []Block
}

// New constructs a chain store sealing at the specified difficulty.
func New(sealer Sealer, difficultyBits uint) *Store {
	return &Store{
		bits:   difficultyBits,
		sealer: sealer,
	}
}

// Genesis builds and appends the chain's unique terminal ancestor from a
// coinbase-only transaction list. The previous hash is the all-zero
// placeholder.
func (s *Store) Genesis(ctx context.Context, coinbase string) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocks) > 0 {
		return Block{}, ErrGenesisExists
	}

	block, err := s.seal(ctx, 0, signature.ZeroHash, []string{coinbase})
	if err != nil {
		return Block{}, err
	}
	s.blocks = append(s.blocks, block)

	return block, nil
}

// Append seals a new block from the specified transactions on top of the
// current tip and appends it to the chain.
func (s *Store) Append(ctx context.Context, trans []string) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocks) == 0 {
		return Block{}, ErrEmptyChain
	}
	tip := s.blocks[len(s.blocks)-1]

	block, err := s.seal(ctx, tip.Header.Height+1, tip.Hash, trans)
	if err != nil {
		return Block{}, err
	}
	s.blocks = append(s.blocks, block)

	return block, nil
}

// seal assembles a candidate block and asks the collaborator for a
// hash/nonce pair that satisfies the difficulty target.
func (s *Store) seal(ctx context.Context, height uint64, prevHash string, trans []string) (Block, error) {
	transRoot, err := MerkleRoot(trans)
	if err != nil {
		return Block{}, fmt.Errorf("computing transaction root: %w", err)
	}

	header := BlockHeader{
		Height:         height,
		TimeStamp:      uint64(time.Now().UTC().Unix()),
		DifficultyBits: s.bits,
		PrevBlockHash:  prevHash,
		TransRoot:      transRoot,
	}

	hash, nonce, err := s.sealer.Seal(ctx, SealInput{
		Height:         header.Height,
		TimeStamp:      header.TimeStamp,
		DifficultyBits: header.DifficultyBits,
		PrevBlockHash:  header.PrevBlockHash,
		TransRoot:      header.TransRoot,
	})
	if err != nil {
		return Block{}, fmt.Errorf("sealing block %d: %w", height, err)
	}
	header.Nonce = nonce

	block := Block{
		Header: header,
		Hash:   hash,
		Trans:  trans,
	}

	return block, nil
}

// RemoveTip removes the latest block from the chain. This unwinds an
// append whose durable write failed, keeping the in-memory chain in
// step with the store.
func (s *Store) RemoveTip() (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocks) == 0 {
		return Block{}, ErrEmptyChain
	}

	tip := s.blocks[len(s.blocks)-1]
	s.blocks = s.blocks[:len(s.blocks)-1]

	return tip, nil
}

// Tip returns the latest block in the chain.
func (s *Store) Tip() (Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 {
		return Block{}, ErrEmptyChain
	}

	return s.blocks[len(s.blocks)-1], nil
}

// Height returns the number of blocks in the chain.
func (s *Store) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.blocks))
}

// Blocks returns a copy of the block sequence in chain order.
func (s *Store) Blocks() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]Block, len(s.blocks))
	copy(blocks, s.blocks)

	return blocks
}

// Reload replaces the in-memory chain with blocks recovered from disk
// after validating their linkage.
func (s *Store) Reload(blocks []Block) error {
	if err := validateLinkage(blocks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = blocks

	return nil
}

// Validate walks the chain checking the height sequence and that each
// block's previous hash matches the hash of the block before it.
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return validateLinkage(s.blocks)
}

// SameContent reports whether two blocks commit to the same transaction
// set by recomputing and comparing their merkle roots. This is a content
// equality check only; it says nothing about chain order.
func SameContent(a Block, b Block) (bool, error) {
	rootA, err := MerkleRoot(a.Trans)
	if err != nil {
		return false, err
	}
	rootB, err := MerkleRoot(b.Trans)
	if err != nil {
		return false, err
	}

	return rootA == rootB, nil
}

// =============================================================================

// validateLinkage checks height ordering, prev-hash linkage and the
// transaction root of every block in the sequence.
func validateLinkage(blocks []Block) error {
	for i, block := range blocks {
		if block.Header.Height != uint64(i) {
			return fmt.Errorf("block %d carries height %d", i, block.Header.Height)
		}

		if i == 0 {
			if block.Header.PrevBlockHash != signature.ZeroHash {
				return errors.New("genesis block previous hash is not zero")
			}
		} else if block.Header.PrevBlockHash != blocks[i-1].Hash {
			return fmt.Errorf("block %d previous hash does not match block %d hash", i, i-1)
		}

		transRoot, err := MerkleRoot(block.Trans)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if transRoot != block.Header.TransRoot {
			return fmt.Errorf("block %d transaction root does not match its transactions", i)
		}
	}

	return nil
}
