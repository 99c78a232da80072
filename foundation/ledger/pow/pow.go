// Package pow implements the proof-of-work sealing collaborator. It finds
// a nonce such that the candidate block hash falls below the difficulty
// target.
package pow

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ledgersim/ledger/foundation/ledger/chain"
	"github.com/ledgersim/ledger/foundation/ledger/signature"
)

// Sealer performs the work of finding a valid hash/nonce pair for a
// candidate block. It implements the chain.Sealer interface.
type Sealer struct {
	evHandler func(v string, args ...any)
}

// New constructs a sealer. The event handler may be nil.
func New(evHandler func(v string, args ...any)) *Sealer {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Sealer{evHandler: ev}
}

// candidate is the value hashed while searching for a solution. Embedding
// the seal input keeps the hash bound to every header field.
type candidate struct {
	chain.SealInput
	Nonce uint64 `json:"nonce"`
}

// Seal searches for a nonce that solves the difficulty puzzle for the
// specified seal input. The search honors context cancellation.
func (s *Sealer) Seal(ctx context.Context, input chain.SealInput) (string, uint64, error) {
	s.evHandler("pow: seal: MINING: started: blk[%d]", input.Height)
	defer s.evHandler("pow: seal: MINING: completed: blk[%d]", input.Height)

	// Choose a random starting point for the nonce and increment from
	// there until a solution is found.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return "", 0, err
	}

	can := candidate{
		SealInput: input,
		Nonce:     nBig.Uint64(),
	}

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			s.evHandler("pow: seal: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			s.evHandler("pow: seal: MINING: CANCELLED")
			return "", 0, ctx.Err()
		}

		hash := signature.Hash(can)
		if !isHashSolved(input.DifficultyBits, hash) {
			can.Nonce++
			continue
		}

		s.evHandler("pow: seal: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", input.PrevBlockHash, hash)
		s.evHandler("pow: seal: MINING: attempts[%d]", attempts)

		return hash, can.Nonce, nil
	}
}

// =============================================================================

// isHashSolved checks the hash complies with the difficulty rules: its
// numeric value must be below 2^(256-difficultyBits).
func isHashSolved(difficultyBits uint, hash string) bool {
	if difficultyBits > 255 {
		return false
	}

	data, err := hexutil.Decode(hash)
	if err != nil || len(data) != 32 {
		return false
	}

	target := new(big.Int).Lsh(big.NewInt(1), 256-difficultyBits)
	value := new(big.Int).SetBytes(data)

	return value.Cmp(target) < 0
}
