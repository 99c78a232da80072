package chain

import (
	"crypto/sha256"

	"github.com/ledgersim/ledger/foundation/ledger/merkle"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Height         uint64 `json:"height"`          // Block number in the chain, genesis is 0.
	TimeStamp      uint64 `json:"timestamp"`       // Time the block was sealed.
	DifficultyBits uint   `json:"difficulty_bits"` // Leading zero bits required of the hash solution.
	Nonce          uint64 `json:"nonce"`           // Value identified by the sealer to solve the hash.
	PrevBlockHash  string `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TransRoot      string `json:"trans_root"`      // Merkle tree root hash for the transactions in this block.
}

// Block represents a group of signed transactions sealed together. The
// transaction entries are opaque signed strings; the chain only commits
// to them through the merkle root.
type Block struct {
	Header BlockHeader
	Hash   string
	Trans  []string
}

// =============================================================================

// TxData adapts a signed transaction string for use in the merkle tree.
type TxData string

// Hash implements the merkle Hashable interface for providing a hash of
// a transaction string.
func (t TxData) Hash() ([]byte, error) {
	sum := sha256.Sum256([]byte(t))
	return sum[:], nil
}

// Equals implements the merkle Hashable interface for providing an
// equality check between two transaction strings.
func (t TxData) Equals(other TxData) bool {
	return t == other
}

// MerkleRoot computes the merkle tree root hash committing to the
// specified ordered set of transactions.
func MerkleRoot(trans []string) (string, error) {
	values := make([]TxData, 0, len(trans))
	for _, tx := range trans {
		values = append(values, TxData(tx))
	}

	tree, err := merkle.NewTree(values)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// =============================================================================

// BlockData is the stable serialized form of a block. Every field the
// core depends on survives a serialize/deserialize round trip.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []string    `json:"trans"`
}

// NewBlockData constructs the value to serialize to disk.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash,
		Header: block.Header,
		Trans:  block.Trans,
	}
}

// ToBlock converts a BlockData back into a Block.
func ToBlock(blockData BlockData) Block {
	return Block{
		Header: blockData.Header,
		Hash:   blockData.Hash,
		Trans:  blockData.Trans,
	}
}
