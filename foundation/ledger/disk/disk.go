// Package disk implements the persistence layer for the ledger: a
// directory of flat files holding the metadata record, the account set,
// the genesis block, the pending-transfer recovery log and the segmented
// block files.
package disk

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ledgersim/ledger/foundation/ledger/chain"
	"github.com/ledgersim/ledger/foundation/ledger/pool"
	"github.com/ledgersim/ledger/foundation/ledger/vault"
)

// Reserved file names inside the store directory. Everything else that
// matches the segment prefix is a block segment.
const (
	metadataFile     = "metadata"
	addressFile      = "address"
	genesisFile      = "genesis"
	transactionsFile = "transactions"
	segmentPrefix    = "data-"
)

// DefaultThreshold is the number of block records a segment file holds
// before writes rotate to the next segment.
const DefaultThreshold = 100

// Set of error variables for load failures.
var (
	ErrUninitialized  = errors.New("store is not initialized")
	ErrCorruptStore   = errors.New("store corrupt or missing required file")
	ErrCorruptSegment = errors.New("segment contains an unreadable block record")
)

// Metadata is the single JSON record describing the durable state of the
// store. It is rewritten synchronously after every block write so it
// always reflects the last durably-written block.
type Metadata struct {
	DifficultyBits      uint   `json:"difficultyBits"`
	Subsidy             uint64 `json:"subsidy"`
	Height              uint64 `json:"height"`
	SegmentRecordCount  int    `json:"segmentRecordCount"`
	CurrentSegmentIndex int    `json:"currentSegmentIndex"`
}

// Snapshot carries everything reconstructed from disk by Load.
type Snapshot struct {
	Metadata Metadata
	Accounts []vault.Record
	Pending  []pool.Transfer
	Blocks   []chain.BlockData
}

// =============================================================================

// Store manages the flat-file representation of the ledger. The record
// count, segment index and threshold are explicit fields of the store,
// and every operation acquires its file handle for the duration of the
// call only.
type Store struct {
	mu        sync.Mutex
	root      string
	threshold int
	evHandler func(v string, args ...any)

	bits    uint
	subsidy uint64
	height  uint64
	count   int
	index   int
}

// New constructs a store rooted at the specified directory. The directory
// is created if it does not exist yet.
func New(root string, threshold int, evHandler func(v string, args ...any)) (*Store, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	s := Store{
		root:      root,
		threshold: threshold,
		evHandler: ev,
	}

	return &s, nil
}

// Init prepares an empty store: an empty account file, an empty pending
// log and the initial metadata record.
func (s *Store) Init(difficultyBits uint, subsidy uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bits = difficultyBits
	s.subsidy = subsidy
	s.height = 0
	s.count = 0
	s.index = 0

	if err := writeLines(s.path(addressFile), nil); err != nil {
		return err
	}
	if err := writeLines(s.path(transactionsFile), nil); err != nil {
		return err
	}

	return s.writeMetadata()
}

// Metadata returns the current metadata view of the store.
func (s *Store) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.metadata()
}

func (s *Store) metadata() Metadata {
	return Metadata{
		DifficultyBits:      s.bits,
		Subsidy:             s.subsidy,
		Height:              s.height,
		SegmentRecordCount:  s.count,
		CurrentSegmentIndex: s.index,
	}
}

// =============================================================================

// WriteGenesis durably records the genesis block. The genesis lives in
// its own file, not in a segment, and is written once.
func (s *Store) WriteGenesis(blockData chain.BlockData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	if err := writeFileSync(s.path(genesisFile), append(data, '\n')); err != nil {
		return err
	}

	s.height = 1
	return s.writeMetadata()
}

// AppendBlock serializes the block as one line of the currently open
// segment, rotating to a new segment file each time the record count
// crosses a multiple of the threshold, then rewrites the metadata so it
// reflects the new chain height.
func (s *Store) AppendBlock(height uint64, blockData chain.BlockData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	s.index = s.count / s.threshold

	f, err := os.OpenFile(s.segmentPath(s.index), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening segment %d: %w", s.index, err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("writing block to segment %d: %w", s.index, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.count++
	s.height = height

	return s.writeMetadata()
}

// AppendAccount adds one account record to the end of the address file.
func (s *Store) AppendAccount(record vault.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path(addressFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening address file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing account record: %w", err)
	}

	return f.Sync()
}

// RewriteAccounts truncates and rewrites the address file with the full
// account set.
func (s *Store) RewriteAccounts(records []vault.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]any, len(records))
	for i, record := range records {
		values[i] = record
	}

	return writeLines(s.path(addressFile), values)
}

// WritePending rewrites the pending-transfer recovery log with the
// current pool intents. An empty set truncates the file.
func (s *Store) WritePending(intents []pool.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]any, len(intents))
	for i, intent := range intents {
		values[i] = intent
	}

	return writeLines(s.path(transactionsFile), values)
}

// SyncMetadata rewrites the metadata record for the specified chain
// height. Used by full persistence passes outside of block writes.
func (s *Store) SyncMetadata(height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.height = height
	return s.writeMetadata()
}

// =============================================================================

// writeMetadata rewrites the metadata file from the store counters. The
// caller must hold the mutex.
func (s *Store) writeMetadata() error {
	data, err := json.Marshal(s.metadata())
	if err != nil {
		return err
	}

	return writeFileSync(s.path(metadataFile), append(data, '\n'))
}

// path forms the full path for one of the reserved files.
func (s *Store) path(name string) string {
	return filepath.Join(s.root, name)
}

// segmentPath forms the full path for the segment with the given index.
func (s *Store) segmentPath(index int) string {
	return filepath.Join(s.root, fmt.Sprintf("%s%d", segmentPrefix, index))
}

// writeLines truncates the file and writes one JSON document per line.
func writeLines(path string, values []any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}

	w := bufio.NewWriter(f)
	for _, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// writeFileSync writes the data to the file and forces it to stable
// storage before returning.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
