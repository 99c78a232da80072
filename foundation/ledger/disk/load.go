package disk

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ledgersim/ledger/foundation/ledger/chain"
	"github.com/ledgersim/ledger/foundation/ledger/pool"
	"github.com/ledgersim/ledger/foundation/ledger/vault"
)

// Load reconstructs the durable state of the ledger from disk. The
// metadata height is authoritative: exactly height-1 segment lines are
// trusted, and a single trailing overhang line (a block written in the
// crash window before its metadata update) is discarded. The pending
// log is replayed and then truncated; it only needs to survive until
// its transfers are back in memory.
func (s *Store) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, err := s.readMetadata()
	if err != nil {
		return Snapshot{}, err
	}

	accounts, err := s.readAccounts()
	if err != nil {
		return Snapshot{}, err
	}

	pending, err := s.readPending()
	if err != nil {
		return Snapshot{}, err
	}

	genesis, err := s.readGenesis()
	if err != nil {
		return Snapshot{}, err
	}

	blocks, err := s.readSegments(md)
	if err != nil {
		return Snapshot{}, err
	}

	// Replay succeeded. Truncate the recovery log.
	if err := writeLines(s.path(transactionsFile), nil); err != nil {
		return Snapshot{}, err
	}

	s.bits = md.DifficultyBits
	s.subsidy = md.Subsidy
	s.height = md.Height
	s.count = md.SegmentRecordCount
	s.index = md.CurrentSegmentIndex

	snapshot := Snapshot{
		Metadata: md,
		Accounts: accounts,
		Pending:  pending,
		Blocks:   append([]chain.BlockData{genesis}, blocks...),
	}

	return snapshot, nil
}

// readMetadata recovers the store counters. A missing metadata file means
// the store was never initialized, which is not a corruption.
func (s *Store) readMetadata() (Metadata, error) {
	data, err := os.ReadFile(s.path(metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, ErrUninitialized
		}
		return Metadata{}, fmt.Errorf("reading metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("%w: metadata: %s", ErrCorruptStore, err)
	}

	if md.Height == 0 {
		return Metadata{}, fmt.Errorf("%w: metadata height is zero", ErrCorruptStore)
	}

	return md, nil
}

// readAccounts loads every account record from the address file.
func (s *Store) readAccounts() ([]vault.Record, error) {
	lines, err := readLines(s.path(addressFile))
	if err != nil {
		return nil, fmt.Errorf("%w: address: %s", ErrCorruptStore, err)
	}

	var records []vault.Record
	for i, line := range lines {
		var record vault.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("%w: address record %d: %s", ErrCorruptStore, i, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// readPending loads the pending-transfer recovery log.
func (s *Store) readPending() ([]pool.Transfer, error) {
	lines, err := readLines(s.path(transactionsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: transactions: %s", ErrCorruptStore, err)
	}

	var intents []pool.Transfer
	for i, line := range lines {
		var intent pool.Transfer
		if err := json.Unmarshal(line, &intent); err != nil {
			return nil, fmt.Errorf("%w: pending record %d: %s", ErrCorruptStore, i, err)
		}
		intents = append(intents, intent)
	}

	return intents, nil
}

// readGenesis loads the serialized genesis block.
func (s *Store) readGenesis() (chain.BlockData, error) {
	lines, err := readLines(s.path(genesisFile))
	if err != nil || len(lines) == 0 {
		return chain.BlockData{}, fmt.Errorf("%w: genesis missing", ErrCorruptStore)
	}

	var blockData chain.BlockData
	if err := json.Unmarshal(lines[0], &blockData); err != nil {
		return chain.BlockData{}, fmt.Errorf("%w: genesis: %s", ErrCorruptStore, err)
	}

	return blockData, nil
}

// readSegments loads the non-genesis blocks from the segment files in
// ascending numeric order of the index parsed from each filename. String
// ordering would misplace data-10 before data-2.
func (s *Store) readSegments(md Metadata) ([]chain.BlockData, error) {
	indexes, err := s.segmentIndexes()
	if err != nil {
		return nil, err
	}

	type segment struct {
		index int
		lines [][]byte
	}

	var segments []segment
	var total int
	for _, index := range indexes {
		lines, err := readLines(s.segmentPath(index))
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %s", ErrCorruptStore, index, err)
		}
		segments = append(segments, segment{index: index, lines: lines})
		total += len(lines)
	}

	trusted := int(md.Height) - 1
	switch {
	case total < trusted:
		return nil, fmt.Errorf("%w: have %d block records, metadata expects %d", ErrCorruptStore, total, trusted)

	case total > trusted+1:
		return nil, fmt.Errorf("%w: %d block records beyond metadata height", ErrCorruptStore, total-trusted)

	case total == trusted+1:
		// One block made it to its segment before the crash took out the
		// matching metadata update. Drop the overhang so a later append
		// cannot land behind a stale record.
		s.evHandler("disk: load: dropping untrusted overhang block record")

		last := &segments[len(segments)-1]
		last.lines = last.lines[:len(last.lines)-1]

		values := make([]any, len(last.lines))
		for i, line := range last.lines {
			values[i] = json.RawMessage(line)
		}
		if err := writeLines(s.segmentPath(last.index), values); err != nil {
			return nil, err
		}
	}

	var blocks []chain.BlockData
	for _, seg := range segments {
		for i, line := range seg.lines {
			var blockData chain.BlockData
			if err := json.Unmarshal(line, &blockData); err != nil {
				return nil, fmt.Errorf("%w: segment %d line %d: %s", ErrCorruptSegment, seg.index, i, err)
			}
			blocks = append(blocks, blockData)
		}
	}

	return blocks, nil
}

// segmentIndexes lists the segment files present in the store directory
// sorted by their parsed numeric index.
func (s *Store) segmentIndexes() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptStore, err)
	}

	var indexes []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, segmentPrefix) {
			continue
		}

		index, err := strconv.Atoi(name[len(segmentPrefix):])
		if err != nil {
			continue
		}
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	return indexes, nil
}

// readLines returns the non-empty lines of the file.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
