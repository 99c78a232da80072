// Package pool maintains the pending pool of signed but uncommitted
// transfers waiting to be settled into the next block.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ledgersim/ledger/foundation/ledger/signature"
)

// Set of error variables for adding transfers to the pool.
var (
	ErrInvalidAmount       = errors.New("transfer amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrUnknownAccount      = errors.New("account not found for transfer")
)

// Accounts represents the behavior the pool needs from the account vault
// to enforce the signing protocol.
type Accounts interface {
	HasBalance(name string, amount uint64) bool
	Sign(name string, payload string) ([]byte, error)
}

// =============================================================================

// Transfer is the balance intent carried by a pending transaction.
type Transfer struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
	Amount uint64 `json:"amount"`
}

// Payload returns the canonical text encoding of the transfer that is
// signed at creation time. This encoding is part of the durable data
// format and must stay stable.
func (t Transfer) Payload() string {
	return fmt.Sprintf("from: %s -- to: %s -- amount: %d", t.Source, t.Dest, t.Amount)
}

// PendingTx is a single pool record carrying both the signed payload and
// the transfer intent. One record type replaces the pair of positionally
// coupled sequences the design started with, so the two views can never
// drift apart.
type PendingTx struct {
	Transfer
	SignData string
}

// NewPendingTx binds a transfer and its signature into a pool record.
// The signed transaction string is the canonical payload and the base58
// signature joined by a pipe.
func NewPendingTx(transfer Transfer, sig []byte) PendingTx {
	return PendingTx{
		Transfer: transfer,
		SignData: transfer.Payload() + "|" + signature.EncodeSignature(sig),
	}
}

// =============================================================================

// Pool holds the ordered set of pending transactions.
type Pool struct {
	mu       sync.RWMutex
	accounts Accounts
	pending  []PendingTx
}

// New constructs a pool that signs and checks transfers through the
// specified accounts implementation.
func New(accounts Accounts) *Pool {
	return &Pool{
		accounts: accounts,
	}
}

// Add validates, signs and appends a transfer to the pool. Both accounts
// must exist, and the sufficiency check covers the transfers already
// pending from the same source, so a source cannot queue more than its
// balance within one settlement cycle. The pool is left unmodified on
// any failure.
func (p *Pool) Add(source string, dest string, amount uint64) (PendingTx, error) {
	if amount == 0 {
		return PendingTx{}, ErrInvalidAmount
	}

	// A zero amount check against the destination is pure existence.
	if !p.accounts.HasBalance(dest, 0) {
		return PendingTx{}, fmt.Errorf("%w: destination %s", ErrUnknownAccount, dest)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	outstanding := amount
	for _, tx := range p.pending {
		if tx.Source != source {
			continue
		}

		total := outstanding + tx.Amount
		if total < outstanding {
			return PendingTx{}, fmt.Errorf("%w: pending transfers from %s overflow", ErrInsufficientBalance, source)
		}
		outstanding = total
	}

	if !p.accounts.HasBalance(source, outstanding) {
		return PendingTx{}, fmt.Errorf("%w: account %s needs %d including pending transfers", ErrInsufficientBalance, source, outstanding)
	}

	transfer := Transfer{Source: source, Dest: dest, Amount: amount}
	sig, err := p.accounts.Sign(source, transfer.Payload())
	if err != nil {
		return PendingTx{}, fmt.Errorf("signing transfer: %w", err)
	}

	tx := NewPendingTx(transfer, sig)
	p.pending = append(p.pending, tx)

	return tx, nil
}

// Append places an already signed pending transaction back into the pool.
// This is used when replaying the crash-recovery log at startup.
func (p *Pool) Append(tx PendingTx) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, tx)
}

// Count returns the current number of pending transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.pending)
}

// Copy returns the pending transactions in insertion order.
func (p *Pool) Copy() []PendingTx {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pending := make([]PendingTx, len(p.pending))
	copy(pending, p.pending)

	return pending
}

// Intents returns just the transfer intents in insertion order. This is
// the view the persistence layer writes to the transactions file.
func (p *Pool) Intents() []Transfer {
	p.mu.RLock()
	defer p.mu.RUnlock()

	intents := make([]Transfer, 0, len(p.pending))
	for _, tx := range p.pending {
		intents = append(intents, tx.Transfer)
	}

	return intents
}

// SignData returns the signed transaction strings in insertion order,
// ready for inclusion in a block.
func (p *Pool) SignData() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	data := make([]string, 0, len(p.pending))
	for _, tx := range p.pending {
		data = append(data, tx.SignData)
	}

	return data
}

// Truncate clears the pool after a successful settlement.
func (p *Pool) Truncate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = nil
}
