// Package vault maintains the set of cryptographically identified accounts
// for the ledger: keypair generation, address derivation, balances and the
// signing support every transaction depends on.
package vault

import (
	"errors"
	"sort"
	"sync"

	"github.com/ledgersim/ledger/foundation/ledger/signature"
)

// Set of error variables for account operations.
var (
	ErrDuplicateAccount = errors.New("account name already exists")
	ErrUnknownAccount   = errors.New("account not found")
	ErrSignatureInvalid = errors.New("signature invalid")
)

// Vault manages the accounts that can transact on the ledger.
type Vault struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// New constructs an empty vault ready for use.
func New() *Vault {
	return &Vault{
		accounts: make(map[string]Account),
	}
}

// Create generates a keypair for the specified name, derives the address
// and registers the account with a zero balance.
func (v *Vault) Create(name string) (Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.accounts[name]; exists {
		return Account{}, ErrDuplicateAccount
	}

	account, err := newAccount(name, 0)
	if err != nil {
		return Account{}, err
	}
	v.accounts[name] = account

	return account, nil
}

// Install places an already constructed account into the vault. This is
// used when reloading accounts from disk.
func (v *Vault) Install(account Account) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.accounts[account.Name]; exists {
		return ErrDuplicateAccount
	}
	v.accounts[account.Name] = account

	return nil
}

// Account returns the account for the specified name.
func (v *Vault) Account(name string) (Account, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	account, exists := v.accounts[name]
	if !exists {
		return Account{}, ErrUnknownAccount
	}

	return account, nil
}

// HasBalance reports whether the account exists and holds at least the
// specified amount.
func (v *Vault) HasBalance(name string, amount uint64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	account, exists := v.accounts[name]
	return exists && account.Balance >= amount
}

// Balance returns the current balance for the specified account.
func (v *Vault) Balance(name string) (uint64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	account, exists := v.accounts[name]
	if !exists {
		return 0, ErrUnknownAccount
	}

	return account.Balance, nil
}

// Credit adds the amount to the account balance. This is an unchecked
// primitive, pure in-memory arithmetic that cannot fail once the account
// is known to exist.
func (v *Vault) Credit(name string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	account, exists := v.accounts[name]
	if !exists {
		return ErrUnknownAccount
	}

	account.Balance += amount
	v.accounts[name] = account

	return nil
}

// Debit removes the amount from the account balance. Callers must have
// already validated sufficiency.
func (v *Vault) Debit(name string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	account, exists := v.accounts[name]
	if !exists {
		return ErrUnknownAccount
	}

	account.Balance -= amount
	v.accounts[name] = account

	return nil
}

// Move performs a debit of the source followed by a credit of the
// destination as one logical operation. Both accounts are checked for
// existence before the debit so the credit can never fail afterwards.
func (v *Vault) Move(source string, dest string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	src, exists := v.accounts[source]
	if !exists {
		return ErrUnknownAccount
	}
	dst, exists := v.accounts[dest]
	if !exists {
		return ErrUnknownAccount
	}

	src.Balance -= amount
	dst.Balance += amount
	v.accounts[source] = src
	v.accounts[dest] = dst

	return nil
}

// Sign produces a signature over the payload using the account's
// signing key.
func (v *Vault) Sign(name string, payload string) ([]byte, error) {
	v.mu.RLock()
	account, exists := v.accounts[name]
	v.mu.RUnlock()

	if !exists {
		return nil, ErrUnknownAccount
	}

	return signature.Sign(payload, account.PrivateKey)
}

// Verify checks the payload was signed by the named account. Verification
// fails closed: any mismatch is reported as an invalid signature.
func (v *Vault) Verify(name string, payload string, sig []byte) error {
	v.mu.RLock()
	account, exists := v.accounts[name]
	v.mu.RUnlock()

	if !exists {
		return ErrUnknownAccount
	}

	if err := signature.Verify(payload, account.PublicKey(), sig); err != nil {
		return ErrSignatureInvalid
	}

	return nil
}

// CopyAccounts returns a copy of the account set sorted by name.
func (v *Vault) CopyAccounts() []Account {
	v.mu.RLock()
	defer v.mu.RUnlock()

	accounts := make([]Account, 0, len(v.accounts))
	for _, account := range v.accounts {
		accounts = append(accounts, account)
	}
	sort.Sort(byName(accounts))

	return accounts
}

// CopyBalances returns a snapshot of the balances keyed by account name.
// Settlement validates pending transfers against a snapshot like this so
// the checks see one consistent view.
func (v *Vault) CopyBalances() map[string]uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	balances := make(map[string]uint64, len(v.accounts))
	for name, account := range v.accounts {
		balances[name] = account.Balance
	}

	return balances
}

// Records converts the account set into the persisted record form,
// sorted by name.
func (v *Vault) Records() []Record {
	accounts := v.CopyAccounts()

	records := make([]Record, 0, len(accounts))
	for _, account := range accounts {
		records = append(records, NewRecord(account))
	}

	return records
}
