package vault

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// Account represents information stored in the vault for an individual
// account. The address is derived once from the verifying key at creation
// time and never changes.
type Account struct {
	Name       string
	Balance    uint64
	PrivateKey *ecdsa.PrivateKey
	Address    string
}

// newAccount constructs an account with a freshly generated keypair and
// a derived address.
func newAccount(name string, balance uint64) (Account, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return Account{}, fmt.Errorf("generating keypair: %w", err)
	}

	account := Account{
		Name:       name,
		Balance:    balance,
		PrivateKey: privateKey,
		Address:    DeriveAddress(&privateKey.PublicKey),
	}

	return account, nil
}

// PublicKey returns the verifying key for the account.
func (a Account) PublicKey() *ecdsa.PublicKey {
	return &a.PrivateKey.PublicKey
}

// =============================================================================

// DeriveAddress produces the address for the specified verifying key:
// base58(hash160(pub) ++ sha256(sha256(hash160(pub)))) where hash160 is
// RIPEMD160 over SHA256. The checksum is the full 32 byte double SHA256,
// not the truncated form used by typical address schemes. That full
// length checksum is part of the address format and must not change.
func DeriveAddress(publicKey *ecdsa.PublicKey) string {
	return deriveAddress(crypto.FromECDSAPub(publicKey))
}

func deriveAddress(publicKeyBytes []byte) string {
	sha := sha256.Sum256(publicKeyBytes)

	rip := ripemd160.New()
	rip.Write(sha[:])
	keyHash := rip.Sum(nil)

	inner := sha256.Sum256(keyHash)
	checksum := sha256.Sum256(inner[:])

	return base58.Encode(append(keyHash, checksum[:]...))
}

// VerifyAddress recomputes the address derivation for the account and
// reports whether the stored address matches.
func VerifyAddress(account Account) bool {
	return account.Address == DeriveAddress(account.PublicKey())
}

// =============================================================================

// Record is the JSON line format used to persist an account inside the
// address file.
type Record struct {
	Name         string `json:"name"`
	Balance      uint64 `json:"balance"`
	SigningKey   string `json:"signingKey"`
	VerifyingKey string `json:"verifyingKey"`
}

// NewRecord converts an account into its persisted form. Keys are the
// raw go-ethereum byte serializations in base64.
func NewRecord(account Account) Record {
	return Record{
		Name:         account.Name,
		Balance:      account.Balance,
		SigningKey:   base64.StdEncoding.EncodeToString(crypto.FromECDSA(account.PrivateKey)),
		VerifyingKey: base64.StdEncoding.EncodeToString(crypto.FromECDSAPub(account.PublicKey())),
	}
}

// ToAccount converts a persisted record back into an account. The address
// is re-derived from the stored verifying key bytes so a loaded account
// always carries the address its keys produce.
func ToAccount(record Record) (Account, error) {
	skBytes, err := base64.StdEncoding.DecodeString(record.SigningKey)
	if err != nil {
		return Account{}, fmt.Errorf("decoding signing key: %w", err)
	}

	privateKey, err := crypto.ToECDSA(skBytes)
	if err != nil {
		return Account{}, fmt.Errorf("parsing signing key: %w", err)
	}

	vkBytes, err := base64.StdEncoding.DecodeString(record.VerifyingKey)
	if err != nil {
		return Account{}, fmt.Errorf("decoding verifying key: %w", err)
	}

	if _, err := crypto.UnmarshalPubkey(vkBytes); err != nil {
		return Account{}, fmt.Errorf("parsing verifying key: %w", err)
	}

	account := Account{
		Name:       record.Name,
		Balance:    record.Balance,
		PrivateKey: privateKey,
		Address:    deriveAddress(vkBytes),
	}

	return account, nil
}

// =============================================================================

// byName provides sorting support by the account name.
type byName []Account

// Len returns the number of accounts in the list.
func (bn byName) Len() int {
	return len(bn)
}

// Less helps to sort the list by name in ascending order to keep the
// persisted account set deterministic.
func (bn byName) Less(i, j int) bool {
	return bn[i].Name < bn[j].Name
}

// Swap moves accounts in the order of the name value.
func (bn byName) Swap(i, j int) {
	bn[i], bn[j] = bn[j], bn[i]
}
