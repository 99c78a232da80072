// Package signature provides helper functions for handling the ledger
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the payload text. The
// signature is returned in the 65 byte [R|S|V] format.
func Sign(payload string, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(stamp(payload), privateKey)
	if err != nil {
		return nil, err
	}

	// Check the signature verifies against the signing key before
	// handing it out. Signing fails closed.
	if err := Verify(payload, &privateKey.PublicKey, sig); err != nil {
		return nil, err
	}

	return sig, nil
}

// Verify checks the payload text was signed by the owner of the
// specified public key.
func Verify(payload string, publicKey *ecdsa.PublicKey, sig []byte) error {
	if len(sig) < crypto.RecoveryIDOffset {
		return errors.New("signature has the wrong length")
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), stamp(payload), rs) {
		return errors.New("invalid signature")
	}

	return nil
}

// EncodeSignature converts the signature bytes into the base58 text
// form used inside signed transaction strings.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

// DecodeSignature converts the base58 text form back into bytes.
func DecodeSignature(sig string) ([]byte, error) {
	data := base58.Decode(sig)
	if len(data) == 0 {
		return nil, errors.New("malformed base58 signature")
	}

	return data, nil
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents the payload with a
// ledger specific stamp embedded into the final hash. The stamp keeps
// signatures produced here from being replayed against other systems.
func stamp(payload string) []byte {
	txHash := crypto.Keccak256([]byte(payload))
	stamp := []byte("\x19Ledger Signed Message:\n32")

	return crypto.Keccak256(stamp, txHash)
}
