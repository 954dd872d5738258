// Package records implements the encrypted ledger output format consumed by
// the indexing engine: an opaque ciphertext envelope decryptable only under
// the matching view key, identified publicly by a commitment.
package records

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	CommitmentSize = 32
	KeySize        = chacha20poly1305.KeySize
	HintSize       = 8

	envelopeVersion = 0x01
	// version byte + key hint + nonce + aead tag
	envelopeMinSize = 1 + HintSize + chacha20poly1305.NonceSizeX + 16
)

var (
	// ErrNotOwned is the normal outcome of trying to decrypt a record that
	// belongs to somebody else's key. Callers must not treat it as a failure.
	ErrNotOwned = errors.New("record is not owned by this key")
	// ErrMalformedRecord marks a structurally broken record envelope.
	ErrMalformedRecord = errors.New("malformed record")
)

// Commitment is the public, ledger-unique identifier of a record.
type Commitment [CommitmentSize]byte

func NewCommitmentFromHexString(hash string) (c Commitment, err error) {
	v, err := hex.DecodeString(hash)
	if err != nil {
		return c, err
	}

	if len(v) != CommitmentSize {
		return c, fmt.Errorf("invalid commitment length: %d", len(v))
	}

	copy(c[:], v)

	return c, nil
}

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Commitment) UnmarshalText(data []byte) error {
	v, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}

	if len(v) != CommitmentSize {
		return fmt.Errorf("invalid commitment length: %d", len(v))
	}

	copy(c[:], v)

	return nil
}

// Payload is the plaintext carried by a record.
type Payload struct {
	Amount uint64 `cbor:"1,keyasint" json:"amount"`
	Asset  string `cbor:"2,keyasint" json:"asset"`
	Memo   string `cbor:"3,keyasint,omitempty" json:"memo,omitempty"`
}

// Record is an encrypted ledger output: opaque ciphertext plus its commitment.
type Record struct {
	Commitment Commitment `json:"commitment"`
	Ciphertext []byte     `json:"ciphertext"`
}

// ComputeCommitment derives the public commitment of a record ciphertext.
func ComputeCommitment(ciphertext []byte) Commitment {
	return blake2b.Sum256(ciphertext)
}
