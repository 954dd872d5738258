package records

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

var hintDomain = []byte("record-key-hint")

// ViewKey is the decryption capability for records encrypted to one key.
// The zero value is not usable; construct with NewViewKey.
type ViewKey struct {
	id   string
	hint [HintSize]byte
	aead cipher.AEAD
}

// NewViewKey wraps raw 32-byte key material under the given key identifier.
func NewViewKey(id string, material []byte) (*ViewKey, error) {
	if len(material) != KeySize {
		return nil, fmt.Errorf("invalid view key material length: %d", len(material))
	}

	aead, err := chacha20poly1305.NewX(material)
	if err != nil {
		return nil, err
	}

	hintFull := blake2b.Sum256(append(append([]byte{}, material...), hintDomain...))

	vk := &ViewKey{
		id:   id,
		aead: aead,
	}
	copy(vk.hint[:], hintFull[:HintSize])

	return vk, nil
}

func (vk *ViewKey) ID() string {
	return vk.id
}

// TryDecrypt attempts to open a record ciphertext. ErrNotOwned is returned
// for well-formed records encrypted to a different key; ErrMalformedRecord
// for envelopes that no key could ever open.
func (vk *ViewKey) TryDecrypt(ciphertext []byte) (Payload, error) {
	var payload Payload

	if len(ciphertext) < envelopeMinSize || ciphertext[0] != envelopeVersion {
		return payload, ErrMalformedRecord
	}

	hint := ciphertext[1 : 1+HintSize]
	if !bytes.Equal(hint, vk.hint[:]) {
		return payload, ErrNotOwned
	}

	nonce := ciphertext[1+HintSize : 1+HintSize+chacha20poly1305.NonceSizeX]
	sealed := ciphertext[1+HintSize+chacha20poly1305.NonceSizeX:]

	plaintext, err := vk.aead.Open(nil, nonce, sealed, hint)
	if err != nil {
		// hint collision with a foreign key, the normal silent case
		return payload, ErrNotOwned
	}

	if err := cbor.Unmarshal(plaintext, &payload); err != nil {
		return payload, fmt.Errorf("%w: payload decode: %w", ErrMalformedRecord, err)
	}

	return payload, nil
}

// Seal encrypts a payload to this key and returns the resulting record.
func (vk *ViewKey) Seal(payload Payload) (Record, error) {
	plaintext, err := cbor.Marshal(payload)
	if err != nil {
		return Record{}, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return Record{}, err
	}

	ciphertext := make([]byte, 0, envelopeMinSize+len(plaintext))
	ciphertext = append(ciphertext, envelopeVersion)
	ciphertext = append(ciphertext, vk.hint[:]...)
	ciphertext = append(ciphertext, nonce...)
	ciphertext = vk.aead.Seal(ciphertext, nonce, plaintext, vk.hint[:])

	return Record{
		Commitment: ComputeCommitment(ciphertext),
		Ciphertext: ciphertext,
	}, nil
}
