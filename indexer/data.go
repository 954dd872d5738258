package indexer

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/veilbridge/ledger-infrastructure/records"
)

const HashSize = 32

// Hash identifies a block or a transaction.
type Hash [HashSize]byte

func NewHashFromHexString(hash string) (h Hash) {
	v, _ := hex.DecodeString(hash)
	copy(h[:], v)

	return h
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(data []byte) error {
	v, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}

	if len(v) != HashSize {
		return fmt.Errorf("invalid hash length: %d", len(v))
	}

	copy(h[:], v)

	return nil
}

// BlockHeader links a block into the chain.
// For consecutive canonical blocks b1, b2: b2.ParentHash == b1.Hash.
type BlockHeader struct {
	Height     uint64 `json:"height"`
	Hash       Hash   `json:"hash"`
	ParentHash Hash   `json:"parent"`
	Timestamp  uint64 `json:"time"`
}

func (bh BlockHeader) Key() []byte {
	return EncodeUint64ToBytes(bh.Height)
}

func (bh BlockHeader) String() string {
	return fmt.Sprintf("height = %d, hash = %s", bh.Height, bh.Hash)
}

// Tx carries the declared input commitments it consumes and the encrypted
// output records it creates.
type Tx struct {
	ID      Hash                 `json:"id"`
	Inputs  []records.Commitment `json:"inputs"`
	Outputs []records.Record     `json:"outputs"`
}

type Block struct {
	Header BlockHeader `json:"header"`
	Txs    []*Tx       `json:"txs"`
}

// BlockPoint is the sync cursor: the height/hash pair of the last block whose
// index mutations were fully committed.
type BlockPoint struct {
	BlockHeight uint64 `json:"height"`
	BlockHash   Hash   `json:"hash"`
}

func (bp BlockPoint) Equals(header BlockHeader) bool {
	return bp.BlockHeight == header.Height && bytes.Equal(bp.BlockHash[:], header.Hash[:])
}

func (bp BlockPoint) String() string {
	return fmt.Sprintf("height = %d, hash = %s", bp.BlockHeight, bp.BlockHash)
}

// OwnedRecord is the index entry for a record decrypted under one of the
// service's keys. Never physically deleted except by reorg rollback.
type OwnedRecord struct {
	Commitment   records.Commitment `json:"commitment"`
	KeyID        string             `json:"keyId"`
	Amount       uint64             `json:"amount"`
	Asset        string             `json:"asset"`
	Memo         string             `json:"memo,omitempty"`
	OriginHeight uint64             `json:"originHeight"`
	OriginTx     Hash               `json:"originTx"`
	Spent        bool               `json:"spent"`
	SpendingTx   *Hash              `json:"spendingTx,omitempty"`
	SpendHeight  uint64             `json:"spendHeight,omitempty"`
}

func (or OwnedRecord) Key() []byte {
	return or.Commitment[:]
}

func (or OwnedRecord) String() string {
	return fmt.Sprintf("commitment = %s, key = %s, amount = %d, asset = %s, spent = %v",
		or.Commitment, or.KeyID, or.Amount, or.Asset, or.Spent)
}

// SpendEvent marks the consumption of a previously indexed owned record.
type SpendEvent struct {
	Commitment  records.Commitment `json:"commitment"`
	SpendingTx  Hash               `json:"spendingTx"`
	SpendHeight uint64             `json:"spendHeight"`
}

func EncodeUint64ToBytes(value uint64) []byte {
	result := make([]byte, 8)
	binary.BigEndian.PutUint64(result, value)

	return result
}

func DecodeUint64FromBytes(data []byte) uint64 {
	return binary.BigEndian.Uint64(data)
}
