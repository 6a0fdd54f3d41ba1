package model

import (
	"encoding/json"
	"math/big"
)

type OpStatus string

// Lifecycle of a user operation. An operation enters as local when the rpc
// layer accepts it, becomes pending once it is bundled into an on-chain
// transaction, and done once that transaction confirms. toBeReplace marks
// operations whose bundling transaction was dropped or superseded; they are
// swept by the periodic cleanup together with stale local records.
const (
	OpStatusLocal       OpStatus = "local"
	OpStatusPending     OpStatus = "pending"
	OpStatusDone        OpStatus = "done"
	OpStatusToBeReplace OpStatus = "toBeReplace"
)

// MaxNonceValueLen caps the decimal representation of a nonce value. The
// storage key zero-pads nonce values to this width so lexicographic order of
// slot keys equals numeric order.
const MaxNonceValueLen = 30

// UserOperation is the persisted record of a user operation in our system.
// Exactly one non-terminal record may exist per
// (ChainId, Sender, NonceKey, NonceValue) slot; replacement rewrites the
// record in place rather than inserting a new row.
type UserOperation struct {
	ChainId int64 `json:"chainId"`

	// UserOpHash is the ERC-4337 hash of the operation, unique per chain
	// for as long as the record occupies its slot
	UserOpHash string `json:"userOpHash"`

	// Sender in EIP55 form
	Sender string `json:"sender"`

	// NonceKey and NonceValue are the two halves of the raw nonce, both as
	// decimal strings. NonceValue never exceeds MaxNonceValueLen characters.
	NonceKey   string `json:"nonceKey"`
	NonceValue string `json:"nonceValue"`

	EntryPoint string `json:"entryPoint"`

	// Origin is the submitted operation payload exactly as it arrived. We
	// never interpret it; its schema belongs to the rpc layer.
	Origin json.RawMessage `json:"origin,omitempty"`

	Status OpStatus `json:"status"`

	// TxHash of the bundling transaction, set when the op goes pending
	TxHash string `json:"txHash,omitempty"`

	// Block coordinates, set only when the op is done
	BlockNumber int64  `json:"blockNumber,omitempty"`
	BlockHash   string `json:"blockHash,omitempty"`

	// CreatedAt in epoch milliseconds, refreshed whenever the record is
	// reset by a replacement
	CreatedAt int64 `json:"createdAt"`
}

// NonceValueBig parses the stored decimal nonce value.
func (op *UserOperation) NonceValueBig() *big.Int {
	v, ok := new(big.Int).SetString(op.NonceValue, 10)
	if !ok {
		return nil
	}
	return v
}

// Terminal reports whether the record has left the submission pipeline. Only
// done records may be superseded by a new operation on the same slot.
func (op *UserOperation) Terminal() bool {
	return op.Status == OpStatusDone
}

// Return a compact json ready to persist to storage
func (op *UserOperation) ToJSON() ([]byte, error) {
	return json.Marshal(op)
}

func (op *UserOperation) FromStorageData(data []byte) error {
	return json.Unmarshal(data, op)
}
