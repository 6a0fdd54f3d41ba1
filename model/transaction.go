package model

import "encoding/json"

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// Transaction tracks the status of a bundling transaction. The lifecycle core
// only ever reads it; the submission pipeline owns the writes.
type Transaction struct {
	ChainId int64    `json:"chainId"`
	TxHash  string   `json:"txHash"`
	Status  TxStatus `json:"status"`

	CreatedAt int64 `json:"createdAt"`
}

func (t *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

func (t *Transaction) FromStorageData(data []byte) error {
	return json.Unmarshal(data, t)
}
