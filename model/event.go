package model

import "encoding/json"

// UserOperationEvent is the decoded on-chain log proving settlement of one
// user operation. There is at most one event per (ChainId, UserOperationHash)
// and it is written exactly once; redelivery of the same log returns the
// stored record.
type UserOperationEvent struct {
	ChainId           int64  `json:"chainId"`
	UserOperationHash string `json:"userOperationHash"`

	TxHash          string `json:"txHash"`
	ContractAddress string `json:"contractAddress"`

	// Topic discriminates the event signature
	Topic string `json:"topic"`

	// Args is the decoded event payload, opaque to the lifecycle core
	Args json.RawMessage `json:"args,omitempty"`

	CreatedAt int64 `json:"createdAt"`
}

func (e *UserOperationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func (e *UserOperationEvent) FromStorageData(data []byte) error {
	return json.Unmarshal(data, e)
}
