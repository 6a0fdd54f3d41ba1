package userop

import "errors"

const (
	InvalidNonceError            = "nonce value exceeds the supported length"
	OperationNotReplaceableError = "operation for this nonce slot is already in flight"
	ReplacementTooSoonError      = "settled operation is too recent to replace"
	StorageUnavailableError      = "storage is not ready"
)

// Rejections happen before any write, so callers never need to undo partial
// state after receiving one of these.
var (
	ErrInvalidNonce            = errors.New(InvalidNonceError)
	ErrOperationNotReplaceable = errors.New(OperationNotReplaceableError)
	ErrReplacementTooSoon      = errors.New(ReplacementTooSoonError)
)
