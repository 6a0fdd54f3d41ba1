package migrations

import (
	"strings"

	"github.com/Polkamarkets/particle-bundler-server/model"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

// LowercaseUserOpHash normalizes user operation hashes to lowercase hex.
//
// Early releases stored the hash exactly as submitted, so the same operation
// could be missed on lookup when a client checksummed the hash differently.
// Writes now lowercase at admission time; this migration rewrites records and
// hash index keys persisted before that change.
func LowercaseUserOpHash(db storage.Storage) (int, error) {
	totalUpdated := 0

	// Record bodies under uo:
	kvs, err := db.GetByPrefix([]byte("uo:"))
	if err != nil {
		return 0, err
	}

	updates := make(map[string][]byte)
	for _, kv := range kvs {
		op := &model.UserOperation{}
		if err := op.FromStorageData(kv.Value); err != nil {
			continue
		}

		lower := strings.ToLower(op.UserOpHash)
		if lower == op.UserOpHash {
			continue
		}

		op.UserOpHash = lower
		data, err := op.ToJSON()
		if err != nil {
			continue
		}
		updates[string(kv.Key)] = data
		totalUpdated++
	}

	if len(updates) > 0 {
		if err := db.BatchWrite(updates); err != nil {
			return totalUpdated, err
		}
	}

	// Hash index keys under uoh: keep the value, rewrite the key
	idxKeys, err := db.ListKeys("uoh:*")
	if err != nil {
		return totalUpdated, err
	}

	for _, key := range idxKeys {
		lower := strings.ToLower(key)
		if lower == key {
			continue
		}

		value, err := db.GetKey([]byte(key))
		if err != nil {
			continue
		}
		if err := db.Set([]byte(lower), value); err != nil {
			return totalUpdated, err
		}
		if err := db.Delete([]byte(key)); err != nil {
			return totalUpdated, err
		}
		totalUpdated++
	}

	return totalUpdated, nil
}
