package userop

import (
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"github.com/Polkamarkets/particle-bundler-server/model"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

// Mutations bigger than this are split across transactions. A batch
// transition is therefore not all-or-nothing beyond this size; callers
// compare the affected count against what they sent.
const mutationBatchSize = 100

// OperationStore owns every UserOperation record. All writes are conditional
// and run inside a single badger transaction together with the index
// bookkeeping, so a record raced to another status by a concurrent actor is
// never double-transitioned and the uniqueness of a nonce slot never relies
// on an application-level check.
type OperationStore struct {
	db storage.Storage
}

func NewOperationStore(db storage.Storage) *OperationStore {
	return &OperationStore{db: db}
}

func decodeOp(item *badger.Item) (*model.UserOperation, error) {
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	op := &model.UserOperation{}
	if err := op.FromStorageData(data); err != nil {
		return nil, err
	}
	return op, nil
}

func writeOp(txn *badger.Txn, op *model.UserOperation) error {
	data, err := op.ToJSON()
	if err != nil {
		return err
	}
	return txn.Set(opKey(op), data)
}

func opKey(op *model.UserOperation) []byte {
	return OpStorageKey(op.ChainId, op.Sender, op.NonceKey, op.NonceValue)
}

// InsertIfAbsent writes op as a brand new record for its nonce slot. It
// returns false without touching anything when the slot is already occupied,
// which is how two concurrent admissions for one slot are reduced to one
// winner.
func (s *OperationStore) InsertIfAbsent(op *model.UserOperation) (bool, error) {
	key := opKey(op)

	inserted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		inserted = false

		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if err := writeOp(txn, op); err != nil {
			return err
		}
		if err := txn.Set(OpByHashKey(op.ChainId, op.UserOpHash), key); err != nil {
			return err
		}
		if err := txn.Set(LocalIndexKey(op.ChainId, op.EntryPoint, op.CreatedAt, op.UserOpHash), key); err != nil {
			return err
		}

		inserted = true
		return nil
	})

	return inserted, err
}

// ResetIfSettled overwrites the record occupying op's nonce slot with op,
// conditional on the existing record still being done and still carrying
// expectedHash. The slot keeps its identity; only hash, entrypoint, origin,
// status and createdAt change. Returns false when the condition no longer
// holds, meaning someone else got to the slot first.
func (s *OperationStore) ResetIfSettled(op *model.UserOperation, expectedHash string) (bool, error) {
	key := opKey(op)

	reset := false
	err := s.db.Update(func(txn *badger.Txn) error {
		reset = false

		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		existing, err := decodeOp(item)
		if err != nil {
			return err
		}
		if !existing.Terminal() || !strings.EqualFold(existing.UserOpHash, expectedHash) {
			return nil
		}

		// the superseded hash must stop resolving to this slot
		if err := txn.Delete(OpByHashKey(existing.ChainId, existing.UserOpHash)); err != nil {
			return err
		}

		if err := writeOp(txn, op); err != nil {
			return err
		}
		if err := txn.Set(OpByHashKey(op.ChainId, op.UserOpHash), key); err != nil {
			return err
		}
		if err := txn.Set(LocalIndexKey(op.ChainId, op.EntryPoint, op.CreatedAt, op.UserOpHash), key); err != nil {
			return err
		}

		reset = true
		return nil
	})

	return reset, err
}

// GetBySlot returns the record occupying a nonce slot, nil when the slot is free.
func (s *OperationStore) GetBySlot(chainId int64, sender, nonceKey, nonceValue string) (*model.UserOperation, error) {
	var op *model.UserOperation

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(OpStorageKey(chainId, sender, nonceKey, nonceValue))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		op, err = decodeOp(item)
		return err
	})

	return op, err
}

func getByHashTxn(txn *badger.Txn, chainId int64, userOpHash string) (*model.UserOperation, error) {
	item, err := txn.Get(OpByHashKey(chainId, userOpHash))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	recordKey, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	record, err := txn.Get(recordKey)
	if err == badger.ErrKeyNotFound {
		// index entry outlived its record, treat as absent
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeOp(record)
}

// GetByHash returns the record for a user operation hash, nil when unknown.
func (s *OperationStore) GetByHash(chainId int64, userOpHash string) (*model.UserOperation, error) {
	var op *model.UserOperation

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		op, err = getByHashTxn(txn, chainId, userOpHash)
		return err
	})

	return op, err
}

// GetByHashes resolves a batch of hashes; unknown hashes are skipped.
func (s *OperationStore) GetByHashes(chainId int64, userOpHashes []string) ([]*model.UserOperation, error) {
	resolved := make([]*model.UserOperation, 0, len(userOpHashes))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, hash := range userOpHashes {
			op, err := getByHashTxn(txn, chainId, hash)
			if err != nil {
				return err
			}
			resolved = append(resolved, op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return lo.Filter(resolved, func(op *model.UserOperation, _ int) bool { return op != nil }), nil
}

// ListLocalInWindow returns local records for a chain created in the
// half-open window (startAt, endAt], both in epoch milliseconds.
func (s *OperationStore) ListLocalInWindow(chainId int64, startAt, endAt int64) ([]*model.UserOperation, error) {
	var ops []*model.UserOperation
	prefix := LocalIndexChainPrefix(chainId)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			createdAt, err := localIndexCreatedAt(it.Item().Key())
			if err != nil {
				return err
			}
			if createdAt <= startAt || createdAt > endAt {
				continue
			}

			op, err := resolveIndexEntry(txn, it.Item())
			if err != nil {
				return err
			}
			if op != nil {
				ops = append(ops, op)
			}
		}
		return nil
	})

	return ops, err
}

// ListLocal returns up to limit local records across every chain, oldest
// first so batch selection preserves submission fairness.
func (s *OperationStore) ListLocal(limit int) ([]*model.UserOperation, error) {
	type entry struct {
		createdAt int64
		op        *model.UserOperation
	}
	var entries []entry

	prefix := []byte("uol:")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			createdAt, err := localIndexCreatedAt(it.Item().Key())
			if err != nil {
				return err
			}
			op, err := resolveIndexEntry(txn, it.Item())
			if err != nil {
				return err
			}
			if op != nil {
				entries = append(entries, entry{createdAt: createdAt, op: op})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt < entries[j].createdAt
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return lo.Map(entries, func(e entry, _ int) *model.UserOperation { return e.op }), nil
}

// ListLocalByEntryPoint returns up to limit local records for one
// (chain, entrypoint), oldest first. The index key embeds createdAt after the
// entrypoint so plain prefix iteration already walks in submission order.
func (s *OperationStore) ListLocalByEntryPoint(chainId int64, entryPoint string, limit int) ([]*model.UserOperation, error) {
	var ops []*model.UserOperation
	prefix := LocalIndexEntryPointPrefix(chainId, entryPoint)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(ops) >= limit {
				return nil
			}
			op, err := resolveIndexEntry(txn, it.Item())
			if err != nil {
				return err
			}
			if op != nil {
				ops = append(ops, op)
			}
		}
		return nil
	})

	return ops, err
}

func resolveIndexEntry(txn *badger.Txn, item *badger.Item) (*model.UserOperation, error) {
	recordKey, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	record, err := txn.Get(recordKey)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	op, err := decodeOp(record)
	if err != nil {
		return nil, err
	}
	// index entries are removed in the same txn as status transitions, but a
	// reader holding an older snapshot can still observe both states
	if op.Status != model.OpStatusLocal {
		return nil, nil
	}
	return op, nil
}

// HighestDone walks a nonce slot prefix from the highest value down and
// returns the first done record accepted by the caller, nil when none
// qualifies.
func (s *OperationStore) HighestDone(chainId int64, sender, nonceKey string, accept func(*model.UserOperation) bool) (*model.UserOperation, error) {
	var found *model.UserOperation
	prefix := OpSlotPrefix(chainId, sender, nonceKey)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// seek past the last possible key of the prefix, then walk down
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			op, err := decodeOp(it.Item())
			if err != nil {
				return err
			}
			if !op.Terminal() {
				continue
			}
			if accept == nil || accept(op) {
				found = op
				return nil
			}
		}
		return nil
	})

	return found, err
}

// MarkPending transitions every record in ops that is still local and still
// carries the same hash to pending, attaching txHash. Records that raced to
// another status or were replaced are left untouched; the affected count
// tells the caller whether to re-verify.
func (s *OperationStore) MarkPending(ops []*model.UserOperation, txHash string) (int, error) {
	affected := 0

	for start := 0; start < len(ops); start += mutationBatchSize {
		batch := ops[start:min(start+mutationBatchSize, len(ops))]

		// reset on conflict retry, the closure may run more than once
		batchAffected := 0
		err := s.db.Update(func(txn *badger.Txn) error {
			batchAffected = 0
			for _, candidate := range batch {
				item, err := txn.Get(opKey(candidate))
				if err == badger.ErrKeyNotFound {
					continue
				}
				if err != nil {
					return err
				}

				current, err := decodeOp(item)
				if err != nil {
					return err
				}
				if current.Status != model.OpStatusLocal ||
					!strings.EqualFold(current.UserOpHash, candidate.UserOpHash) {
					continue
				}

				current.Status = model.OpStatusPending
				current.TxHash = txHash
				if err := writeOp(txn, current); err != nil {
					return err
				}
				if err := txn.Delete(LocalIndexKey(current.ChainId, current.EntryPoint, current.CreatedAt, current.UserOpHash)); err != nil {
					return err
				}
				batchAffected++
			}
			return nil
		})
		if err != nil {
			return affected, err
		}
		affected += batchAffected
	}

	return affected, nil
}

// MarkDone transitions every (chainId, hash) record still pending to done,
// stamping the block coordinates. Zero matches is a valid outcome; duplicate
// or out-of-order confirmation delivery is silently absorbed.
func (s *OperationStore) MarkDone(chainId int64, userOpHashes []string, txHash string, blockNumber int64, blockHash string) (int, error) {
	affected := 0

	for start := 0; start < len(userOpHashes); start += mutationBatchSize {
		batch := userOpHashes[start:min(start+mutationBatchSize, len(userOpHashes))]

		batchAffected := 0
		err := s.db.Update(func(txn *badger.Txn) error {
			batchAffected = 0
			for _, hash := range batch {
				current, err := getByHashTxn(txn, chainId, hash)
				if err != nil {
					return err
				}
				if current == nil || current.Status != model.OpStatusPending {
					continue
				}

				current.Status = model.OpStatusDone
				current.TxHash = txHash
				current.BlockNumber = blockNumber
				current.BlockHash = blockHash
				if err := writeOp(txn, current); err != nil {
					return err
				}
				batchAffected++
			}
			return nil
		})
		if err != nil {
			return affected, err
		}
		affected += batchAffected
	}

	return affected, nil
}

// MarkToBeReplaced parks pending records whose bundling transaction is known
// dropped or superseded. Only records still pending under that exact txHash
// move; the cleanup job collects them later.
func (s *OperationStore) MarkToBeReplaced(chainId int64, userOpHashes []string, txHash string) (int, error) {
	affected := 0

	for start := 0; start < len(userOpHashes); start += mutationBatchSize {
		batch := userOpHashes[start:min(start+mutationBatchSize, len(userOpHashes))]

		batchAffected := 0
		err := s.db.Update(func(txn *badger.Txn) error {
			batchAffected = 0
			for _, hash := range batch {
				current, err := getByHashTxn(txn, chainId, hash)
				if err != nil {
					return err
				}
				if current == nil || current.Status != model.OpStatusPending ||
					!strings.EqualFold(current.TxHash, txHash) {
					continue
				}

				current.Status = model.OpStatusToBeReplace
				if err := writeOp(txn, current); err != nil {
					return err
				}
				batchAffected++
			}
			return nil
		})
		if err != nil {
			return affected, err
		}
		affected += batchAffected
	}

	return affected, nil
}

// DeleteAbandoned removes every local and toBeReplace record of a chain,
// together with their index entries. Pending and done records are never
// touched.
func (s *OperationStore) DeleteAbandoned(chainId int64) (int, error) {
	var keys [][]byte

	prefix := OpByChainPrefix(chainId)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			op, err := decodeOp(it.Item())
			if err != nil {
				return err
			}
			if op.Status == model.OpStatusLocal || op.Status == model.OpStatusToBeReplace {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(keys); start += mutationBatchSize {
		batch := keys[start:min(start+mutationBatchSize, len(keys))]

		batchRemoved := 0
		err := s.db.Update(func(txn *badger.Txn) error {
			batchRemoved = 0
			for _, key := range batch {
				item, err := txn.Get(key)
				if err == badger.ErrKeyNotFound {
					continue
				}
				if err != nil {
					return err
				}

				op, err := decodeOp(item)
				if err != nil {
					return err
				}
				// re-check under the txn, the record may have moved on
				// since the scan
				if op.Status != model.OpStatusLocal && op.Status != model.OpStatusToBeReplace {
					continue
				}

				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(OpByHashKey(op.ChainId, op.UserOpHash)); err != nil {
					return err
				}
				if op.Status == model.OpStatusLocal {
					if err := txn.Delete(LocalIndexKey(op.ChainId, op.EntryPoint, op.CreatedAt, op.UserOpHash)); err != nil {
						return err
					}
				}
				batchRemoved++
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += batchRemoved
	}

	return removed, nil
}
