package userop

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/Polkamarkets/particle-bundler-server/model"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

// EventStore owns the settlement events. One event per
// (chain, userOperationHash), written exactly once.
type EventStore struct {
	db storage.Storage
}

func NewEventStore(db storage.Storage) *EventStore {
	return &EventStore{db: db}
}

// RecordOnce stores ev unless an event already exists for its hash, in which
// case the stored one is returned unchanged. Redelivery of the same on-chain
// log is therefore harmless.
func (s *EventStore) RecordOnce(ev *model.UserOperationEvent) (*model.UserOperationEvent, error) {
	key := EventStorageKey(ev.ChainId, ev.UserOperationHash)

	result := ev
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == nil {
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			existing := &model.UserOperationEvent{}
			if err := existing.FromStorageData(data); err != nil {
				return err
			}
			result = existing
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if ev.CreatedAt == 0 {
			ev.CreatedAt = time.Now().UnixMilli()
		}
		data, err := ev.ToJSON()
		if err != nil {
			return err
		}
		result = ev
		return txn.Set(key, data)
	})

	return result, err
}

// GetEvent returns the settlement event for a hash, nil when none was recorded.
func (s *EventStore) GetEvent(chainId int64, userOpHash string) (*model.UserOperationEvent, error) {
	data, err := s.db.GetKey(EventStorageKey(chainId, userOpHash))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ev := &model.UserOperationEvent{}
	if err := ev.FromStorageData(data); err != nil {
		return nil, err
	}
	return ev, nil
}

// Exists is the cheap form of GetEvent for settlement corroboration.
func (s *EventStore) Exists(chainId int64, userOpHash string) (bool, error) {
	return s.db.Exist(EventStorageKey(chainId, userOpHash))
}
