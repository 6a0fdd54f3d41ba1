package userop

import (
	badger "github.com/dgraph-io/badger/v4"

	"github.com/Polkamarkets/particle-bundler-server/model"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

// BundlingTransactionView is how the lifecycle core sees the submission
// pipeline's transactions: status by (chain, txHash), read only. Absent
// transactions come back as (nil, nil).
type BundlingTransactionView interface {
	FindByChainAndHash(chainId int64, txHash string) (*model.Transaction, error)
}

// TransactionStore is the badger-backed implementation the submission
// pipeline writes to. The lifecycle manager only ever uses the view side.
type TransactionStore struct {
	db storage.Storage
}

func NewTransactionStore(db storage.Storage) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) FindByChainAndHash(chainId int64, txHash string) (*model.Transaction, error) {
	data, err := s.db.GetKey(TxStorageKey(chainId, txHash))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tx := &model.Transaction{}
	if err := tx.FromStorageData(data); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *TransactionStore) Save(tx *model.Transaction) error {
	data, err := tx.ToJSON()
	if err != nil {
		return err
	}
	return s.db.Set(TxStorageKey(tx.ChainId, tx.TxHash), data)
}

// SetStatus updates the status of a known transaction; unknown hashes are a
// no-op so confirmation delivery is order-insensitive.
func (s *TransactionStore) SetStatus(chainId int64, txHash string, status model.TxStatus) error {
	key := TxStorageKey(chainId, txHash)

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		tx := &model.Transaction{}
		if err := tx.FromStorageData(data); err != nil {
			return err
		}

		tx.Status = status
		updated, err := tx.ToJSON()
		if err != nil {
			return err
		}
		return txn.Set(key, updated)
	})
}
