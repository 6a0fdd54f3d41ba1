package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

type Config struct {
	Path string
}

// Storage is the kv layer every store in this codebase talks to. It is a thin
// wrap around badgerdb so we keep the option to swap the engine later. The
// View/Update escape hatches hand out the underlying badger transaction
// because the lifecycle stores are built on conditional writes.
type Storage interface {
	Setup() error
	Close() error

	Exist(key []byte) (bool, error)
	GetKey(key []byte) ([]byte, error)
	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)

	// A key only operation that returns key that has a prefix
	ListKeys(prefix string) ([]string, error)

	// A key only counting keys that has a prefix, very efficient because only operating on lsm tree
	CountKeysByPrefix(prefix []byte) (int64, error)

	BatchWrite(updates map[string][]byte) error
	Set(key, value []byte) error
	Delete(key []byte) error

	// View runs fn in a read-only transaction.
	View(fn func(txn *badger.Txn) error) error
	// Update runs fn in a read-write transaction. Conflicting transactions
	// are retried, so fn must be safe to run more than once.
	Update(fn func(txn *badger.Txn) error) error

	GetCounter(key []byte, defaultValue ...uint64) (uint64, error)
	IncCounter(key []byte, defaultValue ...uint64) (uint64, error)
	Vacuum() error

	Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error)
	Load(ctx context.Context, r io.Reader) error

	DbPath() string
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

type BadgerStorage struct {
	config *Config
	db     *badger.DB
}

// Create storage pool at the particular path
func NewWithPath(path string) (Storage, error) {
	return New(&Config{
		Path: path,
	})
}

// Create storage pool with the given config
func New(c *Config) (Storage, error) {
	opts := badger.DefaultOptions(c.Path)
	db, err := badger.Open(
		opts.WithSyncWrites(true),
	)

	if err != nil {
		return nil, err
	}

	return &BadgerStorage{
		config: c,
		db:     db,
	}, nil
}

func (s *BadgerStorage) Setup() error {
	return nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// BatchWrite commits updates across as many transactions as badger requires.
// Not atomic beyond a single transaction; the first failed write or commit
// aborts the rest so callers never mistake a partial batch for a full one.
func (s *BadgerStorage) BatchWrite(updates map[string][]byte) error {
	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for k, v := range updates {
		err := txn.Set([]byte(k), v)
		if err == badger.ErrTxnTooBig {
			if err = txn.Commit(); err != nil {
				return err
			}
			txn = s.db.NewTransaction(true)
			err = txn.Set([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}

	return txn.Commit()
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Set(key, value)
		return err
	})
}

func (s *BadgerStorage) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		return err
	})
}

func (s *BadgerStorage) View(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// Update retries on txn conflict. Badger uses SSI so out of two
// read-modify-write transactions touching the same key one aborts; the loser
// re-runs and observes the winner's write.
func (s *BadgerStorage) Update(fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
}

// GetByPrefix return a list of key/value item whoser key prefix matches
func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	var result []*KeyValueItem

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 30
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			k := item.KeyCopy(nil)
			v, e := item.ValueCopy(nil)
			if e != nil {
				return e
			}

			result = append(result, &KeyValueItem{
				Key:   k,
				Value: v,
			})
		}
		return nil
	})

	if err != nil {
		return result, err
	}

	return result, nil
}

// CountKeysByPrefix return total key under a specfic prefix
func (s *BadgerStorage) CountKeysByPrefix(prefix []byte) (int64, error) {
	total := int64(0)

	if len(prefix) == 0 {
		return 0, fmt.Errorf("cannot count prefix with length 0")
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total += 1
		}
		return nil
	})

	if err != nil {
		return 0, err
	}

	return total, nil
}

func (s *BadgerStorage) Exist(key []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err != nil {
			return err
		}

		found = true
		return nil
	})

	if err == badger.ErrKeyNotFound {
		return false, nil
	}

	return found, err
}

func (s *BadgerStorage) GetKey(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		err = item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})

		return err
	})

	return value, err
}

func (a *BadgerStorage) ListKeys(prefix string) ([]string, error) {
	var keys []string

	if prefix == "*" {
		prefix = ""
	} else if strings.HasSuffix(prefix, "*") {
		prefix = prefix[:len(prefix)-1]
	}

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			keys = append(keys, fmt.Sprintf("%s", key))
		}
		return nil
	})
	if err == nil {
		return keys, nil
	}

	return nil, err
}

func (a *BadgerStorage) Vacuum() error {
	return a.db.RunValueLogGC(0.7)
}

func (a *BadgerStorage) DbPath() string {
	return a.config.Path
}

// Destroy is destructive action that shutdown a database, and wipe out its entire data directory
func Destroy(a *BadgerStorage) error {
	a.Close()
	return os.RemoveAll(a.config.Path)
}

// GetCounter retrieves a counter value for a given key.
// If the key doesn't exist and defaultValue is provided, it returns the defaultValue.
func (a *BadgerStorage) GetCounter(key []byte, defaultValue ...uint64) (uint64, error) {
	var counter uint64

	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			if len(defaultValue) > 0 {
				counter = defaultValue[0]
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			counterStr := string(val)
			parsedCounter, err := strconv.ParseUint(counterStr, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid counter format: %w", err)
			}
			counter = parsedCounter
			return nil
		})
	})

	if err != nil {
		return 0, err
	}

	return counter, nil
}

// IncCounter increments a counter value for a given key by 1.
// If the key doesn't exist and defaultValue is provided, it sets the counter to defaultValue + 1.
// If the key doesn't exist and no defaultValue is provided, it sets the counter to 1.
func (a *BadgerStorage) IncCounter(key []byte, defaultValue ...uint64) (uint64, error) {
	var newValue uint64

	err := a.Update(func(txn *badger.Txn) error {
		var startValue uint64 = 0
		if len(defaultValue) > 0 {
			startValue = defaultValue[0]
		}

		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			newValue = startValue + 1
		} else if err != nil {
			return err
		} else {
			err = item.Value(func(val []byte) error {
				counterStr := string(val)
				currentValue, err := strconv.ParseUint(counterStr, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid counter format: %w", err)
				}
				newValue = currentValue + 1
				return nil
			})
			if err != nil {
				return err
			}
		}

		// Store the new value as a string so we can inspect them easiser in console
		counterStr := strconv.FormatUint(newValue, 10)
		return txn.Set(key, []byte(counterStr))
	})

	if err != nil {
		return 0, err
	}

	return newValue, nil
}

func (bs *BadgerStorage) Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error) {
	return bs.db.Backup(w, since)
}

func (bs *BadgerStorage) Load(ctx context.Context, r io.Reader) error {
	return bs.db.Load(r, 16) // 16 is a good default for the number of concurrent threads
}
