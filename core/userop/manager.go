package userop

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/Polkamarkets/particle-bundler-server/core/config"
	"github.com/Polkamarkets/particle-bundler-server/metrics"
	"github.com/Polkamarkets/particle-bundler-server/model"
	pkglogger "github.com/Polkamarkets/particle-bundler-server/pkg/logger"
	"github.com/Polkamarkets/particle-bundler-server/pkg/nonce"
	userop "github.com/Polkamarkets/particle-bundler-server/pkg/userop"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

// LifecycleManager is the only component with business rules. It decides
// whether an inbound operation is new, collides, or may replace a settled
// record, and drives the batch transitions local -> pending -> done. Every
// decision that writes is re-checked inside the store's transaction, so the
// manager itself holds no locks and no state beyond its collaborators.
type LifecycleManager struct {
	db     storage.Storage
	ops    *OperationStore
	events *EventStore
	txView BundlingTransactionView

	cfg   *config.Config
	codec nonce.Codec

	cache   *bigcache.BigCache
	metrics *metrics.BundlerMetrics

	logger sdklogging.Logger
}

// NewLifecycleManager wires the manager over one storage handle. txView is
// usually the badger-backed TransactionStore but the submission pipeline may
// substitute its own.
func NewLifecycleManager(db storage.Storage, cfg *config.Config, txView BundlingTransactionView, logger sdklogging.Logger) *LifecycleManager {
	return &LifecycleManager{
		db:     db,
		ops:    NewOperationStore(db),
		events: NewEventStore(db),
		txView: txView,

		cfg:   cfg,
		codec: nonce.Key192{},

		logger: pkglogger.EnsureLogger(logger),
	}
}

// SetCache installs a read cache for hash lookups. Optional.
func (m *LifecycleManager) SetCache(c *bigcache.BigCache) {
	m.cache = c
}

// SetMetrics installs lifecycle counters. Optional.
func (m *LifecycleManager) SetMetrics(mt *metrics.BundlerMetrics) {
	m.metrics = mt
}

// SetNonceCodec overrides the default ERC-4337 2d nonce codec.
func (m *LifecycleManager) SetNonceCodec(c nonce.Codec) {
	m.codec = c
}

// AdmitOperation runs the admission state machine for one inbound operation.
//
// A free nonce slot admits the candidate as a new local record. An occupied
// slot rejects unless the occupant is done AND either old enough (per-chain
// grace window) or its bundling transaction is known to have failed; in that
// case the record is reset in place, keeping the slot identity. The write is
// durable before this returns.
func (m *LifecycleManager) AdmitOperation(chainId int64, candidate *userop.UserOperation, userOpHash string, entryPoint common.Address) (*model.UserOperation, error) {
	rawNonce, ok := candidate.NonceBig()
	if !ok {
		return nil, fmt.Errorf("%w: unparseable nonce %q", ErrInvalidNonce, candidate.Nonce)
	}

	nonceKey, nonceValue := m.codec.Split(rawNonce)
	if nonceValue.Sign() < 0 || len(nonceValue.String()) > model.MaxNonceValueLen {
		m.incRejected("invalid_nonce")
		return nil, fmt.Errorf("%w: value %s", ErrInvalidNonce, nonceValue.String())
	}

	origin, err := candidate.ToJSON()
	if err != nil {
		return nil, err
	}

	record := &model.UserOperation{
		ChainId:    chainId,
		UserOpHash: strings.ToLower(userOpHash),
		Sender:     candidate.Sender.Hex(),
		NonceKey:   nonceKey.String(),
		NonceValue: nonceValue.String(),
		EntryPoint: entryPoint.Hex(),
		Origin:     origin,
		Status:     model.OpStatusLocal,
		CreatedAt:  time.Now().UnixMilli(),
	}

	for {
		existing, err := m.ops.GetBySlot(chainId, record.Sender, record.NonceKey, record.NonceValue)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StorageUnavailableError, err)
		}

		if existing == nil {
			inserted, err := m.ops.InsertIfAbsent(record)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", StorageUnavailableError, err)
			}
			if !inserted {
				// lost the race for the slot, re-read and treat as collision
				continue
			}

			m.afterAdmit(record, false)
			return record, nil
		}

		return m.replaceCollision(record, existing)
	}
}

func (m *LifecycleManager) replaceCollision(record, existing *model.UserOperation) (*model.UserOperation, error) {
	if !existing.Terminal() {
		m.incRejected("not_replaceable")
		return nil, fmt.Errorf("%w: slot held by %s record %s", ErrOperationNotReplaceable, existing.Status, existing.UserOpHash)
	}

	age := time.Since(time.UnixMilli(existing.CreatedAt))
	replaceable := age >= m.cfg.ReplaceAfter(existing.ChainId)

	if !replaceable && existing.TxHash != "" {
		tx, err := m.txView.FindByChainAndHash(existing.ChainId, existing.TxHash)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StorageUnavailableError, err)
		}
		replaceable = tx != nil && tx.Status == model.TxStatusFailed
	}

	if !replaceable {
		m.incRejected("too_soon")
		return nil, fmt.Errorf("%w: settled %s ago", ErrReplacementTooSoon, age.Round(time.Second))
	}

	reset, err := m.ops.ResetIfSettled(record, existing.UserOpHash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}
	if !reset {
		// the slot moved between our read and the conditional write
		m.incRejected("not_replaceable")
		return nil, fmt.Errorf("%w: slot changed while replacing", ErrOperationNotReplaceable)
	}

	m.invalidate(existing.ChainId, existing.UserOpHash)
	m.afterAdmit(record, true)
	return record, nil
}

func (m *LifecycleManager) afterAdmit(record *model.UserOperation, replaced bool) {
	if _, err := m.db.IncCounter(AdmitCounterKey(record.ChainId)); err != nil {
		m.logger.Error("cannot bump admission counter", "chain", record.ChainId, "error", err)
	}

	if m.metrics != nil {
		if replaced {
			m.metrics.IncReplaced()
		} else {
			m.metrics.IncAdmitted()
		}
	}

	m.logger.Info("admitted user operation",
		"chain", record.ChainId,
		"sender", record.Sender,
		"nonce_key", record.NonceKey,
		"nonce_value", record.NonceValue,
		"hash", record.UserOpHash,
		"replaced", replaced)
}

func (m *LifecycleManager) incRejected(reason string) {
	if m.metrics != nil {
		m.metrics.IncRejected(reason)
	}
}

// MarkBatchPending moves every record in the set that is still local to
// pending under txHash. The returned count can be lower than len(ops) when a
// record was concurrently replaced; callers re-verify instead of assuming
// full success.
func (m *LifecycleManager) MarkBatchPending(ops []*model.UserOperation, txHash string) (int, error) {
	affected, err := m.ops.MarkPending(ops, txHash)
	if err != nil {
		return affected, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}

	for _, op := range ops {
		m.invalidate(op.ChainId, op.UserOpHash)
	}
	if m.metrics != nil {
		m.metrics.AddMarkedPending(affected)
	}

	m.logger.Info("marked batch pending",
		"tx", txHash,
		"sent", len(ops),
		"affected", affected,
		"hashes", lo.Map(ops, func(op *model.UserOperation, _ int) string { return op.UserOpHash }))
	return affected, nil
}

// MarkBatchDone settles every listed hash that is still pending, stamping the
// block coordinates. Duplicate confirmation delivery yields zero matches and
// no error.
func (m *LifecycleManager) MarkBatchDone(chainId int64, userOpHashes []string, txHash string, blockNumber int64, blockHash string) (int, error) {
	affected, err := m.ops.MarkDone(chainId, userOpHashes, txHash, blockNumber, blockHash)
	if err != nil {
		return affected, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}

	for _, hash := range userOpHashes {
		m.invalidate(chainId, hash)
	}
	if m.metrics != nil {
		m.metrics.AddMarkedDone(affected)
	}

	m.logger.Info("marked batch done",
		"chain", chainId,
		"tx", txHash,
		"block", blockNumber,
		"sent", len(userOpHashes),
		"affected", affected)
	return affected, nil
}

// MarkBatchToBeReplaced parks pending records whose bundling transaction was
// dropped or superseded; the cleanup job removes them later.
func (m *LifecycleManager) MarkBatchToBeReplaced(chainId int64, userOpHashes []string, txHash string) (int, error) {
	affected, err := m.ops.MarkToBeReplaced(chainId, userOpHashes, txHash)
	if err != nil {
		return affected, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}

	for _, hash := range userOpHashes {
		m.invalidate(chainId, hash)
	}

	m.logger.Info("marked batch to be replaced",
		"chain", chainId,
		"tx", txHash,
		"affected", affected)
	return affected, nil
}

// GetBySlot returns the record for a nonce slot, nil when free.
func (m *LifecycleManager) GetBySlot(chainId int64, sender common.Address, nonceKey, nonceValue *big.Int) (*model.UserOperation, error) {
	return m.ops.GetBySlot(chainId, sender.Hex(), nonceKey.String(), nonceValue.String())
}

// GetByHash returns the record for a user operation hash, nil when unknown.
// Served from the read cache when one is installed.
func (m *LifecycleManager) GetByHash(chainId int64, userOpHash string) (*model.UserOperation, error) {
	cacheKey := string(OpByHashKey(chainId, userOpHash))

	if m.cache != nil {
		if data, err := m.cache.Get(cacheKey); err == nil {
			op := &model.UserOperation{}
			if err := op.FromStorageData(data); err == nil {
				return op, nil
			}
		}
	}

	op, err := m.ops.GetByHash(chainId, userOpHash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}

	if op != nil && m.cache != nil {
		if data, err := op.ToJSON(); err == nil {
			_ = m.cache.Set(cacheKey, data)
		}
	}
	return op, nil
}

func (m *LifecycleManager) GetByHashes(chainId int64, userOpHashes []string) ([]*model.UserOperation, error) {
	return m.ops.GetByHashes(chainId, userOpHashes)
}

// GetLocalInWindow returns local records of a chain created in (startAt, endAt],
// epoch milliseconds.
func (m *LifecycleManager) GetLocalInWindow(chainId int64, startAt, endAt int64) ([]*model.UserOperation, error) {
	return m.ops.ListLocalInWindow(chainId, startAt, endAt)
}

// GetLocalBatch selects up to limit local records across all chains, oldest
// first.
func (m *LifecycleManager) GetLocalBatch(limit int) ([]*model.UserOperation, error) {
	return m.ops.ListLocal(limit)
}

// GetLocalBatchByEntryPoint selects up to limit local records for one
// (chain, entrypoint), oldest first.
func (m *LifecycleManager) GetLocalBatchByEntryPoint(chainId int64, entryPoint common.Address, limit int) ([]*model.UserOperation, error) {
	return m.ops.ListLocalByEntryPoint(chainId, entryPoint.Hex(), limit)
}

// GetHighestSettledNonce returns the greatest settled nonce value for
// (chain, sender, nonceKey), nil when nothing settled yet. A done record only
// counts when its settlement event is on file; a status that raced ahead of
// event ingestion is not trusted.
func (m *LifecycleManager) GetHighestSettledNonce(chainId int64, sender common.Address, nonceKey *big.Int) (*big.Int, error) {
	op, err := m.ops.HighestDone(chainId, sender.Hex(), nonceKey.String(), func(op *model.UserOperation) bool {
		exists, err := m.events.Exists(op.ChainId, op.UserOpHash)
		if err != nil {
			m.logger.Error("cannot check settlement event", "chain", op.ChainId, "hash", op.UserOpHash, "error", err)
			return false
		}
		return exists
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}
	if op == nil {
		return nil, nil
	}
	return op.NonceValueBig(), nil
}

// RecordEventOnce stores the settlement event for a hash, returning the
// already stored event on redelivery.
func (m *LifecycleManager) RecordEventOnce(chainId int64, userOpHash, txHash, contractAddress, topic string, args json.RawMessage) (*model.UserOperationEvent, error) {
	ev := &model.UserOperationEvent{
		ChainId:           chainId,
		UserOperationHash: strings.ToLower(userOpHash),
		TxHash:            txHash,
		ContractAddress:   contractAddress,
		Topic:             topic,
		Args:              args,
		CreatedAt:         time.Now().UnixMilli(),
	}

	stored, err := m.events.RecordOnce(ev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}

	if stored == ev && m.metrics != nil {
		m.metrics.IncEventsRecorded()
	}
	return stored, nil
}

// GetEvent returns the settlement event for a hash, nil when none recorded.
func (m *LifecycleManager) GetEvent(chainId int64, userOpHash string) (*model.UserOperationEvent, error) {
	return m.events.GetEvent(chainId, userOpHash)
}

// DeleteAbandoned sweeps local and toBeReplace records of a chain. Cached
// hash lookups of swept records age out with the cache life window.
func (m *LifecycleManager) DeleteAbandoned(chainId int64) (int, error) {
	removed, err := m.ops.DeleteAbandoned(chainId)
	if err != nil {
		return removed, fmt.Errorf("%s: %w", StorageUnavailableError, err)
	}

	if removed > 0 {
		m.logger.Info("deleted abandoned user operations", "chain", chainId, "removed", removed)
	}
	return removed, nil
}

type ChainStats struct {
	ChainId    int64
	LocalCount int64
	Admitted   uint64
}

// GetChainStats is a cheap snapshot for operational visibility; counts come
// from the lsm tree and the admission counter.
func (m *LifecycleManager) GetChainStats(chainId int64) (*ChainStats, error) {
	localCount, err := m.db.CountKeysByPrefix(LocalIndexChainPrefix(chainId))
	if err != nil {
		return nil, err
	}

	admitted, err := m.db.GetCounter(AdmitCounterKey(chainId), 0)
	if err != nil {
		return nil, err
	}

	return &ChainStats{
		ChainId:    chainId,
		LocalCount: localCount,
		Admitted:   admitted,
	}, nil
}

func (m *LifecycleManager) invalidate(chainId int64, userOpHash string) {
	if m.cache == nil {
		return
	}
	_ = m.cache.Delete(string(OpByHashKey(chainId, userOpHash)))
}
