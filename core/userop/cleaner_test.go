package userop

import (
	"testing"

	"github.com/Polkamarkets/particle-bundler-server/core/testutil"
	"github.com/Polkamarkets/particle-bundler-server/model"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

func TestCleanerSweep(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	cfg := testutil.GetBundlerConfig()
	mgr := NewLifecycleManager(db, cfg, NewTransactionStore(db), cfg.Logger)

	seedRecord(t, db, testutil.GetStoredUserOp("0", "50", model.OpStatusLocal))
	seedRecord(t, db, testutil.GetStoredUserOp("0", "51", model.OpStatusToBeReplace))
	seedRecord(t, db, testutil.GetStoredUserOp("0", "52", model.OpStatusPending))

	cleaner, err := NewCleaner(mgr, db, cfg, cfg.Logger)
	if err != nil {
		t.Fatal(err)
	}
	defer cleaner.Stop()

	cleaner.Sweep()

	ops := 0
	for _, v := range []string{"50", "51", "52"} {
		got, err := mgr.ops.GetBySlot(testutil.TestChainId, testutil.TestSender, "0", v)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			ops++
			if got.Status != model.OpStatusPending {
				t.Errorf("record %s should have been swept", v)
			}
		}
	}
	if ops != 1 {
		t.Errorf("expected only the pending record to survive, got %d", ops)
	}
}
