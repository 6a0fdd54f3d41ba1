package userop

import (
	"fmt"
	"testing"
	"time"

	"github.com/Polkamarkets/particle-bundler-server/core/testutil"
	"github.com/Polkamarkets/particle-bundler-server/model"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

func TestInsertIfAbsent(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	op := testutil.GetStoredUserOp("0", "1", model.OpStatusLocal)
	inserted, err := store.InsertIfAbsent(op)
	if err != nil || !inserted {
		t.Fatalf("first insert must win: %v", err)
	}

	dup := testutil.GetStoredUserOp("0", "1", model.OpStatusLocal)
	dup.UserOpHash = "0xother"
	inserted, err = store.InsertIfAbsent(dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second insert into an occupied slot must lose")
	}

	// the loser left no trace
	if got, _ := store.GetByHash(dup.ChainId, "0xother"); got != nil {
		t.Error("losing insert leaked a hash index entry")
	}
}

func TestResetIfSettled(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	done := testutil.GetStoredUserOp("0", "2", model.OpStatusDone)
	if _, err := store.InsertIfAbsent(done); err != nil {
		t.Fatal(err)
	}

	replacement := testutil.GetStoredUserOp("0", "2", model.OpStatusLocal)
	replacement.UserOpHash = "0xnew"

	// stale expectation loses
	reset, err := store.ResetIfSettled(replacement, "0xsomeoneelse")
	if err != nil {
		t.Fatal(err)
	}
	if reset {
		t.Error("reset with a stale expected hash must fail")
	}

	reset, err = store.ResetIfSettled(replacement, done.UserOpHash)
	if err != nil || !reset {
		t.Fatalf("reset with the right expected hash must succeed: %v", err)
	}

	// only done records can be reset
	again := testutil.GetStoredUserOp("0", "2", model.OpStatusLocal)
	again.UserOpHash = "0xnewer"
	reset, err = store.ResetIfSettled(again, "0xnew")
	if err != nil {
		t.Fatal(err)
	}
	if reset {
		t.Error("reset over a local record must fail")
	}
}

func TestMarkPendingSkipsReplacedRecords(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	var batch []*model.UserOperation
	for i := 0; i < 3; i++ {
		op := testutil.GetStoredUserOp("0", fmt.Sprintf("%d", 10+i), model.OpStatusLocal)
		if _, err := store.InsertIfAbsent(op); err != nil {
			t.Fatal(err)
		}
		batch = append(batch, op)
	}

	// one slot gets replaced between selection and submission; first settle
	// it so the reset precondition holds
	victim := batch[1]
	settle := *victim
	settle.Status = model.OpStatusDone
	seedRecord(t, db, &settle)

	usurper := testutil.GetStoredUserOp(victim.NonceKey, victim.NonceValue, model.OpStatusLocal)
	usurper.UserOpHash = "0xusurper"
	if reset, err := store.ResetIfSettled(usurper, victim.UserOpHash); err != nil || !reset {
		t.Fatalf("seed replacement failed: %v", err)
	}

	affected, err := store.MarkPending(batch, "0xtx")
	if err != nil {
		t.Fatal(err)
	}
	if affected != 2 {
		t.Errorf("replaced record must be skipped, expected 2 affected, got %d", affected)
	}

	// the usurper is untouched
	got, err := store.GetBySlot(victim.ChainId, victim.Sender, victim.NonceKey, victim.NonceValue)
	if err != nil || got == nil {
		t.Fatal("slot lookup failed")
	}
	if got.Status != model.OpStatusLocal || got.UserOpHash != "0xusurper" {
		t.Errorf("replacement record was transitioned by a stale batch: %+v", got)
	}
}

func TestGetByHashes(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	var hashes []string
	for _, v := range []string{"60", "61"} {
		op := testutil.GetStoredUserOp("0", v, model.OpStatusLocal)
		if _, err := store.InsertIfAbsent(op); err != nil {
			t.Fatal(err)
		}
		hashes = append(hashes, op.UserOpHash)
	}

	// unknown hashes are dropped from the result, not returned as nils
	ops, err := store.GetByHashes(testutil.TestChainId, append(hashes, "0xunknown"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 resolved operations, got %d", len(ops))
	}
	for _, op := range ops {
		if op == nil {
			t.Fatal("resolved batch contains a nil entry")
		}
	}
}

func TestListLocalInWindow(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	base := time.Now().UnixMilli()
	for i, v := range []string{"20", "21", "22", "23"} {
		op := testutil.GetStoredUserOp("0", v, model.OpStatusLocal)
		op.CreatedAt = base + int64(i)*1000
		if _, err := store.InsertIfAbsent(op); err != nil {
			t.Fatal(err)
		}
	}

	// half open: startAt excluded, endAt included
	ops, err := store.ListLocalInWindow(testutil.TestChainId, base, base+2000)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 records in (start, end], got %d", len(ops))
	}
	if ops[0].NonceValue != "21" || ops[1].NonceValue != "22" {
		t.Errorf("unexpected window contents: %s, %s", ops[0].NonceValue, ops[1].NonceValue)
	}
}

func TestListLocalOrderingAndLimit(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	base := time.Now().UnixMilli()
	// insert newest first to make sure ordering comes from createdAt, not
	// insertion order
	for i := 3; i >= 0; i-- {
		op := testutil.GetStoredUserOp("0", fmt.Sprintf("%d", 30+i), model.OpStatusLocal)
		op.CreatedAt = base + int64(i)*1000
		if _, err := store.InsertIfAbsent(op); err != nil {
			t.Fatal(err)
		}
	}

	ops, err := store.ListLocal(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("limit not honored, got %d", len(ops))
	}
	for i := 0; i < len(ops)-1; i++ {
		if ops[i].CreatedAt > ops[i+1].CreatedAt {
			t.Errorf("batch not oldest first at %d", i)
		}
	}
	if ops[0].NonceValue != "30" {
		t.Errorf("expected the oldest record first, got %s", ops[0].NonceValue)
	}

	byEp, err := store.ListLocalByEntryPoint(testutil.TestChainId, testutil.TestEntryPoint, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(byEp) != 2 || byEp[0].NonceValue != "30" {
		t.Errorf("entrypoint listing wrong: %d records", len(byEp))
	}
}

func TestHighestDoneNumericOrder(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	// "9" sorts after "100" as a plain string; zero padded slot keys must
	// still yield 100 as the highest
	for _, v := range []string{"9", "100"} {
		op := testutil.GetStoredUserOp("0", v, model.OpStatusDone)
		if _, err := store.InsertIfAbsent(op); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.HighestDone(testutil.TestChainId, testutil.TestSender, "0", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.NonceValue != "100" {
		t.Fatalf("expected 100 as highest, got %+v", got)
	}

	// accept callback filters
	got, err = store.HighestDone(testutil.TestChainId, testutil.TestSender, "0", func(op *model.UserOperation) bool {
		return op.NonceValue != "100"
	})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.NonceValue != "9" {
		t.Fatalf("expected the walk to continue past rejected records, got %+v", got)
	}
}

func TestDeleteAbandoned(t *testing.T) {
	db := testutil.TestMustDB()
	defer storage.Destroy(db.(*storage.BadgerStorage))
	store := NewOperationStore(db)

	local := testutil.GetStoredUserOp("0", "40", model.OpStatusLocal)
	parked := testutil.GetStoredUserOp("0", "41", model.OpStatusToBeReplace)
	pending := testutil.GetStoredUserOp("0", "42", model.OpStatusPending)
	done := testutil.GetStoredUserOp("0", "43", model.OpStatusDone)
	for _, op := range []*model.UserOperation{local, parked, pending, done} {
		seedRecord(t, db, op)
	}

	removed, err := store.DeleteAbandoned(testutil.TestChainId)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	// in flight and settled records survive
	for _, op := range []*model.UserOperation{pending, done} {
		got, err := store.GetBySlot(op.ChainId, op.Sender, op.NonceKey, op.NonceValue)
		if err != nil || got == nil {
			t.Errorf("%s record should survive cleanup", op.Status)
		}
	}
	for _, op := range []*model.UserOperation{local, parked} {
		got, err := store.GetBySlot(op.ChainId, op.Sender, op.NonceKey, op.NonceValue)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("%s record should have been removed", op.Status)
		}
		if byHash, _ := store.GetByHash(op.ChainId, op.UserOpHash); byHash != nil {
			t.Errorf("hash index of removed %s record survived", op.Status)
		}
	}
}
