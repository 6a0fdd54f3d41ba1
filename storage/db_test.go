package storage

import (
	"bytes"
	"fmt"
	"testing"
)

func mustDB(t *testing.T) Storage {
	t.Helper()
	db, err := NewWithPath(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestBatchWrite(t *testing.T) {
	db := mustDB(t)
	defer db.Close()

	updates := map[string][]byte{}
	for i := 0; i < 50; i++ {
		updates[fmt.Sprintf("bw:%03d", i)] = []byte(fmt.Sprintf("v%d", i))
	}

	if err := db.BatchWrite(updates); err != nil {
		t.Fatalf("batch write: %v", err)
	}

	got, err := db.GetKey([]byte("bw:042"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("v42")) {
		t.Errorf("read back %q", got)
	}

	keys, err := db.ListKeys("bw:*")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 50 {
		t.Errorf("expected 50 keys, got %d", len(keys))
	}
}

func TestBatchWriteSurfacesWriteErrors(t *testing.T) {
	db := mustDB(t)
	defer db.Close()

	// badger rejects empty keys at Set time; the error must reach the
	// caller instead of being absorbed into a silent partial write
	err := db.BatchWrite(map[string][]byte{
		"":       []byte("orphan"),
		"bw:one": []byte("v"),
	})
	if err == nil {
		t.Fatal("batch with an invalid key must fail")
	}
}
