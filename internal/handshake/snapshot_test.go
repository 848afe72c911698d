package handshake

import (
	"bytes"
	"testing"
)

func TestSnapshotsStoreAndLatest(t *testing.T) {
	snaps := NewSnapshots(t.TempDir())

	// Nothing stored yet.
	_, _, ok, err := snaps.Latest()
	if err != nil {
		t.Fatalf("latest on empty store: %v", err)
	}
	if ok {
		t.Fatalf("empty store reported a snapshot")
	}

	doc := []byte(`{"shares":["media"],"free_bytes":42,"custom":{"nested":true}}`)
	if err := snaps.Store(doc); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, storedAt, ok, err := snaps.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !ok {
		t.Fatalf("stored snapshot not found")
	}
	if !bytes.Equal(got, doc) {
		t.Fatalf("snapshot round-trip altered the document:\n got %s\nwant %s", got, doc)
	}
	if storedAt.IsZero() {
		t.Fatalf("storedAt must carry the write time")
	}
}

func TestSnapshotsOverwriteWholesale(t *testing.T) {
	snaps := NewSnapshots(t.TempDir())

	if err := snaps.Store([]byte(`{"shares":["media","backup"],"extra":"kept"}`)); err != nil {
		t.Fatalf("first store: %v", err)
	}
	replacement := []byte(`{"shares":[]}`)
	if err := snaps.Store(replacement); err != nil {
		t.Fatalf("second store: %v", err)
	}

	got, _, ok, err := snaps.Latest()
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, replacement) {
		t.Fatalf("snapshot was merged instead of replaced: %s", got)
	}
}
