package snapshotstore

import (
	"path/filepath"
	"testing"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/orderbook"
)

func testPair(b byte) asset.Pair {
	var id [32]byte
	id[0] = b
	return asset.Pair{AmountAsset: asset.Native, PriceAsset: asset.NewIssued(id)}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snap"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissingReturnsNotOK(t *testing.T) {
	s := openStore(t)
	_, ok, err := s.Load(testPair(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatal("Load on an empty store reported ok=true")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	pair := testPair(2)

	book := orderbook.New(pair)
	snap := book.Snapshot(17)

	if err := s.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(pair)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("Load reported ok=false after Save")
	}
	if got.Offset != 17 || got.Pair != pair {
		t.Fatalf("loaded snapshot = %+v, want Offset=17 Pair=%v", got, pair)
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	s := openStore(t)
	pair := testPair(3)

	_ = s.Save(orderbook.New(pair).Snapshot(1))
	_ = s.Save(orderbook.New(pair).Snapshot(2))

	got, ok, err := s.Load(pair)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Offset != 2 {
		t.Fatalf("Offset = %d, want 2 (latest save should win)", got.Offset)
	}
}

func TestKnownPairs(t *testing.T) {
	s := openStore(t)
	p1, p2 := testPair(4), testPair(5)
	_ = s.Save(orderbook.New(p1).Snapshot(0))
	_ = s.Save(orderbook.New(p2).Snapshot(0))

	pairs, err := s.KnownPairs()
	if err != nil {
		t.Fatalf("KnownPairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("KnownPairs returned %d pairs, want 2", len(pairs))
	}
	seen := map[asset.Pair]bool{}
	for _, p := range pairs {
		seen[p] = true
	}
	if !seen[p1] || !seen[p2] {
		t.Fatalf("KnownPairs = %v, missing a saved pair", pairs)
	}
}

func TestKnownPairsEmptyStore(t *testing.T) {
	s := openStore(t)
	pairs, err := s.KnownPairs()
	if err != nil {
		t.Fatalf("KnownPairs: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("KnownPairs on empty store = %v, want empty", pairs)
	}
}
