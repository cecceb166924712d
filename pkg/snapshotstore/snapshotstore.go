// Package snapshotstore implements the single-writer-per-pair
// persistent map Pair -> (snapshot, offset) order books restore from
// on restart.
package snapshotstore

import (
	"github.com/cockroachdb/pebble"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/matchererr"
	"github.com/lumenex/matcher/pkg/orderbook"
)

const snapshotKeyPrefix = "snap:"

func snapshotKey(pair asset.Pair) []byte {
	key := make([]byte, 0, len(snapshotKeyPrefix)+len(pair.Bytes()))
	key = append(key, snapshotKeyPrefix...)
	return append(key, pair.Bytes()...)
}

// Store is the Pebble-backed SnapshotStore: one key per pair, holding
// the most recently persisted snapshot. Writers are single per pair
// by construction (only that pair's worker ever calls Save for it).
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a snapshot store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, matchererr.FatalStartup(err, "open snapshot store")
	}
	return &Store{db: db}, nil
}

// Save persists snap as the latest snapshot for its pair, fsynced
// before returning.
func (s *Store) Save(snap orderbook.Snapshot) error {
	wire := orderbook.Encode(snap)
	if err := s.db.Set(snapshotKey(snap.Pair), wire, pebble.Sync); err != nil {
		return matchererr.Transient(err, "save snapshot")
	}
	return nil
}

// Load returns the latest snapshot for pair, or ok=false if none has
// ever been saved.
func (s *Store) Load(pair asset.Pair) (orderbook.Snapshot, bool, error) {
	val, closer, err := s.db.Get(snapshotKey(pair))
	if err == pebble.ErrNotFound {
		return orderbook.Snapshot{}, false, nil
	}
	if err != nil {
		return orderbook.Snapshot{}, false, matchererr.FatalStartup(err, "load snapshot")
	}
	defer closer.Close()

	snap, err := orderbook.Decode(val)
	if err != nil {
		return orderbook.Snapshot{}, false, matchererr.FatalStartup(err, "decode snapshot: corruption")
	}
	return snap, true, nil
}

// KnownPairs lists every pair with a persisted snapshot, for startup
// pair discovery.
func (s *Store) KnownPairs() ([]asset.Pair, error) {
	upper := []byte(snapshotKeyPrefix)
	upper = append(upper[:len(upper):len(upper)], 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(snapshotKeyPrefix),
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var pairs []asset.Pair
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		pairBytes := key[len(snapshotKeyPrefix):]
		pair, err := asset.PairFromBytes(append([]byte(nil), pairBytes...))
		if err != nil {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func (s *Store) Close() error { return s.db.Close() }
