package eventlog

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/lumenex/matcher/pkg/matchererr"
)

const localEventKeyPrefix = "evt:"

func localEventKey(offset int64) []byte {
	key := make([]byte, 0, len(localEventKeyPrefix)+8)
	key = append(key, localEventKeyPrefix...)
	return append(key, offsetKeySuffix(offset)...)
}

// Local is a single-process, single-partition event log backed by a
// Pebble database: one key per offset, synchronously fsynced before
// Append returns, matching the durability guarantee the log contract
// requires.
type Local struct {
	db *pebble.DB

	mu     sync.Mutex
	closed bool

	nextOffset atomic.Int64 // offset the NEXT Append will assign

	subMu sync.Mutex
	subs  map[int]chan struct{}
	subID int
}

// OpenLocal opens (or creates) a Pebble-backed log at path.
func OpenLocal(path string) (*Local, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, matchererr.FatalStartup(err, "open local event log")
	}
	l := &Local{db: db, subs: make(map[int]chan struct{})}

	end, err := l.scanEndOffset()
	if err != nil {
		return nil, matchererr.FatalStartup(err, "scan local event log end offset")
	}
	l.nextOffset.Store(end + 1)
	return l, nil
}

func (l *Local) scanEndOffset() (int64, error) {
	upper := []byte(localEventKeyPrefix)
	upper = append(upper[:len(upper):len(upper)], 0xff)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(localEventKeyPrefix),
		UpperBound: upper,
	})
	if err != nil {
		return EndOffsetEmpty, err
	}
	defer iter.Close()
	if !iter.Last() {
		return EndOffsetEmpty, nil
	}
	key := iter.Key()
	offsetBytes := key[len(localEventKeyPrefix):]
	return int64(binary.BigEndian.Uint64(offsetBytes)), nil
}

func (l *Local) Append(ctx context.Context, e Event) (int64, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, 0, ErrClosed
	}

	payload, err := EncodePayload(e)
	if err != nil {
		return 0, 0, matchererr.Validation(matchererr.CodeDuplicateOrder, err.Error(), nil)
	}

	offset := l.nextOffset.Load()
	ts := time.Now().UnixMilli()

	record := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(record[:8], uint64(ts))
	copy(record[8:], payload)

	if err := l.db.Set(localEventKey(offset), record, pebble.Sync); err != nil {
		return 0, 0, matchererr.Transient(err, "append event to local log")
	}
	l.nextOffset.Store(offset + 1)
	l.notifySubscribers()
	return offset, ts, nil
}

func (l *Local) EndOffset(ctx context.Context) (int64, error) {
	return l.nextOffset.Load() - 1, nil
}

func (l *Local) readOffset(offset int64) (Event, bool, error) {
	val, closer, err := l.db.Get(localEventKey(offset))
	if err == pebble.ErrNotFound {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	defer closer.Close()

	ts := int64(binary.BigEndian.Uint64(val[:8]))
	e, err := DecodePayload(val[8:], offset, ts)
	if err != nil {
		return Event{}, false, err
	}
	return e, true, nil
}

func (l *Local) notifySubscribers() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (l *Local) subscribe() (int, chan struct{}) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subID++
	id := l.subID
	ch := make(chan struct{}, 1)
	l.subs[id] = ch
	return id, ch
}

func (l *Local) unsubscribe(id int) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	delete(l.subs, id)
}

// Tail polls for newly appended offsets, woken immediately by Append
// via an internal notification channel rather than a fixed interval,
// and batches up to batchSize events or maxWait milliseconds.
func (l *Local) Tail(ctx context.Context, fromOffset int64, batchSize int, maxWait int64) (<-chan EventBatch, error) {
	out := make(chan EventBatch)
	id, notify := l.subscribe()

	go func() {
		defer close(out)
		defer l.unsubscribe(id)

		next := fromOffset
		window := time.Duration(maxWait) * time.Millisecond
		if window <= 0 {
			window = 10 * time.Millisecond
		}

		for {
			var batch []Event
			deadline := time.Now().Add(window)
			for len(batch) < batchSize {
				e, ok, err := l.readOffset(next)
				if err != nil || !ok {
					break
				}
				batch = append(batch, e)
				next++
			}
			if len(batch) > 0 {
				select {
				case out <- EventBatch{Events: batch}:
				case <-ctx.Done():
					return
				}
				continue
			}

			wait := time.Until(deadline)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-notify:
				timer.Stop()
			case <-timer.C:
			}
		}
	}()

	return out, nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

var _ Log = (*Local)(nil)
