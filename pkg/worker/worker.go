// Package worker implements the OrderBookWorker: the single-threaded
// actor that owns one pair's order book, applies events strictly in
// log order, and notifies the address ledger after each book
// mutation commits.
package worker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/eventlog"
	"github.com/lumenex/matcher/pkg/ledger"
	"github.com/lumenex/matcher/pkg/matchererr"
	"github.com/lumenex/matcher/pkg/matchingrules"
	"github.com/lumenex/matcher/pkg/orderbook"
	"github.com/lumenex/matcher/pkg/snapshotstore"
)

// AdminKey is the exchange administrator's identity for cancel
// authorization, shared across workers.
type AdminKey = common.Address

// AddressOf derives the requesting address carried in a Canceled
// event's 32-byte Requestor field. External cancel requests carry
// the requestor's raw public key there; internally generated cancels
// (the auto-cancel cascade and admin action) carry the address
// itself, zero-padded to 32 bytes. A nil AddressOf treats Requestor
// as already zero-padded, which is sufficient for the cascade and
// admin cases and for local testing without a real key scheme wired
// in.
type AddressOf func(requestor [32]byte) common.Address

func addressFromRequestor(fn AddressOf, requestor [32]byte) common.Address {
	if fn != nil {
		return fn(requestor)
	}
	var addr common.Address
	copy(addr[:], requestor[12:])
	return addr
}

// workItem is one event plus the channel its submitter blocks on for
// an ack, the message-passing realization the design notes recommend
// for the single-writer-per-pair invariant. A ping item carries no
// event; it exists only to prove the actor's loop is still draining
// its channel, in FIFO order with real events, for the orchestrator's
// PingAll liveness check.
type workItem struct {
	event eventlog.Event
	ping  bool
	ack   chan error
}

// Worker owns one pair's Book end to end: applying events, emitting
// trades to the ledger, and snapshotting on schedule and on Stop.
type Worker struct {
	book     *orderbook.Book
	rules    *matchingrules.Registry
	ledger   *ledger.Ledger
	snapshot *snapshotstore.Store
	log      *zap.Logger

	snapshotInterval uint64
	adminKey         AdminKey
	addressOf        AddressOf

	items             chan workItem
	lastAppliedOffset int64
	eventsSinceSnap   uint64

	done chan struct{}
}

// Config bundles a Worker's dependencies.
type Config struct {
	Book             *orderbook.Book
	Rules            *matchingrules.Registry
	Ledger           *ledger.Ledger
	SnapshotStore    *snapshotstore.Store
	Logger           *zap.Logger
	SnapshotInterval uint64
	AdminKey         AdminKey
	AddressOf        AddressOf
	LastOffset       int64 // offset of the snapshot this worker restored from, or -1
}

// New builds a Worker ready to Run. Call Run in its own goroutine;
// the worker is the single mutator of cfg.Book from that point on.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		book:              cfg.Book,
		rules:             cfg.Rules,
		ledger:            cfg.Ledger,
		snapshot:          cfg.SnapshotStore,
		log:               logger,
		snapshotInterval:  cfg.SnapshotInterval,
		adminKey:          cfg.AdminKey,
		addressOf:         cfg.AddressOf,
		items:             make(chan workItem, 64),
		lastAppliedOffset: cfg.LastOffset,
		done:              make(chan struct{}),
	}
}

// Submit enqueues an event and blocks until it has been applied (or
// the worker has stopped). Per-event application errors are logged
// and do not halt the worker; a non-nil return here only signals a
// rejected submission.
func (w *Worker) Submit(ctx context.Context, e eventlog.Event) error {
	item := workItem{event: e, ack: make(chan error, 1)}
	select {
	case w.items <- item:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return matchererr.Transient(nil, "worker stopped")
	}
	select {
	case err := <-item.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return matchererr.Transient(nil, "worker stopped")
	}
}

// LastAppliedOffset returns the offset of the most recently applied
// event.
func (w *Worker) LastAppliedOffset() int64 { return w.lastAppliedOffset }

// Ping round-trips through the actor's event loop without applying
// anything, proving the loop is alive and has drained everything
// submitted before it.
func (w *Worker) Ping(ctx context.Context) error {
	item := workItem{ping: true, ack: make(chan error, 1)}
	select {
	case w.items <- item:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return matchererr.Transient(nil, "worker stopped")
	}
	select {
	case err := <-item.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the worker's event loop until ctx is cancelled, then
// persists a final snapshot and returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case item := <-w.items:
			if item.ping {
				item.ack <- nil
				continue
			}
			err := w.apply(item.event)
			if err != nil {
				w.log.Error("event application failed; continuing to next event",
					zap.Int64("offset", item.event.Offset), zap.Error(err))
			}
			item.ack <- nil // the event is already committed to the log; re-delivery would repeat the same outcome
		case <-ctx.Done():
			if w.snapshot != nil {
				if err := w.saveSnapshot(); err != nil {
					w.log.Error("final snapshot failed", zap.Error(err))
				}
			}
			return
		}
	}
}

func (w *Worker) apply(e eventlog.Event) error {
	if e.Offset <= w.lastAppliedOffset {
		// Already reflected in the snapshot this worker restored from;
		// the orchestrator tails from the oldest resume point shared
		// across all pairs, so a fresher pair sees events it has
		// already applied.
		return nil
	}
	switch e.Kind {
	case eventlog.KindPlaced:
		return w.applyPlaced(e)
	case eventlog.KindCanceled:
		return w.applyCanceled(e)
	case eventlog.KindOrderBookDeleted:
		return w.applyOrderBookDeleted(e)
	default:
		return matchererr.Validation(matchererr.CodeDuplicateOrder, "unknown event kind", nil)
	}
}

func (w *Worker) applyPlaced(e eventlog.Event) error {
	o := e.Order
	tick, ok := w.rules.ActiveTick(o.Pair, e.Offset)
	if !ok {
		tick = matchingrules.DefaultTick
	}

	w.ledger.OnPlaced(o, e.Offset)

	trades, _, err := w.book.Place(o, tick, e.Timestamp)
	if err != nil {
		// Price quantized to a non-positive value: undo the reservation,
		// there is no resting order or trade to account for.
		w.ledger.OnCanceled(o.Owner, o.ID)
		w.lastAppliedOffset = e.Offset
		return err
	}

	for _, t := range trades {
		w.ledger.OnTrade(t.Taker, t.TakerOrderID, t.Amount, t.Price, t.TakerFee)
		w.ledger.OnTrade(t.Maker, t.MakerOrderID, t.Amount, t.Price, t.MakerFee)
	}

	w.lastAppliedOffset = e.Offset
	w.afterApply(e.Offset)
	return nil
}

func (w *Worker) applyCanceled(e eventlog.Event) error {
	requestor := addressFromRequestor(w.addressOf, e.Requestor)

	entry, err := w.book.Cancel(e.OrderID, requestor, w.adminKey)
	w.lastAppliedOffset = e.Offset
	if err != nil {
		// Not resting: either truly unknown, or already terminal. Either
		// way there is nothing further to mutate; the ledger already
		// reflects the terminal state from the order's original
		// application.
		w.afterApply(e.Offset)
		return nil
	}
	w.ledger.OnCanceled(entry.Owner, entry.OrderID)
	w.afterApply(e.Offset)
	return nil
}

func (w *Worker) applyOrderBookDeleted(e eventlog.Event) error {
	removed := w.book.CancelAll()
	for _, entry := range removed {
		w.ledger.OnCanceled(entry.Owner, entry.OrderID)
	}
	w.lastAppliedOffset = e.Offset
	w.afterApply(e.Offset)
	return nil
}

func (w *Worker) afterApply(offset int64) {
	if w.snapshotInterval == 0 || w.snapshot == nil {
		return
	}
	w.eventsSinceSnap++
	if w.eventsSinceSnap >= w.snapshotInterval {
		if err := w.saveSnapshot(); err != nil {
			w.log.Error("scheduled snapshot failed", zap.Int64("offset", offset), zap.Error(err))
		}
		w.eventsSinceSnap = 0
	}
}

func (w *Worker) saveSnapshot() error {
	return w.snapshot.Save(w.book.Snapshot(w.lastAppliedOffset))
}

// RestoreOrNew loads pair's persisted snapshot from store, if any,
// returning a Book positioned at that snapshot plus the snapshot's
// offset, the last event it reflects; log consumption resumes at the
// next offset. A pair with no persisted snapshot gets a fresh empty
// Book and offset -1 (consume from the log start).
func RestoreOrNew(store *snapshotstore.Store, pair asset.Pair) (*orderbook.Book, int64, error) {
	snap, ok, err := store.Load(pair)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return orderbook.New(pair), eventlog.EndOffsetEmpty, nil
	}
	return orderbook.Restore(snap), snap.Offset, nil
}
