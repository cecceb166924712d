// Package orchestrator implements the MatcherOrchestrator: the single
// consumer of the event log that demultiplexes events to one
// OrderBookWorker per pair, drives the Starting -> Working -> Stopping
// status machine, and owns the graceful shutdown sequence.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/config"
	"github.com/lumenex/matcher/pkg/eventlog"
	"github.com/lumenex/matcher/pkg/ledger"
	"github.com/lumenex/matcher/pkg/matchererr"
	"github.com/lumenex/matcher/pkg/matchingrules"
	"github.com/lumenex/matcher/pkg/orderbook"
	"github.com/lumenex/matcher/pkg/snapshotstore"
	"github.com/lumenex/matcher/pkg/worker"
)

// Status is the orchestrator's one-way state machine.
type Status int

const (
	Starting Status = iota
	Working
	Stopping
)

func (s Status) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Working:
		return "Working"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// GracefulStop is the default shutdown deadline: exceeding it skips
// the final snapshot and relies on the next startup's replay.
const GracefulStop = 5 * time.Minute

// Orchestrator routes log events to per-pair workers and tracks the
// matcher's overall lifecycle status.
type Orchestrator struct {
	cfg   config.Config
	log   eventlog.Log
	store *snapshotstore.Store
	ldg   *ledger.Ledger
	rules *matchingrules.Registry
	zl    *zap.Logger

	adminKey  worker.AdminKey
	addressOf worker.AddressOf

	mu       sync.RWMutex
	status   Status
	workers  map[asset.Pair]*worker.Worker
	cancels  map[asset.Pair]context.CancelFunc
	runGroup *errgroup.Group
}

// Config bundles an Orchestrator's dependencies.
type Config struct {
	Cfg           config.Config
	Log           eventlog.Log
	SnapshotStore *snapshotstore.Store
	Ledger        *ledger.Ledger
	Rules         *matchingrules.Registry
	Logger        *zap.Logger
	AdminKey      worker.AdminKey
	AddressOf     worker.AddressOf
}

// New builds an Orchestrator in the Starting state. Call Run to begin
// recovering workers and consuming the log.
func New(c Config) *Orchestrator {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       c.Cfg,
		log:       c.Log,
		store:     c.SnapshotStore,
		ldg:       c.Ledger,
		rules:     c.Rules,
		zl:        logger,
		adminKey:  c.AdminKey,
		addressOf: c.AddressOf,
		status:    Starting,
		workers:   make(map[asset.Pair]*worker.Worker),
		cancels:   make(map[asset.Pair]context.CancelFunc),
	}
}

// Status returns the orchestrator's current lifecycle state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

// Run recovers every known pair's worker, catches up to the log's
// current end, transitions to Working, then consumes the log
// indefinitely until ctx is cancelled. It blocks until shutdown
// completes or a startup deadline is exceeded.
func (o *Orchestrator) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	o.runGroup = group

	startOffset, err := o.recoverWorkers(ctx, group, gctx)
	if err != nil {
		return matchererr.FatalStartup(err, "recover workers")
	}

	if err := o.catchUp(ctx, startOffset); err != nil {
		return matchererr.FatalStartup(err, "catch up to log end before accepting traffic")
	}

	o.setStatus(Working)
	o.zl.Info("orchestrator working", zap.Int("pairs", len(o.workers)))

	consumeErr := o.consume(gctx, startOffset)

	o.setStatus(Stopping)
	o.zl.Info("orchestrator stopping")
	o.shutdownWorkers()

	if consumeErr != nil && ctx.Err() == nil {
		return consumeErr
	}
	return group.Wait()
}

// recoverWorkers restores (or creates) a Book per known pair and
// spawns its Worker, bounded by SnapshotsLoadingTimeout. It returns
// the oldest snapshot offset across all pairs; log consumption starts
// right after it so no pair misses an event.
func (o *Orchestrator) recoverWorkers(parent context.Context, group *errgroup.Group, gctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(parent, o.cfg.SnapshotsLoadingTimeout)
	defer cancel()

	pairs, err := o.discoverPairs()
	if err != nil {
		return 0, err
	}

	startOffset := eventlog.EndOffsetEmpty
	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		book, offset, err := worker.RestoreOrNew(o.store, pair)
		if err != nil {
			return 0, err
		}
		if startOffset == eventlog.EndOffsetEmpty || offset < startOffset {
			startOffset = offset
		}

		w := worker.New(worker.Config{
			Book:             book,
			Rules:            o.rules,
			Ledger:           o.ldg,
			SnapshotStore:    o.store,
			Logger:           o.zl.With(zap.String("pair", pair.String())),
			SnapshotInterval: o.cfg.SnapshotsInterval,
			AdminKey:         o.adminKey,
			AddressOf:        o.addressOf,
			LastOffset:       offset,
		})

		workerCtx, workerCancel := context.WithCancel(gctx)
		o.mu.Lock()
		o.workers[pair] = w
		o.cancels[pair] = workerCancel
		o.mu.Unlock()

		group.Go(func() error {
			w.Run(workerCtx)
			return nil
		})
	}
	return startOffset, nil
}

func (o *Orchestrator) discoverPairs() ([]asset.Pair, error) {
	known, err := o.store.KnownPairs()
	if err != nil {
		return nil, err
	}
	seen := make(map[asset.Pair]struct{}, len(known))
	pairs := append([]asset.Pair(nil), known...)
	for _, p := range pairs {
		seen[p] = struct{}{}
	}
	for _, p := range o.rules.Pairs() {
		if _, ok := seen[p]; !ok {
			pairs = append(pairs, p)
			seen[p] = struct{}{}
		}
	}
	return pairs, nil
}

// catchUp consumes the log from startOffset+1 until it reaches the
// end offset observed at call time, bounded by
// StartEventsProcessingTimeout. Events arriving after that point are
// handled by the steady-state consume loop once Working begins.
func (o *Orchestrator) catchUp(parent context.Context, startOffset int64) error {
	ctx, cancel := context.WithTimeout(parent, o.cfg.StartEventsProcessingTimeout)
	defer cancel()

	target, err := o.log.EndOffset(ctx)
	if err != nil {
		return err
	}
	if target == eventlog.EndOffsetEmpty || target <= startOffset {
		return nil
	}

	batches, err := o.log.Tail(ctx, startOffset+1, 256, 10)
	if err != nil {
		return err
	}
	for batch := range batches {
		for _, e := range batch.Events {
			if err := o.dispatch(ctx, e); err != nil {
				return err
			}
			if e.Offset >= target {
				return nil
			}
		}
	}
	return ctx.Err()
}

// consume drives the steady-state tail loop after Working begins,
// batching with the 10ms window the backpressure model calls for.
func (o *Orchestrator) consume(ctx context.Context, startOffset int64) error {
	batches, err := o.log.Tail(ctx, startOffset+1, 256, 10)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			for _, e := range batch.Events {
				if err := o.dispatch(ctx, e); err != nil && ctx.Err() == nil {
					o.zl.Error("dispatch failed", zap.Int64("offset", e.Offset), zap.Error(err))
				}
			}
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, e eventlog.Event) error {
	pair := o.pairOf(e)
	o.mu.RLock()
	w, ok := o.workers[pair]
	o.mu.RUnlock()
	if !ok {
		w = o.spawnUnknownPair(ctx, pair)
	}
	return w.Submit(ctx, e)
}

func (o *Orchestrator) pairOf(e eventlog.Event) asset.Pair {
	if e.Kind == eventlog.KindPlaced {
		return e.Order.Pair
	}
	return e.Pair
}

// spawnUnknownPair lazily starts a worker for a pair with no prior
// snapshot and no configured schedule: the first order ever placed
// on it.
func (o *Orchestrator) spawnUnknownPair(ctx context.Context, pair asset.Pair) *worker.Worker {
	o.mu.Lock()
	defer o.mu.Unlock()
	if w, ok := o.workers[pair]; ok {
		return w
	}
	w := worker.New(worker.Config{
		Book:             orderbook.New(pair),
		Rules:            o.rules,
		Ledger:           o.ldg,
		SnapshotStore:    o.store,
		Logger:           o.zl.With(zap.String("pair", pair.String())),
		SnapshotInterval: o.cfg.SnapshotsInterval,
		AdminKey:         o.adminKey,
		AddressOf:        o.addressOf,
		LastOffset:       eventlog.EndOffsetEmpty,
	})
	workerCtx, cancel := context.WithCancel(ctx)
	o.workers[pair] = w
	o.cancels[pair] = cancel
	o.runGroup.Go(func() error {
		w.Run(workerCtx)
		return nil
	})
	return w
}

// PingAll probes every worker's liveness, each bounded by
// 2*ProcessConsumedTimeout. A miss is logged, not escalated: the spec
// treats PingAll as advisory, not a circuit breaker.
func (o *Orchestrator) PingAll(ctx context.Context) {
	o.mu.RLock()
	workers := make(map[asset.Pair]*worker.Worker, len(o.workers))
	for p, w := range o.workers {
		workers[p] = w
	}
	o.mu.RUnlock()

	timeout := 2 * o.cfg.ProcessConsumedTimeout
	for pair, w := range workers {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := w.Ping(pingCtx)
		cancel()
		if err != nil {
			o.zl.Warn("pingAll miss", zap.String("pair", pair.String()), zap.Error(err))
		}
	}
}

// shutdownWorkers cancels every worker's context, letting each persist
// its final snapshot, bounded overall by GracefulStop.
func (o *Orchestrator) shutdownWorkers() {
	done := make(chan struct{})
	go func() {
		o.mu.RLock()
		cancels := make([]context.CancelFunc, 0, len(o.cancels))
		for _, c := range o.cancels {
			cancels = append(cancels, c)
		}
		o.mu.RUnlock()
		for _, c := range cancels {
			c()
		}
		_ = o.runGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(GracefulStop):
		o.zl.Warn("graceful stop deadline exceeded; terminating without final snapshot guarantee")
	}
}
