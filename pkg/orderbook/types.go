// Package orderbook implements the price-time priority limit order book:
// price-level buckets on each side, FIFO within a level, an order index
// for O(log N) cancellation, the match loop, and snapshot/restore.
package orderbook

import (
	"container/list"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

// ErrOrderNotFound is returned by Cancel when the order isn't resting
// in this book (it may never have existed, or may already be terminal
// — the caller, which has access to the address ledger's history,
// is responsible for telling those two cases apart).
var ErrOrderNotFound = errors.New("orderbook: order not found")

// ErrInvalidPrice is returned when quantization rounds a price to a
// non-positive value.
var ErrInvalidPrice = errors.New("orderbook: quantized price is non-positive")

// BookEntry is a resting order at a price level.
type BookEntry struct {
	OrderID        order.ID
	Owner          common.Address
	Side           order.Side
	Price          uint64
	OriginalAmount uint64
	OriginalFee    uint64
	Remaining      uint64
	RemainingFee   uint64
	SequenceNumber uint64 // insertion order, for deterministic snapshot round-trips
}

// PriceLevel is a FIFO queue of entries resting at one price.
type PriceLevel struct {
	Price   uint64
	Entries *list.List // of *BookEntry, front = oldest = first in FIFO
}

func newLevel(price uint64) *PriceLevel {
	return &PriceLevel{Price: price, Entries: list.New()}
}

type indexEntry struct {
	side  order.Side
	price uint64
	elem  *list.Element
}

// Trade is the result of matching one unit of incoming order flow
// against a single resting counter-order.
type Trade struct {
	TakerOrderID order.ID
	MakerOrderID order.ID
	Taker        common.Address
	Maker        common.Address
	Amount       uint64
	Price        uint64
	TakerFee     uint64
	MakerFee     uint64
	Timestamp    int64
}

// OptionalPrice models an Option<price>.
type OptionalPrice struct {
	Valid bool
	Price uint64
}

// LastTrade models the Option<(price, amount, side)> in MarketStatus.
type LastTrade struct {
	Valid  bool
	Price  uint64
	Amount uint64
	Side   order.Side
}

// MarketStatus summarizes the book's dealing state.
type MarketStatus struct {
	LastTrade LastTrade
	BestBid   OptionalPrice
	BestAsk   OptionalPrice
}

// Book is the per-pair price-time priority order book. It is NOT
// safe for concurrent use; the OrderBookWorker is the single owner
// that serializes access per the concurrency model.
type Book struct {
	pair asset.Pair

	bidLevels map[uint64]*PriceLevel
	askLevels map[uint64]*PriceLevel
	bidPrices []uint64 // descending
	askPrices []uint64 // ascending

	index map[order.ID]*indexEntry

	lastTrade LastTrade
	seq       uint64
}

// New creates an empty book for pair.
func New(pair asset.Pair) *Book {
	return &Book{
		pair:      pair,
		bidLevels: make(map[uint64]*PriceLevel),
		askLevels: make(map[uint64]*PriceLevel),
		index:     make(map[order.ID]*indexEntry),
	}
}

// Pair returns the book's identity.
func (b *Book) Pair() asset.Pair { return b.pair }

func (b *Book) levels(side order.Side) map[uint64]*PriceLevel {
	if side == order.Buy {
		return b.bidLevels
	}
	return b.askLevels
}

func (b *Book) prices(side order.Side) []uint64 {
	if side == order.Buy {
		return b.bidPrices
	}
	return b.askPrices
}

func (b *Book) setPrices(side order.Side, p []uint64) {
	if side == order.Buy {
		b.bidPrices = p
	} else {
		b.askPrices = p
	}
}

// BestPrice returns the best (highest bid / lowest ask) price on side.
func (b *Book) BestPrice(side order.Side) (uint64, bool) {
	p := b.prices(side)
	if len(p) == 0 {
		return 0, false
	}
	return p[0], true
}

// Status returns the book's current MarketStatus.
func (b *Book) Status() MarketStatus {
	ms := MarketStatus{LastTrade: b.lastTrade}
	if p, ok := b.BestPrice(order.Buy); ok {
		ms.BestBid = OptionalPrice{Valid: true, Price: p}
	}
	if p, ok := b.BestPrice(order.Sell); ok {
		ms.BestAsk = OptionalPrice{Valid: true, Price: p}
	}
	return ms
}

// Depth returns the number of resting orders across both sides, for
// diagnostics and tests.
func (b *Book) Depth() int { return len(b.index) }
