// Package ledger tracks, per trader address, reserved balances and
// order status as a pure projection of the event log plus external
// balance-change notifications. It never reads or writes an order
// book directly; workers notify it of trades and cancellations after
// their book mutation has already committed.
package ledger

import (
	"container/list"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

// OrderInfo is the ledger's per-order bookkeeping record.
type OrderInfo struct {
	OrderID        order.ID
	Pair           asset.Pair
	Side           order.Side
	LimitPrice     uint64 // the order's own limit price, for exact buy-side release accounting
	Remaining      uint64
	RemainingFee   uint64
	ReservedAsset  asset.Asset
	ReservedAmount uint64 // of ReservedAsset still reserved, excluding fee
	FeeAsset       asset.Asset
	Status         order.StatusKind
	FilledAmount   uint64
	FilledFee      uint64
	PlacedAtOffset int64
}

// CancelRequest is what the auto-cancel cascade hands back to its
// caller: a Cancel event to be enqueued into the log, not applied
// locally. Applying it directly would bypass per-pair ordering.
type CancelRequest struct {
	Pair      asset.Pair
	OrderID   order.ID
	Requestor common.Address
}

// AddressState is one trader's reserved balances, active orders, and
// bounded terminal history.
type AddressState struct {
	Reserved       map[asset.Asset]*uint256.Int
	Active         map[order.ID]*OrderInfo
	historyCap     int
	history        *list.List // of *OrderInfo, front = oldest
	placementOrder []order.ID // LIFO cancellation order, append-only
}

func newAddressState(historyCap int) *AddressState {
	return &AddressState{
		Reserved:   make(map[asset.Asset]*uint256.Int),
		Active:     make(map[order.ID]*OrderInfo),
		historyCap: historyCap,
		history:    list.New(),
	}
}

func (s *AddressState) reserve(a asset.Asset, amount uint64) {
	cur, ok := s.Reserved[a]
	if !ok {
		cur = new(uint256.Int)
		s.Reserved[a] = cur
	}
	cur.Add(cur, uint256.NewInt(amount))
}

func (s *AddressState) release(a asset.Asset, amount uint64) {
	cur, ok := s.Reserved[a]
	if !ok {
		return
	}
	dec := uint256.NewInt(amount)
	if cur.Lt(dec) {
		cur.Clear()
		return
	}
	cur.Sub(cur, dec)
}

func (s *AddressState) moveToHistory(info *OrderInfo) {
	delete(s.Active, info.OrderID)
	s.history.PushBack(info)
	for s.historyCap > 0 && s.history.Len() > s.historyCap {
		s.history.Remove(s.history.Front())
	}
}

// Ledger is the full per-address projection, kept in one map: the
// spec's "single-threaded per address" requirement is enforced by the
// caller serializing calls per address (the worker/orchestrator
// wiring). A trader active on more than one pair simultaneously still
// needs cross-pair serialization, which this type provides with a
// mutex that stays uncontended in the common case of one worker
// touching one address at a time.
type Ledger struct {
	mu         sync.Mutex
	historyCap int
	states     map[common.Address]*AddressState
}

// New builds an empty Ledger. historyCap bounds each address's
// terminal-order FIFO; 0 means unbounded.
func New(historyCap int) *Ledger {
	return &Ledger{historyCap: historyCap, states: make(map[common.Address]*AddressState)}
}

func (l *Ledger) stateFor(addr common.Address) *AddressState {
	s, ok := l.states[addr]
	if !ok {
		s = newAddressState(l.historyCap)
		l.states[addr] = s
	}
	return s
}

// Reserved returns addr's current reservation of a, or zero.
func (l *Ledger) Reserved(addr common.Address, a asset.Asset) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[addr]
	if !ok {
		return new(uint256.Int)
	}
	v, ok := s.Reserved[a]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// Status returns addr's view of orderID, or NotFound if unknown.
func (l *Ledger) Status(addr common.Address, id order.ID) order.StatusKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[addr]
	if !ok {
		return order.NotFound
	}
	if info, ok := s.Active[id]; ok {
		return info.Status
	}
	for e := s.history.Front(); e != nil; e = e.Next() {
		if info := e.Value.(*OrderInfo); info.OrderID == id {
			return info.Status
		}
	}
	return order.NotFound
}

// spentAsset/spentAmount is the asset and quantity a fresh order
// reserves besides its fee: price-asset notional for a buy, amount-
// asset quantity for a sell.
func spentLeg(o *order.Order) (asset.Asset, uint64) {
	if o.Side == order.Buy {
		return o.Pair.PriceAsset, o.Notional().Uint64()
	}
	return o.Pair.AmountAsset, o.Amount
}

// OnPlaced records a newly admitted order's reservation and active
// entry, at the given log offset.
func (l *Ledger) OnPlaced(o *order.Order, offset int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateFor(o.Owner)
	spentAsset, spentAmount := spentLeg(o)

	s.reserve(spentAsset, spentAmount)
	s.reserve(o.FeeAsset, o.Fee)

	info := &OrderInfo{
		OrderID:        o.ID,
		Pair:           o.Pair,
		Side:           o.Side,
		LimitPrice:     o.Price,
		Remaining:      o.Amount,
		RemainingFee:   o.Fee,
		ReservedAsset:  spentAsset,
		ReservedAmount: spentAmount,
		FeeAsset:       o.FeeAsset,
		Status:         order.Accepted,
		PlacedAtOffset: offset,
	}
	s.Active[o.ID] = info
	s.placementOrder = append(s.placementOrder, o.ID)
}

// OnTrade applies one side of a trade: decrements remaining, releases
// the consumed reservation, and moves the order to terminal history
// if it just filled.
func (l *Ledger) OnTrade(owner common.Address, id order.ID, execAmount, execPrice, execFee uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateFor(owner)
	info, ok := s.Active[id]
	if !ok {
		return // already terminal; at-most-once application
	}

	// Release by the order's own limit price, not the trade's execution
	// price: a buy routinely fills at a better (lower) price than its
	// limit, and releasing at execPrice would leave part of the
	// reservation stranded once the order reaches Remaining == 0 and
	// moves to history, where it can never be released again.
	var consumedSpent uint64
	if info.Side == order.Buy {
		consumedSpent = new(uint256.Int).Mul(uint256.NewInt(execAmount), uint256.NewInt(info.LimitPrice)).Uint64()
	} else {
		consumedSpent = execAmount
	}
	s.release(info.ReservedAsset, consumedSpent)
	s.release(info.FeeAsset, execFee)
	info.ReservedAmount -= consumedSpent

	info.Remaining -= execAmount
	info.RemainingFee -= execFee
	info.FilledAmount += execAmount
	info.FilledFee += execFee

	if info.Remaining == 0 {
		info.Status = order.Filled
		s.moveToHistory(info)
	} else {
		info.Status = order.PartiallyFilled
	}
}

// OnCanceled releases an order's remaining reservation and moves it
// to terminal history with status Cancelled. Applying this twice for
// the same order is a no-op (idempotent), matching cancel idempotence.
func (l *Ledger) OnCanceled(owner common.Address, id order.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateFor(owner)
	info, ok := s.Active[id]
	if !ok {
		return
	}
	s.release(info.ReservedAsset, info.ReservedAmount)
	s.release(info.FeeAsset, info.RemainingFee)
	info.Status = order.Cancelled
	s.moveToHistory(info)
}

// OnBalanceChanged runs the auto-cancel cascade when a trader's
// spendable balance of a drops below their current reservation: it
// selects the youngest orders reserving a (LIFO by placement offset)
// and returns them as CancelRequests to be enqueued into the log,
// not applied directly, so they pass through the normal ordered path.
func (l *Ledger) OnBalanceChanged(owner common.Address, a asset.Asset, newSpendable *uint256.Int) []CancelRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[owner]
	if !ok {
		return nil
	}
	reserved, ok := s.Reserved[a]
	if !ok || !reserved.Gt(newSpendable) {
		return nil
	}

	var toCancel []CancelRequest
	deficit := new(uint256.Int).Sub(reserved, newSpendable)
	for i := len(s.placementOrder) - 1; i >= 0 && deficit.Sign() > 0; i-- {
		id := s.placementOrder[i]
		info, ok := s.Active[id]
		if !ok {
			continue
		}
		var held uint64
		if info.ReservedAsset == a {
			held += info.ReservedAmount
		}
		if info.FeeAsset == a {
			held += info.RemainingFee
		}
		if held == 0 {
			continue
		}
		toCancel = append(toCancel, CancelRequest{Pair: info.Pair, OrderID: id, Requestor: owner})
		heldInt := uint256.NewInt(held)
		if deficit.Lt(heldInt) {
			deficit.Clear()
		} else {
			deficit.Sub(deficit, heldInt)
		}
	}
	return toCancel
}
