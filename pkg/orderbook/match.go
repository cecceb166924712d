package orderbook

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/lumenex/matcher/pkg/order"
)

// QuantizePrice rounds price to the active tick per side: buy rounds
// down, sell rounds up. It returns ErrInvalidPrice if the result is
// non-positive.
func QuantizePrice(side order.Side, price, tick uint64) (uint64, error) {
	if tick == 0 {
		tick = 1
	}
	var q uint64
	if side == order.Buy {
		q = price - price%tick
	} else {
		rem := price % tick
		if rem == 0 {
			q = price
		} else {
			q = price + (tick - rem)
		}
	}
	if q == 0 {
		return 0, ErrInvalidPrice
	}
	return q, nil
}

// crosses reports whether an incoming order at incomingPrice crosses a
// resting top-of-book at topPrice.
func crosses(side order.Side, incomingPrice, topPrice uint64) bool {
	if side == order.Buy {
		return incomingPrice >= topPrice
	}
	return incomingPrice <= topPrice
}

// Place applies a Placed(order) event: quantizes the price to tick,
// matches against the opposite side while crossing, and rests any
// remainder at the incoming order's price level. It returns every
// Trade produced and the resting BookEntry if any quantity remained
// (nil if the order filled completely).
func (b *Book) Place(o *order.Order, tick uint64, now int64) ([]Trade, *BookEntry, error) {
	price, err := QuantizePrice(o.Side, o.Price, tick)
	if err != nil {
		return nil, nil, err
	}

	remaining := o.Amount
	remainingFee := o.Fee
	var trades []Trade

	opp := o.Side.Opposite()
	for remaining > 0 {
		topPrice, ok := b.BestPrice(opp)
		if !ok || !crosses(o.Side, price, topPrice) {
			break
		}
		level := b.levels(opp)[topPrice]
		front := level.Entries.Front()
		if front == nil {
			b.removeLevel(opp, topPrice)
			continue
		}
		counter := front.Value.(*BookEntry)

		execAmount := min64(remaining, counter.Remaining)
		execPrice := counter.Price

		execFeeIncoming := proRataFee(o.Fee, execAmount, o.Amount, remainingFee)
		execFeeCounter := proRataFee(counter.OriginalFee, execAmount, counter.OriginalAmount, counter.RemainingFee)

		trades = append(trades, Trade{
			TakerOrderID: o.ID,
			MakerOrderID: counter.OrderID,
			Taker:        o.Owner,
			Maker:        counter.Owner,
			Amount:       execAmount,
			Price:        execPrice,
			TakerFee:     execFeeIncoming,
			MakerFee:     execFeeCounter,
			Timestamp:    now,
		})

		remaining -= execAmount
		remainingFee -= execFeeIncoming
		counter.Remaining -= execAmount
		counter.RemainingFee -= execFeeCounter

		b.lastTrade = LastTrade{Valid: true, Price: execPrice, Amount: execAmount, Side: o.Side}

		if counter.Remaining == 0 {
			b.removeEntry(counter.OrderID)
		}
		// A partially filled counter keeps its place at the front of
		// the FIFO: it already sat there before the fill and a partial
		// fill never forfeits price-time priority.

		if level.Entries.Len() == 0 {
			b.removeLevel(opp, topPrice)
		}
	}

	if remaining == 0 {
		return trades, nil, nil
	}

	entry := &BookEntry{
		OrderID:        o.ID,
		Owner:          o.Owner,
		Side:           o.Side,
		Price:          price,
		OriginalAmount: o.Amount,
		OriginalFee:    o.Fee,
		Remaining:      remaining,
		RemainingFee:   remainingFee,
	}
	b.insertEntry(entry)
	return trades, entry, nil
}

// proRataFee computes ceil(fee * execAmount / totalAmount), capped at
// the order's remaining fee, using a 128-bit-safe accumulator so the
// product never overflows even at the full uint64 range of fee and
// execAmount.
func proRataFee(fee, execAmount, totalAmount, remainingFee uint64) uint64 {
	if totalAmount == 0 {
		return 0
	}
	num := new(uint256.Int).Mul(uint256.NewInt(fee), uint256.NewInt(execAmount))
	denom := uint256.NewInt(totalAmount)
	quot, rem := new(uint256.Int).DivMod(num, denom, new(uint256.Int))
	if !rem.IsZero() {
		quot.AddUint64(quot, 1)
	}
	result := quot.Uint64()
	if result > remainingFee {
		result = remainingFee
	}
	return result
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// insertEntry appends entry to the tail of its price level's FIFO,
// creating the level if needed, and indexes it for O(log N) lookup.
func (b *Book) insertEntry(e *BookEntry) {
	levels := b.levels(e.Side)
	level, ok := levels[e.Price]
	if !ok {
		level = newLevel(e.Price)
		levels[e.Price] = level
		b.insertLevelPrice(e.Side, e.Price)
	}
	b.seq++
	e.SequenceNumber = b.seq
	elem := level.Entries.PushBack(e)
	b.index[e.OrderID] = &indexEntry{side: e.Side, price: e.Price, elem: elem}
}

// removeEntry removes an order from its level's FIFO and the index,
// dropping the level entirely if it becomes empty.
func (b *Book) removeEntry(id order.ID) *BookEntry {
	idx, ok := b.index[id]
	if !ok {
		return nil
	}
	levels := b.levels(idx.side)
	level := levels[idx.price]
	entry := idx.elem.Value.(*BookEntry)
	level.Entries.Remove(idx.elem)
	delete(b.index, id)
	if level.Entries.Len() == 0 {
		b.removeLevel(idx.side, idx.price)
	}
	return entry
}

func (b *Book) removeLevel(side order.Side, price uint64) {
	delete(b.levels(side), price)
	prices := b.prices(side)
	i := sort.Search(len(prices), func(i int) bool { return lessOrEqual(side, prices[i], price) })
	if i < len(prices) && prices[i] == price {
		b.setPrices(side, append(prices[:i], prices[i+1:]...))
	}
}

func (b *Book) insertLevelPrice(side order.Side, price uint64) {
	prices := b.prices(side)
	i := sort.Search(len(prices), func(i int) bool { return lessOrEqual(side, prices[i], price) })
	prices = append(prices, 0)
	copy(prices[i+1:], prices[i:])
	prices[i] = price
	b.setPrices(side, prices)
}

// lessOrEqual orders bid prices descending and ask prices ascending,
// so prices[0] is always the best (top of book) price for that side.
func lessOrEqual(side order.Side, a, b uint64) bool {
	if side == order.Buy {
		return a <= b
	}
	return a >= b
}
