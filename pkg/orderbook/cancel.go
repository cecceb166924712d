package orderbook

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/lumenex/matcher/pkg/order"
)

// Cancel removes a resting order from the book. requestor must either
// be the order's owner or equal adminKey for the cancellation to be
// authorized; admins can always cancel (see the admin-cancel-always
// default). It returns ErrOrderNotFound when the order isn't resting
// here, leaving the not-found/already-terminal distinction to the
// caller's order history.
func (b *Book) Cancel(id order.ID, requestor, adminKey common.Address) (*BookEntry, error) {
	idx, ok := b.index[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	entry := idx.elem.Value.(*BookEntry)
	if entry.Owner != requestor && requestor != adminKey {
		return nil, ErrOrderNotFound
	}
	return b.removeEntry(id), nil
}

// CancelAll removes every resting order on the book, bids first from
// the highest price down, then asks from the lowest price up, FIFO
// within each level. It is used when a pair's book is deleted:
// every resting order gets cancelled before the book itself goes away.
func (b *Book) CancelAll() []*BookEntry {
	var removed []*BookEntry
	for _, side := range []order.Side{order.Buy, order.Sell} {
		for _, price := range append([]uint64(nil), b.prices(side)...) {
			level := b.levels(side)[price]
			for e := level.Entries.Front(); e != nil; e = e.Next() {
				removed = append(removed, e.Value.(*BookEntry))
			}
		}
	}
	for _, entry := range removed {
		delete(b.index, entry.OrderID)
	}
	b.bidLevels = make(map[uint64]*PriceLevel)
	b.askLevels = make(map[uint64]*PriceLevel)
	b.bidPrices = nil
	b.askPrices = nil
	return removed
}
