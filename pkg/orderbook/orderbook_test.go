package orderbook

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

var testPair = asset.Pair{AmountAsset: asset.Native, PriceAsset: mustIssued(0x01)}

func mustIssued(b byte) asset.Asset {
	var id [32]byte
	id[0] = b
	return asset.NewIssued(id)
}

func addr(b byte) common.Address {
	var a common.Address
	a[0] = b
	return a
}

func newOrder(id byte, owner common.Address, side order.Side, amount, price, fee uint64) *order.Order {
	o := &order.Order{
		Owner:  owner,
		Pair:   testPair,
		Side:   side,
		Amount: amount,
		Price:  price,
		Fee:    fee,
	}
	o.ID[0] = id
	return o
}

func TestPlace_SimpleCross(t *testing.T) {
	b := New(testPair)
	a := addr(0xA)
	bb := addr(0xB)

	sell := newOrder(1, a, order.Sell, 2000, 500000, 1000)
	if _, resting, err := b.Place(sell, 1, 0); err != nil || resting == nil {
		t.Fatalf("place resting sell: %v", err)
	}

	restingBuy := newOrder(2, bb, order.Buy, 2000, 300000, 1000)
	if _, resting, err := b.Place(restingBuy, 1, 0); err != nil || resting == nil {
		t.Fatalf("place resting buy: %v", err)
	}

	incoming := newOrder(3, bb, order.Buy, 1000, 800000, 400)
	trades, remaining, err := b.Place(incoming, 1, 0)
	if err != nil {
		t.Fatalf("place incoming buy: %v", err)
	}
	if remaining != nil {
		t.Fatalf("expected full fill, got resting remainder %+v", remaining)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.Amount != 1000 || tr.Price != 500000 {
		t.Fatalf("trade = %+v, want (1000, 500000)", tr)
	}

	if p, ok := b.BestPrice(order.Sell); !ok || p != 500000 {
		t.Fatalf("best ask = %v, %v, want 500000", p, ok)
	}
	level := b.askLevels[500000]
	first := level.Entries.Front().Value.(*BookEntry)
	if first.Remaining != 1000 {
		t.Fatalf("resting sell remaining = %d, want 1000", first.Remaining)
	}
	if p, ok := b.BestPrice(order.Buy); !ok || p != 300000 {
		t.Fatalf("best bid = %v, %v, want 300000", p, ok)
	}
}

func TestPlace_PriceTimePriority(t *testing.T) {
	b := New(testPair)
	a := addr(0xA)

	s1 := newOrder(1, a, order.Sell, 1000, 500000, 500)
	s2 := newOrder(2, a, order.Sell, 1000, 500000, 500)
	if _, _, err := b.Place(s1, 1, 1); err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Place(s2, 1, 2); err != nil {
		t.Fatal(err)
	}

	buy := newOrder(3, addr(0xB), order.Buy, 1000, 500000, 500)
	trades, remaining, err := b.Place(buy, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != nil {
		t.Fatalf("expected full fill, got %+v", remaining)
	}
	if len(trades) != 1 || trades[0].MakerOrderID != s1.ID {
		t.Fatalf("expected single trade against t1, got %+v", trades)
	}
	if b.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", b.Depth())
	}
	idx := b.index[s2.ID]
	if idx == nil {
		t.Fatal("t2 should remain indexed")
	}
	if idx.elem != b.askLevels[500000].Entries.Front() {
		t.Fatal("t2 should be at head of its level after t1 fully fills")
	}
}

func TestPlace_PartialCounter(t *testing.T) {
	b := New(testPair)
	sell := newOrder(1, addr(0xA), order.Sell, 2000, 500000, 1000)
	if _, _, err := b.Place(sell, 1, 0); err != nil {
		t.Fatal(err)
	}

	buy := newOrder(2, addr(0xB), order.Buy, 1000, 500000, 500)
	trades, remaining, err := b.Place(buy, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != nil {
		t.Fatalf("incoming buy should fully fill, got %+v", remaining)
	}
	if len(trades) != 1 || trades[0].Amount != 1000 {
		t.Fatalf("trades = %+v", trades)
	}

	entry := b.index[sell.ID].elem.Value.(*BookEntry)
	if entry.Remaining != 1000 {
		t.Fatalf("resting sell remaining = %d, want 1000", entry.Remaining)
	}
	if b.askLevels[500000].Entries.Front().Value.(*BookEntry).OrderID != sell.ID {
		t.Fatal("partially filled order should retain head-of-queue position")
	}
}

func TestCancel_OwnerAndAdmin(t *testing.T) {
	b := New(testPair)
	owner := addr(0xA)
	admin := addr(0xFF)
	o := newOrder(1, owner, order.Buy, 1000, 500000, 500)
	if _, _, err := b.Place(o, 1, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Cancel(o.ID, addr(0xB), admin); err != ErrOrderNotFound {
		t.Fatalf("non-owner, non-admin cancel should fail, got %v", err)
	}
	if b.Depth() != 1 {
		t.Fatal("order should remain after unauthorized cancel attempt")
	}

	entry, err := b.Cancel(o.ID, owner, admin)
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if entry.OrderID != o.ID {
		t.Fatalf("cancelled entry = %+v", entry)
	}
	if b.Depth() != 0 {
		t.Fatal("order should be gone after cancel")
	}

	if _, err := b.Cancel(o.ID, owner, admin); err != ErrOrderNotFound {
		t.Fatalf("second cancel of terminal order should be not-found, got %v", err)
	}
}

func TestCancel_Admin(t *testing.T) {
	b := New(testPair)
	admin := addr(0xFF)
	o := newOrder(1, addr(0xA), order.Sell, 1000, 500000, 500)
	if _, _, err := b.Place(o, 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Cancel(o.ID, admin, admin); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := New(testPair)
	for i := byte(1); i <= 3; i++ {
		o := newOrder(i, addr(i), order.Buy, uint64(i)*100, 500000-uint64(i)*1000, 50)
		if _, _, err := b.Place(o, 1, 0); err != nil {
			t.Fatal(err)
		}
	}
	for i := byte(4); i <= 6; i++ {
		o := newOrder(i, addr(i), order.Sell, uint64(i)*100, 600000+uint64(i)*1000, 50)
		if _, _, err := b.Place(o, 1, 0); err != nil {
			t.Fatal(err)
		}
	}

	snap := b.Snapshot(42)
	wire := Encode(snap)
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Offset != 42 {
		t.Fatalf("offset = %d, want 42", decoded.Offset)
	}

	restored := Restore(decoded)
	if restored.Depth() != b.Depth() {
		t.Fatalf("depth = %d, want %d", restored.Depth(), b.Depth())
	}
	origBid, _ := b.BestPrice(order.Buy)
	restBid, _ := restored.BestPrice(order.Buy)
	if origBid != restBid {
		t.Fatalf("best bid = %d, want %d", restBid, origBid)
	}
	origAsk, _ := b.BestPrice(order.Sell)
	restAsk, _ := restored.BestPrice(order.Sell)
	if origAsk != restAsk {
		t.Fatalf("best ask = %d, want %d", restAsk, origAsk)
	}
}

func TestQuantizePrice(t *testing.T) {
	tests := []struct {
		side  order.Side
		price uint64
		tick  uint64
		want  uint64
	}{
		{order.Buy, 10005, 10, 10000},
		{order.Sell, 10005, 10, 10010},
		{order.Buy, 10000, 10, 10000},
		{order.Sell, 10000, 10, 10000},
	}
	for _, tt := range tests {
		got, err := QuantizePrice(tt.side, tt.price, tt.tick)
		if err != nil {
			t.Fatalf("QuantizePrice(%v, %d, %d): %v", tt.side, tt.price, tt.tick, err)
		}
		if got != tt.want {
			t.Errorf("QuantizePrice(%v, %d, %d) = %d, want %d", tt.side, tt.price, tt.tick, got, tt.want)
		}
	}

	if _, err := QuantizePrice(order.Buy, 5, 10); err != ErrInvalidPrice {
		t.Fatalf("expected ErrInvalidPrice for sub-tick buy price, got %v", err)
	}
}

func TestProRataFee_RoundsUp(t *testing.T) {
	got := proRataFee(3, 1, 2, 3)
	if got != 2 {
		t.Fatalf("proRataFee(3,1,2,3) = %d, want 2 (ceil division)", got)
	}
}

func TestNoRestingCrossInvariant(t *testing.T) {
	b := New(testPair)
	if _, _, err := b.Place(newOrder(1, addr(0xA), order.Buy, 1000, 400000, 100), 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Place(newOrder(2, addr(0xB), order.Sell, 1000, 600000, 100), 1, 0); err != nil {
		t.Fatal(err)
	}
	bid, bidOK := b.BestPrice(order.Buy)
	ask, askOK := b.BestPrice(order.Sell)
	if bidOK && askOK && bid >= ask {
		t.Fatalf("resting cross: bid=%d ask=%d", bid, ask)
	}
}
