package orderbook

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

// snapshotMagic/snapshotVersion tag the binary format so the
// snapshot store can reject foreign or stale payloads outright
// instead of misparsing them.
var snapshotMagic = [4]byte{'L', 'X', 'O', 'B'}

const snapshotVersion = 1

// Snapshot is the book's state at a given log offset: the next event
// the book has NOT yet applied is offset+1.
type Snapshot struct {
	Offset    int64
	Pair      asset.Pair
	LastTrade LastTrade
	Bids      []BookEntry // descending price, then FIFO order within a level
	Asks      []BookEntry // ascending price, then FIFO order within a level
}

// Snapshot captures the book's full state as of offset.
func (b *Book) Snapshot(offset int64) Snapshot {
	return Snapshot{
		Offset:    offset,
		Pair:      b.pair,
		LastTrade: b.lastTrade,
		Bids:      b.dumpSide(order.Buy),
		Asks:      b.dumpSide(order.Sell),
	}
}

func (b *Book) dumpSide(side order.Side) []BookEntry {
	var out []BookEntry
	for _, price := range b.prices(side) {
		level := b.levels(side)[price]
		for e := level.Entries.Front(); e != nil; e = e.Next() {
			out = append(out, *e.Value.(*BookEntry))
		}
	}
	return out
}

// Restore rebuilds a Book from a Snapshot, ready to resume consuming
// the log at snapshot.Offset+1. Entries are reinserted in their
// recorded FIFO order, so SequenceNumber values are reassigned but
// priority order is preserved exactly.
func Restore(s Snapshot) *Book {
	b := New(s.Pair)
	b.lastTrade = s.LastTrade
	for _, e := range s.Bids {
		entry := e
		b.insertEntry(&entry)
	}
	for _, e := range s.Asks {
		entry := e
		b.insertEntry(&entry)
	}
	return b
}

// Encode serializes a Snapshot to the self-delimiting binary wire
// format: magic, version, offset, length-prefixed pair, last trade,
// then the bid and ask sides
// each as a level-grouped list: u32 levelCount, then per level a u64
// price, a u32 entryCount, and that many entries in FIFO order.
func Encode(s Snapshot) []byte {
	var buf bytes.Buffer
	buf.Write(snapshotMagic[:])
	buf.WriteByte(snapshotVersion)
	writeI64(&buf, s.Offset)
	writePairFlag(&buf, s.Pair)
	writeLastTrade(&buf, s.LastTrade)
	writeEntries(&buf, s.Bids)
	writeEntries(&buf, s.Asks)
	return buf.Bytes()
}

// Decode parses the format produced by Encode.
func Decode(b []byte) (Snapshot, error) {
	r := bytes.NewReader(b)
	var magic [4]byte
	if _, err := readFullReader(r, magic[:]); err != nil {
		return Snapshot{}, fmt.Errorf("orderbook: truncated magic: %w", err)
	}
	if magic != snapshotMagic {
		return Snapshot{}, fmt.Errorf("orderbook: bad snapshot magic %x", magic)
	}
	version, err := r.ReadByte()
	if err != nil {
		return Snapshot{}, fmt.Errorf("orderbook: truncated version: %w", err)
	}
	if version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("orderbook: unsupported snapshot version %d", version)
	}

	offset, err := readI64Reader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("orderbook: offset: %w", err)
	}
	pair, err := readPairFlag(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("orderbook: pair: %w", err)
	}
	lastTrade, err := readLastTrade(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("orderbook: last trade: %w", err)
	}
	bids, err := readEntries(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("orderbook: bids: %w", err)
	}
	asks, err := readEntries(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("orderbook: asks: %w", err)
	}

	return Snapshot{Offset: offset, Pair: pair, LastTrade: lastTrade, Bids: bids, Asks: asks}, nil
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeU64Snap(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writePairFlag(buf *bytes.Buffer, p asset.Pair) {
	pb := p.Bytes()
	writeU64Snap(buf, uint64(len(pb)))
	buf.Write(pb)
}

func readPairFlag(r *bytes.Reader) (asset.Pair, error) {
	n, err := readU64Reader(r)
	if err != nil {
		return asset.Pair{}, err
	}
	pb := make([]byte, n)
	if _, err := readFullReader(r, pb); err != nil {
		return asset.Pair{}, err
	}
	return asset.PairFromBytes(pb)
}

func writeLastTrade(buf *bytes.Buffer, lt LastTrade) {
	if !lt.Valid {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeU64Snap(buf, lt.Price)
	writeU64Snap(buf, lt.Amount)
	buf.WriteByte(byte(lt.Side))
}

func readLastTrade(r *bytes.Reader) (LastTrade, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return LastTrade{}, err
	}
	if flag == 0 {
		return LastTrade{}, nil
	}
	price, err := readU64Reader(r)
	if err != nil {
		return LastTrade{}, err
	}
	amount, err := readU64Reader(r)
	if err != nil {
		return LastTrade{}, err
	}
	sideByte, err := r.ReadByte()
	if err != nil {
		return LastTrade{}, err
	}
	return LastTrade{Valid: true, Price: price, Amount: amount, Side: order.Side(sideByte)}, nil
}

// writeEntries groups entries into price levels, since they arrive
// already sorted by price then FIFO order within a level: u32
// levelCount, then per level a u64 price, a u32 entryCount, and that
// many entries. Per-entry payload carries more than the minimal
// (id, remaining, remainingFee) triple so a restored book recovers
// owner and original-size bookkeeping without a side channel; see
// DESIGN.md.
func writeEntries(buf *bytes.Buffer, entries []BookEntry) {
	levelCountPos := buf.Len()
	buf.Write(make([]byte, 4)) // levelCount placeholder, patched below
	levelCount := uint32(0)

	i := 0
	for i < len(entries) {
		price := entries[i].Price
		j := i
		for j < len(entries) && entries[j].Price == price {
			j++
		}
		writeU64Snap(buf, price)
		writeU32Snap(buf, uint32(j-i))
		for _, e := range entries[i:j] {
			buf.Write(e.OrderID[:])
			buf.Write(e.Owner[:])
			buf.WriteByte(byte(e.Side))
			writeU64Snap(buf, e.OriginalAmount)
			writeU64Snap(buf, e.OriginalFee)
			writeU64Snap(buf, e.Remaining)
			writeU64Snap(buf, e.RemainingFee)
			writeU64Snap(buf, e.SequenceNumber)
		}
		levelCount++
		i = j
	}

	out := buf.Bytes()
	binary.BigEndian.PutUint32(out[levelCountPos:], levelCount)
}

func readEntries(r *bytes.Reader) ([]BookEntry, error) {
	levelCount, err := readU32Reader(r)
	if err != nil {
		return nil, err
	}
	var out []BookEntry
	for l := uint32(0); l < levelCount; l++ {
		price, err := readU64Reader(r)
		if err != nil {
			return nil, err
		}
		entryCount, err := readU32Reader(r)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < entryCount; i++ {
			var e BookEntry
			e.Price = price
			if _, err := readFullReader(r, e.OrderID[:]); err != nil {
				return nil, err
			}
			var owner common.Address
			if _, err := readFullReader(r, owner[:]); err != nil {
				return nil, err
			}
			e.Owner = owner
			sideByte, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			e.Side = order.Side(sideByte)
			if e.OriginalAmount, err = readU64Reader(r); err != nil {
				return nil, err
			}
			if e.OriginalFee, err = readU64Reader(r); err != nil {
				return nil, err
			}
			if e.Remaining, err = readU64Reader(r); err != nil {
				return nil, err
			}
			if e.RemainingFee, err = readU64Reader(r); err != nil {
				return nil, err
			}
			if e.SequenceNumber, err = readU64Reader(r); err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func writeU32Snap(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32Reader(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFullReader(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readFullReader(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := r.Read(b[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func readU64Reader(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFullReader(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readI64Reader(r *bytes.Reader) (int64, error) {
	v, err := readU64Reader(r)
	return int64(v), err
}
