// Package eventlog implements the matcher's append-only, totally
// ordered command queue. Two interchangeable implementations are
// provided: a local Pebble-backed log for single-process deployments,
// and a distributed Kafka-backed log for clustered ones, both behind
// the same Log contract.
package eventlog

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

// Kind tags which variant of QueueEvent a record holds.
type Kind uint8

const (
	KindPlaced Kind = iota + 1
	KindCanceled
	KindOrderBookDeleted
)

// Event is the sum type the log carries: Placed, Canceled, or
// OrderBookDeleted, each tagged with the offset and log-local
// timestamp the log assigned it.
type Event struct {
	Offset    int64
	Timestamp int64
	Kind      Kind

	Order *order.Order // KindPlaced

	Pair      asset.Pair // KindCanceled, KindOrderBookDeleted
	OrderID   order.ID   // KindCanceled
	Requestor [32]byte   // KindCanceled: requestor's public key, or a zero-padded address for internally generated cancels
}

// Placed builds a Placed(order) event, offset/timestamp left zero for
// the log to assign on Append.
func Placed(o *order.Order) Event { return Event{Kind: KindPlaced, Order: o} }

// Canceled builds a Canceled(pair, orderId, requestor) event.
func Canceled(pair asset.Pair, id order.ID, requestor [32]byte) Event {
	return Event{Kind: KindCanceled, Pair: pair, OrderID: id, Requestor: requestor}
}

// OrderBookDeleted builds an OrderBookDeleted(pair) event.
func OrderBookDeleted(pair asset.Pair) Event {
	return Event{Kind: KindOrderBookDeleted, Pair: pair}
}

// EncodePayload serializes the event body (not the offset/timestamp,
// which the log assigns and stores out-of-band as the record key and
// a header): tag byte followed by a type-specific payload. Placed
// carries the full order bytes; Canceled carries pair bytes + 32B
// orderId + 32B requestor; OrderBookDeleted carries only pair bytes.
func EncodePayload(e Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.Kind))
	switch e.Kind {
	case KindPlaced:
		if e.Order == nil {
			return nil, fmt.Errorf("eventlog: Placed event missing order")
		}
		buf.Write(order.Encode(e.Order))
	case KindCanceled:
		buf.Write(e.Pair.Bytes())
		buf.Write(e.OrderID[:])
		buf.Write(e.Requestor[:])
	case KindOrderBookDeleted:
		buf.Write(e.Pair.Bytes())
	default:
		return nil, fmt.Errorf("eventlog: unknown event kind %d", e.Kind)
	}
	return buf.Bytes(), nil
}

// DecodePayload parses the body produced by EncodePayload. offset and
// timestamp are filled in by the caller from the record's storage
// metadata.
func DecodePayload(b []byte, offset, timestamp int64) (Event, error) {
	if len(b) == 0 {
		return Event{}, fmt.Errorf("eventlog: empty payload")
	}
	kind := Kind(b[0])
	body := b[1:]
	e := Event{Offset: offset, Timestamp: timestamp, Kind: kind}

	switch kind {
	case KindPlaced:
		o, err := order.Decode(body)
		if err != nil {
			return Event{}, fmt.Errorf("eventlog: decode placed order: %w", err)
		}
		e.Order = o
	case KindCanceled:
		pair, rest, err := splitPair(body)
		if err != nil {
			return Event{}, fmt.Errorf("eventlog: decode canceled pair: %w", err)
		}
		e.Pair = pair
		if len(rest) != 64 {
			return Event{}, fmt.Errorf("eventlog: canceled event truncated, got %d trailing bytes", len(rest))
		}
		copy(e.OrderID[:], rest[:32])
		copy(e.Requestor[:], rest[32:64])
	case KindOrderBookDeleted:
		pair, rest, err := splitPair(body)
		if err != nil {
			return Event{}, fmt.Errorf("eventlog: decode deleted pair: %w", err)
		}
		if len(rest) != 0 {
			return Event{}, fmt.Errorf("eventlog: trailing bytes after pair")
		}
		e.Pair = pair
	default:
		return Event{}, fmt.Errorf("eventlog: unknown event kind %d", kind)
	}
	return e, nil
}

// splitPair parses a Pair prefix off b and returns the remainder.
// Pair.Bytes is not length-prefixed, so pairByteLen reads each leg's
// flag byte to find where the pair ends (one or 33 bytes per leg).
func splitPair(b []byte) (asset.Pair, []byte, error) {
	n, err := pairByteLen(b)
	if err != nil {
		return asset.Pair{}, nil, err
	}
	pair, err := asset.PairFromBytes(b[:n])
	if err != nil {
		return asset.Pair{}, nil, err
	}
	return pair, b[n:], nil
}

func pairByteLen(b []byte) (int, error) {
	n := 0
	for legs := 0; legs < 2; legs++ {
		if n >= len(b) {
			return 0, fmt.Errorf("eventlog: truncated pair")
		}
		if b[n] == 0 {
			n++
			continue
		}
		n += 33
		if n > len(b) {
			return 0, fmt.Errorf("eventlog: truncated issued asset id")
		}
	}
	return n, nil
}

func offsetKeySuffix(offset int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(offset))
	return b[:]
}
