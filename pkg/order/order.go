// Package order defines the immutable Order record, its lifecycle
// status, and the self-delimiting wire format shared by the event log
// and snapshot store.
package order

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/lumenex/matcher/pkg/asset"
)

// Side is which side of the book an order rests on.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Version is the order's signed-format version; 1, 2 and 3 are all
// admissible, version 3 adds an explicit fee asset.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
)

// ID is the blake2b256 hash of an order's unsigned payload.
type ID [32]byte

func (id ID) String() string { return fmt.Sprintf("%x", id[:]) }

// IsZero reports whether id is the zero value (used as "no order").
func (id ID) IsZero() bool { return id == ID{} }

// Order is an immutable signed limit order.
type Order struct {
	ID               ID
	SenderPublicKey  [32]byte
	MatcherPublicKey [32]byte
	Owner            common.Address
	Pair             asset.Pair
	Side             Side
	Price            uint64
	Amount           uint64
	Fee              uint64
	FeeAsset         asset.Asset
	Timestamp        int64 // unix millis
	Expiration       int64 // unix millis
	Version          Version
	Signature        []byte
}

// MaxOrderLifetime bounds expiration - timestamp, per the order
// invariant in the data model.
const MaxOrderLifetime = 30 * 24 * time.Hour

// Validate checks the structural invariants every Order must satisfy
// regardless of validator policy: timestamp <= expiration, lifetime
// bound, and that amount*price doesn't overflow a 128-bit accumulator
// (it can't: both are uint64, so the product always fits in 128 bits;
// the check exists so a future widening of either field stays safe).
func (o *Order) Validate(now time.Time) error {
	if o.Timestamp > o.Expiration {
		return fmt.Errorf("order: timestamp %d after expiration %d", o.Timestamp, o.Expiration)
	}
	lifetime := time.Duration(o.Expiration-o.Timestamp) * time.Millisecond
	if lifetime > MaxOrderLifetime {
		return fmt.Errorf("order: lifetime %s exceeds max %s", lifetime, MaxOrderLifetime)
	}
	if o.Amount == 0 {
		return fmt.Errorf("order: amount must be positive")
	}
	if o.Fee == 0 {
		return fmt.Errorf("order: fee must be positive")
	}
	notional, overflow := uint256.NewInt(o.Amount).MulOverflow(uint256.NewInt(o.Amount), uint256.NewInt(o.Price))
	_ = notional
	if overflow {
		return fmt.Errorf("order: amount*price overflows 128-bit accumulator")
	}
	return nil
}

// Notional returns amount*price as a 128-bit-safe accumulator.
func (o *Order) Notional() *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(o.Amount), uint256.NewInt(o.Price))
}

// StatusKind is the sum tag for an order's lifecycle state.
type StatusKind uint8

const (
	Accepted StatusKind = iota
	PartiallyFilled
	Filled
	Cancelled
	NotFound
)

func (k StatusKind) String() string {
	switch k {
	case Accepted:
		return "Accepted"
	case PartiallyFilled:
		return "PartiallyFilled"
	case Filled:
		return "Filled"
	case Cancelled:
		return "Cancelled"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Status is the current lifecycle state of an order plus its
// cumulative fill accounting.
type Status struct {
	Kind         StatusKind
	FilledAmount uint64
	FilledFee    uint64
}

// rank orders statuses for the monotonicity invariant: Accepted ->
// PartiallyFilled -> Filled|Cancelled. NotFound never follows any
// other state (it isn't a state transition at all, just "no record").
var rank = map[StatusKind]int{
	Accepted:        0,
	PartiallyFilled: 1,
	Filled:          2,
	Cancelled:       2,
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic status invariant.
func (s Status) CanTransitionTo(next StatusKind) bool {
	if next == NotFound {
		return false
	}
	if s.Kind == NotFound {
		return next == Accepted
	}
	curRank, curOK := rank[s.Kind]
	nextRank, nextOK := rank[next]
	if !curOK || !nextOK {
		return false
	}
	if s.Kind == Filled || s.Kind == Cancelled {
		return false // terminal
	}
	return nextRank >= curRank
}

// Verifier checks an order's signature against its claimed owner.
// Signature primitives are out of scope for the matcher core; this
// interface is the seam a deployment wires a concrete signer into.
type Verifier interface {
	Verify(o *Order) (ok bool, owner common.Address, err error)
}
