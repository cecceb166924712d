// Package asset defines the asset and asset-pair identifiers the matcher
// books and ledgers are keyed by.
package asset

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// Asset is either the chain's native asset (zero value) or an issued
// asset identified by a 32-byte content hash.
type Asset struct {
	issued bool
	id     [32]byte
}

// Native is the zero-value native asset (e.g. WAVES, ETH).
var Native = Asset{}

// NewIssued builds an issued asset from its 32-byte content hash.
func NewIssued(id [32]byte) Asset {
	return Asset{issued: true, id: id}
}

// IssuedFromBytes validates and wraps a 32-byte issued asset id.
func IssuedFromBytes(b []byte) (Asset, error) {
	if len(b) != 32 {
		return Asset{}, fmt.Errorf("asset: issued id must be 32 bytes, got %d", len(b))
	}
	var id [32]byte
	copy(id[:], b)
	return NewIssued(id), nil
}

// IsNative reports whether a is the chain's native asset.
func (a Asset) IsNative() bool { return !a.issued }

// Bytes returns the 32-byte id for an issued asset, or nil for native.
func (a Asset) Bytes() []byte {
	if !a.issued {
		return nil
	}
	out := make([]byte, 32)
	copy(out, a.id[:])
	return out
}

func (a Asset) String() string {
	if !a.issued {
		return "WAVES"
	}
	return hex.EncodeToString(a.id[:])
}

// Compare implements the canonical asset ordering: native sorts before
// every issued asset, and issued assets compare by unsigned lexicographic
// byte comparison of their id.
func (a Asset) Compare(b Asset) int {
	if a.issued != b.issued {
		if !a.issued {
			return -1
		}
		return 1
	}
	if !a.issued {
		return 0
	}
	return bytes.Compare(a.id[:], b.id[:])
}

// Equal reports whether a and b identify the same asset.
func (a Asset) Equal(b Asset) bool { return a.Compare(b) == 0 }

// Pair is the ordered identity of a book: (amountAsset, priceAsset).
type Pair struct {
	AmountAsset Asset
	PriceAsset  Asset
}

// ErrSameAsset is returned when a pair's two legs are identical.
var ErrSameAsset = errors.New("asset: amount and price asset must differ")

// NewPair validates and builds a pair.
func NewPair(amount, price Asset) (Pair, error) {
	if amount.Equal(price) {
		return Pair{}, ErrSameAsset
	}
	return Pair{AmountAsset: amount, PriceAsset: price}, nil
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.AmountAsset, p.PriceAsset)
}

// Bytes is the wire encoding used to shard the event log and to key
// persistent stores: the amount asset bytes (or a single 0x00 flag byte
// for native) followed by the price asset, each prefixed by a presence
// flag, matching the order binary format's flag+id convention in §6.
func (p Pair) Bytes() []byte {
	buf := make([]byte, 0, 66)
	buf = appendAsset(buf, p.AmountAsset)
	buf = appendAsset(buf, p.PriceAsset)
	return buf
}

func appendAsset(buf []byte, a Asset) []byte {
	if a.IsNative() {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return append(buf, a.Bytes()...)
}

// PairFromBytes is the inverse of Pair.Bytes.
func PairFromBytes(b []byte) (Pair, error) {
	amount, rest, err := readAsset(b)
	if err != nil {
		return Pair{}, err
	}
	price, rest, err := readAsset(rest)
	if err != nil {
		return Pair{}, err
	}
	if len(rest) != 0 {
		return Pair{}, fmt.Errorf("asset: trailing bytes after pair")
	}
	return NewPair(amount, price)
}

func readAsset(b []byte) (Asset, []byte, error) {
	if len(b) < 1 {
		return Asset{}, nil, fmt.Errorf("asset: truncated flag byte")
	}
	if b[0] == 0 {
		return Native, b[1:], nil
	}
	if len(b) < 33 {
		return Asset{}, nil, fmt.Errorf("asset: truncated issued id")
	}
	a, err := IssuedFromBytes(b[1:33])
	if err != nil {
		return Asset{}, nil, err
	}
	return a, b[33:], nil
}
