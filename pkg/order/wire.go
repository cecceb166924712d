package order

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/lumenex/matcher/pkg/asset"
)

// Encode serializes o in the stable self-delimiting binary format
// shared across versions 1-3: version byte, sender/matcher public
// keys, amount/price asset flag+id, order-type byte, price, amount,
// timestamp, expiration, fee (all 8-byte big-endian), a version-3-only
// fee asset flag+id, and the 64-byte signature.
func Encode(o *Order) []byte {
	return encode(o, true)
}

// UnsignedPayload is the same encoding with the trailing signature
// omitted; orderId = blake2b256(UnsignedPayload(o)).
func UnsignedPayload(o *Order) []byte {
	return encode(o, false)
}

func encode(o *Order, withSig bool) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(o.Version))
	buf.Write(o.SenderPublicKey[:])
	buf.Write(o.MatcherPublicKey[:])
	writeAssetFlag(&buf, o.Pair.AmountAsset)
	writeAssetFlag(&buf, o.Pair.PriceAsset)
	buf.WriteByte(byte(o.Side))
	writeU64(&buf, o.Price)
	writeU64(&buf, o.Amount)
	writeI64(&buf, o.Timestamp)
	writeI64(&buf, o.Expiration)
	writeU64(&buf, o.Fee)
	if o.Version == V3 {
		writeAssetFlag(&buf, o.FeeAsset)
	}
	if withSig {
		buf.Write(o.Signature)
	}
	return buf.Bytes()
}

func writeAssetFlag(buf *bytes.Buffer, a asset.Asset) {
	if a.IsNative() {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(a.Bytes())
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	writeU64(buf, uint64(v))
}

// Decode parses the binary format produced by Encode, including the
// trailing signature.
func Decode(b []byte) (*Order, error) {
	r := bytes.NewReader(b)
	o := &Order{}

	versionByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("order: truncated version: %w", err)
	}
	o.Version = Version(versionByte)
	if o.Version < V1 || o.Version > V3 {
		return nil, fmt.Errorf("order: unsupported version %d", o.Version)
	}

	if _, err := readFull(r, o.SenderPublicKey[:]); err != nil {
		return nil, fmt.Errorf("order: sender public key: %w", err)
	}
	if _, err := readFull(r, o.MatcherPublicKey[:]); err != nil {
		return nil, fmt.Errorf("order: matcher public key: %w", err)
	}
	amountAsset, err := readAssetFlag(r)
	if err != nil {
		return nil, fmt.Errorf("order: amount asset: %w", err)
	}
	priceAsset, err := readAssetFlag(r)
	if err != nil {
		return nil, fmt.Errorf("order: price asset: %w", err)
	}
	pair, err := asset.NewPair(amountAsset, priceAsset)
	if err != nil {
		return nil, fmt.Errorf("order: pair: %w", err)
	}
	o.Pair = pair

	sideByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("order: side: %w", err)
	}
	o.Side = Side(sideByte)

	if o.Price, err = readU64(r); err != nil {
		return nil, fmt.Errorf("order: price: %w", err)
	}
	if o.Amount, err = readU64(r); err != nil {
		return nil, fmt.Errorf("order: amount: %w", err)
	}
	ts, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("order: timestamp: %w", err)
	}
	o.Timestamp = int64(ts)
	exp, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("order: expiration: %w", err)
	}
	o.Expiration = int64(exp)
	if o.Fee, err = readU64(r); err != nil {
		return nil, fmt.Errorf("order: fee: %w", err)
	}

	if o.Version == V3 {
		feeAsset, err := readAssetFlag(r)
		if err != nil {
			return nil, fmt.Errorf("order: fee asset: %w", err)
		}
		o.FeeAsset = feeAsset
	} else {
		o.FeeAsset = asset.Native
	}

	sig := make([]byte, 64)
	if _, err := readFull(r, sig); err != nil {
		return nil, fmt.Errorf("order: signature: %w", err)
	}
	o.Signature = sig

	o.ID = DeriveID(o)
	return o, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
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

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readAssetFlag(r *bytes.Reader) (asset.Asset, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return asset.Asset{}, err
	}
	if flag == 0 {
		return asset.Native, nil
	}
	id := make([]byte, 32)
	if _, err := readFull(r, id); err != nil {
		return asset.Asset{}, err
	}
	return asset.IssuedFromBytes(id)
}

// DeriveID computes orderId = blake2b256(unsignedPayload).
func DeriveID(o *Order) ID {
	sum := blake2b.Sum256(UnsignedPayload(o))
	return ID(sum)
}
