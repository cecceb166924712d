package order

import (
	"bytes"
	"testing"
	"time"

	"github.com/lumenex/matcher/pkg/asset"
)

func signedOrder(version Version) *Order {
	now := time.Now()
	o := &Order{
		Pair:       asset.Pair{AmountAsset: asset.Native, PriceAsset: asset.NewIssued([32]byte{9})},
		Side:       Sell,
		Price:      777,
		Amount:     42,
		Fee:        3,
		FeeAsset:   asset.Native,
		Timestamp:  now.UnixMilli(),
		Expiration: now.Add(time.Hour).UnixMilli(),
		Version:    version,
		Signature:  bytes.Repeat([]byte{0xAB}, 64),
	}
	o.SenderPublicKey[0] = 0x11
	o.MatcherPublicKey[0] = 0x22
	o.ID = DeriveID(o)
	return o
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range []Version{V1, V2, V3} {
		o := signedOrder(v)
		encoded := Encode(o)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("version %d: Decode: %v", v, err)
		}
		if decoded.Version != o.Version ||
			decoded.Side != o.Side ||
			decoded.Price != o.Price ||
			decoded.Amount != o.Amount ||
			decoded.Fee != o.Fee ||
			decoded.Timestamp != o.Timestamp ||
			decoded.Expiration != o.Expiration ||
			decoded.Pair != o.Pair ||
			decoded.SenderPublicKey != o.SenderPublicKey ||
			decoded.MatcherPublicKey != o.MatcherPublicKey {
			t.Fatalf("version %d: round trip mismatch:\ngot  %+v\nwant %+v", v, decoded, o)
		}
		if !bytes.Equal(decoded.Signature, o.Signature) {
			t.Fatalf("version %d: signature mismatch", v)
		}
		if decoded.ID != o.ID {
			t.Fatalf("version %d: ID mismatch: got %s, want %s", v, decoded.ID, o.ID)
		}
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	o := signedOrder(V2)
	encoded := Encode(o)
	encoded[0] = 9
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected error for unsupported version byte")
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	o := signedOrder(V1)
	encoded := Encode(o)
	if _, err := Decode(encoded[:len(encoded)-10]); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestDeriveIDIsDeterministicAndSignatureIndependent(t *testing.T) {
	o1 := signedOrder(V2)
	o2 := signedOrder(V2)
	o2.Timestamp = o1.Timestamp
	o2.Expiration = o1.Expiration
	o2.SenderPublicKey = o1.SenderPublicKey
	o2.MatcherPublicKey = o1.MatcherPublicKey
	o2.Signature = bytes.Repeat([]byte{0xFF}, 64) // different signature, same payload

	if DeriveID(o1) != DeriveID(o2) {
		t.Error("DeriveID should not depend on the signature bytes")
	}

	o3 := signedOrder(V2)
	o3.Timestamp = o1.Timestamp
	o3.Expiration = o1.Expiration
	o3.SenderPublicKey = o1.SenderPublicKey
	o3.MatcherPublicKey = o1.MatcherPublicKey
	o3.Amount = o1.Amount + 1

	if DeriveID(o1) == DeriveID(o3) {
		t.Error("different order content should produce different IDs")
	}
}

func TestUnsignedPayloadExcludesSignature(t *testing.T) {
	o := signedOrder(V1)
	signed := Encode(o)
	unsigned := UnsignedPayload(o)
	if len(signed) != len(unsigned)+len(o.Signature) {
		t.Fatalf("Encode length = %d, want UnsignedPayload length (%d) + signature length (%d)",
			len(signed), len(unsigned), len(o.Signature))
	}
	if !bytes.Equal(signed[:len(unsigned)], unsigned) {
		t.Fatal("UnsignedPayload should be a prefix of Encode's output")
	}
}
