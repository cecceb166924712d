package crypto

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

func testOrder() *order.Order {
	var priceID [32]byte
	priceID[0] = 0x02
	now := time.Now()
	return &order.Order{
		Pair:       asset.Pair{AmountAsset: asset.Native, PriceAsset: asset.NewIssued(priceID)},
		Side:       order.Buy,
		Price:      100,
		Amount:     10,
		Fee:        1,
		FeeAsset:   asset.Native,
		Timestamp:  now.UnixMilli(),
		Expiration: now.Add(time.Hour).UnixMilli(),
		Version:    order.V2,
	}
}

func TestSignOrderThenVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	o := testOrder()
	SignOrder(priv, o)

	if len(o.Signature) != ed25519.SignatureSize {
		t.Fatalf("signature length = %d, want %d", len(o.Signature), ed25519.SignatureSize)
	}
	if o.ID.IsZero() {
		t.Fatal("signed order has zero ID")
	}

	var wantOwner [32]byte
	copy(wantOwner[:], pub)
	if o.SenderPublicKey != wantOwner {
		t.Fatalf("SenderPublicKey mismatch")
	}

	verifier := OrderVerifier{}
	ok, owner, err := verifier.Verify(o)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("valid signature reported invalid")
	}
	if owner != o.Owner {
		t.Fatalf("recovered owner = %s, want %s", owner.Hex(), o.Owner.Hex())
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	o := testOrder()
	SignOrder(priv, o)
	o.Amount += 1 // mutate after signing

	verifier := OrderVerifier{}
	ok, _, err := verifier.Verify(o)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered order reported valid")
	}
}

func TestVerifyRejectsWrongLengthSignature(t *testing.T) {
	o := testOrder()
	o.Signature = []byte{1, 2, 3}

	verifier := OrderVerifier{}
	ok, _, err := verifier.Verify(o)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("short signature reported valid")
	}
}

func TestAddressFromPublicKeyDeterministic(t *testing.T) {
	var pub [32]byte
	for i := range pub {
		pub[i] = byte(i)
	}
	a1 := AddressFromPublicKey(pub)
	a2 := AddressFromPublicKey(pub)
	if a1 != a2 {
		t.Fatal("AddressFromPublicKey is not deterministic")
	}

	pub[0] ^= 0xff
	a3 := AddressFromPublicKey(pub)
	if a3 == a1 {
		t.Fatal("different keys produced the same address")
	}
}
