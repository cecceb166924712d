package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/crypto"
	"github.com/lumenex/matcher/pkg/order"
)

func main() {
	fmt.Println("Generating new Ed25519 keypair...")
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var pubKey [32]byte
	copy(pubKey[:], pub)
	owner := crypto.AddressFromPublicKey(pubKey)

	fmt.Printf("Public key: %s\n", hex.EncodeToString(pub))
	fmt.Printf("Owner address: %s\n\n", owner.Hex())

	var usdID [32]byte
	usdID[0] = 0x01
	pair, err := asset.NewPair(asset.Native, asset.NewIssued(usdID))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	o := &order.Order{
		Pair:       pair,
		Side:       order.Buy,
		Price:      500000,
		Amount:     2000,
		Fee:        1000,
		FeeAsset:   asset.Native,
		Timestamp:  now.UnixMilli(),
		Expiration: now.Add(24 * time.Hour).UnixMilli(),
		Version:    order.V2,
	}

	crypto.SignOrder(priv, o)

	fmt.Println("Order:")
	fmt.Printf("  ID:        %s\n", o.ID)
	fmt.Printf("  Owner:     %s\n", o.Owner.Hex())
	fmt.Printf("  Side:      %s\n", o.Side)
	fmt.Printf("  Price:     %d\n", o.Price)
	fmt.Printf("  Amount:    %d\n", o.Amount)
	fmt.Printf("  Fee:       %d\n", o.Fee)
	fmt.Printf("  Signature: %s\n\n", hex.EncodeToString(o.Signature))

	wire := order.Encode(o)
	fmt.Printf("Wire bytes (%d): %s\n\n", len(wire), hex.EncodeToString(wire))

	fmt.Println("Verifying signature...")
	verifier := crypto.OrderVerifier{}
	ok, recovered, err := verifier.Verify(o)
	if err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("signature INVALID")
		os.Exit(1)
	}
	fmt.Println("signature valid")
	fmt.Printf("  Recovered owner: %s\n", recovered.Hex())
	fmt.Printf("  Matches owner:   %v\n", recovered == o.Owner)
}
