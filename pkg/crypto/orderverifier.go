package crypto

import (
	stded25519 "crypto/ed25519"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/lumenex/matcher/pkg/order"
)

// AddressFromPublicKey derives the 20-byte owner address from a
// 32-byte raw public key the same way ethaddr.go derives one from an
// uncompressed secp256k1 key: keccak256 of the key material, low 20
// bytes. Orders carry an Ed25519 key (32 bytes matches the field
// width the wire format allots), so the input here is the raw key
// itself rather than an uncompressed point.
func AddressFromPublicKey(pub [32]byte) common.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub[:])
	sum := h.Sum(nil)
	var addr common.Address
	copy(addr[:], sum[12:])
	return addr
}

// OrderVerifier implements order.Verifier using Ed25519 over an
// order's unsigned payload. The order format's 32-byte public key and
// 64-byte signature fields are exactly Ed25519's native sizes, unlike
// the uncompressed-secp256k1 scheme pkg/crypto's Signer otherwise
// demonstrates, so order signatures use the standard library's
// crypto/ed25519 rather than go-ethereum's ECDSA primitives.
type OrderVerifier struct{}

// Verify reports whether o.Signature is a valid Ed25519 signature by
// o.SenderPublicKey over o's unsigned payload, and derives the owner
// address from that key.
func (OrderVerifier) Verify(o *order.Order) (bool, common.Address, error) {
	owner := AddressFromPublicKey(o.SenderPublicKey)
	if len(o.Signature) != stded25519.SignatureSize {
		return false, owner, nil
	}
	ok := stded25519.Verify(o.SenderPublicKey[:], order.UnsignedPayload(o), o.Signature)
	return ok, owner, nil
}

// SignOrder signs o's unsigned payload with priv and sets
// o.Signature, o.SenderPublicKey, and o.ID. priv must be a 64-byte
// Ed25519 private key (seed || public key, as returned by
// ed25519.GenerateKey).
func SignOrder(priv stded25519.PrivateKey, o *order.Order) {
	pub := priv.Public().(stded25519.PublicKey)
	copy(o.SenderPublicKey[:], pub)
	o.Signature = stded25519.Sign(priv, order.UnsignedPayload(o))
	o.ID = order.DeriveID(o)
	o.Owner = AddressFromPublicKey(o.SenderPublicKey)
}
