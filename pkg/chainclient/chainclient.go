// Package chainclient names the contract the matcher core uses to
// reach the external blockchain client for asset metadata, balance,
// and script lookups. The blockchain client itself — balance
// bookkeeping, asset registries, transaction broadcast — lives
// outside the matcher core; only the interface the validator and
// ledger call against is specified here.
package chainclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/lumenex/matcher/pkg/asset"
)

// AssetInfo is the subset of on-chain asset metadata the validator
// needs to apply decimals-aware fee and deviation checks.
type AssetInfo struct {
	Decimals      uint8
	ScriptPresent bool
}

// Client is the seam between the matcher core and the blockchain
// client. All methods may block on a network round trip; callers
// invoke them only from the validator's async pre-append phase, never
// from inside a worker's match loop.
type Client interface {
	// AssetInfo resolves metadata for a, or ErrAssetNotFound.
	AssetInfo(ctx context.Context, a asset.Asset) (AssetInfo, error)
	// SpendableBalance returns owner's spendable balance of a, net of
	// any chain-level holds the matcher doesn't know about.
	SpendableBalance(ctx context.Context, owner common.Address, a asset.Asset) (*uint256.Int, error)
	// OrderAssetScriptDenied reports whether a's asset script would
	// reject this order if it were broadcast.
	OrderAssetScriptDenied(ctx context.Context, a asset.Asset, owner common.Address) (bool, error)
	// MatcherAccountScriptDenied reports whether owner's account
	// script would reject the matcher acting as a counterparty.
	MatcherAccountScriptDenied(ctx context.Context, owner common.Address) (bool, error)
}

// ErrAssetNotFound is returned by AssetInfo for an asset unknown to
// the blockchain client.
var ErrAssetNotFound = assetNotFoundError{}

type assetNotFoundError struct{}

func (assetNotFoundError) Error() string { return "chainclient: asset not found" }
