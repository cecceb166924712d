// Package validator applies the pre-admission checks an order must
// pass before the matcher appends it to the event log: signature,
// timing, denylists, fee policy, tick size, price/fee deviation
// bounds, market status, and an optional self-trade guard. Async
// checks that require a blockchain-client round trip run separately,
// after the sync gate, immediately before append.
package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/chainclient"
	"github.com/lumenex/matcher/pkg/config"
	"github.com/lumenex/matcher/pkg/matchererr"
	"github.com/lumenex/matcher/pkg/matchingrules"
	"github.com/lumenex/matcher/pkg/order"
	"github.com/lumenex/matcher/pkg/orderbook"
)

// DecimalsCache is a shared-read, copy-on-write cache of asset
// decimals, populated ahead of time so the synchronous checks never
// block on the chain client; only the async phase does that.
type DecimalsCache interface {
	Decimals(a asset.Asset) (uint8, bool)
}

// KillSwitch reports whether trading is currently halted for a pair.
type KillSwitch func(pair asset.Pair) bool

// SelfTradeChecker reports whether placing an order of this side and
// owner on this pair would immediately match one of the owner's own
// resting orders.
type SelfTradeChecker func(pair asset.Pair, owner [20]byte, side order.Side) bool

// Validator runs the synchronous and asynchronous admission checks.
type Validator struct {
	cfg      config.Config
	verifier order.Verifier
	rules    *matchingrules.Registry
	decimals DecimalsCache
	chain    chainclient.Client

	KillSwitch       KillSwitch
	SelfTradeChecker SelfTradeChecker
}

// New builds a Validator. Its KillSwitch and SelfTradeChecker fields
// start nil, in which case those checks are skipped.
func New(cfg config.Config, verifier order.Verifier, rules *matchingrules.Registry, decimals DecimalsCache, chain chainclient.Client) *Validator {
	return &Validator{cfg: cfg, verifier: verifier, rules: rules, decimals: decimals, chain: chain}
}

// Sync runs every check that needs no network round trip. status is
// the book's current market status for o.Pair; offset is the log
// offset the order would be appended at, used to resolve the active
// tick.
func (v *Validator) Sync(o *order.Order, now time.Time, status orderbook.MarketStatus, offset int64) error {
	if err := v.checkSignature(o); err != nil {
		return err
	}
	if err := v.checkTiming(o, now); err != nil {
		return err
	}
	if err := v.checkDenylists(o); err != nil {
		return err
	}
	if err := v.checkVersion(o); err != nil {
		return err
	}
	if err := v.checkCanonicalPriceAsset(o); err != nil {
		return err
	}
	if err := v.checkFeeAsset(o); err != nil {
		return err
	}
	if err := v.checkMinFee(o); err != nil {
		return err
	}
	if err := v.checkTick(o, offset); err != nil {
		return err
	}
	if err := v.checkPriceDeviation(o, status); err != nil {
		return err
	}
	if err := v.checkFeeDeviation(o, status); err != nil {
		return err
	}
	if err := v.checkMarketStatus(o); err != nil {
		return err
	}
	if err := v.checkSelfTrade(o); err != nil {
		return err
	}
	return nil
}

func (v *Validator) checkSignature(o *order.Order) error {
	ok, owner, err := v.verifier.Verify(o)
	if err != nil {
		return matchererr.Validation(matchererr.CodeInvalidSignature, fmt.Sprintf("signature verification error: %v", err), nil)
	}
	if !ok {
		return matchererr.Validation(matchererr.CodeInvalidSignature, "order signature does not verify against owner key", nil)
	}
	o.Owner = owner
	return nil
}

func (v *Validator) checkTiming(o *order.Order, now time.Time) error {
	nowMillis := now.UnixMilli()
	if o.Expiration <= nowMillis {
		return matchererr.Validation(matchererr.CodeOrderOutdated, "order expiration is in the past", map[string]any{"expiration": o.Expiration, "now": nowMillis})
	}
	skew := v.cfg.ClockSkewTolerance.Milliseconds()
	if o.Timestamp > nowMillis+skew {
		return matchererr.Validation(matchererr.CodeOrderOutdated, "order timestamp is too far in the future", map[string]any{"timestamp": o.Timestamp, "now": nowMillis})
	}
	return nil
}

func (v *Validator) checkDenylists(o *order.Order) error {
	if v.cfg.IsAssetBlacklisted(o.Pair.AmountAsset) || v.cfg.IsAssetBlacklisted(o.Pair.PriceAsset) {
		return matchererr.Validation(matchererr.CodeAssetPairDenylisted, "asset pair is denylisted", map[string]any{"pair": o.Pair.String()})
	}
	if v.cfg.IsAddressBlacklisted(o.Owner) {
		return matchererr.Validation(matchererr.CodeAddressBlacklisted, "address is blacklisted", map[string]any{"address": o.Owner.Hex()})
	}
	return nil
}

func (v *Validator) checkVersion(o *order.Order) error {
	if !v.cfg.IsVersionAllowed(o.Version) {
		return matchererr.Validation(matchererr.CodeOrderVersionDenied, fmt.Sprintf("order version %d is not allowed", o.Version), nil)
	}
	return nil
}

// checkCanonicalPriceAsset enforces the price-assets overlay: when
// configured, a pair's price leg must be one of the listed assets, so
// every pair on the matcher is quoted against a recognized asset
// rather than an arbitrary ordering of the two legs.
func (v *Validator) checkCanonicalPriceAsset(o *order.Order) error {
	if !v.cfg.IsPriceAssetCanonical(o.Pair.PriceAsset) {
		return matchererr.Validation(matchererr.CodeNonCanonicalPriceAsset, fmt.Sprintf("price asset %s is not a recognized price asset for this pair", o.Pair.PriceAsset), map[string]any{"pair": o.Pair.String()})
	}
	return nil
}

func (v *Validator) checkFeeAsset(o *order.Order) error {
	if !v.cfg.OrderFee.FeeAssetAllowed(o.FeeAsset) {
		return matchererr.Validation(matchererr.CodeUnexpectedFeeAsset, fmt.Sprintf("fee asset %s is not accepted for this pair", o.FeeAsset), nil)
	}
	return nil
}

func (v *Validator) checkMinFee(o *order.Order) error {
	required, err := v.requiredFee(o)
	if err != nil {
		return matchererr.Validation(matchererr.CodeFeeNotEnough, err.Error(), nil)
	}
	if decimal.NewFromInt(int64(o.Fee)).LessThan(required) {
		return matchererr.Validation(matchererr.CodeFeeNotEnough, fmt.Sprintf("fee %d is below required %s", o.Fee, required.String()), map[string]any{"required": required.String()})
	}
	return nil
}

// requiredFee implements "Required fee" from the fee policy: in fixed
// mode it's a constant; in percent mode it's fs * orderValue, rescaled
// from amount/price decimals to feeAsset decimals.
func (v *Validator) requiredFee(o *order.Order) (decimal.Decimal, error) {
	if v.cfg.OrderFee.Mode == config.FeeModeFixed {
		return decimal.NewFromInt(int64(v.cfg.OrderFee.Fixed.MinFee)), nil
	}

	amountDecimals := v.decimalsOf(o.Pair.AmountAsset)
	priceDecimals := v.decimalsOf(o.Pair.PriceAsset)
	feeDecimals := v.decimalsOf(o.FeeAsset)

	amount := decimal.NewFromInt(int64(o.Amount)).Shift(-int32(amountDecimals))
	price := decimal.NewFromInt(int64(o.Price)).Shift(-int32(priceDecimals - 8)) // Waves-style 8-decimal price scale

	var value decimal.Decimal
	switch v.cfg.OrderFee.Percent.ValueType {
	case config.OrderValuePrice:
		value = price
	case config.OrderValueSpending:
		if o.Side == order.Buy {
			value = amount.Mul(price)
		} else {
			value = amount
		}
	case config.OrderValueReceiving:
		if o.Side == order.Buy {
			value = amount
		} else {
			value = amount.Mul(price)
		}
	default: // amount
		value = amount
	}

	fs := decimal.NewFromFloat(v.cfg.OrderFee.Percent.MinFee)
	required := value.Mul(fs).Shift(int32(feeDecimals))
	return required.Ceil(), nil
}

func (v *Validator) decimalsOf(a asset.Asset) uint8 {
	if a.IsNative() {
		return 8
	}
	if v.decimals != nil {
		if d, ok := v.decimals.Decimals(a); ok {
			return d
		}
	}
	return 8
}

func (v *Validator) checkTick(o *order.Order, offset int64) error {
	tick, ok := v.rules.ActiveTick(o.Pair, offset)
	if !ok {
		tick = matchingrules.DefaultTick
	}
	quantized, err := orderbook.QuantizePrice(o.Side, o.Price, tick)
	if err != nil || quantized != o.Price {
		return matchererr.Validation(matchererr.CodePriceTickInvalid, fmt.Sprintf("price %d is not a multiple of tick %d", o.Price, tick), nil)
	}
	return nil
}

func (v *Validator) checkPriceDeviation(o *order.Order, status orderbook.MarketStatus) error {
	d := v.cfg.MaxPriceDeviations
	if !d.Enable {
		return nil
	}
	price := decimal.NewFromInt(int64(o.Price))
	if o.Side == order.Buy {
		if status.BestBid.Valid {
			lower := decimal.NewFromInt(int64(status.BestBid.Price)).Mul(decimal.NewFromFloat(1 - d.Profit))
			if price.LessThan(lower) {
				return deviantPriceError(d, o.Side, status)
			}
		}
		if status.BestAsk.Valid {
			upper := decimal.NewFromInt(int64(status.BestAsk.Price)).Mul(decimal.NewFromFloat(1 + d.Loss))
			if price.GreaterThan(upper) {
				return deviantPriceError(d, o.Side, status)
			}
		}
		return nil
	}
	if status.BestBid.Valid {
		lower := decimal.NewFromInt(int64(status.BestBid.Price)).Mul(decimal.NewFromFloat(1 - d.Loss))
		if price.LessThan(lower) {
			return deviantPriceError(d, o.Side, status)
		}
	}
	if status.BestAsk.Valid {
		upper := decimal.NewFromInt(int64(status.BestAsk.Price)).Mul(decimal.NewFromFloat(1 + d.Profit))
		if price.GreaterThan(upper) {
			return deviantPriceError(d, o.Side, status)
		}
	}
	return nil
}

func deviantPriceError(d config.PriceDeviations, side order.Side, status orderbook.MarketStatus) error {
	lowerPct := (1 - d.Profit) * 100
	upperPct := (1 + d.Loss) * 100
	if side == order.Sell {
		lowerPct = (1 - d.Loss) * 100
		upperPct = (1 + d.Profit) * 100
	}
	msg := fmt.Sprintf("order price deviates from the market: allowed bound is %.0f%% .. %.0f%% of the reference price", lowerPct, upperPct)
	return matchererr.Validation(matchererr.CodeDeviantOrderPrice, msg, map[string]any{
		"bestBid": status.BestBid, "bestAsk": status.BestAsk,
	})
}

func (v *Validator) checkFeeDeviation(o *order.Order, status orderbook.MarketStatus) error {
	d := v.cfg.MaxPriceDeviations
	if !d.Enable || v.cfg.OrderFee.Mode != config.FeeModePercent {
		return nil
	}
	var ref orderbook.OptionalPrice
	if o.Side == order.Buy {
		ref = status.BestAsk
	} else {
		ref = status.BestBid
	}
	if !ref.Valid {
		return nil
	}
	fs := decimal.NewFromFloat(v.cfg.OrderFee.Percent.MinFee)
	feeDev := decimal.NewFromFloat(d.Fee)
	amount := decimal.NewFromInt(int64(o.Amount))
	refPrice := decimal.NewFromInt(int64(ref.Price))
	minRequired := fs.Mul(decimal.NewFromInt(1).Sub(feeDev)).Mul(refPrice).Mul(amount).Shift(-8)
	if decimal.NewFromInt(int64(o.Fee)).LessThan(minRequired) {
		msg := fmt.Sprintf("order fee %d deviates from the matcher fee computed at the reference price", o.Fee)
		return matchererr.Validation(matchererr.CodeDeviantOrderMatcherFee, msg, map[string]any{"required": minRequired.String()})
	}
	return nil
}

func (v *Validator) checkMarketStatus(o *order.Order) error {
	if v.KillSwitch != nil && v.KillSwitch(o.Pair) {
		return matchererr.Validation(matchererr.CodeMarketStatusMismatch, fmt.Sprintf("market %s is not accepting orders", o.Pair), nil)
	}
	return nil
}

func (v *Validator) checkSelfTrade(o *order.Order) error {
	if !v.cfg.SelfTradeCheckEnabled || v.SelfTradeChecker == nil {
		return nil
	}
	if v.SelfTradeChecker(o.Pair, o.Owner, o.Side) {
		return matchererr.Validation(matchererr.CodeSelfTradeDenied, "order would immediately match the owner's own resting order", nil)
	}
	return nil
}

// Async runs the checks that require a blockchain-client round trip:
// asset existence, script denial, and balance sufficiency. It must
// complete before the order is appended to the log.
func (v *Validator) Async(ctx context.Context, o *order.Order, reservedAsset asset.Asset, reservedAmount uint64) error {
	if _, err := v.chain.AssetInfo(ctx, o.Pair.AmountAsset); err != nil {
		return matchererr.Validation(matchererr.CodeAssetNotFound, fmt.Sprintf("asset %s not found", o.Pair.AmountAsset), nil)
	}
	if _, err := v.chain.AssetInfo(ctx, o.Pair.PriceAsset); err != nil {
		return matchererr.Validation(matchererr.CodeAssetNotFound, fmt.Sprintf("asset %s not found", o.Pair.PriceAsset), nil)
	}

	denied, err := v.chain.OrderAssetScriptDenied(ctx, reservedAsset, o.Owner)
	if err != nil {
		return matchererr.Transient(err, "order asset script lookup failed")
	}
	if denied {
		return matchererr.Validation(matchererr.CodeOrderAssetScriptDenied, "order asset script denied this order", nil)
	}

	denied, err = v.chain.MatcherAccountScriptDenied(ctx, o.Owner)
	if err != nil {
		return matchererr.Transient(err, "matcher account script lookup failed")
	}
	if denied {
		return matchererr.Validation(matchererr.CodeMatcherAccountScriptDenied, "matcher account script denied this order", nil)
	}

	balance, err := v.chain.SpendableBalance(ctx, o.Owner, reservedAsset)
	if err != nil {
		return matchererr.Transient(err, "balance lookup failed")
	}
	if balance.Uint64() < reservedAmount {
		return matchererr.Validation(matchererr.CodeBalanceNotEnough, fmt.Sprintf("spendable balance %s is below required reservation %d", balance, reservedAmount), nil)
	}
	return nil
}
