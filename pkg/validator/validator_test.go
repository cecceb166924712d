package validator

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/chainclient"
	"github.com/lumenex/matcher/pkg/config"
	"github.com/lumenex/matcher/pkg/matchererr"
	"github.com/lumenex/matcher/pkg/matchingrules"
	"github.com/lumenex/matcher/pkg/order"
	"github.com/lumenex/matcher/pkg/orderbook"
)

type stubVerifier struct {
	owner common.Address
	ok    bool
}

func (s stubVerifier) Verify(o *order.Order) (bool, common.Address, error) {
	return s.ok, s.owner, nil
}

var wavesPair = asset.Pair{AmountAsset: asset.Native, PriceAsset: func() asset.Asset {
	var id [32]byte
	id[0] = 0x9
	return asset.NewIssued(id)
}()}

func baseOrder(side order.Side, amount, price, fee uint64) *order.Order {
	now := time.Now()
	return &order.Order{
		Pair:       wavesPair,
		Side:       side,
		Amount:     amount,
		Price:      price,
		Fee:        fee,
		FeeAsset:   asset.Native,
		Version:    order.V3,
		Timestamp:  now.UnixMilli(),
		Expiration: now.Add(24 * time.Hour).UnixMilli(),
	}
}

func newTestValidator() *Validator {
	cfg := config.Default()
	rules := matchingrules.NewRegistry()
	return New(cfg, stubVerifier{ok: true}, rules, nil, nil)
}

func TestSync_DeviationRejectBuyTooLow(t *testing.T) {
	cfg := config.Default()
	cfg.MaxPriceDeviations = config.PriceDeviations{Enable: true, Profit: 0.7, Loss: 0.6, Fee: 0.6}
	rules := matchingrules.NewRegistry()
	v := New(cfg, stubVerifier{ok: true}, rules, nil, nil)

	o := baseOrder(order.Buy, 1000, 89999, 1)
	status := orderbook.MarketStatus{BestBid: orderbook.OptionalPrice{Valid: true, Price: 300000}}

	err := v.Sync(o, time.Now(), status, 0)
	if err == nil {
		t.Fatal("expected deviation rejection")
	}
	me, ok := err.(*matchererr.MatcherError)
	if !ok {
		t.Fatalf("expected *MatcherError, got %T", err)
	}
	if me.Code != matchererr.CodeDeviantOrderPrice {
		t.Fatalf("code = %d, want %d", me.Code, matchererr.CodeDeviantOrderPrice)
	}
}

func TestSync_FeeDeviationReject(t *testing.T) {
	cfg := config.Default()
	cfg.OrderFee.Mode = config.FeeModePercent
	cfg.OrderFee.Percent.MinFee = 0.40
	cfg.MaxPriceDeviations = config.PriceDeviations{Enable: true, Profit: 0.7, Loss: 0.6, Fee: 0.1}
	rules := matchingrules.NewRegistry()
	v := New(cfg, stubVerifier{ok: true}, rules, nil, nil)

	o := baseOrder(order.Buy, 1000*1e8, 600000, 359999)
	status := orderbook.MarketStatus{BestAsk: orderbook.OptionalPrice{Valid: true, Price: 600000}}

	err := v.checkFeeDeviation(o, status)
	if err == nil {
		t.Fatal("expected fee deviation rejection")
	}
	me := err.(*matchererr.MatcherError)
	if me.Code != matchererr.CodeDeviantOrderMatcherFee {
		t.Fatalf("code = %d, want %d", me.Code, matchererr.CodeDeviantOrderMatcherFee)
	}
}

func TestSync_TickSizeRejected(t *testing.T) {
	v := newTestValidator()
	if err := v.rules.Set(wavesPair, []matchingrules.Rule{{FromOffset: 0, TickSize: 100}}); err != nil {
		t.Fatal(err)
	}
	o := baseOrder(order.Buy, 1000, 12345, 1)
	if err := v.checkTick(o, 0); err == nil {
		t.Fatal("expected tick rejection")
	}
}

func TestSync_VersionDenied(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedOrderVersions = map[order.Version]struct{}{order.V1: {}}
	rules := matchingrules.NewRegistry()
	v := New(cfg, stubVerifier{ok: true}, rules, nil, nil)

	o := baseOrder(order.Buy, 1000, 100, 1)
	o.Version = order.V3
	if err := v.checkVersion(o); err == nil {
		t.Fatal("expected version rejection")
	}
}

func TestSync_BlacklistedAddress(t *testing.T) {
	cfg := config.Default()
	addr := common.HexToAddress("0xdead")
	cfg.Blacklist.Addresses = map[common.Address]struct{}{addr: {}}
	rules := matchingrules.NewRegistry()
	v := New(cfg, stubVerifier{ok: true, owner: addr}, rules, nil, nil)

	o := baseOrder(order.Buy, 1000, 100, 1)
	if err := v.checkSignature(o); err != nil {
		t.Fatal(err)
	}
	if err := v.checkDenylists(o); err == nil {
		t.Fatal("expected blacklist rejection")
	}
}

type stubChain struct {
	balance *uint256.Int
}

func (s stubChain) AssetInfo(ctx context.Context, a asset.Asset) (chainclient.AssetInfo, error) {
	return chainclient.AssetInfo{Decimals: 8}, nil
}
func (s stubChain) SpendableBalance(ctx context.Context, owner common.Address, a asset.Asset) (*uint256.Int, error) {
	return s.balance, nil
}
func (s stubChain) OrderAssetScriptDenied(ctx context.Context, a asset.Asset, owner common.Address) (bool, error) {
	return false, nil
}
func (s stubChain) MatcherAccountScriptDenied(ctx context.Context, owner common.Address) (bool, error) {
	return false, nil
}

func TestAsync_BalanceNotEnough(t *testing.T) {
	cfg := config.Default()
	rules := matchingrules.NewRegistry()
	v := New(cfg, stubVerifier{ok: true}, rules, nil, stubChain{balance: uint256.NewInt(10)})

	o := baseOrder(order.Buy, 1000, 100, 1)
	err := v.Async(context.Background(), o, asset.Native, 1000)
	if err == nil {
		t.Fatal("expected balance rejection")
	}
	me := err.(*matchererr.MatcherError)
	if me.Code != matchererr.CodeBalanceNotEnough {
		t.Fatalf("code = %d, want %d", me.Code, matchererr.CodeBalanceNotEnough)
	}
}
