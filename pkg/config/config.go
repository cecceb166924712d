// Package config loads the matcher's hierarchical configuration with
// spf13/viper, layering environment overrides on top of defaults:
// defaults, then an optional config file, then environment variables,
// highest priority last.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

// EventsQueueType selects the EventLog implementation.
type EventsQueueType string

const (
	EventsQueueLocal EventsQueueType = "local"
	EventsQueueKafka EventsQueueType = "kafka"
)

// FeeMode selects how the validator computes the required minimum fee.
type FeeMode string

const (
	FeeModePercent FeeMode = "percent"
	FeeModeFixed   FeeMode = "fixed"
)

// OrderValueType names which quantity a percent-mode fee is computed
// against.
type OrderValueType string

const (
	OrderValueAmount    OrderValueType = "amount"
	OrderValuePrice     OrderValueType = "price"
	OrderValueSpending  OrderValueType = "spending"
	OrderValueReceiving OrderValueType = "receiving"
)

// PercentFee configures percent-mode minimum fees.
type PercentFee struct {
	MinFee     float64 // e.g. 0.001 for 0.1%
	ValueType  OrderValueType
	FeeAssetID asset.Asset
}

// FixedFee configures fixed-mode minimum fees.
type FixedFee struct {
	MinFee   uint64
	FeeAsset asset.Asset
}

// OrderFee is the order-fee.* config subtree.
type OrderFee struct {
	Mode             FeeMode
	Percent          PercentFee
	Fixed            FixedFee
	AllowedFeeAssets []asset.Asset // empty means "native only"
}

// FeeAssetAllowed reports whether a may be used as an order's fee asset.
func (f OrderFee) FeeAssetAllowed(a asset.Asset) bool {
	if a.IsNative() {
		return true
	}
	for _, allowed := range f.AllowedFeeAssets {
		if allowed.Equal(a) {
			return true
		}
	}
	return false
}

// PriceDeviations is the max-price-deviations.* config subtree.
type PriceDeviations struct {
	Enable bool
	Profit float64 // fraction, e.g. 0.7 for 70%
	Loss   float64
	Fee    float64
}

// Blacklist is the blacklisted-* config subtree.
type Blacklist struct {
	Assets    map[asset.Asset]struct{}
	Addresses map[common.Address]struct{}
	Names     map[string]struct{}
}

func (b Blacklist) hasAsset(a asset.Asset) bool {
	_, ok := b.Assets[a]
	return ok
}

func (b Blacklist) hasAddress(a common.Address) bool {
	_, ok := b.Addresses[a]
	return ok
}

// Config is the matcher's full runtime configuration surface, per the
// hierarchical key-value options the core is hosted behind.
type Config struct {
	EventsQueueType EventsQueueType

	SnapshotsInterval            uint64 // events per snapshot
	SnapshotsLoadingTimeout      time.Duration
	StartEventsProcessingTimeout time.Duration
	ProcessConsumedTimeout       time.Duration

	OrderFee              OrderFee
	MaxPriceDeviations    PriceDeviations
	AllowedOrderVersions  map[order.Version]struct{}
	PriceAssets           []asset.Asset
	Blacklist             Blacklist
	ActorResponseTimeout  time.Duration
	ClockSkewTolerance    time.Duration
	AdminPublicKey        common.Address
	AdminCancelAlways     bool // defaults true; Load sets no key for it and the cancel path does not read it, so admin cancels are accepted in any status
	SelfTradeCheckEnabled bool
}

// IsAssetBlacklisted reports whether a is denylisted.
func (c Config) IsAssetBlacklisted(a asset.Asset) bool { return c.Blacklist.hasAsset(a) }

// IsAddressBlacklisted reports whether addr is denylisted.
func (c Config) IsAddressBlacklisted(addr common.Address) bool { return c.Blacklist.hasAddress(addr) }

// IsVersionAllowed reports whether v is one of the admitted order
// versions.
func (c Config) IsVersionAllowed(v order.Version) bool {
	_, ok := c.AllowedOrderVersions[v]
	return ok
}

// IsPriceAssetCanonical reports whether a may serve as a pair's price
// leg. An empty PriceAssets list means no restriction is configured.
func (c Config) IsPriceAssetCanonical(a asset.Asset) bool {
	if len(c.PriceAssets) == 0 {
		return true
	}
	for _, allowed := range c.PriceAssets {
		if allowed.Equal(a) {
			return true
		}
	}
	return false
}

// Default returns the matcher's baseline configuration.
func Default() Config {
	return Config{
		EventsQueueType:              EventsQueueLocal,
		SnapshotsInterval:            1000,
		SnapshotsLoadingTimeout:      5 * time.Minute,
		StartEventsProcessingTimeout: 2 * time.Minute,
		ProcessConsumedTimeout:       30 * time.Second,
		OrderFee: OrderFee{
			Mode: FeeModePercent,
			Percent: PercentFee{
				MinFee:    0.001,
				ValueType: OrderValueReceiving,
			},
		},
		MaxPriceDeviations: PriceDeviations{
			Enable: true,
			Profit: 0.7,
			Loss:   0.6,
			Fee:    0.6,
		},
		AllowedOrderVersions: map[order.Version]struct{}{
			order.V1: {}, order.V2: {}, order.V3: {},
		},
		Blacklist: Blacklist{
			Assets:    map[asset.Asset]struct{}{},
			Addresses: map[common.Address]struct{}{},
			Names:     map[string]struct{}{},
		},
		ActorResponseTimeout:  5 * time.Second,
		ClockSkewTolerance:    15 * time.Minute,
		AdminCancelAlways:     true,
		SelfTradeCheckEnabled: false,
	}
}

// Load builds a Config from defaults, an optional config file at
// path, and environment variables (prefixed MATCHER_), in that
// ascending priority order. envPath, if non-empty, is also passed to
// godotenv so process-level env vars set by a .env file are visible
// to the environment-variable layer, matching the override habit the
// rest of the host process already uses.
func Load(path, envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("MATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if v.IsSet("events-queue.type") {
		cfg.EventsQueueType = EventsQueueType(v.GetString("events-queue.type"))
	}
	if v.IsSet("snapshots-interval") {
		cfg.SnapshotsInterval = v.GetUint64("snapshots-interval")
	}
	if v.IsSet("snapshots-loading-timeout") {
		cfg.SnapshotsLoadingTimeout = v.GetDuration("snapshots-loading-timeout")
	}
	if v.IsSet("start-events-processing-timeout") {
		cfg.StartEventsProcessingTimeout = v.GetDuration("start-events-processing-timeout")
	}
	if v.IsSet("process-consumed-timeout") {
		cfg.ProcessConsumedTimeout = v.GetDuration("process-consumed-timeout")
	}
	if v.IsSet("order-fee.mode") {
		cfg.OrderFee.Mode = FeeMode(v.GetString("order-fee.mode"))
	}
	if v.IsSet("order-fee.percent.min-fee") {
		cfg.OrderFee.Percent.MinFee = v.GetFloat64("order-fee.percent.min-fee")
	}
	if v.IsSet("order-fee.fixed.min-fee") {
		cfg.OrderFee.Fixed.MinFee = v.GetUint64("order-fee.fixed.min-fee")
	}
	if v.IsSet("max-price-deviations.enable") {
		cfg.MaxPriceDeviations.Enable = v.GetBool("max-price-deviations.enable")
	}
	if v.IsSet("max-price-deviations.profit") {
		cfg.MaxPriceDeviations.Profit = v.GetFloat64("max-price-deviations.profit")
	}
	if v.IsSet("max-price-deviations.loss") {
		cfg.MaxPriceDeviations.Loss = v.GetFloat64("max-price-deviations.loss")
	}
	if v.IsSet("max-price-deviations.fee") {
		cfg.MaxPriceDeviations.Fee = v.GetFloat64("max-price-deviations.fee")
	}
	if v.IsSet("actor-response-timeout") {
		cfg.ActorResponseTimeout = v.GetDuration("actor-response-timeout")
	}
	if v.IsSet("allowed-order-versions") {
		versions := make(map[order.Version]struct{})
		for _, raw := range v.GetIntSlice("allowed-order-versions") {
			versions[order.Version(raw)] = struct{}{}
		}
		cfg.AllowedOrderVersions = versions
	}
	if v.IsSet("price-assets") {
		assets, err := parseAssetList(v.GetStringSlice("price-assets"))
		if err != nil {
			return cfg, fmt.Errorf("config: price-assets: %w", err)
		}
		cfg.PriceAssets = assets
	}
	if v.IsSet("blacklisted-assets") {
		assets, err := parseAssetList(v.GetStringSlice("blacklisted-assets"))
		if err != nil {
			return cfg, fmt.Errorf("config: blacklisted-assets: %w", err)
		}
		set := make(map[asset.Asset]struct{}, len(assets))
		for _, a := range assets {
			set[a] = struct{}{}
		}
		cfg.Blacklist.Assets = set
	}
	if v.IsSet("blacklisted-addresses") {
		set := make(map[common.Address]struct{})
		for _, raw := range v.GetStringSlice("blacklisted-addresses") {
			set[common.HexToAddress(strings.TrimSpace(raw))] = struct{}{}
		}
		cfg.Blacklist.Addresses = set
	}
	if v.IsSet("blacklisted-names") {
		set := make(map[string]struct{})
		for _, raw := range v.GetStringSlice("blacklisted-names") {
			set[strings.TrimSpace(raw)] = struct{}{}
		}
		cfg.Blacklist.Names = set
	}

	return cfg, nil
}

// parseAsset parses one asset as config files and env vars spell it:
// "WAVES" (case-insensitive) for the native asset, or the 64-character
// hex content id for an issued one, mirroring asset.Asset.String().
func parseAsset(s string) (asset.Asset, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "WAVES") {
		return asset.Native, nil
	}
	id, err := hex.DecodeString(s)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("invalid asset id %q: %w", s, err)
	}
	return asset.IssuedFromBytes(id)
}

func parseAssetList(raw []string) ([]asset.Asset, error) {
	out := make([]asset.Asset, 0, len(raw))
	for _, s := range raw {
		a, err := parseAsset(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
