package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lumenex/matcher/pkg/asset"
	"github.com/lumenex/matcher/pkg/order"
)

func TestDefaultIsAdmissible(t *testing.T) {
	cfg := Default()

	if cfg.EventsQueueType != EventsQueueLocal {
		t.Fatalf("default EventsQueueType = %v, want %v", cfg.EventsQueueType, EventsQueueLocal)
	}
	if !cfg.AdminCancelAlways {
		t.Fatal("default AdminCancelAlways = false, want true")
	}
	for _, v := range []order.Version{order.V1, order.V2, order.V3} {
		if !cfg.IsVersionAllowed(v) {
			t.Fatalf("default config rejects version %v", v)
		}
	}
}

func TestFeeAssetAllowed(t *testing.T) {
	var usdID [32]byte
	usdID[0] = 0x09
	usd := asset.NewIssued(usdID)

	fee := OrderFee{AllowedFeeAssets: []asset.Asset{usd}}

	if !fee.FeeAssetAllowed(asset.Native) {
		t.Error("native asset should always be an allowed fee asset")
	}
	if !fee.FeeAssetAllowed(usd) {
		t.Error("explicitly allowed asset should be allowed")
	}

	var otherID [32]byte
	otherID[0] = 0x0a
	other := asset.NewIssued(otherID)
	if fee.FeeAssetAllowed(other) {
		t.Error("asset not in the allowlist should not be allowed")
	}
}

func TestBlacklist(t *testing.T) {
	var blocked common.Address
	blocked[0] = 0xAB
	var blockedAssetID [32]byte
	blockedAssetID[0] = 0x01
	blockedAsset := asset.NewIssued(blockedAssetID)

	cfg := Default()
	cfg.Blacklist.Addresses[blocked] = struct{}{}
	cfg.Blacklist.Assets[blockedAsset] = struct{}{}

	if !cfg.IsAddressBlacklisted(blocked) {
		t.Error("blacklisted address reported as allowed")
	}
	if cfg.IsAddressBlacklisted(common.Address{}) {
		t.Error("zero address reported as blacklisted")
	}
	if !cfg.IsAssetBlacklisted(blockedAsset) {
		t.Error("blacklisted asset reported as allowed")
	}
	if cfg.IsAssetBlacklisted(asset.Native) {
		t.Error("native asset reported as blacklisted")
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "matcher.yaml")
	body := "snapshots-interval: 42\nactor-response-timeout: 7s\norder-fee:\n  mode: fixed\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SnapshotsInterval != 42 {
		t.Errorf("SnapshotsInterval = %d, want 42", cfg.SnapshotsInterval)
	}
	if cfg.ActorResponseTimeout != 7*time.Second {
		t.Errorf("ActorResponseTimeout = %v, want 7s", cfg.ActorResponseTimeout)
	}
	if cfg.OrderFee.Mode != FeeModeFixed {
		t.Errorf("OrderFee.Mode = %v, want %v", cfg.OrderFee.Mode, FeeModeFixed)
	}
	// Unset fields keep their defaults.
	if cfg.SnapshotsLoadingTimeout != Default().SnapshotsLoadingTimeout {
		t.Errorf("SnapshotsLoadingTimeout changed despite no override")
	}
}

func TestLoadWiresDenylistsAndVersionsAndPriceAssets(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "matcher.yaml")
	body := "" +
		"blacklisted-assets:\n  - \"0101010101010101010101010101010101010101010101010101010101010101\"\n" +
		"blacklisted-addresses:\n  - \"0x00000000000000000000000000000000000abc\"\n" +
		"blacklisted-names:\n  - \"scam token\"\n" +
		"allowed-order-versions:\n  - 1\n  - 2\n" +
		"price-assets:\n  - WAVES\n  - \"0202020202020202020202020202020202020202020202020202020202020202\"\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var blockedAssetID [32]byte
	blockedAssetID[0] = 0x01
	if !cfg.IsAssetBlacklisted(asset.NewIssued(blockedAssetID)) {
		t.Error("blacklisted-assets was not wired from config")
	}
	if !cfg.IsAddressBlacklisted(common.HexToAddress("0x00000000000000000000000000000000000abc")) {
		t.Error("blacklisted-addresses was not wired from config")
	}
	if _, ok := cfg.Blacklist.Names["scam token"]; !ok {
		t.Error("blacklisted-names was not wired from config")
	}
	if cfg.IsVersionAllowed(order.V3) {
		t.Error("allowed-order-versions should have narrowed out V3")
	}
	if !cfg.IsVersionAllowed(order.V1) || !cfg.IsVersionAllowed(order.V2) {
		t.Error("allowed-order-versions should admit V1 and V2")
	}
	if !cfg.IsPriceAssetCanonical(asset.Native) {
		t.Error("price-assets should admit WAVES")
	}
	var otherAssetID [32]byte
	otherAssetID[0] = 0x03
	if cfg.IsPriceAssetCanonical(asset.NewIssued(otherAssetID)) {
		t.Error("price-assets should reject an asset not on the list")
	}
}

func TestLoadWithoutFileKeepsDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SnapshotsInterval != Default().SnapshotsInterval {
		t.Errorf("SnapshotsInterval = %d, want default %d", cfg.SnapshotsInterval, Default().SnapshotsInterval)
	}
}
