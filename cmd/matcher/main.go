package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lumenex/matcher/pkg/config"
	"github.com/lumenex/matcher/pkg/crypto"
	"github.com/lumenex/matcher/pkg/eventlog"
	"github.com/lumenex/matcher/pkg/ledger"
	"github.com/lumenex/matcher/pkg/matchingrules"
	"github.com/lumenex/matcher/pkg/orchestrator"
	"github.com/lumenex/matcher/pkg/snapshotstore"
	"github.com/lumenex/matcher/pkg/util"
	"github.com/lumenex/matcher/pkg/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("MATCHER_CONFIG"), "")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(dataDir, "matcher.log")
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("matcher_starting",
		zap.String("events_queue_type", string(cfg.EventsQueueType)),
		zap.Uint64("snapshots_interval", cfg.SnapshotsInterval))

	evLog, err := eventlog.Open(cfg, filepath.Join(dataDir, "events"), eventlog.KafkaConfig{
		Brokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		Topic:   envOr("KAFKA_TOPIC", "matcher-events"),
	})
	if err != nil {
		logger.Fatal("event log open failed", zap.Error(err))
	}
	defer evLog.Close()

	snapStore, err := snapshotstore.Open(filepath.Join(dataDir, "snapshots"))
	if err != nil {
		logger.Fatal("snapshot store open failed", zap.Error(err))
	}
	defer snapStore.Close()

	ldg := ledger.New(1000)
	rules := matchingrules.NewRegistry()

	// The order-validation path (pkg/validator, against a concrete
	// chainclient.Client) sits in front of evLog.Append and is wired by
	// the ingress layer that accepts incoming orders, not by the
	// matcher core started here.

	orch := orchestrator.New(orchestrator.Config{
		Cfg:           cfg,
		Log:           evLog,
		SnapshotStore: snapStore,
		Ledger:        ldg,
		Rules:         rules,
		Logger:        logger,
		AdminKey:      worker.AdminKey(cfg.AdminPublicKey),
		AddressOf: worker.AddressOf(func(requestor [32]byte) common.Address {
			return crypto.AddressFromPublicKey(requestor)
		}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(cfg.ProcessConsumedTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if orch.Status() == orchestrator.Working {
					orch.PingAll(ctx)
				}
			}
		}
	}()

	logger.Info("matcher_orchestrator_running")
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("orchestrator stopped with error", zap.Error(err))
	}
	logger.Info("matcher_stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
