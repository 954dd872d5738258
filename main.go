package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/veilbridge/ledger-infrastructure/chain"
	"github.com/veilbridge/ledger-infrastructure/indexer"
	"github.com/veilbridge/ledger-infrastructure/indexer/db"
	"github.com/veilbridge/ledger-infrastructure/keyregistry"
	"github.com/veilbridge/ledger-infrastructure/keyregistry/helper"
	"github.com/veilbridge/ledger-infrastructure/logger"
	"github.com/veilbridge/ledger-infrastructure/metrics"
	"github.com/veilbridge/ledger-infrastructure/records"
)

const demoKeyID = "demo"

func startService(ctx context.Context, baseDirectory string) error {
	loggers := logger.NewLoggerContainer(logger.LoggerConfig{
		LogLevel:      hclog.Debug,
		JSONLogFormat: false,
		LogFilePath:   filepath.Join(baseDirectory, "logs"),
	})

	mainLogger, err := loggers.GetLogger("main")
	if err != nil {
		return err
	}

	dbs, err := db.NewDatabaseInit("", filepath.Join(baseDirectory, "ledger.db"))
	if err != nil {
		return err
	}

	keyManager, err := helper.SetupLocalKeyManager(baseDirectory)
	if err != nil {
		return err
	}

	registryLogger, err := loggers.GetLogger("keyregistry")
	if err != nil {
		return err
	}

	registry := keyregistry.NewRegistry(keyManager, registryLogger)

	if !keyManager.HasSecret(keyregistry.ViewKeySecretName(demoKeyID)) {
		material := make([]byte, records.KeySize)
		if _, err := rand.Read(material); err != nil {
			return err
		}

		if err := registry.StoreViewKey(demoKeyID, material); err != nil {
			return err
		}
	}

	keys, err := registry.LoadViewKeys([]string{demoKeyID})
	if err != nil {
		return err
	}

	chainLogger, err := loggers.GetLogger("chain")
	if err != nil {
		return err
	}

	client := chain.NewHTTPClient(&chain.ClientConfig{
		URL:            "http://localhost:3030",
		RequestTimeout: time.Second * 10,
	}, chainLogger)

	engineConfig := &indexer.SyncEngineConfig{
		PollInterval:     time.Second * 15,
		FetchTimeout:     time.Second * 10,
		MaxBlocksPerTick: 45,
		StartingPoint:    &indexer.BlockPoint{},
	}

	engineLogger, err := loggers.GetLogger("sync_engine")
	if err != nil {
		return err
	}

	matcher := indexer.NewRecordMatcher(keys, dbs, engineLogger.Named("matcher"))
	observer := metrics.NewSyncObserver("local")
	engine := indexer.NewSyncEngine(engineConfig, client, matcher, dbs, observer, engineLogger)
	queries := indexer.NewQueryFacade(dbs, engine)

	if err := engine.Start(); err != nil {
		dbs.Close()

		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			engine.Close()
			dbs.Close()
		case err := <-engine.ErrorCh():
			mainLogger.Error("sync engine fatal err", "err", err)

			engine.Close()
			dbs.Close()
		}
	}()

	go func() {
		http.Handle("/metrics", promhttp.Handler())

		if err := http.ListenAndServe("localhost:9090", nil); err != nil { //nolint:gosec
			mainLogger.Error("metrics server err", "err", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			health := queries.Health()
			mainLogger.Info("Status",
				"height", queries.CurrentSyncHeight(), "state", health.State, "reason", health.Reason)
		}
	}()

	return nil
}

func main() {
	baseDirectory, err := os.MkdirTemp("", "ledger-sync")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	defer func() {
		os.RemoveAll(baseDirectory)
		os.Remove(baseDirectory)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChannel := make(chan os.Signal, 1)
	// Notify the signalChannel when the interrupt signal is received (Ctrl+C)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	fmt.Println("starting sync service", baseDirectory)

	if err := startService(ctx, baseDirectory); err != nil {
		fmt.Println("service error", err)
		os.Exit(1)
	}

	<-signalChannel
	cancel()

	// give the worker a moment to flush the last batch
	time.Sleep(time.Second)
}
