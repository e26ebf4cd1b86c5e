// Command outboxd is the composition root that wires the outbox Dispatcher
// to a Postgres-backed store and the reference Solana-style ledger adapter,
// then hands both to a Launcher for supervised execution.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	outboxcore "github.com/outboxbridge/core"
	"github.com/outboxbridge/core/internal/config"
	"github.com/outboxbridge/core/ledger/solanarpc"
	"github.com/outboxbridge/core/log"
	"github.com/outboxbridge/core/log/zaplog"
	"github.com/outboxbridge/core/outbox"
	outboxpostgres "github.com/outboxbridge/core/outbox/postgres"
	"github.com/outboxbridge/core/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "outboxd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	logger, err := zaplog.New(level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	defer func() { _ = logger.Sync(context.Background()) }()

	dbClient, err := postgres.New(postgres.Config{
		PrimaryDSN:         cfg.Database.PrimaryDSN,
		ReplicaDSN:         cfg.Database.ReplicaDSN,
		MaxOpenConnections: cfg.Database.MaxOpenConnections,
		MaxIdleConnections: cfg.Database.MaxIdleConnections,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("build postgres client: %w", err)
	}

	defer func() { _ = dbClient.Close() }()

	store, err := outboxpostgres.NewRepository(
		dbClient,
		outboxpostgres.WithTableNames(cfg.Database.OutboxTable, cfg.Database.EntityTable),
	)
	if err != nil {
		return fmt.Errorf("build outbox repository: %w", err)
	}

	ledgerClient, err := buildLedgerClient(cfg.Ledger, logger)
	if err != nil {
		return fmt.Errorf("build ledger client: %w", err)
	}

	dispatcher, err := outbox.NewDispatcher(store, ledgerClient,
		outbox.WithWorkerCount(cfg.Dispatcher.WorkerCount),
		outbox.WithBatchSize(cfg.Dispatcher.BatchSize),
		outbox.WithPollInterval(cfg.Dispatcher.PollInterval),
		outbox.WithBackoff(cfg.Dispatcher.BackoffBase, cfg.Dispatcher.BackoffMax),
		outbox.WithMaxRetries(cfg.Dispatcher.MaxRetries),
		outbox.WithZombieThreshold(cfg.Dispatcher.ZombieThreshold),
		outbox.WithZombieSweepInterval(cfg.Dispatcher.ZombieSweepInterval),
		outbox.WithSubmitTimeout(cfg.Dispatcher.SubmitTimeout),
		outbox.WithEnableWorker(cfg.Dispatcher.EnableWorker),
		outbox.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	launcher := outboxcore.NewLauncher(
		outboxcore.WithLogger(logger),
		outboxcore.RunApp("dispatcher", dispatcher),
	)

	return launcher.RunWithError()
}

// buildLedgerClient decodes the configured fee-payer seed and wires a
// solanarpc.Client against it. The seed is accepted base64-encoded in
// configuration so it survives a plain YAML file or environment variable
// without base58's alphabet colliding with shell quoting conventions.
func buildLedgerClient(cfg config.LedgerConfig, logger log.Logger) (*solanarpc.Client, error) {
	seed, err := base64.StdEncoding.DecodeString(cfg.SignerSeedBase64)
	if err != nil {
		return nil, fmt.Errorf("decode signer seed: %w", err)
	}

	signer, err := solanarpc.NewSigner(seed)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}

	return solanarpc.New(solanarpc.Config{
		Endpoint: cfg.Endpoint,
		Signer:   signer,
		Logger:   logger,
	})
}
