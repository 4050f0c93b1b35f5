// Command rotatekeys re-encrypts tenant PII under the current field key.
// Run it after promoting a new CRYPTO_CURRENT_KEY with the old key kept in
// CRYPTO_PREVIOUS_KEY; once it reports no failures the previous key can go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rental-backend/internal/config"
	"rental-backend/internal/db"
	"rental-backend/internal/fieldcrypt"
	"rental-backend/internal/logger"
	"rental-backend/internal/repositories"
	"rental-backend/internal/services"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	pageSize := flag.Int("page-size", 200, "tenants read per batch")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Crypto.CurrentKey == "" {
		log.Fatal("crypto.current_key (CRYPTO_CURRENT_KEY) is required")
	}
	cipher, err := fieldcrypt.New(fieldcrypt.Config{
		CurrentKey:  cfg.Crypto.CurrentKey,
		PreviousKey: cfg.Crypto.PreviousKey,
	})
	if err != nil {
		log.Fatal("failed to init field cipher", zap.Error(err))
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	rotator := services.NewKeyRotator(repositories.NewTenantRepository(pool), cipher, log)
	rotator.DryRun = *dryRun
	rotator.PageSize = *pageSize

	report, err := rotator.Run(ctx)
	if err != nil {
		log.Fatal("rotation aborted", zap.Error(err))
	}
	log.Info("rotation finished",
		zap.Bool("dry_run", *dryRun),
		zap.Int("tenants_scanned", report.TenantsScanned),
		zap.Int("tenants_updated", report.TenantsUpdated),
		zap.Int("reencrypted", report.Reencrypted),
		zap.Int("legacy_encrypted", report.LegacyEncrypted),
		zap.Int("failed", report.Failed),
		zap.Int64s("failed_tenants", report.FailedTenants),
	)
	if report.Failed > 0 {
		os.Exit(2)
	}
}
