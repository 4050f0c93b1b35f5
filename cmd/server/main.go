package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rental-backend/internal/archive"
	"rental-backend/internal/auth"
	"rental-backend/internal/cache"
	"rental-backend/internal/config"
	"rental-backend/internal/database"
	"rental-backend/internal/db"
	"rental-backend/internal/fieldcrypt"
	"rental-backend/internal/gateway"
	"rental-backend/internal/handlers"
	"rental-backend/internal/health"
	h "rental-backend/internal/http"
	"rental-backend/internal/logger"
	"rental-backend/internal/middleware"
	"rental-backend/internal/repositories"
	"rental-backend/internal/services"
	"rental-backend/migrations"
)

func main() {
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

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("connected to database", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := database.NewMigrator(pool, migrations.FS, log).RunMigrations(migrateCtx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	statusCache, err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.StatusTTL)
	if err != nil {
		log.Warn("status cache unavailable, polling reads go to the database", zap.Error(err))
	} else if statusCache.Enabled() {
		log.Info("status cache connected", zap.String("addr", cfg.Redis.Addr))
	}
	defer statusCache.Close()

	cipher, err := fieldcrypt.New(fieldcrypt.Config{
		CurrentKey:  cfg.Crypto.CurrentKey,
		PreviousKey: cfg.Crypto.PreviousKey,
	})
	if err != nil {
		return fmt.Errorf("failed to init field cipher: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	log.Info("payment gateways enabled", zap.Strings("gateways", registry.Names()))

	var arch archive.Archiver = archive.Nop{}
	if cfg.ArchiveEnabled() {
		s3Archive, err := archive.NewS3Archive(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to init message archive: %w", err)
		}
		arch = s3Archive
		log.Info("archiving gateway messages", zap.String("bucket", cfg.Archive.Bucket))
	}

	jwtManager := auth.NewJWTManager(cfg)

	roomRepo := repositories.NewRoomRepository(pool)
	tenantRepo := repositories.NewTenantRepository(pool)
	readingRepo := repositories.NewMeterReadingRepository(pool)
	settingRepo := repositories.NewSystemSettingRepository(pool)
	invoiceRepo := repositories.NewInvoiceRepository(pool)
	paymentRepo := repositories.NewPaymentRepository(pool)
	anomalyRepo := repositories.NewAnomalyRepository(pool)

	meterService := services.NewMeterService(readingRepo, roomRepo, settingRepo, invoiceRepo, statusCache, log)
	invoiceService := services.NewInvoiceService(invoiceRepo, paymentRepo, statusCache, log)
	reconciler := services.NewPaymentReconciler(invoiceRepo, invoiceService, statusCache, log)
	paymentService := services.NewPaymentService(registry, invoiceRepo, paymentRepo, tenantRepo, cipher, reconciler, arch, statusCache, log)
	paymentQuery := services.NewPaymentQuery(registry, invoiceRepo, paymentRepo, statusCache, log)
	anomalyService := services.NewAnomalyService(anomalyRepo)

	healthChecker := health.NewHealthChecker(pool, statusCache)

	router := h.NewRouter(h.Handlers{
		Invoice:  handlers.NewInvoiceHandler(invoiceService, meterService, log),
		Meter:    handlers.NewMeterHandler(meterService, log),
		Gateway:  handlers.NewGatewayHandler(paymentService, paymentQuery, cfg.Server.AppReturnURL, log),
		Settings: handlers.NewSettingsHandler(meterService, anomalyService, log),
		Health:   handlers.NewHealthHandler(healthChecker),
	}, middleware.NewAuthMiddleware(jwtManager), log)

	corsMiddleware := middleware.NewCORS(cfg)
	handler := middleware.PanicRecovery(log)(corsMiddleware(router))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

// buildRegistry registers every enabled gateway. Return and callback URLs
// hang off the public base URL so a deployment only configures one host.
func buildRegistry(cfg *config.Config) (*gateway.Registry, error) {
	base := strings.TrimRight(cfg.Server.PublicBaseURL, "/")

	var adapters []gateway.Adapter
	if cfg.VNPay.Enabled {
		adapters = append(adapters, gateway.NewVNPay(gateway.VNPayConfig{
			TmnCode:       cfg.VNPay.TmnCode,
			HashSecret:    cfg.VNPay.HashSecret,
			PayURL:        cfg.VNPay.PayURL,
			ReturnURL:     base + "/vnpay/return",
			Locale:        cfg.VNPay.Locale,
			ExpireMinutes: cfg.VNPay.ExpireMinutes,
		}))
	}
	if cfg.MoMo.Enabled {
		adapters = append(adapters, gateway.NewMoMo(gateway.MoMoConfig{
			PartnerCode: cfg.MoMo.PartnerCode,
			AccessKey:   cfg.MoMo.AccessKey,
			SecretKey:   cfg.MoMo.SecretKey,
			Endpoint:    cfg.MoMo.Endpoint,
			RedirectURL: base + "/momo/return",
			IPNURL:      base + "/momo/callback",
			RequestType: cfg.MoMo.RequestType,
			Timeout:     cfg.MoMo.Timeout,
		}))
	}
	if len(adapters) == 0 {
		return nil, errors.New("no payment gateway enabled")
	}
	return gateway.NewRegistry(adapters...), nil
}
