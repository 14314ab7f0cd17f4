package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jetstore/store-service/internal/adapters/cryptopay"
	"github.com/jetstore/store-service/internal/adapters/fragment"
	"github.com/jetstore/store-service/internal/adapters/freekassa"
	"github.com/jetstore/store-service/internal/adapters/platega"
	"github.com/jetstore/store-service/internal/adapters/pricefeed"
	"github.com/jetstore/store-service/internal/adapters/telegram"
	"github.com/jetstore/store-service/internal/adapters/tonapi"
	"github.com/jetstore/store-service/internal/adapters/tonwallet"
	"github.com/jetstore/store-service/internal/api/handlers"
	"github.com/jetstore/store-service/internal/api/routes"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/internal/domain/services/confirm"
	"github.com/jetstore/store-service/internal/domain/services/fulfill"
	"github.com/jetstore/store-service/internal/domain/services/orders"
	"github.com/jetstore/store-service/internal/domain/services/pricing"
	"github.com/jetstore/store-service/internal/domain/services/rates"
	"github.com/jetstore/store-service/internal/domain/services/referral"
	"github.com/jetstore/store-service/internal/infrastructure/cache"
	"github.com/jetstore/store-service/internal/infrastructure/config"
	"github.com/jetstore/store-service/internal/infrastructure/database"
	"github.com/jetstore/store-service/internal/infrastructure/filestore"
	pgrepos "github.com/jetstore/store-service/internal/infrastructure/repositories"
	"github.com/jetstore/store-service/internal/workers/reconciler"
	"github.com/jetstore/store-service/pkg/graceful"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

// dbPinger adapts the sqlx pool to the health probe.
type dbPinger struct {
	db *sqlx.DB
}

func (p dbPinger) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// workerShutdowner adapts the reconcile worker to graceful shutdown.
type workerShutdowner struct {
	worker *reconciler.Worker
}

func (w workerShutdowner) Shutdown(time.Duration) error {
	w.worker.Stop()
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting store service",
		"environment", cfg.Environment,
		"database", cfg.Database.Enabled,
		"redis", cfg.Redis.Enabled,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Persistence: Postgres when enabled, atomic JSON files otherwise.
	// Rate overrides always layer the local file underneath so a file
	// edit still applies when its key has no database row.
	var (
		db            *sqlx.DB
		orderStore    repositories.OrderStore
		referralStore repositories.ReferralStore
		rateStores    []repositories.RateStore
		spinStore     repositories.SpinStore
		healthPinger  handlers.Pinger
	)
	fileRateStore := filestore.NewRateStore(cfg.Rates.FilePath)
	if cfg.Database.Enabled {
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", "error", err)
		}
		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			log.Fatal("Failed to run migrations", "error", err)
		}
		orderStore = pgrepos.NewOrderRepository(db)
		referralStore = pgrepos.NewReferralRepository(db)
		rateStores = []repositories.RateStore{pgrepos.NewRateRepository(db), fileRateStore}
		spinStore = pgrepos.NewSpinRepository(db)
		healthPinger = dbPinger{db: db}
	} else {
		orderStore = filestore.NewOrderStore(cfg.DataDir)
		referralStore = filestore.NewReferralStore(cfg.DataDir)
		rateStores = []repositories.RateStore{fileRateStore}
		spinStore = filestore.NewSpinStore(cfg.DataDir)
	}

	var redisClient cache.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to redis", "error", err)
		}
	}

	// Gateway clients; unconfigured rails stay nil and their orders are
	// rejected at creation.
	var cryptopayClient *cryptopay.Client
	if cfg.CryptoPay.APIToken != "" {
		cryptopayClient = cryptopay.NewClient(cryptopay.Config{
			APIToken: cfg.CryptoPay.APIToken,
			BaseURL:  cfg.CryptoPay.BaseURL,
			Asset:    cfg.CryptoPay.Asset,
			Timeout:  time.Duration(cfg.CryptoPay.Timeout) * time.Second,
		}, log)
	}
	var plategaClient *platega.Client
	if cfg.Platega.MerchantID != "" {
		plategaClient = platega.NewClient(platega.Config{
			MerchantID: cfg.Platega.MerchantID,
			Secret:     cfg.Platega.Secret,
			BaseURL:    cfg.Platega.BaseURL,
			ReturnURL:  cfg.Platega.ReturnURL,
			Timeout:    time.Duration(cfg.Platega.Timeout) * time.Second,
		}, log)
	}
	var freekassaClient *freekassa.Client
	if cfg.FreeKassa.MerchantID != "" {
		freekassaClient = freekassa.NewClient(freekassa.Config{
			MerchantID: cfg.FreeKassa.MerchantID,
			Secret1:    cfg.FreeKassa.Secret1,
			Secret2:    cfg.FreeKassa.Secret2,
			APIKey:     cfg.FreeKassa.APIKey,
			BaseURL:    cfg.FreeKassa.BaseURL,
			Timeout:    time.Duration(cfg.FreeKassa.Timeout) * time.Second,
		}, log)
	}
	var chainClient *tonapi.Client
	if cfg.TON.MerchantAddress != "" {
		chainClient = tonapi.NewClient(tonapi.Config{
			BaseURL: cfg.TON.IndexerBaseURL,
			APIKey:  cfg.TON.IndexerAPIKey,
			Timeout: time.Duration(cfg.TON.Timeout) * time.Second,
		}, log)
	}

	feedClient := pricefeed.NewClient(pricefeed.Config{
		URL: cfg.Rates.FeedURL,
	}, log)

	var marketClient *fragment.Client
	if cfg.Fragment.Cookie != "" && cfg.Fragment.APIHash != "" {
		marketClient = fragment.NewClient(fragment.Config{
			BaseURL: cfg.Fragment.BaseURL,
			Cookie:  cfg.Fragment.Cookie,
			APIHash: cfg.Fragment.APIHash,
			Timeout: time.Duration(cfg.Fragment.Timeout) * time.Second,
		}, log)
	}
	var walletClient *tonwallet.Client
	if cfg.TON.WalletAPIURL != "" {
		walletClient = tonwallet.NewClient(tonwallet.Config{
			BaseURL:       cfg.TON.WalletAPIURL,
			APIKey:        cfg.TON.WalletAPIKey,
			WalletAddress: cfg.TON.WalletAddress,
			Timeout:       time.Duration(cfg.TON.Timeout) * time.Second,
		}, log)
	}
	notifier := telegram.NewNotifier(telegram.Config{
		BotToken:     cfg.Telegram.BotToken,
		NotifyChatID: cfg.Telegram.NotifyChatID,
		BotUsername:  cfg.Telegram.BotUsername,
		Timeout:      time.Duration(cfg.Telegram.Timeout) * time.Second,
	}, log)

	// Domain services.
	rateService := rates.NewService(rateStores, feedClient, redisClient,
		time.Duration(cfg.Rates.FeedCacheTTL)*time.Second, log)
	pricingService := pricing.NewService(rateService)
	orderService := orders.NewService(orderStore, pricingService, rateService,
		cryptopayClient, plategaClient, freekassaClient, cfg.TON.MerchantAddress, m, log)
	referralService := referral.NewService(referralStore, rateService, notifier, log)

	var invoiceChecker confirm.InvoiceChecker
	if cryptopayClient != nil {
		invoiceChecker = cryptopayClient
	}
	var transactionChecker confirm.TransactionChecker
	if plategaClient != nil {
		transactionChecker = plategaClient
	}
	var orderChecker confirm.OrderChecker
	if freekassaClient != nil {
		orderChecker = freekassaClient
	}
	var chainScanner confirm.ChainScanner
	if chainClient != nil {
		chainScanner = chainClient
	}
	confirmService := confirm.NewService(orderStore, invoiceChecker, transactionChecker,
		orderChecker, chainScanner, cfg.TON.MerchantAddress, cfg.TON.EventScanLimit, log)

	var market fulfill.GiftMarket
	if marketClient != nil {
		market = marketClient
	}
	var wallet fulfill.Wallet
	if walletClient != nil {
		wallet = walletClient
	}
	engine := fulfill.NewEngine(orderStore, spinStore, market, wallet, notifier,
		referralService, m, log)

	var cryptopayVerifier, plategaVerifier handlers.SignatureVerifier
	if cryptopayClient != nil {
		cryptopayVerifier = cryptopayClient
	}
	if plategaClient != nil {
		plategaVerifier = plategaClient
	}
	var callbackVerifier handlers.CallbackVerifier
	if freekassaClient != nil {
		callbackVerifier = freekassaClient
	}

	router := routes.SetupRoutes(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  m,
		Registry: registry,
		Orders:   handlers.NewOrderHandler(orderService, orderStore, confirmService, engine, m, log),
		Webhooks: handlers.NewWebhookHandler(cryptopayVerifier, plategaVerifier, callbackVerifier, engine, m, log),
		Configs:  handlers.NewConfigHandler(rateService),
		Referral: handlers.NewReferralHandler(referralService, log),
		Admin:    handlers.NewAdminHandler(rateService, log),
		Health:   handlers.NewHealthHandler(healthPinger),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	shutdown := graceful.NewShutdownManager(server, sqlDBOrNil(db), log)

	if cfg.Workers.ReconcileEnabled {
		worker := reconciler.NewWorker(orderStore, confirmService, engine, &reconciler.Config{
			Spec:   cfg.Workers.ReconcileSpec,
			Grace:  time.Duration(cfg.Workers.ReconcileGraceSec) * time.Second,
			MaxAge: time.Duration(cfg.Workers.ReconcileMaxAgeSec) * time.Second,
		}, m, log)
		if err := worker.Start(context.Background()); err != nil {
			log.Fatal("Failed to start reconciliation worker", "error", err)
		}
		shutdown.Register(workerShutdowner{worker: worker})
	}

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	shutdown.WaitForShutdown()
}

func sqlDBOrNil(db *sqlx.DB) *sql.DB {
	if db == nil {
		return nil
	}
	return db.DB
}
