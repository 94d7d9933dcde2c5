package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/cupOJoseph/meatboard/internal/auth"
	"github.com/cupOJoseph/meatboard/internal/blockchain"
	"github.com/cupOJoseph/meatboard/internal/config"
	"github.com/cupOJoseph/meatboard/internal/escrow"
	"github.com/cupOJoseph/meatboard/internal/handler"
	"github.com/cupOJoseph/meatboard/internal/metadata"
	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/repository"
	"github.com/cupOJoseph/meatboard/internal/scheduler"
	"github.com/cupOJoseph/meatboard/internal/service"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

func main() {
	// .env存在时加载，缺失不报错
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer closeDatabase(db)

	if err := db.AutoMigrate(
		&models.Bounty{},
		&models.AgentStats{},
		&models.ClaimerStats{},
		&models.ProcessedBlock{},
	); err != nil {
		logger.Fatal("Failed to migrate database:", err)
	}

	bountyRepo := repository.NewBountyRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	blockRepo := repository.NewBlockRepository(db)

	publisher := metadata.NewPublisher(cfg.IPFS)

	builder, err := escrow.NewBuilder(cfg.Escrow.ContractAddress, cfg.Chain.ChainID)
	if err != nil {
		logger.Fatal("Failed to init transaction builder:", err)
	}

	bountySvc := service.NewBountyService(bountyRepo, statsRepo, publisher, builder, cfg.Bounty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := service.NewDispatcher(cfg.Escrow.WorkerPoolSize, cfg.Escrow.QueueSize)
	reconciler := service.NewReconciler(bountyRepo, statsRepo, publisher, dispatcher)

	if cfg.Chain.Enabled {
		go startChainListener(ctx, cfg, blockRepo, reconciler)
	} else {
		logger.Info("Chain listener disabled")
	}

	expiryScheduler := scheduler.NewExpiryScheduler(bountyRepo, statsRepo, cfg.Bounty.ExpiryCron)
	if err := expiryScheduler.Start(); err != nil {
		logger.Fatal("Failed to start expiry scheduler:", err)
	}
	defer expiryScheduler.Stop()

	authenticator := auth.NewAuthenticator(cfg.Auth.APIKeys)
	bountyHandler := handler.NewBountyHandler(bountySvc, statsRepo, authenticator, builder)
	router := handler.NewRouter(bountyHandler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting on port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error:", err)
	}

	logger.Info("Server stopped")
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	return db, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database instance:", err)
		return
	}
	sqlDB.Close()
}

// startChainListener 启动链上事件监听和调和引擎
func startChainListener(ctx context.Context, cfg *config.Config, blockRepo *repository.BlockRepository, reconciler *service.Reconciler) {
	client, err := blockchain.NewClient(&cfg.Chain, cfg.Escrow.ContractAddress)
	if err != nil {
		logger.Error("Failed to create blockchain client:", err)
		return
	}
	defer client.Close()

	lastBlock, err := blockRepo.GetLastProcessed(ctx, cfg.Chain.ID)
	if err != nil {
		logger.Error("Failed to get last processed block:", err)
		return
	}
	if lastBlock == 0 && cfg.Chain.StartBlock > 0 {
		lastBlock = cfg.Chain.StartBlock - 1
	}

	listener := blockchain.NewEventListener(&cfg.Chain, client, blockRepo)

	go reconciler.Run(ctx, listener.GetEventChannel())

	logger.WithFields(map[string]interface{}{
		"chain_id":    cfg.Chain.ID,
		"start_block": lastBlock + 1,
	}).Info("Starting chain listener")

	listener.Start(ctx, lastBlock)
}
