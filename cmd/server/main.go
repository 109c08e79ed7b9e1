package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/config"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/database"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/pricing"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/router"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/mq"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	providers := buildProviders(cfg)

	var pub *mq.Publisher
	if cfg.AMQP.URL != "" {
		pub, err = mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Printf("[notify] rabbitmq disabled: %v", err)
			pub = nil
		} else {
			defer pub.Close()
		}
	} else {
		log.Printf("[notify] rabbitmq disabled: set AMQP_URL to enable")
	}

	rates := pricing.StaticRates{
		"USD/EUR": 0.92,
		"EUR/USD": 1.09,
		"USD/GBP": 0.79,
	}

	engine := router.Setup(cfg, db, providers, pub, rates)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	fmt.Println("server stopped")
}

func buildProviders(cfg *config.Config) *provider.Registry {
	if cfg.Provider.UseStub {
		log.Printf("[providers] using deterministic stubs")
		return provider.NewRegistry(
			provider.NewStubProvider("syncpay", domain.ModelSyncCharge, cfg.Payment.OrderExpiry),
			provider.NewStubProvider("orderpay", domain.ModelOrderCapture, cfg.Payment.OrderExpiry),
			provider.NewStubProvider("tokenvault", domain.ModelTokenSetup, cfg.Payment.OrderExpiry),
		)
	}
	return provider.NewRegistry(
		provider.NewSyncPayProvider(cfg.Provider.SyncPayBaseURL, cfg.Provider.SyncPayAPIKey),
		provider.NewOrderPayProvider(cfg.Provider.OrderPayBaseURL, cfg.Provider.OrderPayAPIKey),
		provider.NewTokenVaultProvider(cfg.Provider.VaultBaseURL, cfg.Provider.VaultAPIKey),
	)
}
