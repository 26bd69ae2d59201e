// README: Entry point; loads config, wires modules, starts the HTTP server.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mealdrop/internal/config"
	httptransport "mealdrop/internal/http"
	"mealdrop/internal/infra"
	"mealdrop/internal/logx"
	"mealdrop/internal/maps"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/modules/assignment"
	"mealdrop/internal/modules/dispatch"
	"mealdrop/internal/modules/matching"
	"mealdrop/internal/modules/order"
	"mealdrop/internal/modules/presence"
	"mealdrop/internal/modules/pricing"
	"mealdrop/internal/modules/registry"
	"mealdrop/internal/notify"
	"mealdrop/internal/payment"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logx.New(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	geoService, err := maps.NewGeoService(cfg.Maps.APIKey)
	if err != nil {
		log.Fatalf("maps init: %v", err)
	}
	processor := payment.NewStripeProcessor(cfg.Stripe.APIKey)
	mailer := notify.NewMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.User, cfg.Mail.Pass, cfg.Mail.From)

	accountStore := accounts.NewStore(dbPool)
	presenceStore := presence.NewStore(dbPool, redisClient, cfg.Dispatch.PresenceTTL)
	attemptStore := assignment.NewStore(dbPool)
	connRegistry := registry.New()

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, geoService, pricing.NewService(), accountStore, processor, mailer, logger)

	matchingSvc := matching.NewService(presenceStore, geoService, orderSvc, accountStore, connRegistry, cfg.Dispatch.CandidatePoolSize, logger)

	dispatchSvc := dispatch.NewService(
		orderSvc, matchingSvc, connRegistry, presenceStore, attemptStore, accountStore,
		cfg.Dispatch, logger,
	)

	handler := httptransport.NewRouter(orderSvc, dispatchSvc, accountStore, logger)
	server := httptransport.NewServer(cfg.HTTP.Addr, handler, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	if err := server.Run(); err != nil {
		log.Fatal(err)
	}
}
