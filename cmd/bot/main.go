// Command bot runs the ledger bot: the Discord gateway session, the store
// supervisor, and the health endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/bot"
	"github.com/sakif/ledgerbot/internal/cache"
	"github.com/sakif/ledgerbot/internal/config"
	"github.com/sakif/ledgerbot/internal/discord"
	"github.com/sakif/ledgerbot/internal/logger"
	"github.com/sakif/ledgerbot/internal/repository"
	"github.com/sakif/ledgerbot/internal/server"
	"github.com/sakif/ledgerbot/internal/service"
	"github.com/sakif/ledgerbot/internal/storage"
	"github.com/sakif/ledgerbot/internal/worker"
)

const serviceName = "ledgerbot"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(serviceName, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []storage.Option{storage.WithReconnect(cfg.Store.ReconnectInterval, cfg.Store.Timeout)}
	if wrap, closeCache := cacheWrapper(ctx, cfg, log); wrap != nil {
		opts = append(opts, storage.WithWrapper(wrap))
		defer closeCache()
	}

	// A failed first connect leaves the supervisor degraded; the reconnect
	// job keeps trying.
	store := storage.NewSupervisor(cfg.Store.DatabaseURL, logger.Component(log, "storage"), opts...)
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	_ = store.Connect(connectCtx)
	cancel()
	if err := store.Start(); err != nil {
		return fmt.Errorf("starting reconnect job: %w", err)
	}
	defer store.Close()

	pool := worker.New(cfg.Store.WorkerPoolSize, logger.Component(log, "worker"))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Store.Timeout)
		defer cancel()
		if err := pool.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("worker pool did not drain")
		}
	}()

	ledger := service.NewLedgerService(store, cfg.Location(), logger.Component(log, "ledger"))
	router := bot.NewRouter(bot.Config{
		Ledger:       ledger,
		Pool:         pool,
		AdminID:      cfg.Discord.AdminID,
		StoreTimeout: cfg.Store.Timeout,
		Logger:       logger.Component(log, "bot"),
	})

	gatewayLog, verbose, closeGatewayLog, err := gatewayLogger(cfg, log)
	if err != nil {
		return err
	}
	defer closeGatewayLog()

	gateway, err := discord.New(cfg.Discord.Token, cfg.Discord.GuildID, router, logger.Component(log, "discord"),
		discord.WithGatewayLog(gatewayLog, verbose))
	if err != nil {
		return err
	}
	if err := gateway.Open(); err != nil {
		return err
	}
	defer gateway.Close()

	srv := server.New(cfg.Server.Port, store, logger.Component(log, "http"))
	if err := srv.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("shutting down")
	return nil
}

// cacheWrapper returns a decorator backed by redis and its closer, or nils
// when REDIS_ADDR is unset or redis cannot be reached.
func cacheWrapper(ctx context.Context, cfg *config.Config, log zerolog.Logger) (func(repository.LedgerRepository) repository.LedgerRepository, func() error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := cache.NewRedisClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without cache")
		return nil, nil
	}

	rc := cache.NewRedisCache(client)
	cacheLog := logger.Component(log, "cache")
	wrap := func(next repository.LedgerRepository) repository.LedgerRepository {
		return cache.NewRepository(next, rc, cfg.Redis.TTL, cacheLog)
	}
	return wrap, rc.Close
}

// gatewayLogger picks where discordgo's own log goes: DISCORD_LOG_FILE at
// debug level when set, otherwise the main log at warning level.
func gatewayLogger(cfg *config.Config, log zerolog.Logger) (zerolog.Logger, bool, func() error, error) {
	if cfg.Discord.LogFile == "" {
		return logger.Component(log, "discordgo"), cfg.Debug, func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.Discord.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return zerolog.Logger{}, false, nil, fmt.Errorf("opening %s: %w", cfg.Discord.LogFile, err)
	}
	return logger.Component(logger.NewWithWriter(f, serviceName, true), "discordgo"), true, f.Close, nil
}
