// Command server runs the donation link pool backend.
//
// Startup order: load env config, configure logging, set up tracing, open and
// migrate the SQLite pool store, seed it when a seed file is configured, dial
// the balance oracle, wire the Telegram collaborators, and serve HTTP until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-donation-backend/internal/config"
	httpapi "github.com/tbourn/go-donation-backend/internal/http"
	"github.com/tbourn/go-donation-backend/internal/http/handlers"
	"github.com/tbourn/go-donation-backend/internal/notify"
	"github.com/tbourn/go-donation-backend/internal/observability"
	"github.com/tbourn/go-donation-backend/internal/oracle"
	"github.com/tbourn/go-donation-backend/internal/repo"
	"github.com/tbourn/go-donation-backend/internal/services"
	"github.com/tbourn/go-donation-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open pool store failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate pool store failed")
	}
	if cfg.SeedPath != "" {
		created, err := repo.SeedLinks(ctx, db, cfg.SeedPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SeedPath).Msg("seed pool failed")
		}
		log.Info().Int("created", created).Str("path", cfg.SeedPath).Msg("pool seeded")
	}

	balanceOracle, closeOracle, err := buildOracle(ctx, cfg.Oracle)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Oracle.Provider).Msg("oracle setup failed")
	}
	defer closeOracle()

	deps := httpapi.Collaborators{Oracle: balanceOracle}
	var tg *notify.TelegramClient
	if cfg.Telegram.BotToken != "" {
		tg = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID)
		deps.Notifier = tg
		deps.Greeter = tg
	} else {
		log.Warn().Msg("telegram disabled: no bot token configured")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Connectivity check doubles as the "server is live" operator ping.
	if tg != nil {
		tg.AnnounceStartup(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

// buildOracle selects the configured balance oracle. The returned close
// function is a no-op for providers without a connection to release.
func buildOracle(ctx context.Context, cfg config.OracleConfig) (services.BalanceOracle, func(), error) {
	switch cfg.Provider {
	case "rpc":
		o, err := oracle.DialRPC(ctx, cfg.RPCEndpoint, cfg.TokenContract, cfg.TokenDecimals)
		if err != nil {
			return nil, nil, err
		}
		return o, o.Close, nil
	default:
		o := oracle.NewEtherscan(cfg.EtherscanAPIKey, cfg.EtherscanBaseURL, cfg.TokenContract, cfg.TokenDecimals)
		return o, func() {}, nil
	}
}

// Compile-time checks that the Telegram client satisfies both collaborator
// contracts wired through the router.
var (
	_ services.Notifier = (*notify.TelegramClient)(nil)
	_ handlers.Greeter  = (*notify.TelegramClient)(nil)
)
