package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wardenbot/warden/capstore"
	"github.com/wardenbot/warden/offense"
	"github.com/wardenbot/warden/ratelimit"
	"github.com/wardenbot/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "interaction gating and automated enforcement daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the capability lookup cache (optional)",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for event and admin APIs",
			Value:   ":3999",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "commands-file",
			Usage:   "path to JSON file of command declarations",
			EnvVars: []string{"WARDEN_COMMANDS_FILE"},
		},
		&cli.StringFlag{
			Name:    "grants-file",
			Usage:   "path to JSON file of capability grants (in-memory capability store)",
			EnvVars: []string{"WARDEN_GRANTS_FILE"},
		},
		&cli.StringFlag{
			Name:    "reply-webhook",
			Usage:   "URL to POST interaction replies to (log-only if unset)",
			EnvVars: []string{"WARDEN_REPLY_WEBHOOK"},
		},
		&cli.StringFlag{
			Name:    "sanction-webhook",
			Usage:   "URL to POST sanction/notice actions to (log-only if unset)",
			EnvVars: []string{"WARDEN_SANCTION_WEBHOOK"},
		},
		&cli.IntFlag{
			Name:    "user-rate-limit",
			Usage:   "max interactions per actor within the user window",
			Value:   10,
			EnvVars: []string{"WARDEN_USER_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "user-rate-window",
			Value:   60 * time.Second,
			EnvVars: []string{"WARDEN_USER_RATE_WINDOW"},
		},
		&cli.IntFlag{
			Name:    "global-rate-limit",
			Usage:   "max interactions across all actors within the global window",
			Value:   120,
			EnvVars: []string{"WARDEN_GLOBAL_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "global-rate-window",
			Value:   60 * time.Second,
			EnvVars: []string{"WARDEN_GLOBAL_RATE_WINDOW"},
		},
		&cli.BoolFlag{
			Name:    "rate-limit-disabled",
			EnvVars: []string{"WARDEN_RATE_LIMIT_DISABLED"},
		},
		&cli.DurationFlag{
			Name:    "capability-cache-ttl",
			Value:   5 * time.Minute,
			EnvVars: []string{"WARDEN_CAPABILITY_CACHE_TTL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		offenseStore, err := offense.NewGormStore(db)
		if err != nil {
			return fmt.Errorf("initializing offense store: %w", err)
		}

		mem := capstore.NewMemCapabilityStore()
		if path := cctx.String("grants-file"); path != "" {
			if err := mem.LoadFromFileJSON(path); err != nil {
				return fmt.Errorf("loading capability grants: %w", err)
			}
			logger.Info("loaded capability grants from JSON", "path", path)
		}
		var caps capstore.CapabilityStore = mem
		if redisURL := cctx.String("redis-url"); redisURL != "" {
			cached, err := capstore.NewCachedCapabilityStore(mem, redisURL, cctx.Duration("capability-cache-ttl"))
			if err != nil {
				return fmt.Errorf("initializing capability cache: %w", err)
			}
			caps = cached
			logger.Info("capability lookups cached via redis")
		}

		limiter := ratelimit.New(ratelimit.Config{
			Enabled:      !cctx.Bool("rate-limit-disabled"),
			UserLimit:    cctx.Int("user-rate-limit"),
			UserWindow:   cctx.Duration("user-rate-window"),
			GlobalLimit:  cctx.Int("global-rate-limit"),
			GlobalWindow: cctx.Duration("global-rate-window"),
		})

		srv, err := NewServer(Config{
			Logger:          logger,
			OffenseStore:    offenseStore,
			Capabilities:    caps,
			Limiter:         limiter,
			CommandsFile:    cctx.String("commands-file"),
			ReplyWebhook:    cctx.String("reply-webhook"),
			SanctionWebhook: cctx.String("sanction-webhook"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := srv.Run(ctx, cctx.String("bind")); err != nil {
			return fmt.Errorf("failed to run warden service: %w", err)
		}
		return nil
	},
}
