package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/georgeshao/discord-relay/internal/api"
	"github.com/georgeshao/discord-relay/internal/config"
	"github.com/georgeshao/discord-relay/internal/dispatcher"
	"github.com/georgeshao/discord-relay/internal/gateway"
	"github.com/georgeshao/discord-relay/internal/greeter"
	"github.com/georgeshao/discord-relay/internal/paramstore"
	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/internal/storage/dynamo"
	"github.com/georgeshao/discord-relay/internal/storage/pebbledb"
	"github.com/georgeshao/discord-relay/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := &awsLoader{}

	token, err := resolveToken(ctx, cfg, loader)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, loader)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	discord, err := gateway.NewDiscord(gateway.DiscordConfig{Token: token, Logger: log})
	if err != nil {
		return err
	}

	if cfg.Greeter.Enabled {
		greeter.New(discord, greeter.Config{
			ServerName: cfg.Greeter.ServerName,
			Welcome:    cfg.Greeter.Welcome,
			Farewell:   cfg.Greeter.Farewell,
		}, log).Register(discord)
	}

	if err := discord.Open(); err != nil {
		return err
	}
	defer func() {
		if err := discord.Close(); err != nil {
			log.Error("failed to close discord session", "error", err)
		}
	}()

	d := dispatcher.New(discord, store, dispatcher.Config{MaxFileBytes: cfg.MaxFileBytes()}, log)

	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             cfg.BodyLimit(),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins(),
		AllowHeaders:  "Origin, Content-Type, Accept",
		ExposeHeaders: "X-Dispatch-ID",
	}))

	api.SetupRoutes(app, d, discord, store, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", cfg.Addr())
		if err := app.Listen(cfg.Addr()); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

// awsLoader loads the shared AWS config once, and only when a component
// needs it.
type awsLoader struct {
	cfg    aws.Config
	loaded bool
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.loaded {
		return l.cfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	l.cfg = cfg
	l.loaded = true
	return cfg, nil
}

func resolveToken(ctx context.Context, cfg *config.Config, loader *awsLoader) (string, error) {
	if cfg.Discord.Token != "" {
		return cfg.Discord.Token, nil
	}

	awsCfg, err := loader.load(ctx)
	if err != nil {
		return "", err
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", err
	}
	token, err := params.GetParameter(ctx, cfg.Discord.TokenParameter)
	if err != nil {
		return "", fmt.Errorf("resolve discord token: %w", err)
	}
	return token, nil
}

// openStore returns a nil Store for the "none" backend.
func openStore(ctx context.Context, cfg *config.Config, loader *awsLoader) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return sqlite.New(cfg.Storage.Path)
	case config.BackendPebble:
		return pebbledb.New(cfg.Storage.Path)
	case config.BackendDynamoDB:
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		return dynamo.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Storage.DynamoDBTable)
	default:
		return nil, nil
	}
}
