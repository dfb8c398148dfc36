package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/channel/adapters/local"
	"github.com/salemchat/salem/internal/channel/adapters/telegram"
	wabusiness "github.com/salemchat/salem/internal/channel/adapters/whatsapp/business"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp/cloud"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp/dialog360"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp/twilio"
	"github.com/salemchat/salem/internal/config"
	"github.com/salemchat/salem/internal/db"
	"github.com/salemchat/salem/internal/funnel"
	"github.com/salemchat/salem/internal/handlers"
	"github.com/salemchat/salem/internal/history"
	"github.com/salemchat/salem/internal/leads"
	"github.com/salemchat/salem/internal/logger"
	"github.com/salemchat/salem/internal/payments"
	"github.com/salemchat/salem/internal/respond"
	"github.com/salemchat/salem/internal/router"
	"github.com/salemchat/salem/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			business.NewService,
			history.NewService,
			leads.NewService,
			payments.NewService,
			provideGenerator,
			provideFunnelManager,
			provideLocalAdapter,
			provideChannelRegistry,
			provideMessaging,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideAdminHandler),
			provideServerHandler(providePaymentsHandler),
			provideServer,
		),
		fx.Invoke(
			startChannelManager,
			startCron,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return config.Config{}, fmt.Errorf("auth.jwt_secret is required")
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Postgres.MigrateOnStart {
		if err := db.Migrate(cfg.Postgres); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideGenerator(log *slog.Logger, cfg config.Config, histories *history.Service) *respond.Generator {
	return respond.NewGenerator(log, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout(), histories)
}

func provideFunnelManager(log *slog.Logger, leadService *leads.Service) *funnel.Manager {
	return funnel.NewManager(log, leadService)
}

func provideLocalAdapter(log *slog.Logger) *local.Adapter {
	return local.New(log)
}

func provideChannelRegistry(log *slog.Logger, capture *local.Adapter) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(telegram.New(log))
	registry.MustRegister(cloud.New(log))
	registry.MustRegister(twilio.New(log))
	registry.MustRegister(dialog360.New(log))
	registry.MustRegister(wabusiness.New(log))
	registry.MustRegister(capture)
	return registry
}

// senderProxy defers the router's outbound path to the channel manager. The
// router and the manager reference each other, so the manager is bound right
// after both are constructed and before anything runs.
type senderProxy struct {
	sender router.Sender
}

func (p *senderProxy) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	if p.sender == nil {
		return fmt.Errorf("sender not bound")
	}
	return p.sender.Send(ctx, cfg, msg)
}

func provideMessaging(log *slog.Logger, registry *channel.Registry, businesses *business.Service, funnelManager *funnel.Manager, generator *respond.Generator, paymentService *payments.Service, histories *history.Service) (*router.Router, *channel.Manager) {
	proxy := &senderProxy{}
	conversationRouter := router.New(log, businesses, funnelManager, generator, proxy, paymentService, histories)
	manager := channel.NewManager(log, registry, businesses, conversationRouter)
	proxy.sender = manager
	return conversationRouter, manager
}

func provideWebhookHandler(log *slog.Logger, registry *channel.Registry, businesses *business.Service, conversationRouter *router.Router) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, registry, businesses, conversationRouter)
}

func provideAdminHandler(log *slog.Logger, businesses *business.Service, histories *history.Service, leadService *leads.Service, paymentService *payments.Service, conversationRouter *router.Router, capture *local.Adapter) *handlers.AdminHandler {
	return handlers.NewAdminHandler(log, businesses, histories, leadService, paymentService, conversationRouter, capture)
}

func providePaymentsHandler(log *slog.Logger, paymentService *payments.Service) *handlers.PaymentsHandler {
	return handlers.NewPaymentsHandler(log, paymentService)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	addr := params.Config.Server.Addr
	if value := os.Getenv("HTTP_ADDR"); value != "" {
		addr = value
	}
	return server.NewServer(params.Logger, addr, params.Config.Auth.JWTSecret, params.ServerHandlers)
}

func startChannelManager(lc fx.Lifecycle, manager *channel.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { manager.Start(ctx); return nil },
		OnStop:  func(stopCtx context.Context) error { cancel(); return manager.Shutdown(stopCtx) },
	})
}

func startCron(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, funnelManager *funnel.Manager, businesses *business.Service) {
	scheduler := cron.New()
	maxAge := cfg.Funnel.MaxAgeDuration()
	_, _ = scheduler.AddFunc("@hourly", func() {
		if evicted := funnelManager.Sweep(maxAge); evicted > 0 {
			log.Info("stale funnel states evicted", slog.Int("count", evicted))
		}
	})
	_, _ = scheduler.AddFunc("@every 10m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := businesses.RefreshCache(ctx); err != nil {
			log.Warn("business cache refresh failed", slog.Any("error", err))
		}
	})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { scheduler.Start(); return nil },
		OnStop: func(ctx context.Context) error {
			stopped := scheduler.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
