package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yeremiapane/tenant-realtime/client"
	"github.com/yeremiapane/tenant-realtime/config"
	"github.com/yeremiapane/tenant-realtime/database"
	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/middlewares"
	"github.com/yeremiapane/tenant-realtime/router"
	"github.com/yeremiapane/tenant-realtime/services"
	"github.com/yeremiapane/tenant-realtime/stream"
	"github.com/yeremiapane/tenant-realtime/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tenant-realtime",
		Short: "Tenant-scoped notification and metrics streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})
	rootCmd.AddCommand(newWatchCmd(), newTokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is the wired server.
type app struct {
	cfg     *config.Configuration
	bus     *hub.Bus
	manager *stream.Manager
	monitor *services.MetricsMonitor
	relay   *services.OutboxRelay
	server  *http.Server
}

func newApp(cfg *config.Configuration) (*app, error) {
	utils.JWTSecret = []byte(cfg.JWTSecret)
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	bus := hub.NewBus(hub.Options{QueueSize: cfg.SubscriptionQueueSize, Shards: cfg.RegistryShards})
	manager := stream.NewManager(bus, stream.Options{Heartbeat: cfg.HeartbeatInterval})
	notifications := services.NewNotificationService(db, bus)
	publisher := services.NewEventPublisher(bus)

	aggregator := services.NewMetricsAggregator(
		services.NewGormAggregateSource(db), bus,
		services.DatabaseCheck(db), services.BusCheck(bus),
	)
	aggregator.QueryTimeout = cfg.MetricsQueryTimeout

	a := &app{cfg: cfg, bus: bus, manager: manager}
	if cfg.MetricsInterval > 0 {
		a.monitor = services.NewMetricsMonitor(aggregator, bus.ActiveOrgs)
		a.monitor.Interval = cfg.MetricsInterval
	}
	if cfg.OutboxInterval > 0 {
		a.relay = services.NewOutboxRelay(db, publisher)
		a.relay.Interval = cfg.OutboxInterval
	}

	r := router.SetupRouter(router.Dependencies{
		Bus:           bus,
		Manager:       manager,
		Notifications: notifications,
		Publisher:     publisher,
		Metrics:       aggregator,
		RateLimiter:   middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		CORSOrigins:   cfg.CORSOrigins,
		WebhookSecret: cfg.WebhookSecret,
	})
	a.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// run serves until ctx is cancelled, then ends every stream session before
// shutting the HTTP server down.
func (a *app) run(ctx context.Context) error {
	if a.monitor != nil {
		a.monitor.Start()
		defer a.monitor.Stop()
	}
	if a.relay != nil {
		a.relay.Start()
		defer a.relay.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		utils.InfoLogger.Printf("Listening on %s", a.cfg.Address)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	utils.InfoLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.WithError(err).Error("stream sessions did not finish in time")
	}
	err := a.server.Shutdown(shutdownCtx)
	a.bus.Close()
	return err
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("invalid configuration")
		return err
	}
	utils.InitLogger(cfg.Log)

	a, err := newApp(cfg)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("startup failed")
		return err
	}
	return a.run(ctx)
}

func newWatchCmd() *cobra.Command {
	var server, token string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the notification stream and print the live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			utils.InitLogger()
			if token == "" {
				token = os.Getenv("REALTIME_TOKEN")
			}
			if token == "" {
				return errors.New("a token is required (--token or REALTIME_TOKEN)")
			}

			api := client.NewAPI(server, token)
			feed := client.NewFeed()
			ctrl := client.NewController(server+"/api/notifications/stream", token)
			ctrl.Resync = func(ctx context.Context) error {
				if err := api.Resync(ctx, feed); err != nil {
					return err
				}
				utils.InfoLogger.WithFields(logrus.Fields{"items": len(feed.List()), "unread": feed.Unread()}).Info("feed resynced")
				return nil
			}
			ctrl.OnEvent = func(env events.Envelope) {
				if !feed.Apply(env) {
					return
				}
				utils.InfoLogger.WithFields(logrus.Fields{
					"event":  env.Event,
					"scope":  env.Scope.Key(),
					"unread": feed.Unread(),
				}).Info("event applied")
			}
			ctrl.OnState = func(s client.State) {
				utils.InfoLogger.WithField("state", s.String()).Info("stream state")
			}
			ctrl.OnError = func(err error) {
				utils.InfoLogger.WithError(err).Warn("stream error")
			}

			return ctrl.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var org, user, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			utils.JWTSecret = []byte(cfg.JWTSecret)

			switch role {
			case utils.RoleMember, utils.RoleOrgAdmin, utils.RoleSuperadmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := utils.GenerateToken(utils.Identity{UserID: user, OrgID: org, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "org id")
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", utils.RoleMember, "member, admin or superadmin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
