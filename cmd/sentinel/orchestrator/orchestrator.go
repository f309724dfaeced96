package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sentinel/api/routes"
	"sentinel/internal/config"
	"sentinel/internal/dao"
	"sentinel/internal/database"
	"sentinel/internal/messaging"
	"sentinel/internal/notification"
	"sentinel/internal/quota"
	"sentinel/internal/services"
)

type serverOpts struct {
	Port int
}

// NewOrchestratorCommand starts the scan orchestrator: HTTP API, status
// event consumer, outbox relay and the stuck-job sweeper.
func NewOrchestratorCommand() *cobra.Command {
	opts := &serverOpts{}

	cmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Start the scan orchestrator server",
		Long:  `Start the scan orchestrator: accepts scan requests, dispatches scan-requested events and tracks job status from scanner events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "Port to run the server on (overrides config)")
	return cmd
}

func run(opts *serverOpts) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down")
		cancel()
	}()

	db := database.InitDB(cfg.Database)
	jobDao := dao.NewScanJobDAO(db)
	outboxDao := dao.NewOutboxDAO(db)
	deadLetterDao := dao.NewDeadLetterDAO(db)

	var alerter messaging.Alerter
	if discord, err := notification.NewDiscordAlerter(); err != nil {
		log.Infof("Discord alerts disabled: %v", err)
	} else {
		defer discord.Close()
		alerter = discord
		log.Info("Discord alerts enabled")
	}

	bus, err := messaging.NewRabbitBus(cfg.Rabbit.URL, cfg.Rabbit.Exchange,
		messaging.WithDeadLetterSink(deadLetterDao),
		messaging.WithAlerter(alerter),
		messaging.WithMaxConcurrency(cfg.Rabbit.MaxConcurrency))
	if err != nil {
		return err
	}
	defer bus.Close()

	var limits quota.LimitsSource
	if cfg.Quota.TenantServiceURL != "" {
		limits = quota.NewHTTPLimitsSource(cfg.Quota.TenantServiceURL, cfg.Quota.Timeout)
	} else {
		catalog, err := quota.LoadCatalog(cfg.Quota.PlansFile)
		if err != nil {
			return err
		}
		// No tenant service configured: every tenant gets the free plan caps.
		free, ok := catalog.Plans["free"]
		if !ok {
			free = quota.DefaultCatalog().Plans["free"]
		}
		limits = quota.StaticLimitsSource{Limits: free}
		log.Info("No tenant service configured, using plan catalog for quota limits")
	}
	gate := quota.NewGate(limits)
	scanService := services.NewScanService(jobDao, gate)

	if err := bus.Subscribe(cfg.Rabbit.StatusQueue, []string{
		messaging.BindingProgress,
		messaging.BindingCompleted,
		messaging.BindingFailed,
	}, scanService.HandleStatusEvent); err != nil {
		return err
	}

	relay := services.NewOutboxRelay(outboxDao, bus, time.Second)
	go relay.Run(ctx)

	sweeper := services.NewSweeper(jobDao, scanService, alerter,
		cfg.Sweep.Interval, cfg.Sweep.PendingTTL, cfg.Sweep.RunningTTL)
	go sweeper.Run(ctx)

	router := routes.NewOrchestratorRouter(scanService)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Server shutdown error: %v", err)
		}
	}()

	log.Infof("Orchestrator listening on :%d", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
