package aggregator

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
	"sentinel/internal/clients"
	"sentinel/internal/config"
	"sentinel/internal/dao"
	"sentinel/internal/database"
	"sentinel/internal/messaging"
	"sentinel/internal/notification"
	"sentinel/internal/services"
	"sentinel/internal/storage"
)

type serverOpts struct {
	Port int
}

// NewAggregatorCommand starts the results aggregator: scan-completed
// consumer plus the results and analytics API.
func NewAggregatorCommand() *cobra.Command {
	opts := &serverOpts{}

	cmd := &cobra.Command{
		Use:   "aggregator",
		Short: "Start the results aggregator server",
		Long:  `Start the results aggregator: ingests scan-completed events, persists findings and reflects status back to the orchestrator`,
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
	resultDao := dao.NewScanResultDAO(db)
	deadLetterDao := dao.NewDeadLetterDAO(db)

	var alerter messaging.Alerter
	if discord, err := notification.NewDiscordAlerter(); err != nil {
		log.Infof("Discord alerts disabled: %v", err)
	} else {
		defer discord.Close()
		alerter = discord
	}

	var artifacts storage.ArtifactStore
	if store, err := storage.NewMinioStore(ctx, cfg.Storage); err != nil {
		log.Warnf("Report archival disabled: %v", err)
	} else {
		artifacts = store
	}

	bus, err := messaging.NewRabbitBus(cfg.Rabbit.URL, cfg.Rabbit.Exchange,
		messaging.WithDeadLetterSink(deadLetterDao),
		messaging.WithAlerter(alerter),
		messaging.WithMaxConcurrency(cfg.Rabbit.MaxConcurrency))
	if err != nil {
		return err
	}
	defer bus.Close()

	orchestratorClient := clients.NewOrchestratorClient(cfg.Server.OrchestratorURL, 5*time.Second)
	resultsService := services.NewResultsService(resultDao, orchestratorClient, artifacts)
	analyticsService := services.NewAnalyticsService(resultDao)

	if err := bus.Subscribe(cfg.Rabbit.ResultsQueue, []string{
		messaging.BindingCompleted,
	}, resultsService.HandleCompletedEvent); err != nil {
		return err
	}

	router := routes.NewAggregatorRouter(resultsService, analyticsService)
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

	log.Infof("Aggregator listening on :%d", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
