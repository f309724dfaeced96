package replay

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sentinel/internal/config"
	"sentinel/internal/dao"
	"sentinel/internal/database"
	"sentinel/internal/messaging"
)

// NewReplayCommand republishes archived dead letters to their original
// routing keys. Run it after fixing whatever made the messages poison.
func NewReplayCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay dead-lettered messages",
		Long:  `Republish archived dead-letter messages to their original routing keys and mark them replayed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List dead letters without republishing")
	return cmd
}

func run(ctx context.Context, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db := database.InitDB(cfg.Database)
	deadLetterDao := dao.NewDeadLetterDAO(db)

	letters, err := deadLetterDao.ListUnreplayed()
	if err != nil {
		return err
	}
	if len(letters) == 0 {
		log.Info("No dead letters to replay")
		return nil
	}

	if dryRun {
		for _, letter := range letters {
			log.Infof("Would replay #%d from %s (key %s): %s",
				letter.ID, letter.Queue, letter.RoutingKey, letter.Reason)
		}
		return nil
	}

	bus, err := messaging.NewRabbitBus(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
	if err != nil {
		return err
	}
	defer bus.Close()

	replayed := 0
	for _, letter := range letters {
		var env messaging.Envelope
		if err := json.Unmarshal(letter.Body, &env); err != nil || env.EventType == "" {
			// Legacy flat message: wrap it so it goes out in the standard shape.
			env, err = messaging.NewEnvelope(letter.RoutingKey, json.RawMessage(letter.Body))
			if err != nil {
				log.Warnf("Skipping unparseable dead letter #%d: %v", letter.ID, err)
				continue
			}
		}

		if err := bus.Publish(ctx, letter.RoutingKey, env); err != nil {
			log.Errorf("Failed to replay dead letter #%d: %v", letter.ID, err)
			continue
		}
		if err := deadLetterDao.MarkReplayed(letter.ID); err != nil {
			log.Errorf("Failed to mark dead letter #%d replayed: %v", letter.ID, err)
			continue
		}
		replayed++
	}

	log.Infof("Replayed %d of %d dead letters", replayed, len(letters))
	return nil
}
