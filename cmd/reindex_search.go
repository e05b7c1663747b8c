package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/database"
	"github.com/psds-microservice/support-chat-service/internal/kafka"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/searchindex"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Reindex all conversations into search. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL set.",
	RunE:  runReindexSearch,
}

func init() {
	rootCmd.AddCommand(reindexSearchCmd)
}

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	conn, err := database.Open(cfg.DSN(), log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer func() { _ = database.Close(conn) }()

	var conversations []model.Conversation
	if err := conn.Order("created_at ASC").Find(&conversations).Error; err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	log.Info("reindex-search: found conversations", zap.Int("count", len(conversations)))

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	progress := func(i int, via string) {
		if (i+1)%50 == 0 || i == len(conversations)-1 {
			log.Info("reindex-search: progress", zap.String("via", via), zap.Int("done", i+1), zap.Int("total", len(conversations)))
		}
	}

	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 && cfg.KafkaTopic != "" {
		producer := kafka.NewProducer(brokers, cfg.KafkaTopic, log)
		defer producer.Close()
		for i := range conversations {
			c := &conversations[i]
			producer.ProduceEvent(ctx, "conversation.updated", c.ID, service.ConversationEventPayload(c))
			progress(i, "kafka")
		}
		log.Info("reindex-search: done (search-service worker will index them)", zap.Int("sent", len(conversations)))
		return nil
	}
	if cfg.SearchServiceURL != "" {
		client := searchindex.NewClient(cfg.SearchServiceURL, log)
		failed := 0
		for i := range conversations {
			if err := client.IndexConversation(ctx, &conversations[i]); err != nil {
				failed++
				log.Warn("reindex-search: index", zap.String("id", conversations[i].ID), zap.Error(err))
			}
			progress(i, "http")
		}
		log.Info("reindex-search: done", zap.Int("indexed", len(conversations)-failed), zap.Int("failed", failed))
		return nil
	}
	log.Warn("reindex-search: neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set, nothing reindexed",
		zap.Int("found", len(conversations)))
	return nil
}
