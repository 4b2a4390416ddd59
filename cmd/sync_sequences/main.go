package main

import (
	"instaflow/internal/config"
	"instaflow/internal/database"
	"instaflow/internal/logger"

	"github.com/rs/zerolog/log"
)

// Tables with serial id columns. analytics_events uses uuid keys.
var tables = []string{
	"users",
	"integrations",
	"automations",
	"triggers",
	"keywords",
	"listeners",
	"carousel_templates",
	"carousel_elements",
	"carousel_buttons",
	"flow_nodes",
	"flow_edges",
	"chat_histories",
	"response_tracking",
}

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.Environment, cfg.Debug)

	if cfg.DBDriver != "postgres" {
		log.Fatal().Str("driver", cfg.DBDriver).Msg("Sequence sync only applies to PostgreSQL")
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	log.Info().Msg("Syncing PostgreSQL sequences...")

	failed := 0
	for _, table := range tables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			failed++
			log.Error().Err(err).Str("table", table).Msg("Error syncing sequence")
		} else {
			log.Info().Str("table", table).Msg("Synced sequence")
		}
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Msg("Sequence sync finished with errors")
	}
	log.Info().Msg("DONE!")
}
