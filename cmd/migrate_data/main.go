package main

import (
	"flag"

	"instaflow/internal/config"
	"instaflow/internal/database"
	"instaflow/internal/logger"
	"instaflow/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const batchSize = 500

// Copies every table from the SQLite file at DB_PATH into the configured
// PostgreSQL database. Run cmd/sync_sequences afterwards.
func main() {
	truncate := flag.Bool("truncate", false, "empty destination tables before copying")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.Environment, cfg.Debug)

	if cfg.DBDriver != "postgres" {
		log.Fatal().Str("driver", cfg.DBDriver).Msg("Destination must be PostgreSQL (DB_DRIVER=postgres)")
	}

	// 1. Connect to SQLite (Source)
	sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to SQLite")
	}
	log.Info().Str("path", cfg.DBPath).Msg("Connected to SQLite")

	// 2. Connect to PostgreSQL (Destination)
	pgDB, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}

	log.Info().Msg("Starting data migration...")

	// Parents before children.
	steps := []struct {
		table string
		rows  interface{}
	}{
		{"users", &[]models.User{}},
		{"integrations", &[]models.Integration{}},
		{"automations", &[]models.Automation{}},
		{"triggers", &[]models.Trigger{}},
		{"keywords", &[]models.Keyword{}},
		{"carousel_templates", &[]models.CarouselTemplate{}},
		{"carousel_elements", &[]models.CarouselElement{}},
		{"carousel_buttons", &[]models.CarouselButton{}},
		{"listeners", &[]models.Listener{}},
		{"flow_nodes", &[]models.FlowNode{}},
		{"flow_edges", &[]models.FlowEdge{}},
		{"chat_histories", &[]models.ChatHistory{}},
		{"response_tracking", &[]models.ResponseTracking{}},
		{"analytics_events", &[]models.AnalyticsEvent{}},
	}

	if *truncate {
		for i := len(steps) - 1; i >= 0; i-- {
			if err := pgDB.Exec("TRUNCATE TABLE " + steps[i].table + " CASCADE").Error; err != nil {
				log.Fatal().Err(err).Str("table", steps[i].table).Msg("Error truncating table")
			}
		}
	}

	failed := 0
	for _, step := range steps {
		if err := migrateTable(sqliteDB, pgDB, step.table, step.rows); err != nil {
			failed++
			log.Error().Err(err).Str("table", step.table).Msg("Error migrating table")
			continue
		}
		log.Info().Str("table", step.table).Msg("Successfully migrated table")
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Msg("Migration finished with errors")
	}
	log.Info().Msg("Migration completed!")
}

// migrateTable copies rows keeping their primary keys. Associations are
// skipped; each table is copied on its own.
func migrateTable(src, dst *gorm.DB, table string, rows interface{}) error {
	if err := src.Table(table).Find(rows).Error; err != nil {
		return err
	}
	return dst.Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).CreateInBatches(rows, batchSize).Error
	})
}
