package main

import (
	"context"
	"errors"
	"flag"

	"instaflow/internal/automation"
	"instaflow/internal/config"
	"instaflow/internal/database"
	"instaflow/internal/logger"
	"instaflow/internal/models"
	"instaflow/internal/store"

	"github.com/rs/zerolog/log"
)

// Rewrites listener-only automations as flow graphs so they run on the
// graph executor. Triggers, keywords and the listener row are kept.
func main() {
	dryRun := flag.Bool("dry-run", false, "log the conversions without saving them")
	only := flag.Uint("automation", 0, "convert a single automation id")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.Environment, cfg.Debug)

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	st := store.New(db)
	ctx := context.Background()

	log.Info().Msg("Converting listener automations to flow graphs...")

	automations, err := st.LegacyAutomations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error fetching legacy automations")
	}

	converted, skipped, failed := 0, 0, 0
	for i := range automations {
		a := &automations[i]
		if *only != 0 && a.ID != *only {
			continue
		}
		l := log.With().Uint("automation_id", a.ID).Str("listener", a.Listener.Listener).Logger()

		nodes, edges, err := automation.ListenerToFlow(a)
		if errors.Is(err, automation.ErrNotConvertible) {
			skipped++
			l.Warn().Err(err).Msg("Skipping automation")
			continue
		}
		if err != nil {
			failed++
			l.Error().Err(err).Msg("Error building flow")
			continue
		}

		if *dryRun {
			converted++
			l.Info().Int("nodes", len(nodes)).Int("edges", len(edges)).Msg("Would convert automation")
			continue
		}

		err = st.SaveFlow(ctx, a.ID, store.FlowSnapshot{
			Triggers: triggerTypes(a.Triggers),
			Keywords: keywordWords(a.Keywords),
			Listener: a.Listener,
			Nodes:    nodes,
			Edges:    edges,
		})
		if err != nil {
			failed++
			l.Error().Err(err).Msg("Error saving flow")
			continue
		}
		converted++
		l.Info().Int("nodes", len(nodes)).Msg("Converted automation")
	}

	log.Info().Int("converted", converted).Int("skipped", skipped).Int("failed", failed).Bool("dry_run", *dryRun).Msg("Done!")
	if failed > 0 {
		log.Fatal().Msg("Conversion finished with errors")
	}
}

func triggerTypes(triggers []models.Trigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = t.Type
	}
	return out
}

func keywordWords(keywords []models.Keyword) []string {
	out := make([]string, len(keywords))
	for i, k := range keywords {
		out[i] = k.Word
	}
	return out
}
