package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Init(environment string, debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout

	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(level)
}

// ForEvent returns a logger annotated with the ids every engine log line carries.
func ForEvent(automationID uint, pageID, senderID string) zerolog.Logger {
	return log.With().
		Uint("automation_id", automationID).
		Str("page_id", pageID).
		Str("sender_id", senderID).
		Logger()
}
