// cmd/main.go is the application entry point.
// The serve, worker and migrate subcommands wire the layers together.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
