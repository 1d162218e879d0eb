// Command aqua-devserver runs a local backend for the aqua CLI.
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/B4xAbhishek/aqua-ai-answers/internal/devserver"
)

func main() {
	if err := devserver.Run(); err != nil {
		log.Error().Err(err).Msg("aqua-devserver exited with error")
		os.Exit(1)
	}
}
