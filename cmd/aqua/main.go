// Command aqua is a terminal client for the homeowner assistant: it signs in
// with a bearer token, tracks the subscription and chats when entitled.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
