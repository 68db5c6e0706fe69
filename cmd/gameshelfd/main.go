// Command gameshelfd runs the gameshelf daemon in the foreground. It is the
// entry point for service managers; interactive users normally run
// "gameshelf start" instead.
package main

import (
	"context"
	"flag"
	"log"

	"gameshelf/internal/config"
	"gameshelf/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	socketPath := flag.String("socket", "", "Override the daemon socket path")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	opts := daemonrun.Options{LogLevel: *logLevel, SocketPath: *socketPath}
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		log.Fatalf("gameshelfd: %v", err)
	}
}
