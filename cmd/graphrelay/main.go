package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/graphrelay/internal/adapters/driving/cli"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		log.Printf("error: %v", err)
		return 1
	}
	return 0
}
