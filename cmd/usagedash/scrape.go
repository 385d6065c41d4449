package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/usagedash/internal/app"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape every account once, write the cache and print the result",
	RunE:  runScrape,
}

func runScrape(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregate, err := application.Orchestrator.RunAll(ctx)
	if err != nil {
		return err
	}

	renderAggregate(os.Stdout, aggregate)
	return nil
}
