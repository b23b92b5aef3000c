// Command rankcrawl runs a single ranking crawl and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/rankwatch/internal/app"
	"github.com/JakeFAU/rankwatch/internal/config"
	"github.com/JakeFAU/rankwatch/internal/logging"
	"github.com/JakeFAU/rankwatch/internal/rank"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	envPath := flag.String("env", ".env", "Path to .env file (missing file is ignored)")
	query := flag.String("query", "", "Search phrase to rank for")
	primary := flag.String("primary", "", "Article ID of the tracked product")
	reference := flag.String("reference", "", "Article ID of a competitor product (optional)")
	flag.Parse()

	if strings.TrimSpace(*query) == "" || strings.TrimSpace(*primary) == "" {
		fmt.Fprintln(os.Stderr, "-query and -primary are required")
		flag.Usage()
		return 2
	}
	if strings.TrimSpace(*reference) == strings.TrimSpace(*primary) {
		fmt.Fprintln(os.Stderr, "-reference must differ from -primary")
		return 2
	}
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "load env failed: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	targets := rank.NewTargets(strings.TrimSpace(*primary), strings.TrimSpace(*reference))
	result := a.Orchestrator().Run(ctx, strings.TrimSpace(*query), targets)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("write result failed", zap.Error(err))
		return 1
	}
	if result.Degraded {
		return 3
	}
	return 0
}
