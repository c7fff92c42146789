// ABOUTME: Entry point for the deal synchronization CLI
// ABOUTME: Wires config, CRM client, canonicalization, store and routes commands
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harperreed/dealsync/canonical"
	"github.com/harperreed/dealsync/cli"
	"github.com/harperreed/dealsync/config"
	"github.com/harperreed/dealsync/crm"
	"github.com/harperreed/dealsync/fields"
	"github.com/harperreed/dealsync/service"
	"github.com/harperreed/dealsync/store"
	"github.com/harperreed/dealsync/syncer"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]

	if len(args) > 0 && (args[0] == "--version" || args[0] == "version") {
		fmt.Printf("dealsync version %s\n", version)
		os.Exit(0)
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	client := crm.NewClient(crm.ClientOptions{
		BaseURL:   cfg.BaseURL,
		APIToken:  cfg.APIToken,
		PageLimit: cfg.PageLimit,
	})

	st := store.Open(cfg.DBPath, logger)
	defer func() { _ = st.Close() }()

	resolver := fields.NewResolver(client, st, logger)
	engine := canonical.NewEngine(resolver, logger)
	controller := syncer.NewController(client, engine, st, logger)
	svc := service.New(client, engine, st, controller, logger)

	command := args[0]
	commandArgs := args[1:]

	var cmdErr error
	switch command {
	case "sync":
		cmdErr = cli.SyncCommand(svc, commandArgs)

	case "deals":
		if len(commandArgs) == 0 {
			fmt.Println("Error: deals requires a subcommand (list, get, hide)")
			printUsage()
			os.Exit(1)
		}
		switch commandArgs[0] {
		case "list":
			cmdErr = cli.ListDealsCommand(svc, commandArgs[1:])
		case "get":
			cmdErr = cli.GetDealCommand(svc, commandArgs[1:])
		case "hide":
			cmdErr = cli.HideDealCommand(svc, commandArgs[1:])
		default:
			fmt.Printf("Unknown deals subcommand: %s\n", commandArgs[0])
			printUsage()
			os.Exit(1)
		}

	case "fields":
		cmdErr = cli.FieldsCommand(resolver, commandArgs)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func printUsage() {
	fmt.Println(`dealsync - CRM deal synchronization

Usage:
  dealsync sync [--force]            Refresh deals from the CRM
  dealsync deals list [--all]        List stored deals
  dealsync deals get <id> [--refresh] Show one deal
  dealsync deals hide <id>           Hide a deal from listings
  dealsync fields [--refresh]        Show custom-field options
  dealsync --version                 Show version

Environment:
  DEALSYNC_API_TOKEN   CRM API token (required)
  DEALSYNC_BASE_URL    CRM API base URL
  DEALSYNC_DB_PATH     Database path (default: ~/.local/share/dealsync/dealsync.db)
  DEALSYNC_PAGE_LIMIT  Field-definition page size
  DEALSYNC_LOG_LEVEL   Log level (debug, info, warn, error)`)
}
