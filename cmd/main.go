package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/NgigiN/finance/internal/config"
	"github.com/NgigiN/finance/internal/logger"
	"github.com/NgigiN/finance/internal/storage"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.4"

const usage = "Usage: finance [--version | hello | init [-force] | stats]"

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Println("Hello, World!")
		return 0
	}

	switch args[0] {
	case "--version":
		fmt.Println(version)
		return 0
	case "hello":
		fmt.Println("Hello, World!")
		return 0
	case "init", "stats":
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		fmt.Println(usage)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration %v\n", err)
		return 1
	}
	log := logger.NewFromConfig(cfg.LogFormat, cfg.LogLevel)
	ctx = logger.WithContext(ctx, log)

	db, err := storage.New(cfg.DatabasePath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	if args[0] == "init" {
		err = runInit(ctx, db, args[1:])
	} else {
		err = runStats(ctx, db)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", args[0], err)
		return 1
	}
	return 0
}

func runInit(ctx context.Context, db *storage.Database, args []string) error {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	force := flags.Bool("force", false, "drop and recreate all tables (destroys existing data)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := db.Initialize(ctx, *force); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("path", db.Path()).Bool("force", *force).Msg("database initialized")
	fmt.Printf("Database ready at %s\n", db.Path())
	return nil
}

func runStats(ctx context.Context, db *storage.Database) error {
	if err := db.Initialize(ctx, false); err != nil {
		return err
	}
	return db.WithSession(ctx, func(tx *gorm.DB) error {
		accounts, err := storage.NewAccountRepository(tx).GetActive()
		if err != nil {
			return err
		}
		transactions, err := storage.NewTransactionRepository(tx).Count(nil)
		if err != nil {
			return err
		}
		pending, err := storage.NewImportSessionRepository(tx).GetPending()
		if err != nil {
			return err
		}
		fmt.Printf("Active accounts: %d\nTransactions: %d\nPending imports: %d\n",
			len(accounts), transactions, len(pending))
		return nil
	})
}
