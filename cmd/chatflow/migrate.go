package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/chatflow/config"
	"github.com/BaSui01/chatflow/internal/migration"
	"go.uber.org/zap"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		runMigration("up", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunUp(ctx)
		})
	case "down":
		runMigrateDown(subargs)
	case "status":
		runMigration("status", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunStatus(ctx)
		})
	case "version":
		runMigration("version", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunVersion(ctx)
		})
	case "info":
		runMigration("info", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunInfo(ctx)
		})
	case "goto":
		runMigrateGoto(subargs)
	case "steps":
		runMigrateSteps(subargs)
	case "force":
		runMigrateForce(subargs)
	case "reset":
		runMigration("reset", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunReset(ctx)
		})
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  chatflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all for every migration)
  status    Show migration status
  version   Show current migration version
  info      Show migration summary
  goto      Migrate to a specific version
  steps     Apply N migrations (negative N rolls back)
  force     Force set migration version (use with caution)
  reset     Rollback all migrations and re-apply them
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-name <name>    Database name, or file path for sqlite (default: from config)

Examples:
  chatflow migrate up
  chatflow migrate up --config /etc/chatflow/config.yaml
  chatflow migrate up --db-type sqlite --db-name ./chatflow.db
  chatflow migrate down
  chatflow migrate status
  chatflow migrate goto 1
  chatflow migrate force 0
  chatflow migrate reset`)
}

// migrateFlags are the connection flags shared by every subcommand
type migrateFlags struct {
	configPath *string
	dbType     *string
	dbName     *string
}

func bindMigrateFlags(fs *flag.FlagSet) migrateFlags {
	return migrateFlags{
		configPath: fs.String("config", "", "Path to config file"),
		dbType:     fs.String("db-type", "", "Database type (postgres, mysql, sqlite)"),
		dbName:     fs.String("db-name", "", "Database name or sqlite file path"),
	}
}

// createMigrator creates a migrator from parsed command line flags
func (f migrateFlags) createMigrator() (*migration.DefaultMigrator, error) {
	cfg, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if *f.dbType != "" {
		cfg.Database.Driver = *f.dbType
	}
	if *f.dbName != "" {
		cfg.Database.Name = *f.dbName
	}

	return migration.NewMigratorFromDatabaseConfig(cfg.Database, migrateLogger(cfg.Log))
}

// migrateLogger 迁移命令只输出警告及以上，进度由 CLI 打印
func migrateLogger(cfg config.LogConfig) *zap.Logger {
	cfg.Level = "warn"
	cfg.OutputPaths = []string{"stderr"}
	return initLogger(cfg)
}

// runMigration parses flags, opens a migrator and runs fn against it
func runMigration(name string, args []string, fn func(ctx context.Context, cli *migration.CLI) error) {
	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	flags := bindMigrateFlags(fs)
	_ = fs.Parse(args)

	execMigration(name, flags, fn)
}

func execMigration(name string, flags migrateFlags, fn func(ctx context.Context, cli *migration.CLI) error) {
	migrator, err := flags.createMigrator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}

	err = fn(context.Background(), migration.NewCLI(migrator))
	_ = migrator.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", name, err)
		os.Exit(1)
	}
}

// runMigrateDown rolls back the last migration, or all of them with --all
func runMigrateDown(args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")
	flags := bindMigrateFlags(fs)
	_ = fs.Parse(args)

	execMigration("down", flags, func(ctx context.Context, cli *migration.CLI) error {
		if *all {
			return cli.RunDownAll(ctx)
		}
		return cli.RunDown(ctx)
	})
}

// runMigrateGoto migrates to a specific version
func runMigrateGoto(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: chatflow migrate goto <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	runMigration("goto", args[1:], func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunGoto(ctx, uint(version))
	})
}

// runMigrateSteps applies (n > 0) or rolls back (n < 0) n migrations
func runMigrateSteps(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: chatflow migrate steps <n>\n")
		os.Exit(1)
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n == 0 {
		fmt.Fprintf(os.Stderr, "Invalid step count: %s\n", args[0])
		os.Exit(1)
	}

	runMigration("steps", args[1:], func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunSteps(ctx, n)
	})
}

// runMigrateForce forces the migration version
func runMigrateForce(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: chatflow migrate force <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	runMigration("force", args[1:], func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunForce(ctx, int(version))
	})
}
