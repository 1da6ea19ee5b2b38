package main

import (
	"fmt"
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "chainledger",
		Usage: "Blockchain transaction ledger and accounting export CLI",
		Description: `A command-line tool for managing the chainledger service.

Track wallets, classify transactions, run accounting exports, and issue
invoices against a running chainledger server.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Database maintenance commands (direct connection)
			{
				Name:  "db",
				Usage: "Database maintenance commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					rollbackCommand(),
					dbListWalletsCommand(),
					dbListExportsCommand(),
				},
			},
			// Wallet tracking commands (HTTP API)
			walletCommands(),
			// Category override commands (HTTP API)
			overrideCommands(),
			// Export commands (HTTP API)
			exportCommands(),
			// Invoice commands (HTTP API)
			invoiceCommands(),
			// Price lookup (HTTP API)
			priceCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL (db commands only)",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "chainledger server URL",
				EnvVars: []string{"CHAINLEDGER_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to JSON output",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
