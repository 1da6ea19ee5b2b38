package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/chainledger/client"
	"github.com/brojonat/chainledger/service/db"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply all pending database migrations",
		Action: func(c *cli.Context) error {
			dbURL, err := requireDatabaseURL(c)
			if err != nil {
				return err
			}
			if err := db.RunMigrations(dbURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func rollbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "Roll back the most recent migration",
		Action: func(c *cli.Context) error {
			dbURL, err := requireDatabaseURL(c)
			if err != nil {
				return err
			}
			if err := db.RollbackMigrations(dbURL); err != nil {
				return fmt.Errorf("failed to roll back: %w", err)
			}
			fmt.Println("rolled back one migration")
			return nil
		},
	}
}

// dbListWalletsCommand reads straight from Postgres, useful when the server
// is down.
func dbListWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-wallets",
		Aliases: []string{"ls"},
		Usage:   "List tracked wallets directly from the database",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallets, err := store.ListWallets(context.Background(), "")
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}
			return outputJSON(c, wallets)
		},
	}
}

func dbListExportsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-exports",
		Usage: "List export records directly from the database",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			exports, err := store.ListExports(context.Background(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list exports: %w", err)
			}
			return outputJSON(c, exports)
		},
	}
}

// getStore connects to the database named by the global database-url flag.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL, err := requireDatabaseURL(c)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db.NewStore(pool), pool.Close, nil
}

func requireDatabaseURL(c *cli.Context) (string, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return "", fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}
	return dbURL, nil
}

// getClient builds an API client from the global server-url flag.
func getClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

// outputJSON prints v as JSON on stdout, running it through the global --jq
// expression first when one is given.
func outputJSON(c *cli.Context, v any) error {
	if expr := c.String("jq"); expr != "" {
		filtered, err := applyJQ(expr, v)
		if err != nil {
			return err
		}
		v = filtered
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// applyJQ runs a jq expression over v and collects the results. A single
// result is returned bare; multiple results come back as a slice.
func applyJQ(expr string, v any) (any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq expression %q: %w", expr, err)
	}

	// Round-trip through JSON so gojq sees plain maps and slices.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal for jq: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal for jq: %w", err)
	}

	var results []any
	iter := code.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if jqErr, isErr := out.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed: %w", jqErr)
		}
		results = append(results, out)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}
