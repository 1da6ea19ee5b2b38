package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:      "price",
		Usage:     "Look up an asset's historical price",
		ArgsUsage: "ASSET",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "date",
				Aliases: []string{"d"},
				Usage:   "Date to price (yyyy-mm-dd, defaults to today)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: asset symbol")
			}

			cl := getClient(c)
			quote, err := cl.GetPrice(context.Background(), c.Args().First(), c.String("date"))
			if err != nil {
				return fmt.Errorf("price lookup failed: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, quote)
			}
			fmt.Printf("%s on %s\n", quote.Asset, quote.Date)
			fmt.Printf("  USD: $%s\n", quote.USD.StringFixed(2))
			fmt.Printf("  CAD: $%s\n", quote.CAD.StringFixed(2))
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set CHAINLEDGER_SERVER_URL env var or use --server-url)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			cl := getClient(c)
			if err := cl.Health(ctx); err != nil {
				return err
			}
			fmt.Printf("✓ Server is healthy\n")
			fmt.Printf("  URL: %s\n", serverURL)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("chainledger CLI\n")
			fmt.Printf("  Version: %s\n", version)
			fmt.Printf("  Commit:  %s\n", commit)
			fmt.Printf("  Built:   %s\n", date)
			return nil
		},
	}
}
