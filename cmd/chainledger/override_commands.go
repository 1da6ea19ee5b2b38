package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/chainledger/client"
)

func overrideCommands() *cli.Command {
	return &cli.Command{
		Name:  "override",
		Usage: "Manual transaction category commands",
		Subcommands: []*cli.Command{
			overrideSetCommand(),
			overrideRemoveCommand(),
			overrideListCommand(),
		},
	}
}

func overrideSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Pin a transaction to a category",
		ArgsUsage: "TX_HASH CATEGORY",
		Description: fmt.Sprintf("Valid categories: %s. Overrides win over automatic classification.",
			strings.Join(client.Categories(), ", ")),
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: tx hash and category")
			}

			cl := getClient(c)
			override, err := cl.SetOverride(context.Background(), c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to set override: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, override)
			}
			fmt.Printf("✓ Override set\n")
			fmt.Printf("  Tx Hash:  %s\n", override.TxHash)
			fmt.Printf("  Category: %s\n", override.Category)
			return nil
		},
	}
}

func overrideRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Remove a manual category",
		ArgsUsage: "TX_HASH",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: tx hash")
			}
			txHash := c.Args().First()

			cl := getClient(c)
			if err := cl.DeleteOverride(context.Background(), txHash); err != nil {
				return fmt.Errorf("failed to remove override: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, map[string]string{"tx_hash": txHash, "status": "removed"})
			}
			fmt.Printf("✓ Override removed for %s\n", txHash)
			return nil
		},
	}
}

func overrideListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List all overrides",
		Action: func(c *cli.Context) error {
			cl := getClient(c)
			overrides, err := cl.ListOverrides(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list overrides: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, overrides)
			}

			hashes := make([]string, 0, len(overrides))
			for hash := range overrides {
				hashes = append(hashes, hash)
			}
			sort.Strings(hashes)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TX HASH\tCATEGORY")
			for _, hash := range hashes {
				fmt.Fprintf(w, "%s\t%s\n", hash, overrides[hash])
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d overrides\n", len(overrides))
			return nil
		},
	}
}
