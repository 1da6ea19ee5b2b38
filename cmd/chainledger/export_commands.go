package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/chainledger/client"
)

func exportCommands() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Accounting export commands",
		Subcommands: []*cli.Command{
			exportRunCommand(),
			exportListCommand(),
			exportDownloadCommand(),
		},
	}
}

func exportRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run an export across tracked wallets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "network",
				Aliases:  []string{"n"},
				Usage:    "Blockchain network (ethereum, bitcoin)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Wallet address to export (repeatable; defaults to all tracked wallets)",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Start date (yyyy-mm-dd)",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "End date (yyyy-mm-dd)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv or xlsx",
				Value:   "csv",
			},
			&cli.BoolFlag{
				Name:  "no-prices",
				Usage: "Skip fiat price enrichment",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Download the generated file to this path",
			},
		},
		Action: func(c *cli.Context) error {
			cl := getClient(c)

			req := client.ExportRequest{
				WalletAddresses: c.StringSlice("wallet"),
				Network:         c.String("network"),
				FromDate:        c.String("from"),
				ToDate:          c.String("to"),
				Format:          c.String("format"),
			}
			if c.Bool("no-prices") {
				noPrices := false
				req.IncludePrices = &noPrices
			}

			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Running %s export on %s, this can take a while...\n", req.Format, req.Network)
			}

			e, err := cl.CreateExport(context.Background(), req)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if output := c.String("output"); output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				if err := cl.DownloadExport(context.Background(), e.ID, f); err != nil {
					return fmt.Errorf("failed to download export: %w", err)
				}
				if !c.Bool("json") {
					fmt.Fprintf(os.Stderr, "Saved to %s\n", output)
				}
			}

			if c.Bool("json") {
				return outputJSON(c, e)
			}
			fmt.Printf("✓ Export completed\n")
			fmt.Printf("  ID:           %s\n", e.ID)
			fmt.Printf("  File:         %s\n", e.Filename)
			fmt.Printf("  Transactions: %d\n", e.RowCount)
			if e.Totals != nil {
				fmt.Printf("  Revenue:      $%s USD / $%s CAD\n", e.Totals.GrossRevenueUSD.StringFixed(2), e.Totals.GrossRevenueCAD.StringFixed(2))
				fmt.Printf("  Expenses:     $%s USD / $%s CAD\n", e.Totals.TotalExpensesUSD.StringFixed(2), e.Totals.TotalExpensesCAD.StringFixed(2))
				fmt.Printf("  Net:          $%s USD / $%s CAD\n", e.Totals.NetCashFlowUSD.StringFixed(2), e.Totals.NetCashFlowCAD.StringFixed(2))
			}
			return nil
		},
	}
}

func exportListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List past exports",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of exports to show",
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			cl := getClient(c)
			exports, err := cl.ListExports(context.Background(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list exports: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, exports)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNETWORK\tFORMAT\tSTATUS\tROWS\tCREATED")
			for _, e := range exports {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.ID, e.Network, e.Format, e.Status, e.RowCount,
					e.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d exports\n", len(exports))
			return nil
		},
	}
}

func exportDownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download a completed export file",
		ArgsUsage: "EXPORT_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Destination path (defaults to the export's filename)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: export id")
			}
			id, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid export id: %w", err)
			}

			cl := getClient(c)
			output := c.String("output")
			if output == "" {
				e, err := cl.GetExport(context.Background(), id)
				if err != nil {
					return fmt.Errorf("failed to get export: %w", err)
				}
				if e.Filename == "" {
					return fmt.Errorf("export %s has no file", id)
				}
				output = e.Filename
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()

			if err := cl.DownloadExport(context.Background(), id, f); err != nil {
				return fmt.Errorf("failed to download export: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Saved to %s\n", output)
			return nil
		},
	}
}
