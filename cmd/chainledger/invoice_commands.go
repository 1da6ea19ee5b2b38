package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/chainledger/client"
)

func invoiceCommands() *cli.Command {
	return &cli.Command{
		Name:  "invoice",
		Usage: "Invoice commands",
		Subcommands: []*cli.Command{
			invoiceCreateCommand(),
			invoiceListCommand(),
			invoiceStatusCommand(),
			invoiceDownloadCommand(),
		},
	}
}

// parseLineItem parses a "description:quantity:unit_price" flag value.
func parseLineItem(s string) (client.InvoiceLineItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return client.InvoiceLineItem{}, fmt.Errorf("invalid line item %q, want description:quantity:unit_price", s)
	}
	qty, err := decimal.NewFromString(parts[1])
	if err != nil {
		return client.InvoiceLineItem{}, fmt.Errorf("invalid quantity in %q: %w", s, err)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return client.InvoiceLineItem{}, fmt.Errorf("invalid unit price in %q: %w", s, err)
	}
	return client.InvoiceLineItem{
		Description: parts[0],
		Quantity:    qty,
		UnitPrice:   price,
	}, nil
}

func invoiceCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create an invoice and render its PDF",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "client",
				Usage:    "Client name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "client-address",
				Usage: "Client mailing address",
			},
			&cli.StringFlag{
				Name:  "client-email",
				Usage: "Client email",
			},
			&cli.StringSliceFlag{
				Name:     "item",
				Aliases:  []string{"i"},
				Usage:    "Line item as description:quantity:unit_price (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "currency",
				Usage: "Invoice currency",
				Value: "USD",
			},
			&cli.StringFlag{
				Name:  "tax-rate",
				Usage: "Tax rate as a fraction (e.g. 0.13)",
				Value: "0",
			},
			&cli.StringFlag{
				Name:  "pay-network",
				Usage: "Payment network (ethereum, bitcoin)",
			},
			&cli.StringFlag{
				Name:  "pay-address",
				Usage: "Payment wallet address (adds a QR code to the PDF)",
			},
			&cli.StringFlag{
				Name:  "due",
				Usage: "Due date (yyyy-mm-dd)",
			},
			&cli.StringFlag{
				Name:  "notes",
				Usage: "Freeform notes printed on the invoice",
			},
		},
		Action: func(c *cli.Context) error {
			items := make([]client.InvoiceLineItem, 0, len(c.StringSlice("item")))
			for _, raw := range c.StringSlice("item") {
				item, err := parseLineItem(raw)
				if err != nil {
					return err
				}
				items = append(items, item)
			}
			taxRate, err := decimal.NewFromString(c.String("tax-rate"))
			if err != nil {
				return fmt.Errorf("invalid tax rate: %w", err)
			}

			cl := getClient(c)
			inv, err := cl.CreateInvoice(context.Background(), client.InvoiceRequest{
				ClientName:     c.String("client"),
				ClientAddress:  c.String("client-address"),
				ClientEmail:    c.String("client-email"),
				LineItems:      items,
				Currency:       c.String("currency"),
				TaxRate:        taxRate,
				PaymentNetwork: c.String("pay-network"),
				PaymentAddress: c.String("pay-address"),
				Notes:          c.String("notes"),
				DueDate:        c.String("due"),
			})
			if err != nil {
				return fmt.Errorf("failed to create invoice: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, inv)
			}
			fmt.Printf("✓ Invoice created\n")
			fmt.Printf("  Number:   %s\n", inv.InvoiceNumber)
			fmt.Printf("  Client:   %s\n", inv.ClientName)
			fmt.Printf("  Subtotal: $%s %s\n", inv.Subtotal.StringFixed(2), inv.Currency)
			if !inv.TaxRate.IsZero() {
				fmt.Printf("  Tax:      $%s %s\n", inv.TaxAmount.StringFixed(2), inv.Currency)
			}
			fmt.Printf("  Total:    $%s %s\n", inv.Total.StringFixed(2), inv.Currency)
			fmt.Printf("  PDF:      %s\n", inv.Filename)
			return nil
		},
	}
}

func invoiceListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List invoices",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of invoices to show",
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			cl := getClient(c)
			invoices, err := cl.ListInvoices(context.Background(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list invoices: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, invoices)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNUMBER\tCLIENT\tTOTAL\tSTATUS\tCREATED")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%s\t%s\t%s\t$%s %s\t%s\t%s\n",
					inv.ID, inv.InvoiceNumber, inv.ClientName,
					inv.Total.StringFixed(2), inv.Currency, inv.Status,
					inv.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d invoices\n", len(invoices))
			return nil
		},
	}
}

func invoiceStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Transition an invoice's status (draft, sent, paid, void)",
		ArgsUsage: "INVOICE_ID STATUS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: invoice id and status")
			}
			id, err := uuid.Parse(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid invoice id: %w", err)
			}

			cl := getClient(c)
			inv, err := cl.UpdateInvoiceStatus(context.Background(), id, c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to update status: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, inv)
			}
			fmt.Printf("✓ %s is now %s\n", inv.InvoiceNumber, inv.Status)
			return nil
		},
	}
}

func invoiceDownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download an invoice PDF",
		ArgsUsage: "INVOICE_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Destination path (defaults to the invoice's filename)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: invoice id")
			}
			id, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid invoice id: %w", err)
			}

			cl := getClient(c)
			output := c.String("output")
			if output == "" {
				inv, err := cl.GetInvoice(context.Background(), id)
				if err != nil {
					return fmt.Errorf("failed to get invoice: %w", err)
				}
				if inv.Filename == "" {
					return fmt.Errorf("invoice %s has no rendered PDF", id)
				}
				output = inv.Filename
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()

			if err := cl.DownloadInvoice(context.Background(), id, f); err != nil {
				return fmt.Errorf("failed to download invoice: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Saved to %s\n", output)
			return nil
		},
	}
}
