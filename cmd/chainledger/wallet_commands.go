package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Wallet tracking commands",
		Subcommands: []*cli.Command{
			walletAddCommand(),
			walletRemoveCommand(),
			walletListCommand(),
		},
	}
}

func walletAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Aliases:   []string{"register"},
		Usage:     "Register a wallet for tracking",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "network",
				Aliases:  []string{"n"},
				Usage:    "Blockchain network (ethereum, bitcoin)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Display name for the wallet",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Wallet type: self_custodial or exchange",
				Value: "self_custodial",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := getClient(c)
			wallet, err := cl.RegisterWallet(context.Background(), address, c.String("network"), c.String("name"), c.String("type"))
			if err != nil {
				return fmt.Errorf("failed to register wallet: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, wallet)
			}
			fmt.Printf("✓ Wallet registered successfully\n")
			fmt.Printf("  Address: %s\n", wallet.Address)
			fmt.Printf("  Network: %s\n", wallet.Network)
			fmt.Printf("  Type:    %s\n", wallet.WalletType)
			return nil
		},
	}
}

func walletRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm", "unregister"},
		Usage:     "Stop tracking a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "network",
				Aliases:  []string{"n"},
				Usage:    "Blockchain network (ethereum, bitcoin)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := getClient(c)
			if err := cl.UnregisterWallet(context.Background(), address, c.String("network")); err != nil {
				return fmt.Errorf("failed to unregister wallet: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, map[string]string{"address": address, "status": "unregistered"})
			}
			fmt.Printf("✓ Wallet unregistered successfully\n")
			fmt.Printf("  Address: %s\n", address)
			return nil
		},
	}
}

func walletListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List tracked wallets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Filter by network",
			},
		},
		Action: func(c *cli.Context) error {
			cl := getClient(c)
			wallets, err := cl.ListWallets(context.Background(), c.String("network"))
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, wallets)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tNETWORK\tNAME\tTYPE\tCREATED")
			for _, wallet := range wallets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					wallet.Address,
					wallet.Network,
					wallet.Name,
					wallet.WalletType,
					wallet.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}
