// Command mintctl wires the mint engine directly, without a network
// transport: it's executable documentation for the mint-quote lifecycle
// (request a quote, settle it through the fake backend, check its state)
// and for inspecting mint info and keysets; swap, melt and restore have
// no command here. It plays the role the teacher's cmd/mint/mint.go plays
// for its HTTP server, minus the HTTP server. Every invocation loads a mint
// database from MINT_DB_PATH and talks to it in-process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/mint"
	"github.com/blindmint/cashu/paymentbackend/fake"
)

var m *mint.Mint
var backend *fake.Backend

func mintConfig() mint.Config {
	path := os.Getenv("MINT_DB_PATH")
	if path == "" {
		homedir, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		path = filepath.Join(homedir, ".cashu", "mint")
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		log.Fatal(err)
	}

	return mint.Config{Port: os.Getenv("MINT_PORT"), DBPath: path}
}

func setupMint(ctx *cli.Context) error {
	backend = fake.New()
	var err error
	m, err = mint.LoadMint(mintConfig(), backend)
	if err != nil {
		return fmt.Errorf("error loading mint: %v", err)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "mintctl",
		Usage: "cashu mint engine, wired in-process (no network transport)",
		Commands: []*cli.Command{
			infoCmd,
			quoteCmd,
			payCmd,
			statusCmd,
			keysetsCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var infoCmd = &cli.Command{
	Name:   "info",
	Usage:  "mint info and active keysets",
	Before: setupMint,
	Action: func(ctx *cli.Context) error {
		info, err := m.RetrieveMintInfo()
		if err != nil {
			return err
		}
		fmt.Printf("name: %v\npubkey: %v\n", info.Name, info.Pubkey)
		for unit, keyset := range m.ActiveKeysets() {
			fmt.Printf("active keyset (%v): %v\n", unit, keyset.Id)
		}
		return nil
	},
}

const unitFlag = "unit"

var quoteCmd = &cli.Command{
	Name:      "quote",
	Usage:     "request a mint quote for an amount, in the fake payment backend",
	ArgsUsage: "[AMOUNT]",
	Before:    setupMint,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: unitFlag, Value: cashu.Sat.String()},
	},
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if args.Len() < 1 {
			return errors.New("specify an amount")
		}
		amount, err := strconv.ParseUint(args.First(), 10, 64)
		if err != nil {
			return errors.New("invalid amount")
		}

		quote, err := m.RequestMintQuote(context.Background(), cashu.BOLT11_METHOD, amount, ctx.String(unitFlag), "")
		if err != nil {
			return err
		}
		fmt.Printf("quote: %v\ninvoice: %v\n", quote.Id, quote.Request)
		fmt.Println("settle it with: pay <quote>, then check with: status <quote>")
		return nil
	},
}

var payCmd = &cli.Command{
	Name:      "pay",
	Usage:     "simulate the fake backend settling an invoice it issued",
	ArgsUsage: "[QUOTE_ID]",
	Before:    setupMint,
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if args.Len() < 1 {
			return errors.New("specify a quote id")
		}
		quote, err := m.GetMintQuoteState(context.Background(), cashu.BOLT11_METHOD, args.First())
		if err != nil {
			return err
		}

		backend.SettleIncoming(quote.RequestLookupId, quote.Id)
		fmt.Println("invoice settled")
		return nil
	},
}

var statusCmd = &cli.Command{
	Name:      "status",
	Usage:     "check a mint quote's state after settlement",
	ArgsUsage: "[QUOTE_ID]",
	Before:    setupMint,
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if args.Len() < 1 {
			return errors.New("specify a quote id")
		}
		quote, err := m.GetMintQuoteState(context.Background(), cashu.BOLT11_METHOD, args.First())
		if err != nil {
			return err
		}
		fmt.Printf("state: %v, amount paid: %v\n", quote.State(), quote.AmountPaid())
		return nil
	},
}

var keysetsCmd = &cli.Command{
	Name:   "keysets",
	Usage:  "list every keyset the mint knows about",
	Before: setupMint,
	Action: func(ctx *cli.Context) error {
		for id, keyset := range m.Keysets() {
			fmt.Printf("%v  unit=%v active=%v\n", id, keyset.Unit, keyset.Active)
		}
		return nil
	},
}
