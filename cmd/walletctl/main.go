// Command walletctl is a thin CLI over the wallet package, grounded on
// the teacher's cmd/nutw: it loads a wallet database, talks to a mint
// over the NUT HTTP API (wallet/client.go), and runs one command per
// invocation. It has no network transport of its own to expose — it is
// a client of whatever mint URL it's pointed at.
package main

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/blindmint/cashu/wallet"
)

var w *wallet.Wallet

func walletConfig() wallet.Config {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}
	path := filepath.Join(homedir, ".cashu", "wallet")
	if err := os.MkdirAll(path, 0700); err != nil {
		log.Fatal(err)
	}

	mintURL := os.Getenv("MINT_URL")
	if mintURL == "" {
		mintURL = (&url.URL{Scheme: "http", Host: "127.0.0.1:3338"}).String()
	}

	return wallet.Config{WalletPath: path, CurrentMintURL: mintURL, Unit: os.Getenv("UNIT")}
}

func setupWallet(ctx *cli.Context) error {
	var err error
	w, err = wallet.LoadWallet(walletConfig())
	if err != nil {
		return fmt.Errorf("error loading wallet: %v", err)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "walletctl",
		Usage: "cashu wallet",
		Commands: []*cli.Command{
			balanceCmd,
			mintCmd,
			sendCmd,
			receiveCmd,
			meltCmd,
			p2pkLockCmd,
			mnemonicCmd,
			restoreCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var balanceCmd = &cli.Command{
	Name:   "balance",
	Usage:  "wallet balance by mint",
	Before: setupWallet,
	Action: func(ctx *cli.Context) error {
		for mintURL, balance := range w.GetBalanceByMints() {
			fmt.Printf("%v: %v\n", mintURL, balance)
		}
		fmt.Printf("total: %v\n", w.GetBalance())
		return nil
	},
}

const invoiceFlag = "invoice"

var mintCmd = &cli.Command{
	Name:      "mint",
	Usage:     "request a mint quote, or redeem one already paid with --invoice",
	ArgsUsage: "[AMOUNT]",
	Before:    setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: invoiceFlag, Usage: "quote id of an already-paid mint quote"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.IsSet(invoiceFlag) {
			proofs, err := w.MintTokens(ctx.String(invoiceFlag))
			if err != nil {
				return err
			}
			fmt.Printf("%v sats minted\n", proofs.Amount())
			return nil
		}

		args := ctx.Args()
		if args.Len() < 1 {
			return errors.New("specify an amount to mint")
		}
		amount, err := strconv.ParseUint(args.First(), 10, 64)
		if err != nil {
			return errors.New("invalid amount")
		}

		response, err := w.RequestMint(amount)
		if err != nil {
			return err
		}
		fmt.Printf("quote: %v\ninvoice: %v\n", response.Quote, response.Request)
		fmt.Println("once paid, redeem with: mint --invoice <quote>")
		return nil
	},
}

var sendCmd = &cli.Command{
	Name:      "send",
	Usage:     "produce a token for the given amount",
	ArgsUsage: "[AMOUNT]",
	Before:    setupWallet,
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if args.Len() < 1 {
			return errors.New("specify an amount to send")
		}
		amount, err := strconv.ParseUint(args.First(), 10, 64)
		if err != nil {
			return err
		}

		token, err := w.Send(amount, true)
		if err != nil {
			return err
		}
		serialized, err := token.Serialize()
		if err != nil {
			return err
		}
		fmt.Println(serialized)
		return nil
	},
}

var receiveCmd = &cli.Command{
	Name:      "receive",
	Usage:     "redeem a token",
	ArgsUsage: "[TOKEN]",
	Before:    setupWallet,
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if args.Len() < 1 {
			return errors.New("token not provided")
		}

		amount, err := w.Receive(args.First())
		if err != nil {
			return err
		}
		fmt.Printf("%v sats received\n", amount)
		return nil
	},
}

var meltCmd = &cli.Command{
	Name:      "melt",
	Usage:     "pay a lightning invoice from wallet balance",
	ArgsUsage: "[INVOICE]",
	Before:    setupWallet,
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if args.Len() < 1 {
			return errors.New("specify a lightning invoice to pay")
		}

		quote, err := w.RequestMeltQuote(args.First())
		if err != nil {
			return err
		}

		response, err := w.MeltTokens(quote.Quote)
		if err != nil {
			return err
		}
		fmt.Printf("state: %v\npreimage: %v\n", response.State, response.Preimage)
		return nil
	},
}

var p2pkLockCmd = &cli.Command{
	Name:   "p2pk-lock",
	Usage:  "public key ecash can be locked to",
	Before: setupWallet,
	Action: func(ctx *cli.Context) error {
		pubkey, err := w.GetReceivePubkey()
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", pubkey.SerializeCompressed())
		return nil
	},
}

var mnemonicCmd = &cli.Command{
	Name:   "mnemonic",
	Usage:  "show the seed phrase this wallet can be restored from",
	Before: setupWallet,
	Action: func(ctx *cli.Context) error {
		fmt.Println(w.Mnemonic())
		return nil
	},
}

var restoreCmd = &cli.Command{
	Name:      "restore",
	Usage:     "restore a wallet from a mnemonic against one or more mints",
	ArgsUsage: "[MNEMONIC] [MINT_URL...]",
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if args.Len() < 2 {
			return errors.New("usage: restore [MNEMONIC] [MINT_URL...]")
		}

		config := walletConfig()
		amount, err := wallet.Restore(config.WalletPath, args.First(), args.Slice()[1:])
		if err != nil {
			return fmt.Errorf("error restoring wallet: %v", err)
		}
		fmt.Printf("restored %v sats\n", amount)
		return nil
	},
}
