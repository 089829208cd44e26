// Package fake is an in-memory PaymentBackend used by tests and local
// development, grounded on the teacher's mint/lightning.FakeBackend:
// same synthetic-invoice generation via lightningnetwork/lnd/zpay32, same
// description-string convention for forcing a payment to fail.
package fake

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/blindmint/cashu/cashu/nuts/nut04"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/paymentbackend"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	FakePreimage           = "0000000000000000000000000000000000000000000000000000000000000000"
	FailPaymentDescription = "fail the payment"
)

type invoice struct {
	request   string
	lookupId  string
	preimage  string
	amount    uint64
	state     nut05.State
	mintState nut04.State
}

// Backend is a single-process in-memory PaymentBackend. Incoming
// invoices stay unpaid until SettleIncoming marks them paid; outgoing
// payments succeed unless the invoice's description is
// FailPaymentDescription. Notifications are delivered over a buffered
// channel so a test can drive wait_any_incoming_payment deterministically.
type Backend struct {
	mu             sync.Mutex
	invoices       map[string]*invoice
	// outgoingRequests remembers the raw bolt11 string behind a quote's
	// RequestLookupId (its payment hash) so MakePayment can inspect the
	// description without re-deriving it from the hash.
	outgoingRequests map[string]string
	notify           chan paymentbackend.PaymentNotification
}

func New() *Backend {
	return &Backend{
		invoices:         make(map[string]*invoice),
		outgoingRequests: make(map[string]string),
		notify:           make(chan paymentbackend.PaymentNotification, 64),
	}
}

func (b *Backend) Settings() paymentbackend.Settings {
	return paymentbackend.Settings{
		Methods:           []string{"bolt11"},
		Units:             []string{"sat"},
		MppSupport:        true,
		AmountlessSupport: false,
		Bolt12:            false,
	}
}

func (b *Backend) CreateIncomingPaymentRequest(ctx context.Context, unit string, opts paymentbackend.IncomingPaymentOptions) (paymentbackend.IncomingPaymentRequest, error) {
	req, _, lookupId, err := createInvoice(opts.Amount, opts.Description)
	if err != nil {
		return paymentbackend.IncomingPaymentRequest{}, err
	}

	b.mu.Lock()
	b.invoices[lookupId] = &invoice{
		request:   req,
		lookupId:  lookupId,
		amount:    opts.Amount,
		state:     nut05.Unpaid,
		mintState: nut04.Unpaid,
	}
	b.mu.Unlock()

	return paymentbackend.IncomingPaymentRequest{
		Request:         req,
		RequestLookupId: lookupId,
		Expiry:          opts.Expiry,
	}, nil
}

// SettleIncoming lets a test mark a previously created invoice as paid,
// pushing a notification onto the wait_any_incoming_payment stream.
func (b *Backend) SettleIncoming(lookupId, paymentId string) {
	b.mu.Lock()
	inv, ok := b.invoices[lookupId]
	if !ok {
		b.mu.Unlock()
		return
	}
	inv.mintState = nut04.Paid
	amount := inv.amount
	b.mu.Unlock()

	b.notify <- paymentbackend.PaymentNotification{
		RequestLookupId: lookupId,
		Amount:          amount,
		Unit:            "sat",
		PaymentId:       paymentId,
	}
}

func (b *Backend) WaitAnyIncomingPayment(ctx context.Context) (paymentbackend.PaymentNotification, error) {
	select {
	case n := <-b.notify:
		return n, nil
	case <-ctx.Done():
		return paymentbackend.PaymentNotification{}, ctx.Err()
	}
}

func (b *Backend) CheckIncomingPayment(ctx context.Context, lookupId string) (nut04.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.invoices[lookupId]
	if !ok {
		return nut04.Unpaid, paymentbackend.ErrUnknownPaymentState
	}
	return inv.mintState, nil
}

func (b *Backend) GetPaymentQuote(ctx context.Context, request, unit string, opts *paymentbackend.PaymentQuoteOptions) (paymentbackend.PaymentQuote, error) {
	decoded, err := decodepay.Decodepay(request)
	if err != nil {
		return paymentbackend.PaymentQuote{}, fmt.Errorf("error decoding invoice: %v", err)
	}

	amount := uint64(decoded.MSatoshi) / 1000
	if opts != nil && opts.AmountMsat > 0 {
		amount = opts.AmountMsat / 1000
	}

	b.mu.Lock()
	b.outgoingRequests[decoded.PaymentHash] = request
	b.mu.Unlock()

	return paymentbackend.PaymentQuote{
		Amount:          amount,
		Fee:             amount / 100,
		RequestLookupId: decoded.PaymentHash,
		State:           nut05.Unpaid,
	}, nil
}

func (b *Backend) MakePayment(ctx context.Context, quote paymentbackend.PaymentQuote, partialAmount, maxFee uint64) (paymentbackend.PaymentStatus, error) {
	b.mu.Lock()
	request := b.outgoingRequests[quote.RequestLookupId]
	b.mu.Unlock()

	state := nut05.Paid
	if decoded, err := decodepay.Decodepay(request); err == nil && decoded.Description == FailPaymentDescription {
		state = nut05.Failed
	}

	amount := quote.Amount
	if partialAmount > 0 {
		amount = partialAmount
	}

	status := paymentbackend.PaymentStatus{
		State:      state,
		Preimage:   FakePreimage,
		TotalSpent: amount + quote.Fee,
		LookupId:   quote.RequestLookupId,
	}

	b.mu.Lock()
	b.invoices[quote.RequestLookupId] = &invoice{
		lookupId: quote.RequestLookupId,
		preimage: FakePreimage,
		amount:   amount,
		state:    state,
	}
	b.mu.Unlock()

	return status, nil
}

func (b *Backend) CheckOutgoingPayment(ctx context.Context, lookupId string) (paymentbackend.PaymentStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.invoices[lookupId]
	if !ok {
		return paymentbackend.PaymentStatus{}, paymentbackend.ErrUnknownPaymentState
	}
	return paymentbackend.PaymentStatus{
		State:      inv.state,
		Preimage:   inv.preimage,
		TotalSpent: inv.amount,
		LookupId:   lookupId,
	}, nil
}

// createInvoice mints a synthetic bolt11 invoice signed by a throwaway
// key, same approach as the teacher's CreateFakeInvoice.
func createInvoice(amount uint64, description string) (string, string, string, error) {
	var random [32]byte
	if _, err := rand.Read(random[:]); err != nil {
		return "", "", "", err
	}
	preimage := hex.EncodeToString(random[:])
	paymentHash := sha256.Sum256(random[:])
	hash := hex.EncodeToString(paymentHash[:])

	if description == "" {
		description = "fake invoice"
	}

	inv, err := zpay32.NewInvoice(
		&chaincfg.SigNetParams,
		paymentHash,
		time.Now(),
		zpay32.Amount(lnwire.MilliSatoshi(amount*1000)),
		zpay32.Description(description),
	)
	if err != nil {
		return "", "", "", err
	}

	encoded, err := inv.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			key, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return nil, err
			}
			return ecdsa.SignCompact(key, msg, true), nil
		},
	})
	if err != nil {
		return "", "", "", err
	}

	return encoded, preimage, hash, nil
}
