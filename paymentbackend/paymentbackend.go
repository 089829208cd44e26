// Package paymentbackend defines the capability interface the mint uses
// to talk to a Lightning (or other payment-rail) backend, grounded in
// the teacher's mint/lightning.Client but expanded to the full NUT-23
// style surface: quote-before-pay, async wait-for-incoming streaming,
// and reconciliation lookups for crash recovery.
package paymentbackend

import (
	"context"
	"errors"

	"github.com/blindmint/cashu/cashu/nuts/nut04"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
)

var (
	ErrInvoiceAlreadyPaid    = errors.New("paymentbackend: invoice already paid")
	ErrInvoicePaymentPending = errors.New("paymentbackend: invoice payment pending")
	ErrUnsupportedUnit       = errors.New("paymentbackend: unsupported unit")
	ErrUnknownPaymentState   = errors.New("paymentbackend: unknown payment state")
)

// Settings describes what a backend supports so the mint can build its
// NUT-06 info response.
type Settings struct {
	Methods           []string
	Units             []string
	MppSupport        bool
	AmountlessSupport bool
	Bolt12            bool
}

// IncomingPaymentOptions parameterizes create_incoming_payment_request.
// Amount is omitted (zero) for an amountless bolt12 offer.
type IncomingPaymentOptions struct {
	Amount      uint64
	Description string
	Expiry      uint64
}

// IncomingPaymentRequest is what the backend hands back for the mint to
// present to the payer and to use as a reverse-lookup key.
type IncomingPaymentRequest struct {
	Request         string
	RequestLookupId string
	Expiry          uint64
}

// PaymentQuote is the backend's estimate of amount+fee for paying a
// request, used to populate a MeltQuote.
type PaymentQuote struct {
	Amount          uint64
	Fee             uint64
	RequestLookupId string
	State           nut05.State
}

// PaymentQuoteOptions carries NUT-15 MPP parameters when present.
type PaymentQuoteOptions struct {
	AmountMsat uint64
}

// PaymentStatus is the outcome of a make_payment or check_outgoing_payment
// call.
type PaymentStatus struct {
	State      nut05.State
	Preimage   string
	TotalSpent uint64
	LookupId   string
}

// PaymentNotification is one element of the wait_any_incoming_payment
// stream: an observed incoming payment against some previously issued
// incoming payment request.
type PaymentNotification struct {
	RequestLookupId string
	Amount          uint64
	Unit            string
	PaymentId       string
}

// Backend is the capability set the mint's C6 state machine consumes.
// A concrete adapter owns exactly one payment rail (fake, bolt11, ...).
type Backend interface {
	Settings() Settings

	CreateIncomingPaymentRequest(ctx context.Context, unit string, opts IncomingPaymentOptions) (IncomingPaymentRequest, error)
	GetPaymentQuote(ctx context.Context, request, unit string, opts *PaymentQuoteOptions) (PaymentQuote, error)
	MakePayment(ctx context.Context, quote PaymentQuote, partialAmount, maxFee uint64) (PaymentStatus, error)

	// WaitAnyIncomingPayment blocks until a payment notification is
	// available or ctx is cancelled.
	WaitAnyIncomingPayment(ctx context.Context) (PaymentNotification, error)

	CheckIncomingPayment(ctx context.Context, lookupId string) (nut04.State, error)
	CheckOutgoingPayment(ctx context.Context, lookupId string) (PaymentStatus, error)
}
