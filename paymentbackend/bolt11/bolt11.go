// Package bolt11 provides the invoice-decoding half of a real bolt11
// PaymentBackend. It wraps github.com/nbd-wtf/ln-decodepay, the same
// decoder the teacher's mint.go uses directly in RequestMeltQuote, so a
// concrete backend (LND, CLN, ...) does not need an invoice decoder of
// its own; it still implements every node-facing call of
// paymentbackend.Backend.
package bolt11

import (
	"fmt"

	decodepay "github.com/nbd-wtf/ln-decodepay"
)

// Decoded is the subset of a bolt11 invoice the mint cares about.
type Decoded struct {
	PaymentHash string
	AmountMsat  uint64
	Description string
	Expiry      uint64
	CreatedAt   uint64
}

// Decode parses a bolt11 payment request string.
func Decode(request string) (Decoded, error) {
	inv, err := decodepay.Decodepay(request)
	if err != nil {
		return Decoded{}, fmt.Errorf("bolt11: error decoding invoice: %w", err)
	}

	return Decoded{
		PaymentHash: inv.PaymentHash,
		AmountMsat:  uint64(inv.MSatoshi),
		Description: inv.Description,
		Expiry:      uint64(inv.Expiry),
		CreatedAt:   uint64(inv.CreatedAt),
	}, nil
}

// FeeReserve estimates the routing fee budget to reserve for paying an
// invoice of the given amount, mirroring the teacher's flat 1% policy
// in mint/lightning/lnd.go's FeePercent constant.
func FeeReserve(amountMsat uint64) uint64 {
	reserve := amountMsat / 100
	if reserve == 0 && amountMsat > 0 {
		reserve = 1
	}
	return reserve
}
