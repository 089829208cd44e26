// Package nut18 implements payment request encoding as defined in [NUT-18].
//
// [NUT-18]: https://github.com/cashubtc/nuts/blob/main/18.md
package nut18

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	PaymentRequestPrefix = "creq"

	// transport types a payer may be asked to use
	TransportHTTP  = "post"
	TransportNostr = "nostr"
)

var ErrInvalidPaymentRequestPrefix = errors.New("invalid payment request prefix")

type PaymentRequest struct {
	Id          string      `json:"i,omitempty" cbor:"i,omitempty"`
	Amount      uint64      `json:"a,omitempty" cbor:"a,omitempty"`
	Unit        string      `json:"u,omitempty" cbor:"u,omitempty"`
	SingleUse   bool        `json:"r,omitempty" cbor:"r,omitempty"`
	Mints       []string    `json:"m,omitempty" cbor:"m,omitempty"`
	Description string      `json:"d,omitempty" cbor:"d,omitempty"`
	Transports  []Transport `json:"t" cbor:"t"`
	NUT10       *NUT10Option `json:"nut10,omitempty" cbor:"nut10,omitempty"`
}

// NUT10Option locks the eventual payment to a spending condition, same
// shape as the well-known secret nut10 already defines for proofs.
type NUT10Option struct {
	Kind string `json:"k" cbor:"k"`
	Data string `json:"d" cbor:"d"`
	Tags [][]string `json:"t,omitempty" cbor:"t,omitempty"`
}

// Transport describes one way a payer can deliver payment back to the
// receiver. T is TransportHTTP or TransportNostr, A is the target (a URL
// for HTTP, a pubkey for Nostr), G carries transport-specific tags (for
// Nostr, relay URLs under tag "n").
type Transport struct {
	Type   string     `json:"t" cbor:"t"`
	Target string     `json:"a" cbor:"a"`
	Tags   [][]string `json:"g,omitempty" cbor:"g,omitempty"`
}

// Relays returns the relay URLs carried in a Nostr transport's "n" tag.
func (t Transport) Relays() []string {
	for _, tag := range t.Tags {
		if len(tag) > 0 && tag[0] == "n" {
			return tag[1:]
		}
	}
	return nil
}

func (p PaymentRequest) Encode() (string, error) {
	requestBytes, err := cbor.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("cbor.Marshal(p): %v", err)
	}

	return PaymentRequestPrefix + base64.RawURLEncoding.EncodeToString(requestBytes), nil
}

func DecodePaymentRequest(request string) (PaymentRequest, error) {
	if len(request) < len(PaymentRequestPrefix) || request[:len(PaymentRequestPrefix)] != PaymentRequestPrefix {
		return PaymentRequest{}, ErrInvalidPaymentRequestPrefix
	}

	requestBytes, err := base64.RawURLEncoding.DecodeString(request[len(PaymentRequestPrefix):])
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("invalid payment request encoding: %v", err)
	}

	var paymentRequest PaymentRequest
	if err := cbor.Unmarshal(requestBytes, &paymentRequest); err != nil {
		return PaymentRequest{}, fmt.Errorf("invalid payment request: %v", err)
	}

	return paymentRequest, nil
}
