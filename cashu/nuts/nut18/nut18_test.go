package nut18

import "testing"

func TestEncodeDecodePaymentRequest(t *testing.T) {
	request := PaymentRequest{
		Id:          "b7a90176",
		Amount:      10,
		Unit:        "sat",
		SingleUse:   true,
		Mints:       []string{"https://mint.example.com"},
		Description: "thank you",
		Transports: []Transport{
			{Type: TransportHTTP, Target: "https://wallet.example.com/pay"},
			{Type: TransportNostr, Target: "02d56...", Tags: [][]string{{"n", "wss://relay.example.com"}}},
		},
	}

	encoded, err := request.Encode()
	if err != nil {
		t.Fatalf("unexpected error encoding payment request: %v", err)
	}
	if encoded[:len(PaymentRequestPrefix)] != PaymentRequestPrefix {
		t.Fatalf("encoded request missing '%v' prefix", PaymentRequestPrefix)
	}

	decoded, err := DecodePaymentRequest(encoded)
	if err != nil {
		t.Fatalf("unexpected error decoding payment request: %v", err)
	}

	if decoded.Id != request.Id {
		t.Errorf("expected id '%v' but got '%v'", request.Id, decoded.Id)
	}
	if decoded.Amount != request.Amount {
		t.Errorf("expected amount '%v' but got '%v'", request.Amount, decoded.Amount)
	}
	if len(decoded.Transports) != len(request.Transports) {
		t.Fatalf("expected %v transports but got %v", len(request.Transports), len(decoded.Transports))
	}
	if relays := decoded.Transports[1].Relays(); len(relays) != 1 || relays[0] != "wss://relay.example.com" {
		t.Errorf("unexpected relays decoded from nostr transport: %v", relays)
	}
}

func TestDecodePaymentRequestInvalidPrefix(t *testing.T) {
	if _, err := DecodePaymentRequest("notacreq"); err != ErrInvalidPaymentRequestPrefix {
		t.Errorf("expected ErrInvalidPaymentRequestPrefix but got '%v'", err)
	}
}
