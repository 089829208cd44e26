// Package nut04 contains structs as defined in [NUT-04]
//
// [NUT-04]: https://github.com/cashubtc/nuts/blob/main/04.md
package nut04

import (
	"encoding/json"
	"fmt"

	"github.com/blindmint/cashu/cashu"
)

// State is the lifecycle of a mint quote, derived from its payment and
// issuance logs rather than stored directly: Unpaid while amount_paid is
// zero, Paid once amount_paid > amount_issued, Issued once amount_paid
// has been fully issued against.
type State int

const (
	Unpaid State = iota
	Paid
	Issued
)

func (s State) String() string {
	switch s {
	case Unpaid:
		return "UNPAID"
	case Paid:
		return "PAID"
	case Issued:
		return "ISSUED"
	default:
		return "UNKNOWN"
	}
}

func StateFromString(s string) (State, error) {
	switch s {
	case "UNPAID":
		return Unpaid, nil
	case "PAID":
		return Paid, nil
	case "ISSUED":
		return Issued, nil
	default:
		return 0, fmt.Errorf("invalid mint quote state: %s", s)
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state, err := StateFromString(str)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

type PostMintQuoteBolt11Request struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
	// Pubkey locks the quote per NUT-20: MintTokens requires a valid
	// signature from this key over the quote id followed by the outputs'
	// B_ values.
	Pubkey string `json:"pubkey,omitempty"`
}

type PostMintQuoteBolt11Response struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	State   State  `json:"state"`
	Expiry  int64  `json:"expiry"`
	Pubkey  string `json:"pubkey,omitempty"`
	// AmountPaid and AmountIssued expose the running totals behind State
	// so a wallet can detect partial (bolt12) issuance.
	AmountPaid   uint64 `json:"amount_paid"`
	AmountIssued uint64 `json:"amount_issued"`
}

type PostMintBolt11Request struct {
	Quote   string                `json:"quote"`
	Outputs cashu.BlindedMessages `json:"outputs"`
	// Signature is the NUT-20 Schnorr signature over the quote id followed
	// by the concatenated B_ values, required when the quote was requested
	// with a pubkey.
	Signature string `json:"signature,omitempty"`
}

type PostMintBolt11Response struct {
	Signatures cashu.BlindedSignatures `json:"signatures"`
}
