// Package nut05 contains structs as defined in [NUT-05]
//
// [NUT-05]: https://github.com/cashubtc/nuts/blob/main/05.md
package nut05

import (
	"encoding/json"
	"fmt"

	"github.com/blindmint/cashu/cashu"
)

// State is the melt quote state machine: Unpaid until a payment attempt
// starts, Pending while the backend has an in-flight payment, Paid and
// Failed are terminal except that Failed can retry back to Unpaid.
type State int

const (
	Unpaid State = iota
	Pending
	Paid
	Failed
	Unknown
)

func (s State) String() string {
	switch s {
	case Unpaid:
		return "UNPAID"
	case Pending:
		return "PENDING"
	case Paid:
		return "PAID"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func StateFromString(s string) (State, error) {
	switch s {
	case "UNPAID":
		return Unpaid, nil
	case "PENDING":
		return Pending, nil
	case "PAID":
		return Paid, nil
	case "FAILED":
		return Failed, nil
	case "UNKNOWN":
		return Unknown, nil
	default:
		return 0, fmt.Errorf("invalid melt quote state: %s", s)
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

type PostMeltQuoteBolt11Request struct {
	Request string `json:"request"`
	Unit    string `json:"unit"`
	// Options carries NUT-15 multi-part payment amount, when the
	// request targets a partial payment of a larger bolt11 invoice.
	Options *MeltOptions `json:"options,omitempty"`
}

type MeltOptions struct {
	Mpp *MppOptions `json:"mpp,omitempty"`
}

type MppOptions struct {
	AmountMsat uint64 `json:"amount,omitempty"`
}

type PostMeltQuoteBolt11Response struct {
	Quote      string `json:"quote"`
	Amount     uint64 `json:"amount"`
	FeeReserve uint64 `json:"fee_reserve"`
	State      State  `json:"state"`
	Expiry     int64  `json:"expiry"`
	Preimage   string `json:"payment_preimage,omitempty"`
	// Change carries blind signatures for any overpaid fee reserve,
	// returned once the melt settles.
	Change cashu.BlindedSignatures `json:"change,omitempty"`
}

type PostMeltBolt11Request struct {
	Quote   string                `json:"quote"`
	Inputs  cashu.Proofs          `json:"inputs"`
	Outputs cashu.BlindedMessages `json:"outputs,omitempty"`
}

type PostMeltBolt11Response struct {
	State    State                   `json:"state"`
	Preimage string                  `json:"payment_preimage"`
	Change   cashu.BlindedSignatures `json:"change,omitempty"`
}
