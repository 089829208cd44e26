// Package storage defines the mint's persistence contract: keysets,
// quotes (with their append-only payment/issuance logs), and nullifier
// records. Concrete adapters (sqlite) implement MintDB.
package storage

import (
	"errors"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut04"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/cashu/nuts/nut07"
)

// ErrQuoteOutstandingExceeded is returned by ReserveMintQuoteIssuance
// when the requested amount exceeds what's left to issue on a quote.
var ErrQuoteOutstandingExceeded = errors.New("mint quote issuance exceeds outstanding amount")

type MintDB interface {
	SaveSeed([]byte) error
	GetSeed() ([]byte, error)

	SaveKeyset(DBKeyset) error
	GetKeysets() ([]DBKeyset, error)
	UpdateKeysetActive(keysetId string, active bool) error

	// SaveProofs persists spent proofs. GetProofsUsed looks them up by Y.
	SaveProofs(cashu.Proofs) error
	GetProofsUsed(Ys []string) ([]DBProof, error)

	// AddPendingProofs stakes out Ys as Pending (or Reserved, for a
	// compensation-reserved change input) for the duration of a swap or
	// melt. MarkProofsSpent moves pending rows into the permanent spent
	// table (Pending -> Spent). RemovePendingProofs reverts pending rows
	// back to Unspent (removes the stake). SetPendingProofsState toggles
	// a pending Y between Pending and Reserved without releasing it.
	AddPendingProofs(proofs cashu.Proofs, quoteId string) error
	GetPendingProofs(Ys []string) ([]DBProof, error)
	GetPendingProofsByQuote(quoteId string) ([]DBProof, error)
	RemovePendingProofs(Ys []string) error
	MarkProofsSpent(Ys []string) error
	SetPendingProofsState(Ys []string, state nut07.State) error

	SaveMintQuote(MintQuote) error
	GetMintQuote(id string) (MintQuote, error)
	GetMintQuoteByLookupId(lookupId string) (MintQuote, error)
	// AddMintQuotePayment appends a payment observation; a duplicate
	// paymentId is a no-op so payment-stream redelivery stays idempotent.
	AddMintQuotePayment(quoteId, paymentId string, amount uint64, time uint64) error
	AddMintQuoteIssuance(quoteId string, amount uint64, time uint64) error
	// ReserveMintQuoteIssuance checks amount against the quote's current
	// outstanding balance (paid - issued) and appends the issuance row
	// in the same transaction, so two concurrent mint requests against
	// one quote can't both pass the check before either commits. The
	// returned rowid lets a caller undo the reservation with
	// RemoveMintQuoteIssuance if a later step fails.
	// Returns ErrQuoteOutstandingExceeded if amount exceeds what's left.
	ReserveMintQuoteIssuance(quoteId string, amount uint64, time uint64) (int64, error)
	RemoveMintQuoteIssuance(rowid int64) error

	SaveMeltQuote(MeltQuote) error
	GetMeltQuote(id string) (MeltQuote, error)
	GetMeltQuoteByLookupId(lookupId string) (*MeltQuote, error)
	UpdateMeltQuoteState(quoteId string, state nut05.State) error
	SetMeltQuotePreimage(quoteId, preimage string) error

	SaveBlindSignatures(B_s []string, blindSignatures cashu.BlindedSignatures) error
	GetBlindSignature(B_ string) (cashu.BlindedSignature, error)
	GetBlindSignatures(B_s []string) (cashu.BlindedSignatures, error)

	// these return a map of keyset id and amount
	GetIssuedEcash() (map[string]uint64, error)
	GetRedeemedEcash() (map[string]uint64, error)

	Close() error
}

type DBKeyset struct {
	Id     string
	Unit   string
	Active bool
	Seed   string
	// UnitIndex and DerivationPathIdx together pin the keyset to its
	// m/129372'/unitIndex'/rotationIndex' node (crypto.DeriveKeysetPath).
	UnitIndex         uint32
	DerivationPathIdx uint32
	InputFeePpk       uint
	FinalExpiry       *uint64
}

type DBProof struct {
	Amount  uint64
	Id      string
	Secret  string
	Y       string
	C       string
	Witness string
	State   nut07.State
	// MeltQuoteId ties a Pending proof to the melt quote it backs;
	// empty for proofs pending as swap inputs.
	MeltQuoteId string
}

// MintQuotePayment is one row of a mint quote's append-only payments[]
// log; amount_paid is the sum over these rows.
type MintQuotePayment struct {
	PaymentId string
	Amount    uint64
	Time      uint64
}

// MintQuoteIssuance is one row of a mint quote's append-only
// issuance[] log; amount_issued is the sum over these rows.
type MintQuoteIssuance struct {
	Amount uint64
	Time   uint64
}

type MintQuote struct {
	Id              string
	Unit            string
	Method          string
	Amount          uint64
	Request         string
	RequestLookupId string
	Pubkey          string
	CreatedAt       uint64
	Expiry          uint64
	Payments        []MintQuotePayment
	Issuance        []MintQuoteIssuance
}

func (q MintQuote) AmountPaid() uint64 {
	var total uint64
	for _, p := range q.Payments {
		total += p.Amount
	}
	return total
}

func (q MintQuote) AmountIssued() uint64 {
	var total uint64
	for _, i := range q.Issuance {
		total += i.Amount
	}
	return total
}

// State derives the quote's lifecycle state from its payment/issuance
// logs rather than a stored column: Unpaid while nothing has been
// paid, Paid while paid exceeds issued, Issued once fully issued.
func (q MintQuote) State() nut04.State {
	paid := q.AmountPaid()
	issued := q.AmountIssued()
	if paid == 0 {
		return nut04.Unpaid
	}
	if paid > issued {
		return nut04.Paid
	}
	return nut04.Issued
}

// HasPaymentId reports whether a payment_id has already been recorded,
// so the payment-observation loop can treat redelivery as a no-op.
func (q MintQuote) HasPaymentId(paymentId string) bool {
	for _, p := range q.Payments {
		if p.PaymentId == paymentId {
			return true
		}
	}
	return false
}

type MeltQuote struct {
	Id              string
	Unit            string
	Method          string
	Request         string
	RequestLookupId string
	Amount          uint64
	FeeReserve      uint64
	State           nut05.State
	Preimage        string
	IsMpp           bool
	// AmountMsat is used when the melt quote is MPP (NUT-15).
	AmountMsat uint64
	CreatedAt  uint64
	Expiry     uint64
	PaidAt     uint64
}
