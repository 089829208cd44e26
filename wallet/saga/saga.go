// Package saga implements the wallet's crash-tolerant operation engine.
//
// Every multi-step wallet operation (mint, swap, send, receive, melt)
// reserves resources, talks to a mint over the network, and only then
// commits. A process crash between the reservation and the commit must
// not leave proofs silently stuck or double-spendable. Each operation
// is therefore modeled as a Saga: a row persisted before the first
// network call, advanced forward one step at a time, and either
// finished (deleted) on success or unwound via LIFO compensation on
// failure. Saga.Version implements optimistic locking so two wallet
// instances sharing one database never race on the same saga.
package saga

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which user-facing operation a saga belongs to.
type Kind string

const (
	KindSend    Kind = "send"
	KindReceive Kind = "receive"
	KindSwap    Kind = "swap"
	KindMint    Kind = "mint"
	KindMelt    Kind = "melt"
)

// State is a step label within a saga's kind-specific state machine.
type State string

const (
	SendProofsReserved State = "ProofsReserved"
	SendTokenCreated   State = "TokenCreated"
	SendRollingBack    State = "RollingBack"

	ReceiveProofsPending State = "ProofsPending"
	ReceiveSwapRequested State = "SwapRequested"

	SwapProofsReserved State = "ProofsReserved"
	SwapSwapRequested  State = "SwapRequested"

	MintSecretsPrepared State = "SecretsPrepared"
	MintRequested       State = "MintRequested"

	MeltProofsReserved State = "ProofsReserved"
	MeltRequested      State = "MeltRequested"
	MeltPaymentPending State = "PaymentPending"
)

var (
	// ErrConflict is returned by Store.Update when the saga's version no
	// longer matches what the caller read: another instance already
	// advanced it. The caller aborts its own step without compensating;
	// the instance that won the race owns forward progress (or unwind).
	ErrConflict = errors.New("saga: version conflict, another instance owns this saga")

	// ErrCompensated marks a saga whose forward steps failed and whose
	// compensations all ran to completion: the operation did not
	// happen, and every reservation it made has been released.
	ErrCompensated = errors.New("saga: operation failed, compensations applied")

	// ErrPermanentFailure marks a saga where compensation itself failed
	// partway through. The saga row is left in place for inspection or
	// manual recovery instead of being deleted.
	ErrPermanentFailure = errors.New("saga: compensation failed, saga left for recovery")

	ErrNotFound = errors.New("saga: not found")
)

// Saga is the persisted state of one in-flight wallet operation.
type Saga struct {
	Id        string
	Kind      Kind
	State     State
	Amount    uint64
	MintURL   string
	Unit      string
	QuoteId   string
	Data      json.RawMessage
	// Pending holds the compensating actions recorded so far, JSON-encoded
	// via encodeActions/decodeActions (compensation.go), oldest first.
	// Unwinding walks this slice in reverse.
	Pending   json.RawMessage
	CreatedAt int64
	UpdatedAt int64
	Version   uint32
}

// New starts a saga in its first step. The caller is responsible for
// persisting it via Store.Save before making any network call.
func New(kind Kind, state State, amount uint64, mintURL, unit, quoteId string) *Saga {
	now := time.Now().Unix()
	return &Saga{
		Id:        uuid.NewString(),
		Kind:      kind,
		State:     state,
		Amount:    amount,
		MintURL:   mintURL,
		Unit:      unit,
		QuoteId:   quoteId,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   0,
	}
}

// Store persists sagas with optimistic locking. Update must perform the
// equivalent of `UPDATE saga SET ... WHERE id=? AND version=?`, touching
// zero rows (and returning ErrConflict) when saga.Version no longer
// matches what is stored.
type Store interface {
	Save(saga *Saga) error
	Get(id string) (*Saga, error)
	ListByMint(mintURL string) ([]*Saga, error)
	Update(saga *Saga) error
	Delete(id string) error
}
