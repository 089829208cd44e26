package saga

import (
	"encoding/json"
	"time"
)

// Manager drives sagas through a Store. It owns no network or wallet
// logic itself — callers advance a saga's State and Data as their own
// forward step succeeds, recording a CompensatingAction alongside each
// advance, and let Manager handle persistence and locking.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Start persists a brand new saga in its first step, before the first
// network call the operation makes.
func (m *Manager) Start(kind Kind, state State, amount uint64, mintURL, unit, quoteId string, data any) (*Saga, error) {
	saga := New(kind, state, amount, mintURL, unit, quoteId)
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		saga.Data = encoded
	}
	if err := m.store.Save(saga); err != nil {
		return nil, err
	}
	return saga, nil
}

// Advance moves saga to the next step, recording the CompensatingAction
// that undoes it if the operation fails later. It is an optimistic
// compare-and-swap on saga.Version: on ErrConflict another instance has
// already taken over this saga, and the caller must stop without
// running its own compensations (the other instance owns them now).
func (m *Manager) Advance(saga *Saga, state State, data any, action CompensatingAction) error {
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		saga.Data = encoded
	}

	if action != nil {
		actions, err := decodeActions(saga.Pending)
		if err != nil {
			return err
		}
		actions = append(actions, action)
		encoded, err := encodeActions(actions)
		if err != nil {
			return err
		}
		saga.Pending = encoded
	}

	saga.State = state
	saga.UpdatedAt = time.Now().Unix()
	return m.store.Update(saga)
}

// Finish deletes the saga row: the final compensation step on a
// successful forward run, per the engine's recovery contract.
func (m *Manager) Finish(saga *Saga) error {
	return m.store.Delete(saga.Id)
}

// Abort runs every recorded compensation in reverse order against env.
// On full success the saga row is deleted and Abort returns
// ErrCompensated. If a compensation fails partway through, the saga is
// left in the store (with its remaining compensations) for a later
// recovery pass, and Abort returns ErrPermanentFailure.
func (m *Manager) Abort(saga *Saga, env Compensator) error {
	err := Unwind(saga, env)
	if err != nil {
		saga.UpdatedAt = time.Now().Unix()
		m.store.Update(saga)
		return err
	}

	if delErr := m.store.Delete(saga.Id); delErr != nil {
		return delErr
	}
	return ErrCompensated
}

// Recoverable lists every saga a given mint URL owns, for recovery on
// startup (engine §4.8.4): the caller inspects Kind and State and drives
// each saga to completion or compensation.
func (m *Manager) Recoverable(mintURL string) ([]*Saga, error) {
	return m.store.ListByMint(mintURL)
}
