package wallet

import (
	"encoding/hex"
	"encoding/json"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/cashu/nuts/nut09"
	"github.com/blindmint/cashu/crypto"
	"github.com/blindmint/cashu/wallet/saga"
)

// sagaManager adapts this wallet's storage (which already satisfies
// saga.Store, see wallet/storage/bolt.go) into a saga engine.
func (w *Wallet) sagaManager() *saga.Manager {
	return saga.NewManager(w.db)
}

// proofYs computes each proof's NUT-07 nullifier, the identifier
// pending-proof bookkeeping and compensation both key off.
func proofYs(proofs cashu.Proofs) []string {
	ys := make([]string, len(proofs))
	for i, proof := range proofs {
		y := crypto.HashToCurve([]byte(proof.Secret))
		ys[i] = hex.EncodeToString(y.SerializeCompressed())
	}
	return ys
}

// compensator implements saga.Compensator against this wallet's
// storage, so every operation's compensating actions share one undo
// path.
type compensator struct {
	wallet *Wallet
}

func (c compensator) RevertProofReservation(ys []string, sagaId string) error {
	if len(ys) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(ys))
	for _, y := range ys {
		wanted[y] = true
	}

	var toRestore cashu.Proofs
	var toDelete []string
	for _, pending := range c.wallet.db.GetPendingProofs() {
		if !wanted[pending.Y] {
			continue
		}
		toRestore = append(toRestore, cashu.Proof{
			Amount: pending.Amount,
			Id:     pending.Id,
			Secret: pending.Secret,
			C:      pending.C,
			DLEQ:   pending.DLEQ,
		})
		toDelete = append(toDelete, pending.Y)
	}
	// nothing pending under these Ys: already reverted, or this
	// reservation was never staked in the pending bucket to begin with.
	if len(toRestore) == 0 {
		return nil
	}

	if err := c.wallet.db.SaveProofs(toRestore); err != nil {
		return err
	}
	return c.wallet.db.DeletePendingProofs(toDelete)
}

// ReleaseMintQuote and ReleaseMeltQuote are no-ops: this wallet's quote
// storage never marks a quote as claimed by a saga, so there is nothing
// to release. They exist so Mint/Melt sagas compensate through the same
// interface as Send/Receive/Swap, and so a future claim mechanism has
// somewhere to plug in.
func (c compensator) ReleaseMintQuote(quoteId string) error { return nil }
func (c compensator) ReleaseMeltQuote(quoteId string) error { return nil }

// mintSagaData is what an Issue saga needs to regenerate the exact same
// blinded messages on recovery: the deterministic derivation (NUT-13)
// means the counter range alone is enough.
type mintSagaData struct {
	KeysetId string `json:"keyset_id"`
	Counter  uint32 `json:"counter"`
	Count    uint32 `json:"count"`
}

// swapSagaData is what a Receive or Swap saga needs to ask the mint
// whether the outputs it submitted were ever signed, and to unblind the
// result if so.
type swapSagaData struct {
	KeysetId string                `json:"keyset_id"`
	InputYs  []string              `json:"input_ys"`
	Outputs  cashu.BlindedMessages `json:"outputs"`
	Secrets  []string              `json:"secrets"`
	Rs       []string              `json:"rs"`
}

func encodeRs(rs []*secp256k1.PrivateKey) []string {
	encoded := make([]string, len(rs))
	for i, r := range rs {
		encoded[i] = hex.EncodeToString(r.Serialize())
	}
	return encoded
}

func decodeRs(rs []string) ([]*secp256k1.PrivateKey, error) {
	decoded := make([]*secp256k1.PrivateKey, len(rs))
	for i, r := range rs {
		b, err := hex.DecodeString(r)
		if err != nil {
			return nil, err
		}
		decoded[i] = secp256k1.PrivKeyFromBytes(b)
	}
	return decoded, nil
}

// Recover walks every saga this wallet owns against mintURL and drives
// each to completion or compensation, per the engine's startup recovery
// contract: Send sagas still in ProofsReserved are aborted, which only
// deletes the saga row, since Send records no compensating action and
// so no proofs are restored; Receive and
// Swap sagas are resolved by asking the mint whether the blinded
// messages they submitted were ever signed (NUT-09 restore doubles as a
// state check here); Mint sagas regenerate their deterministic outputs
// and ask the same way; Melt sagas are resolved by polling the melt
// quote's state.
func (w *Wallet) Recover(mintURL string) error {
	mgr := w.sagaManager()
	comp := compensator{wallet: w}

	sagas, err := mgr.Recoverable(mintURL)
	if err != nil {
		return err
	}

	for _, s := range sagas {
		switch {
		case s.Kind == saga.KindSend && s.State == saga.SendProofsReserved:
			mgr.Abort(s, comp)

		case (s.Kind == saga.KindReceive && s.State == saga.ReceiveSwapRequested) ||
			(s.Kind == saga.KindSwap && s.State == saga.SwapSwapRequested):
			w.recoverSwapSaga(s, mgr, comp)

		case s.Kind == saga.KindMint && s.State == saga.MintRequested:
			w.recoverMintSaga(s, mgr)

		case s.Kind == saga.KindMelt && (s.State == saga.MeltRequested || s.State == saga.MeltPaymentPending):
			w.recoverMeltSaga(s, mgr, comp)
		}
	}

	return nil
}

func (w *Wallet) recoverSwapSaga(s *saga.Saga, mgr *saga.Manager, comp compensator) {
	var data swapSagaData
	if err := json.Unmarshal(s.Data, &data); err != nil {
		return
	}

	restoreResponse, err := PostRestore(s.MintURL, nut09.PostRestoreRequest{Outputs: data.Outputs})
	if err != nil {
		return
	}
	if len(restoreResponse.Signatures) == 0 {
		mgr.Abort(s, comp)
		return
	}

	keyset := w.db.GetKeyset(data.KeysetId)
	if keyset == nil {
		return
	}
	rs, err := decodeRs(data.Rs)
	if err != nil {
		return
	}

	proofs, err := constructProofs(restoreResponse.Signatures, data.Outputs, data.Secrets, rs, keyset)
	if err != nil {
		return
	}

	if err := w.db.SaveProofs(proofs); err != nil {
		return
	}
	w.db.IncrementKeysetCounter(keyset.Id, uint32(len(data.Outputs)))
	w.db.DeletePendingProofs(data.InputYs)
	mgr.Finish(s)
}

func (w *Wallet) recoverMintSaga(s *saga.Saga, mgr *saga.Manager) {
	var data mintSagaData
	if err := json.Unmarshal(s.Data, &data); err != nil {
		return
	}

	quote := w.db.GetMintQuoteById(s.QuoteId)
	if quote == nil {
		mgr.Finish(s)
		return
	}

	keyset := w.db.GetKeyset(data.KeysetId)
	if keyset == nil {
		return
	}

	counter := data.Counter
	outputs, secrets, rs, err := w.createBlindedMessages(cashu.AmountSplit(quote.Amount), *keyset, &counter)
	if err != nil {
		return
	}

	restoreResponse, err := PostRestore(s.MintURL, nut09.PostRestoreRequest{Outputs: outputs})
	if err != nil {
		return
	}
	if len(restoreResponse.Signatures) > 0 {
		if proofs, err := constructProofs(restoreResponse.Signatures, outputs, secrets, rs, keyset); err == nil {
			w.db.SaveProofs(proofs)
		}
	}

	// whether or not signatures existed, the blinded messages at this
	// counter range were exposed to the mint: the counter is never
	// rolled back, per the engine's deterministic-secret contract.
	w.db.IncrementKeysetCounter(keyset.Id, data.Count)
	mgr.Finish(s)
}

func (w *Wallet) recoverMeltSaga(s *saga.Saga, mgr *saga.Manager, comp compensator) {
	state, err := GetMeltQuoteState(s.MintURL, s.QuoteId)
	if err != nil {
		return
	}

	switch state.State {
	case nut05.Paid:
		w.db.DeletePendingProofsByQuoteId(s.QuoteId)
		mgr.Finish(s)
	case nut05.Pending:
		// still in flight at the payment backend: leave the saga as is
		// for the next recovery pass.
	default:
		mgr.Abort(s, comp)
	}
}
