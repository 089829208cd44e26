package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip39"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut03"
	"github.com/blindmint/cashu/cashu/nuts/nut04"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/cashu/nuts/nut13"
	"github.com/blindmint/cashu/cashu/nuts/nut20"
	"github.com/blindmint/cashu/crypto"
	"github.com/blindmint/cashu/wallet/saga"
	"github.com/blindmint/cashu/wallet/storage"
)

// walletMint is everything the wallet tracks locally about one mint: its
// URL, its current active keyset, and whatever inactive keysets it has
// seen (still needed to redeem proofs minted under them).
type walletMint struct {
	mintURL         string
	activeKeyset    crypto.WalletKeyset
	inactiveKeysets map[string]crypto.WalletKeyset
}

type Wallet struct {
	db        storage.WalletDB
	masterKey *hdkeychain.ExtendedKey
	mnemonic  string
	unit      cashu.Unit

	mints       map[string]walletMint
	defaultMint string
}

func InitStorage(path string) (storage.WalletDB, error) {
	return storage.InitBolt(path)
}

// LoadWallet opens (or initializes) the wallet database at config.WalletPath
// and makes sure config.CurrentMintURL's active and inactive keysets are
// known locally, fetching them from the mint on first use.
func LoadWallet(config Config) (*Wallet, error) {
	db, err := InitStorage(config.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("InitStorage: %v", err)
	}

	unit := cashu.Sat
	if config.Unit != "" {
		unit, err = cashu.UnitFromString(config.Unit)
		if err != nil {
			return nil, fmt.Errorf("invalid unit: %v", err)
		}
	}

	mnemonic := db.GetMnemonic()
	if mnemonic == "" {
		entropy, err := bip39.NewEntropy(128)
		if err != nil {
			return nil, err
		}
		mnemonic, err = bip39.NewMnemonic(entropy)
		if err != nil {
			return nil, err
		}
		db.SaveMnemonicSeed(mnemonic, bip39.NewSeed(mnemonic, ""))
	}

	seed := bip39.NewSeed(mnemonic, "")
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	wallet := &Wallet{
		db:          db,
		masterKey:   masterKey,
		mnemonic:    mnemonic,
		unit:        unit,
		mints:       make(map[string]walletMint),
		defaultMint: config.CurrentMintURL,
	}

	for mintURL, keysets := range db.GetKeysets() {
		mint := walletMint{mintURL: mintURL, inactiveKeysets: make(map[string]crypto.WalletKeyset)}
		for _, keyset := range keysets {
			if keyset.Active {
				mint.activeKeyset = keyset
			} else {
				mint.inactiveKeysets[keyset.Id] = keyset
			}
		}
		wallet.mints[mintURL] = mint
	}

	if config.CurrentMintURL != "" {
		if _, err := wallet.getActiveKeyset(config.CurrentMintURL); err != nil {
			return nil, fmt.Errorf("error getting active keyset from mint: %v", err)
		}
		if _, ok := wallet.mints[config.CurrentMintURL].inactiveKeysets[""]; !ok {
			inactive, err := GetMintInactiveKeysets(config.CurrentMintURL, unit)
			if err != nil {
				return nil, fmt.Errorf("error getting inactive keysets from mint: %v", err)
			}
			mint := wallet.mints[config.CurrentMintURL]
			for id, keyset := range inactive {
				if _, known := mint.inactiveKeysets[id]; !known {
					mint.inactiveKeysets[id] = keyset
					if err := db.SaveKeyset(&keyset); err != nil {
						return nil, err
					}
				}
			}
			wallet.mints[config.CurrentMintURL] = mint
		}
	}

	return wallet, nil
}

func (w *Wallet) GetBalance() uint64 {
	return w.db.GetProofs().Amount()
}

// GetBalanceByMints breaks the wallet's balance down by the mint each
// proof's keyset belongs to.
func (w *Wallet) GetBalanceByMints() map[string]uint64 {
	balances := make(map[string]uint64, len(w.mints))
	for mintURL := range w.mints {
		balances[mintURL] = 0
	}

	for _, proof := range w.db.GetProofs() {
		keyset := w.db.GetKeyset(proof.Id)
		if keyset == nil {
			continue
		}
		balances[keyset.MintURL] += proof.Amount
	}
	return balances
}

// TrustedMints lists every mint this wallet has a keyset for.
func (w *Wallet) TrustedMints() []string {
	mints := make([]string, 0, len(w.mints))
	for mintURL := range w.mints {
		mints = append(mints, mintURL)
	}
	return mints
}

func (w *Wallet) CurrentMint() string {
	return w.defaultMint
}

func (w *Wallet) Mnemonic() string {
	return w.mnemonic
}

// GetReceivePubkey returns the public key ecash can be locked to (P2PK)
// such that only this wallet can unlock it.
func (w *Wallet) GetReceivePubkey() (*secp256k1.PublicKey, error) {
	privateKey, err := DeriveP2PK(w.masterKey)
	if err != nil {
		return nil, err
	}
	return privateKey.PubKey(), nil
}

// RequestMint requests a mint quote for amount, locking it (NUT-20) to a
// freshly generated wallet-held key so only this wallet can redeem it.
func (w *Wallet) RequestMint(amount uint64) (*nut04.PostMintQuoteBolt11Response, error) {
	privateKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	request := nut04.PostMintQuoteBolt11Request{
		Amount: amount,
		Unit:   w.unit.String(),
		Pubkey: hex.EncodeToString(privateKey.PubKey().SerializeCompressed()),
	}
	response, err := PostMintQuoteBolt11(w.defaultMint, request)
	if err != nil {
		return nil, err
	}

	quote := storage.MintQuote{
		QuoteId:        response.Quote,
		Mint:           w.defaultMint,
		Method:         cashu.BOLT11_METHOD,
		State:          response.State,
		Unit:           w.unit.String(),
		PaymentRequest: response.Request,
		Amount:         amount,
		QuoteExpiry:    uint64(response.Expiry),
		PrivateKey:     privateKey,
	}
	if err := w.db.SaveMintQuote(quote); err != nil {
		return nil, fmt.Errorf("error saving mint quote: %v", err)
	}

	return response, nil
}

func (w *Wallet) MintQuoteState(quoteId string) (*nut04.PostMintQuoteBolt11Response, error) {
	quote := w.db.GetMintQuoteById(quoteId)
	if quote == nil {
		return nil, errors.New("mint quote not found")
	}
	return GetMintQuoteState(quote.Mint, quoteId)
}

// MintTokens redeems a paid mint quote for new proofs.
func (w *Wallet) MintTokens(quoteId string) (cashu.Proofs, error) {
	quote := w.db.GetMintQuoteById(quoteId)
	if quote == nil {
		return nil, errors.New("mint quote not found")
	}

	state, err := GetMintQuoteState(quote.Mint, quoteId)
	if err != nil {
		return nil, err
	}
	if state.State == nut04.Unpaid {
		return nil, errors.New("mint quote has not been paid yet")
	}

	activeKeyset, err := w.getActiveKeyset(quote.Mint)
	if err != nil {
		return nil, err
	}

	startCounter := w.db.GetKeysetCounter(activeKeyset.Id)
	counter := startCounter
	blindedMessages, secrets, rs, err := w.createBlindedMessages(cashu.AmountSplit(quote.Amount), *activeKeyset, &counter)
	if err != nil {
		return nil, err
	}

	mgr := w.sagaManager()
	sagaData := mintSagaData{KeysetId: activeKeyset.Id, Counter: startCounter, Count: uint32(len(blindedMessages))}
	issueSaga, err := mgr.Start(saga.KindMint, saga.MintSecretsPrepared, quote.Amount, quote.Mint, quote.Unit, quoteId, sagaData)
	if err != nil {
		return nil, err
	}
	if err := mgr.Advance(issueSaga, saga.MintRequested, sagaData, saga.ReleaseMintQuote{OperationId: quoteId}); err != nil {
		return nil, err
	}

	mintRequest := nut04.PostMintBolt11Request{Quote: quoteId, Outputs: blindedMessages}
	if quote.PrivateKey != nil {
		signature, err := nut20.SignMintQuote(quote.PrivateKey, quoteId, blindedMessages)
		if err != nil {
			return nil, err
		}
		mintRequest.Signature = hex.EncodeToString(signature.Serialize())
	}

	mintResponse, err := PostMintBolt11(quote.Mint, mintRequest)
	if err != nil {
		// the request may or may not have reached the mint; the saga is
		// left in MintRequested for Recover to resolve via restore,
		// instead of compensating here and risking a live quote going
		// unclaimed.
		return nil, err
	}

	proofs, err := constructProofs(mintResponse.Signatures, blindedMessages, secrets, rs, activeKeyset)
	if err != nil {
		return nil, fmt.Errorf("error constructing proofs: %v", err)
	}

	if err := w.db.SaveProofs(proofs); err != nil {
		return nil, err
	}
	if err := w.db.IncrementKeysetCounter(activeKeyset.Id, uint32(len(blindedMessages))); err != nil {
		return nil, err
	}
	mgr.Finish(issueSaga)

	return proofs, nil
}

// Send selects proofs worth amount (swapping for exact change against
// the default mint if necessary) and wraps them into a V4 token.
func (w *Wallet) Send(amount uint64, includeDLEQ bool) (cashu.Token, error) {
	mgr := w.sagaManager()
	sendSaga, err := mgr.Start(saga.KindSend, saga.SendProofsReserved, amount, w.defaultMint, w.unit.String(), "", nil)
	if err != nil {
		return nil, err
	}

	proofsToSend, err := w.getProofsForAmount(w.defaultMint, amount)
	if err != nil {
		mgr.Finish(sendSaga)
		return nil, err
	}

	if err := mgr.Advance(sendSaga, saga.SendTokenCreated, nil, nil); err != nil {
		return nil, err
	}

	token, err := cashu.NewTokenV4(proofsToSend, w.defaultMint, w.unit, includeDLEQ)
	if err != nil {
		mgr.Finish(sendSaga)
		return nil, err
	}
	mgr.Finish(sendSaga)
	return &token, nil
}

// Receive swaps every proof in a token for fresh ones under this wallet's
// own keyset counter, so the sender can no longer double-spend against it.
func (w *Wallet) Receive(tokenString string) (uint64, error) {
	token, err := cashu.DecodeToken(tokenString)
	if err != nil {
		return 0, err
	}

	mintURL := token.Mint()
	activeKeyset, err := w.getActiveKeyset(mintURL)
	if err != nil {
		return 0, err
	}

	proofs := token.Proofs()
	if err := w.db.AddPendingProofs(proofs); err != nil {
		return 0, err
	}

	mgr := w.sagaManager()
	receiveSaga, err := mgr.Start(saga.KindReceive, saga.ReceiveProofsPending, proofs.Amount(), mintURL, w.unit.String(), "", nil)
	if err != nil {
		return 0, err
	}

	counter := w.db.GetKeysetCounter(activeKeyset.Id)
	outputs, secrets, rs, err := w.createBlindedMessages(cashu.AmountSplit(proofs.Amount()), *activeKeyset, &counter)
	if err != nil {
		return 0, err
	}

	inputYs := proofYs(proofs)
	sagaData := swapSagaData{KeysetId: activeKeyset.Id, InputYs: inputYs, Outputs: outputs, Secrets: secrets, Rs: encodeRs(rs)}
	if err := mgr.Advance(receiveSaga, saga.ReceiveSwapRequested, sagaData,
		saga.RevertProofReservation{ProofYs: inputYs, SagaId: receiveSaga.Id}); err != nil {
		return 0, err
	}

	swapRequest := nut03.PostSwapRequest{Inputs: proofs, Outputs: outputs}
	swapResponse, err := PostSwap(mintURL, swapRequest)
	if err != nil {
		// the swap may or may not have landed; left in SwapRequested for
		// Recover to resolve via restore rather than reverting here.
		return 0, err
	}

	newProofs, err := constructProofs(swapResponse.Signatures, outputs, secrets, rs, activeKeyset)
	if err != nil {
		return 0, err
	}

	if err := w.db.SaveProofs(newProofs); err != nil {
		return 0, err
	}
	if err := w.db.IncrementKeysetCounter(activeKeyset.Id, uint32(len(outputs))); err != nil {
		return 0, err
	}
	w.db.DeletePendingProofs(inputYs)
	mgr.Finish(receiveSaga)

	return newProofs.Amount(), nil
}

// RequestMeltQuote asks the mint for a quote to pay invoice out of this
// wallet's balance.
func (w *Wallet) RequestMeltQuote(invoice string) (*nut05.PostMeltQuoteBolt11Response, error) {
	request := nut05.PostMeltQuoteBolt11Request{Request: invoice, Unit: w.unit.String()}
	response, err := PostMeltQuoteBolt11(w.defaultMint, request)
	if err != nil {
		return nil, err
	}

	quote := storage.MeltQuote{
		QuoteId:        response.Quote,
		Mint:           w.defaultMint,
		Method:         cashu.BOLT11_METHOD,
		State:          response.State,
		Unit:           w.unit.String(),
		PaymentRequest: invoice,
		Amount:         response.Amount,
		FeeReserve:     response.FeeReserve,
		QuoteExpiry:    uint64(response.Expiry),
	}
	if err := w.db.SaveMeltQuote(quote); err != nil {
		return nil, fmt.Errorf("error saving melt quote: %v", err)
	}

	return response, nil
}

// MeltTokens pays a melt quote, marking the proofs it spends as pending
// until the mint confirms settlement and reclaiming any overpaid fee
// reserve as new proofs from the mint's NUT-08 change outputs.
func (w *Wallet) MeltTokens(quoteId string) (*nut05.PostMeltBolt11Response, error) {
	quote := w.db.GetMeltQuoteById(quoteId)
	if quote == nil {
		return nil, errors.New("melt quote not found")
	}

	amountNeeded := quote.Amount + quote.FeeReserve
	proofs, err := w.getProofsForAmount(quote.Mint, amountNeeded)
	if err != nil {
		return nil, err
	}
	if err := w.db.AddPendingProofsByQuoteId(proofs, quoteId); err != nil {
		return nil, err
	}

	mgr := w.sagaManager()
	comp := compensator{wallet: w}
	meltSaga, err := mgr.Start(saga.KindMelt, saga.MeltProofsReserved, amountNeeded, quote.Mint, quote.Unit, quoteId, nil)
	if err != nil {
		w.db.DeletePendingProofsByQuoteId(quoteId)
		return nil, err
	}
	revert := saga.RevertProofReservation{ProofYs: proofYs(proofs), SagaId: meltSaga.Id}
	if err := mgr.Advance(meltSaga, saga.MeltRequested, nil, revert); err != nil {
		w.db.DeletePendingProofsByQuoteId(quoteId)
		return nil, err
	}

	activeKeyset, err := w.getActiveKeyset(quote.Mint)
	if err != nil {
		return nil, err
	}
	counter := w.db.GetKeysetCounter(activeKeyset.Id)
	changeOutputs, changeSecrets, changeRs, err := w.createBlindedMessages(
		cashu.AmountSplit(quote.FeeReserve), *activeKeyset, &counter)
	if err != nil {
		return nil, err
	}

	meltRequest := nut05.PostMeltBolt11Request{Quote: quoteId, Inputs: proofs, Outputs: changeOutputs}
	meltResponse, err := PostMeltBolt11(quote.Mint, meltRequest)
	if err != nil {
		// the payment may or may not have gone out; the saga is left in
		// MeltRequested for Recover to resolve by polling quote state,
		// instead of reverting here and risking a double-spend if the
		// backend actually paid.
		return nil, err
	}

	switch meltResponse.State {
	case nut05.Paid:
		// proofs spent on the melt never lived in the main proofs
		// bucket — getProofsForAmount already removed or never
		// persisted them, only staging them as pending by quote id.
		w.db.DeletePendingProofsByQuoteId(quoteId)
		mgr.Finish(meltSaga)
	case nut05.Pending:
		mgr.Advance(meltSaga, saga.MeltPaymentPending, nil, nil)
	default:
		mgr.Abort(meltSaga, comp)
	}

	if len(meltResponse.Change) > 0 {
		change, err := constructProofs(meltResponse.Change, changeOutputs, changeSecrets, changeRs, activeKeyset)
		if err == nil {
			w.db.SaveProofs(change)
			w.db.IncrementKeysetCounter(activeKeyset.Id, uint32(len(changeOutputs)))
		}
	}

	return meltResponse, nil
}

// getProofsForAmount selects stored proofs worth at least amount,
// preferring proofs from inactive keysets first, and swaps them for a
// proof set summing to exactly amount plus a returned-to-wallet change
// proof for the remainder.
func (w *Wallet) getProofsForAmount(mintURL string, amount uint64) (cashu.Proofs, error) {
	if w.GetBalance() < amount {
		return nil, errors.New("not enough funds")
	}

	mint, ok := w.mints[mintURL]
	if !ok {
		return nil, fmt.Errorf("unknown mint '%v'", mintURL)
	}

	allProofs := w.db.GetProofs()
	var inactive, active cashu.Proofs
	for _, proof := range allProofs {
		if _, isInactive := mint.inactiveKeysets[proof.Id]; isInactive {
			inactive = append(inactive, proof)
		} else if proof.Id == mint.activeKeyset.Id {
			active = append(active, proof)
		}
	}

	var selected cashu.Proofs
	var selectedAmount uint64
	selectFrom := func(proofs cashu.Proofs) {
		for _, proof := range proofs {
			if selectedAmount >= amount {
				return
			}
			selected = append(selected, proof)
			selectedAmount += proof.Amount
		}
	}
	selectFrom(inactive)
	selectFrom(active)

	if selectedAmount < amount {
		return nil, errors.New("not enough funds")
	}
	if selectedAmount == amount {
		for _, proof := range selected {
			w.db.DeleteProof(proof.Secret)
		}
		return selected, nil
	}

	activeKeyset, err := w.getActiveKeyset(mintURL)
	if err != nil {
		return nil, err
	}

	change := selectedAmount - amount
	counter := w.db.GetKeysetCounter(activeKeyset.Id)
	sendOutputs, sendSecrets, sendRs, err := w.createBlindedMessages(cashu.AmountSplit(amount), *activeKeyset, &counter)
	if err != nil {
		return nil, err
	}
	changeOutputs, changeSecrets, changeRs, err := w.createBlindedMessages(cashu.AmountSplit(change), *activeKeyset, &counter)
	if err != nil {
		return nil, err
	}

	// outputs are submitted send-first, change-second; the mint signs
	// positionally (signBlindedMessages walks the request in order), so
	// the response lines up with this same split without needing to
	// sort by amount and reconstruct it afterward.
	outputs := make(cashu.BlindedMessages, 0, len(sendOutputs)+len(changeOutputs))
	outputs = append(outputs, sendOutputs...)
	outputs = append(outputs, changeOutputs...)
	secrets := append(append([]string{}, sendSecrets...), changeSecrets...)
	rs := append(append([]*secp256k1.PrivateKey{}, sendRs...), changeRs...)

	swapRequest := nut03.PostSwapRequest{Inputs: selected, Outputs: outputs}
	swapResponse, err := PostSwap(mintURL, swapRequest)
	if err != nil {
		return nil, err
	}

	for _, proof := range selected {
		w.db.DeleteProof(proof.Secret)
	}

	newProofs, err := constructProofs(swapResponse.Signatures, outputs, secrets, rs, activeKeyset)
	if err != nil {
		return nil, err
	}
	if err := w.db.IncrementKeysetCounter(activeKeyset.Id, uint32(len(outputs))); err != nil {
		return nil, err
	}

	proofsToSend := newProofs[:len(sendOutputs)]
	changeProofs := newProofs[len(sendOutputs):]

	if err := w.db.SaveProofs(changeProofs); err != nil {
		return nil, err
	}

	return proofsToSend, nil
}

// createBlindedMessages derives amounts.len() deterministic (NUT-13)
// blinded messages against keyset, advancing counter as it goes so the
// same index is never reused.
func (w *Wallet) createBlindedMessages(amounts []uint64, keyset crypto.WalletKeyset, counter *uint32) (
	cashu.BlindedMessages, []string, []*secp256k1.PrivateKey, error) {

	keysetPath, err := nut13.DeriveKeysetPath(w.masterKey, keyset.UnitIndex, keyset.DerivationPathIdx)
	if err != nil {
		return nil, nil, nil, err
	}

	blindedMessages := make(cashu.BlindedMessages, len(amounts))
	secrets := make([]string, len(amounts))
	rs := make([]*secp256k1.PrivateKey, len(amounts))

	for i, amount := range amounts {
		secret, err := nut13.DeriveSecret(keysetPath, *counter)
		if err != nil {
			return nil, nil, nil, err
		}
		blindingFactor, err := nut13.DeriveBlindingFactor(keysetPath, *counter)
		if err != nil {
			return nil, nil, nil, err
		}

		B_, r, err := crypto.BlindMessage([]byte(secret), blindingFactor.Serialize())
		if err != nil {
			return nil, nil, nil, err
		}

		blindedMessages[i] = cashu.NewBlindedMessage(keyset.Id, amount, B_)
		secrets[i] = secret
		rs[i] = r
		*counter++
	}

	return blindedMessages, secrets, rs, nil
}

// constructProofs unblinds a set of mint signatures into spendable
// proofs, carrying forward each signature's DLEQ proof (NUT-12) if
// present so the wallet can later prove authenticity without the mint.
func constructProofs(signatures cashu.BlindedSignatures, blindedMessages cashu.BlindedMessages,
	secrets []string, rs []*secp256k1.PrivateKey, keyset *crypto.WalletKeyset) (cashu.Proofs, error) {

	if len(signatures) != len(secrets) || len(signatures) != len(rs) {
		return nil, errors.New("lengths do not match")
	}

	proofs := make(cashu.Proofs, len(signatures))
	for i, signature := range signatures {
		C_bytes, err := hex.DecodeString(signature.C_)
		if err != nil {
			return nil, err
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, err
		}

		K, ok := keyset.PublicKeys[signature.Amount]
		if !ok {
			return nil, fmt.Errorf("keyset does not have key for amount %v", signature.Amount)
		}

		C := crypto.UnblindSignature(C_, rs[i], K)
		proof := cashu.Proof{
			Amount: signature.Amount,
			Id:     signature.Id,
			Secret: secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}

		if signature.DLEQ != nil && i < len(blindedMessages) {
			proof.DLEQ = &cashu.DLEQProof{
				E: signature.DLEQ.E,
				S: signature.DLEQ.S,
				R: hex.EncodeToString(rs[i].Serialize()),
			}
		}

		proofs[i] = proof
	}

	return proofs, nil
}

// UpdateMintURL migrates every locally known keyset (and the wallet's
// default mint, if it matches) from oldURL to newURL in place.
func (w *Wallet) UpdateMintURL(oldURL, newURL string) error {
	mint, ok := w.mints[oldURL]
	if !ok {
		return fmt.Errorf("mint '%v' is not known to this wallet", oldURL)
	}

	mint.mintURL = newURL
	mint.activeKeyset.MintURL = newURL
	for id, keyset := range mint.inactiveKeysets {
		keyset.MintURL = newURL
		mint.inactiveKeysets[id] = keyset
	}

	delete(w.mints, oldURL)
	w.mints[newURL] = mint

	if w.defaultMint == oldURL {
		w.defaultMint = newURL
	}

	if err := w.db.UpdateKeysetMintURL(oldURL, newURL); err != nil {
		return err
	}

	return nil
}
