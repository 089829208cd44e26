package mint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut04"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/cashu/nuts/nut06"
	"github.com/blindmint/cashu/cashu/nuts/nut07"
	"github.com/blindmint/cashu/cashu/nuts/nut10"
	"github.com/blindmint/cashu/cashu/nuts/nut11"
	"github.com/blindmint/cashu/cashu/nuts/nut20"
	"github.com/blindmint/cashu/crypto"
	"github.com/blindmint/cashu/mint/storage"
	"github.com/blindmint/cashu/mint/storage/sqlite"
	"github.com/blindmint/cashu/paymentbackend"
	"github.com/blindmint/cashu/paymentbackend/bolt11"
)

const (
	QuoteExpiryMins = 10
	BOLT11_METHOD   = "bolt11"
	defaultUnit     = "sat"
)

// Mint is the state machine behind every NUT operation: keyset
// lifecycle, quote issuance and settlement, and proof verification. It
// owns one sqlite-backed storage.MintDB and one paymentbackend.Backend;
// everything else (HTTP transport, CLI) is a thin caller.
type Mint struct {
	db      storage.MintDB
	backend paymentbackend.Backend

	mu sync.RWMutex
	// activeKeysets is keyed by unit: new blinded messages of that unit
	// are signed with whichever keyset is active for it.
	activeKeysets map[string]crypto.MintKeyset
	// keysets is keyed by keyset id: every keyset this mint has ever
	// derived, active or retired, kept so old signatures keep verifying.
	keysets map[string]crypto.MintKeyset
	// keysetActivatedAt tracks when each unit's current active keyset
	// took over, driving Config.Rotation.MaxKeysetAge.
	keysetActivatedAt map[string]time.Time

	master *hdkeychain.ExtendedKey

	mintInfo      nut06.MintInfo
	limits        map[string]UnitLimits
	dualKeysetIDs bool
	rotation      RotationPolicy

	logger *slog.Logger
}

func LoadMint(config Config, backend paymentbackend.Backend) (*Mint, error) {
	if backend == nil {
		return nil, errors.New("invalid payment backend")
	}

	path := config.DBPath
	if len(path) == 0 {
		path = mintPath()
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	logger, err := setupLogger(path, config.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.InitSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("error setting up sqlite: %v", err)
	}

	seed, err := db.GetSeed()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			for {
				seed, err = hdkeychain.GenerateSeed(32)
				if err == nil {
					if err = db.SaveSeed(seed); err != nil {
						return nil, err
					}
					break
				}
			}
		} else {
			return nil, err
		}
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	limits := config.UnitLimits
	if len(limits) == 0 {
		limits = map[string]UnitLimits{defaultUnit: {}}
	}

	mint := &Mint{
		db:                db,
		backend:           backend,
		master:            master,
		activeKeysets:     make(map[string]crypto.MintKeyset),
		keysets:           make(map[string]crypto.MintKeyset),
		keysetActivatedAt: make(map[string]time.Time),
		limits:            limits,
		dualKeysetIDs:     config.DualKeysetIDs,
		rotation:          config.Rotation,
		logger:            logger,
	}

	dbKeysets, err := db.GetKeysets()
	if err != nil {
		return nil, fmt.Errorf("error reading keysets from db: %v", err)
	}
	for _, dbkeyset := range dbKeysets {
		keyset, err := crypto.GenerateKeyset(master, dbkeyset.Unit, dbkeyset.UnitIndex, dbkeyset.DerivationPathIdx, dbkeyset.InputFeePpk)
		if err != nil {
			return nil, err
		}
		keyset.Active = dbkeyset.Active
		keyset.FinalExpiry = dbkeyset.FinalExpiry
		mint.keysets[keyset.Id] = *keyset
		if dbkeyset.Active {
			mint.activeKeysets[dbkeyset.Unit] = *keyset
			mint.keysetActivatedAt[dbkeyset.Unit] = time.Now()
		}
	}

	hexSeed := hex.EncodeToString(seed)
	for unit := range limits {
		if _, ok := mint.activeKeysets[unit]; ok {
			continue
		}
		keyset, err := mint.generateKeyset(unit, 0)
		if err != nil {
			return nil, err
		}
		if err := db.SaveKeyset(dbKeysetOf(unit, true, hexSeed, keyset)); err != nil {
			return nil, fmt.Errorf("error saving new active keyset: %v", err)
		}
		mint.keysets[keyset.Id] = *keyset
		mint.activeKeysets[unit] = *keyset
		mint.keysetActivatedAt[unit] = time.Now()
		logger.Info(fmt.Sprintf("generated active keyset '%v' for unit '%v' with fee %v", keyset.Id, unit, keyset.InputFeePpk))
	}

	mintInfo, err := mint.getMintInfo()
	if err != nil {
		return nil, fmt.Errorf("error building mint info: %v", err)
	}
	mint.mintInfo = *mintInfo

	return mint, nil
}

func (m *Mint) generateKeyset(unit string, rotationIndex uint32) (*crypto.MintKeyset, error) {
	return crypto.GenerateKeyset(m.master, unit, crypto.UnitIndex(unit), rotationIndex, m.rotation.InputFeePpk)
}

func dbKeysetOf(unit string, active bool, hexSeed string, keyset *crypto.MintKeyset) storage.DBKeyset {
	return storage.DBKeyset{
		Id:                keyset.Id,
		Unit:              unit,
		Active:            active,
		Seed:              hexSeed,
		UnitIndex:         keyset.UnitIndex,
		DerivationPathIdx: keyset.DerivationPathIdx,
		InputFeePpk:       keyset.InputFeePpk,
		FinalExpiry:       keyset.FinalExpiry,
	}
}

// RotateKeyset retires the current active keyset for unit and derives a
// fresh one at the next rotation index, keeping the retired keyset
// around (inactive) so its outstanding signatures keep verifying.
func (m *Mint) RotateKeyset(unit string) (crypto.MintKeyset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.activeKeysets[unit]
	nextIdx := uint32(0)
	if ok {
		nextIdx = current.DerivationPathIdx + 1
	}

	keyset, err := m.generateKeyset(unit, nextIdx)
	if err != nil {
		return crypto.MintKeyset{}, err
	}

	seed, err := m.db.GetSeed()
	if err != nil {
		return crypto.MintKeyset{}, err
	}

	if ok {
		current.Active = false
		m.keysets[current.Id] = current
		if err := m.db.UpdateKeysetActive(current.Id, false); err != nil {
			return crypto.MintKeyset{}, fmt.Errorf("error deactivating keyset: %v", err)
		}
	}

	if err := m.db.SaveKeyset(dbKeysetOf(unit, true, hex.EncodeToString(seed), keyset)); err != nil {
		return crypto.MintKeyset{}, fmt.Errorf("error saving rotated keyset: %v", err)
	}

	m.keysets[keyset.Id] = *keyset
	m.activeKeysets[unit] = *keyset
	m.keysetActivatedAt[unit] = time.Now()
	m.logInfof("rotated active keyset for unit '%v' to '%v'", unit, keyset.Id)

	return *keyset, nil
}

// maybeRotateKeyset rotates unit's active keyset if Config.Rotation.MaxKeysetAge
// has elapsed since it was activated. A zero MaxKeysetAge disables
// automatic rotation.
func (m *Mint) maybeRotateKeyset(unit string) {
	if m.rotation.MaxKeysetAge <= 0 {
		return
	}
	m.mu.RLock()
	activatedAt, ok := m.keysetActivatedAt[unit]
	m.mu.RUnlock()
	if !ok || time.Since(activatedAt) < m.rotation.MaxKeysetAge {
		return
	}
	if _, err := m.RotateKeyset(unit); err != nil {
		m.logErrorf("error auto-rotating keyset for unit '%v': %v", unit, err)
	}
}

// mintPath returns the mint's default data directory at
// $HOME/.gonuts/mint, used when Config.DBPath is left empty.
func mintPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(homedir, ".gonuts", "mint")
	if err := os.MkdirAll(path, 0700); err != nil {
		log.Fatal(err)
	}
	return path
}

func setupLogger(mintPath string, level slog.Level) (*slog.Logger, error) {
	replacer := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		if a.Key == slog.TimeKey {
			a.Value = slog.StringValue(time.Now().Truncate(time.Second * 2).Format(time.DateTime))
		}
		return a
	}

	logFile, err := os.OpenFile(filepath.Join(mintPath, "mint.log"), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %v", err)
	}

	logWriter := io.MultiWriter(os.Stdout, logFile)
	return slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: replacer,
	})), nil
}

// logInfof formats the strings with args and preserves the source position
// from where this method is called for the log msg. Otherwise all messages would be logged with
// source line of this log method and not the original caller
func (m *Mint) logInfof(format string, args ...any) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelInfo, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

func (m *Mint) logErrorf(format string, args ...any) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelError, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

func (m *Mint) logDebugf(format string, args ...any) {
	if !m.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelDebug, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

// RequestMintQuote processes a request to mint tokens, returning a mint
// quote tied to an incoming payment request from the backend. Pubkey,
// when non-empty, locks the quote per NUT-20: MintTokens will then
// require a valid signature over its outputs before issuing.
func (m *Mint) RequestMintQuote(ctx context.Context, method string, amount uint64, unit, pubkey string) (storage.MintQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	limits, ok := m.limits[unit]
	if !ok {
		errmsg := fmt.Sprintf("unit '%v' not supported", unit)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.UnitErrCode)
	}
	if limits.MintingSettings.MaxAmount > 0 && amount > limits.MintingSettings.MaxAmount {
		return storage.MintQuote{}, cashu.MintAmountExceededErr
	}
	if limits.MaxBalance > 0 {
		balance, err := m.unitBalance(unit)
		if err != nil {
			errmsg := fmt.Sprintf("could not get mint balance: %v", err)
			return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		if balance+amount > limits.MaxBalance {
			return storage.MintQuote{}, cashu.MintingDisabled
		}
	}

	m.logInfof("requesting incoming payment request from backend for %v %v", amount, unit)
	req, err := m.backend.CreateIncomingPaymentRequest(ctx, unit, paymentbackend.IncomingPaymentOptions{
		Amount: amount,
		Expiry: uint64(time.Now().Add(time.Minute * QuoteExpiryMins).Unix()),
	})
	if err != nil {
		errmsg := fmt.Sprintf("could not create incoming payment request: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		m.logErrorf("error generating random quote id: %v", err)
		return storage.MintQuote{}, cashu.StandardErr
	}

	mintQuote := storage.MintQuote{
		Id:              quoteId,
		Unit:            unit,
		Method:          method,
		Amount:          amount,
		Request:         req.Request,
		RequestLookupId: req.RequestLookupId,
		Pubkey:          pubkey,
		CreatedAt:       uint64(time.Now().Unix()),
		Expiry:          req.Expiry,
	}

	if err := m.db.SaveMintQuote(mintQuote); err != nil {
		errmsg := fmt.Sprintf("error saving mint quote to db: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return mintQuote, nil
}

// GetMintQuoteState returns the state of a mint quote, polling the
// backend for a fresh payment observation when the quote isn't fully
// paid yet.
func (m *Mint) GetMintQuoteState(ctx context.Context, method, quoteId string) (storage.MintQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	mintQuote, err := m.db.GetMintQuote(quoteId)
	if err != nil {
		return storage.MintQuote{}, cashu.QuoteNotExistErr
	}

	if mintQuote.AmountPaid() < mintQuote.Amount {
		if err := m.observeMintQuotePayment(ctx, &mintQuote); err != nil {
			return storage.MintQuote{}, err
		}
	}

	return mintQuote, nil
}

// observeMintQuotePayment asks the backend whether quote's request has
// been paid and, if so, appends a payment observation. Redelivery of
// the same payment is a no-op: storage.AddMintQuotePayment keys on
// payment id.
func (m *Mint) observeMintQuotePayment(ctx context.Context, mintQuote *storage.MintQuote) error {
	m.logDebugf("checking status of payment request '%v'", mintQuote.RequestLookupId)
	state, err := m.backend.CheckIncomingPayment(ctx, mintQuote.RequestLookupId)
	if err != nil {
		errmsg := fmt.Sprintf("error checking incoming payment: %v", err)
		return cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	if state != nut04.Paid && state != nut04.Issued {
		return nil
	}

	paymentId := mintQuote.RequestLookupId
	if mintQuote.HasPaymentId(paymentId) {
		return nil
	}

	m.logInfof("mint quote '%v' with request '%v' was paid", mintQuote.Id, mintQuote.RequestLookupId)
	now := uint64(time.Now().Unix())
	if err := m.db.AddMintQuotePayment(mintQuote.Id, paymentId, mintQuote.Amount, now); err != nil {
		errmsg := fmt.Sprintf("error recording mint quote payment: %v", err)
		return cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	mintQuote.Payments = append(mintQuote.Payments, storage.MintQuotePayment{
		PaymentId: paymentId,
		Amount:    mintQuote.Amount,
		Time:      now,
	})

	return nil
}

// MintTokens verifies the mint quote has been paid and, if a pubkey
// locked it (NUT-20), that signature is valid over outputs, then signs
// blindedMessages and records the issuance.
func (m *Mint) MintTokens(ctx context.Context, method, id string, blindedMessages cashu.BlindedMessages, signature string) (cashu.BlindedSignatures, error) {
	if method != BOLT11_METHOD {
		return nil, cashu.PaymentMethodNotSupportedErr
	}

	mintQuote, err := m.db.GetMintQuote(id)
	if err != nil {
		return nil, cashu.QuoteNotExistErr
	}

	if mintQuote.AmountPaid() < mintQuote.Amount {
		if err := m.observeMintQuotePayment(ctx, &mintQuote); err != nil {
			return nil, err
		}
	}
	if mintQuote.State() == nut04.Unpaid {
		return nil, cashu.MintQuoteRequestNotPaid
	}

	outstanding := mintQuote.AmountPaid() - mintQuote.AmountIssued()
	if outstanding == 0 {
		return nil, cashu.MintQuoteAlreadyIssued
	}

	var blindedMessagesAmount uint64
	B_s := make([]string, len(blindedMessages))
	for i, bm := range blindedMessages {
		if blindedMessagesAmount+bm.Amount < blindedMessagesAmount {
			return nil, cashu.InvalidBlindedMessageAmount
		}
		blindedMessagesAmount += bm.Amount
		B_s[i] = bm.B_
	}
	if blindedMessagesAmount > outstanding {
		return nil, cashu.OutputsOverQuoteAmountErr
	}

	if mintQuote.Pubkey != "" {
		if err := m.verifyMintQuoteSignature(mintQuote, blindedMessages, signature); err != nil {
			return nil, err
		}
	}

	sigs, err := m.db.GetBlindSignatures(B_s)
	if err != nil {
		errmsg := fmt.Sprintf("error getting blind signatures from db: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if len(sigs) > 0 {
		return nil, cashu.BlindedMessageAlreadySigned
	}

	m.logInfof("reserving issuance for mint quote '%v' before signing", mintQuote.Id)
	issuanceRowId, err := m.db.ReserveMintQuoteIssuance(mintQuote.Id, blindedMessagesAmount, uint64(time.Now().Unix()))
	if err != nil {
		if errors.Is(err, storage.ErrQuoteOutstandingExceeded) {
			return nil, cashu.OutputsOverQuoteAmountErr
		}
		errmsg := fmt.Sprintf("error recording mint quote issuance: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		if releaseErr := m.db.RemoveMintQuoteIssuance(issuanceRowId); releaseErr != nil {
			m.logErrorf("error releasing mint quote issuance reservation: %v", releaseErr)
		}
		return nil, err
	}

	return blindedSignatures, nil
}

func (m *Mint) verifyMintQuoteSignature(mintQuote storage.MintQuote, blindedMessages cashu.BlindedMessages, signature string) error {
	if signature == "" {
		return cashu.MintQuoteInvalidSigErr
	}
	pubkeyBytes, err := hex.DecodeString(mintQuote.Pubkey)
	if err != nil {
		return cashu.MintQuoteInvalidSigErr
	}
	pubkey, err := secp256k1.ParsePubKey(pubkeyBytes)
	if err != nil {
		return cashu.MintQuoteInvalidSigErr
	}
	sig, err := nut11.ParseSignature(signature)
	if err != nil {
		return cashu.MintQuoteInvalidSigErr
	}
	if !nut20.VerifyMintQuoteSignature(sig, mintQuote.Id, blindedMessages, pubkey) {
		return cashu.MintQuoteInvalidSigErr
	}
	return nil
}

// Swap processes a request to swap tokens: a set of valid input proofs
// is invalidated and an equal-value (less fees) set of blinded messages
// is signed in its place.
func (m *Mint) Swap(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	var proofsAmount uint64
	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		proofsAmount += proof.Amount

		Y := crypto.HashToCurve([]byte(proof.Secret))
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	var blindedMessagesAmount uint64
	B_s := make([]string, len(blindedMessages))
	for i, bm := range blindedMessages {
		if blindedMessagesAmount+bm.Amount < blindedMessagesAmount {
			return nil, cashu.InvalidBlindedMessageAmount
		}
		blindedMessagesAmount += bm.Amount
		B_s[i] = bm.B_
	}

	fees := m.TransactionFees(proofs)
	if proofsAmount-uint64(fees) < blindedMessagesAmount {
		return nil, cashu.InsufficientProofsAmount
	}

	if err := m.verifyProofs(proofs, Ys); err != nil {
		return nil, err
	}

	sigs, err := m.db.GetBlindSignatures(B_s)
	if err != nil {
		errmsg := fmt.Sprintf("error getting blind signatures from db: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if len(sigs) > 0 {
		return nil, cashu.BlindedMessageAlreadySigned
	}

	if nut11.ProofsSigAll(proofs) {
		m.logDebugf("P2PK locked proofs carry SIG_ALL. Verifying whole-transaction signature")
		if err := nut11.VerifySigAllTransaction(proofs, blindedMessages); err != nil {
			return nil, err
		}
	}

	m.logInfof("verified proofs for swap; staking as pending before signing")
	if err := m.db.AddPendingProofs(proofs, ""); err != nil {
		errmsg := fmt.Sprintf("error staking proofs as pending: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		if releaseErr := m.db.RemovePendingProofs(Ys); releaseErr != nil {
			m.logErrorf("error releasing pending proofs after failed swap: %v", releaseErr)
		}
		return nil, err
	}

	if err := m.db.MarkProofsSpent(Ys); err != nil {
		if releaseErr := m.db.RemovePendingProofs(Ys); releaseErr != nil {
			m.logErrorf("error releasing pending proofs after failed swap: %v", releaseErr)
		}
		errmsg := fmt.Sprintf("error invalidating proofs. Could not save proofs to db: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return blindedSignatures, nil
}

// RequestMeltQuote processes a request to melt tokens: quote a payment
// request with the backend and return a MeltQuote the wallet can fund.
func (m *Mint) RequestMeltQuote(ctx context.Context, method, request, unit string) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}
	limits, ok := m.limits[unit]
	if !ok {
		errmsg := fmt.Sprintf("unit '%v' not supported", unit)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.UnitErrCode)
	}

	decoded, err := bolt11.Decode(request)
	if err != nil {
		errmsg := fmt.Sprintf("invalid invoice: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.MeltQuoteErrCode)
	}
	if decoded.AmountMsat == 0 {
		return storage.MeltQuote{}, cashu.BuildCashuError("invoice has no amount", cashu.MeltQuoteErrCode)
	}
	satAmount := decoded.AmountMsat / 1000

	if limits.MeltingSettings.MaxAmount > 0 && satAmount > limits.MeltingSettings.MaxAmount {
		return storage.MeltQuote{}, cashu.MeltAmountExceededErr
	}

	quote, err := m.backend.GetPaymentQuote(ctx, request, unit, nil)
	if err != nil {
		errmsg := fmt.Sprintf("error getting payment quote from backend: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		m.logErrorf("error generating random quote id: %v", err)
		return storage.MeltQuote{}, cashu.StandardErr
	}
	m.logInfof("got melt quote request for invoice of amount '%v'. Setting fee reserve to %v", satAmount, quote.Fee)

	meltQuote := storage.MeltQuote{
		Id:              quoteId,
		Unit:            unit,
		Method:          method,
		Request:         request,
		RequestLookupId: quote.RequestLookupId,
		Amount:          satAmount,
		FeeReserve:      quote.Fee,
		State:           nut05.Unpaid,
		CreatedAt:       uint64(time.Now().Unix()),
		Expiry:          uint64(time.Now().Add(time.Minute * QuoteExpiryMins).Unix()),
	}

	// if a mint quote exists for the same request, the payment can be
	// settled internally without touching the backend, so no fee applies
	if mintQuote, err := m.db.GetMintQuoteByLookupId(decoded.PaymentHash); err == nil {
		m.logDebugf("melt quote request matches mint quote '%v' with same invoice; settling internally, fee reserve set to 0", mintQuote.Id)
		meltQuote.RequestLookupId = mintQuote.RequestLookupId
		meltQuote.FeeReserve = 0
	}

	if err := m.db.SaveMeltQuote(meltQuote); err != nil {
		errmsg := fmt.Sprintf("error saving melt quote to db: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return meltQuote, nil
}

// GetMeltQuoteState returns the state of a melt quote, reconciling with
// the backend when a payment is in flight.
func (m *Mint) GetMeltQuoteState(ctx context.Context, method, quoteId string) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, cashu.QuoteNotExistErr
	}

	if meltQuote.State == nut05.Pending {
		return m.reconcilePendingMelt(ctx, meltQuote)
	}

	return meltQuote, nil
}

// reconcilePendingMelt asks the backend for the outcome of an in-flight
// outgoing payment and moves the quote (and its staked proofs) to a
// terminal state once one is known.
func (m *Mint) reconcilePendingMelt(ctx context.Context, meltQuote storage.MeltQuote) (storage.MeltQuote, error) {
	m.logDebugf("checking outgoing payment status for melt quote '%v'", meltQuote.Id)
	status, err := m.backend.CheckOutgoingPayment(ctx, meltQuote.RequestLookupId)
	if err != nil {
		errmsg := fmt.Sprintf("error checking outgoing payment: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	switch status.State {
	case nut05.Paid:
		m.logInfof("payment for melt quote '%v' succeeded; invalidating proofs", meltQuote.Id)
		if err := m.settleMeltProofs(meltQuote.Id); err != nil {
			return storage.MeltQuote{}, err
		}
		if err := m.db.UpdateMeltQuoteState(meltQuote.Id, nut05.Paid); err != nil {
			errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		if err := m.db.SetMeltQuotePreimage(meltQuote.Id, status.Preimage); err != nil {
			errmsg := fmt.Sprintf("error saving melt preimage: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		meltQuote.State = nut05.Paid
		meltQuote.Preimage = status.Preimage
	case nut05.Failed:
		m.logInfof("payment for melt quote '%v' failed; releasing staked proofs", meltQuote.Id)
		if _, err := m.removePendingProofsForQuote(meltQuote.Id); err != nil {
			errmsg := fmt.Sprintf("error releasing pending proofs: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		if err := m.db.UpdateMeltQuoteState(meltQuote.Id, nut05.Unpaid); err != nil {
			errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		meltQuote.State = nut05.Unpaid
	}
	// nut05.Pending: nothing changed, leave quote and stake in place.

	return meltQuote, nil
}

func (m *Mint) removePendingProofsForQuote(quoteId string) (cashu.Proofs, error) {
	dbproofs, err := m.db.GetPendingProofsByQuote(quoteId)
	if err != nil {
		return nil, err
	}

	proofs := make(cashu.Proofs, len(dbproofs))
	Ys := make([]string, len(dbproofs))
	for i, dbproof := range dbproofs {
		Ys[i] = dbproof.Y
		proofs[i] = cashu.Proof{Amount: dbproof.Amount, Id: dbproof.Id, Secret: dbproof.Secret, C: dbproof.C}
	}

	if err := m.db.RemovePendingProofs(Ys); err != nil {
		return nil, err
	}
	return proofs, nil
}

// settleMeltProofs moves a melt quote's staked proofs from pending into
// the permanently-spent table.
func (m *Mint) settleMeltProofs(quoteId string) error {
	dbproofs, err := m.db.GetPendingProofsByQuote(quoteId)
	if err != nil {
		return cashu.BuildCashuError(fmt.Sprintf("error reading pending proofs: %v", err), cashu.DBErrCode)
	}
	Ys := make([]string, len(dbproofs))
	for i, p := range dbproofs {
		Ys[i] = p.Y
	}
	if err := m.db.MarkProofsSpent(Ys); err != nil {
		return cashu.BuildCashuError(fmt.Sprintf("error marking proofs spent: %v", err), cashu.DBErrCode)
	}
	return nil
}

// MeltTokens verifies proofs provided cover a melt quote's amount and
// fee, stakes them as pending, and attempts payment (internally when a
// matching mint quote shares the same invoice, otherwise via the
// backend).
func (m *Mint) MeltTokens(ctx context.Context, method, quoteId string, proofs cashu.Proofs) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	var proofsAmount uint64
	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		proofsAmount += proof.Amount
		Y := crypto.HashToCurve([]byte(proof.Secret))
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, cashu.QuoteNotExistErr
	}
	switch meltQuote.State {
	case nut05.Paid:
		return storage.MeltQuote{}, cashu.MeltQuoteAlreadyPaid
	case nut05.Pending:
		return storage.MeltQuote{}, cashu.QuotePending
	}

	if err := m.verifyProofs(proofs, Ys); err != nil {
		return storage.MeltQuote{}, err
	}

	fees := m.TransactionFees(proofs)
	if proofsAmount < meltQuote.Amount+meltQuote.FeeReserve+uint64(fees) {
		return storage.MeltQuote{}, cashu.InsufficientProofsAmount
	}
	if nut11.ProofsSigAll(proofs) {
		return storage.MeltQuote{}, nut11.SigAllOnlySwap
	}

	m.logInfof("verified proofs for melt quote '%v'; staking as pending before payment", meltQuote.Id)
	if err := m.db.AddPendingProofs(proofs, meltQuote.Id); err != nil {
		errmsg := fmt.Sprintf("error staking proofs as pending: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if err := m.db.UpdateMeltQuoteState(meltQuote.Id, nut05.Pending); err != nil {
		errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	meltQuote.State = nut05.Pending

	// settle internally if a mint quote shares this melt quote's invoice
	if mintQuote, err := m.db.GetMintQuoteByLookupId(meltQuote.RequestLookupId); err == nil {
		m.logDebugf("melt quote '%v' and mint quote '%v' share an invoice; settling internally", meltQuote.Id, mintQuote.Id)
		return m.settleQuoteInternally(meltQuote, mintQuote, Ys, proofs)
	}

	m.logInfof("attempting payment for melt quote '%v'", meltQuote.Id)
	status, err := m.backend.MakePayment(ctx, paymentbackend.PaymentQuote{
		Amount:          meltQuote.Amount,
		Fee:             meltQuote.FeeReserve,
		RequestLookupId: meltQuote.RequestLookupId,
	}, 0, meltQuote.FeeReserve)
	if err != nil {
		errmsg := fmt.Sprintf("error making payment: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	switch status.State {
	case nut05.Paid:
		m.logInfof("successfully paid invoice for melt quote '%v'", meltQuote.Id)
		if err := m.settleMeltProofs(meltQuote.Id); err != nil {
			return storage.MeltQuote{}, err
		}
		if err := m.db.UpdateMeltQuoteState(meltQuote.Id, nut05.Paid); err != nil {
			errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		if err := m.db.SetMeltQuotePreimage(meltQuote.Id, status.Preimage); err != nil {
			errmsg := fmt.Sprintf("error saving melt preimage: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		meltQuote.State = nut05.Paid
		meltQuote.Preimage = status.Preimage

	case nut05.Failed:
		m.logInfof("payment for melt quote '%v' failed; releasing staked proofs", meltQuote.Id)
		if err := m.db.RemovePendingProofs(Ys); err != nil {
			errmsg := fmt.Sprintf("error releasing pending proofs: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		if err := m.db.UpdateMeltQuoteState(meltQuote.Id, nut05.Unpaid); err != nil {
			errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		meltQuote.State = nut05.Unpaid

	default: // nut05.Pending
		m.logInfof("payment for melt quote '%v' is pending", meltQuote.Id)
	}

	return meltQuote, nil
}

// settleQuoteInternally pairs a melt quote with a mint quote sharing
// the same invoice: the mint quote is marked paid and the melt quote's
// staked proofs move straight to spent, with no backend round trip.
func (m *Mint) settleQuoteInternally(meltQuote storage.MeltQuote, mintQuote storage.MintQuote, Ys []string, proofs cashu.Proofs) (storage.MeltQuote, error) {
	now := uint64(time.Now().Unix())
	paymentId := "internal:" + meltQuote.Id
	if !mintQuote.HasPaymentId(paymentId) {
		if err := m.db.AddMintQuotePayment(mintQuote.Id, paymentId, meltQuote.Amount, now); err != nil {
			errmsg := fmt.Sprintf("error recording internal settlement: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
	}

	if err := m.db.RemovePendingProofs(Ys); err != nil {
		errmsg := fmt.Sprintf("error removing pending proofs: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if err := m.db.SaveProofs(proofs); err != nil {
		errmsg := fmt.Sprintf("error invalidating proofs: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	const internalPreimage = "0000000000000000000000000000000000000000000000000000000000000000"
	if err := m.db.UpdateMeltQuoteState(meltQuote.Id, nut05.Paid); err != nil {
		errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if err := m.db.SetMeltQuotePreimage(meltQuote.Id, internalPreimage); err != nil {
		errmsg := fmt.Sprintf("error saving melt preimage: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	meltQuote.State = nut05.Paid
	meltQuote.Preimage = internalPreimage

	return meltQuote, nil
}

// ProofsStateCheck reports the current nullifier state of each Y: Spent
// if it has been redeemed, Pending if staked for an in-flight swap or
// melt, Unspent otherwise.
func (m *Mint) ProofsStateCheck(Ys []string) ([]nut07.ProofState, error) {
	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get used proofs from db: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	pendingProofs, err := m.db.GetPendingProofs(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get pending proofs from db: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	proofStates := make([]nut07.ProofState, len(Ys))
	for i, y := range Ys {
		state := nut07.Unspent
		witness := ""

		if slices.ContainsFunc(usedProofs, func(proof storage.DBProof) bool { return proof.Y == y }) {
			state = nut07.Spent
		} else if idx := slices.IndexFunc(pendingProofs, func(proof storage.DBProof) bool { return proof.Y == y }); idx != -1 {
			state = pendingProofs[idx].State
			witness = pendingProofs[idx].Witness
		}

		proofStates[i] = nut07.ProofState{Y: y, State: state, Witness: witness}
	}

	return proofStates, nil
}

// RestoreSignatures returns the previously issued blind signature for
// each blinded message the mint recognizes, letting a wallet rebuild
// its proofs after losing local state (NUT-09).
func (m *Mint) RestoreSignatures(blindedMessages cashu.BlindedMessages) (cashu.BlindedMessages, cashu.BlindedSignatures, error) {
	outputs := make(cashu.BlindedMessages, 0, len(blindedMessages))
	signatures := make(cashu.BlindedSignatures, 0, len(blindedMessages))

	for _, bm := range blindedMessages {
		sig, err := m.db.GetBlindSignature(bm.B_)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		} else if err != nil {
			errmsg := fmt.Sprintf("could not get signature from db: %v", err)
			return nil, nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		outputs = append(outputs, bm)
		signatures = append(signatures, sig)
	}

	return outputs, signatures, nil
}

func (m *Mint) verifyProofs(proofs cashu.Proofs, Ys []string) error {
	if len(proofs) == 0 {
		return cashu.NoProofsProvided
	}

	pendingProofs, err := m.db.GetPendingProofs(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get pending proofs from db: %v", err)
		return cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if len(pendingProofs) != 0 {
		return cashu.ProofPendingErr
	}

	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get used proofs from db: %v", err)
		return cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if len(usedProofs) != 0 {
		return cashu.ProofAlreadyUsedErr
	}

	if cashu.CheckDuplicateProofs(proofs) {
		return cashu.DuplicateProofs
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, proof := range proofs {
		keyset, ok := m.keysets[proof.Id]
		if !ok {
			return cashu.UnknownKeysetErr
		}
		key, ok := keyset.Keys[proof.Amount]
		if !ok {
			return cashu.InvalidProofErr
		}

		if nut11.IsSecretP2PK(proof) {
			m.logDebugf("verifying P2PK locked proof")
			if err := verifyP2PKLockedProof(proof); err != nil {
				return err
			}
		}

		Cbytes, err := hex.DecodeString(proof.C)
		if err != nil {
			errmsg := fmt.Sprintf("invalid C: %v", err)
			return cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
		}
		C, err := secp256k1.ParsePubKey(Cbytes)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		if !crypto.Verify([]byte(proof.Secret), key.PrivateKey, C) {
			return cashu.InvalidProofErr
		}
	}
	return nil
}

// verifyP2PKLockedProof checks a single input's witness against its own
// P2PK (or HTLC, layered on the same tags) spending condition. SIG_ALL
// inputs are verified once, transaction-wide, by VerifySigAllTransaction
// instead.
func verifyP2PKLockedProof(proof cashu.Proof) error {
	secret, err := nut10.DeserializeSecret(proof.Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}
	if nut11.IsSigAll(secret) {
		return nil
	}

	var witness nut11.P2PKWitness
	if err := json.Unmarshal([]byte(proof.Witness), &witness); err != nil {
		witness.Signatures = nil
	}

	tags, err := nut11.ParseP2PKTags(secret.Tags)
	if err != nil {
		return err
	}

	hash := sha256.Sum256([]byte(proof.Secret))

	if tags.Locktime > 0 && time.Now().Unix() > tags.Locktime {
		if len(tags.Refund) == 0 {
			return nil
		}
		if len(witness.Signatures) < 1 {
			return nut11.InvalidWitness
		}
		if !nut11.HasValidSignatures(hash[:], witness.Signatures, 1, tags.Refund) {
			return nut11.NotEnoughSignaturesErr
		}
		return nil
	}

	keys, signaturesRequired, err := nut11.SpendingKeys(secret)
	if err != nil {
		return err
	}
	if len(witness.Signatures) < 1 {
		return nut11.InvalidWitness
	}
	if !nut11.HasValidSignatures(hash[:], witness.Signatures, signaturesRequired, keys) {
		return nut11.NotEnoughSignaturesErr
	}
	return nil
}

// signBlindedMessages signs blindedMessages with the active keyset for
// each message's id and records the resulting signatures.
func (m *Mint) signBlindedMessages(blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	blindedSignatures := make(cashu.BlindedSignatures, len(blindedMessages))
	B_s := make([]string, len(blindedMessages))

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, msg := range blindedMessages {
		keyset, ok := m.keysets[msg.Id]
		if !ok {
			return nil, cashu.UnknownKeysetErr
		}
		if !keyset.Active {
			return nil, cashu.InactiveKeysetSignatureRequest
		}
		key, ok := keyset.Keys[msg.Amount]
		if !ok {
			return nil, cashu.InvalidBlindedMessageAmount
		}

		B_bytes, err := hex.DecodeString(msg.B_)
		if err != nil {
			errmsg := fmt.Sprintf("invalid B_: %v", err)
			return nil, cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
		}
		B_, err := btcec.ParsePubKey(B_bytes)
		if err != nil {
			return nil, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		C_ := crypto.SignBlindedMessage(B_, key.PrivateKey)
		e, s, err := crypto.GenerateDLEQ(key.PrivateKey, B_, C_)
		if err != nil {
			errmsg := fmt.Sprintf("error generating DLEQ proof: %v", err)
			return nil, cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
		}

		blindedSignatures[i] = cashu.BlindedSignature{
			Amount: msg.Amount,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
			Id:     keyset.Id,
			DLEQ: &cashu.DLEQProof{
				E: hex.EncodeToString(e.Serialize()),
				S: hex.EncodeToString(s.Serialize()),
			},
		}
		B_s[i] = msg.B_
	}

	if err := m.db.SaveBlindSignatures(B_s, blindedSignatures); err != nil {
		errmsg := fmt.Sprintf("error saving blind signatures: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return blindedSignatures, nil
}

// TransactionFees sums each input's keyset fee (in parts-per-thousand)
// and rounds up to the nearest whole satoshi, per NUT-05's fee formula.
func (m *Mint) TransactionFees(inputs cashu.Proofs) uint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fees uint
	for _, proof := range inputs {
		fees += m.keysets[proof.Id].InputFeePpk
	}
	return (fees + 999) / 1000
}

// GetActiveKeyset returns the active keyset for unit, or false if unit
// isn't one this mint serves.
func (m *Mint) GetActiveKeyset(unit string) (crypto.MintKeyset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keyset, ok := m.activeKeysets[unit]
	return keyset, ok
}

// ActiveKeysets returns every unit's current active keyset.
func (m *Mint) ActiveKeysets() map[string]crypto.MintKeyset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]crypto.MintKeyset, len(m.activeKeysets))
	for unit, keyset := range m.activeKeysets {
		out[unit] = keyset
	}
	return out
}

// Keysets returns every keyset this mint has ever derived, active or
// retired.
func (m *Mint) Keysets() map[string]crypto.MintKeyset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]crypto.MintKeyset, len(m.keysets))
	for id, keyset := range m.keysets {
		out[id] = keyset
	}
	return out
}

// DualKeysetIDs reports whether /v1/keys should expose both the legacy
// V1 keyset id and the NUT-02 v2 id alongside it.
func (m *Mint) DualKeysetIDs() bool {
	return m.dualKeysetIDs
}

func (m *Mint) unitBalance(unit string) (uint64, error) {
	issued, err := m.db.GetIssuedEcash()
	if err != nil {
		return 0, err
	}
	redeemed, err := m.db.GetRedeemedEcash()
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var balance uint64
	for id, amount := range issued {
		if m.keysets[id].Unit == unit {
			balance += amount
		}
	}
	for id, amount := range redeemed {
		if m.keysets[id].Unit != unit {
			continue
		}
		if amount >= balance {
			balance = 0
		} else {
			balance -= amount
		}
	}
	return balance, nil
}

// RetrieveMintInfo returns the mint's NUT-06 info. Once any unit with a
// balance limit has reached it, NUT-04 minting is marked disabled for the
// whole mint; nothing here marks it enabled again.
func (m *Mint) RetrieveMintInfo() (nut06.MintInfo, error) {
	for unit, limits := range m.limits {
		if limits.MaxBalance == 0 {
			continue
		}
		balance, err := m.unitBalance(unit)
		if err != nil {
			errmsg := fmt.Sprintf("error getting mint balance: %v", err)
			return nut06.MintInfo{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		if balance >= limits.MaxBalance {
			if setting, ok := m.mintInfo.Nuts[4].(nut06.NutSetting); ok {
				setting.Disabled = true
				m.mintInfo.Nuts[4] = setting
			}
		}
	}

	return m.mintInfo, nil
}
