package mint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut04"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/crypto"
	"github.com/blindmint/cashu/paymentbackend/fake"
)

func testMint(t *testing.T) (*Mint, *fake.Backend) {
	t.Helper()
	backend := fake.New()
	config := Config{
		DBPath:     t.TempDir(),
		UnitLimits: map[string]UnitLimits{"sat": {}},
		LogLevel:   slog.LevelError,
	}
	m, err := LoadMint(config, backend)
	require.NoError(t, err)
	return m, backend
}

// blindOutputs builds a set of blinded messages for amounts against
// keysetId, returning the messages alongside the secrets and blinding
// factors a wallet would keep to unblind the resulting signatures.
func blindOutputs(t *testing.T, keysetId string, amounts []uint64) (cashu.BlindedMessages, []string, []*secp256k1.PrivateKey) {
	t.Helper()
	messages := make(cashu.BlindedMessages, len(amounts))
	secrets := make([]string, len(amounts))
	factors := make([]*secp256k1.PrivateKey, len(amounts))

	for i, amount := range amounts {
		secret := uuid.NewString()
		B_, r, err := crypto.BlindMessage([]byte(secret), nil)
		require.NoError(t, err)

		messages[i] = cashu.NewBlindedMessage(keysetId, amount, B_)
		secrets[i] = secret
		factors[i] = r
	}
	return messages, secrets, factors
}

func unblindToProofs(t *testing.T, keysetId string, secrets []string, factors []*secp256k1.PrivateKey, sigs cashu.BlindedSignatures, mintPubkey *secp256k1.PublicKey) cashu.Proofs {
	t.Helper()
	require.Len(t, sigs, len(secrets))

	proofs := make(cashu.Proofs, len(sigs))
	for i, sig := range sigs {
		C_bytes, err := hex.DecodeString(sig.C_)
		require.NoError(t, err)
		C_, err := secp256k1.ParsePubKey(C_bytes)
		require.NoError(t, err)

		C := crypto.UnblindSignature(C_, factors[i], mintPubkey)
		proofs[i] = cashu.Proof{
			Amount: sig.Amount,
			Id:     keysetId,
			Secret: secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}
	}
	return proofs
}

func TestMintQuoteLifecycle(t *testing.T) {
	m, backend := testMint(t)
	ctx := context.Background()

	quote, err := m.RequestMintQuote(ctx, BOLT11_METHOD, 100, "sat", "")
	require.NoError(t, err)
	require.Equal(t, nut04.Unpaid, quote.State())

	state, err := m.GetMintQuoteState(ctx, BOLT11_METHOD, quote.Id)
	require.NoError(t, err)
	require.Equal(t, nut04.Unpaid, state.State())

	backend.SettleIncoming(quote.RequestLookupId, "payment-1")

	state, err = m.GetMintQuoteState(ctx, BOLT11_METHOD, quote.Id)
	require.NoError(t, err)
	require.Equal(t, nut04.Paid, state.State())
	require.EqualValues(t, 100, state.AmountPaid())

	// redelivering the same payment id must stay idempotent
	backend.SettleIncoming(quote.RequestLookupId, "payment-1")
}

func TestMintTokensAndSwap(t *testing.T) {
	m, backend := testMint(t)
	ctx := context.Background()

	quote, err := m.RequestMintQuote(ctx, BOLT11_METHOD, 8, "sat", "")
	require.NoError(t, err)
	backend.SettleIncoming(quote.RequestLookupId, "payment-1")

	activeKeyset, ok := m.GetActiveKeyset("sat")
	require.True(t, ok)

	messages, secrets, factors := blindOutputs(t, activeKeyset.Id, []uint64{8})
	sigs, err := m.MintTokens(ctx, BOLT11_METHOD, quote.Id, messages, "")
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	// minting again against the same quote must fail: fully issued
	_, err = m.MintTokens(ctx, BOLT11_METHOD, quote.Id, messages, "")
	require.ErrorIs(t, err, cashu.MintQuoteAlreadyIssued)

	mintPubkey := activeKeyset.Keys[8].PublicKey
	proofs := unblindToProofs(t, activeKeyset.Id, secrets, factors, sigs, mintPubkey)

	swapOutputs, _, _ := blindOutputs(t, activeKeyset.Id, cashu.AmountSplit(8))
	swapSigs, err := m.Swap(proofs, swapOutputs)
	require.NoError(t, err)
	require.Equal(t, uint64(8), swapSigs.Amount())

	// the same input proofs cannot be swapped twice
	_, err = m.Swap(proofs, swapOutputs)
	require.ErrorIs(t, err, cashu.ProofAlreadyUsedErr)
}

// TestConcurrentSwapSameInputOnlyOneWins submits two swaps concurrently
// over the same input proof with distinct outputs: exactly one must
// succeed, and the signatures behind the losing request's outputs must
// never have been persisted.
func TestConcurrentSwapSameInputOnlyOneWins(t *testing.T) {
	m, backend := testMint(t)
	ctx := context.Background()

	quote, err := m.RequestMintQuote(ctx, BOLT11_METHOD, 8, "sat", "")
	require.NoError(t, err)
	backend.SettleIncoming(quote.RequestLookupId, "payment-1")

	activeKeyset, ok := m.GetActiveKeyset("sat")
	require.True(t, ok)

	messages, secrets, factors := blindOutputs(t, activeKeyset.Id, []uint64{8})
	sigs, err := m.MintTokens(ctx, BOLT11_METHOD, quote.Id, messages, "")
	require.NoError(t, err)

	mintPubkey := activeKeyset.Keys[8].PublicKey
	proofs := unblindToProofs(t, activeKeyset.Id, secrets, factors, sigs, mintPubkey)

	outputsA, _, _ := blindOutputs(t, activeKeyset.Id, cashu.AmountSplit(8))
	outputsB, _, _ := blindOutputs(t, activeKeyset.Id, cashu.AmountSplit(8))

	var wg sync.WaitGroup
	results := make([]error, 2)
	sigResults := make([]cashu.BlindedSignatures, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sigResults[0], results[0] = m.Swap(proofs, outputsA)
	}()
	go func() {
		defer wg.Done()
		sigResults[1], results[1] = m.Swap(proofs, outputsB)
	}()
	wg.Wait()

	successes := 0
	for i, err := range results {
		if err == nil {
			successes++
			require.NotEmpty(t, sigResults[i])
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent swap over the same input must succeed")

	// the losing request's outputs must never have been signed
	for i, err := range results {
		if err != nil {
			outs := outputsA
			if i == 1 {
				outs = outputsB
			}
			B_s := make([]string, len(outs))
			for j, bm := range outs {
				B_s[j] = bm.B_
			}
			leftoverSigs, err := m.db.GetBlindSignatures(B_s)
			require.NoError(t, err)
			require.Empty(t, leftoverSigs)
		}
	}
}

func TestMeltSettlesInternallyAgainstMatchingMintQuote(t *testing.T) {
	m, backend := testMint(t)
	ctx := context.Background()

	mintQuote, err := m.RequestMintQuote(ctx, BOLT11_METHOD, 21, "sat", "")
	require.NoError(t, err)
	backend.SettleIncoming(mintQuote.RequestLookupId, "payment-1")

	activeKeyset, ok := m.GetActiveKeyset("sat")
	require.True(t, ok)
	messages, secrets, factors := blindOutputs(t, activeKeyset.Id, cashu.AmountSplit(21))
	sigs, err := m.MintTokens(ctx, BOLT11_METHOD, mintQuote.Id, messages, "")
	require.NoError(t, err)

	proofs := make(cashu.Proofs, 0, len(sigs))
	for i, sig := range sigs {
		mintPubkey := activeKeyset.Keys[sig.Amount].PublicKey
		proofs = append(proofs, unblindToProofs(t, activeKeyset.Id, secrets[i:i+1], factors[i:i+1], sigs[i:i+1], mintPubkey)...)
	}

	meltQuote, err := m.RequestMeltQuote(ctx, BOLT11_METHOD, mintQuote.Request, "sat")
	require.NoError(t, err)
	require.EqualValues(t, 0, meltQuote.FeeReserve)

	settled, err := m.MeltTokens(ctx, BOLT11_METHOD, meltQuote.Id, proofs)
	require.NoError(t, err)
	require.Equal(t, nut05.Paid, settled.State)

	ys := make([]string, len(proofs))
	for i, proof := range proofs {
		Y := crypto.HashToCurve([]byte(proof.Secret))
		ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}
	states, err := m.ProofsStateCheck(ys)
	require.NoError(t, err)
	for _, state := range states {
		require.Equal(t, "SPENT", state.State.String())
	}
}

func TestRestoreSignatures(t *testing.T) {
	m, backend := testMint(t)
	ctx := context.Background()

	quote, err := m.RequestMintQuote(ctx, BOLT11_METHOD, 4, "sat", "")
	require.NoError(t, err)
	backend.SettleIncoming(quote.RequestLookupId, "payment-1")

	activeKeyset, ok := m.GetActiveKeyset("sat")
	require.True(t, ok)
	messages, _, _ := blindOutputs(t, activeKeyset.Id, []uint64{4})
	sigs, err := m.MintTokens(ctx, BOLT11_METHOD, quote.Id, messages, "")
	require.NoError(t, err)

	outputs, restored, err := m.RestoreSignatures(messages)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, sigs[0].C_, restored[0].C_)

	unknown := cashu.BlindedMessages{cashu.NewBlindedMessage(activeKeyset.Id, 4, mustRandomPoint(t))}
	outputs, restored, err = m.RestoreSignatures(unknown)
	require.NoError(t, err)
	require.Empty(t, outputs)
	require.Empty(t, restored)
}

func mustRandomPoint(t *testing.T) *secp256k1.PublicKey {
	t.Helper()
	var secret [32]byte
	_, err := rand.Read(secret[:])
	require.NoError(t, err)
	return crypto.HashToCurve(secret[:])
}
