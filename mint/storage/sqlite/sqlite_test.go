package sqlite

import (
	"encoding/hex"
	"log"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut04"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/cashu/nuts/nut07"
	"github.com/blindmint/cashu/crypto"
	"github.com/blindmint/cashu/mint/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var db *SQLiteDB

func TestMain(m *testing.M) {
	code, err := testMain(m)
	if err != nil {
		log.Println(err)
	}
	os.Exit(code)
}

func testMain(m *testing.M) (int, error) {
	dbpath := "./testsqlite"
	err := os.MkdirAll(dbpath, 0750)
	if err != nil {
		return 1, err
	}

	db, err = InitSQLite(dbpath)
	if err != nil {
		return 1, err
	}
	defer os.RemoveAll(dbpath)

	return m.Run(), nil
}

func TestProofs(t *testing.T) {
	proofs := generateRandomProofs(50)

	require.NoError(t, db.SaveProofs(proofs))

	Ys := make([]string, 20)
	expectedProofs := make([]storage.DBProof, 20)
	for i := 0; i < 20; i++ {
		Y := crypto.HashToCurve([]byte(proofs[i].Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())
		Ys[i] = Yhex
		expectedProofs[i] = toDBProof(proofs[i], Yhex, nut07.Spent, "")
	}

	dbProofs, err := db.GetProofsUsed(Ys)
	require.NoError(t, err)
	require.Len(t, dbProofs, 20)

	sortDBProofs(expectedProofs)
	sortDBProofs(dbProofs)
	assert.Equal(t, expectedProofs, dbProofs)
}

func TestPendingProofs(t *testing.T) {
	quoteId := "quoteid12345"
	proofs := generateRandomProofs(50)

	require.NoError(t, db.AddPendingProofs(proofs, quoteId))

	Ys := make([]string, 20)
	expectedProofs := make([]storage.DBProof, 20)
	for i := 0; i < 20; i++ {
		Y := crypto.HashToCurve([]byte(proofs[i].Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())
		Ys[i] = Yhex
		expectedProofs[i] = toDBProof(proofs[i], Yhex, nut07.Pending, quoteId)
	}

	pendingProofs, err := db.GetPendingProofs(Ys)
	require.NoError(t, err)
	require.Len(t, pendingProofs, 20)

	sortDBProofs(expectedProofs)
	sortDBProofs(pendingProofs)
	assert.Equal(t, expectedProofs, pendingProofs)

	proofs2 := generateRandomProofs(100)
	require.NoError(t, db.AddPendingProofs(proofs2, "anotherquoteid"))

	expectedByQuote := make([]storage.DBProof, 50)
	for i, proof := range proofs {
		Y := crypto.HashToCurve([]byte(proof.Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())
		expectedByQuote[i] = toDBProof(proof, Yhex, nut07.Pending, quoteId)
	}

	pendingByQuote, err := db.GetPendingProofsByQuote(quoteId)
	require.NoError(t, err)
	require.Len(t, pendingByQuote, 50)

	sortDBProofs(expectedByQuote)
	sortDBProofs(pendingByQuote)
	assert.Equal(t, expectedByQuote, pendingByQuote)

	require.NoError(t, db.SetPendingProofsState(Ys[:5], nut07.Reserved))
	reserved, err := db.GetPendingProofs(Ys[:5])
	require.NoError(t, err)
	for _, p := range reserved {
		assert.Equal(t, nut07.Reserved, p.State)
	}

	require.NoError(t, db.RemovePendingProofs(Ys))
	pendingProofs, err = db.GetPendingProofs(Ys)
	require.NoError(t, err)
	assert.Empty(t, pendingProofs)
}

func TestMarkProofsSpent(t *testing.T) {
	quoteId := "meltquote-spend"
	proofs := generateRandomProofs(10)
	require.NoError(t, db.AddPendingProofs(proofs, quoteId))

	Ys := make([]string, len(proofs))
	for i, p := range proofs {
		Y := crypto.HashToCurve([]byte(p.Secret))
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	require.NoError(t, db.MarkProofsSpent(Ys))

	pending, err := db.GetPendingProofs(Ys)
	require.NoError(t, err)
	assert.Empty(t, pending)

	spent, err := db.GetProofsUsed(Ys)
	require.NoError(t, err)
	assert.Len(t, spent, len(proofs))
}

func TestMintQuotes(t *testing.T) {
	quotes := generateRandomMintQuotes(50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for _, q := range quotes {
		wg.Add(1)
		go func(q storage.MintQuote) {
			defer wg.Done()
			if err := db.SaveMintQuote(q); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(q)
	}
	wg.Wait()
	require.Empty(t, errs)

	target := quotes[10]
	quote, err := db.GetMintQuote(target.Id)
	require.NoError(t, err)
	assert.Equal(t, target.Id, quote.Id)
	assert.Equal(t, nut04.Unpaid, quote.State())

	byLookup, err := db.GetMintQuoteByLookupId(target.RequestLookupId)
	require.NoError(t, err)
	assert.Equal(t, target.Id, byLookup.Id)

	require.NoError(t, db.AddMintQuotePayment(target.Id, "payment-1", 21, uint64(time.Now().Unix())))
	require.NoError(t, db.AddMintQuotePayment(target.Id, "payment-1", 21, uint64(time.Now().Unix())))

	quote, err = db.GetMintQuote(target.Id)
	require.NoError(t, err)
	assert.Equal(t, uint64(21), quote.AmountPaid())
	assert.Equal(t, nut04.Paid, quote.State())

	require.NoError(t, db.AddMintQuoteIssuance(target.Id, 21, uint64(time.Now().Unix())))
	quote, err = db.GetMintQuote(target.Id)
	require.NoError(t, err)
	assert.Equal(t, nut04.Issued, quote.State())
}

func TestMeltQuote(t *testing.T) {
	quotes := generateRandomMeltQuotes(20)

	for _, q := range quotes {
		require.NoError(t, db.SaveMeltQuote(q))
	}

	target := quotes[5]
	quote, err := db.GetMeltQuote(target.Id)
	require.NoError(t, err)
	assert.Equal(t, target.Request, quote.Request)

	byLookup, err := db.GetMeltQuoteByLookupId(target.RequestLookupId)
	require.NoError(t, err)
	require.NotNil(t, byLookup)
	assert.Equal(t, target.Id, byLookup.Id)

	require.NoError(t, db.UpdateMeltQuoteState(target.Id, nut05.Pending))
	quote, err = db.GetMeltQuote(target.Id)
	require.NoError(t, err)
	assert.Equal(t, nut05.Pending, quote.State)

	require.NoError(t, db.SetMeltQuotePreimage(target.Id, "fakepreimage"))
	require.NoError(t, db.UpdateMeltQuoteState(target.Id, nut05.Paid))
	quote, err = db.GetMeltQuote(target.Id)
	require.NoError(t, err)
	assert.Equal(t, nut05.Paid, quote.State)
	assert.Equal(t, "fakepreimage", quote.Preimage)
}

func TestBlindSignatures(t *testing.T) {
	count := 50
	B_s := generateRandomB_s(count)
	sigs := generateBlindSignatures(count)

	require.NoError(t, db.SaveBlindSignatures(B_s, sigs))

	sig, err := db.GetBlindSignature(B_s[21])
	require.NoError(t, err)
	assert.Equal(t, sigs[21].C_, sig.C_)

	sigs2, err := db.GetBlindSignatures(B_s[:20])
	require.NoError(t, err)
	assert.Len(t, sigs2, 20)
}

func generateRandomString(length int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

func generateRandomProofs(num int) cashu.Proofs {
	proofs := make(cashu.Proofs, num)
	for i := 0; i < num; i++ {
		proofs[i] = cashu.Proof{
			Amount: 21,
			Id:     generateRandomString(32),
			Secret: generateRandomString(64),
			C:      generateRandomString(64),
		}
	}
	return proofs
}

func toDBProof(proof cashu.Proof, Y string, state nut07.State, quoteId string) storage.DBProof {
	return storage.DBProof{
		Y:           Y,
		Amount:      proof.Amount,
		Id:          proof.Id,
		Secret:      proof.Secret,
		C:           proof.C,
		State:       state,
		MeltQuoteId: quoteId,
	}
}

func sortDBProofs(proofs []storage.DBProof) {
	slices.SortFunc(proofs, func(a, b storage.DBProof) int {
		return strings.Compare(a.Secret, b.Secret)
	})
}

func generateRandomMintQuotes(num int) []storage.MintQuote {
	quotes := make([]storage.MintQuote, num)
	for i := 0; i < num; i++ {
		quotes[i] = storage.MintQuote{
			Id:              generateRandomString(32),
			Unit:            "sat",
			Method:          "bolt11",
			Amount:          21,
			Request:         generateRandomString(100),
			RequestLookupId: generateRandomString(50),
			CreatedAt:       uint64(time.Now().Unix()),
			Expiry:          uint64(time.Now().Add(time.Hour).Unix()),
		}
	}
	return quotes
}

func generateRandomMeltQuotes(num int) []storage.MeltQuote {
	quotes := make([]storage.MeltQuote, num)
	for i := 0; i < num; i++ {
		quotes[i] = storage.MeltQuote{
			Id:              generateRandomString(32),
			Unit:            "sat",
			Method:          "bolt11",
			Request:         generateRandomString(100),
			RequestLookupId: generateRandomString(50),
			Amount:          21,
			FeeReserve:      1,
			State:           nut05.Unpaid,
			CreatedAt:       uint64(time.Now().Unix()),
			Expiry:          uint64(time.Now().Add(time.Hour).Unix()),
		}
	}
	return quotes
}

func generateRandomB_s(num int) []string {
	B_s := make([]string, num)
	for i := 0; i < num; i++ {
		B_s[i] = generateRandomString(33)
	}
	return B_s
}

func generateBlindSignatures(num int) cashu.BlindedSignatures {
	blindSigs := make(cashu.BlindedSignatures, num)
	for i := 0; i < num; i++ {
		blindSigs[i] = cashu.BlindedSignature{
			C_:     generateRandomString(33),
			Id:     generateRandomString(32),
			Amount: 21,
			DLEQ: &cashu.DLEQProof{
				E: generateRandomString(33),
				S: generateRandomString(33),
			},
		}
	}
	return blindSigs
}
