// Package sqlite is the mint's SQLite-backed MintDB adapter: keysets,
// quotes with their payment/issuance logs, and nullifier records, using
// database/sql + mattn/go-sqlite3 with golang-migrate-managed schema.
package sqlite

import (
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut05"
	"github.com/blindmint/cashu/cashu/nuts/nut07"
	"github.com/blindmint/cashu/crypto"
	"github.com/blindmint/cashu/mint/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrations embed.FS

type SQLiteDB struct {
	db *sql.DB
}

// create a temporary directory with the migration files.
// migration files are embedded with go:embed. These are then read
// and copied to a temporary directory.
// This is needed to pass the directory to migrate.New
func migrationsDir() (string, error) {
	tempDir, err := os.MkdirTemp("", "migrations")
	if err != nil {
		return "", err
	}

	migrationFiles, err := migrations.ReadDir("migrations")
	if err != nil {
		return "", err
	}

	for _, file := range migrationFiles {
		filePath := filepath.Join(tempDir, file.Name())

		migrationFilePath := filepath.Join("migrations", file.Name())
		migrationFile, err := migrations.Open(migrationFilePath)
		if err != nil {
			return "", err
		}
		defer migrationFile.Close()

		destFile, err := os.Create(filePath)
		if err != nil {
			return "", err
		}
		defer destFile.Close()

		_, err = io.Copy(destFile, migrationFile)
		if err != nil {
			return "", err
		}
	}

	return tempDir, nil
}

func InitSQLite(path string) (*SQLiteDB, error) {
	dbpath := filepath.Join(path, "mint.sqlite.db")
	db, err := sql.Open("sqlite3", dbpath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	tempMigrationsDir, err := migrationsDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempMigrationsDir)

	m, err := migrate.New(fmt.Sprintf("file://%s", tempMigrationsDir), fmt.Sprintf("sqlite3://%s", dbpath))
	if err != nil {
		return nil, err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteDB{db: db}, nil
}

func (sqlite *SQLiteDB) Close() error {
	return sqlite.db.Close()
}

func (sqlite *SQLiteDB) SaveSeed(seed []byte) error {
	hexSeed := hex.EncodeToString(seed)

	_, err := sqlite.db.Exec(`
	INSERT INTO seed (id, seed) VALUES (?, ?)
	`, "id", hexSeed)

	return err
}

func (sqlite *SQLiteDB) GetSeed() ([]byte, error) {
	var hexSeed string
	row := sqlite.db.QueryRow("SELECT seed FROM seed WHERE id = ?", "id")
	err := row.Scan(&hexSeed)
	if err != nil {
		return nil, err
	}

	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, err
	}

	return seed, nil
}

func (sqlite *SQLiteDB) SaveKeyset(keyset storage.DBKeyset) error {
	_, err := sqlite.db.Exec(`
		INSERT INTO keysets (id, unit, active, seed, unit_index, derivation_path_idx, input_fee_ppk, final_expiry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, keyset.Id, keyset.Unit, keyset.Active, keyset.Seed, keyset.UnitIndex, keyset.DerivationPathIdx, keyset.InputFeePpk, keyset.FinalExpiry)

	return err
}

func (sqlite *SQLiteDB) GetKeysets() ([]storage.DBKeyset, error) {
	keysets := []storage.DBKeyset{}

	rows, err := sqlite.db.Query("SELECT id, unit, active, seed, unit_index, derivation_path_idx, input_fee_ppk, final_expiry FROM keysets")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keyset storage.DBKeyset
		var finalExpiry sql.NullInt64
		err := rows.Scan(
			&keyset.Id,
			&keyset.Unit,
			&keyset.Active,
			&keyset.Seed,
			&keyset.UnitIndex,
			&keyset.DerivationPathIdx,
			&keyset.InputFeePpk,
			&finalExpiry,
		)
		if err != nil {
			return nil, err
		}
		if finalExpiry.Valid {
			expiry := uint64(finalExpiry.Int64)
			keyset.FinalExpiry = &expiry
		}
		keysets = append(keysets, keyset)
	}

	return keysets, nil
}

func (sqlite *SQLiteDB) UpdateKeysetActive(id string, active bool) error {
	result, err := sqlite.db.Exec("UPDATE keysets SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("keyset was not updated")
	}
	return nil
}

func (sqlite *SQLiteDB) SaveProofs(proofs cashu.Proofs) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO proofs (y, amount, keyset_id, secret, c, witness) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, proof := range proofs {
		Y := crypto.HashToCurve([]byte(proof.Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		if _, err := stmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, proof.Witness); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetProofsUsed(Ys []string) ([]storage.DBProof, error) {
	if len(Ys) == 0 {
		return []storage.DBProof{}, nil
	}
	proofs := []storage.DBProof{}
	query := `SELECT y, amount, keyset_id, secret, c, witness FROM proofs WHERE y in (?` + strings.Repeat(",?", len(Ys)-1) + `)`

	args := make([]any, len(Ys))
	for i, y := range Ys {
		args[i] = y
	}

	rows, err := sqlite.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var proof storage.DBProof
		var witness sql.NullString

		err := rows.Scan(
			&proof.Y,
			&proof.Amount,
			&proof.Id,
			&proof.Secret,
			&proof.C,
			&witness,
		)
		if err != nil {
			return nil, err
		}
		if witness.Valid {
			proof.Witness = witness.String
		}
		proof.State = nut07.Spent

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

func (sqlite *SQLiteDB) AddPendingProofs(proofs cashu.Proofs, quoteId string) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO pending_proofs (y, amount, keyset_id, secret, c, witness, melt_quote_id, state) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, proof := range proofs {
		Y := crypto.HashToCurve([]byte(proof.Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		var spent int
		if err := tx.QueryRow("SELECT COUNT(*) FROM proofs WHERE y = ?", Yhex).Scan(&spent); err != nil {
			tx.Rollback()
			return err
		}
		if spent > 0 {
			tx.Rollback()
			return errors.New("proof already spent")
		}

		if _, err := stmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, proof.Witness, quoteId, nut07.Pending.String()); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetPendingProofs(Ys []string) ([]storage.DBProof, error) {
	if len(Ys) == 0 {
		return []storage.DBProof{}, nil
	}
	proofs := []storage.DBProof{}
	query := `SELECT y, amount, keyset_id, secret, c, witness, melt_quote_id, state FROM pending_proofs WHERE y in (?` + strings.Repeat(",?", len(Ys)-1) + `)`

	args := make([]any, len(Ys))
	for i, y := range Ys {
		args[i] = y
	}

	rows, err := sqlite.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPendingProofRows(rows)
}

func (sqlite *SQLiteDB) GetPendingProofsByQuote(quoteId string) ([]storage.DBProof, error) {
	query := `SELECT y, amount, keyset_id, secret, c, witness, melt_quote_id, state FROM pending_proofs WHERE melt_quote_id = ?`

	rows, err := sqlite.db.Query(query, quoteId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPendingProofRows(rows)
}

func scanPendingProofRows(rows *sql.Rows) ([]storage.DBProof, error) {
	proofs := []storage.DBProof{}
	for rows.Next() {
		var proof storage.DBProof
		var witness sql.NullString
		var meltQuoteId sql.NullString
		var state string

		err := rows.Scan(
			&proof.Y,
			&proof.Amount,
			&proof.Id,
			&proof.Secret,
			&proof.C,
			&witness,
			&meltQuoteId,
			&state,
		)
		if err != nil {
			return nil, err
		}

		if witness.Valid {
			proof.Witness = witness.String
		}
		if meltQuoteId.Valid {
			proof.MeltQuoteId = meltQuoteId.String
		}
		proof.State = nut07.StringToState(state)

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

func (sqlite *SQLiteDB) RemovePendingProofs(Ys []string) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("DELETE FROM pending_proofs WHERE y = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, y := range Ys {
		if _, err := stmt.Exec(y); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// MarkProofsSpent moves Ys from pending_proofs into the permanent proofs
// table and bumps total_issued's counterpart, total_redeemed, per keyset.
func (sqlite *SQLiteDB) MarkProofsSpent(Ys []string) error {
	if len(Ys) == 0 {
		return nil
	}

	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	query := `SELECT y, amount, keyset_id, secret, c, witness FROM pending_proofs WHERE y in (?` + strings.Repeat(",?", len(Ys)-1) + `)`
	args := make([]any, len(Ys))
	for i, y := range Ys {
		args[i] = y
	}

	rows, err := tx.Query(query, args...)
	if err != nil {
		tx.Rollback()
		return err
	}

	type row struct {
		y, id, secret, c string
		amount           uint64
		witness          sql.NullString
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.y, &r.amount, &r.id, &r.secret, &r.c, &r.witness); err != nil {
			rows.Close()
			tx.Rollback()
			return err
		}
		pending = append(pending, r)
	}
	rows.Close()

	if len(pending) != len(Ys) {
		tx.Rollback()
		return errors.New("not all proofs were pending")
	}

	insertStmt, err := tx.Prepare("INSERT INTO proofs (y, amount, keyset_id, secret, c, witness) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer insertStmt.Close()

	redeemedStmt, err := tx.Prepare(`
		INSERT INTO total_redeemed (keyset_id, amount) VALUES (?, ?)
		ON CONFLICT(keyset_id) DO UPDATE SET amount = amount + excluded.amount
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer redeemedStmt.Close()

	for _, r := range pending {
		witness := ""
		if r.witness.Valid {
			witness = r.witness.String
		}
		if _, err := insertStmt.Exec(r.y, r.amount, r.id, r.secret, r.c, witness); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := redeemedStmt.Exec(r.id, r.amount); err != nil {
			tx.Rollback()
			return err
		}
	}

	deleteStmt, err := tx.Prepare("DELETE FROM pending_proofs WHERE y = ?")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer deleteStmt.Close()
	for _, y := range Ys {
		if _, err := deleteStmt.Exec(y); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) SetPendingProofsState(Ys []string, state nut07.State) error {
	if len(Ys) == 0 {
		return nil
	}
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("UPDATE pending_proofs SET state = ? WHERE y = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, y := range Ys {
		if _, err := stmt.Exec(state.String(), y); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) SaveMintQuote(mintQuote storage.MintQuote) error {
	_, err := sqlite.db.Exec(
		`INSERT INTO mint_quotes (id, unit, method, amount, request, request_lookup_id, pubkey, created_at, expiry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mintQuote.Id,
		mintQuote.Unit,
		mintQuote.Method,
		mintQuote.Amount,
		mintQuote.Request,
		mintQuote.RequestLookupId,
		mintQuote.Pubkey,
		mintQuote.CreatedAt,
		mintQuote.Expiry,
	)

	return err
}

func (sqlite *SQLiteDB) scanMintQuote(row *sql.Row) (storage.MintQuote, error) {
	var mintQuote storage.MintQuote
	var pubkey sql.NullString

	err := row.Scan(
		&mintQuote.Id,
		&mintQuote.Unit,
		&mintQuote.Method,
		&mintQuote.Amount,
		&mintQuote.Request,
		&mintQuote.RequestLookupId,
		&pubkey,
		&mintQuote.CreatedAt,
		&mintQuote.Expiry,
	)
	if err != nil {
		return storage.MintQuote{}, err
	}
	if pubkey.Valid {
		mintQuote.Pubkey = pubkey.String
	}

	payments, err := sqlite.mintQuotePayments(mintQuote.Id)
	if err != nil {
		return storage.MintQuote{}, err
	}
	mintQuote.Payments = payments

	issuance, err := sqlite.mintQuoteIssuance(mintQuote.Id)
	if err != nil {
		return storage.MintQuote{}, err
	}
	mintQuote.Issuance = issuance

	return mintQuote, nil
}

func (sqlite *SQLiteDB) mintQuotePayments(quoteId string) ([]storage.MintQuotePayment, error) {
	rows, err := sqlite.db.Query("SELECT payment_id, amount, time FROM mint_quote_payments WHERE quote_id = ?", quoteId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []storage.MintQuotePayment
	for rows.Next() {
		var p storage.MintQuotePayment
		if err := rows.Scan(&p.PaymentId, &p.Amount, &p.Time); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (sqlite *SQLiteDB) mintQuoteIssuance(quoteId string) ([]storage.MintQuoteIssuance, error) {
	rows, err := sqlite.db.Query("SELECT amount, time FROM mint_quote_issuance WHERE quote_id = ?", quoteId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issuance []storage.MintQuoteIssuance
	for rows.Next() {
		var i storage.MintQuoteIssuance
		if err := rows.Scan(&i.Amount, &i.Time); err != nil {
			return nil, err
		}
		issuance = append(issuance, i)
	}
	return issuance, nil
}

func (sqlite *SQLiteDB) GetMintQuote(quoteId string) (storage.MintQuote, error) {
	row := sqlite.db.QueryRow(
		"SELECT id, unit, method, amount, request, request_lookup_id, pubkey, created_at, expiry FROM mint_quotes WHERE id = ?",
		quoteId,
	)
	return sqlite.scanMintQuote(row)
}

func (sqlite *SQLiteDB) GetMintQuoteByLookupId(lookupId string) (storage.MintQuote, error) {
	row := sqlite.db.QueryRow(
		"SELECT id, unit, method, amount, request, request_lookup_id, pubkey, created_at, expiry FROM mint_quotes WHERE request_lookup_id = ?",
		lookupId,
	)
	return sqlite.scanMintQuote(row)
}

func (sqlite *SQLiteDB) AddMintQuotePayment(quoteId, paymentId string, amount uint64, time uint64) error {
	_, err := sqlite.db.Exec(
		`INSERT INTO mint_quote_payments (quote_id, payment_id, amount, time) VALUES (?, ?, ?, ?)
		ON CONFLICT(quote_id, payment_id) DO NOTHING`,
		quoteId, paymentId, amount, time,
	)
	return err
}

func (sqlite *SQLiteDB) AddMintQuoteIssuance(quoteId string, amount uint64, time uint64) error {
	_, err := sqlite.db.Exec(
		"INSERT INTO mint_quote_issuance (quote_id, amount, time) VALUES (?, ?, ?)",
		quoteId, amount, time,
	)
	return err
}

// ReserveMintQuoteIssuance reads the quote's paid/issued totals and
// inserts the new issuance row in one transaction, returning its
// rowid so a caller can undo the reservation with
// RemoveMintQuoteIssuance if a later step fails. The single connection
// this db is opened with (SetMaxOpenConns(1)) serializes concurrent
// callers across the whole read-check-write sequence, so two requests
// racing the same quote can't both observe outstanding room that only
// exists once.
func (sqlite *SQLiteDB) ReserveMintQuoteIssuance(quoteId string, amount uint64, time uint64) (int64, error) {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return 0, err
	}

	var paid uint64
	if err := tx.QueryRow("SELECT COALESCE(SUM(amount), 0) FROM mint_quote_payments WHERE quote_id = ?", quoteId).Scan(&paid); err != nil {
		tx.Rollback()
		return 0, err
	}
	var issued uint64
	if err := tx.QueryRow("SELECT COALESCE(SUM(amount), 0) FROM mint_quote_issuance WHERE quote_id = ?", quoteId).Scan(&issued); err != nil {
		tx.Rollback()
		return 0, err
	}

	if amount > paid-issued {
		tx.Rollback()
		return 0, storage.ErrQuoteOutstandingExceeded
	}

	result, err := tx.Exec("INSERT INTO mint_quote_issuance (quote_id, amount, time) VALUES (?, ?, ?)", quoteId, amount, time)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	rowid, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return rowid, nil
}

// RemoveMintQuoteIssuance undoes a ReserveMintQuoteIssuance reservation
// by rowid, for when a step after reserving fails and the outstanding
// balance must be given back.
func (sqlite *SQLiteDB) RemoveMintQuoteIssuance(rowid int64) error {
	_, err := sqlite.db.Exec("DELETE FROM mint_quote_issuance WHERE rowid = ?", rowid)
	return err
}

func (sqlite *SQLiteDB) SaveMeltQuote(meltQuote storage.MeltQuote) error {
	_, err := sqlite.db.Exec(`
		INSERT INTO melt_quotes
		(id, unit, method, request, request_lookup_id, amount, fee_reserve, state, preimage, is_mpp, amount_msat, created_at, expiry, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meltQuote.Id,
		meltQuote.Unit,
		meltQuote.Method,
		meltQuote.Request,
		meltQuote.RequestLookupId,
		meltQuote.Amount,
		meltQuote.FeeReserve,
		meltQuote.State.String(),
		meltQuote.Preimage,
		meltQuote.IsMpp,
		meltQuote.AmountMsat,
		meltQuote.CreatedAt,
		meltQuote.Expiry,
		meltQuote.PaidAt,
	)

	return err
}

func scanMeltQuote(row *sql.Row) (storage.MeltQuote, error) {
	var meltQuote storage.MeltQuote
	var state string
	var requestLookupId sql.NullString
	var preimage sql.NullString
	var amountMsat sql.NullInt64
	var paidAt sql.NullInt64

	err := row.Scan(
		&meltQuote.Id,
		&meltQuote.Unit,
		&meltQuote.Method,
		&meltQuote.Request,
		&requestLookupId,
		&meltQuote.Amount,
		&meltQuote.FeeReserve,
		&state,
		&preimage,
		&meltQuote.IsMpp,
		&amountMsat,
		&meltQuote.CreatedAt,
		&meltQuote.Expiry,
		&paidAt,
	)
	if err != nil {
		return storage.MeltQuote{}, err
	}
	meltQuote.State = nut05.StringToState(state)
	if requestLookupId.Valid {
		meltQuote.RequestLookupId = requestLookupId.String
	}
	if preimage.Valid {
		meltQuote.Preimage = preimage.String
	}
	if amountMsat.Valid {
		meltQuote.AmountMsat = uint64(amountMsat.Int64)
	}
	if paidAt.Valid {
		meltQuote.PaidAt = uint64(paidAt.Int64)
	}

	return meltQuote, nil
}

const meltQuoteColumns = "id, unit, method, request, request_lookup_id, amount, fee_reserve, state, preimage, is_mpp, amount_msat, created_at, expiry, paid_at"

func (sqlite *SQLiteDB) GetMeltQuote(quoteId string) (storage.MeltQuote, error) {
	row := sqlite.db.QueryRow("SELECT "+meltQuoteColumns+" FROM melt_quotes WHERE id = ?", quoteId)
	return scanMeltQuote(row)
}

func (sqlite *SQLiteDB) GetMeltQuoteByLookupId(lookupId string) (*storage.MeltQuote, error) {
	row := sqlite.db.QueryRow("SELECT "+meltQuoteColumns+" FROM melt_quotes WHERE request_lookup_id = ?", lookupId)
	quote, err := scanMeltQuote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

func (sqlite *SQLiteDB) UpdateMeltQuoteState(quoteId string, state nut05.State) error {
	var paidAt any
	if state == nut05.Paid {
		paidAt = nowUnix()
	}

	result, err := sqlite.db.Exec(
		"UPDATE melt_quotes SET state = ?, paid_at = COALESCE(?, paid_at) WHERE id = ?",
		state.String(), paidAt, quoteId,
	)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("melt quote was not updated")
	}
	return nil
}

func (sqlite *SQLiteDB) SetMeltQuotePreimage(quoteId, preimage string) error {
	result, err := sqlite.db.Exec("UPDATE melt_quotes SET preimage = ? WHERE id = ?", preimage, quoteId)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("melt quote was not updated")
	}
	return nil
}

func (sqlite *SQLiteDB) SaveBlindSignatures(B_s []string, blindSignatures cashu.BlindedSignatures) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO blind_signatures (b_, c_, keyset_id, amount, e, s) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	issuedStmt, err := tx.Prepare(`
		INSERT INTO total_issued (keyset_id, amount) VALUES (?, ?)
		ON CONFLICT(keyset_id) DO UPDATE SET amount = amount + excluded.amount
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer issuedStmt.Close()

	for i, sig := range blindSignatures {
		var e, s string
		if sig.DLEQ != nil {
			e, s = sig.DLEQ.E, sig.DLEQ.S
		}
		if _, err := stmt.Exec(B_s[i], sig.C_, sig.Id, sig.Amount, e, s); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := issuedStmt.Exec(sig.Id, sig.Amount); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetBlindSignature(B_ string) (cashu.BlindedSignature, error) {
	row := sqlite.db.QueryRow("SELECT amount, c_, keyset_id, e, s FROM blind_signatures WHERE b_ = ?", B_)

	var signature cashu.BlindedSignature
	var e sql.NullString
	var s sql.NullString

	err := row.Scan(
		&signature.Amount,
		&signature.C_,
		&signature.Id,
		&e,
		&s,
	)
	if err != nil {
		return cashu.BlindedSignature{}, err
	}

	if e.Valid && s.Valid && e.String != "" && s.String != "" {
		signature.DLEQ = &cashu.DLEQProof{E: e.String, S: s.String}
	}

	return signature, nil
}

func (sqlite *SQLiteDB) GetBlindSignatures(B_s []string) (cashu.BlindedSignatures, error) {
	if len(B_s) == 0 {
		return cashu.BlindedSignatures{}, nil
	}
	signatures := cashu.BlindedSignatures{}
	query := `SELECT amount, c_, keyset_id, e, s FROM blind_signatures WHERE b_ in (?` + strings.Repeat(",?", len(B_s)-1) + `)`

	args := make([]any, len(B_s))
	for i, B_ := range B_s {
		args[i] = B_
	}

	rows, err := sqlite.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var signature cashu.BlindedSignature
		var e sql.NullString
		var s sql.NullString

		err := rows.Scan(
			&signature.Amount,
			&signature.C_,
			&signature.Id,
			&e,
			&s,
		)
		if err != nil {
			return nil, err
		}

		if e.Valid && s.Valid && e.String != "" && s.String != "" {
			signature.DLEQ = &cashu.DLEQProof{E: e.String, S: s.String}
		}

		signatures = append(signatures, signature)
	}

	return signatures, nil
}

func (sqlite *SQLiteDB) GetIssuedEcash() (map[string]uint64, error) {
	ecashIssued := make(map[string]uint64)

	rows, err := sqlite.db.Query("SELECT keyset_id, amount FROM total_issued")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keysetId string
		var amount uint64
		if err := rows.Scan(&keysetId, &amount); err != nil {
			return nil, err
		}
		ecashIssued[keysetId] = amount
	}

	return ecashIssued, nil
}

func (sqlite *SQLiteDB) GetRedeemedEcash() (map[string]uint64, error) {
	ecashRedeemed := make(map[string]uint64)

	rows, err := sqlite.db.Query("SELECT keyset_id, amount FROM total_redeemed")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keysetId string
		var amount uint64
		if err := rows.Scan(&keysetId, &amount); err != nil {
			return nil, err
		}
		ecashRedeemed[keysetId] = amount
	}

	return ecashRedeemed, nil
}

func nowUnix() int64 {
	return time.Now().Unix()
}
