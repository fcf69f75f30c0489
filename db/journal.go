package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/minting"
	"github.com/magicns/lightwallet/provider"
)

// ErrWriteNotFound is returned when resolving a write that was never
// journaled.
var ErrWriteNotFound = errors.New("write not found in journal")

// JournalStore is a sqlite backed minting.Journal.
type JournalStore struct {
	db *sql.DB
}

var _ minting.Journal = (*JournalStore)(nil)

// NewJournalStore creates a journal over db. The schema must already be
// applied.
func NewJournalStore(db *sql.DB) *JournalStore {
	return &JournalStore{
		db: db,
	}
}

// DB returns the underlying database handle.
func (s *JournalStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *JournalStore) Close() error {
	return s.db.Close()
}

// WriteSubmitted records a write accepted by the wallet. Journaling the same
// transaction twice keeps the first entry.
func (s *JournalStore) WriteSubmitted(ctx context.Context,
	rec *minting.WriteRecord) error {

	var value string
	if rec.Value != nil {
		value = rec.Value.String()
	}

	outcome := rec.Outcome
	if outcome == "" {
		outcome = minting.OutcomePending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO writes (
			tx_hash, kind, name, record, account, chain_id, value,
			submitted_at, outcome, explorer_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_hash) DO NOTHING`,
		rec.TxHash.Hex(), string(rec.Kind), rec.Name, rec.Record,
		rec.Account.Hex(), int64(rec.ChainID), value,
		rec.SubmittedAt.UnixNano(), string(outcome), rec.ExplorerURL,
	)
	if err != nil {
		return fmt.Errorf("unable to insert write %v: %w", rec.TxHash,
			err)
	}

	log.Debugf("Journaled %s of %s (tx %v)", rec.Kind, rec.Name,
		rec.TxHash)

	return nil
}

// WriteResolved records the final status of a journaled write.
func (s *JournalStore) WriteResolved(ctx context.Context, hash common.Hash,
	outcome minting.WriteOutcome, at time.Time) error {

	res, err := s.db.ExecContext(ctx, `
		UPDATE writes SET outcome = ?, resolved_at = ?
		WHERE tx_hash = ?`,
		string(outcome), at.UnixNano(), hash.Hex(),
	)
	if err != nil {
		return fmt.Errorf("unable to resolve write %v: %w", hash, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", ErrWriteNotFound, hash)
	}

	return nil
}

// WriteQuery filters ListWrites.
type WriteQuery struct {
	// Account restricts the result to writes sent from this account.
	Account *common.Address

	// Name restricts the result to writes for this name.
	Name string

	// Limit caps the number of writes returned. Zero means no limit.
	Limit int
}

// ListWrites returns journaled writes, newest first.
func (s *JournalStore) ListWrites(ctx context.Context,
	query WriteQuery) ([]minting.WriteRecord, error) {

	var (
		where []string
		args  []interface{}
	)
	if query.Account != nil {
		where = append(where, "account = ?")
		args = append(args, query.Account.Hex())
	}
	if query.Name != "" {
		where = append(where, "name = ?")
		args = append(args, query.Name)
	}

	stmt := `
		SELECT tx_hash, kind, name, record, account, chain_id, value,
			submitted_at, outcome, resolved_at, explorer_url
		FROM writes`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY submitted_at DESC, id DESC"
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query writes: %w", err)
	}
	defer rows.Close()

	var records []minting.WriteRecord
	for rows.Next() {
		rec, err := scanWrite(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// scanWrite reads one row of the writes table.
func scanWrite(rows *sql.Rows) (*minting.WriteRecord, error) {
	var (
		hash, kind, account, value, outcome string
		chainID, submittedAt                int64
		resolvedAt                          sql.NullInt64
		rec                                 minting.WriteRecord
	)

	err := rows.Scan(
		&hash, &kind, &rec.Name, &rec.Record, &account, &chainID,
		&value, &submittedAt, &outcome, &resolvedAt, &rec.ExplorerURL,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to read write: %w", err)
	}

	rec.TxHash = common.HexToHash(hash)
	rec.Kind = minting.WriteKind(kind)
	rec.Account = common.HexToAddress(account)
	rec.ChainID = provider.ChainID(chainID)
	rec.SubmittedAt = time.Unix(0, submittedAt)
	rec.Outcome = minting.WriteOutcome(outcome)

	if resolvedAt.Valid {
		rec.ResolvedAt = time.Unix(0, resolvedAt.Int64)
	}

	if value != "" {
		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid value %q for tx %s",
				value, hash)
		}
		rec.Value = v
	}

	return &rec, nil
}
