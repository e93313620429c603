package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/efreitasn/papertrade/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	username     TEXT    NOT NULL UNIQUE,
	hash         TEXT    NOT NULL,
	cash         TEXT    NOT NULL,
	initial_cash TEXT    NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS holdings (
	account_id INTEGER NOT NULL REFERENCES accounts (id),
	symbol     TEXT    NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (account_id, symbol)
);
CREATE TABLE IF NOT EXISTS fills (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fill_id     TEXT    NOT NULL UNIQUE,
	account_id  INTEGER NOT NULL REFERENCES accounts (id),
	symbol      TEXT    NOT NULL,
	side        TEXT    NOT NULL CHECK (side IN ('BUY', 'SELL')),
	price       TEXT    NOT NULL,
	shares      INTEGER NOT NULL CHECK (shares > 0),
	executed_at INTEGER NOT NULL,
	name        TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS fills_account_time ON fills (account_id, executed_at, id);
`

// SQLStore is a ledger store backed by database/sql. Money columns are
// stored as decimal text so no precision is lost in the round trip.
//
// Settle runs inside a single transaction. With SQLite the pool is capped
// at one connection, which serializes every writer and makes the
// read-check-write sequence of a settlement atomic.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database. The schema must already exist; see
// Migrate.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLite opens (or creates) a SQLite database at path and applies the
// schema. Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable(err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable(err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, unavailable(err)
	}

	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the ledger tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return unavailable(fmt.Errorf("migrate: %w", err))
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// CreateAccount inserts a new account and returns it with its assigned id.
func (s *SQLStore) CreateAccount(ctx context.Context, a domain.Account) (*domain.Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	var taken int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE username = ?`, a.Username).Scan(&taken)
	switch {
	case err == nil:
		return nil, domain.ErrAccountAlreadyExists
	case !errors.Is(err, sql.ErrNoRows):
		return nil, unavailable(err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (username, hash, cash, initial_cash, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.Username, a.PasswordHash, a.Cash.String(), a.InitialCash.String(), a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, unavailable(err)
	}
	if a.AccountID, err = res.LastInsertId(); err != nil {
		return nil, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return &a, nil
}

// GetAccount retrieves an account by id.
func (s *SQLStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
}

// Statement returns one account, its holdings and its full fill history
// read within a single transaction.
func (s *SQLStore) Statement(ctx context.Context, id int64) (*domain.Statement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAccount(tx.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	st := &domain.Statement{Account: *a}
	if st.Holdings, err = queryHoldings(ctx, tx,
		`SELECT account_id, symbol, quantity FROM holdings WHERE account_id = ? ORDER BY symbol`, id); err != nil {
		return nil, err
	}
	if st.Fills, err = queryFills(ctx, tx,
		selectFills+` WHERE account_id = ? ORDER BY executed_at, id`, id); err != nil {
		return nil, err
	}
	if st.Fills == nil {
		st.Fills = []domain.Fill{}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return st, nil
}

// Statements returns every account with its holdings, ordered by account
// id, read within a single transaction.
func (s *SQLStore) Statements(ctx context.Context) ([]domain.Statement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, selectAccount+` ORDER BY id`)
	if err != nil {
		return nil, unavailable(err)
	}
	var out []domain.Statement
	index := make(map[int64]int)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[a.AccountID] = len(out)
		out = append(out, domain.Statement{Account: *a, Holdings: []domain.Holding{}})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable(err)
	}
	rows.Close()

	holdings, err := queryHoldings(ctx, tx,
		`SELECT account_id, symbol, quantity FROM holdings ORDER BY account_id, symbol`)
	if err != nil {
		return nil, err
	}
	for _, h := range holdings {
		if i, ok := index[h.AccountID]; ok {
			out[i].Holdings = append(out[i].Holdings, h)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// RecentFills returns up to limit fills of an account, newest first.
func (s *SQLStore) RecentFills(ctx context.Context, id int64, limit int) ([]domain.Fill, error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	fills, err := queryFills(ctx, s.db,
		selectFills+` WHERE account_id = ? ORDER BY executed_at DESC, id DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, err
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	return fills, nil
}

// Settle reads the account and its position in symbol, hands them to fn
// and commits the resulting fill, cash balance and holding in one
// transaction. Any failure rolls the whole transaction back.
func (s *SQLStore) Settle(ctx context.Context, id int64, symbol string, fn domain.SettleFunc) (*domain.Fill, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAccount(tx.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	pos := domain.Position{Account: *a, Symbol: symbol}
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM holdings WHERE account_id = ? AND symbol = ?`, id, symbol,
	).Scan(&pos.Quantity)
	switch {
	case err == nil:
		pos.Held = true
	case !errors.Is(err, sql.ErrNoRows):
		return nil, unavailable(err)
	}

	set, err := fn(pos)
	if err != nil {
		return nil, err
	}
	if err := checkSettlement(id, symbol, set); err != nil {
		return nil, err
	}

	f := set.Fill
	res, err := tx.ExecContext(ctx,
		`INSERT INTO fills (fill_id, account_id, symbol, side, price, shares, executed_at, name) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FillID, f.AccountID, f.Symbol, string(f.Side), f.Price.String(), f.Shares, f.ExecutedAt.UnixNano(), f.Name,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	if f.Seq, err = res.LastInsertId(); err != nil {
		return nil, unavailable(err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET cash = ? WHERE id = ?`, set.Cash.String(), id); err != nil {
		return nil, unavailable(err)
	}

	if set.Quantity == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM holdings WHERE account_id = ? AND symbol = ?`, id, symbol)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO holdings (account_id, symbol, quantity) VALUES (?, ?, ?)
			 ON CONFLICT (account_id, symbol) DO UPDATE SET quantity = excluded.quantity`,
			id, symbol, set.Quantity,
		)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return &f, nil
}

const (
	selectAccount = `SELECT id, username, hash, cash, initial_cash, created_at FROM accounts`
	selectFills   = `SELECT id, fill_id, account_id, symbol, side, price, shares, executed_at, name FROM fills`
)

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a             domain.Account
		cash, initial string
		created       int64
	)
	err := row.Scan(&a.AccountID, &a.Username, &a.PasswordHash, &cash, &initial, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if a.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, unavailable(fmt.Errorf("account %d cash: %w", a.AccountID, err))
	}
	if a.InitialCash, err = decimal.NewFromString(initial); err != nil {
		return nil, unavailable(fmt.Errorf("account %d initial cash: %w", a.AccountID, err))
	}
	a.CreatedAt = time.Unix(0, created)
	return &a, nil
}

func queryHoldings(ctx context.Context, q querier, query string, args ...any) ([]domain.Holding, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	holdings := []domain.Holding{}
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Quantity); err != nil {
			return nil, unavailable(err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return holdings, nil
}

func queryFills(ctx context.Context, q querier, query string, args ...any) ([]domain.Fill, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var (
			f        domain.Fill
			side     string
			price    string
			executed int64
		)
		if err := rows.Scan(&f.Seq, &f.FillID, &f.AccountID, &f.Symbol, &side, &price, &f.Shares, &executed, &f.Name); err != nil {
			return nil, unavailable(err)
		}
		if f.Price, err = decimal.NewFromString(price); err != nil {
			return nil, unavailable(fmt.Errorf("fill %s price: %w", f.FillID, err))
		}
		f.Side = domain.Side(side)
		f.ExecutedAt = time.Unix(0, executed)
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return fills, nil
}
