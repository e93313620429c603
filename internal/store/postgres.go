package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id           BIGSERIAL   PRIMARY KEY,
	username     TEXT        NOT NULL UNIQUE,
	hash         TEXT        NOT NULL,
	cash         NUMERIC     NOT NULL CHECK (cash >= 0),
	initial_cash NUMERIC     NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS holdings (
	account_id BIGINT NOT NULL REFERENCES accounts (id),
	symbol     TEXT   NOT NULL,
	quantity   BIGINT NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (account_id, symbol)
);
CREATE TABLE IF NOT EXISTS fills (
	seq         BIGSERIAL   PRIMARY KEY,
	fill_id     TEXT        NOT NULL UNIQUE,
	account_id  BIGINT      NOT NULL REFERENCES accounts (id),
	symbol      TEXT        NOT NULL,
	side        TEXT        NOT NULL CHECK (side IN ('BUY', 'SELL')),
	price       NUMERIC     NOT NULL,
	shares      BIGINT      NOT NULL CHECK (shares > 0),
	executed_at TIMESTAMPTZ NOT NULL,
	name        TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS fills_account_time ON fills (account_id, executed_at, seq);
`

// PostgresStore is a ledger store backed by a pgx connection pool.
// Settlements take a row lock on the account (SELECT ... FOR UPDATE), so
// concurrent orders for one account are serialized while orders for
// different accounts run in parallel. Numeric columns travel as text to
// keep decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database at url and applies the schema.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable(err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the ledger tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return unavailable(fmt.Errorf("migrate: %w", err))
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateAccount inserts a new account and returns it with its assigned id.
func (s *PostgresStore) CreateAccount(ctx context.Context, a domain.Account) (*domain.Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (username, hash, cash, initial_cash, created_at)
		 VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		 ON CONFLICT (username) DO NOTHING
		 RETURNING id`,
		a.Username, a.PasswordHash, a.Cash.String(), a.InitialCash.String(), a.CreatedAt,
	).Scan(&a.AccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountAlreadyExists
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &a, nil
}

// GetAccount retrieves an account by id.
func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return scanPgAccount(s.pool.QueryRow(ctx, pgSelectAccount+` WHERE id = $1`, id))
}

// Statement returns one account, its holdings and its full fill history
// from a single repeatable-read snapshot.
func (s *PostgresStore) Statement(ctx context.Context, id int64) (*domain.Statement, error) {
	var st *domain.Statement
	err := s.readOnly(ctx, func(tx pgx.Tx) error {
		a, err := scanPgAccount(tx.QueryRow(ctx, pgSelectAccount+` WHERE id = $1`, id))
		if err != nil {
			return err
		}
		st = &domain.Statement{Account: *a}
		if st.Holdings, err = queryPgHoldings(ctx, tx,
			`SELECT account_id, symbol, quantity FROM holdings WHERE account_id = $1 ORDER BY symbol`, id); err != nil {
			return err
		}
		st.Fills, err = queryPgFills(ctx, tx,
			pgSelectFills+` WHERE account_id = $1 ORDER BY executed_at, seq`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Statements returns every account with its holdings, ordered by account
// id, from a single repeatable-read snapshot.
func (s *PostgresStore) Statements(ctx context.Context) ([]domain.Statement, error) {
	var out []domain.Statement
	err := s.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, pgSelectAccount+` ORDER BY id`)
		if err != nil {
			return unavailable(err)
		}
		index := make(map[int64]int)
		for rows.Next() {
			a, err := scanPgAccount(rows)
			if err != nil {
				rows.Close()
				return err
			}
			index[a.AccountID] = len(out)
			out = append(out, domain.Statement{Account: *a, Holdings: []domain.Holding{}})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return unavailable(err)
		}

		holdings, err := queryPgHoldings(ctx, tx,
			`SELECT account_id, symbol, quantity FROM holdings ORDER BY account_id, symbol`)
		if err != nil {
			return err
		}
		for _, h := range holdings {
			if i, ok := index[h.AccountID]; ok {
				out[i].Holdings = append(out[i].Holdings, h)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecentFills returns up to limit fills of an account, newest first.
func (s *PostgresStore) RecentFills(ctx context.Context, id int64, limit int) ([]domain.Fill, error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		pgSelectFills+` WHERE account_id = $1 ORDER BY executed_at DESC, seq DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return collectPgFills(rows)
}

// Settle locks the account row, hands the account and its position in
// symbol to fn and commits the resulting fill, cash balance and holding
// in one transaction. Any failure rolls the whole transaction back.
func (s *PostgresStore) Settle(ctx context.Context, id int64, symbol string, fn domain.SettleFunc) (*domain.Fill, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanPgAccount(tx.QueryRow(ctx, pgSelectAccount+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	pos := domain.Position{Account: *a, Symbol: symbol}
	err = tx.QueryRow(ctx,
		`SELECT quantity FROM holdings WHERE account_id = $1 AND symbol = $2`, id, symbol,
	).Scan(&pos.Quantity)
	switch {
	case err == nil:
		pos.Held = true
	case !errors.Is(err, pgx.ErrNoRows):
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
	err = tx.QueryRow(ctx,
		`INSERT INTO fills (fill_id, account_id, symbol, side, price, shares, executed_at, name)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
		 RETURNING seq, executed_at`,
		f.FillID, f.AccountID, f.Symbol, string(f.Side), f.Price.String(), f.Shares, pgTimestamp(f.ExecutedAt), f.Name,
	).Scan(&f.Seq, &f.ExecutedAt)
	if err != nil {
		return nil, unavailable(err)
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET cash = $1::numeric WHERE id = $2`, set.Cash.String(), id); err != nil {
		return nil, unavailable(err)
	}

	if set.Quantity == 0 {
		_, err = tx.Exec(ctx, `DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`, id, symbol)
	} else {
		_, err = tx.Exec(ctx,
			`INSERT INTO holdings (account_id, symbol, quantity) VALUES ($1, $2, $3)
			 ON CONFLICT (account_id, symbol) DO UPDATE SET quantity = EXCLUDED.quantity`,
			id, symbol, set.Quantity,
		)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err)
	}
	return &f, nil
}

func (s *PostgresStore) readOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

const (
	pgSelectAccount = `SELECT id, username, hash, cash::text, initial_cash::text, created_at FROM accounts`
	pgSelectFills   = `SELECT seq, fill_id, account_id, symbol, side, price::text, shares, executed_at, name FROM fills`
)

func scanPgAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a             domain.Account
		cash, initial string
	)
	err := row.Scan(&a.AccountID, &a.Username, &a.PasswordHash, &cash, &initial, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	return &a, nil
}

func queryPgHoldings(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]domain.Holding, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	holdings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Holding, error) {
		var h domain.Holding
		err := row.Scan(&h.AccountID, &h.Symbol, &h.Quantity)
		return h, err
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return holdings, nil
}

func queryPgFills(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]domain.Fill, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	return collectPgFills(rows)
}

func collectPgFills(rows pgx.Rows) ([]domain.Fill, error) {
	fills, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Fill, error) {
		var (
			f     domain.Fill
			side  string
			price string
		)
		if err := row.Scan(&f.Seq, &f.FillID, &f.AccountID, &f.Symbol, &side, &price, &f.Shares, &f.ExecutedAt, &f.Name); err != nil {
			return f, err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return f, fmt.Errorf("fill %s price: %w", f.FillID, err)
		}
		f.Price = p
		f.Side = domain.Side(side)
		return f, nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return fills, nil
}

// pgTimestamp truncates t to the microsecond resolution of TIMESTAMPTZ.
func pgTimestamp(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
