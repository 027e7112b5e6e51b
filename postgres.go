package bankgrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// The store is the sole arbiter of atomicity: every mutation is a single
// conditional UPDATE whose predicate and value expression reference the
// current row, so no balance is ever read into memory and written back.
var (
	pgDepositSQL = `
		UPDATE account
		SET balance = balance + $1
		WHERE user_id = $2
		RETURNING balance;
	`

	pgWithdrawSQL = `
		UPDATE account
		SET balance = balance - $1
		WHERE user_id = $2
		AND balance >= $1
		RETURNING balance;
	`

	// Recompute-and-clamp in one statement. `balance * (1 + $1) > 0` guards
	// against numeric overflow producing nonsense; `balance < growth_ceiling`
	// turns a no-headroom grow into a zero-row result for reclassification.
	pgGrowBalanceSQL = `
		UPDATE account
		SET balance =
			CASE
				WHEN (balance * (1 + $1)) <= growth_ceiling
				THEN round(balance * (1 + $1), 2)
				ELSE growth_ceiling
			END
		WHERE user_id = $2
		AND (balance * (1 + $1)) > 0
		AND balance < growth_ceiling
		RETURNING balance;
	`

	pgInsertAccountSQL = `
		INSERT INTO account (user_id, balance, growth_ceiling)
		VALUES ($1, $2, $3);
	`

	pgSelectAccountSQL = `
		SELECT balance, growth_ceiling
		FROM account
		WHERE user_id = $1;
	`

	pgSelectAllAccountsSQL = `
		SELECT user_id, balance, growth_ceiling
		FROM account
		ORDER BY user_id;
	`
)

const defaultQueryTimeout = 5 * time.Second

type PostgresEndpoint struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	log     *zerolog.Logger
}

var (
	_ Repository = (*PostgresEndpoint)(nil)
)

func NewPostgresEndpoint(connStr string, timeout time.Duration, log *zerolog.Logger) (*PostgresEndpoint, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	endpt := &PostgresEndpoint{
		pool:    pool,
		timeout: timeout,
		log:     log,
	}
	return endpt, err
}

func (pg *PostgresEndpoint) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), pg.timeout)
}

// retryableErr translates a timed-out store call into the retryable sentinel.
// The statement may or may not have applied; the caller must not assume
// either outcome and should retry against the then-current balance.
func retryableErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("store call timed out: %w", ErrServiceUnavailable)
	}
	return err
}

func (pg *PostgresEndpoint) CreateAccount(req CreateAccountReq) error {
	ctx, cancel := pg.queryCtx()
	defer cancel()

	_, err := pg.pool.Exec(ctx, pgInsertAccountSQL, req.UserID.Int64(), req.Balance, req.GrowthCeiling)
	return retryableErr(err)
}

func (pg *PostgresEndpoint) Deposit(amount decimal.Decimal, userID snowflake.ID) (*decimal.Decimal, error) {
	return pg.conditionalUpdate(pgDepositSQL, amount, userID)
}

func (pg *PostgresEndpoint) Withdraw(amount decimal.Decimal, userID snowflake.ID) (*decimal.Decimal, error) {
	return pg.conditionalUpdate(pgWithdrawSQL, amount, userID)
}

func (pg *PostgresEndpoint) GrowBalance(rate decimal.Decimal, userID snowflake.ID) (*decimal.Decimal, error) {
	return pg.conditionalUpdate(pgGrowBalanceSQL, rate, userID)
}

// conditionalUpdate runs one of the RETURNING updates. A nil balance with a
// nil error is the zero-rows-affected outcome.
func (pg *PostgresEndpoint) conditionalUpdate(sql string, arg decimal.Decimal, userID snowflake.ID) (*decimal.Decimal, error) {
	ctx, cancel := pg.queryCtx()
	defer cancel()

	row := pg.pool.QueryRow(ctx, sql, arg, userID.Int64())
	var bal decimal.Decimal
	if err := row.Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, retryableErr(err)
	}
	return &bal, nil
}

func (pg *PostgresEndpoint) GetAccount(userID snowflake.ID) (*Account, error) {
	ctx, cancel := pg.queryCtx()
	defer cancel()

	row := pg.pool.QueryRow(ctx, pgSelectAccountSQL, userID.Int64())
	var (
		rbal  decimal.Decimal
		rceil decimal.Decimal
	)
	if err := row.Scan(&rbal, &rceil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound{UserID: userID.Int64()}
		}
		return nil, retryableErr(err)
	}

	acct := &Account{
		UserID:        userID,
		Balance:       rbal,
		GrowthCeiling: rceil,
	}
	return acct, nil
}

func (pg *PostgresEndpoint) ListAccounts() ([]Account, error) {
	ctx, cancel := pg.queryCtx()
	defer cancel()

	rows, err := pg.pool.Query(ctx, pgSelectAllAccountsSQL)
	if err != nil {
		return nil, retryableErr(err)
	}
	defer rows.Close()

	var accts []Account
	for rows.Next() {
		var (
			uid   int64
			acct  Account
			rbal  decimal.Decimal
			rceil decimal.Decimal
		)
		if err = rows.Scan(&uid, &rbal, &rceil); err != nil {
			return nil, retryableErr(err)
		}
		acct.UserID = snowflake.ParseInt64(uid)
		acct.Balance = rbal
		acct.GrowthCeiling = rceil
		accts = append(accts, acct)
	}
	return accts, retryableErr(rows.Err())
}
