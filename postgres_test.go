package bankgrow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tksoft/bankgrow"
)

var (
	testDBConnStr string
)

func init() {
	testDBConnStr = os.Getenv("TEST_DB_CONN_STR")
}

func TestPostgres(t *testing.T) {
	if testDBConnStr == "" {
		t.Skip("TEST_DB_CONN_STR not set")
	}

	as := assert.New(t)
	reqrd := require.New(t)

	_, teardown, err := initDB()
	reqrd.Nil(err)
	t.Cleanup(teardown)
	node, err := snowflake.NewNode(111)
	reqrd.Nil(err)

	nooplog := zerolog.Nop()
	endpt, err := bankgrow.NewPostgresEndpoint(testDBConnStr, 5*time.Second, &nooplog)
	reqrd.Nil(err)

	t.Run("deposit adds to the balance unconditionally", func(tt *testing.T) {
		userID := node.Generate()
		reqrd.Nil(endpt.CreateAccount(bankgrow.CreateAccountReq{
			UserID:        userID,
			Balance:       decimal.RequireFromString("0.00"),
			GrowthCeiling: decimal.RequireFromString("150.00"),
		}))

		amount := decimal.RequireFromString("20.00")
		bal, err := endpt.Deposit(amount, userID)
		reqrd.Nil(err)
		reqrd.NotNil(bal)
		as.True(bal.Equal(amount))

		bal, err = endpt.Deposit(amount, userID)
		reqrd.Nil(err)
		reqrd.NotNil(bal)
		as.True(bal.Equal(decimal.RequireFromString("40.00")))
	})

	t.Run("withdraw reports zero rows when funds are short", func(tt *testing.T) {
		userID := node.Generate()
		reqrd.Nil(endpt.CreateAccount(bankgrow.CreateAccountReq{
			UserID:        userID,
			Balance:       decimal.RequireFromString("30.00"),
			GrowthCeiling: decimal.RequireFromString("150.00"),
		}))

		bal, err := endpt.Withdraw(decimal.RequireFromString("50.00"), userID)
		reqrd.Nil(err)
		as.Nil(bal)

		acct, err := endpt.GetAccount(userID)
		reqrd.Nil(err)
		as.True(acct.Balance.Equal(decimal.RequireFromString("30.00")))
	})

	t.Run("grow clamps to the ceiling inside the store", func(tt *testing.T) {
		userID := node.Generate()
		reqrd.Nil(endpt.CreateAccount(bankgrow.CreateAccountReq{
			UserID:        userID,
			Balance:       decimal.RequireFromString("140.00"),
			GrowthCeiling: decimal.RequireFromString("150.00"),
		}))

		bal, err := endpt.GrowBalance(decimal.RequireFromString("0.10"), userID)
		reqrd.Nil(err)
		reqrd.NotNil(bal)
		as.True(bal.Equal(decimal.RequireFromString("150.00")))
	})

	t.Run("grow reports zero rows when there is no headroom", func(tt *testing.T) {
		userID := node.Generate()
		reqrd.Nil(endpt.CreateAccount(bankgrow.CreateAccountReq{
			UserID:        userID,
			Balance:       decimal.RequireFromString("150.00"),
			GrowthCeiling: decimal.RequireFromString("150.00"),
		}))

		bal, err := endpt.GrowBalance(decimal.RequireFromString("0.10"), userID)
		reqrd.Nil(err)
		as.Nil(bal)
	})

	t.Run("a timed-out call surfaces as retryable", func(tt *testing.T) {
		short, err := bankgrow.NewPostgresEndpoint(testDBConnStr, time.Nanosecond, &nooplog)
		reqrd.Nil(err)

		_, err = short.Deposit(decimal.RequireFromString("1.00"), node.Generate())
		reqrd.NotNil(err)
		as.True(errors.Is(err, bankgrow.ErrServiceUnavailable))
	})

	t.Run("concurrent withdrawals cannot overdraw the account", func(tt *testing.T) {
		userID := node.Generate()
		reqrd.Nil(endpt.CreateAccount(bankgrow.CreateAccountReq{
			UserID:        userID,
			Balance:       decimal.RequireFromString("100.00"),
			GrowthCeiling: decimal.RequireFromString("150.00"),
		}))

		amount := decimal.RequireFromString("70.00")
		results := make([]*decimal.Decimal, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = endpt.Withdraw(amount, userID)
			}(i)
		}
		wg.Wait()

		var applied int
		for i := range results {
			reqrd.Nil(errs[i])
			if results[i] != nil {
				applied++
			}
		}
		as.Equal(1, applied)

		acct, err := endpt.GetAccount(userID)
		reqrd.Nil(err)
		as.True(acct.Balance.Equal(decimal.RequireFromString("30.00")))
		as.False(acct.Balance.IsNegative())
	})
}

func initDB() (*pgx.Conn, func(), error) {
	conn, err := pgx.Connect(context.Background(), testDBConnStr)
	if err != nil {
		return nil, nil, err
	}
	initSQLpath := filepath.Join("testdata", "init_db.sql")
	bits, err := os.ReadFile(initSQLpath)
	if err != nil {
		return conn, nil, err
	}
	if _, err = conn.Exec(context.Background(), string(bits)); err != nil {
		return conn, nil, err
	}
	return conn, teardownDB(conn), err
}

func teardownDB(conn *pgx.Conn) func() {
	return func() {
		defer conn.Close(context.Background())

		tearSQLpath := filepath.Join("testdata", "teardown_db.sql")
		bits, err := os.ReadFile(tearSQLpath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "DB cleanup read teardown sql: %s", err.Error())
			return
		}
		if _, err = conn.Exec(context.Background(), string(bits)); err != nil {
			fmt.Fprintf(os.Stderr, "DB cleanup exec teardown sql: %s", err.Error())
			return
		}
	}
}
