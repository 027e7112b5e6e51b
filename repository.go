package bankgrow

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Repository is the store-facing contract of the ledger engine. The three
// mutators are conditional atomic updates: a non-nil balance is the value
// after a successful update, a nil balance with a nil error means the
// predicate matched zero rows and the caller must reclassify the failure
// against a fresh GetAccount read.
type Repository interface {
	CreateAccount(req CreateAccountReq) error
	Deposit(amount decimal.Decimal, userID snowflake.ID) (*decimal.Decimal, error)
	Withdraw(amount decimal.Decimal, userID snowflake.ID) (*decimal.Decimal, error)
	GrowBalance(rate decimal.Decimal, userID snowflake.ID) (*decimal.Decimal, error)
	GetAccount(userID snowflake.ID) (*Account, error)
	ListAccounts() ([]Account, error)
}
