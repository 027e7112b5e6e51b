package bankgrow

import (
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Account is a single-owner monetary account. Balance never goes negative.
// GrowthCeiling caps what the auto-growth sweep may reach; manual deposits
// may exceed it.
type Account struct {
	UserID        snowflake.ID
	Balance       decimal.Decimal
	GrowthCeiling decimal.Decimal
}

type CreateAccountReq struct {
	UserID        snowflake.ID
	Balance       decimal.Decimal `json:"balance"`
	GrowthCeiling decimal.Decimal `json:"growth_ceiling"`
}

type ChargeReq struct {
	Amount decimal.Decimal `json:"amount"`
	UserID snowflake.ID
}

type TransferReq struct {
	Amount     decimal.Decimal `json:"amount"`
	FromUserID snowflake.ID
	ToUserID   snowflake.ID
}

type GrowReq struct {
	Rate   decimal.Decimal `json:"rate"`
	UserID snowflake.ID
}

type BalanceReq struct {
	UserID snowflake.ID
}

type StatementReq struct {
	UserID snowflake.ID
}

type Service interface {
	CreateAccount(CreateAccountReq) (*Account, error)
	Deposit(ChargeReq) (*decimal.Decimal, error)
	Withdraw(ChargeReq) (*decimal.Decimal, error)
	Transfer(TransferReq) error
	Grow(GrowReq) (*decimal.Decimal, error)
	Balance(BalanceReq) (*decimal.Decimal, error)
	Accounts() ([]Account, error)
	Statement(io.Writer, StatementReq) error
}

func NewService(repo Repository, log *zerolog.Logger) (*serviceImpl, error) {
	return &serviceImpl{
		repo: repo,
		log:  log,
	}, nil
}

type serviceImpl struct {
	repo Repository
	log  *zerolog.Logger
}

var (
	_ Service = (*serviceImpl)(nil)

	one = decimal.NewFromInt(1)
)

func (s *serviceImpl) CreateAccount(req CreateAccountReq) (*Account, error) {
	if req.Balance.IsNegative() {
		return nil, ErrBadRequest{Fields: map[string]string{"balance": "must not be negative"}}
	}
	if req.GrowthCeiling.IsNegative() {
		return nil, ErrBadRequest{Fields: map[string]string{"growth_ceiling": "must not be negative"}}
	}
	if err := s.repo.CreateAccount(req); err != nil {
		s.log.Err(err).Int64("user_id", req.UserID.Int64()).Msg("create account failed")
		return nil, err
	}
	acct := &Account{
		UserID:        req.UserID,
		Balance:       req.Balance,
		GrowthCeiling: req.GrowthCeiling,
	}
	return acct, nil
}

// Deposit adds the amount unconditionally; deposits cannot fail on business
// grounds. Not idempotent: a retried request deposits again.
func (s *serviceImpl) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrBadRequest{Fields: map[string]string{"amount": "must be positive"}}
	}
	bal, err := s.repo.Deposit(req.Amount, req.UserID)
	if err != nil {
		s.log.Err(err).Int64("user_id", req.UserID.Int64()).Msg("deposit update failed")
		return nil, err
	}
	if bal == nil {
		// The only predicate on a deposit is row existence.
		return nil, ErrNotFound{UserID: req.UserID.Int64()}
	}
	return bal, nil
}

// Withdraw subtracts the amount with a `balance >= amount` predicate. A
// zero-row result is reclassified against a fresh read: the business
// precondition is checked before declaring a race, never the other way
// around.
func (s *serviceImpl) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrBadRequest{Fields: map[string]string{"amount": "must be positive"}}
	}
	bal, err := s.repo.Withdraw(req.Amount, req.UserID)
	if err != nil {
		s.log.Err(err).Int64("user_id", req.UserID.Int64()).Msg("withdraw update failed")
		return nil, err
	}
	if bal == nil {
		return nil, s.classifyWithdraw(req.UserID, req.Amount)
	}
	return bal, nil
}

// classifyWithdraw decides why a conditional withdraw affected zero rows.
func (s *serviceImpl) classifyWithdraw(userID snowflake.ID, amount decimal.Decimal) error {
	acct, err := s.repo.GetAccount(userID)
	if err != nil {
		return err
	}
	if acct.Balance.LessThan(amount) {
		return ErrInsufficientFunds{UserID: userID.Int64()}
	}
	return ErrConcurrentModification{UserID: userID.Int64()}
}

// Transfer debits the source first and credits the destination only after
// the debit succeeded, so money is never created. There is a narrow window
// where a crash between the two updates loses the credit; accepted by
// design instead of a two-phase commit.
func (s *serviceImpl) Transfer(req TransferReq) error {
	if !req.Amount.IsPositive() {
		return ErrBadRequest{Fields: map[string]string{"amount": "must be positive"}}
	}
	if req.FromUserID == req.ToUserID {
		return ErrBadRequest{Fields: map[string]string{"to_user_id": "cannot transfer to the same account"}}
	}

	bal, err := s.repo.Withdraw(req.Amount, req.FromUserID)
	if err != nil {
		s.log.Err(err).Int64("from_user_id", req.FromUserID.Int64()).Msg("transfer debit failed")
		return err
	}
	if bal == nil {
		return s.classifyWithdraw(req.FromUserID, req.Amount)
	}

	bal, err = s.repo.Deposit(req.Amount, req.ToUserID)
	if err != nil {
		s.log.Err(err).
			Int64("from_user_id", req.FromUserID.Int64()).
			Int64("to_user_id", req.ToUserID.Int64()).
			Msg("transfer credit failed after debit")
		return err
	}
	if bal == nil {
		return ErrNotFound{UserID: req.ToUserID.Int64()}
	}
	return nil
}

// Grow applies a bounded percentage increase. The recompute-and-clamp runs
// inside a single conditional update so the arithmetic and the ceiling check
// share one atomic round trip. Clamping to the ceiling is a success;
// ErrCeilingExceeded is raised only when there is no headroom at all.
func (s *serviceImpl) Grow(req GrowReq) (*decimal.Decimal, error) {
	if !req.Rate.IsPositive() {
		return nil, ErrBadRequest{Fields: map[string]string{"rate": "must be positive"}}
	}

	acct, err := s.repo.GetAccount(req.UserID)
	if err != nil {
		return nil, err
	}
	if acct.GrowthCeiling.IsNegative() {
		return nil, ErrBadRequest{Fields: map[string]string{"growth_ceiling": "must not be negative"}}
	}

	bal, err := s.repo.GrowBalance(req.Rate, req.UserID)
	if err != nil {
		s.log.Err(err).Int64("user_id", req.UserID.Int64()).Msg("grow update failed")
		return nil, err
	}
	if bal == nil {
		return nil, s.classifyGrow(req.UserID, req.Rate)
	}
	return bal, nil
}

// classifyGrow decides why a conditional grow affected zero rows: if the
// naive (unclamped) target exceeds the ceiling the account has no headroom,
// a business no-op; otherwise a concurrent writer got there first.
func (s *serviceImpl) classifyGrow(userID snowflake.ID, rate decimal.Decimal) error {
	acct, err := s.repo.GetAccount(userID)
	if err != nil {
		return err
	}
	naive := acct.Balance.Mul(one.Add(rate))
	if naive.GreaterThan(acct.GrowthCeiling) {
		return ErrCeilingExceeded{UserID: userID.Int64()}
	}
	return ErrConcurrentModification{UserID: userID.Int64()}
}

func (s *serviceImpl) Balance(req BalanceReq) (*decimal.Decimal, error) {
	acct, err := s.repo.GetAccount(req.UserID)
	if err != nil {
		return nil, err
	}
	return &acct.Balance, nil
}

func (s *serviceImpl) Accounts() ([]Account, error) {
	accts, err := s.repo.ListAccounts()
	if err != nil {
		s.log.Err(err).Msg("list accounts failed")
		return nil, err
	}
	return accts, nil
}

func (s *serviceImpl) Statement(w io.Writer, req StatementReq) error {
	acct, err := s.repo.GetAccount(req.UserID)
	if err != nil {
		return err
	}
	if err = writeStatementPDF(w, acct); err != nil {
		s.log.Err(err).Int64("user_id", req.UserID.Int64()).Msg("statement rendering failed")
		return err
	}
	return nil
}
