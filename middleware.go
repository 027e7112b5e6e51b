package bankgrow

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
)

type Middleware func(Service) Service

//
// Read-caching middleware
//

// cachingMiddleware keeps a short-lived cache of read results and flushes it
// wholesale after every successful mutation. This is deliberately coarse:
// the mutators recompute balances in the store, so any cached read may be
// stale the moment a write lands anywhere.
type cachingMiddleware struct {
	next Service
	c    *cache.Cache
}

var (
	_ Service = (*cachingMiddleware)(nil)
)

const accountsCacheKey = "accounts"

func NewCachingMiddleware(c *cache.Cache) Middleware {
	return func(next Service) Service {
		return &cachingMiddleware{
			next: next,
			c:    c,
		}
	}
}

func (m *cachingMiddleware) CreateAccount(req CreateAccountReq) (*Account, error) {
	acct, err := m.next.CreateAccount(req)
	if err == nil {
		m.c.Flush()
	}
	return acct, err
}

func (m *cachingMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	bal, err := m.next.Deposit(req)
	if err == nil {
		m.c.Flush()
	}
	return bal, err
}

func (m *cachingMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	bal, err := m.next.Withdraw(req)
	if err == nil {
		m.c.Flush()
	}
	return bal, err
}

func (m *cachingMiddleware) Transfer(req TransferReq) error {
	err := m.next.Transfer(req)
	if err == nil {
		m.c.Flush()
	}
	return err
}

func (m *cachingMiddleware) Grow(req GrowReq) (*decimal.Decimal, error) {
	bal, err := m.next.Grow(req)
	if err == nil {
		m.c.Flush()
	}
	return bal, err
}

func (m *cachingMiddleware) Balance(req BalanceReq) (*decimal.Decimal, error) {
	key := "balance:" + req.UserID.String()
	if v, ok := m.c.Get(key); ok {
		bal := v.(decimal.Decimal)
		return &bal, nil
	}
	bal, err := m.next.Balance(req)
	if err != nil {
		return nil, err
	}
	m.c.Set(key, *bal, cache.DefaultExpiration)
	return bal, nil
}

func (m *cachingMiddleware) Accounts() ([]Account, error) {
	if v, ok := m.c.Get(accountsCacheKey); ok {
		return v.([]Account), nil
	}
	accts, err := m.next.Accounts()
	if err != nil {
		return nil, err
	}
	m.c.Set(accountsCacheKey, accts, cache.DefaultExpiration)
	return accts, nil
}

func (m *cachingMiddleware) Statement(w io.Writer, req StatementReq) error {
	return m.next.Statement(w, req)
}

//
// Rate limiting middlewares
//

// limitMiddleware bounds the number of in-flight requests per operation with
// weighted semaphores. Acquisition waits at most acquireTimeout before the
// request is shed with ErrServiceUnavailable.
type limitMiddleware struct {
	next           Service
	limits         *ServiceLimits
	acquireTimeout time.Duration
}

var (
	_ Service = (*limitMiddleware)(nil)
)

type ServiceLimits struct {
	CreateAccount *semaphore.Weighted
	Deposit       *semaphore.Weighted
	Withdraw      *semaphore.Weighted
	Transfer      *semaphore.Weighted
	Grow          *semaphore.Weighted
	Balance       *semaphore.Weighted
	Accounts      *semaphore.Weighted
	Statement     *semaphore.Weighted
}

func NewLimitMiddleware(limits *ServiceLimits, acquireTimeout time.Duration) Middleware {
	return func(next Service) Service {
		return &limitMiddleware{
			next:           next,
			limits:         limits,
			acquireTimeout: acquireTimeout,
		}
	}
}

func (l *limitMiddleware) acquire(sem *semaphore.Weighted) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.acquireTimeout)
	defer cancel()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ErrServiceUnavailable
	}
	return func() { sem.Release(1) }, nil
}

func (l *limitMiddleware) CreateAccount(req CreateAccountReq) (*Account, error) {
	release, err := l.acquire(l.limits.CreateAccount)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.CreateAccount(req)
}

func (l *limitMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Deposit)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Deposit(req)
}

func (l *limitMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Withdraw)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Withdraw(req)
}

func (l *limitMiddleware) Transfer(req TransferReq) error {
	release, err := l.acquire(l.limits.Transfer)
	if err != nil {
		return err
	}
	defer release()
	return l.next.Transfer(req)
}

func (l *limitMiddleware) Grow(req GrowReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Grow)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Grow(req)
}

func (l *limitMiddleware) Balance(req BalanceReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Balance)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Balance(req)
}

func (l *limitMiddleware) Accounts() ([]Account, error) {
	release, err := l.acquire(l.limits.Accounts)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Accounts()
}

func (l *limitMiddleware) Statement(w io.Writer, req StatementReq) error {
	release, err := l.acquire(l.limits.Statement)
	if err != nil {
		return err
	}
	defer release()
	return l.next.Statement(w, req)
}

type ServiceBreaker struct {
	CreateAccount *gobreaker.TwoStepCircuitBreaker[*Account]
	Deposit       *gobreaker.TwoStepCircuitBreaker[*decimal.Decimal]
	Withdraw      *gobreaker.TwoStepCircuitBreaker[*decimal.Decimal]
	Transfer      *gobreaker.TwoStepCircuitBreaker[interface{}]
	Grow          *gobreaker.TwoStepCircuitBreaker[*decimal.Decimal]
	Balance       *gobreaker.TwoStepCircuitBreaker[*decimal.Decimal]
	Accounts      *gobreaker.TwoStepCircuitBreaker[[]Account]
	Statement     *gobreaker.TwoStepCircuitBreaker[interface{}]
}

// circuitBreakMiddleware trips on infrastructure failures only. Business
// rejections and conflicts are expected outcomes of the conditional-update
// protocol and must not open the circuit.
type circuitBreakMiddleware struct {
	next  Service
	brkrs *ServiceBreaker
}

var (
	_ Service = (*circuitBreakMiddleware)(nil)
)

func NewCircuitBreakMiddleware(brkrs *ServiceBreaker) Middleware {
	return func(next Service) Service {
		return &circuitBreakMiddleware{
			next:  next,
			brkrs: brkrs,
		}
	}
}

// countsAsFailure reports whether an error should be held against the
// circuit. Validation errors, business rejections, and lost races are not
// infrastructure failures.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var (
		ebr ErrBadRequest
		enf ErrNotFound
		eif ErrInsufficientFunds
		ecm ErrConcurrentModification
		ece ErrCeilingExceeded
	)
	if errors.As(err, &ebr) || errors.As(err, &enf) ||
		errors.As(err, &eif) || errors.As(err, &ecm) || errors.As(err, &ece) {
		return false
	}
	return true
}

func (c *circuitBreakMiddleware) CreateAccount(req CreateAccountReq) (*Account, error) {
	done, err := c.brkrs.CreateAccount.Allow()
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	acct, err := c.next.CreateAccount(req)
	done(!countsAsFailure(err))
	return acct, err
}

func (c *circuitBreakMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	done, err := c.brkrs.Deposit.Allow()
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	bal, err := c.next.Deposit(req)
	done(!countsAsFailure(err))
	return bal, err
}

func (c *circuitBreakMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	done, err := c.brkrs.Withdraw.Allow()
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	bal, err := c.next.Withdraw(req)
	done(!countsAsFailure(err))
	return bal, err
}

func (c *circuitBreakMiddleware) Transfer(req TransferReq) error {
	done, err := c.brkrs.Transfer.Allow()
	if err != nil {
		return ErrServiceUnavailable
	}
	err = c.next.Transfer(req)
	done(!countsAsFailure(err))
	return err
}

func (c *circuitBreakMiddleware) Grow(req GrowReq) (*decimal.Decimal, error) {
	done, err := c.brkrs.Grow.Allow()
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	bal, err := c.next.Grow(req)
	done(!countsAsFailure(err))
	return bal, err
}

func (c *circuitBreakMiddleware) Balance(req BalanceReq) (*decimal.Decimal, error) {
	done, err := c.brkrs.Balance.Allow()
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	bal, err := c.next.Balance(req)
	done(!countsAsFailure(err))
	return bal, err
}

func (c *circuitBreakMiddleware) Accounts() ([]Account, error) {
	done, err := c.brkrs.Accounts.Allow()
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	accts, err := c.next.Accounts()
	done(!countsAsFailure(err))
	return accts, err
}

func (c *circuitBreakMiddleware) Statement(w io.Writer, req StatementReq) error {
	done, err := c.brkrs.Statement.Allow()
	if err != nil {
		return ErrServiceUnavailable
	}
	err = c.next.Statement(w, req)
	done(!countsAsFailure(err))
	return err
}
