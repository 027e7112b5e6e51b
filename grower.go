package bankgrow

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultGrowInterval = 30 * time.Second
	defaultGrowThrottle = time.Second
)

// Grower periodically applies the auto-growth adjustment to every account
// still below its ceiling. It drives the same Service primitives as caller
// traffic, so it races them through the conditional-update protocol rather
// than holding any lock. One failed account never aborts a sweep; a
// transient conflict simply waits for the next tick.
type Grower struct {
	svc      Service
	rate     decimal.Decimal
	interval time.Duration
	throttle time.Duration
	log      *zerolog.Logger
}

func NewGrower(svc Service, rate decimal.Decimal, interval, throttle time.Duration, log *zerolog.Logger) (*Grower, error) {
	if !rate.IsPositive() {
		return nil, ErrBadRequest{Fields: map[string]string{"rate": "must be positive"}}
	}
	if interval <= 0 {
		interval = defaultGrowInterval
	}
	if throttle <= 0 {
		throttle = defaultGrowThrottle
	}
	return &Grower{
		svc:      svc,
		rate:     rate,
		interval: interval,
		throttle: throttle,
		log:      log,
	}, nil
}

// Run blocks until ctx is canceled. No sweep state survives a tick; a sweep
// interrupted by cancellation or by per-account failures is not resumed.
func (g *Grower) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.log.Info().
		Str("rate", g.rate.String()).
		Dur("interval", g.interval).
		Msg("auto-growth scheduler started")

	for {
		select {
		case <-ctx.Done():
			g.log.Info().Msg("auto-growth scheduler stopped")
			return
		case <-ticker.C:
			g.Sweep(ctx)
		}
	}
}

// Sweep grows every eligible account once, pausing between accounts to
// bound write load on the store.
func (g *Grower) Sweep(ctx context.Context) {
	accts, err := g.svc.Accounts()
	if err != nil {
		g.log.Err(err).Msg("sweep aborted: listing accounts failed")
		return
	}

	for _, acct := range accts {
		if !acct.Balance.IsPositive() || acct.Balance.GreaterThanOrEqual(acct.GrowthCeiling) {
			continue
		}

		if _, err := g.svc.Grow(GrowReq{UserID: acct.UserID, Rate: g.rate}); err != nil {
			g.log.Err(err).
				Int64("user_id", acct.UserID.Int64()).
				Msg("error growing account")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(g.throttle):
		}
	}
}
