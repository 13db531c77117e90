package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gwdiag/internal/domain"
	"gwdiag/internal/infra"
)

// Resolver turns an InstrumentQuery into exactly one ResolvedContract via
// an ordered fallback chain, stopping at the first unambiguous hit:
//
//  1. ISIN alone, no exchange hint
//  2. (symbol, currency, preferred exchange)
//  3. (symbol, currency, primary exchange), only when the primary exchange
//     differs from the preferred one already tried
//
// The chain order is a fixed policy choice: it changes cost, never outcome.
type Resolver struct {
	sess           *Session
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// NewResolver creates a resolver bound to one session
func NewResolver(sess *Session, attemptTimeout time.Duration) *Resolver {
	return &Resolver{
		sess:           sess,
		attemptTimeout: attemptTimeout,
		logger:         slog.Default().With("module", "resolver"),
	}
}

// Resolve runs the fallback chain for one query. On failure the returned
// error wraps domain.ErrNotResolved and the strategy list reports what was
// tried, in order.
func (r *Resolver) Resolve(ctx context.Context, q domain.InstrumentQuery) (*domain.ResolvedContract, []domain.ResolutionStrategy, error) {
	var tried []domain.ResolutionStrategy

	attempt := func(strategy domain.ResolutionStrategy, req resolveRequest) *domain.ResolvedContract {
		tried = append(tried, strategy)
		infra.GlobalMetrics.RecordResolveAttempt()

		actx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		defer cancel()

		candidates, err := r.sess.resolveOnce(actx, req)
		if err != nil {
			// A timed-out or failed attempt is a zero-result attempt, not
			// fatal to the whole resolution.
			r.logger.Warn("Resolution attempt failed",
				slog.String("query", q.Label()),
				slog.String("strategy", string(strategy)),
				slog.Any("error", err),
			)
			return nil
		}

		switch len(candidates) {
		case 1:
			return &candidates[0]
		case 0:
			r.logger.Debug("No candidates",
				slog.String("query", q.Label()),
				slog.String("strategy", string(strategy)),
			)
		default:
			// Ambiguous: continue to the next strategy rather than guess.
			r.logger.Debug("Ambiguous candidates",
				slog.String("query", q.Label()),
				slog.String("strategy", string(strategy)),
				slog.Int("count", len(candidates)),
			)
		}
		return nil
	}

	if q.ISIN != "" {
		if err := ctx.Err(); err != nil {
			return nil, tried, err
		}
		if c := attempt(domain.StrategyISIN, resolveRequest{ISIN: q.ISIN}); c != nil {
			return c, tried, nil
		}
	}

	if q.Symbol != "" && q.Currency != "" {
		if err := ctx.Err(); err != nil {
			return nil, tried, err
		}
		if c := attempt(domain.StrategyPreferredExchange, resolveRequest{
			Symbol:   q.Symbol,
			Currency: q.Currency,
			Exchange: q.PreferredExchange,
		}); c != nil {
			return c, tried, nil
		}

		if q.PrimaryExchange != "" && q.PrimaryExchange != q.PreferredExchange {
			if err := ctx.Err(); err != nil {
				return nil, tried, err
			}
			if c := attempt(domain.StrategyPrimaryExchange, resolveRequest{
				Symbol:   q.Symbol,
				Currency: q.Currency,
				Exchange: q.PrimaryExchange,
			}); c != nil {
				return c, tried, nil
			}
		}
	}

	// A run deadline that fired during the last attempt is a deadline,
	// not a verdict on the descriptor.
	if err := ctx.Err(); err != nil {
		return nil, tried, err
	}

	infra.GlobalMetrics.RecordResolveFailure()
	return nil, tried, domain.NewFatalGatewayError("resolve",
		fmt.Errorf("%w: %s (strategies tried: %v)", domain.ErrNotResolved, q.Label(), tried))
}
