package gateway

import (
	"context"
	"log/slog"
	"time"

	"gwdiag/internal/domain"
	"gwdiag/internal/infra"
)

// Poller obtains one validated live-market snapshot for a resolved
// contract within a bounded total wait.
type Poller struct {
	sess   *Session
	logger *slog.Logger
}

// NewPoller creates a poller bound to one session
func NewPoller(sess *Session) *Poller {
	return &Poller{
		sess:   sess,
		logger: slog.Default().With("module", "snapshot"),
	}
}

// Poll issues a single streaming subscription, then samples it every
// pollInterval for floor(maxWait/pollInterval) attempts. It returns as soon
// as any of last/bid/ask is present and valid; expiry returns ErrNoData,
// which is an expected outcome (market closed, no entitlement), not a
// failure. The subscription is cancelled on every exit path. The attempt
// count is returned alongside for reporting.
func (p *Poller) Poll(ctx context.Context, contract *domain.ResolvedContract, pollInterval, maxWait time.Duration) (*domain.MarketSnapshot, int, error) {
	sub, err := p.sess.Subscribe(ctx, contract.ContractID)
	if err != nil {
		// Synchronous rejection: terminate immediately without waiting.
		return nil, 0, err
	}
	defer p.sess.Unsubscribe(sub)

	attempts := int(maxWait / pollInterval)
	if attempts < 1 {
		attempts = 1
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for i := 1; i <= attempts; i++ {
		select {
		case <-ctx.Done():
			return nil, i - 1, ctx.Err()
		case <-ticker.C:
			infra.GlobalMetrics.RecordSnapshotPoll()
			snap := sub.Sample()
			if snap.HasQuote() {
				p.logger.Debug("Snapshot obtained",
					slog.String("symbol", contract.Symbol),
					slog.Int("attempts", i),
				)
				return snap, i, nil
			}
		}
	}

	infra.GlobalMetrics.RecordSnapshotTimeout()
	p.logger.Info("No market data within wait",
		slog.String("symbol", contract.Symbol),
		slog.Int("attempts", attempts),
	)
	return nil, attempts, domain.NewFatalGatewayError("snapshot", domain.ErrNoData)
}
