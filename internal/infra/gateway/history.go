package gateway

import (
	"context"
	"log/slog"
	"time"

	"gwdiag/internal/domain"
	"gwdiag/internal/infra"
)

// Fetcher obtains a complete, gap-free bar series for a requested window,
// working around the gateway's maximum span per historical request by
// issuing chronological sub-window requests and concatenating the results.
type Fetcher struct {
	sess           *Session
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewFetcher creates a history fetcher bound to one session
func NewFetcher(sess *Session, requestTimeout time.Duration) *Fetcher {
	return &Fetcher{
		sess:           sess,
		requestTimeout: requestTimeout,
		logger:         slog.Default().With("module", "history"),
	}
}

// Fetch partitions [start, end] into sub-windows no larger than maxSpan and
// requests each in chronological order. Boundary-duplicate bars are dropped
// by timestamp equality. An empty sub-window is recorded as a hole but does
// not abort the rest: partial data beats none for diagnostics. A failing
// sub-window is retried once with identical parameters before being
// recorded as a failed hole; if every sub-window fails the whole operation
// surfaces as a HistoryError with the failure counts.
//
// The returned series is always non-nil and materialized; on error it holds
// whatever was fetched before the error.
func (f *Fetcher) Fetch(ctx context.Context, contract *domain.ResolvedContract, start, end time.Time, barSize string, maxSpan time.Duration) (*domain.BarSeries, error) {
	series := &domain.BarSeries{
		ContractID: contract.ContractID,
		BarSize:    barSize,
		Requested:  domain.Window{Start: start, End: end},
		FetchedAt:  time.Now(),
	}

	windows := domain.PartitionWindows(start, end, maxSpan)
	if len(windows) == 0 {
		return series, nil
	}

	cal := infra.CalendarFor(contract.Exchange)

	failed := 0
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			// Run deadline hit mid-fetch: abandon, hand back the partial series.
			return series, err
		}

		bars, err := f.fetchWindow(ctx, contract.ContractID, w, barSize)
		if err != nil && ctx.Err() == nil {
			infra.GlobalMetrics.RecordHistoryWindowRetry()
			f.logger.Warn("Sub-window request failed, retrying once",
				slog.String("symbol", contract.Symbol),
				slog.Time("start", w.Start),
				slog.Time("end", w.End),
				slog.Any("error", err),
			)
			// Give the gateway's pacing limiter a beat before the retry.
			select {
			case <-ctx.Done():
				return series, ctx.Err()
			case <-time.After(infra.CalculateBackoff(0)):
			}
			bars, err = f.fetchWindow(ctx, contract.ContractID, w, barSize)
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return series, cerr
			}
			infra.GlobalMetrics.RecordHistoryWindowFailed()
			failed++
			series.Holes = append(series.Holes, domain.Hole{Window: w, Failed: true})
			continue
		}

		if len(bars) == 0 {
			series.Holes = append(series.Holes, domain.Hole{
				Window: w,
				Benign: cal.AllNonTrading(w.Start, w.End),
			})
			continue
		}

		series.Append(bars)
	}

	if failed == len(windows) {
		return series, &domain.HistoryError{Failed: failed, Succeeded: 0}
	}

	f.logger.Debug("History fetched",
		slog.String("symbol", contract.Symbol),
		slog.Int("bars", len(series.Bars)),
		slog.Int("windows", len(windows)),
		slog.Int("failed_windows", failed),
	)
	return series, nil
}

// fetchWindow issues one bounded sub-window request
func (f *Fetcher) fetchWindow(ctx context.Context, contractID int64, w domain.Window, barSize string) ([]domain.Bar, error) {
	infra.GlobalMetrics.RecordHistoryWindow()

	rctx, cancel := context.WithTimeout(ctx, f.requestTimeout)
	defer cancel()

	return f.sess.fetchBars(rctx, contractID, w, barSize)
}
