package service

import (
	"context"
	"log/slog"
	"time"

	"gwdiag/internal/domain"
	"gwdiag/internal/infra"
	"gwdiag/internal/infra/gateway"
	"gwdiag/internal/infra/storage"
)

// RunState names the phase a diagnostic run is in
type RunState string

const (
	StateInit            RunState = "INIT"
	StateConnecting      RunState = "CONNECTING"
	StateConnected       RunState = "CONNECTED"
	StateConnectFailed   RunState = "CONNECT_FAILED"
	StateResolving       RunState = "RESOLVING"
	StateSnapshotting    RunState = "SNAPSHOTTING"
	StateFetchingHistory RunState = "FETCHING_HISTORY"
	StateDisconnected    RunState = "DISCONNECTED"
)

// DiagnosticsRunner drives one full diagnostic run: connect, then for each
// configured instrument resolve and exercise the enabled probes, then
// disconnect. Each run uses exactly one session.
type DiagnosticsRunner struct {
	cfg    *infra.Config
	store  *storage.Storage // nil when persistence is disabled
	state  RunState
	logger *slog.Logger
}

// NewDiagnosticsRunner creates a runner for one configuration
func NewDiagnosticsRunner(cfg *infra.Config, store *storage.Storage) *DiagnosticsRunner {
	return &DiagnosticsRunner{
		cfg:    cfg,
		store:  store,
		state:  StateInit,
		logger: slog.Default().With("module", "diagnostics"),
	}
}

func (r *DiagnosticsRunner) setState(s RunState) {
	r.state = s
	r.logger.Info("Run state changed", slog.String("state", string(s)))
}

// Run executes the full diagnostic sequence and always returns a report.
// A connection failure yields a report with Connected false and no
// per-instrument results; a run deadline hit mid-sequence marks the
// remaining instruments rather than dropping them. The session is closed
// exactly once on every path that opened it.
func (r *DiagnosticsRunner) Run(ctx context.Context) *domain.DiagnosticReport {
	report := domain.NewDiagnosticReport()

	if d := r.cfg.RunDeadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	r.setState(StateConnecting)
	sess, err := gateway.Connect(ctx, gateway.ConnectConfig{
		Host:             r.cfg.Gateway.Host,
		Port:             r.cfg.Gateway.Port,
		SessionID:        r.cfg.Gateway.SessionID,
		Account:          r.cfg.Gateway.Account,
		ProbeTimeout:     r.cfg.ProbeTimeout(),
		HandshakeTimeout: r.cfg.HandshakeTimeout(),
	})
	if err != nil {
		r.setState(StateConnectFailed)
		r.logger.Error("Gateway connection failed", slog.Any("error", err))
		report.Connected = false
		report.SessionOutcome = domain.OutcomeFor(err)
		report.SessionError = err.Error()
		report.FinishedAt = time.Now()
		r.persist(report)
		return report
	}
	defer func() {
		sess.Close()
		r.setState(StateDisconnected)
	}()

	r.setState(StateConnected)
	report.Connected = true
	report.SessionOutcome = domain.OutcomeOK

	resolver := gateway.NewResolver(sess, r.cfg.ResolveAttemptTimeout())
	poller := gateway.NewPoller(sess)
	fetcher := gateway.NewFetcher(sess, r.cfg.HistoryRequestTimeout())

	for _, q := range r.cfg.Instruments {
		if ctx.Err() != nil {
			// Deadline hit: the remaining instruments are reported, not
			// silently dropped.
			report.Results = append(report.Results, r.deadlineResult(q))
			continue
		}
		report.Results = append(report.Results, r.runOne(ctx, q, report.RunID, resolver, poller, fetcher))
	}

	report.FinishedAt = time.Now()

	m := infra.GlobalMetrics.Snapshot()
	r.logger.Info("Run metrics",
		slog.Uint64("resolve_attempts", m.ResolveAttempts),
		slog.Uint64("resolve_failures", m.ResolveFailures),
		slog.Uint64("snapshot_polls", m.SnapshotPolls),
		slog.Uint64("snapshot_timeouts", m.SnapshotTimeouts),
		slog.Uint64("history_windows", m.HistoryWindows),
		slog.Uint64("history_window_retries", m.HistoryWindowRetries),
		slog.Uint64("history_window_failed", m.HistoryWindowFailed),
	)

	r.persist(report)
	return report
}

// runOne exercises the enabled probes for a single instrument
func (r *DiagnosticsRunner) runOne(ctx context.Context, q domain.InstrumentQuery, runID string, resolver *gateway.Resolver, poller *gateway.Poller, fetcher *gateway.Fetcher) domain.DiagnosticResult {
	result := domain.DiagnosticResult{Query: q}

	r.setState(StateResolving)
	contract, tried, err := resolver.Resolve(ctx, q)
	result.Resolution = domain.ResolutionOutcome{
		Outcome:         domain.OutcomeFor(err),
		Contract:        contract,
		StrategiesTried: tried,
	}
	if err != nil {
		result.Resolution.Reason = err.Error()
		r.logger.Warn("Instrument not resolved",
			slog.String("query", q.Label()),
			slog.Any("error", err),
		)
		// Downstream probes need a contract; report them as skipped
		// rather than omitting them.
		if r.cfg.Snapshot.Enabled {
			result.Snapshot = &domain.SnapshotOutcome{Outcome: domain.OutcomeSkipped}
		}
		if r.cfg.History.Enabled {
			result.History = &domain.HistoryOutcome{Outcome: domain.OutcomeSkipped}
		}
		return result
	}

	if r.store != nil {
		if serr := r.store.SaveContract(runID, q.ISIN, contract); serr != nil {
			r.logger.Warn("Failed to persist contract", slog.Any("error", serr))
		}
	}

	if r.cfg.Snapshot.Enabled {
		r.setState(StateSnapshotting)
		result.Snapshot = r.runSnapshot(ctx, contract, poller)
	}
	if r.cfg.History.Enabled {
		r.setState(StateFetchingHistory)
		result.History = r.runHistory(ctx, contract, runID, fetcher)
	}
	return result
}

func (r *DiagnosticsRunner) runSnapshot(ctx context.Context, contract *domain.ResolvedContract, poller *gateway.Poller) *domain.SnapshotOutcome {
	snap, attempts, err := poller.Poll(ctx, contract, r.cfg.PollInterval(), r.cfg.SnapshotMaxWait())
	out := &domain.SnapshotOutcome{
		Outcome:  domain.OutcomeFor(err),
		Snapshot: snap,
		Attempts: attempts,
	}
	if err != nil {
		out.Reason = err.Error()
	}
	return out
}

func (r *DiagnosticsRunner) runHistory(ctx context.Context, contract *domain.ResolvedContract, runID string, fetcher *gateway.Fetcher) *domain.HistoryOutcome {
	end := time.Now()
	start := end.AddDate(0, 0, -r.cfg.History.RangeDays)

	series, err := fetcher.Fetch(ctx, contract, start, end, r.cfg.History.BarSize, r.cfg.HistoryMaxSpan())
	out := &domain.HistoryOutcome{
		Outcome:  domain.OutcomeFor(err),
		BarCount: len(series.Bars),
		Holes:    series.Holes,
	}
	if covered, ok := series.Covered(); ok {
		out.Covered = &covered
	}
	if err != nil {
		out.Reason = err.Error()
	}

	if r.store != nil && len(series.Bars) > 0 {
		if serr := r.store.SaveBars(runID, series); serr != nil {
			r.logger.Warn("Failed to persist bars", slog.Any("error", serr))
		}
	}
	return out
}

// deadlineResult marks an instrument the run never reached
func (r *DiagnosticsRunner) deadlineResult(q domain.InstrumentQuery) domain.DiagnosticResult {
	result := domain.DiagnosticResult{
		Query:      q,
		Resolution: domain.ResolutionOutcome{Outcome: domain.OutcomeRunDeadlineExceeded},
	}
	if r.cfg.Snapshot.Enabled {
		result.Snapshot = &domain.SnapshotOutcome{Outcome: domain.OutcomeSkipped}
	}
	if r.cfg.History.Enabled {
		result.History = &domain.HistoryOutcome{Outcome: domain.OutcomeSkipped}
	}
	return result
}

func (r *DiagnosticsRunner) persist(report *domain.DiagnosticReport) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveRun(report); err != nil {
		r.logger.Warn("Failed to persist run summary", slog.Any("error", err))
	}
}
