package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outcome names a non-nominal result state. Nothing is silently swallowed:
// every failure mode a caller can hit has a named outcome, never an empty
// value standing in for one.
type Outcome string

const (
	OutcomeOK                  Outcome = "OK"
	OutcomeGatewayUnreachable  Outcome = "GATEWAY_UNREACHABLE"
	OutcomeHandshakeTimeout    Outcome = "HANDSHAKE_TIMEOUT"
	OutcomeHandshakeRejected   Outcome = "HANDSHAKE_REJECTED"
	OutcomeNotResolved         Outcome = "NOT_RESOLVED"
	OutcomeSubscriptionDenied  Outcome = "SUBSCRIPTION_REJECTED"
	OutcomeNoData              Outcome = "NO_DATA"
	OutcomeHistoryUnavailable  Outcome = "HISTORY_UNAVAILABLE"
	OutcomeRunDeadlineExceeded Outcome = "RUN_DEADLINE_EXCEEDED"
	OutcomeInterrupted         Outcome = "INTERRUPTED"
	OutcomeSkipped             Outcome = "SKIPPED"
)

// OutcomeFor maps an error to its reportable outcome
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrGatewayUnreachable):
		return OutcomeGatewayUnreachable
	case errors.Is(err, ErrHandshakeTimeout):
		return OutcomeHandshakeTimeout
	case errors.Is(err, ErrSessionInUse), errors.Is(err, ErrHandshakeRejected):
		return OutcomeHandshakeRejected
	case errors.Is(err, ErrNotResolved):
		return OutcomeNotResolved
	case errors.Is(err, ErrSubscriptionRejected):
		return OutcomeSubscriptionDenied
	case errors.Is(err, ErrNoData):
		return OutcomeNoData
	case errors.Is(err, ErrHistoryUnavailable):
		return OutcomeHistoryUnavailable
	case errors.Is(err, ErrRunDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return OutcomeRunDeadlineExceeded
	case errors.Is(err, context.Canceled):
		// Operator interrupt, typically Ctrl-C mid-run.
		return OutcomeInterrupted
	default:
		return Outcome("ERROR")
	}
}

// ResolutionOutcome records how resolution went for one query
type ResolutionOutcome struct {
	Outcome         Outcome              `json:"outcome"`
	Contract        *ResolvedContract    `json:"contract,omitempty"`
	StrategiesTried []ResolutionStrategy `json:"strategies_tried,omitempty"`
	Reason          string               `json:"reason,omitempty"`
}

// SnapshotOutcome records how the snapshot poll went for one contract
type SnapshotOutcome struct {
	Outcome  Outcome         `json:"outcome"`
	Snapshot *MarketSnapshot `json:"snapshot,omitempty"`
	Attempts int             `json:"attempts"`
	Reason   string          `json:"reason,omitempty"`
}

// HistoryOutcome records how the history fetch went for one contract
type HistoryOutcome struct {
	Outcome  Outcome `json:"outcome"`
	BarCount int     `json:"bar_count"`
	Covered  *Window `json:"covered,omitempty"`
	Holes    []Hole  `json:"holes,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// DiagnosticResult is the per-instrument record of one run
type DiagnosticResult struct {
	Query      InstrumentQuery    `json:"query"`
	Resolution ResolutionOutcome  `json:"resolution"`
	Snapshot   *SnapshotOutcome   `json:"snapshot,omitempty"`
	History    *HistoryOutcome    `json:"history,omitempty"`
}

// DiagnosticReport aggregates one run: a session-level outcome plus
// per-instrument results in query order.
type DiagnosticReport struct {
	RunID          string             `json:"run_id"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	Connected      bool               `json:"connected"`
	SessionOutcome Outcome            `json:"session_outcome"`
	SessionError   string             `json:"session_error,omitempty"`
	Results        []DiagnosticResult `json:"results"`
}

// NewDiagnosticReport creates an empty report with a fresh run id
func NewDiagnosticReport() *DiagnosticReport {
	return &DiagnosticReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// Resolved counts results that reached a resolved contract
func (r *DiagnosticReport) Resolved() int {
	n := 0
	for _, res := range r.Results {
		if res.Resolution.Contract != nil {
			n++
		}
	}
	return n
}
