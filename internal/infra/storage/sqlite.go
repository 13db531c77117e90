package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gwdiag/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists diagnostic runs to a local SQLite file so consecutive
// runs can be compared offline
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path
func NewStorage(path string) (*Storage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.RunRecord{}, &domain.ContractRecord{}, &domain.BarRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Run Operations
// ======================================================================================

// SaveRun persists the per-run summary
func (s *Storage) SaveRun(report *domain.DiagnosticReport) error {
	rec := domain.RunRecord{
		RunID:      report.RunID,
		Connected:  report.Connected,
		Queries:    len(report.Results),
		Resolved:   report.Resolved(),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	return s.db.Save(&rec).Error
}

// GetRun retrieves a run summary by id
func (s *Storage) GetRun(runID string) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	err := s.db.First(&rec, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &rec, err
}

// ======================================================================================
// Contract Operations
// ======================================================================================

// SaveContract records a successfully resolved contract under a run
func (s *Storage) SaveContract(runID, isin string, c *domain.ResolvedContract) error {
	rec := domain.ContractRecord{
		RunID:      runID,
		ContractID: c.ContractID,
		ISIN:       isin,
		Symbol:     c.Symbol,
		Currency:   c.Currency,
		Exchange:   c.Exchange,
		CreatedAt:  time.Now(),
	}
	return s.db.Create(&rec).Error
}

// GetContracts retrieves all contracts recorded under a run
func (s *Storage) GetContracts(runID string) ([]domain.ContractRecord, error) {
	var recs []domain.ContractRecord
	err := s.db.Where("run_id = ?", runID).Find(&recs).Error
	return recs, err
}

// ======================================================================================
// Bar Operations
// ======================================================================================

// SaveBars persists a fetched bar series under a run. Decimal values are
// stored as strings to avoid float round-tripping.
func (s *Storage) SaveBars(runID string, series *domain.BarSeries) error {
	if len(series.Bars) == 0 {
		return nil
	}

	recs := make([]domain.BarRecord, 0, len(series.Bars))
	now := time.Now()
	for _, b := range series.Bars {
		recs = append(recs, domain.BarRecord{
			RunID:      runID,
			ContractID: series.ContractID,
			BarSize:    series.BarSize,
			BarTime:    b.Time,
			Open:       b.Open.String(),
			High:       b.High.String(),
			Low:        b.Low.String(),
			Close:      b.Close.String(),
			Volume:     b.Volume.String(),
			CreatedAt:  now,
		})
	}
	return s.db.CreateInBatches(recs, 200).Error
}

// GetBars retrieves all bars recorded for a contract under a run, in time order
func (s *Storage) GetBars(runID string, contractID int64) ([]domain.BarRecord, error) {
	var recs []domain.BarRecord
	err := s.db.Where("run_id = ? AND contract_id = ?", runID, contractID).
		Order("bar_time asc").Find(&recs).Error
	return recs, err
}
