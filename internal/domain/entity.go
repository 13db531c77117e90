package domain

import (
	"time"
)

// ContractRecord is the persisted form of a resolved contract
type ContractRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"index" json:"run_id"`
	ContractID int64     `gorm:"index" json:"contract_id"`
	ISIN       string    `json:"isin"`
	Symbol     string    `json:"symbol"`
	Currency   string    `json:"currency"`
	Exchange   string    `json:"exchange"`
	CreatedAt  time.Time `json:"created_at"`
}

// BarRecord is the persisted form of one historical bar
type BarRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"index" json:"run_id"`
	ContractID int64     `gorm:"index" json:"contract_id"`
	BarSize    string    `json:"bar_size"`
	BarTime    time.Time `gorm:"index" json:"bar_time"`
	Open       string    `json:"open"`
	High       string    `json:"high"`
	Low        string    `json:"low"`
	Close      string    `json:"close"`
	Volume     string    `json:"volume"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunRecord is the persisted per-run summary
type RunRecord struct {
	RunID      string    `gorm:"primaryKey" json:"run_id"`
	Connected  bool      `json:"connected"`
	Queries    int       `json:"queries"`
	Resolved   int       `json:"resolved"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
