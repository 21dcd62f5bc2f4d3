package models

import (
	"time"
)

// 期间状态：DRAFT → ACTIVE → CLOSED
const (
	PeriodStatusDraft  = "DRAFT"
	PeriodStatusActive = "ACTIVE"
	PeriodStatusClosed = "CLOSED"
)

// PeriodStatusRank 状态顺序，用于判断是否回退
func PeriodStatusRank(status string) int {
	switch status {
	case PeriodStatusDraft:
		return 0
	case PeriodStatusActive:
		return 1
	case PeriodStatusClosed:
		return 2
	}
	return -1
}

// Period 预算期间（财政窗口），不区分类别
type Period struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:100"`
	Year      int       `json:"year" gorm:"not null;index"`
	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null"`
	Status    string    `json:"status" gorm:"size:10;not null;default:DRAFT;index"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:false"`
	// BatchID 最近一次填充的批次号，未填充时为空
	BatchID     string     `json:"batch_id" gorm:"size:36"`
	PopulatedAt *time.Time `json:"populated_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Period) TableName() string {
	return "budget_periods"
}

// Overlaps 判断两个期间日期是否重叠
func (p *Period) Overlaps(start, end time.Time) bool {
	return p.StartDate.Before(end) && start.Before(p.EndDate)
}
