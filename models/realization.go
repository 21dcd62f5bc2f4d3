package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Realization 实际发生记录，只能挂在叶子快照科目上
type Realization struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	SnapshotItemID uint            `json:"snapshot_item_id" gorm:"not null;index"`
	PeriodID       uint            `json:"period_id" gorm:"not null;index"`
	Date           time.Time       `json:"date" gorm:"not null;index"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Note           string          `json:"note" gorm:"size:500"`
	CreatedBy      uint            `json:"created_by" gorm:"index"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Realization) TableName() string {
	return "budget_realizations"
}
