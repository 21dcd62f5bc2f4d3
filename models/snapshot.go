package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotItem 期间预算科目：填充时从模板复制的自包含副本，之后不受模板修改影响
type SnapshotItem struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	PeriodID       uint   `json:"period_id" gorm:"not null;index"`
	BatchID        string `json:"batch_id" gorm:"size:36;not null;index"`
	TemplateItemID uint   `json:"template_item_id" gorm:"not null;index"`
	CategoryID     uint   `json:"category_id" gorm:"not null;index"`
	ParentID       *uint  `json:"parent_id" gorm:"index"` // 指向同一期间内的快照父节点
	Code           string `json:"code" gorm:"size:50;not null"`
	Level          int    `json:"level" gorm:"not null"`
	Name           string `json:"name" gorm:"size:200;not null"`
	Description    string `json:"description" gorm:"size:500"`

	TargetFrequency *int                `json:"target_frequency,omitempty"`
	FrequencyUnit   *string             `json:"frequency_unit,omitempty" gorm:"size:30"`
	UnitAmount      decimal.NullDecimal `json:"unit_amount" gorm:"type:decimal(20,2)"`
	TotalTarget     decimal.Decimal     `json:"total_target" gorm:"type:decimal(20,2);not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (SnapshotItem) TableName() string {
	return "budget_snapshot_items"
}

// Leaf 返回叶子目标
func (s SnapshotItem) Leaf() (LeafTarget, bool) {
	return leafFromColumns(s.Level, s.TargetFrequency, s.FrequencyUnit, s.UnitAmount)
}

// IsLeaf 只有层级 4 且带目标字段的快照科目可以记录实际
func (s SnapshotItem) IsLeaf() bool {
	_, ok := s.Leaf()
	return ok
}

// SetLeaf 写入叶子字段
func (s *SnapshotItem) SetLeaf(l *LeafTarget) {
	s.TargetFrequency, s.FrequencyUnit, s.UnitAmount = leafToColumns(l)
}
