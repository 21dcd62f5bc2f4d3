package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// MaxLevel 模板树最大层级，只有该层级的节点是叶子
	MaxLevel = 4
	// LeafLevel 叶子节点层级
	LeafLevel = MaxLevel
)

// LeafTarget 叶子节点的目标数据：频次 × 单价
type LeafTarget struct {
	Frequency int             `json:"target_frequency"`
	Unit      string          `json:"frequency_unit"`
	Amount    decimal.Decimal `json:"unit_amount"`
}

// AmountScale 金额列 decimal(20,2) 的小数位数
const AmountScale = 2

// WithinScale 金额的小数位不超过金额列，写入时不会被数据库舍入
func WithinScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// Total 叶子目标总额
func (l LeafTarget) Total() decimal.Decimal {
	return l.Amount.Mul(decimal.NewFromInt(int64(l.Frequency)))
}

// ItemNode 预算科目模板节点（与期间无关）
// 层级 1-3 为汇总节点，层级 4 为叶子节点，只有叶子节点保存目标频次/单价
type ItemNode struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	CategoryID  uint   `json:"category_id" gorm:"not null;index"`
	ParentID    *uint  `json:"parent_id" gorm:"index"`
	Code        string `json:"code" gorm:"size:50;not null;index"` // 层级编码，如 1.2.3.4，仅用于展示与一致性校验
	Level       int    `json:"level" gorm:"not null"`
	Name        string `json:"name" gorm:"size:200;not null"`
	Description string `json:"description" gorm:"size:500"`
	IsActive    bool   `json:"is_active" gorm:"not null"`

	TargetFrequency *int                `json:"target_frequency,omitempty"`
	FrequencyUnit   *string             `json:"frequency_unit,omitempty" gorm:"size:30"`
	UnitAmount      decimal.NullDecimal `json:"unit_amount" gorm:"type:decimal(20,2)"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (ItemNode) TableName() string {
	return "budget_item_templates"
}

// Leaf 返回叶子目标；非叶子层级即使数据库残留了字段也忽略
func (n ItemNode) Leaf() (LeafTarget, bool) {
	return leafFromColumns(n.Level, n.TargetFrequency, n.FrequencyUnit, n.UnitAmount)
}

// SetLeaf 写入叶子字段，传 nil 清空
func (n *ItemNode) SetLeaf(l *LeafTarget) {
	n.TargetFrequency, n.FrequencyUnit, n.UnitAmount = leafToColumns(l)
}

func leafFromColumns(level int, freq *int, unit *string, amount decimal.NullDecimal) (LeafTarget, bool) {
	if level != LeafLevel || freq == nil || !amount.Valid {
		return LeafTarget{}, false
	}
	l := LeafTarget{Frequency: *freq, Amount: amount.Decimal}
	if unit != nil {
		l.Unit = *unit
	}
	return l, true
}

func leafToColumns(l *LeafTarget) (*int, *string, decimal.NullDecimal) {
	if l == nil {
		return nil, nil, decimal.NullDecimal{}
	}
	freq := l.Frequency
	unit := l.Unit
	return &freq, &unit, decimal.NewNullDecimal(l.Amount)
}
