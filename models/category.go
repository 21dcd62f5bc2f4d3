package models

import (
	"time"

	"gorm.io/gorm"
)

// 类别性质
const (
	CategoryKindIncome      = "income"
	CategoryKindExpenditure = "expenditure"
)

// Category 预算类别（收入/支出），后台维护
type Category struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"size:100;not null;index"`
	Kind     string `json:"kind" gorm:"size:20;not null;default:expenditure"`
	ScopeKey string `json:"scope_key" gorm:"size:50;index"` // 受限工作人员的负责范围（如所属堂区/区域），空表示不限
	Sort     int    `json:"sort" gorm:"default:0;index"`
	// IsActive 为 false 时填充期间预算会跳过该类别
	IsActive  bool           `json:"is_active" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Category) TableName() string {
	return "budget_categories"
}

// DefaultCategories 初始化时写入的默认类别
func DefaultCategories() []Category {
	return []Category{
		{Name: "Penerimaan", Kind: CategoryKindIncome, Sort: 10, IsActive: true},
		{Name: "Pengeluaran", Kind: CategoryKindExpenditure, Sort: 20, IsActive: true},
	}
}
