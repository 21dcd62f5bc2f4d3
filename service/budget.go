package service

import (
	"context"
	"errors"

	"parish/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// store 各组件共享的数据库、策略与期间锁
type store struct {
	db     *gorm.DB
	policy Policy
	locks  *periodLocks
}

// Budget 预算引擎的全部组件
type Budget struct {
	Tree      *ItemTree
	Periods   *PeriodStore
	Populator *Populator
	Ledger    *Ledger
	Reporter  *Reporter
}

// New 创建预算引擎
func New(db *gorm.DB, policy Policy) *Budget {
	s := &store{db: db, policy: policy, locks: newPeriodLocks()}
	return &Budget{
		Tree:      &ItemTree{store: s},
		Periods:   &PeriodStore{store: s},
		Populator: &Populator{store: s},
		Ledger:    &Ledger{store: s},
		Reporter:  &Reporter{store: s},
	}
}

// Policy 当前策略
func (b *Budget) Policy() Policy {
	return b.Tree.store.policy
}

func (s *store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// first 按主键读取，不存在时返回 NotFound
func first(db *gorm.DB, dest interface{}, entity string, id uint) error {
	if id == 0 {
		return notFound(entity, id)
	}
	if err := db.First(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(entity, id)
		}
		return dbError("load_"+entity, err)
	}
	return nil
}

// lockPeriod 在事务内锁定期间行（SQLite 忽略行锁，由库级写锁串行）
func lockPeriod(tx *gorm.DB, id uint) (*models.Period, error) {
	var p models.Period
	if err := first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), &p, EntityPeriod, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// checkWritable 已关闭期间拒绝写入（受策略控制）
func (s *store) checkWritable(p *models.Period) error {
	if s.policy.EnforceClosedPeriod && p.Status == models.PeriodStatusClosed {
		return newError(KindPeriodClosed, EntityPeriod, p.ID, "期间已关闭，不能再写入")
	}
	return nil
}
