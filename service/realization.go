package service

import (
	"context"
	"strings"
	"time"

	"parish/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger 实际记录台账
type Ledger struct {
	store *store
}

// RealizationInput 记录实际
type RealizationInput struct {
	SnapshotItemID uint            `json:"snapshot_item_id"`
	Date           time.Time       `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note"`
}

// RealizationUpdate 修改实际
type RealizationUpdate struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func validateRealization(id uint, date time.Time, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fieldError(KindNegativeAmount, EntityRealization, id, "amount", "金额不能为负数: %s", amount.String())
	}
	if !models.WithinScale(amount) {
		return fieldError(KindInvalidInput, EntityRealization, id, "amount", "金额最多 %d 位小数: %s", models.AmountScale, amount.String())
	}
	if date.IsZero() {
		return fieldError(KindInvalidInput, EntityRealization, id, "date", "日期不能为空")
	}
	return nil
}

// guardTarget 只能对层级 4 的叶子科目写入实际，并检查期间状态与操作范围
func (l *Ledger) guardTarget(tx *gorm.DB, actor Actor, item *models.SnapshotItem, period *models.Period) error {
	if !item.IsLeaf() {
		return newError(KindInvalidTarget, EntitySnapshotItem, item.ID,
			"科目 %s 是层级 %d 的汇总科目，只能对层级 %d 的叶子科目记录实际", item.Code, item.Level, models.LeafLevel)
	}
	if err := l.store.checkWritable(period); err != nil {
		return err
	}
	var cat models.Category
	if err := tx.Unscoped().First(&cat, item.CategoryID).Error; err != nil {
		return dbError("load_category", err)
	}
	return authorizeScope(actor, &cat)
}

// lockedTx 先拿期间写锁再开启事务，事务内再次锁定期间行
func (l *Ledger) lockedTx(ctx context.Context, periodID uint, fn func(tx *gorm.DB, period *models.Period) error) error {
	lock := l.store.locks.get(periodID)
	lock.Lock()
	defer lock.Unlock()

	return l.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		period, err := lockPeriod(tx, periodID)
		if err != nil {
			return err
		}
		return fn(tx, period)
	})
}

// RecordRealization 记录一笔实际
// 同一科目同一天允许多笔，全部计入合计。
func (l *Ledger) RecordRealization(ctx context.Context, actor Actor, in RealizationInput) (*models.Realization, error) {
	if err := l.store.policy.authorizeWrite(actor); err != nil {
		return nil, err
	}
	if err := validateRealization(0, in.Date, in.Amount); err != nil {
		return nil, err
	}

	var peek models.SnapshotItem
	if err := first(l.store.conn(ctx), &peek, EntitySnapshotItem, in.SnapshotItemID); err != nil {
		return nil, err
	}

	var rec models.Realization
	err := l.lockedTx(ctx, peek.PeriodID, func(tx *gorm.DB, period *models.Period) error {
		// 等锁期间可能被覆盖填充删掉
		var item models.SnapshotItem
		if err := first(tx, &item, EntitySnapshotItem, in.SnapshotItemID); err != nil {
			return err
		}
		if err := l.guardTarget(tx, actor, &item, period); err != nil {
			return err
		}
		rec = models.Realization{
			SnapshotItemID: item.ID,
			PeriodID:       item.PeriodID,
			Date:           in.Date,
			Amount:         in.Amount,
			Note:           strings.TrimSpace(in.Note),
			CreatedBy:      actor.UserID,
		}
		return dbError("create_realization", tx.Create(&rec).Error)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRealization 修改一笔实际，校验与记录时相同
func (l *Ledger) UpdateRealization(ctx context.Context, actor Actor, id uint, in RealizationUpdate) (*models.Realization, error) {
	if err := l.store.policy.authorizeWrite(actor); err != nil {
		return nil, err
	}
	if err := validateRealization(id, in.Date, in.Amount); err != nil {
		return nil, err
	}

	var peek models.Realization
	if err := first(l.store.conn(ctx), &peek, EntityRealization, id); err != nil {
		return nil, err
	}

	var rec models.Realization
	err := l.lockedTx(ctx, peek.PeriodID, func(tx *gorm.DB, period *models.Period) error {
		if err := first(tx, &rec, EntityRealization, id); err != nil {
			return err
		}
		var item models.SnapshotItem
		if err := first(tx, &item, EntitySnapshotItem, rec.SnapshotItemID); err != nil {
			return err
		}
		if err := l.guardTarget(tx, actor, &item, period); err != nil {
			return err
		}
		rec.Date = in.Date
		rec.Amount = in.Amount
		rec.Note = strings.TrimSpace(in.Note)
		return dbError("update_realization", tx.Save(&rec).Error)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRealization 删除一笔实际
func (l *Ledger) DeleteRealization(ctx context.Context, actor Actor, id uint) error {
	if err := l.store.policy.authorizeWrite(actor); err != nil {
		return err
	}
	var peek models.Realization
	if err := first(l.store.conn(ctx), &peek, EntityRealization, id); err != nil {
		return err
	}
	return l.lockedTx(ctx, peek.PeriodID, func(tx *gorm.DB, period *models.Period) error {
		var rec models.Realization
		if err := first(tx, &rec, EntityRealization, id); err != nil {
			return err
		}
		var item models.SnapshotItem
		if err := first(tx, &item, EntitySnapshotItem, rec.SnapshotItemID); err != nil {
			return err
		}
		if err := l.guardTarget(tx, actor, &item, period); err != nil {
			return err
		}
		return dbError("delete_realization", tx.Delete(&rec).Error)
	})
}

// ListRealizations 科目下的实际记录，按日期排序
func (l *Ledger) ListRealizations(ctx context.Context, snapshotItemID uint) ([]models.Realization, error) {
	db := l.store.conn(ctx)
	var item models.SnapshotItem
	if err := first(db, &item, EntitySnapshotItem, snapshotItemID); err != nil {
		return nil, err
	}
	var list []models.Realization
	if err := db.Where("snapshot_item_id = ?", snapshotItemID).Order("date ASC, id ASC").Find(&list).Error; err != nil {
		return nil, dbError("list_realizations", err)
	}
	return list, nil
}

// ActualTotal 科目实际合计：叶子为实际金额之和，汇总科目为子科目之和
func (l *Ledger) ActualTotal(ctx context.Context, snapshotItemID uint) (decimal.Decimal, error) {
	var item models.SnapshotItem
	if err := first(l.store.conn(ctx), &item, EntitySnapshotItem, snapshotItemID); err != nil {
		return decimal.Zero, err
	}
	st, err := l.store.loadPeriodState(ctx, item.PeriodID)
	if err != nil {
		return decimal.Zero, err
	}
	if _, ok := st.byID[snapshotItemID]; !ok {
		return decimal.Zero, notFound(EntitySnapshotItem, snapshotItemID)
	}
	return st.actual[snapshotItemID], nil
}
