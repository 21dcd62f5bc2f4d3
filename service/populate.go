package service

import (
	"context"
	"log"
	"sort"
	"time"

	"parish/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Populator 把当前模板树复制为期间快照
type Populator struct {
	store *store
}

// PopulateResult 填充结果
type PopulateResult struct {
	PeriodID            uint   `json:"period_id"`
	BatchID             string `json:"batch_id"`
	CreatedCount        int    `json:"created_count"`
	SkippedCount        int    `json:"skipped_count"`
	RemovedItems        int64  `json:"removed_items"`
	RemovedRealizations int64  `json:"removed_realizations"`
}

// Populate 填充期间预算
// 已有快照且 overwrite=false 时返回 AlreadyPopulated；overwrite=true 时在同一事务内
// 删除旧快照及其全部实际记录再写入新快照，任何一步失败都整体回滚。
// 总是使用当前模板，模板没有版本。
func (p *Populator) Populate(ctx context.Context, actor Actor, periodID uint, overwrite bool) (*PopulateResult, error) {
	if err := p.store.policy.authorizeWrite(actor); err != nil {
		return nil, err
	}

	lock := p.store.locks.get(periodID)
	lock.Lock()
	defer lock.Unlock()

	res := &PopulateResult{PeriodID: periodID, BatchID: uuid.NewString()}
	err := p.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		period, err := lockPeriod(tx, periodID)
		if err != nil {
			return err
		}
		if err := p.store.checkWritable(period); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.SnapshotItem{}).Where("period_id = ?", periodID).Count(&existing).Error; err != nil {
			return dbError("count_snapshot_items", err)
		}
		if existing > 0 {
			if !overwrite {
				return newError(KindAlreadyPopulated, EntityPeriod, periodID, "期间已填充 %d 个科目，如需重新填充请选择覆盖", existing)
			}
			if err := purgeSnapshot(tx, periodID, res); err != nil {
				return err
			}
		}

		plan, err := planSnapshot(tx)
		if err != nil {
			return err
		}
		res.SkippedCount = plan.skipped

		if err := insertSnapshot(tx, periodID, res.BatchID, plan); err != nil {
			return err
		}
		res.CreatedCount = len(plan.nodes)

		now := time.Now()
		return dbError("update_period_batch", tx.Model(period).
			Select("batch_id", "populated_at").
			Updates(models.Period{BatchID: res.BatchID, PopulatedAt: &now}).Error)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("期间 %d 填充完成: batch=%s 新建=%d 跳过=%d 删除科目=%d 删除实际=%d",
		periodID, res.BatchID, res.CreatedCount, res.SkippedCount, res.RemovedItems, res.RemovedRealizations)
	return res, nil
}

// purgeSnapshot 删除期间的全部实际记录与快照科目
func purgeSnapshot(tx *gorm.DB, periodID uint, res *PopulateResult) error {
	itemIDs := tx.Model(&models.SnapshotItem{}).Select("id").Where("period_id = ?", periodID)
	r := tx.Where("snapshot_item_id IN (?)", itemIDs).Delete(&models.Realization{})
	if r.Error != nil {
		return dbError("purge_realizations", r.Error)
	}
	res.RemovedRealizations = r.RowsAffected

	r = tx.Where("period_id = ?", periodID).Delete(&models.SnapshotItem{})
	if r.Error != nil {
		return dbError("purge_snapshot_items", r.Error)
	}
	res.RemovedItems = r.RowsAffected
	return nil
}

// snapshotPlan 要复制的模板节点（父节点在前）及其目标汇总
type snapshotPlan struct {
	nodes   []models.ItemNode
	skipped int
}

// planSnapshot 选出启用类别下、自身及所有祖先都启用的模板节点
func planSnapshot(tx *gorm.DB) (*snapshotPlan, error) {
	var cats []models.Category
	if err := tx.Find(&cats).Error; err != nil {
		return nil, dbError("load_categories", err)
	}
	activeCat := make(map[uint]bool, len(cats))
	for _, c := range cats {
		activeCat[c.ID] = c.IsActive
	}

	var all []models.ItemNode
	if err := tx.Order("level ASC, id ASC").Find(&all).Error; err != nil {
		return nil, dbError("load_template_items", err)
	}

	included := make(map[uint]bool, len(all))
	plan := &snapshotPlan{}
	for _, n := range all {
		ok := n.IsActive && activeCat[n.CategoryID]
		if ok && n.ParentID != nil {
			ok = included[*n.ParentID]
		}
		if !ok {
			plan.skipped++
			continue
		}
		included[n.ID] = true
		plan.nodes = append(plan.nodes, n)
	}
	// 父节点层级一定更小，按层级排序即可保证父节点先写入
	sort.SliceStable(plan.nodes, func(i, j int) bool { return plan.nodes[i].Level < plan.nodes[j].Level })
	return plan, nil
}

// insertSnapshot 按层级批量写入快照，并把父引用改写为新快照 id
func insertSnapshot(tx *gorm.DB, periodID uint, batchID string, plan *snapshotPlan) error {
	totals, err := rollup(EntityItem, templateRollupNodes(plan.nodes))
	if err != nil {
		return err
	}

	snapshotID := make(map[uint]uint, len(plan.nodes))
	for start := 0; start < len(plan.nodes); {
		level := plan.nodes[start].Level
		end := start
		for end < len(plan.nodes) && plan.nodes[end].Level == level {
			end++
		}

		batch := make([]models.SnapshotItem, 0, end-start)
		for _, n := range plan.nodes[start:end] {
			item := models.SnapshotItem{
				PeriodID:       periodID,
				BatchID:        batchID,
				TemplateItemID: n.ID,
				CategoryID:     n.CategoryID,
				Code:           n.Code,
				Level:          n.Level,
				Name:           n.Name,
				Description:    n.Description,
				TotalTarget:    totals[n.ID],
			}
			if n.ParentID != nil {
				pid := snapshotID[*n.ParentID]
				item.ParentID = &pid
			}
			if leaf, ok := n.Leaf(); ok {
				item.SetLeaf(&leaf)
			}
			batch = append(batch, item)
		}
		if err := tx.Create(&batch).Error; err != nil {
			return dbError("insert_snapshot_items", err)
		}
		for i := range batch {
			snapshotID[batch[i].TemplateItemID] = batch[i].ID
		}
		start = end
	}
	return nil
}

// Snapshot 读取期间快照，按编码排序
func (p *Populator) Snapshot(ctx context.Context, periodID uint) ([]models.SnapshotItem, error) {
	db := p.store.conn(ctx)
	var period models.Period
	if err := first(db, &period, EntityPeriod, periodID); err != nil {
		return nil, err
	}
	items, err := loadSnapshot(db, periodID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func loadSnapshot(db *gorm.DB, periodID uint) ([]models.SnapshotItem, error) {
	var items []models.SnapshotItem
	if err := db.Where("period_id = ?", periodID).Order("level ASC, id ASC").Find(&items).Error; err != nil {
		return nil, dbError("load_snapshot", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CategoryID != items[j].CategoryID {
			return items[i].CategoryID < items[j].CategoryID
		}
		return codeLess(items[i].Code, items[j].Code)
	})
	return items, nil
}
