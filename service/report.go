package service

import (
	"context"
	"database/sql"
	"sort"

	"parish/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reporter 只读报表
type Reporter struct {
	store *store
}

// LevelSummary 某一层级的汇总
type LevelSummary struct {
	Level       int             `json:"level"`
	ItemCount   int             `json:"item_count"`
	TotalTarget decimal.Decimal `json:"total_target"`
	TotalActual decimal.Decimal `json:"total_actual"`
}

// CategorySummary 类别在期间内的目标与实际
type CategorySummary struct {
	PeriodID     uint             `json:"period_id"`
	CategoryID   uint             `json:"category_id"`
	CategoryName string           `json:"category_name"`
	Kind         string           `json:"kind"`
	TotalTarget  decimal.Decimal  `json:"total_target"`
	TotalActual  decimal.Decimal  `json:"total_actual"`
	Variance     decimal.Decimal  `json:"variance"`
	VariancePct  *decimal.Decimal `json:"variance_pct"`
	ByLevel      []LevelSummary   `json:"by_level"`
}

// ItemDetail 科目明细，子科目递归展开，叶子带实际记录
type ItemDetail struct {
	models.SnapshotItem
	TotalActual  decimal.Decimal      `json:"total_actual"`
	Variance     decimal.Decimal      `json:"variance"`
	VariancePct  *decimal.Decimal     `json:"variance_pct"`
	Children     []*ItemDetail        `json:"children,omitempty"`
	Realizations []models.Realization `json:"realizations,omitempty"`
}

// PeriodSummary 期间总览
type PeriodSummary struct {
	Period            models.Period     `json:"period"`
	Categories        []CategorySummary `json:"categories"`
	IncomeTarget      decimal.Decimal   `json:"income_target"`
	IncomeActual      decimal.Decimal   `json:"income_actual"`
	ExpenditureTarget decimal.Decimal   `json:"expenditure_target"`
	ExpenditureActual decimal.Decimal   `json:"expenditure_actual"`
	BalanceTarget     decimal.Decimal   `json:"balance_target"`
	BalanceActual     decimal.Decimal   `json:"balance_actual"`
}

// variancePct 差异占目标的比例，保留 4 位小数；目标为 0 时没有比例
func variancePct(variance, target decimal.Decimal) *decimal.Decimal {
	if target.IsZero() {
		return nil
	}
	pct := variance.Div(target).Round(4)
	return &pct
}

// periodState 某一时刻期间快照的完整视图
type periodState struct {
	period       models.Period
	items        []models.SnapshotItem
	byID         map[uint]*models.SnapshotItem
	children     map[uint][]uint
	realizations map[uint][]models.Realization
	categories   map[uint]models.Category
	target       map[uint]decimal.Decimal
	actual       map[uint]decimal.Decimal
}

// readTxOptions 报表读事务的隔离级别
// MySQL/PostgreSQL 用只读 REPEATABLE READ；SQLite（WAL）的读事务本身就是一致快照。
func (s *store) readTxOptions() *sql.TxOptions {
	if s.db.Dialector.Name() == "sqlite" {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

// loadPeriodState 持读锁，在同一个读事务内依次读取期间、快照、实际记录与类别，再在内存中计算汇总
// 本进程的写操作在读锁上等待；其它进程的覆盖填充由事务快照隔离，读到的要么是旧树要么是新树。
func (s *store) loadPeriodState(ctx context.Context, periodID uint) (*periodState, error) {
	lock := s.locks.get(periodID)
	lock.RLock()
	defer lock.RUnlock()

	st := &periodState{}
	var recs []models.Realization
	var cats []models.Category
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &st.period, EntityPeriod, periodID); err != nil {
			return err
		}
		items, err := loadSnapshot(tx, periodID)
		if err != nil {
			return err
		}
		st.items = items
		if err := tx.Where("period_id = ?", periodID).Order("date ASC, id ASC").Find(&recs).Error; err != nil {
			return dbError("load_realizations", err)
		}
		return dbError("load_categories", tx.Unscoped().Order("sort ASC, id ASC").Find(&cats).Error)
	}, s.readTxOptions())
	if err != nil {
		return nil, err
	}

	st.byID = make(map[uint]*models.SnapshotItem, len(st.items))
	st.children = make(map[uint][]uint)
	for i := range st.items {
		it := &st.items[i]
		st.byID[it.ID] = it
		if it.ParentID != nil {
			st.children[*it.ParentID] = append(st.children[*it.ParentID], it.ID)
		}
	}
	st.categories = make(map[uint]models.Category, len(cats))
	for _, c := range cats {
		st.categories[c.ID] = c
	}

	st.realizations = make(map[uint][]models.Realization)
	leafActual := make(map[uint]decimal.Decimal)
	for _, r := range recs {
		st.realizations[r.SnapshotItemID] = append(st.realizations[r.SnapshotItemID], r)
		leafActual[r.SnapshotItemID] = leafActual[r.SnapshotItemID].Add(r.Amount)
	}

	if st.target, err = rollup(EntitySnapshotItem, snapshotRollupNodes(st.items, nil)); err != nil {
		return nil, err
	}
	if st.actual, err = rollup(EntitySnapshotItem, snapshotRollupNodes(st.items, leafActual)); err != nil {
		return nil, err
	}
	return st, nil
}

// categorySummary 汇总一个类别：合计取该类别的顶层科目
func (st *periodState) categorySummary(categoryID uint) CategorySummary {
	cs := CategorySummary{PeriodID: st.period.ID, CategoryID: categoryID}
	if c, ok := st.categories[categoryID]; ok {
		cs.CategoryName = c.Name
		cs.Kind = c.Kind
	}

	levels := make(map[int]*LevelSummary)
	for i := range st.items {
		it := &st.items[i]
		if it.CategoryID != categoryID {
			continue
		}
		if it.ParentID == nil {
			cs.TotalTarget = cs.TotalTarget.Add(st.target[it.ID])
			cs.TotalActual = cs.TotalActual.Add(st.actual[it.ID])
		}
		ls, ok := levels[it.Level]
		if !ok {
			ls = &LevelSummary{Level: it.Level}
			levels[it.Level] = ls
		}
		ls.ItemCount++
		ls.TotalTarget = ls.TotalTarget.Add(st.target[it.ID])
		ls.TotalActual = ls.TotalActual.Add(st.actual[it.ID])
	}
	cs.Variance = cs.TotalActual.Sub(cs.TotalTarget)
	cs.VariancePct = variancePct(cs.Variance, cs.TotalTarget)

	cs.ByLevel = make([]LevelSummary, 0, len(levels))
	for _, ls := range levels {
		cs.ByLevel = append(cs.ByLevel, *ls)
	}
	sort.Slice(cs.ByLevel, func(i, j int) bool { return cs.ByLevel[i].Level < cs.ByLevel[j].Level })
	return cs
}

func (st *periodState) detail(id uint) *ItemDetail {
	it := st.byID[id]
	d := &ItemDetail{
		SnapshotItem: *it,
		TotalActual:  st.actual[id],
	}
	d.TotalTarget = st.target[id]
	d.Variance = d.TotalActual.Sub(d.TotalTarget)
	d.VariancePct = variancePct(d.Variance, d.TotalTarget)

	if it.IsLeaf() {
		d.Realizations = st.realizations[id]
		return d
	}
	for _, kid := range st.children[id] {
		d.Children = append(d.Children, st.detail(kid))
	}
	return d
}

// CategorySummary 类别汇总；类别在快照中没有科目时各项为 0
func (r *Reporter) CategorySummary(ctx context.Context, periodID, categoryID uint) (*CategorySummary, error) {
	var cat models.Category
	if err := first(r.store.conn(ctx).Unscoped(), &cat, EntityCategory, categoryID); err != nil {
		return nil, err
	}
	st, err := r.store.loadPeriodState(ctx, periodID)
	if err != nil {
		return nil, err
	}
	cs := st.categorySummary(categoryID)
	return &cs, nil
}

// ItemDetail 科目明细
func (r *Reporter) ItemDetail(ctx context.Context, snapshotItemID uint) (*ItemDetail, error) {
	var item models.SnapshotItem
	if err := first(r.store.conn(ctx), &item, EntitySnapshotItem, snapshotItemID); err != nil {
		return nil, err
	}
	st, err := r.store.loadPeriodState(ctx, item.PeriodID)
	if err != nil {
		return nil, err
	}
	// 读锁之前科目可能已被覆盖填充删除
	if _, ok := st.byID[snapshotItemID]; !ok {
		return nil, notFound(EntitySnapshotItem, snapshotItemID)
	}
	return st.detail(snapshotItemID), nil
}

// PeriodSummary 期间总览：快照中每个类别一份汇总，并按收入/支出合计
func (r *Reporter) PeriodSummary(ctx context.Context, periodID uint) (*PeriodSummary, error) {
	st, err := r.store.loadPeriodState(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return st.periodSummary(), nil
}

func (st *periodState) periodSummary() *PeriodSummary {
	ps := &PeriodSummary{Period: st.period, Categories: []CategorySummary{}}

	present := make(map[uint]bool)
	var ids []uint
	for i := range st.items {
		cid := st.items[i].CategoryID
		if !present[cid] {
			present[cid] = true
			ids = append(ids, cid)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := st.categories[ids[i]], st.categories[ids[j]]
		if a.Sort != b.Sort {
			return a.Sort < b.Sort
		}
		return ids[i] < ids[j]
	})

	for _, cid := range ids {
		cs := st.categorySummary(cid)
		ps.Categories = append(ps.Categories, cs)
		if cs.Kind == models.CategoryKindIncome {
			ps.IncomeTarget = ps.IncomeTarget.Add(cs.TotalTarget)
			ps.IncomeActual = ps.IncomeActual.Add(cs.TotalActual)
		} else {
			ps.ExpenditureTarget = ps.ExpenditureTarget.Add(cs.TotalTarget)
			ps.ExpenditureActual = ps.ExpenditureActual.Add(cs.TotalActual)
		}
	}
	ps.BalanceTarget = ps.IncomeTarget.Sub(ps.ExpenditureTarget)
	ps.BalanceActual = ps.IncomeActual.Sub(ps.ExpenditureActual)
	return ps
}
