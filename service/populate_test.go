package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"parish/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulate_CopiesTemplate(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(12, "100000"))
	extra := mustNode(t, b, CreateNodeInput{ParentID: &chain[2].ID, Name: "Lilin", Level: 4, Leaf: leaf(2, "50000")})
	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")

	res, err := b.Populator.Populate(ctx, treasurer, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 5, res.CreatedCount)
	assert.Equal(t, 0, res.SkippedCount)
	_, err = uuid.Parse(res.BatchID)
	assert.NoError(t, err)

	snap := snapshotByTemplate(t, b, p.ID)
	require.Len(t, snap, 5)
	for i, n := range chain {
		it := snap[n.ID]
		assert.Equal(t, n.Code, it.Code)
		assert.Equal(t, n.Level, it.Level)
		assert.Equal(t, res.BatchID, it.BatchID)
		if i == 0 {
			assert.Nil(t, it.ParentID)
		} else {
			// 父引用指向同一快照内的节点
			require.NotNil(t, it.ParentID)
			assert.Equal(t, snap[chain[i-1].ID].ID, *it.ParentID)
		}
	}
	assert.Equal(t, "1300000", snap[chain[0].ID].TotalTarget.String())
	assert.Equal(t, "100000", snap[extra.ID].TotalTarget.String())
	assert.True(t, snap[extra.ID].IsLeaf())
	assert.False(t, snap[chain[2].ID].IsLeaf())

	stored, err := b.Periods.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, res.BatchID, stored.BatchID)
	assert.NotNil(t, stored.PopulatedAt)

	// 模板之后的修改不影响快照
	_, err = b.Tree.UpdateNode(ctx, admin, chain[3].ID, UpdateNodeInput{Leaf: leaf(1, "1")})
	require.NoError(t, err)
	snap = snapshotByTemplate(t, b, p.ID)
	assert.Equal(t, "1200000", snap[chain[3].ID].TotalTarget.String())
}

func TestPopulate_SkipsInactive(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	active := buildChain(t, b, expenditureCategoryID, "Misa", leaf(1, "10"))
	off := buildChain(t, b, expenditureCategoryID, "Retret", leaf(1, "10"))
	income := buildChain(t, b, incomeCategoryID, "Kolekte", leaf(52, "1000"))

	inactive := false
	_, err := b.Tree.UpdateNode(ctx, admin, off[1].ID, UpdateNodeInput{IsActive: &inactive})
	require.NoError(t, err)
	_, err = b.Tree.UpdateCategory(ctx, admin, incomeCategoryID, CategoryInput{IsActive: &inactive})
	require.NoError(t, err)

	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")
	res, err := b.Populator.Populate(ctx, admin, p.ID, false)
	require.NoError(t, err)
	// Retret 的根被复制，其下 3 个节点跳过；收入类别 4 个节点跳过
	assert.Equal(t, 5, res.CreatedCount)
	assert.Equal(t, 7, res.SkippedCount)

	snap := snapshotByTemplate(t, b, p.ID)
	assert.Contains(t, snap, active[3].ID)
	assert.Contains(t, snap, off[0].ID)
	assert.NotContains(t, snap, off[1].ID)
	assert.NotContains(t, snap, off[3].ID)
	assert.NotContains(t, snap, income[0].ID)
	assert.True(t, snap[off[0].ID].TotalTarget.IsZero())
}

func TestPopulate_AlreadyPopulated(t *testing.T) {
	b, db := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(12, "100"))
	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")
	initial, err := b.Populator.Populate(ctx, admin, p.ID, false)
	require.NoError(t, err)

	snap := snapshotByTemplate(t, b, p.ID)
	_, err = b.Ledger.RecordRealization(ctx, admin, RealizationInput{SnapshotItemID: snap[chain[3].ID].ID, Date: day("2025-02-01"), Amount: dec("100")})
	require.NoError(t, err)

	before := snapshotByTemplate(t, b, p.ID)
	_, err = b.Populator.Populate(ctx, admin, p.ID, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyPopulated))

	after := snapshotByTemplate(t, b, p.ID)
	assert.Equal(t, before, after)

	var n int64
	require.NoError(t, db.Model(&models.Realization{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	stored, err := b.Periods.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, initial.BatchID, stored.BatchID)
}

func TestPopulate_OverwritePurgesRealizations(t *testing.T) {
	b, db := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(12, "100"))
	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")
	other := mustPeriod(t, b, "2026-01-01", "2026-12-31")
	for _, id := range []uint{p.ID, other.ID} {
		_, err := b.Populator.Populate(ctx, admin, id, false)
		require.NoError(t, err)
	}

	oldLeaf := snapshotByTemplate(t, b, p.ID)[chain[3].ID]
	otherLeaf := snapshotByTemplate(t, b, other.ID)[chain[3].ID]
	for i := 0; i < 3; i++ {
		_, err := b.Ledger.RecordRealization(ctx, admin, RealizationInput{SnapshotItemID: oldLeaf.ID, Date: day("2025-03-01"), Amount: dec("10")})
		require.NoError(t, err)
	}
	_, err := b.Ledger.RecordRealization(ctx, admin, RealizationInput{SnapshotItemID: otherLeaf.ID, Date: day("2026-03-01"), Amount: dec("10")})
	require.NoError(t, err)

	res, err := b.Populator.Populate(ctx, admin, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.RemovedItems)
	assert.Equal(t, int64(3), res.RemovedRealizations)
	assert.Equal(t, 4, res.CreatedCount)

	var orphaned int64
	require.NoError(t, db.Model(&models.Realization{}).Where("snapshot_item_id = ?", oldLeaf.ID).Count(&orphaned).Error)
	assert.Zero(t, orphaned)

	// 旧科目 id 不再可用
	_, err = b.Ledger.RecordRealization(ctx, admin, RealizationInput{SnapshotItemID: oldLeaf.ID, Date: day("2025-03-01"), Amount: dec("10")})
	assert.True(t, errors.Is(err, ErrNotFound))

	// 其它期间不受影响
	total, err := b.Ledger.ActualTotal(ctx, otherLeaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", total.String())

	newLeaf := snapshotByTemplate(t, b, p.ID)[chain[3].ID]
	assert.NotEqual(t, oldLeaf.ID, newLeaf.ID)
	assert.Equal(t, res.BatchID, newLeaf.BatchID)
	total, err = b.Ledger.ActualTotal(ctx, newLeaf.ID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestPopulate_ClosedAndForbidden(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	buildChain(t, b, expenditureCategoryID, "Misa", leaf(1, "1"))
	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")

	_, err := b.Populator.Populate(ctx, staff, p.ID, false)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = b.Periods.SetStatus(ctx, admin, p.ID, models.PeriodStatusClosed)
	require.NoError(t, err)
	_, err = b.Populator.Populate(ctx, admin, p.ID, false)
	assert.True(t, errors.Is(err, ErrPeriodClosed))

	_, err = b.Populator.Populate(ctx, admin, 999, false)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// 覆盖填充与记录实际并发：记录要么在覆盖前完成并被清除，要么在覆盖后因科目不存在失败
func TestPopulate_ConcurrentOverwriteAndRecord(t *testing.T) {
	b, db := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(12, "100"))
	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")
	_, err := b.Populator.Populate(ctx, admin, p.ID, false)
	require.NoError(t, err)
	oldLeaf := snapshotByTemplate(t, b, p.ID)[chain[3].ID]

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	wg.Add(writers + 1)
	go func() {
		defer wg.Done()
		_, err := b.Populator.Populate(ctx, admin, p.ID, true)
		assert.NoError(t, err)
	}()
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := b.Ledger.RecordRealization(ctx, treasurer, RealizationInput{SnapshotItemID: oldLeaf.ID, Date: day("2025-05-01"), Amount: dec("1")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
		}
	}

	// 不允许出现指向已删除科目的实际
	var dangling int64
	require.NoError(t, db.Model(&models.Realization{}).
		Where("snapshot_item_id NOT IN (?)", db.Model(&models.SnapshotItem{}).Select("id")).
		Count(&dangling).Error)
	assert.Zero(t, dangling)

	var onOld int64
	require.NoError(t, db.Model(&models.Realization{}).Where("snapshot_item_id = ?", oldLeaf.ID).Count(&onOld).Error)
	assert.Zero(t, onOld)
}
