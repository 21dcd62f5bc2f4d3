package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNode_Hierarchy(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	root := mustNode(t, b, CreateNodeInput{CategoryID: expenditureCategoryID, Name: "Liturgi", Level: 1})
	assert.Equal(t, "1", root.Code)
	assert.True(t, root.IsActive)

	tests := []struct {
		name string
		in   CreateNodeInput
		kind error
	}{
		{"root not level 1", CreateNodeInput{CategoryID: expenditureCategoryID, Name: "x", Level: 2}, ErrInvalidHierarchy},
		{"level out of range", CreateNodeInput{CategoryID: expenditureCategoryID, Name: "x", Level: 5}, ErrInvalidHierarchy},
		{"skip level", CreateNodeInput{ParentID: &root.ID, Name: "x", Level: 3}, ErrInvalidHierarchy},
		{"leaf fields on aggregate", CreateNodeInput{ParentID: &root.ID, Name: "x", Level: 2, Leaf: leaf(1, "10")}, ErrInvalidHierarchy},
		{"leaf fields on root", CreateNodeInput{CategoryID: expenditureCategoryID, Name: "x", Level: 1, Leaf: leaf(1, "1")}, ErrInvalidHierarchy},
		{"empty name", CreateNodeInput{CategoryID: expenditureCategoryID, Name: "  ", Level: 1}, ErrInvalidInput},
		{"category mismatch", CreateNodeInput{CategoryID: incomeCategoryID, ParentID: &root.ID, Name: "x", Level: 2}, ErrInvalidHierarchy},
		{"unknown category", CreateNodeInput{CategoryID: 999, Name: "x", Level: 1}, ErrNotFound},
		{"unknown parent", CreateNodeInput{ParentID: uintPtr(999), Name: "x", Level: 2}, ErrNotFound},
		{"bad code", CreateNodeInput{ParentID: &root.ID, Name: "x", Level: 2, Code: "2.1"}, ErrInvalidHierarchy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Tree.CreateNode(ctx, admin, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}

	t.Run("leaf missing target", func(t *testing.T) {
		chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(12, "100"))
		_, err := b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &chain[2].ID, Name: "x", Level: 4})
		assert.True(t, errors.Is(err, ErrInvalidHierarchy))

		_, err = b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &chain[2].ID, Name: "x", Level: 4, Leaf: leaf(1, "-1")})
		assert.True(t, errors.Is(err, ErrInvalidHierarchy), "negative amount")

		// 单价超过两位小数会被 decimal(20,2) 列舍入，快照合计与明细就会对不上
		_, err = b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &chain[2].ID, Name: "x", Level: 4, Leaf: leaf(3, "0.125")})
		assert.True(t, errors.Is(err, ErrInvalidInput), "sub-cent unit amount")
		_, err = b.Tree.UpdateNode(ctx, admin, chain[3].ID, UpdateNodeInput{Leaf: leaf(3, "0.001")})
		assert.True(t, errors.Is(err, ErrInvalidInput), "sub-cent unit amount on update")
		_, err = b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &chain[2].ID, Name: "Lilin", Level: 4, Leaf: leaf(3, "0.250")})
		assert.NoError(t, err, "trailing zeros stay within scale")

		_, err = b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &chain[3].ID, Name: "x", Level: 4, Leaf: leaf(1, "1")})
		assert.True(t, errors.Is(err, ErrInvalidHierarchy), "leaf cannot have children")
	})

	t.Run("staff cannot edit template", func(t *testing.T) {
		_, err := b.Tree.CreateNode(ctx, staff, CreateNodeInput{CategoryID: expenditureCategoryID, Name: "x", Level: 1})
		assert.True(t, errors.Is(err, ErrForbidden))
	})
}

func TestCreateNode_Codes(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	r1 := mustNode(t, b, CreateNodeInput{CategoryID: expenditureCategoryID, Name: "A", Level: 1})
	r2 := mustNode(t, b, CreateNodeInput{CategoryID: expenditureCategoryID, Name: "B", Level: 1})
	assert.Equal(t, "1", r1.Code)
	assert.Equal(t, "2", r2.Code)

	c := mustNode(t, b, CreateNodeInput{ParentID: &r2.ID, Name: "B.x", Level: 2, Code: "2.5"})
	assert.Equal(t, "2.5", c.Code)
	next := mustNode(t, b, CreateNodeInput{ParentID: &r2.ID, Name: "B.y", Level: 2})
	assert.Equal(t, "2.6", next.Code)

	_, err := b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &r2.ID, Name: "dup", Level: 2, Code: "2.5"})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	// 其它类别独立编号
	other := mustNode(t, b, CreateNodeInput{CategoryID: incomeCategoryID, Name: "Kolekte", Level: 1})
	assert.Equal(t, "1", other.Code)
}

// 同一父节点下并发创建，编码互不重复且连续
func TestCreateNode_ConcurrentCodes(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()
	root := mustNode(t, b, CreateNodeInput{CategoryID: expenditureCategoryID, Name: "Liturgi", Level: 1})

	const n = 10
	codes := make(chan string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			node, err := b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &root.ID, Name: "Misa", Level: 2})
			if assert.NoError(t, err) {
				codes <- node.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	var got []string
	for c := range codes {
		got = append(got, c)
	}
	sort.Slice(got, func(i, j int) bool { return codeLess(got[i], got[j]) })
	want := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		want = append(want, "1."+strconv.Itoa(i))
	}
	assert.Equal(t, want, got)
}

func TestCreateNode_RelaxedLevelStep(t *testing.T) {
	p := testPolicy()
	p.StrictLevelStep = false
	b, _ := newTestBudget(t, p)
	ctx := context.Background()

	root := mustNode(t, b, CreateNodeInput{CategoryID: expenditureCategoryID, Name: "Operasional", Level: 1})
	l4 := mustNode(t, b, CreateNodeInput{ParentID: &root.ID, Name: "Listrik", Level: 4, Leaf: leaf(12, "500000")})
	assert.Equal(t, 4, l4.Level)

	_, err := b.Tree.CreateNode(ctx, admin, CreateNodeInput{ParentID: &root.ID, Name: "x", Level: 1})
	assert.True(t, errors.Is(err, ErrInvalidHierarchy))
}

func TestComputeTotalTarget(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(12, "150000.50"))
	mustNode(t, b, CreateNodeInput{ParentID: &chain[2].ID, Name: "Lilin", Level: 4, Leaf: leaf(4, "25000")})

	total, err := b.Tree.ComputeTotalTarget(ctx, chain[3].ID)
	require.NoError(t, err)
	assert.Equal(t, "1800006", total.String())

	for _, n := range chain[:3] {
		total, err = b.Tree.ComputeTotalTarget(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, "1900006", total.String(), "level %d", n.Level)
	}

	// 修改叶子后重新计算，不存储
	_, err = b.Tree.UpdateNode(ctx, admin, chain[3].ID, UpdateNodeInput{Leaf: leaf(1, "6")})
	require.NoError(t, err)
	total, err = b.Tree.ComputeTotalTarget(ctx, chain[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "100006", total.String())

	_, err = b.Tree.ComputeTotalTarget(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestComputeTotalTarget_CorruptStore(t *testing.T) {
	b, db := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(1, "1"))
	// 绕过校验直接把根挂到自己的孙节点下
	require.NoError(t, db.Table("budget_item_templates").Where("id = ?", chain[0].ID).Update("parent_id", chain[2].ID).Error)

	_, err := b.Tree.ComputeTotalTarget(ctx, chain[0].ID)
	assert.True(t, errors.Is(err, ErrHierarchyCorrupt), "got %v", err)
}

func TestUpdateNode_LeafRule(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(1, "1"))
	_, err := b.Tree.UpdateNode(ctx, admin, chain[1].ID, UpdateNodeInput{Leaf: leaf(1, "1")})
	assert.True(t, errors.Is(err, ErrInvalidHierarchy))

	name := "Misa Harian"
	inactive := false
	n, err := b.Tree.UpdateNode(ctx, admin, chain[1].ID, UpdateNodeInput{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, name, n.Name)
	assert.False(t, n.IsActive)

	got, err := b.Tree.GetNode(ctx, chain[1].ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestDeleteNode(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(2, "10"))
	spare := mustNode(t, b, CreateNodeInput{ParentID: &chain[2].ID, Name: "Lilin", Level: 4, Leaf: leaf(1, "5")})

	// 有子节点
	err := b.Tree.DeleteNode(ctx, admin, chain[2].ID)
	assert.True(t, errors.Is(err, ErrNodeInUse))

	// 被快照引用
	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")
	_, err = b.Populator.Populate(ctx, admin, p.ID, false)
	require.NoError(t, err)
	err = b.Tree.DeleteNode(ctx, admin, chain[3].ID)
	assert.True(t, errors.Is(err, ErrNodeInUse))

	// 新建且未被引用的叶子可以删除，父节点合计随之变化
	fresh := mustNode(t, b, CreateNodeInput{ParentID: &chain[2].ID, Name: "Bunga", Level: 4, Leaf: leaf(1, "100")})
	total, err := b.Tree.ComputeTotalTarget(ctx, chain[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "125", total.String())

	require.NoError(t, b.Tree.DeleteNode(ctx, admin, fresh.ID))
	total, err = b.Tree.ComputeTotalTarget(ctx, chain[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "25", total.String())

	_, err = b.Tree.GetNode(ctx, fresh.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	// 快照仍然完整
	snap := snapshotByTemplate(t, b, p.ID)
	assert.Contains(t, snap, spare.ID)
}

func TestDeleteNode_ReferencedAllowedByPolicy(t *testing.T) {
	pol := testPolicy()
	pol.BlockReferencedTemplateDelete = false
	b, _ := newTestBudget(t, pol)
	ctx := context.Background()

	chain := buildChain(t, b, expenditureCategoryID, "Misa", leaf(2, "10"))
	p := mustPeriod(t, b, "2025-01-01", "2025-12-31")
	_, err := b.Populator.Populate(ctx, admin, p.ID, false)
	require.NoError(t, err)

	require.NoError(t, b.Tree.DeleteNode(ctx, admin, chain[3].ID))

	// 历史快照不受影响
	snap := snapshotByTemplate(t, b, p.ID)
	require.Contains(t, snap, chain[3].ID)
	assert.Equal(t, "20", snap[chain[3].ID].TotalTarget.String())
}

func TestTree(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	buildChain(t, b, expenditureCategoryID, "A", leaf(1, "10"))
	buildChain(t, b, expenditureCategoryID, "B", leaf(2, "10"))

	roots, err := b.Tree.Tree(ctx, expenditureCategoryID)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "1", roots[0].Code)
	assert.Equal(t, "10", roots[0].TotalTarget.String())
	assert.Equal(t, "20", roots[1].TotalTarget.String())
	require.Len(t, roots[1].Children, 1)
	assert.Equal(t, "2.1", roots[1].Children[0].Code)

	roots, err = b.Tree.Tree(ctx, incomeCategoryID)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestCategories(t *testing.T) {
	b, _ := newTestBudget(t, testPolicy())
	ctx := context.Background()

	list, err := b.Tree.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Penerimaan", list[0].Name)

	name, kind := "Dana Sosial", "income"
	cat, err := b.Tree.CreateCategory(ctx, admin, CategoryInput{Name: &name, Kind: &kind})
	require.NoError(t, err)
	assert.True(t, cat.IsActive)

	_, err = b.Tree.CreateCategory(ctx, admin, CategoryInput{Name: &name})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	bad := "other"
	_, err = b.Tree.UpdateCategory(ctx, admin, cat.ID, CategoryInput{Kind: &bad})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	mustNode(t, b, CreateNodeInput{CategoryID: cat.ID, Name: "x", Level: 1})
	assert.True(t, errors.Is(b.Tree.DeleteCategory(ctx, admin, cat.ID), ErrNodeInUse))
	assert.True(t, errors.Is(b.Tree.DeleteCategory(ctx, staff, cat.ID), ErrForbidden))
}

func TestCodeLess(t *testing.T) {
	assert.True(t, codeLess("1.2", "1.10"))
	assert.True(t, codeLess("1", "1.1"))
	assert.True(t, codeLess("1.9.9", "2"))
	assert.False(t, codeLess("2", "1.9"))
}
