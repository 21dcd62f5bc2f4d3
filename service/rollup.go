package service

import (
	"parish/models"

	"github.com/shopspring/decimal"
)

// rollupNode 参与汇总的节点：叶子带自身数值，非叶子的数值等于直接子节点之和
type rollupNode struct {
	ID       uint
	ParentID *uint
	Level    int
	Leaf     bool
	Value    decimal.Decimal
}

// rollup 计算集合内每个节点的汇总值
// 递归深度超过 MaxLevel、子节点层级不大于父节点或叶子下挂子节点时返回 HierarchyCorrupt。
func rollup(entity string, nodes []rollupNode) (map[uint]decimal.Decimal, error) {
	byID := make(map[uint]*rollupNode, len(nodes))
	children := make(map[uint][]uint, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		byID[n.ID] = n
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n.ID)
		}
	}

	totals := make(map[uint]decimal.Decimal, len(nodes))
	var visit func(id uint, depth int) (decimal.Decimal, error)
	visit = func(id uint, depth int) (decimal.Decimal, error) {
		if depth > models.MaxLevel {
			return decimal.Zero, newError(KindHierarchyCorrupt, entity, id, "层级超过 %d 层，父节点引用可能存在环", models.MaxLevel)
		}
		if t, ok := totals[id]; ok {
			return t, nil
		}
		n := byID[id]
		kids := children[id]
		if n.Leaf {
			if len(kids) > 0 {
				return decimal.Zero, newError(KindHierarchyCorrupt, entity, id, "叶子节点下存在子节点")
			}
			totals[id] = n.Value
			return n.Value, nil
		}
		sum := decimal.Zero
		for _, kid := range kids {
			if byID[kid].Level <= n.Level {
				return decimal.Zero, newError(KindHierarchyCorrupt, entity, kid, "子节点层级 %d 不大于父节点层级 %d", byID[kid].Level, n.Level)
			}
			v, err := visit(kid, depth+1)
			if err != nil {
				return decimal.Zero, err
			}
			sum = sum.Add(v)
		}
		totals[id] = sum
		return sum, nil
	}

	for i := range nodes {
		if _, err := visit(nodes[i].ID, 1); err != nil {
			return nil, err
		}
	}
	return totals, nil
}

// templateRollupNodes 模板节点的目标汇总输入
func templateRollupNodes(nodes []models.ItemNode) []rollupNode {
	out := make([]rollupNode, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		rn := rollupNode{ID: n.ID, ParentID: n.ParentID, Level: n.Level}
		if leaf, ok := n.Leaf(); ok {
			rn.Leaf = true
			rn.Value = leaf.Total()
		} else if n.Level == models.LeafLevel {
			rn.Leaf = true
		}
		out = append(out, rn)
	}
	return out
}

// snapshotRollupNodes 快照科目的汇总输入；actuals 为 nil 时汇总目标，否则汇总实际
func snapshotRollupNodes(items []models.SnapshotItem, actuals map[uint]decimal.Decimal) []rollupNode {
	out := make([]rollupNode, 0, len(items))
	for i := range items {
		it := &items[i]
		rn := rollupNode{ID: it.ID, ParentID: it.ParentID, Level: it.Level}
		if it.Level == models.LeafLevel {
			rn.Leaf = true
			if actuals != nil {
				rn.Value = actuals[it.ID]
			} else if leaf, ok := it.Leaf(); ok {
				rn.Value = leaf.Total()
			}
		}
		out = append(out, rn)
	}
	return out
}
