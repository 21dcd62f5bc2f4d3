package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"parish/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemTree 类别下的模板科目树
type ItemTree struct {
	store *store
}

// CreateNodeInput 创建模板节点
// 根节点需要 CategoryID；子节点继承父节点类别。Code 为空时自动编号。
type CreateNodeInput struct {
	CategoryID  uint               `json:"category_id"`
	ParentID    *uint              `json:"parent_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Level       int                `json:"level"`
	Code        string             `json:"code"`
	Leaf        *models.LeafTarget `json:"leaf"`
}

// UpdateNodeInput 修改模板节点，nil 字段不修改
type UpdateNodeInput struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	IsActive    *bool              `json:"is_active"`
	Leaf        *models.LeafTarget `json:"leaf"`
}

// TreeNode 带汇总目标的模板树
type TreeNode struct {
	models.ItemNode
	TotalTarget decimal.Decimal `json:"total_target"`
	Children    []*TreeNode     `json:"children"`
}

// validateLeaf 叶子字段只能出现在层级 4，且层级 4 必须提供
func validateLeaf(id uint, level int, leaf *models.LeafTarget) error {
	if level != models.LeafLevel && leaf != nil {
		return fieldError(KindInvalidHierarchy, EntityItem, id, "leaf", "层级 %d 是汇总节点，不能设置目标频次/单价", level)
	}
	if level == models.LeafLevel && leaf == nil {
		return fieldError(KindInvalidHierarchy, EntityItem, id, "leaf", "层级 %d 的叶子节点必须设置目标频次/单价", level)
	}
	if leaf != nil {
		if leaf.Frequency < 0 {
			return fieldError(KindInvalidHierarchy, EntityItem, id, "leaf.target_frequency", "目标频次不能为负数")
		}
		if leaf.Amount.IsNegative() {
			return fieldError(KindInvalidHierarchy, EntityItem, id, "leaf.unit_amount", "单价不能为负数")
		}
		if !models.WithinScale(leaf.Amount) {
			return fieldError(KindInvalidInput, EntityItem, id, "leaf.unit_amount", "单价最多 %d 位小数: %s", models.AmountScale, leaf.Amount.String())
		}
	}
	return nil
}

// CreateNode 创建模板节点
func (t *ItemTree) CreateNode(ctx context.Context, actor Actor, in CreateNodeInput) (*models.ItemNode, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fieldError(KindInvalidInput, EntityItem, 0, "name", "名称不能为空")
	}
	if in.Level < 1 || in.Level > models.MaxLevel {
		return nil, fieldError(KindInvalidHierarchy, EntityItem, 0, "level", "层级必须在 1 到 %d 之间", models.MaxLevel)
	}
	if err := validateLeaf(0, in.Level, in.Leaf); err != nil {
		return nil, err
	}
	in.Code = strings.TrimSpace(in.Code)

	var node models.ItemNode
	err := t.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var parentCode string
		if in.ParentID == nil {
			if in.Level != 1 {
				return fieldError(KindInvalidHierarchy, EntityItem, 0, "level", "根节点层级必须为 1，当前为 %d", in.Level)
			}
			var cat models.Category
			if err := first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), &cat, EntityCategory, in.CategoryID); err != nil {
				return err
			}
		} else {
			var parent models.ItemNode
			if err := first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), &parent, EntityItem, *in.ParentID); err != nil {
				return err
			}
			if in.CategoryID != 0 && in.CategoryID != parent.CategoryID {
				return fieldError(KindInvalidHierarchy, EntityItem, parent.ID, "category_id", "子节点类别必须与父节点一致")
			}
			if err := t.checkLevelStep(&parent, in.Level); err != nil {
				return err
			}
			in.CategoryID = parent.CategoryID
			parentCode = parent.Code
		}

		// 父行（根节点为类别行）已加锁，同一父节点下的编码分配串行
		code, err := t.assignCode(tx, in.CategoryID, in.ParentID, parentCode, in.Code)
		if err != nil {
			return err
		}

		node = models.ItemNode{
			CategoryID:  in.CategoryID,
			ParentID:    in.ParentID,
			Code:        code,
			Level:       in.Level,
			Name:        in.Name,
			Description: in.Description,
			IsActive:    true,
		}
		node.SetLeaf(in.Leaf)
		return dbError("create_item", tx.Create(&node).Error)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (t *ItemTree) checkLevelStep(parent *models.ItemNode, level int) error {
	if parent.Level >= models.LeafLevel {
		return newError(KindInvalidHierarchy, EntityItem, parent.ID, "叶子节点 %s 不能再有子节点", parent.Code)
	}
	if t.store.policy.StrictLevelStep {
		if level != parent.Level+1 {
			return fieldError(KindInvalidHierarchy, EntityItem, parent.ID, "level", "子节点层级必须为 %d，当前为 %d", parent.Level+1, level)
		}
		return nil
	}
	if level <= parent.Level {
		return fieldError(KindInvalidHierarchy, EntityItem, parent.ID, "level", "子节点层级必须大于父节点层级 %d", parent.Level)
	}
	return nil
}

// assignCode 编码由父节点编码加一段序号组成；指定编码时只做一致性校验
func (t *ItemTree) assignCode(tx *gorm.DB, categoryID uint, parentID *uint, parentCode, want string) (string, error) {
	var siblings []string
	q := tx.Model(&models.ItemNode{}).Where("category_id = ?", categoryID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if err := q.Pluck("code", &siblings).Error; err != nil {
		return "", dbError("load_sibling_codes", err)
	}

	prefix := ""
	if parentCode != "" {
		prefix = parentCode + "."
	}

	if want != "" {
		seg := strings.TrimPrefix(want, prefix)
		if !strings.HasPrefix(want, prefix) || seg == "" || strings.Contains(seg, ".") {
			return "", fieldError(KindInvalidHierarchy, EntityItem, 0, "code", "编码 %q 必须是 %q 加一段", want, prefix)
		}
		for _, s := range siblings {
			if s == want {
				return "", fieldError(KindInvalidInput, EntityItem, 0, "code", "编码 %q 已存在", want)
			}
		}
		return want, nil
	}

	next := 1
	for _, s := range siblings {
		seg := s[strings.LastIndex(s, ".")+1:]
		if n, err := strconv.Atoi(seg); err == nil && n >= next {
			next = n + 1
		}
	}
	return prefix + strconv.Itoa(next), nil
}

// UpdateNode 修改模板节点；叶子字段规则与创建相同
func (t *ItemTree) UpdateNode(ctx context.Context, actor Actor, id uint, in UpdateNodeInput) (*models.ItemNode, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	var node models.ItemNode
	err := t.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &node, EntityItem, id); err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return fieldError(KindInvalidInput, EntityItem, id, "name", "名称不能为空")
			}
			node.Name = name
		}
		if in.Description != nil {
			node.Description = *in.Description
		}
		if in.IsActive != nil {
			node.IsActive = *in.IsActive
		}
		if in.Leaf != nil {
			if err := validateLeaf(id, node.Level, in.Leaf); err != nil {
				return err
			}
			node.SetLeaf(in.Leaf)
		}
		return dbError("update_item", tx.Save(&node).Error)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// DeleteNode 删除模板节点（软删除）
// 有子节点，或被期间快照引用且策略禁止时返回 NodeInUse。
func (t *ItemTree) DeleteNode(ctx context.Context, actor Actor, id uint) error {
	if err := authorizeAdmin(actor); err != nil {
		return err
	}
	return t.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var node models.ItemNode
		if err := first(tx, &node, EntityItem, id); err != nil {
			return err
		}
		var kids int64
		if err := tx.Model(&models.ItemNode{}).Where("parent_id = ?", id).Count(&kids).Error; err != nil {
			return dbError("count_children", err)
		}
		if kids > 0 {
			return newError(KindNodeInUse, EntityItem, id, "科目 %s 下还有 %d 个子节点", node.Code, kids)
		}
		if t.store.policy.BlockReferencedTemplateDelete {
			var refs int64
			if err := tx.Model(&models.SnapshotItem{}).Where("template_item_id = ?", id).Count(&refs).Error; err != nil {
				return dbError("count_snapshot_refs", err)
			}
			if refs > 0 {
				return newError(KindNodeInUse, EntityItem, id, "科目 %s 已被 %d 个期间科目引用", node.Code, refs)
			}
		}
		return dbError("delete_item", tx.Delete(&node).Error)
	})
}

// GetNode 读取模板节点
func (t *ItemTree) GetNode(ctx context.Context, id uint) (*models.ItemNode, error) {
	var node models.ItemNode
	if err := first(t.store.conn(ctx), &node, EntityItem, id); err != nil {
		return nil, err
	}
	return &node, nil
}

// ComputeTotalTarget 计算节点目标总额：叶子为频次 × 单价，汇总节点为直接子节点之和
func (t *ItemTree) ComputeTotalTarget(ctx context.Context, id uint) (decimal.Decimal, error) {
	db := t.store.conn(ctx)
	var node models.ItemNode
	if err := first(db, &node, EntityItem, id); err != nil {
		return decimal.Zero, err
	}
	nodes, err := loadCategoryNodes(db, node.CategoryID)
	if err != nil {
		return decimal.Zero, err
	}
	totals, err := rollup(EntityItem, templateRollupNodes(nodes))
	if err != nil {
		return decimal.Zero, err
	}
	return totals[id], nil
}

// Tree 类别下的完整模板树，按编码排序
func (t *ItemTree) Tree(ctx context.Context, categoryID uint) ([]*TreeNode, error) {
	db := t.store.conn(ctx)
	var cat models.Category
	if err := first(db, &cat, EntityCategory, categoryID); err != nil {
		return nil, err
	}
	nodes, err := loadCategoryNodes(db, categoryID)
	if err != nil {
		return nil, err
	}
	totals, err := rollup(EntityItem, templateRollupNodes(nodes))
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &TreeNode{ItemNode: n, TotalTarget: totals[n.ID], Children: []*TreeNode{}}
	}
	roots := []*TreeNode{}
	for _, n := range nodes {
		tn := byID[n.ID]
		if n.ParentID != nil {
			if p, ok := byID[*n.ParentID]; ok {
				p.Children = append(p.Children, tn)
				continue
			}
		}
		roots = append(roots, tn)
	}
	return roots, nil
}

// loadCategoryNodes 类别下所有未删除的模板节点，按层级与编码排序
func loadCategoryNodes(db *gorm.DB, categoryID uint) ([]models.ItemNode, error) {
	var nodes []models.ItemNode
	if err := db.Where("category_id = ?", categoryID).Order("level ASC, id ASC").Find(&nodes).Error; err != nil {
		return nil, dbError("load_category_items", err)
	}
	sort.SliceStable(nodes, func(i, j int) bool { return codeLess(nodes[i].Code, nodes[j].Code) })
	return nodes, nil
}

// codeLess 按编码逐段数值比较（1.2 < 1.10）
func codeLess(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			return ai < bi
		}
		return as[i] < bs[i]
	}
	return len(as) < len(bs)
}
