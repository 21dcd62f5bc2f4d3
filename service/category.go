package service

import (
	"context"
	"strings"

	"parish/models"

	"gorm.io/gorm"
)

// CategoryInput 创建/修改类别
type CategoryInput struct {
	Name     *string `json:"name"`
	Kind     *string `json:"kind"`
	ScopeKey *string `json:"scope_key"`
	Sort     *int    `json:"sort"`
	IsActive *bool   `json:"is_active"`
}

func validKind(kind string) bool {
	return kind == models.CategoryKindIncome || kind == models.CategoryKindExpenditure
}

// ListCategories 列出所有类别
func (t *ItemTree) ListCategories(ctx context.Context) ([]models.Category, error) {
	var list []models.Category
	if err := t.store.conn(ctx).Order("sort ASC, id ASC").Find(&list).Error; err != nil {
		return nil, dbError("list_categories", err)
	}
	return list, nil
}

// CreateCategory 创建类别，默认启用、性质为支出
func (t *ItemTree) CreateCategory(ctx context.Context, actor Actor, in CategoryInput) (*models.Category, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	cat := models.Category{Kind: models.CategoryKindExpenditure, IsActive: true}
	if err := applyCategoryInput(&cat, in); err != nil {
		return nil, err
	}
	if cat.Name == "" {
		return nil, fieldError(KindInvalidInput, EntityCategory, 0, "name", "名称不能为空")
	}

	err := t.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkCategoryName(tx, cat.Name, 0); err != nil {
			return err
		}
		return dbError("create_category", tx.Create(&cat).Error)
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// UpdateCategory 修改类别
func (t *ItemTree) UpdateCategory(ctx context.Context, actor Actor, id uint, in CategoryInput) (*models.Category, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	var cat models.Category
	err := t.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &cat, EntityCategory, id); err != nil {
			return err
		}
		if err := applyCategoryInput(&cat, in); err != nil {
			return err
		}
		if cat.Name == "" {
			return fieldError(KindInvalidInput, EntityCategory, id, "name", "名称不能为空")
		}
		if err := checkCategoryName(tx, cat.Name, id); err != nil {
			return err
		}
		return dbError("update_category", tx.Save(&cat).Error)
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// DeleteCategory 删除类别，仍有模板科目时返回 NodeInUse
func (t *ItemTree) DeleteCategory(ctx context.Context, actor Actor, id uint) error {
	if err := authorizeAdmin(actor); err != nil {
		return err
	}
	return t.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var cat models.Category
		if err := first(tx, &cat, EntityCategory, id); err != nil {
			return err
		}
		var items int64
		if err := tx.Model(&models.ItemNode{}).Where("category_id = ?", id).Count(&items).Error; err != nil {
			return dbError("count_category_items", err)
		}
		if items > 0 {
			return newError(KindNodeInUse, EntityCategory, id, "类别 %s 下还有 %d 个模板科目", cat.Name, items)
		}
		return dbError("delete_category", tx.Delete(&cat).Error)
	})
}

func applyCategoryInput(cat *models.Category, in CategoryInput) error {
	if in.Name != nil {
		cat.Name = strings.TrimSpace(*in.Name)
	}
	if in.Kind != nil {
		if !validKind(*in.Kind) {
			return fieldError(KindInvalidInput, EntityCategory, cat.ID, "kind", "类别性质必须是 income 或 expenditure")
		}
		cat.Kind = *in.Kind
	}
	if in.ScopeKey != nil {
		cat.ScopeKey = strings.TrimSpace(*in.ScopeKey)
	}
	if in.Sort != nil {
		cat.Sort = *in.Sort
	}
	if in.IsActive != nil {
		cat.IsActive = *in.IsActive
	}
	return nil
}

func checkCategoryName(tx *gorm.DB, name string, selfID uint) error {
	var n int64
	if err := tx.Model(&models.Category{}).Where("name = ? AND id <> ?", name, selfID).Count(&n).Error; err != nil {
		return dbError("check_category_name", err)
	}
	if n > 0 {
		return fieldError(KindInvalidInput, EntityCategory, selfID, "name", "类别名称已存在")
	}
	return nil
}
