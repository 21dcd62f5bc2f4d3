package api

import (
	"parish/middleware"
	"parish/models"
	"parish/service"

	"github.com/gin-gonic/gin"
)

// ItemHandler 模板科目
type ItemHandler struct {
	budget *service.Budget
}

func NewItemHandler(budget *service.Budget) *ItemHandler {
	return &ItemHandler{budget: budget}
}

// ItemCreateRequest 创建模板科目
// 根节点传 category_id，子节点传 parent_id；层级 4 必须带 leaf。
type ItemCreateRequest struct {
	CategoryID  uint               `json:"category_id"`
	ParentID    *uint              `json:"parent_id"`
	Name        string             `json:"name" binding:"required,max=200"`
	Description string             `json:"description" binding:"max=500"`
	Level       int                `json:"level" binding:"required,min=1"`
	Code        string             `json:"code" binding:"max=50"`
	Leaf        *models.LeafTarget `json:"leaf"`
}

// ItemUpdateRequest 修改模板科目
type ItemUpdateRequest struct {
	Name        *string            `json:"name" binding:"omitempty,max=200"`
	Description *string            `json:"description" binding:"omitempty,max=500"`
	IsActive    *bool              `json:"is_active"`
	Leaf        *models.LeafTarget `json:"leaf"`
}

// Create 创建模板科目
// @Summary 创建模板科目
// @Description 仅管理员。层级 1-3 为汇总节点，层级 4 为叶子（目标频次 × 单价）
// @Tags 模板科目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ItemCreateRequest true "科目信息"
// @Success 200 {object} Response{data=models.ItemNode} "创建成功"
// @Failure 400 {object} Response "层级或叶子字段不合法"
// @Router /api/v1/items [post]
func (h *ItemHandler) Create(c *gin.Context) {
	var req ItemCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	node, err := h.budget.Tree.CreateNode(c.Request.Context(), middleware.CurrentActor(c), service.CreateNodeInput{
		CategoryID:  req.CategoryID,
		ParentID:    req.ParentID,
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
		Code:        req.Code,
		Leaf:        req.Leaf,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "创建成功", node)
}

// Get 获取模板科目
// @Summary 获取模板科目
// @Tags 模板科目
// @Produce json
// @Security BearerAuth
// @Param id path int true "科目ID"
// @Success 200 {object} Response{data=models.ItemNode} "获取成功"
// @Router /api/v1/items/{id} [get]
func (h *ItemHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	node, err := h.budget.Tree.GetNode(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, node)
}

// Update 修改模板科目
// @Summary 修改模板科目
// @Tags 模板科目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "科目ID"
// @Param request body ItemUpdateRequest true "科目信息"
// @Success 200 {object} Response{data=models.ItemNode} "修改成功"
// @Router /api/v1/items/{id} [put]
func (h *ItemHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ItemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	node, err := h.budget.Tree.UpdateNode(c.Request.Context(), middleware.CurrentActor(c), id, service.UpdateNodeInput{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
		Leaf:        req.Leaf,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "修改成功", node)
}

// Delete 删除模板科目
// @Summary 删除模板科目
// @Description 有子节点或已被期间引用时返回 409
// @Tags 模板科目
// @Produce json
// @Security BearerAuth
// @Param id path int true "科目ID"
// @Success 200 {object} Response "删除成功"
// @Failure 409 {object} Response "科目仍被使用"
// @Router /api/v1/items/{id} [delete]
func (h *ItemHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.budget.Tree.DeleteNode(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// Total 科目目标合计
// @Summary 计算模板科目的目标合计
// @Tags 模板科目
// @Produce json
// @Security BearerAuth
// @Param id path int true "科目ID"
// @Success 200 {object} Response "获取成功"
// @Router /api/v1/items/{id}/total [get]
func (h *ItemHandler) Total(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	total, err := h.budget.Tree.ComputeTotalTarget(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"item_id": id, "total_target": total})
}
