package api

import (
	"parish/middleware"
	"parish/service"

	"github.com/gin-gonic/gin"
)

// CategoryHandler 预算类别与模板树
type CategoryHandler struct {
	budget *service.Budget
}

func NewCategoryHandler(budget *service.Budget) *CategoryHandler {
	return &CategoryHandler{budget: budget}
}

// CategoryRequest 创建/修改类别，未提供的字段不修改
type CategoryRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=100"`
	Kind     *string `json:"kind" binding:"omitempty,oneof=income expenditure"`
	ScopeKey *string `json:"scope_key" binding:"omitempty,max=50"`
	Sort     *int    `json:"sort"`
	IsActive *bool   `json:"is_active"`
}

func (r CategoryRequest) input() service.CategoryInput {
	return service.CategoryInput{Name: r.Name, Kind: r.Kind, ScopeKey: r.ScopeKey, Sort: r.Sort, IsActive: r.IsActive}
}

// List 列出类别
// @Summary 获取预算类别列表
// @Tags 预算类别
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Category} "获取成功"
// @Router /api/v1/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	list, err := h.budget.Tree.ListCategories(c.Request.Context())
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, list)
}

// Create 创建类别
// @Summary 创建预算类别
// @Description 仅管理员；默认性质为支出、启用
// @Tags 预算类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CategoryRequest true "类别信息"
// @Success 200 {object} Response{data=models.Category} "创建成功"
// @Failure 400 {object} Response "参数错误或名称已存在"
// @Failure 403 {object} Response "无权限"
// @Router /api/v1/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	cat, err := h.budget.Tree.CreateCategory(c.Request.Context(), middleware.CurrentActor(c), req.input())
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "创建成功", cat)
}

// Update 修改类别
// @Summary 修改预算类别
// @Tags 预算类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param request body CategoryRequest true "类别信息"
// @Success 200 {object} Response{data=models.Category} "修改成功"
// @Failure 404 {object} Response "类别不存在"
// @Router /api/v1/categories/{id} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	cat, err := h.budget.Tree.UpdateCategory(c.Request.Context(), middleware.CurrentActor(c), id, req.input())
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "修改成功", cat)
}

// Delete 删除类别
// @Summary 删除预算类别
// @Description 类别下仍有模板科目时返回 409
// @Tags 预算类别
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Success 200 {object} Response "删除成功"
// @Failure 409 {object} Response "类别仍被使用"
// @Router /api/v1/categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.budget.Tree.DeleteCategory(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// Tree 类别模板树
// @Summary 获取类别下的模板科目树
// @Description 每个节点带实时计算的目标合计
// @Tags 预算类别
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Success 200 {object} Response{data=[]service.TreeNode} "获取成功"
// @Router /api/v1/categories/{id}/tree [get]
func (h *CategoryHandler) Tree(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	roots, err := h.budget.Tree.Tree(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, roots)
}
