package api

import (
	"parish/middleware"
	"parish/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RealizationHandler 实际记录与期间科目明细
type RealizationHandler struct {
	budget *service.Budget
}

func NewRealizationHandler(budget *service.Budget) *RealizationHandler {
	return &RealizationHandler{budget: budget}
}

// RealizationRequest 记录实际
type RealizationRequest struct {
	SnapshotItemID uint            `json:"snapshot_item_id" binding:"required"`
	Date           string          `json:"date" binding:"required"` // 2006-01-02
	Amount         decimal.Decimal `json:"amount" swaggertype:"string"`
	Note           string          `json:"note" binding:"max=500"`
}

// RealizationUpdateRequest 修改实际
type RealizationUpdateRequest struct {
	Date   string          `json:"date" binding:"required"`
	Amount decimal.Decimal `json:"amount" swaggertype:"string"`
	Note   string          `json:"note" binding:"max=500"`
}

// Create 记录实际
// @Summary 记录一笔实际
// @Description 只能记录在层级 4 的期间科目上，金额不能为负，期间关闭后不能写入
// @Tags 实际记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RealizationRequest true "实际信息"
// @Success 200 {object} Response{data=models.Realization} "记录成功"
// @Failure 400 {object} Response "金额为负或科目不是叶子"
// @Failure 403 {object} Response "无权限"
// @Failure 409 {object} Response "期间已关闭"
// @Router /api/v1/realizations [post]
func (h *RealizationHandler) Create(c *gin.Context) {
	var req RealizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		BadRequest(c, "日期格式错误，应为: 2006-01-02")
		return
	}
	rec, err := h.budget.Ledger.RecordRealization(c.Request.Context(), middleware.CurrentActor(c), service.RealizationInput{
		SnapshotItemID: req.SnapshotItemID,
		Date:           date,
		Amount:         req.Amount,
		Note:           req.Note,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "记录成功", rec)
}

// Update 修改实际
// @Summary 修改一笔实际
// @Tags 实际记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "实际ID"
// @Param request body RealizationUpdateRequest true "实际信息"
// @Success 200 {object} Response{data=models.Realization} "修改成功"
// @Router /api/v1/realizations/{id} [put]
func (h *RealizationHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req RealizationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		BadRequest(c, "日期格式错误，应为: 2006-01-02")
		return
	}
	rec, err := h.budget.Ledger.UpdateRealization(c.Request.Context(), middleware.CurrentActor(c), id, service.RealizationUpdate{
		Date:   date,
		Amount: req.Amount,
		Note:   req.Note,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "修改成功", rec)
}

// Delete 删除实际
// @Summary 删除一笔实际
// @Tags 实际记录
// @Produce json
// @Security BearerAuth
// @Param id path int true "实际ID"
// @Success 200 {object} Response "删除成功"
// @Router /api/v1/realizations/{id} [delete]
func (h *RealizationHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.budget.Ledger.DeleteRealization(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// ItemDetail 期间科目明细
// @Summary 获取期间科目明细
// @Description 目标、实际、差异，子科目递归展开，叶子带实际记录
// @Tags 实际记录
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间科目ID"
// @Success 200 {object} Response{data=service.ItemDetail} "获取成功"
// @Router /api/v1/snapshot-items/{id} [get]
func (h *RealizationHandler) ItemDetail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.budget.Reporter.ItemDetail(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, d)
}

// List 期间科目的实际记录
// @Summary 获取期间科目的实际记录
// @Tags 实际记录
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间科目ID"
// @Success 200 {object} Response{data=[]models.Realization} "获取成功"
// @Router /api/v1/snapshot-items/{id}/realizations [get]
func (h *RealizationHandler) List(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.budget.Ledger.ListRealizations(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	total, err := h.budget.Ledger.ActualTotal(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"total_actual": total, "list": list})
}
