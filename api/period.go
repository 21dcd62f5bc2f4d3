package api

import (
	"strconv"

	"parish/middleware"
	"parish/service"

	"github.com/gin-gonic/gin"
)

// PeriodHandler 预算期间、状态与填充
type PeriodHandler struct {
	budget *service.Budget
}

func NewPeriodHandler(budget *service.Budget) *PeriodHandler {
	return &PeriodHandler{budget: budget}
}

// PeriodCreateRequest 创建期间
type PeriodCreateRequest struct {
	Name      string `json:"name" binding:"max=100"`
	Year      int    `json:"year" binding:"required"`
	StartDate string `json:"start_date" binding:"required"` // 2006-01-02
	EndDate   string `json:"end_date" binding:"required"`
}

// PeriodStatusRequest 变更状态
type PeriodStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PopulateRequest 填充期间
type PopulateRequest struct {
	Overwrite bool `json:"overwrite"`
}

// List 列出期间
// @Summary 获取预算期间列表
// @Tags 预算期间
// @Produce json
// @Security BearerAuth
// @Param year query int false "年度"
// @Success 200 {object} Response{data=[]models.Period} "获取成功"
// @Router /api/v1/periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	year := 0
	if s := c.Query("year"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			BadRequest(c, "年度格式错误")
			return
		}
		year = v
	}
	list, err := h.budget.Periods.ListPeriods(c.Request.Context(), year)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, list)
}

// Create 创建期间
// @Summary 创建预算期间
// @Description 仅管理员；初始状态 DRAFT。同一年度与进行中期间日期重叠时返回 409
// @Tags 预算期间
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PeriodCreateRequest true "期间信息"
// @Success 200 {object} Response{data=models.Period} "创建成功"
// @Failure 400 {object} Response "日期范围不合法"
// @Failure 409 {object} Response "期间重叠"
// @Router /api/v1/periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	var req PeriodCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		BadRequest(c, "开始日期格式错误，应为: 2006-01-02")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		BadRequest(c, "结束日期格式错误，应为: 2006-01-02")
		return
	}
	p, err := h.budget.Periods.CreatePeriod(c.Request.Context(), middleware.CurrentActor(c), service.CreatePeriodInput{
		Name:      req.Name,
		Year:      req.Year,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "创建成功", p)
}

// Get 获取期间
// @Summary 获取预算期间
// @Tags 预算期间
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Success 200 {object} Response{data=models.Period} "获取成功"
// @Router /api/v1/periods/{id} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.budget.Periods.GetPeriod(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, p)
}

// SetStatus 变更期间状态
// @Summary 变更预算期间状态
// @Description DRAFT → ACTIVE → CLOSED，不能回退
// @Tags 预算期间
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Param request body PeriodStatusRequest true "目标状态"
// @Success 200 {object} Response{data=models.Period} "修改成功"
// @Failure 409 {object} Response "状态不能回退或期间重叠"
// @Router /api/v1/periods/{id}/status [put]
func (h *PeriodHandler) SetStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req PeriodStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	p, err := h.budget.Periods.SetStatus(c.Request.Context(), middleware.CurrentActor(c), id, req.Status)
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "修改成功", p)
}

// Populate 填充期间预算
// @Summary 从当前模板填充期间预算
// @Description 已填充且未选择覆盖时返回 409；覆盖会删除该期间全部实际记录
// @Tags 预算期间
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Param request body PopulateRequest false "是否覆盖"
// @Success 200 {object} Response{data=service.PopulateResult} "填充成功"
// @Failure 409 {object} Response "已填充或期间已关闭"
// @Router /api/v1/periods/{id}/populate [post]
func (h *PeriodHandler) Populate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req PopulateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "参数错误: "+err.Error())
			return
		}
	}
	res, err := h.budget.Populator.Populate(c.Request.Context(), middleware.CurrentActor(c), id, req.Overwrite)
	if err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "填充成功", res)
}

// Snapshot 期间科目
// @Summary 获取期间预算科目
// @Tags 预算期间
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Success 200 {object} Response{data=[]models.SnapshotItem} "获取成功"
// @Router /api/v1/periods/{id}/snapshot [get]
func (h *PeriodHandler) Snapshot(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	items, err := h.budget.Populator.Snapshot(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, items)
}
