package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"

	"parish/middleware"
	"parish/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler 报表、导出与邮件
type ReportHandler struct {
	budget *service.Budget
	mailer *service.ReportMailer
}

// NewReportHandler 创建报表处理器，mailer 为 nil 时邮件接口返回 503
func NewReportHandler(budget *service.Budget, mailer *service.ReportMailer) *ReportHandler {
	return &ReportHandler{budget: budget, mailer: mailer}
}

// EmailReportRequest 发送报表
type EmailReportRequest struct {
	To []string `json:"to" binding:"omitempty,dive,email"`
}

// PeriodSummary 期间汇总
// @Summary 获取期间汇总
// @Description 各类别目标、实际与差异，以及收入减支出的结余
// @Tags 报表
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Success 200 {object} Response{data=service.PeriodSummary} "获取成功"
// @Failure 404 {object} Response "期间不存在"
// @Router /api/v1/periods/{id}/summary [get]
func (h *ReportHandler) PeriodSummary(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ps, err := h.budget.Reporter.PeriodSummary(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, ps)
}

// CategorySummary 类别汇总
// @Summary 获取期间内某类别的汇总
// @Tags 报表
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Param cid path int true "类别ID"
// @Success 200 {object} Response{data=service.CategorySummary} "获取成功"
// @Failure 404 {object} Response "期间或类别不存在"
// @Router /api/v1/periods/{id}/categories/{cid}/summary [get]
func (h *ReportHandler) CategorySummary(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cid, ok := paramID(c, "cid")
	if !ok {
		return
	}
	cs, err := h.budget.Reporter.CategorySummary(c.Request.Context(), id, cid)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, cs)
}

// Export 导出期间报表
// @Summary 导出期间报表为 Excel
// @Description 汇总页加每个类别一页
// @Tags 报表
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Success 200 {file} file "Excel 文件"
// @Failure 404 {object} Response "期间不存在"
// @Router /api/v1/periods/{id}/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.budget.Periods.GetPeriod(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.budget.Reporter.ExportPeriod(c.Request.Context(), id, &buf); err != nil {
		ServiceError(c, err)
		return
	}

	filename := url.PathEscape(service.ExportFilename(p))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", filename))
	c.Header("Content-Length", fmt.Sprintf("%d", buf.Len()))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Email 邮件发送期间报表
// @Summary 邮件发送期间报表
// @Description to 为空时发给配置中的收件人
// @Tags 报表
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "期间ID"
// @Param request body EmailReportRequest false "收件人"
// @Success 200 {object} Response "发送成功"
// @Failure 503 {object} Response "邮件服务未启用"
// @Router /api/v1/periods/{id}/report/email [post]
func (h *ReportHandler) Email(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if h.mailer == nil {
		Error(c, http.StatusServiceUnavailable, "邮件服务未启用")
		return
	}
	var req EmailReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "参数错误: "+err.Error())
			return
		}
	}
	if err := h.budget.Policy().AuthorizeWrite(middleware.CurrentActor(c)); err != nil {
		ServiceError(c, err)
		return
	}
	if err := h.mailer.MailPeriodReport(c.Request.Context(), id, req.To); err != nil {
		ServiceError(c, err)
		return
	}
	SuccessWithMessage(c, "发送成功", nil)
}
