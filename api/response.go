package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"parish/service"

	"github.com/gin-gonic/gin"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// InternalError 500 错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// statusFor 预算引擎错误对应的 HTTP 状态码
func statusFor(e *service.Error) int {
	if e.Kind == service.KindNodeInUse {
		return http.StatusConflict
	}
	switch e.Kind.Class() {
	case service.ClassConflict:
		return http.StatusConflict
	case service.ClassNotFound:
		return http.StatusNotFound
	case service.ClassForbidden:
		return http.StatusForbidden
	case service.ClassIntegrity:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// ServiceError 把预算引擎错误写成响应，data 中带出错的实体与字段
// 存储的树损坏时记录告警；其它错误在 release 模式下隐藏细节。
func ServiceError(c *gin.Context, err error) {
	var se *service.Error
	if errors.As(err, &se) {
		status := statusFor(se)
		if se.Kind == service.KindHierarchyCorrupt {
			log.Printf("[ALERT] %s %s: %v", c.Request.Method, c.Request.URL.Path, se)
		}
		c.JSON(status, Response{Code: status, Message: se.Message, Data: se})
		return
	}
	log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	InternalError(c, SafeErrorMessage(err, "服务器内部错误"))
}

// paramID 读取路径中的 id
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "无效的 "+name)
		return 0, false
	}
	return uint(id), true
}

// parseDate 解析 2006-01-02 格式日期
func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.Local)
}
