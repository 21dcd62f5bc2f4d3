package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"parish/config"
	"parish/database"
	"parish/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var (
	adminActor     = service.Actor{UserID: 1, Username: "admin", Role: service.RoleAdministrator}
	treasurerActor = service.Actor{UserID: 2, Username: "bendahara", Role: "bendahara"}
	staffActor     = service.Actor{UserID: 3, Username: "staff", Role: service.RoleStaff}
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testPolicy() service.Policy {
	p := service.DefaultPolicy()
	p.WriteRoles = []string{service.RoleAdministrator, "bendahara"}
	return p
}

// setupMockDB 用 sqlmock 替换底层连接，只用于断言 SQL 形状
func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *service.Budget, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return mock, service.New(gormDB, testPolicy()), func() {
		sqlDB.Close()
	}
}

// setupBudget 临时 SQLite 文件上的完整预算引擎
func setupBudget(t *testing.T) *service.Budget {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "parish.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return service.New(db, testPolicy())
}

// setActorMiddleware 模拟 JWT 中间件写入的身份
func setActorMiddleware(a service.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", a.UserID)
		c.Set("username", a.Username)
		c.Set("role", a.Role)
		c.Set("scope", a.Scope)
		c.Next()
	}
}

// newTestRouter 按调用者注册全部预算接口
func newTestRouter(budget *service.Budget, actor service.Actor, mailer *service.ReportMailer) *gin.Engine {
	r := gin.New()
	r.Use(setActorMiddleware(actor))

	categories := NewCategoryHandler(budget)
	r.GET("/categories", categories.List)
	r.POST("/categories", categories.Create)
	r.PUT("/categories/:id", categories.Update)
	r.DELETE("/categories/:id", categories.Delete)
	r.GET("/categories/:id/tree", categories.Tree)

	items := NewItemHandler(budget)
	r.POST("/items", items.Create)
	r.GET("/items/:id", items.Get)
	r.PUT("/items/:id", items.Update)
	r.DELETE("/items/:id", items.Delete)
	r.GET("/items/:id/total", items.Total)

	periods := NewPeriodHandler(budget)
	reports := NewReportHandler(budget, mailer)
	r.GET("/periods", periods.List)
	r.POST("/periods", periods.Create)
	r.GET("/periods/:id", periods.Get)
	r.PUT("/periods/:id/status", periods.SetStatus)
	r.POST("/periods/:id/populate", periods.Populate)
	r.GET("/periods/:id/snapshot", periods.Snapshot)
	r.GET("/periods/:id/summary", reports.PeriodSummary)
	r.GET("/periods/:id/categories/:cid/summary", reports.CategorySummary)
	r.GET("/periods/:id/export", reports.Export)
	r.POST("/periods/:id/report/email", reports.Email)

	realizations := NewRealizationHandler(budget)
	r.POST("/realizations", realizations.Create)
	r.PUT("/realizations/:id", realizations.Update)
	r.DELETE("/realizations/:id", realizations.Delete)
	r.GET("/snapshot-items/:id", realizations.ItemDetail)
	r.GET("/snapshot-items/:id/realizations", realizations.List)
	return r
}

type testResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do 发送请求并解析通用响应，body 为 nil 时不带请求体
func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp testResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// decode 把 data 解到 v
func decode(t *testing.T, resp testResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
