package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestWriteRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// 短窗口 200ms，最多 2 次
	router := gin.New()
	router.Use(WriteRateLimit(2, 200*time.Millisecond))
	router.POST("/realizations", func(c *gin.Context) {
		c.String(200, "ok")
	})
	router.GET("/realizations", func(c *gin.Context) {
		c.String(200, "ok")
	})

	doReq := func(method, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/realizations", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w1 := doReq("POST", "192.168.1.1")
	w2 := doReq("POST", "192.168.1.1")
	w3 := doReq("POST", "192.168.1.1")

	assert.Equal(t, 200, w1.Code)
	assert.Equal(t, 200, w2.Code)
	assert.Equal(t, http.StatusTooManyRequests, w3.Code)
	assert.Contains(t, w3.Body.String(), "频繁")

	// 读请求不计数
	assert.Equal(t, 200, doReq("GET", "192.168.1.1").Code)

	// 不同 IP 互不影响
	assert.Equal(t, 200, doReq("POST", "192.168.1.2").Code)

	// 窗口过后恢复
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 200, doReq("POST", "192.168.1.1").Code)
}

func TestWriteRateLimit_PerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u == "7" {
			c.Set("userID", uint(7))
		} else if u == "8" {
			c.Set("userID", uint(8))
		}
		c.Next()
	})
	router.Use(WriteRateLimit(1, time.Minute))
	router.DELETE("/x", func(c *gin.Context) { c.String(200, "ok") })

	doReq := func(user string) int {
		req := httptest.NewRequest("DELETE", "/x", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req.Header.Set("X-Test-User", user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, 200, doReq("7"))
	assert.Equal(t, http.StatusTooManyRequests, doReq("7"))
	// 同一 IP 的另一个用户
	assert.Equal(t, 200, doReq("8"))
}

func TestWriteRateLimit_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(WriteRateLimit(0, time.Minute))
	router.POST("/x", func(c *gin.Context) { c.String(200, "ok") })

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/x", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	}
}
