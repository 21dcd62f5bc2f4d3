package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// slidingWindow 按 key 记录窗口内的请求时间
type slidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	w := &slidingWindow{window: window, max: max, hits: make(map[string][]time.Time)}
	// 定期清理过期数据
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			w.mu.Lock()
			cutoff := time.Now().Add(-w.window)
			for k := range w.hits {
				if w.trim(k, cutoff) == 0 {
					delete(w.hits, k)
				}
			}
			w.mu.Unlock()
		}
	}()
	return w
}

// trim 移除窗口外的记录，调用方持锁
func (w *slidingWindow) trim(key string, cutoff time.Time) int {
	ts := w.hits[key][:0]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			ts = append(ts, t)
		}
	}
	w.hits[key] = ts
	return len(ts)
}

func (w *slidingWindow) allow(key string) bool {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.trim(key, now.Add(-w.window)) >= w.max {
		return false
	}
	w.hits[key] = append(w.hits[key], now)
	return true
}

// WriteRateLimit 写接口限流中间件
// 只统计 POST/PUT/PATCH/DELETE；已认证时按用户计数，否则按 IP。max <= 0 表示不限流。
func WriteRateLimit(max int, window time.Duration) gin.HandlerFunc {
	if max <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newSlidingWindow(max, window)

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if id := GetCurrentUserID(c); id != 0 {
			key = fmt.Sprintf("user:%d", id)
		}
		if !limiter.allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "写入过于频繁，请稍后再试",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
