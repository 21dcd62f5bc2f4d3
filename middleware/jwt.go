package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"parish/config"
	"parish/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 上下文键
const (
	ctxUserID   = "userID"
	ctxUsername = "username"
	ctxRole     = "role"
	ctxScope    = "scope"
)

var jwtSecret []byte

// Claims 身份提供方签发的 token 声明
// 登录不在本服务内完成，这里只校验签名并读取角色与负责范围。
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// InitJWT 初始化 JWT 密钥
func InitJWT(cfg *config.Config) {
	jwtSecret = []byte(cfg.JWT.Secret)
}

// GenerateActorToken 生成带角色与范围的 token，供身份提供方与测试使用
func GenerateActorToken(actor service.Actor, expire time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   actor.UserID,
		Username: actor.Username,
		Role:     actor.Role,
		Scope:    actor.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "parish",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

// ParseToken 解析并校验 token
func ParseToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token 为空")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("无效的 token")
	}
	return claims, nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": message})
	c.Abort()
}

// JWTAuth Bearer token 认证中间件
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "请先登录")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "认证格式错误")
			return
		}
		claims, err := ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			abortUnauthorized(c, "token 无效或已过期")
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxScope, claims.Scope)
		c.Next()
	}
}

// GetCurrentUserID 获取当前用户 ID
func GetCurrentUserID(c *gin.Context) uint {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// CurrentActor 当前调用者
func CurrentActor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID:   GetCurrentUserID(c),
		Username: c.GetString(ctxUsername),
		Role:     c.GetString(ctxRole),
		Scope:    c.GetString(ctxScope),
	}
}
