package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 设备端请求头
const (
	HeaderDeviceSerial = "X-Device-Serial"
	HeaderDeviceToken  = "X-Device-Token"
)

// ContextDeviceSerial 认证通过后序列号的上下文键
const ContextDeviceSerial = "device_serial"

// DeviceAuthConfig 设备令牌认证配置
type DeviceAuthConfig struct {
	Secret  string `json:"-"`
	Enabled bool   `json:"enabled"`
}

// SignDeviceToken 计算设备令牌：HMAC-SHA256(secret, serial) 的 hex 编码。
// 设备在烧录/开通时获得令牌，服务端按同样方式重算比对。
func SignDeviceToken(secret, serial string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(serial))
	return hex.EncodeToString(mac.Sum(nil))
}

// DeviceAuth 设备令牌认证中间件。
//
// 设备在Header携带 X-Device-Serial 与 X-Device-Token，令牌为序列号的
// HMAC摘要，比较使用常数时间。仅做准入门禁，不建会话；验证通过后
// 序列号写入上下文供处理器使用。
func DeviceAuth(cfg DeviceAuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		serial := c.GetHeader(HeaderDeviceSerial)

		// 未启用认证时仅透传序列号（开发环境）
		if !cfg.Enabled {
			if serial != "" {
				c.Set(ContextDeviceSerial, serial)
			}
			c.Next()
			return
		}

		token := c.GetHeader(HeaderDeviceToken)
		if serial == "" || token == "" {
			logger.Warn("device auth: missing credentials",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "请在Header中提供 X-Device-Serial 与 X-Device-Token",
			})
			return
		}

		expected := SignDeviceToken(cfg.Secret, serial)
		if !hmac.Equal([]byte(token), []byte(expected)) {
			logger.Warn("device auth: token mismatch",
				zap.String("path", c.Request.URL.Path),
				zap.String("serial", serial),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "设备令牌无效",
			})
			return
		}

		c.Set(ContextDeviceSerial, serial)
		c.Next()
	}
}
