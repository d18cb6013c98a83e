package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/fleet-server/internal/config"
	"github.com/taoyao-code/fleet-server/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg cfgpkg.ServerConfig, metricsHandler http.Handler, readyFn func() bool) *httpserver.Server {
	return httpserver.New(cfg, metricsHandler, readyFn)
}
