package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/fleet-server/internal/config"
	"github.com/taoyao-code/fleet-server/internal/logging"

	_ "github.com/taoyao-code/fleet-server/docs"
)

// @title Fleet Server API
// @version 1.0
// @description 面向轮询式嵌入式设备的指令下发与固件发布服务
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	configPath := flag.String("config", "", "配置文件路径（缺省时读取FLEET_CONFIG或configs/example.yaml）")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 启动编排：数据库/Redis/对象存储/HTTP/清扫器
	if err := bootstrap.Run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}
