package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/api/middleware"
	"github.com/taoyao-code/fleet-server/internal/delivery"
	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/metrics"
	"github.com/taoyao-code/fleet-server/internal/objstore"
	"github.com/taoyao-code/fleet-server/internal/presence"
	"github.com/taoyao-code/fleet-server/internal/storage"
)

// DeviceRouteDeps 设备端路由依赖
type DeviceRouteDeps struct {
	Reconciler *fleet.Reconciler
	Engine     *fleet.Engine
	Devices    DeviceSource
	Objstore   objstore.Store
	Limiter    *delivery.RateLimiter
	Tracker    *delivery.Tracker
	Presence   presence.Tracker
	Metrics    *metrics.AppMetrics
	AuthCfg    middleware.DeviceAuthConfig
	Logger     *zap.Logger
}

// RegisterDeviceRoutes 注册设备端路由（心跳、配置、OTA）
func RegisterDeviceRoutes(r *gin.Engine, deps DeviceRouteDeps) {
	deviceHandler := NewDeviceHandler(deps.Reconciler, deps.Presence, deps.Metrics, deps.Logger)
	otaHandler := NewOTAHandler(deps.Engine, deps.Devices, deps.Objstore,
		deps.Limiter, deps.Tracker, deps.Metrics, deps.Logger)

	device := r.Group("/api/v1/device")
	device.Use(middleware.RequestTracing())
	device.Use(middleware.DeviceAuth(deps.AuthCfg, deps.Logger))
	if !deps.AuthCfg.Enabled {
		deps.Logger.Warn("device authentication disabled - only for development!")
	}

	device.POST("/heartbeat", deviceHandler.Heartbeat)
	device.GET("/config", deviceHandler.DownloadConfig)
	device.POST("/config/ack", deviceHandler.AckConfig)

	device.GET("/ota/check", otaHandler.CheckUpdate)
	device.GET("/ota/download/:version", otaHandler.Download)
	device.POST("/ota/report", otaHandler.Report)

	deps.Logger.Info("device routes registered", zap.Int("endpoints", 6))
}

// AdminRouteDeps 管理面路由依赖
type AdminRouteDeps struct {
	Core     storage.CoreRepo
	Engine   *fleet.Engine
	Presence presence.Tracker
	AuthCfg  middleware.AuthConfig
	Logger   *zap.Logger
}

// RegisterAdminRoutes 注册管理面路由（活动、设备命令、配置、固件）
func RegisterAdminRoutes(r *gin.Engine, deps AdminRouteDeps) {
	campaignHandler := NewCampaignHandler(deps.Engine, deps.Logger)
	adminHandler := NewAdminHandler(deps.Core, deps.Engine, deps.Presence, deps.Logger)

	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.RequestTracing())
	if deps.AuthCfg.Enabled {
		admin.Use(middleware.APIKeyAuth(deps.AuthCfg, deps.Logger))
		deps.Logger.Info("admin authentication enabled",
			zap.Int("api_keys_count", len(deps.AuthCfg.APIKeys)))
	} else {
		deps.Logger.Warn("admin authentication disabled - only for development!")
	}

	admin.POST("/campaigns", campaignHandler.CreateCampaign)
	admin.GET("/campaigns/:id", campaignHandler.GetCampaign)
	admin.POST("/campaigns/:id/cancel", campaignHandler.CancelCampaign)

	admin.POST("/devices/:serial/commands", adminHandler.SetDeviceCommands)
	admin.GET("/devices/:serial/updates", campaignHandler.DeviceHistory)
	admin.POST("/devices/:serial/config", adminHandler.AssignDeviceConfig)

	admin.POST("/configurations", adminHandler.CreateConfiguration)
	admin.POST("/configurations/:id/bump", adminHandler.BumpConfiguration)

	admin.POST("/firmware", adminHandler.RegisterFirmware)
	admin.POST("/firmware/:version/activate", adminHandler.ActivateFirmware)

	deps.Logger.Info("admin routes registered", zap.Int("endpoints", 10))
}

// RegisterSwaggerRoutes 注册Swagger文档路由（按配置开关）
func RegisterSwaggerRoutes(r *gin.Engine, logger *zap.Logger) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	logger.Info("swagger ui registered", zap.String("path", "/swagger/index.html"))
}
