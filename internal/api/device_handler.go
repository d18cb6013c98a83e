package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/api/middleware"
	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/metrics"
	"github.com/taoyao-code/fleet-server/internal/presence"
)

// DeviceHandler 设备端API处理器：心跳对账与配置下载/确认
type DeviceHandler struct {
	reconciler *fleet.Reconciler
	presence   presence.Tracker
	metrics    *metrics.AppMetrics
	logger     *zap.Logger
}

// NewDeviceHandler 创建设备端处理器
func NewDeviceHandler(
	reconciler *fleet.Reconciler,
	tracker presence.Tracker,
	appMetrics *metrics.AppMetrics,
	logger *zap.Logger,
) *DeviceHandler {
	return &DeviceHandler{
		reconciler: reconciler,
		presence:   tracker,
		metrics:    appMetrics,
		logger:     logger,
	}
}

// deviceSerial 从认证上下文取设备序列号
func deviceSerial(c *gin.Context) string {
	return c.GetString(middleware.ContextDeviceSerial)
}

// HeartbeatRequest 设备心跳请求
type HeartbeatRequest struct {
	Serial    string `json:"serial"`              // 序列号（已认证时可省略）
	ConfigID  int64  `json:"config_id"`           // 设备当前持有的配置ID，0=无
	FwVersion string `json:"fw_version"`          // 自报固件版本
	UptimeSec int64  `json:"uptime_sec" binding:"min=0"` // 开机秒数
}

// HeartbeatResponse 单次心跳的命令集合
type HeartbeatResponse struct {
	ConfigUpdate bool   `json:"config_update"`           // 需要拉取配置
	ConfigReason string `json:"config_reason,omitempty"` // 漂移原因
	Reboot       bool   `json:"reboot"`                  // 软重启
	HardReset    bool   `json:"hard_reset"`              // 硬复位
	FwUpdate     int    `json:"fw_update"`               // 0=无 1=升级 2=回滚
	LogsEnabled  bool   `json:"logs_enabled"`            // 日志上传开关
}

// Heartbeat 设备心跳
// @Summary 设备心跳
// @Description 设备周期轮询：对账配置漂移、取走一次性命令与固件指令
// @Tags 设备API
// @Accept json
// @Produce json
// @Param request body HeartbeatRequest true "心跳载荷"
// @Success 200 {object} StandardResponse{data=HeartbeatResponse} "成功"
// @Failure 400 {object} StandardResponse "参数错误"
// @Router /api/v1/device/heartbeat [post]
func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	ctx := c.Request.Context()

	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	serial := deviceSerial(c)
	switch {
	case serial == "" && req.Serial == "":
		respondError(c, http.StatusBadRequest, "device serial required")
		return
	case serial == "":
		serial = req.Serial
	case req.Serial != "" && req.Serial != serial:
		// 令牌归属与载荷序列号不一致，拒绝
		respondError(c, http.StatusBadRequest, "serial does not match credentials")
		return
	}

	res, err := h.reconciler.Heartbeat(ctx, fleet.HeartbeatRequest{
		Serial:    serial,
		ConfigID:  req.ConfigID,
		FwVersion: req.FwVersion,
		UptimeSec: req.UptimeSec,
	})
	if err != nil {
		h.logger.Error("heartbeat failed", zap.String("serial", serial), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	now := time.Now()
	h.presence.Touch(serial, now)
	h.observe(res, now)

	respondOK(c, HeartbeatResponse{
		ConfigUpdate: res.ConfigUpdate,
		ConfigReason: res.ConfigReason,
		Reboot:       res.Reboot,
		HardReset:    res.HardReset,
		FwUpdate:     res.Firmware,
		LogsEnabled:  res.LogsEnabled,
	})
}

// observe 记录心跳相关指标
func (h *DeviceHandler) observe(res *fleet.HeartbeatResult, now time.Time) {
	h.metrics.HeartbeatTotal.Inc()
	h.metrics.OnlineGauge.Set(float64(h.presence.OnlineCount(now)))
	if res.ConfigUpdate {
		h.metrics.ConfigRefreshTotal.WithLabelValues(res.ConfigReason).Inc()
	}
	if res.Reboot {
		h.metrics.CommandTotal.WithLabelValues("reboot").Inc()
	}
	if res.HardReset {
		h.metrics.CommandTotal.WithLabelValues("hard_reset").Inc()
	}
	switch res.Firmware {
	case fleet.FirmwareUpdate:
		h.metrics.CommandTotal.WithLabelValues("fw_update").Inc()
	case fleet.FirmwareRollback:
		h.metrics.CommandTotal.WithLabelValues("rollback").Inc()
	}
}

// ConfigPayload 配置下载响应
type ConfigPayload struct {
	ConfigID int64           `json:"config_id"`
	Name     string          `json:"name"`
	Version  int             `json:"version"`
	Content  json.RawMessage `json:"content"`
}

// DownloadConfig 下载设备配置
// @Summary 下载配置
// @Description 返回设备指派的配置档案全文，并记录下载时间
// @Tags 设备API
// @Produce json
// @Success 200 {object} StandardResponse{data=ConfigPayload} "成功"
// @Failure 404 {object} StandardResponse "未指派配置"
// @Router /api/v1/device/config [get]
func (h *DeviceHandler) DownloadConfig(c *gin.Context) {
	serial := deviceSerial(c)
	if serial == "" {
		respondError(c, http.StatusBadRequest, "device serial required")
		return
	}

	cfg, err := h.reconciler.DownloadConfig(c.Request.Context(), serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondOK(c, ConfigPayload{
		ConfigID: cfg.ID,
		Name:     cfg.Name,
		Version:  cfg.Version,
		Content:  json.RawMessage(cfg.Content),
	})
}

// AckConfigRequest 配置版本确认请求
type AckConfigRequest struct {
	Version int `json:"version" binding:"required,min=1"` // 设备应用完成的配置版本
}

// AckConfig 确认配置版本
// @Summary 确认配置版本
// @Description 设备应用配置后上报版本号，记录确认时间并清除刷新标记
// @Tags 设备API
// @Accept json
// @Produce json
// @Param request body AckConfigRequest true "确认载荷"
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/device/config/ack [post]
func (h *DeviceHandler) AckConfig(c *gin.Context) {
	serial := deviceSerial(c)
	if serial == "" {
		respondError(c, http.StatusBadRequest, "device serial required")
		return
	}

	var req AckConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if err := h.reconciler.AckConfig(c.Request.Context(), serial, req.Version); err != nil {
		respondDomainError(c, err)
		return
	}

	respondOK(c, gin.H{"acked_version": req.Version})
}
