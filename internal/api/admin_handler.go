package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/presence"
	"github.com/taoyao-code/fleet-server/internal/storage"
	"github.com/taoyao-code/fleet-server/internal/storage/models"
)

// AdminHandler 管理面API处理器：设备命令、配置档案、固件制品
type AdminHandler struct {
	core     storage.CoreRepo
	engine   *fleet.Engine
	presence presence.Tracker
	logger   *zap.Logger
}

// NewAdminHandler 创建管理面处理器
func NewAdminHandler(core storage.CoreRepo, engine *fleet.Engine, tracker presence.Tracker, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{core: core, engine: engine, presence: tracker, logger: logger}
}

// DeviceCommandsRequest 强制设备命令请求，nil 字段保持原值
type DeviceCommandsRequest struct {
	Reboot          *bool  `json:"reboot,omitempty"`           // 软重启标记
	HardReset       *bool  `json:"hard_reset,omitempty"`       // 硬复位标记
	Rollback        *bool  `json:"rollback,omitempty"`         // 回滚标记
	ConfigRefresh   *bool  `json:"config_refresh,omitempty"`   // 配置刷新提示
	LogsEnabled     *bool  `json:"logs_enabled,omitempty"`     // 日志开关（持久）
	RollbackVersion string `json:"rollback_version,omitempty"` // 指定回滚目标版本，连带置回滚标记
}

func (r DeviceCommandsRequest) empty() bool {
	return r.Reboot == nil && r.HardReset == nil && r.Rollback == nil &&
		r.ConfigRefresh == nil && r.LogsEnabled == nil && r.RollbackVersion == ""
}

// DeviceView 设备对外视图
type DeviceView struct {
	Serial              string  `json:"serial"`
	ConfigID            *int64  `json:"config_id,omitempty"`
	ConfigAckVer        int32   `json:"config_ack_ver"`
	PendingReboot       bool    `json:"pending_reboot"`
	PendingHardReset    bool    `json:"pending_hard_reset"`
	PendingRollback     bool    `json:"pending_rollback"`
	PendingConfigUpdate bool    `json:"pending_config_update"`
	LogsEnabled         bool    `json:"logs_enabled"`
	CurrentFwVer        *string `json:"current_fw_ver,omitempty"`
	Online              bool    `json:"online"`
	LastHeartbeatAt     *int64  `json:"last_heartbeat_at,omitempty"`
}

func (h *AdminHandler) deviceView(dev *models.Device) DeviceView {
	v := DeviceView{
		Serial:              dev.Serial,
		ConfigID:            dev.ConfigID,
		ConfigAckVer:        dev.ConfigAckVer,
		PendingReboot:       dev.PendingReboot,
		PendingHardReset:    dev.PendingHardReset,
		PendingRollback:     dev.PendingRollback,
		PendingConfigUpdate: dev.PendingConfigUpdate,
		LogsEnabled:         dev.LogsEnabled,
		CurrentFwVer:        dev.CurrentFwVer,
		Online:              h.presence.IsOnline(dev.Serial, time.Now()),
	}
	if dev.LastHeartbeatAt != nil {
		ts := dev.LastHeartbeatAt.Unix()
		v.LastHeartbeatAt = &ts
	}
	return v
}

// SetDeviceCommands 强制设备命令标记
// @Summary 强制设备命令
// @Description 设置设备的一次性命令标记与日志开关；可同时指定回滚目标版本
// @Tags 管理API - 设备
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param serial path string true "设备序列号"
// @Param request body DeviceCommandsRequest true "命令标记"
// @Success 200 {object} StandardResponse{data=DeviceView} "成功"
// @Failure 404 {object} StandardResponse "设备或固件不存在"
// @Router /api/v1/admin/devices/{serial}/commands [post]
func (h *AdminHandler) SetDeviceCommands(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	var req DeviceCommandsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.empty() {
		respondError(c, http.StatusBadRequest, "no command specified")
		return
	}

	dev, err := h.core.GetDeviceBySerial(ctx, serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	// 带版本的回滚先替换设备指向（事务内连带置回滚标记）
	if req.RollbackVersion != "" {
		if err := h.engine.TargetRollback(ctx, serial, req.RollbackVersion); err != nil {
			respondDomainError(c, err)
			return
		}
	}

	flags := storage.DeviceCommandFlags{
		Reboot:        req.Reboot,
		HardReset:     req.HardReset,
		Rollback:      req.Rollback,
		ConfigRefresh: req.ConfigRefresh,
		LogsEnabled:   req.LogsEnabled,
	}
	if flags != (storage.DeviceCommandFlags{}) {
		if err := h.core.SetDeviceCommandFlags(ctx, dev.ID, flags); err != nil {
			respondDomainError(c, err)
			return
		}
	}

	h.logger.Info("device commands forced",
		zap.String("serial", serial),
		zap.String("rollback_version", req.RollbackVersion))

	dev, err = h.core.GetDeviceBySerial(ctx, serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, h.deviceView(dev))
}

// AssignConfigRequest 配置指派请求，config_id 为空表示清除指派
type AssignConfigRequest struct {
	ConfigID *int64 `json:"config_id"`
}

// AssignDeviceConfig 指派或清除设备配置
// @Summary 指派设备配置
// @Description 指派配置档案给设备并提示拉取；config_id 为空时清除指派
// @Tags 管理API - 设备
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param serial path string true "设备序列号"
// @Param request body AssignConfigRequest true "指派参数"
// @Success 200 {object} StandardResponse{data=DeviceView} "成功"
// @Failure 404 {object} StandardResponse "设备或配置不存在"
// @Router /api/v1/admin/devices/{serial}/config [post]
func (h *AdminHandler) AssignDeviceConfig(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	var req AssignConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	dev, err := h.core.GetDeviceBySerial(ctx, serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if req.ConfigID != nil {
		if _, err := h.core.GetConfiguration(ctx, *req.ConfigID); err != nil {
			respondDomainError(c, err)
			return
		}
	}

	if err := h.core.AssignDeviceConfig(ctx, dev.ID, req.ConfigID); err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("device config assigned",
		zap.String("serial", serial),
		zap.Any("config_id", req.ConfigID))

	dev, err = h.core.GetDeviceBySerial(ctx, serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, h.deviceView(dev))
}

// ConfigurationView 配置档案对外视图（不含内容全文）
type ConfigurationView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Version   int32  `json:"version"`
	UpdatedAt int64  `json:"updated_at"`
}

func configurationView(cfg *models.Configuration) ConfigurationView {
	return ConfigurationView{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Version:   cfg.Version,
		UpdatedAt: cfg.UpdatedAt.Unix(),
	}
}

// CreateConfigurationRequest 新建配置档案请求
type CreateConfigurationRequest struct {
	Name    string          `json:"name" binding:"required"`
	Content json.RawMessage `json:"content" binding:"required"`
}

// CreateConfiguration 新建配置档案
// @Summary 新建配置档案
// @Description 登记配置档案，初始版本为 1
// @Tags 管理API - 配置
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body CreateConfigurationRequest true "档案内容"
// @Success 200 {object} StandardResponse{data=ConfigurationView} "成功"
// @Router /api/v1/admin/configurations [post]
func (h *AdminHandler) CreateConfiguration(c *gin.Context) {
	var req CreateConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	cfg, err := h.core.CreateConfiguration(c.Request.Context(), req.Name, []byte(req.Content))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("configuration created",
		zap.Int64("config_id", cfg.ID),
		zap.String("name", cfg.Name))
	respondOK(c, configurationView(cfg))
}

// BumpConfigurationRequest 配置版本推进请求，content 可选
type BumpConfigurationRequest struct {
	Content json.RawMessage `json:"content,omitempty"`
}

// BumpConfigurationResponse 版本推进响应
type BumpConfigurationResponse struct {
	Configuration   ConfigurationView `json:"configuration"`
	DevicesNotified int64             `json:"devices_notified"` // 被置位刷新提示的设备数
}

// BumpConfiguration 推进配置版本并通知设备
// @Summary 推进配置版本
// @Description 版本 +1（可同时替换内容），并为所有指派设备置位刷新提示；
// @Description 两步在同一事务内完成
// @Tags 管理API - 配置
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "配置ID"
// @Param request body BumpConfigurationRequest false "新内容（可选）"
// @Success 200 {object} StandardResponse{data=BumpConfigurationResponse} "成功"
// @Failure 404 {object} StandardResponse "配置不存在"
// @Router /api/v1/admin/configurations/{id}/bump [post]
func (h *AdminHandler) BumpConfiguration(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid configuration id")
		return
	}

	var req BumpConfigurationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}

	var (
		cfg      *models.Configuration
		notified int64
	)
	err = h.core.WithTx(c.Request.Context(), func(repo storage.CoreRepo) error {
		var txErr error
		cfg, txErr = repo.BumpConfigurationVersion(c.Request.Context(), id, []byte(req.Content))
		if txErr != nil {
			return txErr
		}
		notified, txErr = repo.FlagDevicesForConfig(c.Request.Context(), id)
		return txErr
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("configuration bumped",
		zap.Int64("config_id", id),
		zap.Int32("version", cfg.Version),
		zap.Int64("devices_notified", notified))

	respondOK(c, BumpConfigurationResponse{
		Configuration:   configurationView(cfg),
		DevicesNotified: notified,
	})
}

// FirmwareView 固件制品对外视图
type FirmwareView struct {
	ID        int64  `json:"id"`
	Version   string `json:"version"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
	ObjectKey string `json:"object_key"`
	Active    bool   `json:"active"`
}

func firmwareView(fw *models.FirmwareArtifact) FirmwareView {
	return FirmwareView{
		ID:        fw.ID,
		Version:   fw.Version,
		SizeBytes: fw.SizeBytes,
		Checksum:  fw.Checksum,
		ObjectKey: fw.ObjectKey,
		Active:    fw.IsActive,
	}
}

// RegisterFirmwareRequest 固件制品登记请求。
// 制品二进制由外部流程上传到对象存储，这里只登记元数据与对象键。
type RegisterFirmwareRequest struct {
	Version   string `json:"version" binding:"required"`
	SizeBytes int64  `json:"size" binding:"min=0"`
	Checksum  string `json:"checksum"`
	ObjectKey string `json:"object_key" binding:"required"`
	Active    bool   `json:"active"`
}

// RegisterFirmware 登记固件制品
// @Summary 登记固件制品
// @Description 登记版本、大小、校验和与对象键；同版本重复登记更新元数据
// @Tags 管理API - 固件
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body RegisterFirmwareRequest true "制品元数据"
// @Success 200 {object} StandardResponse{data=FirmwareView} "成功"
// @Router /api/v1/admin/firmware [post]
func (h *AdminHandler) RegisterFirmware(c *gin.Context) {
	var req RegisterFirmwareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	fw, err := h.core.RegisterFirmware(c.Request.Context(), &models.FirmwareArtifact{
		Version:   req.Version,
		SizeBytes: req.SizeBytes,
		Checksum:  req.Checksum,
		ObjectKey: req.ObjectKey,
		IsActive:  req.Active,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("firmware registered",
		zap.String("version", fw.Version),
		zap.Int64("size", fw.SizeBytes),
		zap.Bool("active", fw.IsActive))
	respondOK(c, firmwareView(fw))
}

// ActivateFirmware 激活固件制品
// @Summary 激活固件制品
// @Description 将制品置为全局默认升级目标（多个激活时取最新登记）
// @Tags 管理API - 固件
// @Produce json
// @Security ApiKeyAuth
// @Param version path string true "固件版本"
// @Success 200 {object} StandardResponse{data=FirmwareView} "成功"
// @Failure 404 {object} StandardResponse "制品不存在"
// @Router /api/v1/admin/firmware/{version}/activate [post]
func (h *AdminHandler) ActivateFirmware(c *gin.Context) {
	version := c.Param("version")

	fw, err := h.core.SetFirmwareActive(c.Request.Context(), version, true)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("firmware activated", zap.String("version", version))
	respondOK(c, firmwareView(fw))
}
