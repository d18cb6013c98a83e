package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/delivery"
	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/metrics"
	"github.com/taoyao-code/fleet-server/internal/objstore"
)

// DeviceSource 设备行查找（设备端点按序列号懒注册）
type DeviceSource interface {
	EnsureDevice(ctx context.Context, serial string) (*fleet.Device, error)
}

// OTAHandler OTA升级API处理器：检查、代理下载、结果上报
type OTAHandler struct {
	engine  *fleet.Engine
	devices DeviceSource
	store   objstore.Store
	limiter *delivery.RateLimiter
	tracker *delivery.Tracker
	metrics *metrics.AppMetrics
	logger  *zap.Logger
}

// NewOTAHandler 创建OTA处理器
func NewOTAHandler(
	engine *fleet.Engine,
	devices DeviceSource,
	store objstore.Store,
	limiter *delivery.RateLimiter,
	tracker *delivery.Tracker,
	appMetrics *metrics.AppMetrics,
	logger *zap.Logger,
) *OTAHandler {
	return &OTAHandler{
		engine:  engine,
		devices: devices,
		store:   store,
		limiter: limiter,
		tracker: tracker,
		metrics: appMetrics,
		logger:  logger,
	}
}

// CheckUpdateResponse OTA检查响应
type CheckUpdateResponse struct {
	Update   bool   `json:"update"`             // 是否有可用升级
	Version  string `json:"version,omitempty"`  // 目标固件版本
	Size     int64  `json:"size,omitempty"`     // 制品字节数
	Checksum string `json:"checksum,omitempty"` // 制品校验和
	URL      string `json:"url,omitempty"`      // 下载地址
	Tier     string `json:"tier,omitempty"`     // cdn / presigned / proxy
	TTL      int    `json:"ttl,omitempty"`      // 地址有效期（秒），0=不过期
}

// CheckUpdate 检查固件升级
// @Summary 检查固件升级
// @Description 按设备指向或全局激活固件判定是否有升级，并解析下载地址
// @Tags 设备API - OTA
// @Produce json
// @Param current query string false "设备当前固件版本"
// @Success 200 {object} StandardResponse{data=CheckUpdateResponse} "成功"
// @Router /api/v1/device/ota/check [get]
func (h *OTAHandler) CheckUpdate(c *gin.Context) {
	ctx := c.Request.Context()
	serial := deviceSerial(c)
	if serial == "" {
		respondError(c, http.StatusBadRequest, "device serial required")
		return
	}
	current := c.Query("current")

	dev, err := h.devices.EnsureDevice(ctx, serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	decision, err := h.engine.CheckUpdate(ctx, dev, current)
	if err != nil {
		h.logger.Error("ota check failed", zap.String("serial", serial), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	if !decision.UpdateAvailable {
		result := "none"
		if decision.UpToDate {
			result = "up_to_date"
		}
		h.metrics.OTACheckTotal.WithLabelValues(result).Inc()
		respondOK(c, CheckUpdateResponse{Update: false})
		return
	}

	h.metrics.OTACheckTotal.WithLabelValues("update").Inc()
	resp := CheckUpdateResponse{
		Update:   true,
		Version:  decision.Artifact.Version,
		Size:     decision.Artifact.SizeBytes,
		Checksum: decision.Artifact.Checksum,
	}
	if decision.Descriptor != nil {
		resp.URL = decision.Descriptor.URL
		resp.Tier = decision.Descriptor.Tier
		resp.TTL = decision.Descriptor.TTLSeconds
	}
	respondOK(c, resp)
}

// Download 代理下载固件
// @Summary 代理下载固件
// @Description 服务端回源对象存储流式下发制品，支持单段 Range 续传
// @Tags 设备API - OTA
// @Produce octet-stream
// @Param version path string true "固件版本"
// @Param Range header string false "bytes=start-end"
// @Success 200 {file} binary "完整制品"
// @Success 206 {file} binary "区间内容"
// @Failure 416 {object} StandardResponse "区间无法满足"
// @Failure 429 {object} StandardResponse "限流"
// @Router /api/v1/device/ota/download/{version} [get]
func (h *OTAHandler) Download(c *gin.Context) {
	ctx := c.Request.Context()
	serial := deviceSerial(c)
	if serial == "" {
		respondError(c, http.StatusBadRequest, "device serial required")
		return
	}
	version := c.Param("version")

	if !h.limiter.Allow() {
		h.metrics.DeliveryEventTotal.WithLabelValues("proxy", "throttled").Inc()
		respondError(c, http.StatusTooManyRequests, "download rate exceeded, retry later")
		return
	}

	dev, err := h.devices.EnsureDevice(ctx, serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	artifact, err := h.engine.StartDownload(ctx, dev, version)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	// 每设备同一时刻仅允许一条在途流
	if _, err := h.tracker.Acquire(serial, version); err != nil {
		if errors.Is(err, delivery.ErrStreamActive) {
			respondError(c, http.StatusConflict, "another download stream is active for this device")
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() {
		h.tracker.Release(serial)
		h.metrics.ProxyStreamsGauge.Set(float64(h.tracker.ActiveCount()))
	}()
	h.metrics.ProxyStreamsGauge.Set(float64(h.tracker.ActiveCount()))

	info, err := h.store.Stat(ctx, artifact.ObjectKey)
	if err != nil {
		if errors.Is(err, objstore.ErrNotExist) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("firmware object %s missing", artifact.ObjectKey))
			return
		}
		h.logger.Error("stat firmware object failed",
			zap.String("key", artifact.ObjectKey), zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "object store unavailable")
		return
	}

	rng, err := delivery.ParseRange(c.GetHeader("Range"), info.Size)
	if err != nil {
		c.Header("Content-Range", delivery.UnsatisfiableRange(info.Size))
		respondError(c, http.StatusRequestedRangeNotSatisfiable, err.Error())
		return
	}

	var (
		reader io.ReadCloser
		status int
		length int64
	)
	if rng == nil {
		reader, err = h.store.Open(ctx, artifact.ObjectKey)
		status, length = http.StatusOK, info.Size
	} else {
		reader, err = h.store.OpenRange(ctx, artifact.ObjectKey, rng.Start, rng.Length())
		status, length = http.StatusPartialContent, rng.Length()
	}
	if err != nil {
		h.logger.Error("open firmware object failed",
			zap.String("key", artifact.ObjectKey), zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "object store unavailable")
		return
	}
	defer reader.Close()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Length", fmt.Sprintf("%d", length))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "fw-"+artifact.Version+".bin"))
	if rng != nil {
		c.Header("Content-Range", rng.ContentRange())
	}
	c.Status(status)

	written, err := io.Copy(c.Writer, reader)
	h.metrics.ProxyBytesTotal.Add(float64(written))
	if err != nil {
		// 设备断连后续传很常见，不按错误处理
		h.metrics.DeliveryEventTotal.WithLabelValues("proxy", "interrupted").Inc()
		h.logger.Warn("firmware stream interrupted",
			zap.String("serial", serial),
			zap.String("version", version),
			zap.Int64("written", written),
			zap.Error(err))
		return
	}
	h.metrics.DeliveryEventTotal.WithLabelValues("proxy", "completed").Inc()
	h.logger.Info("firmware streamed",
		zap.String("serial", serial),
		zap.String("version", version),
		zap.Int("status", status),
		zap.Int64("bytes", written))
}

// ReportRequest 升级结果上报
type ReportRequest struct {
	Version   string `json:"version" binding:"required"` // 上报针对的固件版本
	Success   bool   `json:"success"`                    // 是否成功
	ErrorCode *int   `json:"error_code,omitempty"`       // 设备侧数字故障码
	Message   string `json:"message,omitempty"`          // 自述失败信息，优先于故障码
}

// UpdateLogView 升级日志对外视图
type UpdateLogView struct {
	FirmwareID  int64   `json:"firmware_id"`
	CampaignID  *int64  `json:"campaign_id,omitempty"`
	Status      string  `json:"status"`
	Attempts    int     `json:"attempts"`
	Error       *string `json:"error,omitempty"`
	StartedAt   *int64  `json:"started_at,omitempty"`
	CompletedAt *int64  `json:"completed_at,omitempty"`
}

func updateLogView(lg *fleet.UpdateLog) UpdateLogView {
	v := UpdateLogView{
		FirmwareID: lg.FirmwareID,
		CampaignID: lg.CampaignID,
		Status:     fleet.UpdateStatusText(lg.Status),
		Attempts:   lg.Attempts,
		Error:      lg.ErrorMessage,
	}
	if lg.StartedAt != nil {
		ts := lg.StartedAt.Unix()
		v.StartedAt = &ts
	}
	if lg.CompletedAt != nil {
		ts := lg.CompletedAt.Unix()
		v.CompletedAt = &ts
	}
	return v
}

// Report 上报升级结果
// @Summary 上报升级结果
// @Description 设备升级后回报成败，翻转日志终态并结算所属活动
// @Tags 设备API - OTA
// @Accept json
// @Produce json
// @Param request body ReportRequest true "上报载荷"
// @Success 200 {object} StandardResponse{data=UpdateLogView} "成功"
// @Failure 404 {object} StandardResponse "无对应升级记录"
// @Router /api/v1/device/ota/report [post]
func (h *OTAHandler) Report(c *gin.Context) {
	ctx := c.Request.Context()
	serial := deviceSerial(c)
	if serial == "" {
		respondError(c, http.StatusBadRequest, "device serial required")
		return
	}

	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	dev, err := h.devices.EnsureDevice(ctx, serial)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	lg, err := h.engine.ReportResult(ctx, dev, fleet.ReportRequest{
		Version:   req.Version,
		Success:   req.Success,
		ErrorCode: req.ErrorCode,
		Message:   req.Message,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondOK(c, updateLogView(lg))
}
