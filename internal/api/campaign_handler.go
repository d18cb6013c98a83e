package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/fleet"
)

// CampaignHandler 升级活动管理API处理器
type CampaignHandler struct {
	engine *fleet.Engine
	logger *zap.Logger
}

// NewCampaignHandler 创建活动处理器
func NewCampaignHandler(engine *fleet.Engine, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{engine: engine, logger: logger}
}

// CreateCampaignRequest 创建活动请求
type CreateCampaignRequest struct {
	Mode            string   `json:"mode" binding:"required,oneof=single multiple version"` // 目标选择方式
	FirmwareVersion string   `json:"firmware_version" binding:"required"`                   // 目标固件版本
	Serials         []string `json:"serials,omitempty"`                                     // single/multiple 模式的设备序列号
	SourceVersion   string   `json:"source_version,omitempty"`                              // version 模式的来源版本
}

// CampaignView 活动对外视图
type CampaignView struct {
	ID             int64   `json:"id"`
	Mode           string  `json:"mode"`
	FirmwareID     int64   `json:"firmware_id"`
	SourceVersion  *string `json:"source_version,omitempty"`
	Status         string  `json:"status"`
	DevicesTotal   int     `json:"devices_total"`
	DevicesUpdated int     `json:"devices_updated"`
	DevicesFailed  int     `json:"devices_failed"`
	CreatedAt      int64   `json:"created_at"`
	CompletedAt    *int64  `json:"completed_at,omitempty"`
}

func campaignView(c *fleet.Campaign) CampaignView {
	v := CampaignView{
		ID:             c.ID,
		Mode:           fleet.TargetModeText(c.TargetMode),
		FirmwareID:     c.FirmwareID,
		SourceVersion:  c.SourceVersion,
		Status:         fleet.CampaignStatusText(c.Status),
		DevicesTotal:   c.DevicesTotal,
		DevicesUpdated: c.DevicesUpdated,
		DevicesFailed:  c.DevicesFailed,
		CreatedAt:      c.CreatedAt.Unix(),
	}
	if c.CompletedAt != nil {
		ts := c.CompletedAt.Unix()
		v.CompletedAt = &ts
	}
	return v
}

// CreateCampaignResponse 创建活动响应
type CreateCampaignResponse struct {
	Campaign   CampaignView `json:"campaign"`
	Unresolved []string     `json:"unresolved,omitempty"` // 未能解析为设备的序列号
}

// CreateCampaign 创建升级活动
// @Summary 创建升级活动
// @Description 按 single/multiple/version 圈选目标设备并落库活动与指向
// @Tags 管理API - 升级活动
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body CreateCampaignRequest true "活动参数"
// @Success 200 {object} StandardResponse{data=CreateCampaignResponse} "成功"
// @Failure 404 {object} StandardResponse "固件不存在"
// @Failure 409 {object} StandardResponse "无匹配设备"
// @Router /api/v1/admin/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	mode, ok := fleet.ParseTargetMode(req.Mode)
	if !ok {
		respondError(c, http.StatusBadRequest, "unknown target mode "+req.Mode)
		return
	}

	campaign, unresolved, err := h.engine.CreateCampaign(c.Request.Context(), fleet.CreateCampaignRequest{
		Mode:            mode,
		FirmwareVersion: req.FirmwareVersion,
		Serials:         req.Serials,
		SourceVersion:   req.SourceVersion,
	})
	if err != nil {
		h.logger.Warn("create campaign failed",
			zap.String("mode", req.Mode),
			zap.String("firmware", req.FirmwareVersion),
			zap.Error(err))
		respondDomainError(c, err)
		return
	}

	h.logger.Info("campaign created",
		zap.Int64("campaign_id", campaign.ID),
		zap.String("mode", req.Mode),
		zap.String("firmware", req.FirmwareVersion),
		zap.Int("devices", campaign.DevicesTotal),
		zap.Int("unresolved", len(unresolved)))

	respondOK(c, CreateCampaignResponse{
		Campaign:   campaignView(campaign),
		Unresolved: unresolved,
	})
}

// GetCampaign 查询活动状态
// @Summary 查询活动状态
// @Description 读取前先对活动执行一次超时清扫，返回即时进度
// @Tags 管理API - 升级活动
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "活动ID"
// @Success 200 {object} StandardResponse{data=CampaignView} "成功"
// @Failure 404 {object} StandardResponse "活动不存在"
// @Router /api/v1/admin/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid campaign id")
		return
	}

	campaign, err := h.engine.ReadCampaign(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondOK(c, campaignView(campaign))
}

// CancelCampaign 取消活动
// @Summary 取消活动
// @Description 停用活动名下所有活跃指向并置 CANCELLED，终态活动不可取消
// @Tags 管理API - 升级活动
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "活动ID"
// @Success 200 {object} StandardResponse{data=CampaignView} "成功"
// @Failure 400 {object} StandardResponse "活动已终结"
// @Router /api/v1/admin/campaigns/{id}/cancel [post]
func (h *CampaignHandler) CancelCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid campaign id")
		return
	}

	campaign, err := h.engine.CancelCampaign(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("campaign cancelled via api", zap.Int64("campaign_id", id))
	respondOK(c, campaignView(campaign))
}

// DeviceHistory 查询设备升级历史
// @Summary 查询设备升级历史
// @Description 返回设备的升级日志，最新在前
// @Tags 管理API - 升级活动
// @Produce json
// @Security ApiKeyAuth
// @Param serial path string true "设备序列号"
// @Param limit query int false "数量限制" default(20)
// @Success 200 {object} StandardResponse{data=[]UpdateLogView} "成功"
// @Failure 404 {object} StandardResponse "设备不存在"
// @Router /api/v1/admin/devices/{serial}/updates [get]
func (h *CampaignHandler) DeviceHistory(c *gin.Context) {
	serial := c.Param("serial")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	logs, err := h.engine.DeviceHistory(c.Request.Context(), serial, limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	views := make([]UpdateLogView, 0, len(logs))
	for i := range logs {
		views = append(views, updateLogView(&logs[i]))
	}
	respondOK(c, views)
}
