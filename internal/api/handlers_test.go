package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taoyao-code/fleet-server/internal/api/middleware"
	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/metrics"
	"github.com/taoyao-code/fleet-server/internal/presence"
)

// stubHeartbeatStore 心跳栈的内存桩
type stubHeartbeatStore struct {
	dev        *fleet.Device
	cfg        *fleet.Configuration
	target     *fleet.Target
	touched    int
	downloaded bool
	ackedVer   int
}

func (s *stubHeartbeatStore) EnsureDevice(_ context.Context, serial string) (*fleet.Device, error) {
	if s.dev == nil {
		s.dev = &fleet.Device{ID: 1, Serial: serial}
	}
	return s.dev, nil
}

func (s *stubHeartbeatStore) TouchHeartbeat(_ context.Context, _ int64, fwVer string, _ int64) error {
	s.touched++
	if fwVer != "" {
		s.dev.CurrentFwVer = &fwVer
	}
	return nil
}

func (s *stubHeartbeatStore) GetConfiguration(_ context.Context, configID int64) (*fleet.Configuration, error) {
	if s.cfg != nil && s.cfg.ID == configID {
		return s.cfg, nil
	}
	return nil, nil
}

func (s *stubHeartbeatStore) GetActiveTarget(_ context.Context, _ int64) (*fleet.Target, error) {
	return s.target, nil
}

func (s *stubHeartbeatStore) ClearPendingReboot(_ context.Context, _ int64) (bool, error) {
	if s.dev.PendingReboot {
		s.dev.PendingReboot = false
		return true, nil
	}
	return false, nil
}

func (s *stubHeartbeatStore) ClearPendingHardReset(_ context.Context, _ int64) (bool, error) {
	if s.dev.PendingHardReset {
		s.dev.PendingHardReset = false
		return true, nil
	}
	return false, nil
}

func (s *stubHeartbeatStore) ClearPendingRollback(_ context.Context, _ int64) (bool, error) {
	if s.dev.PendingRollback {
		s.dev.PendingRollback = false
		return true, nil
	}
	return false, nil
}

func (s *stubHeartbeatStore) MarkConfigDownloaded(_ context.Context, _ int64) error {
	s.downloaded = true
	s.dev.PendingConfigUpdate = false
	return nil
}

func (s *stubHeartbeatStore) AckConfigVersion(_ context.Context, _ int64, version int) error {
	s.ackedVer = version
	s.dev.ConfigAckVer = version
	s.dev.PendingConfigUpdate = false
	return nil
}

// newDeviceRouter 组装设备端测试路由（认证关闭，序列号走Header透传）
func newDeviceRouter(store *stubHeartbeatStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	appm := metrics.NewAppMetrics(metrics.NewRegistry())
	rec := fleet.NewReconciler(store, logger)
	h := NewDeviceHandler(rec, presence.NewMemory(time.Minute), appm, logger)

	r := gin.New()
	device := r.Group("/api/v1/device")
	device.Use(middleware.DeviceAuth(middleware.DeviceAuthConfig{Enabled: false}, logger))
	device.POST("/heartbeat", h.Heartbeat)
	device.GET("/config", h.DownloadConfig)
	device.POST("/config/ack", h.AckConfig)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, serial string, body interface{}) (*httptest.ResponseRecorder, StandardResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if serial != "" {
		req.Header.Set(middleware.HeaderDeviceSerial, serial)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp StandardResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// TestHeartbeatEndpoint_SurfacesAndClearsCommands 心跳下发一次性命令且只下发一次
func TestHeartbeatEndpoint_SurfacesAndClearsCommands(t *testing.T) {
	store := &stubHeartbeatStore{
		dev: &fleet.Device{ID: 1, Serial: "DEV001", PendingReboot: true, LogsEnabled: true},
	}
	r := newDeviceRouter(store)

	w, resp := doJSON(t, r, "POST", "/api/v1/device/heartbeat", "", HeartbeatRequest{
		Serial: "DEV001", FwVersion: "1.0.0", UptimeSec: 3600,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, resp.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var hb HeartbeatResponse
	require.NoError(t, json.Unmarshal(data, &hb))
	assert.True(t, hb.Reboot, "首次心跳应下发重启命令")
	assert.True(t, hb.LogsEnabled)
	assert.False(t, hb.HardReset)
	assert.Equal(t, fleet.FirmwareNone, hb.FwUpdate)
	assert.Equal(t, 1, store.touched)

	// 第二次心跳：标记已清除，不再下发
	_, resp = doJSON(t, r, "POST", "/api/v1/device/heartbeat", "", HeartbeatRequest{
		Serial: "DEV001", FwVersion: "1.0.0", UptimeSec: 3700,
	})
	data, _ = json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(data, &hb))
	assert.False(t, hb.Reboot, "重启命令应只下发一次")
}

// TestHeartbeatEndpoint_ConfigDrift 配置身份不一致时提示刷新
func TestHeartbeatEndpoint_ConfigDrift(t *testing.T) {
	cfgID := int64(5)
	store := &stubHeartbeatStore{
		dev: &fleet.Device{ID: 1, Serial: "DEV001", ConfigID: &cfgID},
		cfg: &fleet.Configuration{ID: 5, Name: "edge", Version: 3},
	}
	r := newDeviceRouter(store)

	// 设备自报未持有任何配置
	_, resp := doJSON(t, r, "POST", "/api/v1/device/heartbeat", "", HeartbeatRequest{
		Serial: "DEV001", ConfigID: 0,
	})
	data, _ := json.Marshal(resp.Data)
	var hb HeartbeatResponse
	require.NoError(t, json.Unmarshal(data, &hb))
	assert.True(t, hb.ConfigUpdate)
	assert.NotEmpty(t, hb.ConfigReason)
}

// TestHeartbeatEndpoint_SerialMismatch 认证序列号与载荷不一致被拒绝
func TestHeartbeatEndpoint_SerialMismatch(t *testing.T) {
	store := &stubHeartbeatStore{}
	r := newDeviceRouter(store)

	w, resp := doJSON(t, r, "POST", "/api/v1/device/heartbeat", "DEV001", HeartbeatRequest{
		Serial: "DEV002",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// TestConfigEndpoints_DownloadThenAck 配置两步流：下载记录时间、确认记录版本
func TestConfigEndpoints_DownloadThenAck(t *testing.T) {
	cfgID := int64(7)
	store := &stubHeartbeatStore{
		dev: &fleet.Device{ID: 1, Serial: "DEV001", ConfigID: &cfgID, PendingConfigUpdate: true},
		cfg: &fleet.Configuration{ID: 7, Name: "edge-site", Version: 3, Content: []byte(`{"interval":60}`)},
	}
	r := newDeviceRouter(store)

	w, resp := doJSON(t, r, "GET", "/api/v1/device/config", "DEV001", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data, _ := json.Marshal(resp.Data)
	var payload ConfigPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, int64(7), payload.ConfigID)
	assert.Equal(t, 3, payload.Version)
	assert.JSONEq(t, `{"interval":60}`, string(payload.Content))
	assert.True(t, store.downloaded, "下载应记录 config_downloaded_at")
	assert.False(t, store.dev.PendingConfigUpdate, "下载应清除刷新提示")

	w, _ = doJSON(t, r, "POST", "/api/v1/device/config/ack", "DEV001", AckConfigRequest{Version: 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, store.ackedVer)
}

// TestConfigEndpoint_NotAssigned 未指派配置时返回404
func TestConfigEndpoint_NotAssigned(t *testing.T) {
	store := &stubHeartbeatStore{dev: &fleet.Device{ID: 1, Serial: "DEV001"}}
	r := newDeviceRouter(store)

	w, resp := doJSON(t, r, "GET", "/api/v1/device/config", "DEV001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// TestClassifyError 领域错误到HTTP状态码的映射
func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", fleet.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("device X: %w", fleet.ErrNotFound), http.StatusNotFound},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"invalid state", fleet.ErrInvalidState, http.StatusBadRequest},
		{"conflict", fleet.ErrConflict, http.StatusConflict},
		{"no devices matched wraps conflict", fleet.ErrNoDevicesMatched, http.StatusConflict},
		{"transient", fleet.ErrTransient, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyError(tt.err))
		})
	}
}
