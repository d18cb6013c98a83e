package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStore 内存版存储，用于引擎/对账器的闭环测试。
// 条件更新语义与 pg 实现保持一致：状态守卫翻转，返回是否真正生效。
type stubStore struct {
	mu        sync.Mutex
	nextID    int64
	devices   map[int64]*Device
	bySerial  map[string]int64
	configs   map[int64]*Configuration
	artifacts map[int64]*Artifact
	targets   map[int64]*Target
	logs      map[int64]*UpdateLog
	campaigns map[int64]*Campaign
}

func newStubStore() *stubStore {
	return &stubStore{
		devices:   make(map[int64]*Device),
		bySerial:  make(map[string]int64),
		configs:   make(map[int64]*Configuration),
		artifacts: make(map[int64]*Artifact),
		targets:   make(map[int64]*Target),
		logs:      make(map[int64]*UpdateLog),
		campaigns: make(map[int64]*Campaign),
	}
}

func (s *stubStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *stubStore) addDevice(serial string) *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Device{ID: s.id(), Serial: serial}
	s.devices[d.ID] = d
	s.bySerial[serial] = d.ID
	return d
}

func (s *stubStore) addArtifact(version string, size int64, active bool) *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &Artifact{
		ID:        s.id(),
		Version:   version,
		SizeBytes: size,
		Checksum:  "sha256:" + version,
		ObjectKey: "firmware/" + version + ".bin",
		IsActive:  active,
		CreatedAt: time.Now(),
	}
	s.artifacts[a.ID] = a
	return a
}

func (s *stubStore) addConfig(name string, version int) *Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Configuration{ID: s.id(), Name: name, Version: version, Content: []byte("{}"), UpdatedAt: time.Now()}
	s.configs[c.ID] = c
	return c
}

// rewindLogCheck 把设备当前日志的 last_checked_at 拨回过去，模拟静默超时
func (s *stubStore) rewindLogCheck(deviceID int64, ago time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lg := range s.logs {
		if lg.DeviceID == deviceID && lg.LastCheckedAt != nil {
			past := time.Now().Add(-ago)
			lg.LastCheckedAt = &past
		}
	}
}

func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func copyLog(l *UpdateLog) *UpdateLog {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func copyCampaign(c *Campaign) *Campaign {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}

// ---- HeartbeatStore ----

func (s *stubStore) EnsureDevice(ctx context.Context, serial string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySerial[serial]; ok {
		return copyDevice(s.devices[id]), nil
	}
	d := &Device{ID: s.id(), Serial: serial}
	s.devices[d.ID] = d
	s.bySerial[serial] = d.ID
	return copyDevice(d), nil
}

func (s *stubStore) TouchHeartbeat(ctx context.Context, deviceID int64, fwVer string, uptimeSec int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %d not found", deviceID)
	}
	now := time.Now()
	d.LastHeartbeat = &now
	if fwVer != "" {
		d.CurrentFwVer = &fwVer
	}
	d.UptimeSec = &uptimeSec
	return nil
}

func (s *stubStore) GetConfiguration(ctx context.Context, configID int64) (*Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[configID]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (s *stubStore) GetActiveTarget(ctx context.Context, deviceID int64) (*Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.targets {
		if t.DeviceID == deviceID && t.IsActive {
			tt := *t
			return &tt, nil
		}
	}
	return nil, nil
}

func (s *stubStore) clearFlag(deviceID int64, get func(*Device) *bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return false, fmt.Errorf("device %d not found", deviceID)
	}
	flag := get(d)
	if !*flag {
		return false, nil
	}
	*flag = false
	return true, nil
}

func (s *stubStore) ClearPendingReboot(ctx context.Context, deviceID int64) (bool, error) {
	return s.clearFlag(deviceID, func(d *Device) *bool { return &d.PendingReboot })
}

func (s *stubStore) ClearPendingHardReset(ctx context.Context, deviceID int64) (bool, error) {
	return s.clearFlag(deviceID, func(d *Device) *bool { return &d.PendingHardReset })
}

func (s *stubStore) ClearPendingRollback(ctx context.Context, deviceID int64) (bool, error) {
	return s.clearFlag(deviceID, func(d *Device) *bool { return &d.PendingRollback })
}

func (s *stubStore) MarkConfigDownloaded(ctx context.Context, deviceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %d not found", deviceID)
	}
	now := time.Now()
	d.ConfigDownloadedAt = &now
	d.PendingConfigUpdate = false
	return nil
}

func (s *stubStore) AckConfigVersion(ctx context.Context, deviceID int64, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %d not found", deviceID)
	}
	now := time.Now()
	d.ConfigAckVer = version
	d.ConfigAckedAt = &now
	d.PendingConfigUpdate = false
	return nil
}

// ---- RolloutStore ----

func (s *stubStore) GetDeviceBySerial(ctx context.Context, serial string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySerial[serial]
	if !ok {
		return nil, nil
	}
	return copyDevice(s.devices[id]), nil
}

func (s *stubStore) SetDeviceFirmwareVersion(ctx context.Context, deviceID int64, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[deviceID]; ok {
		d.CurrentFwVer = &version
	}
	return nil
}

func (s *stubStore) ResolveDevicesByReportedVersion(ctx context.Context, version string) ([]DeviceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[int64]*UpdateLog)
	for _, lg := range s.logs {
		if cur, ok := latest[lg.DeviceID]; !ok || lg.ID > cur.ID {
			latest[lg.DeviceID] = lg
		}
	}
	var refs []DeviceRef
	for deviceID, lg := range latest {
		if lg.CurrentVersion == version {
			refs = append(refs, DeviceRef{ID: deviceID, Serial: s.devices[deviceID].Serial})
		}
	}
	return refs, nil
}

func (s *stubStore) GetArtifactByID(ctx context.Context, id int64) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return nil, nil
	}
	aa := *a
	return &aa, nil
}

func (s *stubStore) GetArtifactByVersion(ctx context.Context, version string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.artifacts {
		if a.Version == version {
			aa := *a
			return &aa, nil
		}
	}
	return nil, nil
}

func (s *stubStore) GetActiveArtifact(ctx context.Context) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Artifact
	for _, a := range s.artifacts {
		if a.IsActive && (best == nil || a.ID > best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	aa := *best
	return &aa, nil
}

func (s *stubStore) DeactivateTargetFor(ctx context.Context, deviceID, firmwareID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.targets {
		if t.DeviceID == deviceID && t.FirmwareID == firmwareID && t.IsActive {
			t.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) DeactivateCampaignTargets(ctx context.Context, campaignID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.targets {
		if t.CampaignID != nil && *t.CampaignID == campaignID && t.IsActive {
			t.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *stubStore) seedTargetLocked(deviceID, firmwareID int64, campaignID *int64, isRollback bool) {
	for _, t := range s.targets {
		if t.DeviceID == deviceID && t.IsActive {
			t.IsActive = false
		}
	}
	t := &Target{
		ID:         s.id(),
		DeviceID:   deviceID,
		FirmwareID: firmwareID,
		CampaignID: campaignID,
		IsActive:   true,
		IsRollback: isRollback,
		CreatedAt:  time.Now(),
	}
	s.targets[t.ID] = t

	for id, lg := range s.logs {
		if lg.DeviceID == deviceID && lg.FirmwareID == firmwareID {
			delete(s.logs, id)
		}
	}
	lg := &UpdateLog{
		ID:         s.id(),
		DeviceID:   deviceID,
		FirmwareID: firmwareID,
		CampaignID: campaignID,
		Status:     UpdatePending,
		CreatedAt:  time.Now(),
	}
	s.logs[lg.ID] = lg
}

func (s *stubStore) SeedCampaign(ctx context.Context, c *Campaign, deviceIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.CreatedAt = time.Now()
	c.DevicesTotal = len(deviceIDs)
	c.Status = CampaignInProgress
	for _, deviceID := range deviceIDs {
		s.seedTargetLocked(deviceID, c.FirmwareID, &c.ID, false)
	}
	s.campaigns[c.ID] = copyCampaign(c)
	return nil
}

func (s *stubStore) SeedRollback(ctx context.Context, deviceID, firmwareID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedTargetLocked(deviceID, firmwareID, nil, true)
	if d, ok := s.devices[deviceID]; ok {
		d.PendingRollback = true
	}
	return nil
}

func (s *stubStore) GetCampaign(ctx context.Context, id int64) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCampaign(s.campaigns[id]), nil
}

func (s *stubStore) ListInProgressCampaigns(ctx context.Context, limit int) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Campaign
	for _, c := range s.campaigns {
		if c.Status == CampaignInProgress {
			res = append(res, *c)
		}
	}
	return res, nil
}

func (s *stubStore) CancelCampaign(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, nil
	}
	if c.Status != CampaignPending && c.Status != CampaignInProgress {
		return false, nil
	}
	now := time.Now()
	c.Status = CampaignCancelled
	c.CompletedAt = &now
	return true, nil
}

func (s *stubStore) IncCampaignUpdated(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		c.DevicesUpdated++
	}
	return nil
}

func (s *stubStore) IncCampaignFailed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		c.DevicesFailed++
	}
	return nil
}

func (s *stubStore) FinalizeCampaign(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.Status != CampaignInProgress {
		return false, nil
	}
	status, done := SettledStatus(c.DevicesUpdated, c.DevicesFailed, c.DevicesTotal)
	if !done {
		return false, nil
	}
	now := time.Now()
	c.Status = status
	c.CompletedAt = &now
	return true, nil
}

func (s *stubStore) GetUpdateLog(ctx context.Context, deviceID, firmwareID int64) (*UpdateLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lg := range s.logs {
		if lg.DeviceID == deviceID && lg.FirmwareID == firmwareID {
			return copyLog(lg), nil
		}
	}
	return nil, nil
}

func (s *stubStore) EnsureUpdateLog(ctx context.Context, deviceID, firmwareID int64, campaignID *int64, currentVer string) (*UpdateLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lg := range s.logs {
		if lg.DeviceID == deviceID && lg.FirmwareID == firmwareID {
			return copyLog(lg), nil
		}
	}
	lg := &UpdateLog{
		ID:             s.id(),
		DeviceID:       deviceID,
		FirmwareID:     firmwareID,
		CampaignID:     campaignID,
		CurrentVersion: currentVer,
		Status:         UpdatePending,
		CreatedAt:      time.Now(),
	}
	s.logs[lg.ID] = lg
	return copyLog(lg), nil
}

func (s *stubStore) ReseedUpdateLog(ctx context.Context, deviceID, firmwareID int64, campaignID *int64) (*UpdateLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, lg := range s.logs {
		if lg.DeviceID == deviceID && lg.FirmwareID == firmwareID {
			delete(s.logs, id)
		}
	}
	lg := &UpdateLog{
		ID:         s.id(),
		DeviceID:   deviceID,
		FirmwareID: firmwareID,
		CampaignID: campaignID,
		Status:     UpdatePending,
		CreatedAt:  time.Now(),
	}
	s.logs[lg.ID] = lg
	return copyLog(lg), nil
}

func (s *stubStore) MarkLogChecking(ctx context.Context, logID int64, currentVer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lg, ok := s.logs[logID]
	if !ok {
		return fmt.Errorf("log %d not found", logID)
	}
	if UpdateTerminal(lg.Status) {
		return nil
	}
	now := time.Now()
	lg.Attempts++
	lg.LastCheckedAt = &now
	lg.CurrentVersion = currentVer
	if lg.StartedAt == nil {
		lg.StartedAt = &now
	}
	if lg.Status == UpdatePending {
		lg.Status = UpdateChecking
	}
	return nil
}

func (s *stubStore) MarkLogAvailable(ctx context.Context, logID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lg, ok := s.logs[logID]
	if !ok {
		return fmt.Errorf("log %d not found", logID)
	}
	if UpdateTerminal(lg.Status) {
		return nil
	}
	lg.Status = UpdateAvailable
	return nil
}

func (s *stubStore) MarkLogDownloading(ctx context.Context, deviceID, firmwareID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lg := range s.logs {
		if lg.DeviceID == deviceID && lg.FirmwareID == firmwareID && UpdateInFlight(lg.Status) {
			now := time.Now()
			lg.Status = UpdateDownloading
			lg.LastCheckedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) CompleteLog(ctx context.Context, logID int64, status int16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lg, ok := s.logs[logID]
	if !ok || UpdateTerminal(lg.Status) {
		return false, nil
	}
	now := time.Now()
	lg.Status = status
	lg.CompletedAt = &now
	lg.ErrorMessage = nil
	return true, nil
}

func (s *stubStore) FailLog(ctx context.Context, logID int64, msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lg, ok := s.logs[logID]
	if !ok || UpdateTerminal(lg.Status) {
		return false, nil
	}
	now := time.Now()
	lg.Status = UpdateFailed
	lg.CompletedAt = &now
	lg.ErrorMessage = &msg
	return true, nil
}

func (s *stubStore) ListStaleCampaignLogs(ctx context.Context, campaignID int64, cutoff time.Time, limit int) ([]UpdateLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []UpdateLog
	for _, lg := range s.logs {
		if lg.CampaignID != nil && *lg.CampaignID == campaignID &&
			UpdateInFlight(lg.Status) &&
			lg.LastCheckedAt != nil && lg.LastCheckedAt.Before(cutoff) {
			res = append(res, *lg)
			if len(res) >= limit {
				break
			}
		}
	}
	return res, nil
}

func (s *stubStore) ListStaleOrphanLogs(ctx context.Context, cutoff time.Time, limit int) ([]UpdateLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []UpdateLog
	for _, lg := range s.logs {
		if lg.CampaignID == nil &&
			UpdateInFlight(lg.Status) &&
			lg.LastCheckedAt != nil && lg.LastCheckedAt.Before(cutoff) {
			res = append(res, *lg)
			if len(res) >= limit {
				break
			}
		}
	}
	return res, nil
}

func (s *stubStore) ListDeviceUpdateLogs(ctx context.Context, deviceID int64, limit int) ([]UpdateLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []UpdateLog
	for _, lg := range s.logs {
		if lg.DeviceID == deviceID {
			res = append(res, *lg)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// ---- 测试工具 ----

// stubResolver 固定返回 CDN 层描述符
type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, a *Artifact) (*DownloadDescriptor, error) {
	return &DownloadDescriptor{URL: "http://cdn.test/firmware/" + a.Version + ".bin", Tier: TierCDN}, nil
}

func newTestEngine(s *stubStore) *Engine {
	return NewEngine(s, stubResolver{}, DefaultReasonMap(), 30*time.Minute, zap.NewNop())
}

func newTestReconciler(s *stubStore) *Reconciler {
	return NewReconciler(s, zap.NewNop())
}

// assertCounterInvariant 校验 updated+failed<=total，结清时状态必须为终态
func assertCounterInvariant(t *testing.T, c *Campaign) {
	t.Helper()
	require.NotNil(t, c)
	assert.LessOrEqual(t, c.DevicesUpdated+c.DevicesFailed, c.DevicesTotal,
		"计数不变式被破坏: updated=%d failed=%d total=%d", c.DevicesUpdated, c.DevicesFailed, c.DevicesTotal)
	if c.DevicesUpdated+c.DevicesFailed == c.DevicesTotal && c.DevicesTotal > 0 {
		assert.True(t, CampaignTerminal(c.Status), "已结清活动必须处于终态, got %s", CampaignStatusText(c.Status))
	}
}

// TestCampaignRoundTrip 单设备活动闭环：创建→心跳→检查→上报成功→结清
func TestCampaignRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)
	rec := newTestReconciler(s)

	s.addDevice("FLT-0001")
	s.addArtifact("1.0.0", 1000, false)
	s.addArtifact("2.0.0", 2048, false)

	c, unresolved, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetSingle,
		FirmwareVersion: "2.0.0",
		Serials:         []string{"FLT-0001"},
	})
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, int16(CampaignInProgress), c.Status)
	assert.Equal(t, 1, c.DevicesTotal)
	assertCounterInvariant(t, c)

	// 心跳应下发升级指令
	hb, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-0001", FwVersion: "1.0.0", UptimeSec: 60})
	require.NoError(t, err)
	assert.Equal(t, FirmwareUpdate, hb.Firmware, "有活跃指向时应下发升级指令")

	// OTA 检查应下发目标制品与下载描述符
	d, _ := s.GetDeviceBySerial(ctx, "FLT-0001")
	dec, err := engine.CheckUpdate(ctx, d, "1.0.0")
	require.NoError(t, err)
	require.True(t, dec.UpdateAvailable)
	assert.Equal(t, "2.0.0", dec.Artifact.Version)
	require.NotNil(t, dec.Descriptor)
	assert.Equal(t, TierCDN, dec.Descriptor.Tier)
	assert.Contains(t, dec.Descriptor.URL, "2.0.0")

	// 上报成功后活动结清为 COMPLETED
	lg, err := engine.ReportResult(ctx, d, ReportRequest{Version: "2.0.0", Success: true})
	require.NoError(t, err)
	assert.Equal(t, int16(UpdateCompleted), lg.Status)

	c2, err := engine.ReadCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int16(CampaignCompleted), c2.Status)
	assert.Equal(t, 1, c2.DevicesUpdated)
	assert.Equal(t, 0, c2.DevicesFailed)
	assert.NotNil(t, c2.CompletedAt)
	assertCounterInvariant(t, c2)

	// 指向停用后再次检查应报告已最新
	dec2, err := engine.CheckUpdate(ctx, d, "2.0.0")
	require.NoError(t, err)
	assert.True(t, dec2.UpToDate, "结算后设备应报告已是最新")

	// 重复上报幂等：计数不再变化
	_, err = engine.ReportResult(ctx, d, ReportRequest{Version: "2.0.0", Success: true})
	require.NoError(t, err)
	c3, _ := s.GetCampaign(ctx, c.ID)
	assert.Equal(t, 1, c3.DevicesUpdated, "重复上报不应重复计数")
	assertCounterInvariant(t, c3)

	// 设备固件版本已回写
	d2, _ := s.GetDeviceBySerial(ctx, "FLT-0001")
	require.NotNil(t, d2.CurrentFwVer)
	assert.Equal(t, "2.0.0", *d2.CurrentFwVer)
}

// TestHeartbeatTargetingIsolation 无活跃指向的设备心跳永远不收升级信号，
// 即使存在全局激活固件（全局升级只走 OTA 检查的非定向路径）
func TestHeartbeatTargetingIsolation(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	rec := newTestReconciler(s)

	s.addDevice("FLT-0002")
	s.addArtifact("9.9.9", 4096, true) // 全局激活固件

	hb, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-0002", FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, FirmwareNone, hb.Firmware, "无指向设备不应在心跳收到升级信号")

	// 非定向路径仍可经 OTA 检查获得全局固件
	engine := newTestEngine(s)
	d, _ := s.GetDeviceBySerial(ctx, "FLT-0002")
	dec, err := engine.CheckUpdate(ctx, d, "1.0.0")
	require.NoError(t, err)
	assert.True(t, dec.UpdateAvailable)
	assert.Equal(t, "9.9.9", dec.Artifact.Version)
}

// TestSweepIdempotence 连续两次清扫与一次清扫产生相同的 devices_failed
func TestSweepIdempotence(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)

	dev := s.addDevice("FLT-0003")
	s.addArtifact("2.0.0", 2048, false)

	c, _, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetSingle,
		FirmwareVersion: "2.0.0",
		Serials:         []string{"FLT-0003"},
	})
	require.NoError(t, err)

	d, _ := s.GetDeviceBySerial(ctx, "FLT-0003")
	dec, err := engine.CheckUpdate(ctx, d, "1.0.0")
	require.NoError(t, err)
	require.True(t, dec.UpdateAvailable)

	s.rewindLogCheck(dev.ID, 2*time.Hour)

	n1, err := engine.SweepCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n1, "首次清扫应判 1 台失败")

	n2, err := engine.SweepCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n2, "重复清扫不应再判失败")

	c2, _ := s.GetCampaign(ctx, c.ID)
	assert.Equal(t, 1, c2.DevicesFailed, "devices_failed 应与单次清扫一致")
	assert.Equal(t, int16(CampaignFailed), c2.Status)
	assertCounterInvariant(t, c2)
}

// TestThreeDeviceScenario 三台设备：两台成功、一台静默，
// 清扫后活动终态为 FAILED 而非 COMPLETED
func TestThreeDeviceScenario(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)

	s.addDevice("FLT-A")
	s.addDevice("FLT-B")
	silent := s.addDevice("FLT-C")
	s.addArtifact("3.0.0", 8192, false)

	c, _, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetMultiple,
		FirmwareVersion: "3.0.0",
		Serials:         []string{"FLT-A", "FLT-B", "FLT-C"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, c.DevicesTotal)

	// 三台都完成了 OTA 检查
	for _, serial := range []string{"FLT-A", "FLT-B", "FLT-C"} {
		d, _ := s.GetDeviceBySerial(ctx, serial)
		dec, err := engine.CheckUpdate(ctx, d, "1.0.0")
		require.NoError(t, err)
		require.True(t, dec.UpdateAvailable, "设备 %s 应收到升级", serial)
	}

	// 两台上报成功
	for _, serial := range []string{"FLT-A", "FLT-B"} {
		d, _ := s.GetDeviceBySerial(ctx, serial)
		_, err := engine.ReportResult(ctx, d, ReportRequest{Version: "3.0.0", Success: true})
		require.NoError(t, err)
		mid, _ := s.GetCampaign(ctx, c.ID)
		assertCounterInvariant(t, mid)
	}

	mid, _ := s.GetCampaign(ctx, c.ID)
	assert.Equal(t, int16(CampaignInProgress), mid.Status, "第三台未结算前活动应保持进行中")
	assert.Equal(t, 2, mid.DevicesUpdated)

	// 第三台静默超时，清扫判失败并结清
	s.rewindLogCheck(silent.ID, 2*time.Hour)
	n, err := engine.SweepCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	final, _ := s.GetCampaign(ctx, c.ID)
	assert.Equal(t, int16(CampaignFailed), final.Status, "有失败设备时终态必须是 FAILED")
	assert.Equal(t, 2, final.DevicesUpdated)
	assert.Equal(t, 1, final.DevicesFailed)
	assertCounterInvariant(t, final)

	// 静默设备的日志应带清扫注记
	lg, _ := s.GetUpdateLog(ctx, silent.ID, c.FirmwareID)
	require.NotNil(t, lg)
	assert.Equal(t, int16(UpdateFailed), lg.Status)
	require.NotNil(t, lg.ErrorMessage)
	assert.Contains(t, *lg.ErrorMessage, "no activity")
	assert.NotNil(t, lg.CompletedAt)
}

// TestCancelCampaign 取消活动停用指向；终态活动拒绝取消
func TestCancelCampaign(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)
	rec := newTestReconciler(s)

	s.addDevice("FLT-0005")
	s.addArtifact("2.0.0", 2048, false)

	c, _, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetSingle,
		FirmwareVersion: "2.0.0",
		Serials:         []string{"FLT-0005"},
	})
	require.NoError(t, err)

	cancelled, err := engine.CancelCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int16(CampaignCancelled), cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	// 取消后设备不再被下发升级
	hb, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-0005", FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, FirmwareNone, hb.Firmware, "取消后下次轮询不应再收到升级")

	// 重复取消返回 InvalidState
	_, err = engine.CancelCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// 不存在的活动返回 NotFound
	_, err = engine.CancelCampaign(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestVersionTargeting 按上报版本圈选设备
func TestVersionTargeting(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)

	devA := s.addDevice("FLT-V1")
	devB := s.addDevice("FLT-V2")
	s.addDevice("FLT-V3") // 从未检查过，不可被版本圈选
	old := s.addArtifact("1.5.0", 1024, false)
	s.addArtifact("2.5.0", 2048, false)

	// A/B 都上报过 1.5.0
	for _, id := range []int64{devA.ID, devB.ID} {
		_, err := s.EnsureUpdateLog(ctx, id, old.ID, nil, "1.5.0")
		require.NoError(t, err)
	}

	c, unresolved, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetVersion,
		FirmwareVersion: "2.5.0",
		SourceVersion:   "1.5.0",
	})
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, 2, c.DevicesTotal, "只有上报过源版本的设备被圈选")

	// 无设备上报过的版本返回 NotFound
	_, _, err = engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetVersion,
		FirmwareVersion: "2.5.0",
		SourceVersion:   "0.0.1",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestMultipleModeUnresolved 列表模式下未知序列号不整单失败
func TestMultipleModeUnresolved(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)

	s.addDevice("FLT-M1")
	s.addArtifact("2.0.0", 2048, false)

	c, unresolved, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetMultiple,
		FirmwareVersion: "2.0.0",
		Serials:         []string{"FLT-M1", "FLT-GHOST", "FLT-NOPE"},
	})
	require.NoError(t, err, "存在可解析设备时不应整单失败")
	assert.Equal(t, 1, c.DevicesTotal)
	assert.ElementsMatch(t, []string{"FLT-GHOST", "FLT-NOPE"}, unresolved)

	// 全部无法解析返回 ErrNoDevicesMatched（Conflict 族）
	_, unresolved2, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetMultiple,
		FirmwareVersion: "2.0.0",
		Serials:         []string{"FLT-GHOST"},
	})
	assert.ErrorIs(t, err, ErrNoDevicesMatched)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, []string{"FLT-GHOST"}, unresolved2)
}

// TestImplicitCompletionSkipped 设备首次检查即已是目标版本，按 SKIPPED 结算
func TestImplicitCompletionSkipped(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)

	dev := s.addDevice("FLT-SKIP")
	art := s.addArtifact("2.0.0", 2048, false)

	c, _, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetSingle,
		FirmwareVersion: "2.0.0",
		Serials:         []string{"FLT-SKIP"},
	})
	require.NoError(t, err)

	d, _ := s.GetDeviceBySerial(ctx, "FLT-SKIP")
	dec, err := engine.CheckUpdate(ctx, d, "2.0.0")
	require.NoError(t, err)
	assert.True(t, dec.UpToDate)

	lg, _ := s.GetUpdateLog(ctx, dev.ID, art.ID)
	require.NotNil(t, lg)
	assert.Equal(t, int16(UpdateSkipped), lg.Status, "首检即命中应记 SKIPPED")

	c2, _ := s.GetCampaign(ctx, c.ID)
	assert.Equal(t, int16(CampaignCompleted), c2.Status, "SKIPPED 计入成功")
	assert.Equal(t, 1, c2.DevicesUpdated)
	assertCounterInvariant(t, c2)
}

// TestRollbackFlow 回滚指向：心跳只下发一次回滚指令，
// 残留回滚指向不再触发普通升级，OTA 检查下发回滚制品
func TestRollbackFlow(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)
	rec := newTestReconciler(s)

	s.addDevice("FLT-RB")
	s.addArtifact("1.0.0", 1024, false)
	s.addArtifact("2.0.0", 2048, true)

	require.NoError(t, engine.TargetRollback(ctx, "FLT-RB", "1.0.0"))

	hb1, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-RB", FwVersion: "2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, FirmwareRollback, hb1.Firmware, "首次心跳应下发回滚")

	hb2, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-RB", FwVersion: "2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, FirmwareNone, hb2.Firmware, "回滚指向不应再次触发普通升级信号")

	// OTA 检查下发回滚目标制品而非全局激活固件
	d, _ := s.GetDeviceBySerial(ctx, "FLT-RB")
	dec, err := engine.CheckUpdate(ctx, d, "2.0.0")
	require.NoError(t, err)
	require.True(t, dec.UpdateAvailable)
	assert.Equal(t, "1.0.0", dec.Artifact.Version, "回滚指向应优先于全局固件")
}

// TestReportFailureWithReasonCode 失败上报走错误码映射
func TestReportFailureWithReasonCode(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)

	dev := s.addDevice("FLT-ERR")
	s.addArtifact("2.0.0", 2048, false)

	c, _, err := engine.CreateCampaign(ctx, CreateCampaignRequest{
		Mode:            TargetSingle,
		FirmwareVersion: "2.0.0",
		Serials:         []string{"FLT-ERR"},
	})
	require.NoError(t, err)

	d, _ := s.GetDeviceBySerial(ctx, "FLT-ERR")
	_, err = engine.CheckUpdate(ctx, d, "1.0.0")
	require.NoError(t, err)

	code := 2
	lg, err := engine.ReportResult(ctx, d, ReportRequest{Version: "2.0.0", Success: false, ErrorCode: &code})
	require.NoError(t, err)
	assert.Equal(t, int16(UpdateFailed), lg.Status)
	require.NotNil(t, lg.ErrorMessage)
	assert.Equal(t, "checksum mismatch", *lg.ErrorMessage, "错误码应翻译为统一描述")

	c2, _ := s.GetCampaign(ctx, c.ID)
	assert.Equal(t, int16(CampaignFailed), c2.Status)
	assert.Equal(t, 1, c2.DevicesFailed)
	assertCounterInvariant(t, c2)

	// 失败后指向已停用
	target, _ := s.GetActiveTarget(ctx, dev.ID)
	assert.Nil(t, target, "失败结算应停用指向")

	// 未知固件版本的上报返回 NotFound
	_, err = engine.ReportResult(ctx, d, ReportRequest{Version: "8.8.8", Success: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestHeartbeatFlagClearing 一次性命令标记只下发一次
func TestHeartbeatFlagClearing(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	rec := newTestReconciler(s)

	dev := s.addDevice("FLT-FLAG")
	s.mu.Lock()
	s.devices[dev.ID].PendingReboot = true
	s.devices[dev.ID].PendingHardReset = true
	s.devices[dev.ID].LogsEnabled = true
	s.mu.Unlock()

	hb1, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-FLAG", FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, hb1.Reboot, "首次心跳应下发重启")
	assert.True(t, hb1.HardReset, "首次心跳应下发硬复位")
	assert.True(t, hb1.LogsEnabled, "日志开关是持久状态")

	hb2, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-FLAG", FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.False(t, hb2.Reboot, "重启标记已清除不应重复下发")
	assert.False(t, hb2.HardReset)
	assert.True(t, hb2.LogsEnabled, "日志开关不随下发清除")
}

// TestHeartbeatConfigDrift 心跳走三层配置漂移（经由存储的真实装配）
func TestHeartbeatConfigDrift(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	rec := newTestReconciler(s)

	cfg := s.addConfig("site-default", 4)
	dev := s.addDevice("FLT-CFG")
	s.mu.Lock()
	s.devices[dev.ID].ConfigID = &cfg.ID
	s.devices[dev.ID].ConfigAckVer = 3 // 落后一个版本，且显式标记缺失
	s.mu.Unlock()

	hb, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-CFG", ConfigID: cfg.ID, FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, hb.ConfigUpdate, "版本号兜底层应触发刷新")
	assert.Equal(t, RefreshVersion, hb.ConfigReason)

	// 对齐 ack 后不再刷新
	s.mu.Lock()
	s.devices[dev.ID].ConfigAckVer = 4
	s.mu.Unlock()
	hb2, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-CFG", ConfigID: cfg.ID, FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.False(t, hb2.ConfigUpdate)
}

// TestConfigDownloadAckCycle 配置下发完整周期：标记触发→下载清标记→
// 版本兜底仍催促→ack 对齐后安静
func TestConfigDownloadAckCycle(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	rec := newTestReconciler(s)

	cfg := s.addConfig("site-a", 7)
	dev := s.addDevice("FLT-DL")
	s.mu.Lock()
	s.devices[dev.ID].ConfigID = &cfg.ID
	s.devices[dev.ID].PendingConfigUpdate = true
	s.mu.Unlock()

	hb1, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-DL", ConfigID: cfg.ID, FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, hb1.ConfigUpdate)
	assert.Equal(t, RefreshFlag, hb1.ConfigReason)

	got, err := rec.DownloadConfig(ctx, "FLT-DL")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, []byte("{}"), got.Content)

	d, _ := s.GetDeviceBySerial(ctx, "FLT-DL")
	assert.False(t, d.PendingConfigUpdate, "下载确认应清除显式标记")
	assert.NotNil(t, d.ConfigDownloadedAt)

	// 标记已清但 ack 版本未对齐，版本兜底层继续催促
	hb2, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-DL", ConfigID: cfg.ID, FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, hb2.ConfigUpdate)
	assert.Equal(t, RefreshVersion, hb2.ConfigReason)

	require.NoError(t, rec.AckConfig(ctx, "FLT-DL", cfg.Version))

	hb3, err := rec.Heartbeat(ctx, HeartbeatRequest{Serial: "FLT-DL", ConfigID: cfg.ID, FwVersion: "1.0.0"})
	require.NoError(t, err)
	assert.False(t, hb3.ConfigUpdate, "ack 对齐后不应再催促")

	// 未指派配置的设备下载返回 NotFound
	s.addDevice("FLT-NOCONF")
	_, err = rec.DownloadConfig(ctx, "FLT-NOCONF")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestSweepStaleCoversOrphans 定时清扫覆盖无活动归属的在途日志
func TestSweepStaleCoversOrphans(t *testing.T) {
	ctx := context.Background()
	s := newStubStore()
	engine := newTestEngine(s)

	dev := s.addDevice("FLT-ORPH")
	s.addArtifact("2.0.0", 2048, true)

	// 非定向路径产生的日志
	d, _ := s.GetDeviceBySerial(ctx, "FLT-ORPH")
	dec, err := engine.CheckUpdate(ctx, d, "1.0.0")
	require.NoError(t, err)
	require.True(t, dec.UpdateAvailable)
	require.Nil(t, dec.Log.CampaignID)

	s.rewindLogCheck(dev.ID, 2*time.Hour)

	stats, err := engine.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OrphansFailed, "孤儿在途日志应被清扫")
	assert.Equal(t, 0, stats.EntriesFailed)

	lg, _ := s.GetUpdateLog(ctx, dev.ID, dec.Artifact.ID)
	assert.Equal(t, int16(UpdateFailed), lg.Status)
}

var _ HeartbeatStore = (*stubStore)(nil)
var _ RolloutStore = (*stubStore)(nil)
