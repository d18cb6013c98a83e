package fleet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RolloutStore 活动引擎所需的存储能力。
// 返回 bool 的方法均为状态守卫式条件更新：只有真正完成状态翻转的调用
// 拿到 true，由它负责后续计数与指向停用，并发重复上报因此只结算一次。
type RolloutStore interface {
	GetDeviceBySerial(ctx context.Context, serial string) (*Device, error)
	SetDeviceFirmwareVersion(ctx context.Context, deviceID int64, version string) error
	ResolveDevicesByReportedVersion(ctx context.Context, version string) ([]DeviceRef, error)

	GetArtifactByID(ctx context.Context, id int64) (*Artifact, error)
	GetArtifactByVersion(ctx context.Context, version string) (*Artifact, error)
	GetActiveArtifact(ctx context.Context) (*Artifact, error)

	GetActiveTarget(ctx context.Context, deviceID int64) (*Target, error)
	DeactivateTargetFor(ctx context.Context, deviceID, firmwareID int64) (bool, error)
	DeactivateCampaignTargets(ctx context.Context, campaignID int64) (int64, error)

	// SeedCampaign 在单个事务内落库：活动行、逐设备的指向替换与日志重建，
	// 成功后回填 c.ID / c.DevicesTotal / c.Status。
	SeedCampaign(ctx context.Context, c *Campaign, deviceIDs []int64) error
	// SeedRollback 在单个事务内替换设备指向为回滚目标、重建日志并置回滚标记
	SeedRollback(ctx context.Context, deviceID, firmwareID int64) error

	GetCampaign(ctx context.Context, id int64) (*Campaign, error)
	ListInProgressCampaigns(ctx context.Context, limit int) ([]Campaign, error)
	CancelCampaign(ctx context.Context, id int64) (bool, error)
	IncCampaignUpdated(ctx context.Context, id int64) error
	IncCampaignFailed(ctx context.Context, id int64) error
	// FinalizeCampaign 结清判定：仅当 updated+failed>=total 且仍在进行中时
	// 进入终态（有失败则 FAILED，否则 COMPLETED）
	FinalizeCampaign(ctx context.Context, id int64) (bool, error)

	GetUpdateLog(ctx context.Context, deviceID, firmwareID int64) (*UpdateLog, error)
	EnsureUpdateLog(ctx context.Context, deviceID, firmwareID int64, campaignID *int64, currentVer string) (*UpdateLog, error)
	ReseedUpdateLog(ctx context.Context, deviceID, firmwareID int64, campaignID *int64) (*UpdateLog, error)
	// MarkLogChecking 每次 OTA 检查都调用：attempts+1、刷新 last_checked_at
	// 与设备自报版本，pending 推进为 checking，其余在途状态保持不变
	MarkLogChecking(ctx context.Context, logID int64, currentVer string) error
	MarkLogAvailable(ctx context.Context, logID int64) error
	MarkLogDownloading(ctx context.Context, deviceID, firmwareID int64) (bool, error)
	CompleteLog(ctx context.Context, logID int64, status int16) (bool, error)
	FailLog(ctx context.Context, logID int64, msg string) (bool, error)
	ListStaleCampaignLogs(ctx context.Context, campaignID int64, cutoff time.Time, limit int) ([]UpdateLog, error)
	ListStaleOrphanLogs(ctx context.Context, cutoff time.Time, limit int) ([]UpdateLog, error)
	ListDeviceUpdateLogs(ctx context.Context, deviceID int64, limit int) ([]UpdateLog, error)
}

// CreateCampaignRequest 创建升级活动的入参
type CreateCampaignRequest struct {
	Mode            int16
	FirmwareVersion string
	Serials         []string
	SourceVersion   string
}

// CheckDecision OTA 检查结果
type CheckDecision struct {
	UpdateAvailable bool
	UpToDate        bool
	Artifact        *Artifact
	Log             *UpdateLog
	Descriptor      *DownloadDescriptor
}

// ReportRequest 设备上报的升级结果
type ReportRequest struct {
	Version   string
	Success   bool
	ErrorCode *int
	Message   string
}

// Engine 升级活动引擎：活动创建/取消、OTA 检查与结果结算、超时清扫。
// 计数器全部走存储层增量更新，结算动作由状态翻转的归属方执行。
type Engine struct {
	store        RolloutStore
	resolver     DeliveryResolver
	reasons      *ReasonMap
	staleTimeout time.Duration
	sweepBatch   int
	log          *zap.Logger
}

// NewEngine 创建活动引擎。resolver 可为 nil（不下发下载描述符）；
// staleTimeout<=0 时取默认 30 分钟。
func NewEngine(store RolloutStore, resolver DeliveryResolver, reasons *ReasonMap, staleTimeout time.Duration, log *zap.Logger) *Engine {
	if reasons == nil {
		reasons = DefaultReasonMap()
	}
	if staleTimeout <= 0 {
		staleTimeout = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:        store,
		resolver:     resolver,
		reasons:      reasons,
		staleTimeout: staleTimeout,
		sweepBatch:   100,
		log:          log,
	}
}

// SetSweepBatch 调整单轮清扫的扫描批量，非正值保持默认
func (e *Engine) SetSweepBatch(n int) {
	if n > 0 {
		e.sweepBatch = n
	}
}

// CreateCampaign 解析目标设备、落库活动与逐设备指向/日志。
// multiple 模式下无法解析的序列号收集在返回值里而不是整单失败；
// version 模式要求至少一台设备上报过该版本，否则 NotFound。
func (e *Engine) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*Campaign, []string, error) {
	artifact, err := e.store.GetArtifactByVersion(ctx, req.FirmwareVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("load firmware %s: %w", req.FirmwareVersion, err)
	}
	if artifact == nil {
		return nil, nil, fmt.Errorf("firmware %s: %w", req.FirmwareVersion, ErrNotFound)
	}

	var (
		deviceIDs  []int64
		unresolved []string
		sourceVer  *string
	)
	switch req.Mode {
	case TargetSingle:
		if len(req.Serials) != 1 {
			return nil, nil, fmt.Errorf("single mode requires exactly one serial: %w", ErrInvalidState)
		}
		dev, err := e.store.GetDeviceBySerial(ctx, req.Serials[0])
		if err != nil {
			return nil, nil, fmt.Errorf("load device %s: %w", req.Serials[0], err)
		}
		if dev == nil {
			return nil, nil, fmt.Errorf("device %s: %w", req.Serials[0], ErrNotFound)
		}
		deviceIDs = []int64{dev.ID}

	case TargetMultiple:
		if len(req.Serials) == 0 {
			return nil, nil, fmt.Errorf("multiple mode requires serials: %w", ErrInvalidState)
		}
		for _, serial := range req.Serials {
			dev, err := e.store.GetDeviceBySerial(ctx, serial)
			if err != nil {
				return nil, nil, fmt.Errorf("load device %s: %w", serial, err)
			}
			if dev == nil {
				unresolved = append(unresolved, serial)
				continue
			}
			deviceIDs = append(deviceIDs, dev.ID)
		}
		if len(deviceIDs) == 0 {
			return nil, unresolved, ErrNoDevicesMatched
		}

	case TargetVersion:
		if req.SourceVersion == "" {
			return nil, nil, fmt.Errorf("version mode requires source_version: %w", ErrInvalidState)
		}
		refs, err := e.store.ResolveDevicesByReportedVersion(ctx, req.SourceVersion)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve devices on %s: %w", req.SourceVersion, err)
		}
		if len(refs) == 0 {
			return nil, nil, fmt.Errorf("no device reports version %s: %w", req.SourceVersion, ErrNotFound)
		}
		for _, ref := range refs {
			deviceIDs = append(deviceIDs, ref.ID)
		}
		sourceVer = &req.SourceVersion

	default:
		return nil, nil, fmt.Errorf("unknown target mode %d: %w", req.Mode, ErrInvalidState)
	}

	c := &Campaign{
		TargetMode:    req.Mode,
		FirmwareID:    artifact.ID,
		SourceVersion: sourceVer,
		Status:        CampaignPending,
	}
	if err := e.store.SeedCampaign(ctx, c, deviceIDs); err != nil {
		return nil, unresolved, fmt.Errorf("seed campaign: %w", err)
	}

	e.log.Info("campaign created",
		zap.Int64("campaign_id", c.ID),
		zap.String("mode", TargetModeText(c.TargetMode)),
		zap.String("firmware", artifact.Version),
		zap.Int("devices_total", c.DevicesTotal),
		zap.Int("unresolved", len(unresolved)))
	return c, unresolved, nil
}

// ReadCampaign 读取活动状态。读取前先做一次惰性清扫，
// 保证长期无人轮询的活动也能在被查看时结清。
func (e *Engine) ReadCampaign(ctx context.Context, id int64) (*Campaign, error) {
	if _, err := e.SweepCampaign(ctx, id); err != nil {
		return nil, err
	}
	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", id, err)
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// CancelCampaign 取消活动：停用活动名下所有活跃指向并置 CANCELLED。
// 已终结的活动拒绝取消。
func (e *Engine) CancelCampaign(ctx context.Context, id int64) (*Campaign, error) {
	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", id, err)
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %d: %w", id, ErrNotFound)
	}
	if CampaignTerminal(c.Status) {
		return nil, fmt.Errorf("campaign %d already %s: %w", id, CampaignStatusText(c.Status), ErrInvalidState)
	}

	n, err := e.store.DeactivateCampaignTargets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deactivate campaign targets: %w", err)
	}
	ok, err := e.store.CancelCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cancel campaign: %w", err)
	}
	if !ok {
		// 与结清竞争：指向已停用，状态保持竞争到的终态
		return nil, fmt.Errorf("campaign %d settled concurrently: %w", id, ErrInvalidState)
	}

	e.log.Info("campaign cancelled",
		zap.Int64("campaign_id", id),
		zap.Int64("targets_deactivated", n))
	return e.store.GetCampaign(ctx, id)
}

// TargetRollback 将设备指向回滚到指定版本并置一次性回滚标记。
// 设备将在下次心跳收到回滚指令，随后通过 OTA 检查取得回滚制品。
func (e *Engine) TargetRollback(ctx context.Context, serial, version string) error {
	dev, err := e.store.GetDeviceBySerial(ctx, serial)
	if err != nil {
		return fmt.Errorf("load device %s: %w", serial, err)
	}
	if dev == nil {
		return fmt.Errorf("device %s: %w", serial, ErrNotFound)
	}
	artifact, err := e.store.GetArtifactByVersion(ctx, version)
	if err != nil {
		return fmt.Errorf("load firmware %s: %w", version, err)
	}
	if artifact == nil {
		return fmt.Errorf("firmware %s: %w", version, ErrNotFound)
	}
	if err := e.store.SeedRollback(ctx, dev.ID, artifact.ID); err != nil {
		return fmt.Errorf("seed rollback: %w", err)
	}
	e.log.Info("rollback targeted",
		zap.String("serial", serial),
		zap.String("firmware", version))
	return nil
}

// CheckUpdate 处理一次 OTA 检查：优先按活跃指向下发，无指向时退回
// 全局最新激活固件。设备上报版本已等于目标版本时就地结算（隐式完成）。
func (e *Engine) CheckUpdate(ctx context.Context, dev *Device, currentVer string) (*CheckDecision, error) {
	target, err := e.store.GetActiveTarget(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("load active target: %w", err)
	}

	if target != nil {
		artifact, err := e.store.GetArtifactByID(ctx, target.FirmwareID)
		if err != nil {
			return nil, fmt.Errorf("load firmware %d: %w", target.FirmwareID, err)
		}
		if artifact == nil {
			e.log.Error("active target references missing firmware",
				zap.String("serial", dev.Serial),
				zap.Int64("firmware_id", target.FirmwareID))
			return &CheckDecision{UpToDate: true}, nil
		}

		if currentVer == artifact.Version {
			if err := e.settleImplicit(ctx, dev, target, artifact, currentVer); err != nil {
				return nil, err
			}
			return &CheckDecision{UpToDate: true}, nil
		}

		lg, err := e.store.EnsureUpdateLog(ctx, dev.ID, artifact.ID, target.CampaignID, currentVer)
		if err != nil {
			return nil, fmt.Errorf("ensure update log: %w", err)
		}
		if UpdateTerminal(lg.Status) {
			// 指向仍活跃但日志已终结：结算与停用竞争中的残留，不再下发
			e.log.Warn("active target with settled log, withholding offer",
				zap.String("serial", dev.Serial),
				zap.Int64("log_id", lg.ID),
				zap.String("status", UpdateStatusText(lg.Status)))
			return &CheckDecision{UpToDate: true}, nil
		}
		return e.offer(ctx, dev, artifact, lg, currentVer)
	}

	// 非定向路径：仅全局激活固件可作为默认升级目标
	artifact, err := e.store.GetActiveArtifact(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active firmware: %w", err)
	}
	if artifact == nil || currentVer == "" || currentVer == artifact.Version {
		return &CheckDecision{UpToDate: true}, nil
	}

	lg, err := e.store.EnsureUpdateLog(ctx, dev.ID, artifact.ID, nil, currentVer)
	if err != nil {
		return nil, fmt.Errorf("ensure update log: %w", err)
	}
	if UpdateTerminal(lg.Status) {
		// 历史尝试已终结但设备版本又回到旧版：重建日志重新计数
		lg, err = e.store.ReseedUpdateLog(ctx, dev.ID, artifact.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("reseed update log: %w", err)
		}
	}
	return e.offer(ctx, dev, artifact, lg, currentVer)
}

// offer 向设备下发升级：推进日志 checking→available，解析下载描述符
func (e *Engine) offer(ctx context.Context, dev *Device, artifact *Artifact, lg *UpdateLog, currentVer string) (*CheckDecision, error) {
	if err := e.store.MarkLogChecking(ctx, lg.ID, currentVer); err != nil {
		return nil, fmt.Errorf("mark log checking: %w", err)
	}
	var desc *DownloadDescriptor
	if e.resolver != nil {
		var err error
		desc, err = e.resolver.Resolve(ctx, artifact)
		if err != nil {
			return nil, fmt.Errorf("resolve download for %s: %w", artifact.Version, err)
		}
	}
	if err := e.store.MarkLogAvailable(ctx, lg.ID); err != nil {
		return nil, fmt.Errorf("mark log available: %w", err)
	}
	return &CheckDecision{UpdateAvailable: true, Artifact: artifact, Log: lg, Descriptor: desc}, nil
}

// settleImplicit 设备已运行目标版本时的就地结算。
// 从未真正下载过（首次检查即命中）按 SKIPPED 记录，其余按 COMPLETED。
func (e *Engine) settleImplicit(ctx context.Context, dev *Device, target *Target, artifact *Artifact, currentVer string) error {
	lg, err := e.store.EnsureUpdateLog(ctx, dev.ID, artifact.ID, target.CampaignID, currentVer)
	if err != nil {
		return fmt.Errorf("ensure update log: %w", err)
	}
	final := int16(UpdateCompleted)
	if lg.Status == UpdatePending && lg.Attempts == 0 {
		final = UpdateSkipped
	}
	flipped, err := e.store.CompleteLog(ctx, lg.ID, final)
	if err != nil {
		return fmt.Errorf("complete log: %w", err)
	}
	if !flipped {
		return nil
	}
	e.afterSuccess(ctx, dev.ID, artifact, lg.CampaignID)
	e.log.Info("update settled implicitly",
		zap.String("serial", dev.Serial),
		zap.String("firmware", artifact.Version),
		zap.String("status", UpdateStatusText(final)))
	return nil
}

// StartDownload 下载代理开始回源前调用：定位制品并把对应日志
// 推进到 downloading。日志缺失或已终结不阻断下载（设备可能在重试）。
func (e *Engine) StartDownload(ctx context.Context, dev *Device, version string) (*Artifact, error) {
	artifact, err := e.store.GetArtifactByVersion(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("load firmware %s: %w", version, err)
	}
	if artifact == nil {
		return nil, fmt.Errorf("firmware %s: %w", version, ErrNotFound)
	}
	if _, err := e.store.MarkLogDownloading(ctx, dev.ID, artifact.ID); err != nil {
		e.log.Warn("mark log downloading failed",
			zap.String("serial", dev.Serial),
			zap.String("firmware", version),
			zap.Error(err))
	}
	return artifact, nil
}

// ReportResult 处理设备主动上报的升级结果并结算活动计数。
// 未知固件版本或不存在对应日志时返回 NotFound；重复上报幂等。
func (e *Engine) ReportResult(ctx context.Context, dev *Device, req ReportRequest) (*UpdateLog, error) {
	artifact, err := e.store.GetArtifactByVersion(ctx, req.Version)
	if err != nil {
		return nil, fmt.Errorf("load firmware %s: %w", req.Version, err)
	}
	if artifact == nil {
		return nil, fmt.Errorf("firmware %s: %w", req.Version, ErrNotFound)
	}
	lg, err := e.store.GetUpdateLog(ctx, dev.ID, artifact.ID)
	if err != nil {
		return nil, fmt.Errorf("load update log: %w", err)
	}
	if lg == nil {
		return nil, fmt.Errorf("no update attempt for %s on %s: %w", req.Version, dev.Serial, ErrNotFound)
	}

	if req.Success {
		flipped, err := e.store.CompleteLog(ctx, lg.ID, UpdateCompleted)
		if err != nil {
			return nil, fmt.Errorf("complete log: %w", err)
		}
		if flipped {
			if err := e.store.SetDeviceFirmwareVersion(ctx, dev.ID, artifact.Version); err != nil {
				e.log.Warn("record device firmware version failed",
					zap.String("serial", dev.Serial),
					zap.Error(err))
			}
			e.afterSuccess(ctx, dev.ID, artifact, lg.CampaignID)
			e.log.Info("update reported success",
				zap.String("serial", dev.Serial),
				zap.String("firmware", artifact.Version))
		}
	} else {
		msg := req.Message
		if msg == "" && req.ErrorCode != nil {
			msg = e.reasons.Describe(*req.ErrorCode)
		}
		if msg == "" {
			msg = "update failed"
		}
		flipped, err := e.store.FailLog(ctx, lg.ID, msg)
		if err != nil {
			return nil, fmt.Errorf("fail log: %w", err)
		}
		if flipped {
			e.afterFailure(ctx, dev.ID, artifact, lg.CampaignID)
			e.log.Info("update reported failure",
				zap.String("serial", dev.Serial),
				zap.String("firmware", artifact.Version),
				zap.String("reason", msg))
		}
	}

	return e.store.GetUpdateLog(ctx, dev.ID, artifact.ID)
}

// DeviceHistory 返回设备的升级历史，最新在前
func (e *Engine) DeviceHistory(ctx context.Context, serial string, limit int) ([]UpdateLog, error) {
	dev, err := e.store.GetDeviceBySerial(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", serial, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("device %s: %w", serial, ErrNotFound)
	}
	logs, err := e.store.ListDeviceUpdateLogs(ctx, dev.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list update logs: %w", err)
	}
	return logs, nil
}

// afterSuccess 成功结算的归属方动作：停用指向、活动计数自增、结清判定
func (e *Engine) afterSuccess(ctx context.Context, deviceID int64, artifact *Artifact, campaignID *int64) {
	if _, err := e.store.DeactivateTargetFor(ctx, deviceID, artifact.ID); err != nil {
		e.log.Warn("deactivate target failed",
			zap.Int64("device_id", deviceID),
			zap.Int64("firmware_id", artifact.ID),
			zap.Error(err))
	}
	if campaignID == nil {
		return
	}
	if err := e.store.IncCampaignUpdated(ctx, *campaignID); err != nil {
		e.log.Error("increment devices_updated failed",
			zap.Int64("campaign_id", *campaignID),
			zap.Error(err))
		return
	}
	e.finalize(ctx, *campaignID)
}

// afterFailure 失败结算的归属方动作
func (e *Engine) afterFailure(ctx context.Context, deviceID int64, artifact *Artifact, campaignID *int64) {
	if _, err := e.store.DeactivateTargetFor(ctx, deviceID, artifact.ID); err != nil {
		e.log.Warn("deactivate target failed",
			zap.Int64("device_id", deviceID),
			zap.Int64("firmware_id", artifact.ID),
			zap.Error(err))
	}
	if campaignID == nil {
		return
	}
	if err := e.store.IncCampaignFailed(ctx, *campaignID); err != nil {
		e.log.Error("increment devices_failed failed",
			zap.Int64("campaign_id", *campaignID),
			zap.Error(err))
		return
	}
	e.finalize(ctx, *campaignID)
}

func (e *Engine) finalize(ctx context.Context, campaignID int64) {
	done, err := e.store.FinalizeCampaign(ctx, campaignID)
	if err != nil {
		e.log.Error("finalize campaign failed",
			zap.Int64("campaign_id", campaignID),
			zap.Error(err))
		return
	}
	if done {
		e.log.Info("campaign settled", zap.Int64("campaign_id", campaignID))
	}
}
