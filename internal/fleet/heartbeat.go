package fleet

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// HeartbeatStore 心跳对账所需的存储能力。
// Clear* 系列为条件更新：仅当标记当前为 true 时置回 false，
// 返回本次调用是否真正完成了清除（并发轮询下保证至多一次下发）。
type HeartbeatStore interface {
	EnsureDevice(ctx context.Context, serial string) (*Device, error)
	TouchHeartbeat(ctx context.Context, deviceID int64, fwVer string, uptimeSec int64) error
	GetConfiguration(ctx context.Context, configID int64) (*Configuration, error)
	GetActiveTarget(ctx context.Context, deviceID int64) (*Target, error)
	ClearPendingReboot(ctx context.Context, deviceID int64) (bool, error)
	ClearPendingHardReset(ctx context.Context, deviceID int64) (bool, error)
	ClearPendingRollback(ctx context.Context, deviceID int64) (bool, error)
	MarkConfigDownloaded(ctx context.Context, deviceID int64) error
	AckConfigVersion(ctx context.Context, deviceID int64, version int) error
}

// HeartbeatRequest 设备心跳上报
type HeartbeatRequest struct {
	Serial    string
	ConfigID  int64 // 设备当前持有的配置 ID，0 表示无
	FwVersion string
	UptimeSec int64
}

// HeartbeatResult 单次心跳的命令集合
type HeartbeatResult struct {
	Device       *Device
	ConfigUpdate bool
	ConfigReason string
	Reboot       bool
	HardReset    bool
	Firmware     int // FirmwareNone / FirmwareUpdate / FirmwareRollback
	LogsEnabled  bool
}

// Reconciler 心跳对账器：对单次轮询做配置漂移判定、一次性命令下发与标记清除。
// 无内部状态，可并发调用；同设备并发轮询的正确性由存储层条件更新保证。
type Reconciler struct {
	store HeartbeatStore
	log   *zap.Logger
}

// NewReconciler 创建心跳对账器
func NewReconciler(store HeartbeatStore, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, log: log}
}

// Heartbeat 处理一次设备心跳：更新在线状态、判定配置刷新、
// 下发并清除一次性命令标记、计算固件指令。
func (r *Reconciler) Heartbeat(ctx context.Context, req HeartbeatRequest) (*HeartbeatResult, error) {
	dev, err := r.store.EnsureDevice(ctx, req.Serial)
	if err != nil {
		return nil, fmt.Errorf("ensure device %s: %w", req.Serial, err)
	}

	if err := r.store.TouchHeartbeat(ctx, dev.ID, req.FwVersion, req.UptimeSec); err != nil {
		return nil, fmt.Errorf("touch heartbeat: %w", err)
	}

	res := &HeartbeatResult{
		Device:      dev,
		LogsEnabled: dev.LogsEnabled,
	}

	// 配置漂移：身份不一致 → 显式标记 → 版本号兜底
	cfgVersion := 0
	if dev.ConfigID != nil {
		cfg, err := r.store.GetConfiguration(ctx, *dev.ConfigID)
		switch {
		case err != nil:
			// 查询失败不阻断心跳，仅丢失版本兜底层
			r.log.Warn("heartbeat: load configuration failed",
				zap.String("serial", dev.Serial),
				zap.Int64("config_id", *dev.ConfigID),
				zap.Error(err))
		case cfg == nil:
			r.log.Warn("heartbeat: assigned configuration missing",
				zap.String("serial", dev.Serial),
				zap.Int64("config_id", *dev.ConfigID))
		default:
			cfgVersion = cfg.Version
		}
	}
	res.ConfigUpdate, res.ConfigReason = DecideConfigRefresh(
		req.ConfigID, dev.ConfigID, dev.PendingConfigUpdate, dev.ConfigAckVer, cfgVersion)

	// 一次性命令：清除成功才下发，失败留给下次轮询重试
	if dev.PendingReboot {
		res.Reboot = r.clearFlag(ctx, dev, "reboot", r.store.ClearPendingReboot)
	}
	if dev.PendingHardReset {
		res.HardReset = r.clearFlag(ctx, dev, "hard_reset", r.store.ClearPendingHardReset)
	}
	rollback := false
	if dev.PendingRollback {
		rollback = r.clearFlag(ctx, dev, "rollback", r.store.ClearPendingRollback)
	}

	var target *Target
	if !rollback {
		target, err = r.store.GetActiveTarget(ctx, dev.ID)
		if err != nil {
			r.log.Warn("heartbeat: load active target failed",
				zap.String("serial", dev.Serial),
				zap.Error(err))
			target = nil
		}
	}
	res.Firmware = DecideFirmwareSignal(rollback, target)

	if res.ConfigUpdate || res.Reboot || res.HardReset || res.Firmware != FirmwareNone {
		r.log.Info("heartbeat commands surfaced",
			zap.String("serial", dev.Serial),
			zap.Bool("config_update", res.ConfigUpdate),
			zap.String("config_reason", res.ConfigReason),
			zap.Bool("reboot", res.Reboot),
			zap.Bool("hard_reset", res.HardReset),
			zap.Int("firmware", res.Firmware))
	}
	return res, nil
}

// DownloadConfig 设备拉取配置内容：返回指派配置原文，推进 config_downloaded_at
// 并清除 pending_config_update。版本确认由 AckConfig 单独完成。
func (r *Reconciler) DownloadConfig(ctx context.Context, serial string) (*Configuration, error) {
	dev, err := r.store.EnsureDevice(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("ensure device %s: %w", serial, err)
	}
	if dev.ConfigID == nil {
		return nil, fmt.Errorf("device %s has no assigned configuration: %w", serial, ErrNotFound)
	}
	cfg, err := r.store.GetConfiguration(ctx, *dev.ConfigID)
	if err != nil {
		return nil, fmt.Errorf("load configuration %d: %w", *dev.ConfigID, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration %d: %w", *dev.ConfigID, ErrNotFound)
	}
	if err := r.store.MarkConfigDownloaded(ctx, dev.ID); err != nil {
		// 落库失败不阻断下载，设备下次轮询仍会被版本兜底层拉回
		r.log.Warn("mark config downloaded failed",
			zap.String("serial", dev.Serial),
			zap.Error(err))
	}
	return cfg, nil
}

// AckConfig 设备确认已应用的配置版本：记录 config_ack_ver，
// 并再次防御性清除 pending_config_update。
func (r *Reconciler) AckConfig(ctx context.Context, serial string, version int) error {
	dev, err := r.store.EnsureDevice(ctx, serial)
	if err != nil {
		return fmt.Errorf("ensure device %s: %w", serial, err)
	}
	if err := r.store.AckConfigVersion(ctx, dev.ID, version); err != nil {
		return fmt.Errorf("ack config version: %w", err)
	}
	r.log.Debug("config version acknowledged",
		zap.String("serial", dev.Serial),
		zap.Int("version", version))
	return nil
}

func (r *Reconciler) clearFlag(ctx context.Context, dev *Device, name string, clear func(context.Context, int64) (bool, error)) bool {
	cleared, err := clear(ctx, dev.ID)
	if err != nil {
		r.log.Warn("heartbeat: clear command flag failed",
			zap.String("serial", dev.Serial),
			zap.String("flag", name),
			zap.Error(err))
		return false
	}
	return cleared
}
