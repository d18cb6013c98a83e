package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/fleet-server/internal/fleet"
)

// Repository 设备轮询热路径仓储，实现 fleet.HeartbeatStore 与 fleet.RolloutStore。
// 所有标记清除与状态翻转均为条件更新，由 RowsAffected 判定归属。
type Repository struct {
	Pool *pgxpool.Pool
}

// New 返回 Repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

const deviceColumns = `id, serial, config_id, config_ack_ver,
	pending_reboot, pending_hard_reset, pending_rollback, pending_config_update,
	logs_enabled, current_fw_ver, uptime_sec,
	last_heartbeat_at, config_downloaded_at, config_acked_at`

func scanDevice(row pgx.Row) (*fleet.Device, error) {
	var d fleet.Device
	err := row.Scan(&d.ID, &d.Serial, &d.ConfigID, &d.ConfigAckVer,
		&d.PendingReboot, &d.PendingHardReset, &d.PendingRollback, &d.PendingConfigUpdate,
		&d.LogsEnabled, &d.CurrentFwVer, &d.UptimeSec,
		&d.LastHeartbeat, &d.ConfigDownloadedAt, &d.ConfigAckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// EnsureDevice 按序列号取设备，不存在则插入（设备首次轮询即注册）
func (r *Repository) EnsureDevice(ctx context.Context, serial string) (*fleet.Device, error) {
	const q = `INSERT INTO devices (serial, created_at, updated_at)
               VALUES ($1, NOW(), NOW())
               ON CONFLICT (serial) DO UPDATE SET updated_at = NOW()
               RETURNING ` + deviceColumns
	return scanDevice(r.Pool.QueryRow(ctx, q, serial))
}

// GetDeviceBySerial 查询设备，不存在返回 nil,nil
func (r *Repository) GetDeviceBySerial(ctx context.Context, serial string) (*fleet.Device, error) {
	const q = `SELECT ` + deviceColumns + ` FROM devices WHERE serial=$1`
	return scanDevice(r.Pool.QueryRow(ctx, q, serial))
}

// TouchHeartbeat 记录心跳时间与设备自报的固件版本/运行时长
func (r *Repository) TouchHeartbeat(ctx context.Context, deviceID int64, fwVer string, uptimeSec int64) error {
	const q = `UPDATE devices SET last_heartbeat_at = NOW(),
               current_fw_ver = COALESCE(NULLIF($2,''), current_fw_ver),
               uptime_sec = $3, updated_at = NOW()
               WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, deviceID, fwVer, uptimeSec)
	return err
}

// GetConfiguration 读取配置档案，不存在返回 nil,nil
func (r *Repository) GetConfiguration(ctx context.Context, configID int64) (*fleet.Configuration, error) {
	const q = `SELECT id, name, version, content, updated_at FROM configurations WHERE id=$1`
	var c fleet.Configuration
	err := r.Pool.QueryRow(ctx, q, configID).Scan(&c.ID, &c.Name, &c.Version, &c.Content, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ClearPendingReboot 条件清除重启标记，返回是否由本次调用清除
func (r *Repository) ClearPendingReboot(ctx context.Context, deviceID int64) (bool, error) {
	const q = `UPDATE devices SET pending_reboot=false, updated_at=NOW()
               WHERE id=$1 AND pending_reboot=true`
	tag, err := r.Pool.Exec(ctx, q, deviceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClearPendingHardReset 条件清除硬复位标记
func (r *Repository) ClearPendingHardReset(ctx context.Context, deviceID int64) (bool, error) {
	const q = `UPDATE devices SET pending_hard_reset=false, updated_at=NOW()
               WHERE id=$1 AND pending_hard_reset=true`
	tag, err := r.Pool.Exec(ctx, q, deviceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClearPendingRollback 条件清除回滚标记
func (r *Repository) ClearPendingRollback(ctx context.Context, deviceID int64) (bool, error) {
	const q = `UPDATE devices SET pending_rollback=false, updated_at=NOW()
               WHERE id=$1 AND pending_rollback=true`
	tag, err := r.Pool.Exec(ctx, q, deviceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkConfigDownloaded 设备确认收到配置：推进下载时间并清除显式标记
func (r *Repository) MarkConfigDownloaded(ctx context.Context, deviceID int64) error {
	const q = `UPDATE devices SET config_downloaded_at=NOW(),
               pending_config_update=false, updated_at=NOW()
               WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, deviceID)
	return err
}

// AckConfigVersion 记录设备确认的配置版本，防御性再清一次标记
func (r *Repository) AckConfigVersion(ctx context.Context, deviceID int64, version int) error {
	const q = `UPDATE devices SET config_ack_ver=$2, config_acked_at=NOW(),
               pending_config_update=false, updated_at=NOW()
               WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, deviceID, version)
	return err
}

// SetDeviceFirmwareVersion 升级成功后回写设备当前固件版本
func (r *Repository) SetDeviceFirmwareVersion(ctx context.Context, deviceID int64, version string) error {
	const q = `UPDATE devices SET current_fw_ver=$2, updated_at=NOW() WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, deviceID, version)
	return err
}

// ResolveDevicesByReportedVersion 按最近一条升级日志自报的版本圈选设备。
// 从未检查过的设备没有日志，不会被圈选。
func (r *Repository) ResolveDevicesByReportedVersion(ctx context.Context, version string) ([]fleet.DeviceRef, error) {
	const q = `SELECT d.id, d.serial
               FROM devices d
               JOIN LATERAL (
                   SELECT current_version FROM update_logs l
                   WHERE l.device_id = d.id
                   ORDER BY l.id DESC LIMIT 1
               ) latest ON TRUE
               WHERE latest.current_version = $1
               ORDER BY d.id`
	rows, err := r.Pool.Query(ctx, q, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []fleet.DeviceRef
	for rows.Next() {
		var ref fleet.DeviceRef
		if err := rows.Scan(&ref.ID, &ref.Serial); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
