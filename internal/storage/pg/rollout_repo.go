package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taoyao-code/fleet-server/internal/fleet"
)

// 升级日志状态字面量与 fleet 包常量一致：
// 0=pending 1=checking 2=available 3=downloading 4=completed 5=failed 6=skipped
// 活动状态：0=pending 1=in_progress 2=completed 3=failed 4=cancelled

const artifactColumns = `id, version, size_bytes, checksum, object_key, is_active, created_at`

func scanArtifact(row pgx.Row) (*fleet.Artifact, error) {
	var a fleet.Artifact
	err := row.Scan(&a.ID, &a.Version, &a.SizeBytes, &a.Checksum, &a.ObjectKey, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetArtifactByID 读取固件制品
func (r *Repository) GetArtifactByID(ctx context.Context, id int64) (*fleet.Artifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM firmware_artifacts WHERE id=$1`
	return scanArtifact(r.Pool.QueryRow(ctx, q, id))
}

// GetArtifactByVersion 按版本号读取固件制品
func (r *Repository) GetArtifactByVersion(ctx context.Context, version string) (*fleet.Artifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM firmware_artifacts WHERE version=$1`
	return scanArtifact(r.Pool.QueryRow(ctx, q, version))
}

// GetActiveArtifact 取最新的全局激活固件（非定向升级的默认目标）
func (r *Repository) GetActiveArtifact(ctx context.Context) (*fleet.Artifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM firmware_artifacts
               WHERE is_active=true ORDER BY id DESC LIMIT 1`
	return scanArtifact(r.Pool.QueryRow(ctx, q))
}

const targetColumns = `id, device_id, firmware_id, campaign_id, is_active, is_rollback, created_at`

// GetActiveTarget 取设备当前的活跃固件指向（至多一条）
func (r *Repository) GetActiveTarget(ctx context.Context, deviceID int64) (*fleet.Target, error) {
	const q = `SELECT ` + targetColumns + ` FROM device_fw_targets
               WHERE device_id=$1 AND is_active=true
               ORDER BY id DESC LIMIT 1`
	var t fleet.Target
	err := r.Pool.QueryRow(ctx, q, deviceID).Scan(
		&t.ID, &t.DeviceID, &t.FirmwareID, &t.CampaignID, &t.IsActive, &t.IsRollback, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// DeactivateTargetFor 停用设备对指定固件的活跃指向，返回是否由本次调用停用
func (r *Repository) DeactivateTargetFor(ctx context.Context, deviceID, firmwareID int64) (bool, error) {
	const q = `UPDATE device_fw_targets SET is_active=false
               WHERE device_id=$1 AND firmware_id=$2 AND is_active=true`
	tag, err := r.Pool.Exec(ctx, q, deviceID, firmwareID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateCampaignTargets 停用活动名下全部活跃指向，返回停用条数
func (r *Repository) DeactivateCampaignTargets(ctx context.Context, campaignID int64) (int64, error) {
	const q = `UPDATE device_fw_targets SET is_active=false
               WHERE campaign_id=$1 AND is_active=true`
	tag, err := r.Pool.Exec(ctx, q, campaignID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// seedTarget 在事务内替换设备指向并重建升级日志：
// 停用旧指向 → 建新活跃指向 → 删除同 (device, firmware) 历史日志 → 播种 pending 日志
func seedTarget(ctx context.Context, tx pgx.Tx, deviceID, firmwareID int64, campaignID *int64, isRollback bool) error {
	const deactivate = `UPDATE device_fw_targets SET is_active=false
                        WHERE device_id=$1 AND is_active=true`
	if _, err := tx.Exec(ctx, deactivate, deviceID); err != nil {
		return err
	}
	const insert = `INSERT INTO device_fw_targets
                    (device_id, firmware_id, campaign_id, is_active, is_rollback, created_at)
                    VALUES ($1,$2,$3,true,$4,NOW())`
	if _, err := tx.Exec(ctx, insert, deviceID, firmwareID, campaignID, isRollback); err != nil {
		return err
	}
	const purge = `DELETE FROM update_logs WHERE device_id=$1 AND firmware_id=$2`
	if _, err := tx.Exec(ctx, purge, deviceID, firmwareID); err != nil {
		return err
	}
	const seed = `INSERT INTO update_logs
                  (device_id, firmware_id, campaign_id, current_version, status, attempts, created_at)
                  VALUES ($1,$2,$3,'',0,0,NOW())`
	_, err := tx.Exec(ctx, seed, deviceID, firmwareID, campaignID)
	return err
}

// SeedCampaign 单事务落库：活动行、逐设备指向替换与日志重建，
// 全部播种后置 devices_total 并推进到 in_progress
func (r *Repository) SeedCampaign(ctx context.Context, c *fleet.Campaign, deviceIDs []int64) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertCampaign = `INSERT INTO rollout_campaigns
        (target_mode, firmware_id, source_version, status, devices_total, created_at)
        VALUES ($1,$2,$3,0,0,NOW())
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertCampaign, c.TargetMode, c.FirmwareID, c.SourceVersion).
		Scan(&c.ID, &c.CreatedAt); err != nil {
		return err
	}

	for _, deviceID := range deviceIDs {
		if err := seedTarget(ctx, tx, deviceID, c.FirmwareID, &c.ID, false); err != nil {
			return err
		}
	}

	const activate = `UPDATE rollout_campaigns SET devices_total=$2, status=1 WHERE id=$1`
	if _, err := tx.Exec(ctx, activate, c.ID, len(deviceIDs)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	c.DevicesTotal = len(deviceIDs)
	c.Status = fleet.CampaignInProgress
	return nil
}

// SeedRollback 单事务替换设备指向为回滚目标并置一次性回滚标记
func (r *Repository) SeedRollback(ctx context.Context, deviceID, firmwareID int64) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := seedTarget(ctx, tx, deviceID, firmwareID, nil, true); err != nil {
		return err
	}
	const flag = `UPDATE devices SET pending_rollback=true, updated_at=NOW() WHERE id=$1`
	if _, err := tx.Exec(ctx, flag, deviceID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const campaignColumns = `id, target_mode, firmware_id, source_version, status,
	devices_total, devices_updated, devices_failed, created_at, completed_at`

func scanCampaign(row pgx.Row) (*fleet.Campaign, error) {
	var c fleet.Campaign
	err := row.Scan(&c.ID, &c.TargetMode, &c.FirmwareID, &c.SourceVersion, &c.Status,
		&c.DevicesTotal, &c.DevicesUpdated, &c.DevicesFailed, &c.CreatedAt, &c.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetCampaign 读取活动，不存在返回 nil,nil
func (r *Repository) GetCampaign(ctx context.Context, id int64) (*fleet.Campaign, error) {
	const q = `SELECT ` + campaignColumns + ` FROM rollout_campaigns WHERE id=$1`
	return scanCampaign(r.Pool.QueryRow(ctx, q, id))
}

// ListInProgressCampaigns 取进行中的活动（清扫批次）
func (r *Repository) ListInProgressCampaigns(ctx context.Context, limit int) ([]fleet.Campaign, error) {
	const q = `SELECT ` + campaignColumns + ` FROM rollout_campaigns
               WHERE status=1 ORDER BY id LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []fleet.Campaign
	for rows.Next() {
		var c fleet.Campaign
		if err := rows.Scan(&c.ID, &c.TargetMode, &c.FirmwareID, &c.SourceVersion, &c.Status,
			&c.DevicesTotal, &c.DevicesUpdated, &c.DevicesFailed, &c.CreatedAt, &c.CompletedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CancelCampaign 条件取消：仅 pending/in_progress 可取消
func (r *Repository) CancelCampaign(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE rollout_campaigns SET status=4, completed_at=NOW()
               WHERE id=$1 AND status IN (0,1)`
	tag, err := r.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncCampaignUpdated 成功计数增量更新
func (r *Repository) IncCampaignUpdated(ctx context.Context, id int64) error {
	const q = `UPDATE rollout_campaigns SET devices_updated=devices_updated+1 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id)
	return err
}

// IncCampaignFailed 失败计数增量更新
func (r *Repository) IncCampaignFailed(ctx context.Context, id int64) error {
	const q = `UPDATE rollout_campaigns SET devices_failed=devices_failed+1 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id)
	return err
}

// FinalizeCampaign 结清判定：计数到齐且仍在进行中时一步进入终态，
// 有失败设备置 failed，否则 completed
func (r *Repository) FinalizeCampaign(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE rollout_campaigns
               SET status = CASE WHEN devices_failed > 0 THEN 3 ELSE 2 END,
                   completed_at = NOW()
               WHERE id=$1 AND status=1
                 AND devices_total > 0
                 AND devices_updated + devices_failed >= devices_total`
	tag, err := r.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const logColumns = `id, device_id, firmware_id, campaign_id, current_version, status,
	attempts, error_message, started_at, completed_at, last_checked_at, created_at`

func scanUpdateLog(row pgx.Row) (*fleet.UpdateLog, error) {
	var l fleet.UpdateLog
	err := row.Scan(&l.ID, &l.DeviceID, &l.FirmwareID, &l.CampaignID, &l.CurrentVersion, &l.Status,
		&l.Attempts, &l.ErrorMessage, &l.StartedAt, &l.CompletedAt, &l.LastCheckedAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// GetUpdateLog 读取 (device, firmware) 的升级日志
func (r *Repository) GetUpdateLog(ctx context.Context, deviceID, firmwareID int64) (*fleet.UpdateLog, error) {
	const q = `SELECT ` + logColumns + ` FROM update_logs
               WHERE device_id=$1 AND firmware_id=$2`
	return scanUpdateLog(r.Pool.QueryRow(ctx, q, deviceID, firmwareID))
}

// EnsureUpdateLog 不存在则创建 pending 日志，存在则原样返回。
// 冲突时的空更新仅为了让 RETURNING 拿到已有行。
func (r *Repository) EnsureUpdateLog(ctx context.Context, deviceID, firmwareID int64, campaignID *int64, currentVer string) (*fleet.UpdateLog, error) {
	const q = `INSERT INTO update_logs
               (device_id, firmware_id, campaign_id, current_version, status, attempts, created_at)
               VALUES ($1,$2,$3,$4,0,0,NOW())
               ON CONFLICT (device_id, firmware_id)
               DO UPDATE SET device_id = update_logs.device_id
               RETURNING ` + logColumns
	return scanUpdateLog(r.Pool.QueryRow(ctx, q, deviceID, firmwareID, campaignID, currentVer))
}

// ReseedUpdateLog 删除历史日志并重建 pending 日志（计数从零开始）
func (r *Repository) ReseedUpdateLog(ctx context.Context, deviceID, firmwareID int64, campaignID *int64) (*fleet.UpdateLog, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const purge = `DELETE FROM update_logs WHERE device_id=$1 AND firmware_id=$2`
	if _, err := tx.Exec(ctx, purge, deviceID, firmwareID); err != nil {
		return nil, err
	}
	const seed = `INSERT INTO update_logs
                  (device_id, firmware_id, campaign_id, current_version, status, attempts, created_at)
                  VALUES ($1,$2,$3,'',0,0,NOW())
                  RETURNING ` + logColumns
	lg, err := scanUpdateLog(tx.QueryRow(ctx, seed, deviceID, firmwareID, campaignID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return lg, nil
}

// MarkLogChecking 每次 OTA 检查的触达记录：attempts+1、刷新
// last_checked_at 与自报版本，pending 推进为 checking，其余在途状态保持
func (r *Repository) MarkLogChecking(ctx context.Context, logID int64, currentVer string) error {
	const q = `UPDATE update_logs
               SET attempts = attempts + 1,
                   last_checked_at = NOW(),
                   current_version = $2,
                   started_at = COALESCE(started_at, NOW()),
                   status = CASE WHEN status = 0 THEN 1 ELSE status END
               WHERE id=$1 AND status IN (0,1,2,3)`
	_, err := r.Pool.Exec(ctx, q, logID, currentVer)
	return err
}

// MarkLogAvailable 下载地址已下发
func (r *Repository) MarkLogAvailable(ctx context.Context, logID int64) error {
	const q = `UPDATE update_logs SET status=2
               WHERE id=$1 AND status IN (0,1,2,3)`
	_, err := r.Pool.Exec(ctx, q, logID)
	return err
}

// MarkLogDownloading 设备开始经代理拉流，返回是否推进成功
func (r *Repository) MarkLogDownloading(ctx context.Context, deviceID, firmwareID int64) (bool, error) {
	const q = `UPDATE update_logs SET status=3, last_checked_at=NOW()
               WHERE device_id=$1 AND firmware_id=$2 AND status IN (1,2,3)`
	tag, err := r.Pool.Exec(ctx, q, deviceID, firmwareID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteLog 条件终结为 completed/skipped，已终结的日志不再翻转
func (r *Repository) CompleteLog(ctx context.Context, logID int64, status int16) (bool, error) {
	const q = `UPDATE update_logs SET status=$2, completed_at=NOW(), error_message=NULL
               WHERE id=$1 AND status IN (0,1,2,3)`
	tag, err := r.Pool.Exec(ctx, q, logID, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailLog 条件终结为 failed 并记录原因
func (r *Repository) FailLog(ctx context.Context, logID int64, msg string) (bool, error) {
	const q = `UPDATE update_logs SET status=5, completed_at=NOW(), error_message=$2
               WHERE id=$1 AND status IN (0,1,2,3)`
	tag, err := r.Pool.Exec(ctx, q, logID, msg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) queryLogs(ctx context.Context, q string, args ...interface{}) ([]fleet.UpdateLog, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []fleet.UpdateLog
	for rows.Next() {
		var l fleet.UpdateLog
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.FirmwareID, &l.CampaignID, &l.CurrentVersion, &l.Status,
			&l.Attempts, &l.ErrorMessage, &l.StartedAt, &l.CompletedAt, &l.LastCheckedAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// ListStaleCampaignLogs 活动名下在途且静默超阈值的日志（清扫候选一次性取出）
func (r *Repository) ListStaleCampaignLogs(ctx context.Context, campaignID int64, cutoff time.Time, limit int) ([]fleet.UpdateLog, error) {
	const q = `SELECT ` + logColumns + ` FROM update_logs
               WHERE campaign_id=$1 AND status IN (1,2,3)
                 AND last_checked_at IS NOT NULL AND last_checked_at < $2
               ORDER BY id LIMIT $3`
	return r.queryLogs(ctx, q, campaignID, cutoff, limit)
}

// ListStaleOrphanLogs 无活动归属（全局升级路径）的在途静默日志
func (r *Repository) ListStaleOrphanLogs(ctx context.Context, cutoff time.Time, limit int) ([]fleet.UpdateLog, error) {
	const q = `SELECT ` + logColumns + ` FROM update_logs
               WHERE campaign_id IS NULL AND status IN (1,2,3)
                 AND last_checked_at IS NOT NULL AND last_checked_at < $1
               ORDER BY id LIMIT $2`
	return r.queryLogs(ctx, q, cutoff, limit)
}

// ListDeviceUpdateLogs 设备升级历史（管理端查询）
func (r *Repository) ListDeviceUpdateLogs(ctx context.Context, deviceID int64, limit int) ([]fleet.UpdateLog, error) {
	const q = `SELECT ` + logColumns + ` FROM update_logs
               WHERE device_id=$1 ORDER BY id DESC LIMIT $2`
	return r.queryLogs(ctx, q, deviceID, limit)
}
