package fleet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SweepStats 一轮全量清扫的统计
type SweepStats struct {
	CampaignsSwept int
	EntriesFailed  int
	OrphansFailed  int
}

// SweepCampaign 对单个进行中的活动执行超时清扫：把在途状态
// （checking/available/downloading）且超过静默阈值的日志判失败，
// 停用对应指向并累加 devices_failed，最后做结清判定。
// 候选 (日志, 设备) 必须在改写任何日志之前一次性取出：改写会使
// 行不再命中筛选条件，事后重查只会得到空集。
// 幂等：重复或并发调用由日志状态守卫去重，不会重复计数。
// 单条失败只记录日志并跳过，不阻断剩余条目的结算。
func (e *Engine) SweepCampaign(ctx context.Context, campaignID int64) (int, error) {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}
	if c == nil {
		return 0, fmt.Errorf("campaign %d: %w", campaignID, ErrNotFound)
	}
	if c.Status != CampaignInProgress {
		return 0, nil
	}

	cutoff := time.Now().Add(-e.staleTimeout)
	stale, err := e.store.ListStaleCampaignLogs(ctx, campaignID, cutoff, e.sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale logs: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	reason := fmt.Sprintf("no activity for %s, marked failed by recovery sweep", e.staleTimeout)
	failed := 0
	for _, lg := range stale {
		flipped, err := e.store.FailLog(ctx, lg.ID, reason)
		if err != nil {
			e.log.Warn("sweep: fail log error",
				zap.Int64("campaign_id", campaignID),
				zap.Int64("log_id", lg.ID),
				zap.Error(err))
			continue
		}
		if !flipped {
			continue
		}
		if _, err := e.store.DeactivateTargetFor(ctx, lg.DeviceID, lg.FirmwareID); err != nil {
			e.log.Warn("sweep: deactivate target error",
				zap.Int64("device_id", lg.DeviceID),
				zap.Error(err))
		}
		if err := e.store.IncCampaignFailed(ctx, campaignID); err != nil {
			e.log.Error("sweep: increment devices_failed error",
				zap.Int64("campaign_id", campaignID),
				zap.Error(err))
			continue
		}
		failed++
	}

	if failed > 0 {
		e.log.Info("stale updates swept",
			zap.Int64("campaign_id", campaignID),
			zap.Int("failed", failed))
	}
	e.finalize(ctx, campaignID)
	return failed, nil
}

// SweepStale 对所有进行中的活动执行一轮清扫，并顺带清理无活动归属的
// 在途日志（如回滚或全局升级产生的孤儿尝试）。供后台定时器调用。
func (e *Engine) SweepStale(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	campaigns, err := e.store.ListInProgressCampaigns(ctx, e.sweepBatch)
	if err != nil {
		return stats, fmt.Errorf("list in-progress campaigns: %w", err)
	}
	for _, c := range campaigns {
		n, err := e.SweepCampaign(ctx, c.ID)
		if err != nil {
			e.log.Warn("sweep campaign error",
				zap.Int64("campaign_id", c.ID),
				zap.Error(err))
			continue
		}
		stats.CampaignsSwept++
		stats.EntriesFailed += n
	}

	cutoff := time.Now().Add(-e.staleTimeout)
	orphans, err := e.store.ListStaleOrphanLogs(ctx, cutoff, e.sweepBatch)
	if err != nil {
		return stats, fmt.Errorf("list stale orphan logs: %w", err)
	}
	reason := fmt.Sprintf("no activity for %s, marked failed by recovery sweep", e.staleTimeout)
	for _, lg := range orphans {
		flipped, err := e.store.FailLog(ctx, lg.ID, reason)
		if err != nil {
			e.log.Warn("sweep: fail orphan log error",
				zap.Int64("log_id", lg.ID),
				zap.Error(err))
			continue
		}
		if !flipped {
			continue
		}
		if _, err := e.store.DeactivateTargetFor(ctx, lg.DeviceID, lg.FirmwareID); err != nil {
			e.log.Warn("sweep: deactivate orphan target error",
				zap.Int64("device_id", lg.DeviceID),
				zap.Error(err))
		}
		stats.OrphansFailed++
	}

	return stats, nil
}

// StaleTimeout 返回清扫静默阈值（监控器日志用）
func (e *Engine) StaleTimeout() time.Duration {
	return e.staleTimeout
}
