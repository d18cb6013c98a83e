package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/metrics"
)

// StaleSweeper 升级静默清扫器
// 定期把超过静默阈值仍未上报结果的升级尝试判为失败，并触发活动结清。
// 设备只拉不推，崩溃或断电的设备永远不会回报失败，必须由服务端回收。
type StaleSweeper struct {
	engine  *fleet.Engine
	store   fleet.RolloutStore
	metrics *metrics.AppMetrics
	logger  *zap.Logger

	interval time.Duration

	// 统计
	statsRounds    int64
	statsFailed    int64
	statsCampaigns int64
}

// NewStaleSweeper 创建清扫器
func NewStaleSweeper(engine *fleet.Engine, store fleet.RolloutStore, interval time.Duration, appm *metrics.AppMetrics, logger *zap.Logger) *StaleSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StaleSweeper{
		engine:   engine,
		store:    store,
		metrics:  appm,
		logger:   logger,
		interval: interval,
	}
}

// Start 启动清扫器
func (s *StaleSweeper) Start(ctx context.Context) {
	s.logger.Info("stale sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("stale_timeout", s.engine.StaleTimeout()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stale sweeper stopped",
				zap.Int64("rounds", s.statsRounds),
				zap.Int64("entries_failed", s.statsFailed),
				zap.Int64("campaigns_swept", s.statsCampaigns))
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep 执行一轮清扫
func (s *StaleSweeper) sweep(ctx context.Context) {
	s.statsRounds++

	stats, err := s.engine.SweepStale(ctx)
	if err != nil {
		s.logger.Error("stale sweep failed", zap.Error(err))
		return
	}

	failed := stats.EntriesFailed + stats.OrphansFailed
	s.statsFailed += int64(failed)
	s.statsCampaigns += int64(stats.CampaignsSwept)

	if failed > 0 {
		if s.metrics != nil {
			s.metrics.SweepFailedTotal.Add(float64(failed))
		}
		s.logger.Warn("stale updates failed by sweep",
			zap.Int("campaigns", stats.CampaignsSwept),
			zap.Int("entries_failed", stats.EntriesFailed),
			zap.Int("orphans_failed", stats.OrphansFailed))
	}

	// 刷新进行中活动数，供监控面板观察发布进度
	if s.metrics != nil {
		if campaigns, err := s.store.ListInProgressCampaigns(ctx, 1000); err == nil {
			s.metrics.CampaignsGauge.Set(float64(len(campaigns)))
		}
	}
}

// Stats 获取清扫统计
func (s *StaleSweeper) Stats() map[string]interface{} {
	return map[string]interface{}{
		"rounds":            s.statsRounds,
		"entries_failed":    s.statsFailed,
		"campaigns_swept":   s.statsCampaigns,
		"interval_sec":      s.interval.Seconds(),
		"stale_timeout_sec": s.engine.StaleTimeout().Seconds(),
	}
}
