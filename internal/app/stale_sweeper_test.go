package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/metrics"
)

// sweepStore 内存版RolloutStore，只实现清扫路径涉及的方法。
// 嵌入接口使未实现的方法直接panic，误触立刻暴露。
type sweepStore struct {
	fleet.RolloutStore

	campaign *fleet.Campaign
	stale    []fleet.UpdateLog
	orphans  []fleet.UpdateLog

	failedLogs  []int64
	deactivated []int64
	finalized   int
}

func (s *sweepStore) ListInProgressCampaigns(ctx context.Context, limit int) ([]fleet.Campaign, error) {
	if s.campaign == nil || s.campaign.Status != fleet.CampaignInProgress {
		return nil, nil
	}
	return []fleet.Campaign{*s.campaign}, nil
}

func (s *sweepStore) GetCampaign(ctx context.Context, id int64) (*fleet.Campaign, error) {
	if s.campaign == nil || s.campaign.ID != id {
		return nil, nil
	}
	c := *s.campaign
	return &c, nil
}

func (s *sweepStore) ListStaleCampaignLogs(ctx context.Context, campaignID int64, cutoff time.Time, limit int) ([]fleet.UpdateLog, error) {
	out := s.stale
	s.stale = nil
	return out, nil
}

func (s *sweepStore) ListStaleOrphanLogs(ctx context.Context, cutoff time.Time, limit int) ([]fleet.UpdateLog, error) {
	out := s.orphans
	s.orphans = nil
	return out, nil
}

func (s *sweepStore) FailLog(ctx context.Context, logID int64, msg string) (bool, error) {
	s.failedLogs = append(s.failedLogs, logID)
	return true, nil
}

func (s *sweepStore) DeactivateTargetFor(ctx context.Context, deviceID, firmwareID int64) (bool, error) {
	s.deactivated = append(s.deactivated, deviceID)
	return true, nil
}

func (s *sweepStore) IncCampaignFailed(ctx context.Context, id int64) error {
	s.campaign.DevicesFailed++
	return nil
}

func (s *sweepStore) FinalizeCampaign(ctx context.Context, id int64) (bool, error) {
	s.finalized++
	if s.campaign.DevicesUpdated+s.campaign.DevicesFailed >= s.campaign.DevicesTotal {
		s.campaign.Status = fleet.CampaignFailed
		return true, nil
	}
	return false, nil
}

func newSweeperFixture(store *sweepStore) *StaleSweeper {
	logger := zap.NewNop()
	engine := fleet.NewEngine(store, nil, nil, 30*time.Minute, logger)
	appm := metrics.NewAppMetrics(metrics.NewRegistry())
	return NewStaleSweeper(engine, store, time.Minute, appm, logger)
}

// TestStaleSweeper_FailsSilentCampaignEntries 静默超时的活动日志被判失败并结清活动
func TestStaleSweeper_FailsSilentCampaignEntries(t *testing.T) {
	store := &sweepStore{
		campaign: &fleet.Campaign{ID: 1, Status: fleet.CampaignInProgress, DevicesTotal: 1},
		stale:    []fleet.UpdateLog{{ID: 7, DeviceID: 3, FirmwareID: 10}},
	}
	s := newSweeperFixture(store)

	s.sweep(context.Background())

	assert.Equal(t, []int64{7}, store.failedLogs)
	assert.Equal(t, []int64{3}, store.deactivated)
	assert.Equal(t, 1, store.campaign.DevicesFailed)
	require.Equal(t, 1, store.finalized)
	assert.Equal(t, int16(fleet.CampaignFailed), store.campaign.Status)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats["rounds"])
	assert.Equal(t, int64(1), stats["entries_failed"])
	assert.Equal(t, int64(1), stats["campaigns_swept"])
}

// TestStaleSweeper_FailsOrphanLogs 无活动归属的在途日志同样被回收
func TestStaleSweeper_FailsOrphanLogs(t *testing.T) {
	store := &sweepStore{
		orphans: []fleet.UpdateLog{{ID: 11, DeviceID: 5, FirmwareID: 20}},
	}
	s := newSweeperFixture(store)

	s.sweep(context.Background())

	assert.Equal(t, []int64{11}, store.failedLogs)
	assert.Equal(t, []int64{5}, store.deactivated)
	assert.Equal(t, 0, store.finalized)
	assert.Equal(t, int64(1), s.Stats()["entries_failed"])
}

// TestStaleSweeper_QuietRound 无超时日志时一轮清扫不产生任何改写
func TestStaleSweeper_QuietRound(t *testing.T) {
	store := &sweepStore{}
	s := newSweeperFixture(store)

	s.sweep(context.Background())
	s.sweep(context.Background())

	assert.Empty(t, store.failedLogs)
	assert.Equal(t, int64(2), s.Stats()["rounds"])
	assert.Equal(t, int64(0), s.Stats()["entries_failed"])
}

// TestNewStaleSweeper_DefaultInterval 非法间隔回退到默认值
func TestNewStaleSweeper_DefaultInterval(t *testing.T) {
	store := &sweepStore{}
	logger := zap.NewNop()
	engine := fleet.NewEngine(store, nil, nil, 0, logger)

	s := NewStaleSweeper(engine, store, 0, nil, logger)
	assert.Equal(t, 5*time.Minute, s.interval)
	assert.Equal(t, (30 * time.Minute).Seconds(), s.Stats()["stale_timeout_sec"])
}
