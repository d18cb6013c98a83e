package fleet

// 配置刷新判定原因
const (
	RefreshNone     = "none"     // 无需刷新
	RefreshIdentity = "identity" // 设备上报的配置与服务端指派不一致
	RefreshFlag     = "flag"     // pending_config_update 显式标记
	RefreshVersion  = "version"  // 版本号兜底：ack 版本落后于当前版本
	RefreshDeassign = "deassign" // 服务端已取消指派但设备仍持有配置
)

// DecideConfigRefresh 三层配置漂移判定，按序短路。
// reportedID 为设备上报的配置 ID（0 表示未持有配置）；
// assignedID 为服务端指派（nil 表示未指派）；
// cfgVersion 为指派配置的当前版本（指派存在但查不到配置时传 0，跳过兜底层）。
func DecideConfigRefresh(reportedID int64, assignedID *int64, pendingFlag bool, ackVer, cfgVersion int) (bool, string) {
	if assignedID == nil {
		if reportedID != 0 {
			return true, RefreshDeassign
		}
		return false, RefreshNone
	}
	if reportedID != *assignedID {
		return true, RefreshIdentity
	}
	if pendingFlag {
		return true, RefreshFlag
	}
	if cfgVersion > 0 && ackVer != cfgVersion {
		return true, RefreshVersion
	}
	return false, RefreshNone
}

// DecideFirmwareSignal 心跳固件指令三态判定。回滚标记优先；
// 普通升级仅在存在非回滚的活跃指向时下发，避免回滚后残留指向再次触发升级。
func DecideFirmwareSignal(rollbackSurfaced bool, target *Target) int {
	if rollbackSurfaced {
		return FirmwareRollback
	}
	if target != nil && target.IsActive && !target.IsRollback {
		return FirmwareUpdate
	}
	return FirmwareNone
}

// SettledStatus 按计数推导活动终态；未结清返回 (0, false)。
// 只要存在失败设备，终态即为 FAILED。
func SettledStatus(updated, failed, total int) (int16, bool) {
	if total <= 0 || updated+failed < total {
		return 0, false
	}
	if failed > 0 {
		return CampaignFailed, true
	}
	return CampaignCompleted, true
}
