package fleet

// 升级日志状态（update_logs.status）
const (
	UpdatePending     = 0 // 已排队，等待设备首次检查
	UpdateChecking    = 1 // 设备已检查，尚未下发地址
	UpdateAvailable   = 2 // 已下发下载地址
	UpdateDownloading = 3 // 设备正在下载
	UpdateCompleted   = 4 // 升级成功
	UpdateFailed      = 5 // 升级失败
	UpdateSkipped     = 6 // 首次检查时已是目标版本，按成功结算
)

// 活动状态（rollout_campaigns.status）
const (
	CampaignPending    = 0 // 创建中，目标尚未全部下发
	CampaignInProgress = 1 // 进行中
	CampaignCompleted  = 2 // 全部成功
	CampaignFailed     = 3 // 已结清且存在失败设备
	CampaignCancelled  = 4 // 已取消
)

// 活动目标方式（rollout_campaigns.target_mode）
const (
	TargetSingle   = 0 // 单设备
	TargetMultiple = 1 // 设备序列号列表
	TargetVersion  = 2 // 按当前上报固件版本圈选
)

// 心跳固件指令（三态，回滚优先）
const (
	FirmwareNone     = 0 // 无动作
	FirmwareUpdate   = 1 // 有可用升级
	FirmwareRollback = 2 // 要求回滚
)

var updateStatusText = map[int16]string{
	UpdatePending:     "pending",
	UpdateChecking:    "checking",
	UpdateAvailable:   "available",
	UpdateDownloading: "downloading",
	UpdateCompleted:   "completed",
	UpdateFailed:      "failed",
	UpdateSkipped:     "skipped",
}

var campaignStatusText = map[int16]string{
	CampaignPending:    "pending",
	CampaignInProgress: "in_progress",
	CampaignCompleted:  "completed",
	CampaignFailed:     "failed",
	CampaignCancelled:  "cancelled",
}

var targetModeText = map[int16]string{
	TargetSingle:   "single",
	TargetMultiple: "multiple",
	TargetVersion:  "version",
}

// UpdateStatusText 返回升级日志状态的对外文本
func UpdateStatusText(s int16) string {
	if t, ok := updateStatusText[s]; ok {
		return t
	}
	return "unknown"
}

// CampaignStatusText 返回活动状态的对外文本
func CampaignStatusText(s int16) string {
	if t, ok := campaignStatusText[s]; ok {
		return t
	}
	return "unknown"
}

// TargetModeText 返回目标方式的对外文本
func TargetModeText(m int16) string {
	if t, ok := targetModeText[m]; ok {
		return t
	}
	return "unknown"
}

// ParseTargetMode 解析请求里的目标方式文本
func ParseTargetMode(s string) (int16, bool) {
	switch s {
	case "single":
		return TargetSingle, true
	case "multiple":
		return TargetMultiple, true
	case "version":
		return TargetVersion, true
	}
	return 0, false
}

// UpdateInFlight 判断升级日志是否处于在途状态（超时清扫的候选范围）
func UpdateInFlight(s int16) bool {
	return s == UpdateChecking || s == UpdateAvailable || s == UpdateDownloading
}

// UpdateTerminal 判断升级日志是否已终结
func UpdateTerminal(s int16) bool {
	return s == UpdateCompleted || s == UpdateFailed || s == UpdateSkipped
}

// CampaignTerminal 判断活动是否已终结（不可取消、不可再结算）
func CampaignTerminal(s int16) bool {
	return s == CampaignCompleted || s == CampaignFailed || s == CampaignCancelled
}
