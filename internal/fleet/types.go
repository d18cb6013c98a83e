package fleet

import "time"

// Device 设备行（devices 表），包含心跳对账所需的全部字段
type Device struct {
	ID                  int64
	Serial              string
	ConfigID            *int64
	ConfigAckVer        int
	PendingReboot       bool
	PendingHardReset    bool
	PendingRollback     bool
	PendingConfigUpdate bool
	LogsEnabled         bool
	CurrentFwVer        *string
	UptimeSec           *int64
	LastHeartbeat       *time.Time
	ConfigDownloadedAt  *time.Time
	ConfigAckedAt       *time.Time
}

// Configuration 配置档案（configurations 表）。version 单调递增，
// 内容由外部配置系统维护，这里只读。
type Configuration struct {
	ID        int64
	Name      string
	Version   int
	Content   []byte
	UpdatedAt time.Time
}

// Artifact 固件制品（firmware_artifacts 表）
type Artifact struct {
	ID        int64
	Version   string
	SizeBytes int64
	Checksum  string
	ObjectKey string
	IsActive  bool
	CreatedAt time.Time
}

// Target 设备固件指向（device_fw_targets 表）。
// 每设备至多一条 is_active 记录，由引擎在建新时先停用旧记录保证。
type Target struct {
	ID         int64
	DeviceID   int64
	FirmwareID int64
	CampaignID *int64
	IsActive   bool
	IsRollback bool
	CreatedAt  time.Time
}

// UpdateLog 升级日志（update_logs 表），每 (device, firmware) 至多一条
type UpdateLog struct {
	ID             int64
	DeviceID       int64
	FirmwareID     int64
	CampaignID     *int64
	CurrentVersion string
	Status         int16
	Attempts       int
	ErrorMessage   *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastCheckedAt  *time.Time
	CreatedAt      time.Time
}

// Campaign 升级活动（rollout_campaigns 表）。
// 不变式：DevicesUpdated + DevicesFailed <= DevicesTotal，
// 两者之和到达 DevicesTotal 时活动进入终态。
type Campaign struct {
	ID             int64
	TargetMode     int16
	FirmwareID     int64
	SourceVersion  *string
	Status         int16
	DevicesTotal   int
	DevicesUpdated int
	DevicesFailed  int
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// DeviceRef 目标解析时使用的设备摘要
type DeviceRef struct {
	ID     int64
	Serial string
}
