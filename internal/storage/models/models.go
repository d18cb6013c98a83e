package models

import (
	"time"
)

// 注意：
// - 保持与 migrations/*.sql 完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Configuration 映射 configurations 表（设备配置档案，version 单调递增）
type Configuration struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 档案名，全局唯一
	Name string `gorm:"column:name;type:text;not null;uniqueIndex"`
	// 每次内容变更 +1，设备按此判定配置是否过期
	Version int32 `gorm:"column:version;not null;default:1"`
	// JSON 配置体，原样下发给设备
	Content   []byte    `gorm:"column:content;type:jsonb;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Configuration) TableName() string { return "configurations" }

// Device 映射 devices 表
type Device struct {
	// 主键
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 设备序列号，全局唯一
	Serial string `gorm:"column:serial;type:text;not null;uniqueIndex"`
	// 指派的配置档案，可空（未指派）
	ConfigID *int64 `gorm:"column:config_id"`
	// 设备最近确认到的配置版本
	ConfigAckVer int32 `gorm:"column:config_ack_ver;not null;default:0"`
	// 单次命令标记：下发一次即清除
	PendingReboot    bool `gorm:"column:pending_reboot;not null;default:false"`
	PendingHardReset bool `gorm:"column:pending_hard_reset;not null;default:false"`
	PendingRollback  bool `gorm:"column:pending_rollback;not null;default:false"`
	// 配置更新提示（下载或确认后清除）
	PendingConfigUpdate bool `gorm:"column:pending_config_update;not null;default:false"`
	// 日志开关，持久状态（非单次命令）
	LogsEnabled bool `gorm:"column:logs_enabled;not null;default:false"`
	// 设备自报固件版本，可空
	CurrentFwVer *string `gorm:"column:current_fw_ver;type:text"`
	// 自报运行秒数，可空
	UptimeSec *int64 `gorm:"column:uptime_sec"`
	// 最近一次心跳
	LastHeartbeatAt *time.Time `gorm:"column:last_heartbeat_at"`
	// 配置下载/确认时间
	ConfigDownloadedAt *time.Time `gorm:"column:config_downloaded_at"`
	ConfigAckedAt      *time.Time `gorm:"column:config_acked_at"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Device) TableName() string { return "devices" }

// FirmwareArtifact 映射 firmware_artifacts 表（固件制品登记）
type FirmwareArtifact struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 固件版本号，全局唯一
	Version string `gorm:"column:version;type:text;not null;uniqueIndex"`
	// 制品大小与校验和（登记时由对象存储侧探得）
	SizeBytes int64  `gorm:"column:size_bytes;not null;default:0"`
	Checksum  string `gorm:"column:checksum;type:text;not null;default:''"`
	// 对象存储内的键
	ObjectKey string `gorm:"column:object_key;type:text;not null"`
	// 是否作为全局默认升级目标
	IsActive  bool      `gorm:"column:is_active;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FirmwareArtifact) TableName() string { return "firmware_artifacts" }

// RolloutCampaign 映射 rollout_campaigns 表（批量升级活动）
type RolloutCampaign struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 目标选择方式：0=单台 1=多台 2=按版本
	TargetMode int16 `gorm:"column:target_mode;not null"`
	// 目标固件
	FirmwareID int64 `gorm:"column:firmware_id;not null"`
	// target_mode=2 时的来源版本，可空
	SourceVersion *string `gorm:"column:source_version;type:text"`
	// 0=pending 1=in_progress 2=completed 3=failed 4=cancelled
	Status int16 `gorm:"column:status;not null;default:0"`
	// 计数器：updated + failed <= total
	DevicesTotal   int32      `gorm:"column:devices_total;not null;default:0"`
	DevicesUpdated int32      `gorm:"column:devices_updated;not null;default:0"`
	DevicesFailed  int32      `gorm:"column:devices_failed;not null;default:0"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
}

func (RolloutCampaign) TableName() string { return "rollout_campaigns" }

// DeviceFwTarget 映射 device_fw_targets 表（设备固件指向）
type DeviceFwTarget struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID   int64 `gorm:"column:device_id;not null;index:idx_fw_targets_device_active,priority:1"`
	FirmwareID int64 `gorm:"column:firmware_id;not null"`
	// 所属活动，回滚指向时为空
	CampaignID *int64 `gorm:"column:campaign_id"`
	// 每设备至多一条活跃记录，由引擎在建新指向前停用旧记录保证
	IsActive bool `gorm:"column:is_active;not null;default:true;index:idx_fw_targets_device_active,priority:2"`
	// 回滚指向优先于普通升级指向
	IsRollback bool      `gorm:"column:is_rollback;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (DeviceFwTarget) TableName() string { return "device_fw_targets" }

// UpdateLog 映射 update_logs 表（设备升级历史，(device_id, firmware_id) 唯一）
type UpdateLog struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID   int64 `gorm:"column:device_id;not null;uniqueIndex:uq_update_logs_device_fw,priority:1"`
	FirmwareID int64 `gorm:"column:firmware_id;not null;uniqueIndex:uq_update_logs_device_fw,priority:2"`
	// 所属活动，全局默认升级产生的记录为空
	CampaignID *int64 `gorm:"column:campaign_id"`
	// 设备检查升级时自报的版本
	CurrentVersion string `gorm:"column:current_version;type:text;not null;default:''"`
	// 0=pending 1=checking 2=available 3=downloading 4=completed 5=failed 6=skipped
	Status int16 `gorm:"column:status;not null;default:0;index:idx_update_logs_sweep,priority:1"`
	// 设备发起检查的累计次数
	Attempts int32 `gorm:"column:attempts;not null;default:0"`
	// 失败原因，仅失败态有值
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
	StartedAt    *time.Time `gorm:"column:started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	// 超时清扫依据的活跃时间戳
	LastCheckedAt *time.Time `gorm:"column:last_checked_at;index:idx_update_logs_sweep,priority:2"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (UpdateLog) TableName() string { return "update_logs" }
