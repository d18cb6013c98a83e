package storage

import (
	"context"

	"github.com/taoyao-code/fleet-server/internal/storage/models"
)

// DeviceCommandFlags 管理面对设备命令标记的部分更新，nil 字段保持原值。
type DeviceCommandFlags struct {
	Reboot        *bool
	HardReset     *bool
	Rollback      *bool
	ConfigRefresh *bool
	LogsEnabled   *bool
}

// CoreRepo 面向管理面的存储抽象。
// 约束：
// - 管理路径禁止直接写 SQL，统一通过本接口访问
// - 实现需要提供事务封装 WithTx，保证配置扇出等多步写入原子性
// - 接口必须保持 DB-agnostic（面向模型与基础类型）
type CoreRepo interface {
	// ---------- 事务 ----------
	// WithTx 在单个事务中执行 fn，fn 内使用 repo 执行的所有写入/读取都在同一事务中。
	// 实现应保证嵌套调用正确复用当前事务。
	WithTx(ctx context.Context, fn func(repo CoreRepo) error) error

	// ---------- 设备 ----------
	// GetDeviceBySerial 通过序列号查询设备
	GetDeviceBySerial(ctx context.Context, serial string) (*models.Device, error)
	// SetDeviceCommandFlags 按需改写设备命令标记（强制重启/回滚/配置刷新/日志开关）
	SetDeviceCommandFlags(ctx context.Context, deviceID int64, flags DeviceCommandFlags) error
	// AssignDeviceConfig 指派或清除设备配置档案（configID 为 nil 表示清除）；
	// 新指派同时置位 pending_config_update，让设备尽快拉取
	AssignDeviceConfig(ctx context.Context, deviceID int64, configID *int64) error

	// ---------- 配置档案 ----------
	// CreateConfiguration 新建配置档案，初始版本为 1
	CreateConfiguration(ctx context.Context, name string, content []byte) (*models.Configuration, error)
	// GetConfiguration 通过 ID 查询配置档案
	GetConfiguration(ctx context.Context, id int64) (*models.Configuration, error)
	// BumpConfigurationVersion 版本 +1，content 非空时同时替换内容
	BumpConfigurationVersion(ctx context.Context, id int64, content []byte) (*models.Configuration, error)
	// FlagDevicesForConfig 为所有指派该档案的设备置位 pending_config_update，
	// 返回受影响的设备数。与 BumpConfigurationVersion 配合在 WithTx 内调用。
	FlagDevicesForConfig(ctx context.Context, configID int64) (int64, error)

	// ---------- 固件制品 ----------
	// RegisterFirmware 登记固件制品；版本已存在时更新元数据并返回现有行
	RegisterFirmware(ctx context.Context, fw *models.FirmwareArtifact) (*models.FirmwareArtifact, error)
	// GetFirmwareByVersion 通过版本号查询制品
	GetFirmwareByVersion(ctx context.Context, version string) (*models.FirmwareArtifact, error)
	// SetFirmwareActive 切换制品的全局默认升级目标标记
	SetFirmwareActive(ctx context.Context, version string, active bool) (*models.FirmwareArtifact, error)
}
