package gormrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/fleet-server/internal/storage"
	"github.com/taoyao-code/fleet-server/internal/storage/models"
)

// Repository 基于 GORM 的 CoreRepo 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的 CoreRepo 实例。
func New(db *gorm.DB) storage.CoreRepo {
	return &Repository{db: db}
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.CoreRepo) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// GetDeviceBySerial 通过序列号查询设备。
func (r *Repository) GetDeviceBySerial(ctx context.Context, serial string) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("serial = ?", serial).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &device, err
}

// SetDeviceCommandFlags 按需改写设备命令标记，nil 字段保持原值。
func (r *Repository) SetDeviceCommandFlags(ctx context.Context, deviceID int64, flags storage.DeviceCommandFlags) error {
	updates := map[string]interface{}{
		"updated_at": gorm.Expr("NOW()"),
	}
	if flags.Reboot != nil {
		updates["pending_reboot"] = *flags.Reboot
	}
	if flags.HardReset != nil {
		updates["pending_hard_reset"] = *flags.HardReset
	}
	if flags.Rollback != nil {
		updates["pending_rollback"] = *flags.Rollback
	}
	if flags.ConfigRefresh != nil {
		updates["pending_config_update"] = *flags.ConfigRefresh
	}
	if flags.LogsEnabled != nil {
		updates["logs_enabled"] = *flags.LogsEnabled
	}

	res := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", deviceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AssignDeviceConfig 指派或清除设备配置档案。
func (r *Repository) AssignDeviceConfig(ctx context.Context, deviceID int64, configID *int64) error {
	updates := map[string]interface{}{
		"config_id":  configID,
		"updated_at": gorm.Expr("NOW()"),
	}
	// 新指派立即提示设备拉取；清除指派交由心跳身份对账收敛
	if configID != nil {
		updates["pending_config_update"] = true
	}

	res := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", deviceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateConfiguration 新建配置档案，初始版本为 1。
func (r *Repository) CreateConfiguration(ctx context.Context, name string, content []byte) (*models.Configuration, error) {
	record := &models.Configuration{
		Name:    name,
		Version: 1,
		Content: content,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// GetConfiguration 通过 ID 查询配置档案。
func (r *Repository) GetConfiguration(ctx context.Context, id int64) (*models.Configuration, error) {
	var cfg models.Configuration
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &cfg, err
}

// BumpConfigurationVersion 版本 +1，content 非空时同时替换内容。
func (r *Repository) BumpConfigurationVersion(ctx context.Context, id int64, content []byte) (*models.Configuration, error) {
	updates := map[string]interface{}{
		"version":    gorm.Expr("version + 1"),
		"updated_at": gorm.Expr("NOW()"),
	}
	if content != nil {
		updates["content"] = content
	}

	res := r.db.WithContext(ctx).
		Model(&models.Configuration{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetConfiguration(ctx, id)
}

// FlagDevicesForConfig 为指派该档案的设备置位 pending_config_update。
func (r *Repository) FlagDevicesForConfig(ctx context.Context, configID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("config_id = ?", configID).
		Updates(map[string]interface{}{
			"pending_config_update": true,
			"updated_at":            gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// RegisterFirmware 登记固件制品；同版本重复登记时仅更新元数据。
func (r *Repository) RegisterFirmware(ctx context.Context, fw *models.FirmwareArtifact) (*models.FirmwareArtifact, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "version"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"size_bytes": gorm.Expr("excluded.size_bytes"),
				"checksum":   gorm.Expr("excluded.checksum"),
				"object_key": gorm.Expr("excluded.object_key"),
				"is_active":  gorm.Expr("excluded.is_active"),
				"updated_at": gorm.Expr("NOW()"),
			}),
		}).
		Create(fw).Error
	if err != nil {
		return nil, err
	}
	return r.GetFirmwareByVersion(ctx, fw.Version)
}

// GetFirmwareByVersion 通过版本号查询制品。
func (r *Repository) GetFirmwareByVersion(ctx context.Context, version string) (*models.FirmwareArtifact, error) {
	var fw models.FirmwareArtifact
	err := r.db.WithContext(ctx).Where("version = ?", version).First(&fw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &fw, err
}

// SetFirmwareActive 切换制品的全局默认升级目标标记。
func (r *Repository) SetFirmwareActive(ctx context.Context, version string, active bool) (*models.FirmwareArtifact, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FirmwareArtifact{}).
		Where("version = ?", version).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetFirmwareByVersion(ctx, version)
}
