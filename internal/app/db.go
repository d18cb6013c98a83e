package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	cfgpkg "github.com/taoyao-code/fleet-server/internal/config"
	"github.com/taoyao-code/fleet-server/internal/migrate"
	"github.com/taoyao-code/fleet-server/internal/storage"
	"github.com/taoyao-code/fleet-server/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/fleet-server/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并按需执行迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg.DSN, cfg.MaxConns, cfg.MinConns, cfg.MaxLifetime, log)
	if err != nil {
		if log != nil {
			log.Error("db connect error", zap.Error(err))
		}
		return nil, err
	}
	if cfg.Migrate {
		if err = (migrate.Runner{Dir: cfg.MigrationsDir}).Up(ctx, dbpool); err != nil {
			if log != nil {
				log.Error("db migrate error", zap.Error(err))
			}
			return dbpool, err
		}
		if log != nil {
			log.Info("db migrations applied", zap.String("dir", cfg.MigrationsDir))
		}
	}
	return dbpool, nil
}

// OpenCoreRepo 在同一个 DSN 上打开 GORM 连接，承载管理面 CRUD。
// 心跳与升级热路径走 pgx（见 storage/pg），两者共用同一套表结构。
func OpenCoreRepo(cfg cfgpkg.DatabaseConfig, log *zap.Logger) (storage.CoreRepo, error) {
	db, err := gorm.Open(gormpostgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		if log != nil {
			log.Error("gorm open error", zap.Error(err))
		}
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	return gormrepo.New(db), nil
}
