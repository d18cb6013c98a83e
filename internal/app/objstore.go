package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/fleet-server/internal/config"
	"github.com/taoyao-code/fleet-server/internal/objstore"
)

// NewObjectStore 创建固件对象存储后端
func NewObjectStore(cfg cfgpkg.ObjstoreConfig, logger *zap.Logger) (objstore.Store, error) {
	store, err := objstore.New(objstore.Config{
		Backend:   cfg.Backend,
		Bucket:    cfg.Bucket,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Region:    cfg.Region,
		FSRoot:    cfg.FSRoot,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("object store initialized",
		zap.String("backend", cfg.Backend),
		zap.String("bucket", cfg.Bucket))
	return store, nil
}
