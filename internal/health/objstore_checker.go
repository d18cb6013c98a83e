package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/fleet-server/internal/objstore"
)

// ObjstoreChecker 固件对象存储健康检查器
type ObjstoreChecker struct {
	store   objstore.Store
	backend string
}

// NewObjstoreChecker 创建对象存储健康检查器
func NewObjstoreChecker(store objstore.Store, backend string) *ObjstoreChecker {
	return &ObjstoreChecker{store: store, backend: backend}
}

// Name 返回检查器名称
func (c *ObjstoreChecker) Name() string {
	return "objstore"
}

// Check 执行健康检查
func (c *ObjstoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.store.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("probe failed: %v", err),
			Details: map[string]interface{}{"backend": c.backend},
			Latency: time.Since(start),
		}
	}

	// 探测本身成功但响应过慢时降级（固件下发走这条路径）
	latency := time.Since(start)
	status := StatusHealthy
	message := "ok"
	if latency > 2*time.Second {
		status = StatusDegraded
		message = "slow object store probe"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{"backend": c.backend},
		Latency: latency,
	}
}
