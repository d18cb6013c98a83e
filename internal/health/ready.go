package health

import "sync/atomic"

// Readiness 就绪状态聚合（数据库、对象存储）
type Readiness struct {
	dbReady    atomic.Bool
	storeReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetDBReady(v bool)    { r.dbReady.Store(v) }
func (r *Readiness) SetStoreReady(v bool) { r.storeReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.dbReady.Load() && r.storeReady.Load()
}
