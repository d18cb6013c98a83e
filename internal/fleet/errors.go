package fleet

import (
	"errors"
	"fmt"
)

// 领域错误分类。API 层通过 errors.Is 映射 HTTP 状态码，
// 服务层只负责用 %w 包装并附加上下文。
var (
	// ErrNotFound 设备/固件/活动不存在
	ErrNotFound = errors.New("not found")
	// ErrInvalidState 状态机不允许的操作（如取消已终结的活动）
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict 请求与当前数据冲突
	ErrConflict = errors.New("conflict")
	// ErrTransient 依赖暂时不可用（对象存储/CDN），调用方可降级或重试
	ErrTransient = errors.New("transient failure")
)

// ErrNoDevicesMatched 目标解析结果为空（区别于单个对象不存在的 NotFound）
var ErrNoDevicesMatched = fmt.Errorf("no devices matched: %w", ErrConflict)
