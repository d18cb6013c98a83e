package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/fleet-server/internal/fleet"
	"github.com/taoyao-code/fleet-server/internal/objstore"
)

// Config 分层下载解析配置
type Config struct {
	// CDN 基础域名，空表示 CDN 层不可用
	CDNBaseURL string
	// 预签名层开关与时效
	PresignEnabled bool
	PresignTTL     time.Duration
	// 代理端点：PublicBaseURL + ProxyBasePath + /{version}
	PublicBaseURL string
	ProxyBasePath string
}

// tierFunc 单个下发层：ok=false 表示该层不适用，轮到下一层
type tierFunc func(ctx context.Context, artifact *fleet.Artifact) (*fleet.DownloadDescriptor, bool, error)

type tierEntry struct {
	name string
	fn   tierFunc
}

// Resolver 分层下载解析器：CDN 短链 → 预签名 URL → 流式代理。
// 前两层不可用或出错时逐级降级，末级代理层恒可用。
type Resolver struct {
	tiers    []tierEntry
	observer Observer
	log      *zap.Logger
}

// ResolverOption 解析器可选项
type ResolverOption func(*Resolver)

// WithResolverObserver 注入层级命中/失败的观测回调
func WithResolverObserver(observer Observer) ResolverOption {
	return func(r *Resolver) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// NewResolver 创建分层解析器。store 仅预签名层使用，可为 nil。
func NewResolver(cfg Config, store objstore.Store, log *zap.Logger, opts ...ResolverOption) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ProxyBasePath == "" {
		cfg.ProxyBasePath = "/api/v1/device/ota/download"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}

	r := &Resolver{observer: NopObserver(), log: log}
	r.tiers = []tierEntry{
		{name: fleet.TierCDN, fn: cdnTier(cfg)},
		{name: fleet.TierPresigned, fn: presignTier(cfg, store)},
		{name: fleet.TierProxy, fn: proxyTier(cfg)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 依序尝试各层，返回第一个可用的下载描述符。
// 层级出错只记录并降级，全部落空才返回 Transient 错误。
func (r *Resolver) Resolve(ctx context.Context, artifact *fleet.Artifact) (*fleet.DownloadDescriptor, error) {
	for _, tier := range r.tiers {
		desc, ok, err := tier.fn(ctx, artifact)
		if err != nil {
			r.observer.Record("resolve_"+tier.name, "error")
			r.log.Warn("delivery tier failed, falling through",
				zap.String("tier", tier.name),
				zap.String("firmware", artifact.Version),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		r.observer.Record("resolve_"+tier.name, "ok")
		return desc, nil
	}
	return nil, fmt.Errorf("no delivery tier available for %s: %w", artifact.Version, fleet.ErrTransient)
}

// cdnTier CDN 短链：配置了基础域名即可用，无过期
func cdnTier(cfg Config) tierFunc {
	base := strings.TrimRight(cfg.CDNBaseURL, "/")
	return func(ctx context.Context, artifact *fleet.Artifact) (*fleet.DownloadDescriptor, bool, error) {
		if base == "" {
			return nil, false, nil
		}
		return &fleet.DownloadDescriptor{
			URL:  base + "/" + strings.TrimLeft(artifact.ObjectKey, "/"),
			Tier: fleet.TierCDN,
		}, true, nil
	}
}

// presignTier 对象存储预签名：显式开启且后端支持时可用
func presignTier(cfg Config, store objstore.Store) tierFunc {
	return func(ctx context.Context, artifact *fleet.Artifact) (*fleet.DownloadDescriptor, bool, error) {
		if !cfg.PresignEnabled || store == nil {
			return nil, false, nil
		}
		u, err := store.PresignedURL(ctx, artifact.ObjectKey, cfg.PresignTTL)
		if err != nil {
			if errors.Is(err, objstore.ErrPresignUnsupported) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return &fleet.DownloadDescriptor{
			URL:        u,
			Tier:       fleet.TierPresigned,
			TTLSeconds: int(cfg.PresignTTL.Seconds()),
		}, true, nil
	}
}

// proxyTier 服务端流式代理：恒可用的末级兜底
func proxyTier(cfg Config) tierFunc {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	path := "/" + strings.Trim(cfg.ProxyBasePath, "/")
	return func(ctx context.Context, artifact *fleet.Artifact) (*fleet.DownloadDescriptor, bool, error) {
		return &fleet.DownloadDescriptor{
			URL:  base + path + "/" + artifact.Version,
			Tier: fleet.TierProxy,
		}, true, nil
	}
}
