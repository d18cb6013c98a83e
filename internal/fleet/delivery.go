package fleet

import "context"

// 下载描述符的传输层级
const (
	TierCDN       = "cdn"       // CDN 短链接，无过期
	TierPresigned = "presigned" // 对象存储预签名 URL，有时效
	TierProxy     = "proxy"     // 服务端流式代理，支持 Range
)

// DownloadDescriptor 下发给设备的固件获取方式
type DownloadDescriptor struct {
	URL        string
	Tier       string
	TTLSeconds int
}

// DeliveryResolver 把制品解析为设备可达的下载描述符。
// 实现按层级逐级降级，末级代理层恒可用，正常情况下不返回错误。
type DeliveryResolver interface {
	Resolve(ctx context.Context, artifact *Artifact) (*DownloadDescriptor, error)
}
