package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	HeartbeatTotal     prometheus.Counter     // 心跳计数
	CommandTotal       *prometheus.CounterVec // labels: command=reboot|hard_reset|rollback|fw_update
	ConfigRefreshTotal *prometheus.CounterVec // labels: reason=identity|flag|version|deassign
	OTACheckTotal      *prometheus.CounterVec // labels: result=update|up_to_date|none
	DeliveryEventTotal *prometheus.CounterVec // labels: operation, status（层级解析与在途流事件）
	ProxyBytesTotal    prometheus.Counter     // 代理层下发字节数
	ProxyStreamsGauge  prometheus.Gauge       // 当前在途代理下载流
	CampaignsGauge     prometheus.Gauge       // 进行中的升级活动数
	SweepFailedTotal   prometheus.Counter     // 清扫判失败的设备计数
	OnlineGauge        prometheus.Gauge       // 当前在线设备数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		HeartbeatTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_heartbeat_total",
			Help: "Total device heartbeats observed.",
		}),
		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_command_surfaced_total",
			Help: "Commands surfaced to devices by kind.",
		}, []string{"command"}),
		ConfigRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_config_refresh_total",
			Help: "Config refresh signals by drift reason.",
		}, []string{"reason"}),
		OTACheckTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ota_check_total",
			Help: "OTA update checks by outcome.",
		}, []string{"result"}),
		DeliveryEventTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ota_delivery_event_total",
			Help: "Firmware delivery resolver and stream tracker events.",
		}, []string{"operation", "status"}),
		ProxyBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ota_proxy_bytes_total",
			Help: "Total bytes streamed through the firmware proxy.",
		}),
		ProxyStreamsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ota_proxy_active_streams",
			Help: "Currently active firmware proxy streams.",
		}),
		CampaignsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campaign_in_progress",
			Help: "Rollout campaigns currently in progress.",
		}),
		SweepFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweep_marked_failed_total",
			Help: "Devices marked failed by the stale sweeper.",
		}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_online_count",
			Help: "Current number of online devices.",
		}),
	}
	reg.MustRegister(
		m.HeartbeatTotal, m.CommandTotal, m.ConfigRefreshTotal, m.OTACheckTotal,
		m.DeliveryEventTotal, m.ProxyBytesTotal, m.ProxyStreamsGauge,
		m.CampaignsGauge, m.SweepFailedTotal, m.OnlineGauge,
	)
	return m
}
