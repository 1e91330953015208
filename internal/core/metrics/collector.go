package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PeerStats 单个系统的计数器快照
type PeerStats struct {
	Peer     string
	Name     string
	Received Snapshot
	ToSend   Snapshot
	Sent     Snapshot
}

// Source 提供当前所有系统的统计
type Source interface {
	PeerStats() []PeerStats
}

// SourceFunc 函数适配器
type SourceFunc func() []PeerStats

// PeerStats 实现 Source
func (f SourceFunc) PeerStats() []PeerStats { return f() }

// Collector 将频率计数器与投递结果导出到 Prometheus
type Collector struct {
	src    Source
	global *Counters

	rate  *prometheus.Desc
	total *prometheus.Desc

	outcomes *prometheus.CounterVec
	dropped  *prometheus.CounterVec
}

// NewCollector 创建采集器；global 为全局待发/已发计数器
func NewCollector(src Source, global *Counters) *Collector {
	labels := []string{"peer", "name", "direction"}
	return &Collector{
		src:    src,
		global: global,
		rate: prometheus.NewDesc("imcmsg_message_rate",
			"指数衰减的每秒消息数", labels, nil),
		total: prometheus.NewDesc("imcmsg_messages_total",
			"累计消息数", labels, nil),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imcmsg_delivery_outcomes_total",
			Help: "按结果统计的发送次数",
		}, []string{"outcome", "transport"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imcmsg_inbound_dropped_total",
			Help: "入站丢弃的帧数",
		}, []string{"reason"}),
	}
}

// ObserveOutcome 记录一次投递结果
func (c *Collector) ObserveOutcome(outcome, transport string) {
	c.outcomes.WithLabelValues(outcome, transport).Inc()
}

// ObserveDrop 记录一次入站丢弃
func (c *Collector) ObserveDrop(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rate
	ch <- c.total
	c.outcomes.Describe(ch)
	c.dropped.Describe(ch)
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	emit := func(peer, name, dir string, s Snapshot) {
		ch <- prometheus.MustNewConstMetric(c.rate, prometheus.GaugeValue, s.Rate, peer, name, dir)
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(s.Total), peer, name, dir)
	}

	if c.global != nil {
		emit("*", "", "to_send", c.global.ToSend.Snapshot())
		emit("*", "", "sent", c.global.Sent.Snapshot())
	}
	if c.src != nil {
		for _, p := range c.src.PeerStats() {
			emit(p.Peer, p.Name, "received", p.Received)
			emit(p.Peer, p.Name, "to_send", p.ToSend)
			emit(p.Peer, p.Name, "sent", p.Sent)
		}
	}

	c.outcomes.Collect(ch)
	c.dropped.Collect(ch)
}
