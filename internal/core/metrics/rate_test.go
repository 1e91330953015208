package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-imcmsg/config"
)

// TestFrequencyCounter_SteadyState 测试稳态速率
func TestFrequencyCounter_SteadyState(t *testing.T) {
	clk := clock.NewMock()
	f := NewFrequencyCounter(5*time.Second, clk)

	assert.Zero(t, f.Rate())
	assert.True(t, f.LastMark().IsZero())

	// 每 100ms 一次，持续 60s
	for i := 0; i < 600; i++ {
		clk.Add(100 * time.Millisecond)
		f.MarkNow()
	}

	assert.InDelta(t, 10.0, f.Rate(), 0.6)
	assert.Equal(t, uint64(600), f.Total())
	assert.Equal(t, clk.Now(), f.LastMark())

	t.Log("✅ 稳态速率测试通过")
}

// TestFrequencyCounter_Decay 测试衰减
func TestFrequencyCounter_Decay(t *testing.T) {
	clk := clock.NewMock()
	f := NewFrequencyCounter(time.Second, clk)

	f.MarkNow()
	assert.InDelta(t, 1.0, f.Rate(), 1e-9)

	clk.Add(time.Second)
	assert.InDelta(t, 0.3679, f.Rate(), 1e-3)

	clk.Add(30 * time.Second)
	assert.Less(t, f.Rate(), 1e-9)

	s := f.Snapshot()
	assert.Equal(t, uint64(1), s.Total)
}

// TestCollector 测试 Prometheus 导出
func TestCollector(t *testing.T) {
	clk := clock.NewMock()
	global := NewCounters(time.Second, clk)
	global.ToSend.MarkNow()
	global.ToSend.MarkNow()
	global.Sent.MarkNow()

	peer := NewCounters(time.Second, clk)
	peer.Received.MarkNow()

	c := NewCollector(SourceFunc(func() []PeerStats {
		return []PeerStats{{
			Peer:     "0x4D15",
			Name:     "xplore",
			Received: peer.Received.Snapshot(),
			ToSend:   peer.ToSend.Snapshot(),
			Sent:     peer.Sent.Snapshot(),
		}}
	}), global)
	c.ObserveOutcome("success", "udp")
	c.ObserveDrop("queue_full")

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP imcmsg_messages_total 累计消息数
# TYPE imcmsg_messages_total counter
imcmsg_messages_total{direction="received",name="xplore",peer="0x4D15"} 1
imcmsg_messages_total{direction="sent",name="",peer="*"} 1
imcmsg_messages_total{direction="sent",name="xplore",peer="0x4D15"} 0
imcmsg_messages_total{direction="to_send",name="",peer="*"} 2
imcmsg_messages_total{direction="to_send",name="xplore",peer="0x4D15"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "imcmsg_messages_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("success", "udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues("queue_full")))
}

// TestModule 测试 Fx 模块
func TestModule(t *testing.T) {
	var global *Counters
	var reg *prometheus.Registry

	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		Module(),
		fx.Populate(&global, &reg),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, global)
	require.NotNil(t, reg)
	global.Sent.MarkNow()
	assert.Equal(t, uint64(1), global.Sent.Total())
}
