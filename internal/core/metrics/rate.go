package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// FrequencyCounter - 频率计数器
// ============================================================================

// FrequencyCounter 指数衰减的事件频率
type FrequencyCounter struct {
	mu    sync.Mutex
	clk   clock.Clock
	tau   float64 // 秒
	rate  float64
	last  time.Time
	total uint64
}

// NewFrequencyCounter 创建计数器，window 为衰减时间常数
func NewFrequencyCounter(window time.Duration, clk clock.Clock) *FrequencyCounter {
	if clk == nil {
		clk = clock.New()
	}
	if window <= 0 {
		window = 5 * time.Second
	}
	return &FrequencyCounter{clk: clk, tau: window.Seconds()}
}

// MarkNow 记录一次事件
func (f *FrequencyCounter) MarkNow() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clk.Now()
	f.rate = f.decayed(now) + 1/f.tau
	f.last = now
	f.total++
}

// Rate 当前估计的每秒事件数
func (f *FrequencyCounter) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decayed(f.clk.Now())
}

// LastMark 最近一次事件时间，从未记录时为零值
func (f *FrequencyCounter) LastMark() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Total 累计事件数
func (f *FrequencyCounter) Total() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Snapshot 一次性读取全部字段
func (f *FrequencyCounter) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{Rate: f.decayed(f.clk.Now()), Total: f.total, Last: f.last}
}

func (f *FrequencyCounter) decayed(now time.Time) float64 {
	if f.last.IsZero() {
		return 0
	}
	dt := now.Sub(f.last).Seconds()
	if dt <= 0 {
		return f.rate
	}
	return f.rate * math.Exp(-dt/f.tau)
}

// Snapshot 计数器快照
type Snapshot struct {
	Rate  float64
	Total uint64
	Last  time.Time
}

// ============================================================================
// Counters - 一组方向计数器
// ============================================================================

// Counters 收到 / 待发 / 已发
type Counters struct {
	Received *FrequencyCounter
	ToSend   *FrequencyCounter
	Sent     *FrequencyCounter
}

// NewCounters 创建一组计数器
func NewCounters(window time.Duration, clk clock.Clock) *Counters {
	return &Counters{
		Received: NewFrequencyCounter(window, clk),
		ToSend:   NewFrequencyCounter(window, clk),
		Sent:     NewFrequencyCounter(window, clk),
	}
}
