package delivery

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/delivery")

// Result 投递结果
type Result struct {
	Message   *types.Message
	Target    types.PeerID
	Transport types.TransportKind
	Outcome   types.Outcome
	Err       error
}

// Listener 结果回调
type Listener func(r Result)

// Observer 每个终态结果都会通知，用于统计
type Observer func(r Result)

// Tracker 在途投递表
type Tracker struct {
	clk clock.Clock

	mu      sync.Mutex
	next    uint64
	pending map[uint64]*Pending

	observer Observer
}

// NewTracker 创建跟踪器
func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{clk: clk, pending: make(map[uint64]*Pending)}
}

// SetObserver 设置结果观察者
func (t *Tracker) SetObserver(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
}

// Track 登记一次发送，timeout 后以 OutcomeTimeout 结束
//
// timeout <= 0 表示不设截止时间。
func (t *Tracker) Track(msg *types.Message, target types.PeerID, listener Listener, timeout time.Duration) *Pending {
	p := &Pending{
		tracker:  t,
		msg:      msg,
		target:   target,
		listener: listener,
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	t.next++
	p.id = t.next
	t.pending[p.id] = p
	t.mu.Unlock()

	if timeout > 0 {
		p.deadline = t.clk.Now().Add(timeout)
		p.timer = t.clk.AfterFunc(timeout, func() {
			p.Expire()
		})
	}
	return p
}

// Len 在途数量
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close 以 error 结束所有在途投递
func (t *Tracker) Close() {
	t.mu.Lock()
	all := make([]*Pending, 0, len(t.pending))
	for _, p := range t.pending {
		all = append(all, p)
	}
	t.mu.Unlock()

	for _, p := range all {
		p.Complete(types.OutcomeError, ErrCanceled)
	}
}

func (t *Tracker) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

func (t *Tracker) observe(r Result) {
	t.mu.Lock()
	o := t.observer
	t.mu.Unlock()
	if o != nil {
		o(r)
	}
}

// ============================================================================
//                              Pending
// ============================================================================

// Pending 一次在途投递
type Pending struct {
	id      uint64
	tracker *Tracker

	msg      *types.Message
	target   types.PeerID
	deadline time.Time
	timer    *clock.Timer
	listener Listener

	transport atomic.Int32
	outcome   atomic.Int32
	err       error
	done      chan struct{}
}

// Message 被投递的消息
func (p *Pending) Message() *types.Message { return p.msg }

// Target 目标系统
func (p *Pending) Target() types.PeerID { return p.target }

// Deadline 截止时间，未设置时为零值
func (p *Pending) Deadline() time.Time { return p.deadline }

// SetTransport 记录实际使用的传输
func (p *Pending) SetTransport(k types.TransportKind) {
	p.transport.Store(int32(k))
}

// Transport 实际使用的传输
func (p *Pending) Transport() types.TransportKind {
	return types.TransportKind(p.transport.Load())
}

// Outcome 当前结果
func (p *Pending) Outcome() types.Outcome {
	return types.Outcome(p.outcome.Load())
}

// Done 终态时关闭
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result 返回结果，尚未结束时第二个值为 false
func (p *Pending) Result() (Result, bool) {
	select {
	case <-p.done:
		return p.result(), true
	default:
		return Result{}, false
	}
}

func (p *Pending) result() Result {
	return Result{
		Message:   p.msg,
		Target:    p.target,
		Transport: p.Transport(),
		Outcome:   p.Outcome(),
		Err:       p.err,
	}
}

// Complete 设置终态，只有第一次调用生效
func (p *Pending) Complete(outcome types.Outcome, err error) bool {
	if !p.finish(outcome, err) {
		log.Debug("丢弃迟到的投递结果", "target", p.target.String(), "outcome", outcome.String())
		return false
	}

	r := p.result()
	p.tracker.observe(r)
	if p.listener != nil {
		p.listener(r)
	}
	return true
}

// Expire 以 timeout 结束，已有结果时不生效
func (p *Pending) Expire() bool {
	return p.Complete(types.OutcomeTimeout, ErrTimeout)
}

// Cancel 放弃等待，不调用监听器
func (p *Pending) Cancel() bool {
	return p.finish(types.OutcomeError, ErrCanceled)
}

func (p *Pending) finish(outcome types.Outcome, err error) bool {
	if !outcome.IsTerminal() {
		return false
	}
	if !p.outcome.CompareAndSwap(int32(types.OutcomePending), int32(outcome)) {
		return false
	}

	// err 在 close(done) 之前写入，读取方经由 done 同步
	p.err = err
	if p.timer != nil {
		p.timer.Stop()
	}
	p.tracker.remove(p.id)
	close(p.done)
	return true
}
