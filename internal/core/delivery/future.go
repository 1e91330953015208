package delivery

import (
	"context"
	"time"
)

// Future 可等待的投递结果
type Future struct {
	p *Pending
}

// NewFuture 包装 Pending
func NewFuture(p *Pending) *Future {
	return &Future{p: p}
}

// Pending 返回底层的在途投递
func (f *Future) Pending() *Pending { return f.p }

// Done 终态时关闭
func (f *Future) Done() <-chan struct{} { return f.p.Done() }

// Wait 等待结果或 ctx 结束
//
// ctx 结束不会取消投递，需要时调用 Cancel。
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.p.Done():
		return f.p.result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Get 最多等待 timeout，到期时投递以 timeout 结束
func (f *Future) Get(timeout time.Duration) (Result, error) {
	timer := f.p.tracker.clk.Timer(timeout)
	defer timer.Stop()

	select {
	case <-f.p.Done():
	case <-timer.C:
		f.p.Expire()
	}
	return f.p.result(), nil
}

// Cancel 放弃投递
func (f *Future) Cancel() bool {
	return f.p.Cancel()
}
