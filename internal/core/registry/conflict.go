package registry

import (
	"sync"
	"time"
)

// Conflict 本机 ID 冲突状态
type Conflict struct {
	// SameHost 冲突来自本机的另一进程
	SameHost bool
	RemoteIP string
	At       time.Time
}

// Describe 返回面向用户的描述
func (c Conflict) Describe() string {
	if c.SameHost {
		return "本机另一进程正在使用相同的系统 ID"
	}
	return "网络中另一系统正在使用相同的系统 ID（" + c.RemoteIP + "）"
}

type conflictLatch struct {
	mu   sync.Mutex
	last Conflict
	set  bool
}

// ReportConflict 记录一次冲突
//
// 返回 true 表示状态从无到有，调用方据此只告警一次。
func (r *Registry) ReportConflict(sameHost bool, remoteIP string) bool {
	now := r.clk.Now()

	r.conflict.mu.Lock()
	defer r.conflict.mu.Unlock()

	raised := !r.conflict.active(now, r.opts.ConflictHold)
	r.conflict.last = Conflict{SameHost: sameHost, RemoteIP: remoteIP, At: now}
	r.conflict.set = true

	if raised {
		log.Warn("系统 ID 冲突", "detail", r.conflict.last.Describe())
	}
	return raised
}

// Conflict 返回当前冲突，超过保持时长未再出现则视为已解除
func (r *Registry) Conflict() (Conflict, bool) {
	now := r.clk.Now()

	r.conflict.mu.Lock()
	defer r.conflict.mu.Unlock()
	if !r.conflict.active(now, r.opts.ConflictHold) {
		return Conflict{}, false
	}
	return r.conflict.last, true
}

func (l *conflictLatch) active(now time.Time, hold time.Duration) bool {
	return l.set && now.Sub(l.last.At) < hold
}
