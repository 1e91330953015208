// Package workerpool 提供按键分片的有界工作池
//
// 同一个键总是落在同一分片，分片内按提交顺序串行执行，用于保持
// 同一发送方的入站消息顺序。分片队列满时任务被丢弃而不是阻塞接收循环。
package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-imcmsg/internal/util/logger"
)

var log = logger.Logger("core/workerpool")

// ErrClosed 工作池已关闭
var ErrClosed = errors.New("workerpool: closed")

// Stats 工作池统计
type Stats struct {
	Shards    int    `json:"shards"`
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Dropped   uint64 `json:"dropped"`
	Panicked  uint64 `json:"panicked"`
}

// Pool 分片工作池
type Pool struct {
	name   string
	shards []chan func()
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	completed atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64

	// OnDrop 任务因队列满被丢弃时调用
	OnDrop func(key string)

	dropNotes rate.Sometimes
}

// New 创建工作池并启动 shards 个工作协程
func New(name string, shards, queue int) *Pool {
	if shards <= 0 {
		shards = 1
	}
	if queue <= 0 {
		queue = 1
	}

	p := &Pool{
		name:      name,
		shards:    make([]chan func(), shards),
		dropNotes: rate.Sometimes{Interval: 5 * time.Second},
	}
	for i := range p.shards {
		p.shards[i] = make(chan func(), queue)
		p.wg.Add(1)
		go p.worker(p.shards[i])
	}
	return p
}

func (p *Pool) worker(tasks <-chan func()) {
	defer p.wg.Done()
	for task := range tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			log.Error("任务崩溃", "pool", p.name, "panic", fmt.Sprint(r))
		}
	}()
	task()
	p.completed.Add(1)
}

// Shard 键对应的分片序号
func (p *Pool) Shard(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(p.shards)))
}

// Submit 将任务加入 key 所在分片，队列满时丢弃并返回 false
func (p *Pool) Submit(key string, task func()) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrClosed
	}

	p.submitted.Add(1)
	select {
	case p.shards[p.Shard(key)] <- task:
		return true, nil
	default:
		total := p.dropped.Add(1)
		p.dropNotes.Do(func() {
			log.Warn("入站队列已满，丢弃任务", "pool", p.name, "key", key, "dropped", total)
		})
		if p.OnDrop != nil {
			p.OnDrop(key)
		}
		return false, nil
	}
}

// Stats 返回统计
func (p *Pool) Stats() Stats {
	pending := 0
	for _, ch := range p.shards {
		pending += len(ch)
	}
	return Stats{
		Shards:    len(p.shards),
		Pending:   pending,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Dropped:   p.dropped.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Close 停止接收任务，等待已入队任务执行完毕
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
