package announce

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// Outbox 定时任务的发送出口
type Outbox interface {
	// Multicast 发往组播组的全部端口
	Multicast(msg *types.Message) bool
	// Broadcast 发往所有接口的广播地址
	Broadcast(msg *types.Message) bool
	// AnnounceTo 发往指定主机的组播端口
	AnnounceTo(host string, msg *types.Message) bool
	// SendVia 经指定传输发给系统，via 为 Unknown 时按偏好选择
	SendVia(msg *types.Message, dst types.PeerID, via types.TransportKind) bool
	// SendOnly 只经指定传输发给系统
	SendOnly(msg *types.Message, dst types.PeerID, via types.TransportKind) bool
}

// Broadcaster 周期任务
type Broadcaster struct {
	cfg   config.AnnounceConfig
	local *Local
	reg   *registry.Registry
	out   Outbox
	clk   clock.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroadcaster 创建周期任务
func NewBroadcaster(cfg config.AnnounceConfig, local *Local, reg *registry.Registry, out Outbox, clk clock.Clock) *Broadcaster {
	if clk == nil {
		clk = clock.New()
	}
	return &Broadcaster{cfg: cfg, local: local, reg: reg, out: out, clk: clk}
}

type task struct {
	name     string
	interval time.Duration
	run      func()
}

// StartBroadcasting 启动全部周期任务
//
// interval 大于 0 时覆盖组播公告周期。重复调用会先停止已有任务。
// 启动时立即发送一次组播公告。
func (b *Broadcaster) StartBroadcasting(interval time.Duration) {
	b.StopBroadcasting()

	multicast := b.cfg.MulticastInterval.Duration()
	if interval > 0 {
		multicast = interval
	}
	tasks := []task{
		{"multicast", multicast, b.announceMulticast},
		{"broadcast", b.cfg.BroadcastInterval.Duration(), b.announceBroadcast},
		{"entity-query", b.cfg.EntityQueryInterval.Duration(), b.queryEntities},
		{"heartbeat", b.cfg.HeartbeatInterval.Duration(), b.heartbeat},
	}
	if b.cfg.UnicastToInactive {
		tasks = append(tasks, task{"unicast", b.cfg.UnicastInterval.Duration(), b.announceUnicast})
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.announceMulticast()
	}()

	for _, t := range tasks {
		if t.interval <= 0 {
			log.Debug("周期任务已关闭", "task", t.name)
			continue
		}
		// 在调用方协程中创建 ticker，模拟时钟推进时不会错过
		ticker := b.clk.Ticker(t.interval)
		b.wg.Add(1)
		go func(t task) {
			defer b.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					t.run()
				}
			}
		}(t)
	}
	log.Debug("发现广播已启动", "multicast", multicast)
}

// StopBroadcasting 停止全部周期任务并等待退出
func (b *Broadcaster) StopBroadcasting() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		b.wg.Wait()
	}
}

// Running 周期任务是否在运行
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *Broadcaster) announceMulticast() {
	b.out.Multicast(b.local.Message())
}

func (b *Broadcaster) announceBroadcast() {
	b.out.Broadcast(b.local.Message())
}

// announceUnicast 向不活跃的已知系统直接发送公告
func (b *Broadcaster) announceUnicast() {
	now := b.clk.Now()
	after := b.cfg.InactiveAfter.Duration()
	msg := b.local.Message()

	b.reg.ForEach(func(rec registry.Record) bool {
		if rec.Active(now, after) {
			return true
		}
		host := rec.UDPHost
		if host == "" {
			host = rec.TCPHost
		}
		if host != "" {
			b.out.AnnounceTo(host, msg)
		}
		return true
	})
}

func (b *Broadcaster) queryEntities() {
	b.reg.ForEach(func(rec registry.Record) bool {
		b.out.SendVia(EntityQuery(), rec.ID, types.TransportUnknown)
		return true
	})
}

// heartbeat 向授权为 monitor 或 full 的系统发送心跳，每个可用传输各一份
func (b *Broadcaster) heartbeat() {
	b.reg.ForEach(func(rec registry.Record) bool {
		if !rec.Authority.WantsHeartbeat() {
			return true
		}
		if rec.CanUDP() {
			b.out.SendOnly(types.NewMessage(wire.KindHeartbeat, nil), rec.ID, types.TransportUDP)
		}
		if rec.CanTCP() {
			b.out.SendOnly(types.NewMessage(wire.KindHeartbeat, nil), rec.ID, types.TransportTCP)
		}
		return true
	})
}
