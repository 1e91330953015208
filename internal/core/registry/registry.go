package registry

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/registry")

// Options 目录参数
type Options struct {
	// FilterByPort 地址索引同时匹配端口
	FilterByPort bool

	// ConflictHold 冲突状态保持时长
	ConflictHold time.Duration
}

// Registry 系统目录
type Registry struct {
	mu    sync.RWMutex
	peers map[types.PeerID]*Peer
	// order 插入顺序，FirstKnown 使用
	order []types.PeerID
	// addrs "ip" 与 "ip:port" -> id
	addrs map[string]types.PeerID

	opts Options
	clk  clock.Clock

	conflict conflictLatch
}

// New 创建目录
func New(opts Options, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if opts.ConflictHold <= 0 {
		opts.ConflictHold = 20 * time.Second
	}
	return &Registry{
		peers: make(map[types.PeerID]*Peer),
		addrs: make(map[string]types.PeerID),
		opts:  opts,
		clk:   clk,
	}
}

// Lookup 查找记录
func (r *Registry) Lookup(id types.PeerID) (Record, bool) {
	p := r.peer(id)
	if p == nil {
		return Record{}, false
	}
	return p.Snapshot(), true
}

// Contains 是否已有记录
func (r *Registry) Contains(id types.PeerID) bool {
	return r.peer(id) != nil
}

func (r *Registry) peer(id types.PeerID) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[id]
}

// getOrCreate 返回记录，第二个返回值表示是否新建
func (r *Registry) getOrCreate(id types.PeerID) (*Peer, bool) {
	if p := r.peer(id); p != nil {
		return p, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		return p, false
	}
	p := &Peer{rec: Record{ID: id, Kind: types.KindOther}}
	r.peers[id] = p
	r.order = append(r.order, id)
	return p, true
}

// Upsert 合并更新，不存在则创建
//
// 第二个返回值表示本次调用创建了记录。
func (r *Registry) Upsert(id types.PeerID, f Fields) (Record, bool, error) {
	if !id.IsValidSource() {
		return Record{}, false, ErrReservedID
	}

	p, created := r.getOrCreate(id)
	rec := p.Update(f.apply)

	if created {
		log.Debug("新系统", "id", id.String(), "name", rec.Name)
	}

	if f.UDPHost != nil || f.UDPPort != nil {
		r.IndexAddr(rec.UDPHost, rec.UDPPort, id)
	}
	if f.TCPHost != nil || f.TCPPort != nil {
		r.IndexAddr(rec.TCPHost, rec.TCPPort, id)
	}
	return rec, created, nil
}

// Update 在记录锁内修改已有记录
func (r *Registry) Update(id types.PeerID, fn func(rec *Record)) (Record, bool) {
	p := r.peer(id)
	if p == nil {
		return Record{}, false
	}
	return p.Update(fn), true
}

// Touch 记录收到消息的时间
func (r *Registry) Touch(id types.PeerID, at time.Time) {
	if p := r.peer(id); p != nil {
		p.Update(func(rec *Record) {
			if at.After(rec.LastSeen) {
				rec.LastSeen = at
			}
		})
	}
}

// SetEntities 替换实体列表
func (r *Registry) SetEntities(id types.PeerID, entities map[uint8]string) bool {
	p := r.peer(id)
	if p == nil {
		return false
	}
	p.Update(func(rec *Record) {
		rec.Entities = make(map[uint8]string, len(entities))
		for k, v := range entities {
			rec.Entities[k] = v
		}
	})
	return true
}

// SetEntity 设置单个实体名称
func (r *Registry) SetEntity(id types.PeerID, entity uint8, label string) bool {
	p := r.peer(id)
	if p == nil {
		return false
	}
	p.Update(func(rec *Record) {
		if rec.Entities == nil {
			rec.Entities = make(map[uint8]string)
		}
		rec.Entities[entity] = label
	})
	return true
}

// Entities 返回实体列表副本
func (r *Registry) Entities(id types.PeerID) map[uint8]string {
	rec, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	return rec.Entities
}

// ============================================================================
//                              遍历
// ============================================================================

// ForEach 按插入顺序遍历，fn 返回 false 时停止
func (r *Registry) ForEach(fn func(rec Record) bool) {
	r.mu.RLock()
	peers := make([]*Peer, 0, len(r.order))
	for _, id := range r.order {
		peers = append(peers, r.peers[id])
	}
	r.mu.RUnlock()

	for _, p := range peers {
		if !fn(p.Snapshot()) {
			return
		}
	}
}

// Peers 返回满足 pred 的记录，pred 为 nil 时返回全部
func (r *Registry) Peers(pred func(rec Record) bool) []Record {
	var out []Record
	r.ForEach(func(rec Record) bool {
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
		return true
	})
	return out
}

// Len 记录数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// FirstKnown 返回最早建立的记录
func (r *Registry) FirstKnown() (types.PeerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return types.NullID, false
	}
	return r.order[0], true
}

// ============================================================================
//                              地址索引
// ============================================================================

// IndexAddr 将地址关联到系统，后写入者覆盖
func (r *Registry) IndexAddr(ip string, port int, id types.PeerID) {
	if ip == "" || !id.IsValidSource() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[ip] = id
	if port > 0 {
		r.addrs[net.JoinHostPort(ip, strconv.Itoa(port))] = id
	}
}

// LookupByAddr 按来源地址查找系统
//
// FilterByPort 时要求 ip:port 精确匹配，否则只比较 IP。
func (r *Registry) LookupByAddr(ip string, port int) (types.PeerID, bool) {
	key := ip
	if r.opts.FilterByPort {
		key = net.JoinHostPort(ip, strconv.Itoa(port))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.addrs[key]
	return id, ok
}
