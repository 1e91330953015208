package registry

import (
	"sync"
	"time"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// Record 系统记录快照
type Record struct {
	ID       types.PeerID
	Name     string
	Kind     types.PeerKind
	Services []string

	UDPHost   string
	UDPPort   int
	TCPHost   string
	TCPPort   int
	UDPActive bool
	TCPActive bool

	Authority types.Authority

	// Location 最近一次有效位置，未知时为 nil
	Location *types.Location

	LastSeen time.Time

	// Entities 实体 id -> 名称
	Entities map[uint8]string

	InstanceUID  string
	AnnounceSeen bool
	Static       bool

	// UIDConflict 实例 UID 近期发生变化，可能有两个进程共用该 ID
	UIDConflict   bool
	UIDConflictAt time.Time
}

// Active 在 after 之内收到过消息
func (r Record) Active(now time.Time, after time.Duration) bool {
	return !r.LastSeen.IsZero() && now.Sub(r.LastSeen) <= after
}

// CanUDP 有可用的 UDP 地址
func (r Record) CanUDP() bool {
	return r.UDPActive && r.UDPHost != "" && r.UDPPort > 0
}

// CanTCP 有可用的 TCP 地址
func (r Record) CanTCP() bool {
	return r.TCPActive && r.TCPHost != "" && r.TCPPort > 0
}

func (r Record) clone() Record {
	out := r
	if r.Services != nil {
		out.Services = append([]string(nil), r.Services...)
	}
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	if r.Entities != nil {
		out.Entities = make(map[uint8]string, len(r.Entities))
		for k, v := range r.Entities {
			out.Entities[k] = v
		}
	}
	return out
}

// Fields 增量更新，nil 字段保持原值
type Fields struct {
	Name     *string
	Kind     *types.PeerKind
	Services []string

	UDPHost   *string
	UDPPort   *int
	TCPHost   *string
	TCPPort   *int
	UDPActive *bool
	TCPActive *bool

	Authority *types.Authority
	Location  *types.Location

	InstanceUID  *string
	AnnounceSeen *bool
	Static       *bool
}

func (f Fields) apply(r *Record) {
	if f.Name != nil {
		r.Name = *f.Name
	}
	if f.Kind != nil {
		r.Kind = *f.Kind
	}
	if f.Services != nil {
		r.Services = append([]string(nil), f.Services...)
	}
	if f.UDPHost != nil {
		r.UDPHost = *f.UDPHost
	}
	if f.UDPPort != nil {
		r.UDPPort = *f.UDPPort
	}
	if f.TCPHost != nil {
		r.TCPHost = *f.TCPHost
	}
	if f.TCPPort != nil {
		r.TCPPort = *f.TCPPort
	}
	if f.UDPActive != nil {
		r.UDPActive = *f.UDPActive
	}
	if f.TCPActive != nil {
		r.TCPActive = *f.TCPActive
	}
	if f.Authority != nil {
		r.Authority = *f.Authority
	}
	if f.Location != nil {
		loc := *f.Location
		r.Location = &loc
	}
	if f.InstanceUID != nil {
		r.InstanceUID = *f.InstanceUID
	}
	if f.AnnounceSeen != nil {
		r.AnnounceSeen = *f.AnnounceSeen
	}
	if f.Static != nil {
		r.Static = *f.Static
	}
}

// Ptr 取地址，便于构造 Fields
func Ptr[T any](v T) *T { return &v }

// FieldsFromKnown 由静态配置构造字段
func FieldsFromKnown(kp config.KnownPeer) Fields {
	f := Fields{
		Name:      Ptr(kp.Name),
		Kind:      Ptr(kp.Kind),
		Authority: Ptr(kp.Authority),
		Static:    Ptr(true),
	}
	if kp.Host != "" && kp.UDPPort > 0 {
		f.UDPHost, f.UDPPort, f.UDPActive = Ptr(kp.Host), Ptr(kp.UDPPort), Ptr(true)
	}
	if kp.Host != "" && kp.TCPPort > 0 {
		f.TCPHost, f.TCPPort, f.TCPActive = Ptr(kp.Host), Ptr(kp.TCPPort), Ptr(true)
	}
	return f
}

// ============================================================================
//                              Peer
// ============================================================================

// Peer 目录中的一条记录
type Peer struct {
	mu  sync.Mutex
	rec Record
}

// ID 返回系统标识
func (p *Peer) ID() types.PeerID {
	return p.rec.ID
}

// Snapshot 返回记录副本
func (p *Peer) Snapshot() Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.clone()
}

// Update 在记录锁内修改
func (p *Peer) Update(fn func(r *Record)) Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.rec)
	return p.rec.clone()
}
