package announce

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// Local 本机公告内容
type Local struct {
	identity config.IdentityConfig
	uid      string

	mu        sync.RWMutex
	location  *types.Location
	transport func() []string
	extra     []string
}

// NewLocal 创建本机公告，每个实例生成新的 UID
func NewLocal(identity config.IdentityConfig, extra []string) *Local {
	return &Local{
		identity: identity,
		uid:      uuid.NewString(),
		extra:    append([]string(nil), extra...),
	}
}

// UID 本实例的唯一标识
func (l *Local) UID() string { return l.uid }

// ID 本机系统标识
func (l *Local) ID() types.PeerID { return l.identity.LocalID }

// SetLocation 设置公布的位置
func (l *Local) SetLocation(loc types.Location) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.location = &loc
}

// SetTransportServices 设置传输服务的生成函数，每次构造公告时调用
func (l *Local) SetTransportServices(fn func() []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transport = fn
}

// AddService 追加公布的服务，重复项忽略
func (l *Local) AddService(uri string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.extra {
		if s == uri {
			return
		}
	}
	l.extra = append(l.extra, uri)
}

// Services UID、传输服务、附加服务
func (l *Local) Services() []string {
	l.mu.RLock()
	fn := l.transport
	extra := append([]string(nil), l.extra...)
	l.mu.RUnlock()

	out := []string{UIDService(l.uid)}
	if fn != nil {
		out = append(out, fn()...)
	}
	return append(out, extra...)
}

// Announce 构造公告负载
func (l *Local) Announce() *wire.Announce {
	a := &wire.Announce{
		SysName:  l.identity.Name,
		SysType:  l.identity.Kind.String(),
		Owner:    uint16(l.identity.Owner),
		Services: JoinServices(l.Services()),
	}

	l.mu.RLock()
	if l.location != nil {
		a.Lat, a.Lon = l.location.Radians()
		a.Height = l.location.Height
	}
	l.mu.RUnlock()
	return a
}

// Message 构造发往发现通道的 Announce 消息
func (l *Local) Message() *types.Message {
	m := types.NewMessage(wire.KindAnnounce, l.Announce().Marshal())
	m.Header.Dst = types.AnnounceID
	return m
}
