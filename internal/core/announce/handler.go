package announce

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/announce")

// uidSettle UID 变化后保持冲突标记的时长
const uidSettle = 3 * time.Second

// Handler 入站 Announce 处理器
type Handler struct {
	cfg    *config.Config
	local  *Local
	reg    *registry.Registry
	prober Prober
	clk    clock.Clock

	// query 向指定系统发送实体列表查询，由 manager 注入
	query func(dst types.PeerID)

	discovered *eventbus.Emitter
	updated    *eventbus.Emitter
	conflict   *eventbus.Emitter
}

// NewHandler 创建处理器，bus 与 prober 可为 nil
func NewHandler(cfg *config.Config, local *Local, reg *registry.Registry, prober Prober, bus *eventbus.Bus, clk clock.Clock) (*Handler, error) {
	if clk == nil {
		clk = clock.New()
	}
	if prober == nil {
		prober = noProbe{}
	}
	h := &Handler{
		cfg:    cfg,
		local:  local,
		reg:    reg,
		prober: prober,
		clk:    clk,
	}

	if bus != nil {
		var err error
		if h.discovered, err = bus.Emitter(new(types.EvtPeerDiscovered)); err != nil {
			return nil, err
		}
		if h.updated, err = bus.Emitter(new(types.EvtPeerUpdated)); err != nil {
			return nil, err
		}
		if h.conflict, err = bus.Emitter(new(types.EvtIDConflict)); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// SetQuerier 设置实体列表查询的发送函数
func (h *Handler) SetQuerier(fn func(dst types.PeerID)) {
	h.query = fn
}

// HandleInbound 处理来自其他系统的 Announce，返回更新后的记录
func (h *Handler) HandleInbound(msg *types.Message, info types.MessageInfo) (registry.Record, error) {
	if msg.Kind != wire.KindAnnounce {
		return registry.Record{}, ErrNotAnnounce
	}
	src := msg.Header.Src
	if !src.IsValidSource() {
		return registry.Record{}, fmt.Errorf("%w: %s", ErrInvalidSource, src)
	}
	ann, err := wire.UnmarshalAnnounce(msg.Payload)
	if err != nil {
		return registry.Record{}, fmt.Errorf("announce from %s: %w", src, err)
	}

	services := SplitServices(ann.Services)
	f := registry.Fields{
		Name:         registry.Ptr(ann.SysName),
		Services:     services,
		AnnounceSeen: registry.Ptr(true),
	}
	if f.Services == nil {
		f.Services = []string{}
	}
	kind, err := types.ParsePeerKind(ann.SysType)
	if err != nil {
		kind = types.KindOther
	}
	f.Kind = &kind

	h.resolveAddrs(&f, services, info.SrcIP)

	if ann.Lat != 0 && ann.Lon != 0 {
		loc := types.LocationFromRadians(ann.Lat, ann.Lon, ann.Height)
		f.Location = &loc
	}

	if !h.reg.Contains(src) {
		if kp, ok := h.cfg.KnownPeer(src); ok {
			f.Authority = registry.Ptr(kp.Authority)
			f.Static = registry.Ptr(true)
		}
	}

	rec, created, err := h.reg.Upsert(src, f)
	if err != nil {
		return registry.Record{}, err
	}
	rec, _ = h.reg.Update(src, func(r *registry.Record) {
		h.trackUID(r, UIDFromServices(services))
		if info.ReceivedAt.After(r.LastSeen) {
			r.LastSeen = info.ReceivedAt
		}
	})
	h.reg.IndexAddr(info.SrcIP, info.SrcPort, src)

	if created || len(rec.Entities) == 0 {
		h.queryEntities(src)
	}

	if created {
		log.Info("发现系统", "id", src.String(), "name", rec.Name, "kind", rec.Kind.String(),
			"udp", rec.UDPActive, "tcp", rec.TCPActive)
		h.emit(h.discovered, types.EvtPeerDiscovered{ID: src, Name: rec.Name, Kind: rec.Kind})
	} else {
		h.emit(h.updated, types.EvtPeerUpdated{ID: src})
	}
	return rec, nil
}

// resolveAddrs 为 UDP 与 TCP 各选一个地址
func (h *Handler) resolveAddrs(f *registry.Fields, services []string, sender string) {
	udp := Endpoints(services, SchemeUDP)
	tcp := Endpoints(services, SchemeTCP)

	if ep, ok := h.pick(udp, sender); ok {
		f.UDPHost, f.UDPPort = registry.Ptr(ep.Host), registry.Ptr(ep.Port)
	} else if len(tcp) == 0 && sender != "" {
		f.UDPHost, f.UDPPort = registry.Ptr(sender), registry.Ptr(h.cfg.Announce.DefaultUDPPort)
	}
	// 只公布 TCP 时不使用 UDP
	f.UDPActive = registry.Ptr(len(udp) > 0 || len(tcp) == 0)

	if ep, ok := h.pick(tcp, sender); ok {
		f.TCPHost, f.TCPPort = registry.Ptr(ep.Host), registry.Ptr(ep.Port)
	}
	f.TCPActive = registry.Ptr(len(tcp) > 0)
}

func (h *Handler) pick(eps []Endpoint, sender string) (Endpoint, bool) {
	if len(eps) == 0 {
		return Endpoint{}, false
	}
	for _, ep := range eps {
		if ep.Host == sender && h.prober.Reachable(ep.Host) {
			return ep, true
		}
	}
	for _, ep := range eps {
		if ep.Host != sender && h.prober.Reachable(ep.Host) {
			return ep, true
		}
	}
	return eps[0], true
}

func (h *Handler) trackUID(r *registry.Record, uid string) {
	if uid == "" {
		return
	}
	now := h.clk.Now()
	switch {
	case r.InstanceUID == "":
		r.InstanceUID = uid
		r.UIDConflict = false
	case r.InstanceUID != uid:
		log.Warn("系统实例 UID 变化", "id", r.ID.String(), "name", r.Name)
		r.InstanceUID = uid
		r.UIDConflict = true
		r.UIDConflictAt = now
	case r.UIDConflict && now.Sub(r.UIDConflictAt) > uidSettle:
		r.UIDConflict = false
	}
}

// HandleSelf 处理来源为本机 ID 的 Announce
//
// UID 与本实例不同说明有其他进程使用相同 ID，返回 true。
func (h *Handler) HandleSelf(msg *types.Message, info types.MessageInfo) bool {
	ann, err := wire.UnmarshalAnnounce(msg.Payload)
	if err != nil {
		return false
	}
	if UIDFromServices(SplitServices(ann.Services)) == h.local.UID() {
		return false
	}

	sameHost := transport.IsLocalIP(info.SrcIP)
	if h.reg.ReportConflict(sameHost, info.SrcIP) {
		h.emit(h.conflict, types.EvtIDConflict{SameHost: sameHost, RemoteIP: info.SrcIP, At: h.clk.Now()})
	}
	return true
}

func (h *Handler) queryEntities(dst types.PeerID) {
	if h.query != nil {
		h.query(dst)
	}
}

func (h *Handler) emit(e *eventbus.Emitter, evt interface{}) {
	if e == nil {
		return
	}
	if err := e.Emit(evt); err != nil {
		log.Debug("发布事件失败", "err", err)
	}
}

// Close 关闭事件发布器
func (h *Handler) Close() error {
	for _, e := range []*eventbus.Emitter{h.discovered, h.updated, h.conflict} {
		if e != nil {
			e.Close()
		}
	}
	return nil
}

// EntityQuery 构造实体列表查询
func EntityQuery() *types.Message {
	return types.NewMessage(wire.KindEntityList, (&wire.EntityList{Op: wire.EntityListQuery}).Marshal())
}

type noProbe struct{}

func (noProbe) Reachable(string) bool { return true }
