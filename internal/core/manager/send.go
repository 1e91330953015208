package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-imcmsg/internal/core/announce"
	"github.com/dep2p/go-imcmsg/internal/core/delivery"
	"github.com/dep2p/go-imcmsg/internal/core/fragment"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// fragmentOverhead MessagePart 负载中除数据外的最大字节数
const fragmentOverhead = 16

// ============================================================================
//                              公共发送接口
// ============================================================================

// Send 发出即忘，返回消息是否已交给某个传输
func (m *Manager) Send(msg *types.Message, dst types.PeerID, opts ...SendOption) bool {
	_, handed := m.send(msg, dst, applyOptions(opts))
	return handed
}

// SendWithListener 发送并在得到终态结果时回调 listener
//
// 同步失败（未启动、目标未知等）同样通过 listener 报告。
func (m *Manager) SendWithListener(msg *types.Message, dst types.PeerID, listener delivery.Listener, opts ...SendOption) bool {
	o := applyOptions(opts)
	o.listener = listener
	_, handed := m.send(msg, dst, o)
	return handed
}

// SendBlocking 发送并等待结果
//
// 截止时间默认取可靠发送超时。ctx 结束时返回 ctx 的错误和已结束的结果：
// 到期为 timeout，取消为 error。
func (m *Manager) SendBlocking(ctx context.Context, msg *types.Message, dst types.PeerID, opts ...SendOption) (delivery.Result, error) {
	f := m.SendReliably(msg, dst, opts...)
	res, err := f.Wait(ctx)
	if err == nil {
		return res, nil
	}
	// 调用方的截止时间到期视同投递超时，主动取消则记为 error
	if errors.Is(err, context.DeadlineExceeded) {
		f.Pending().Expire()
	} else {
		f.Cancel()
	}
	res, _ = f.Pending().Result()
	return res, err
}

// SendReliably 发送并返回可等待的 Future
func (m *Manager) SendReliably(msg *types.Message, dst types.PeerID, opts ...SendOption) *delivery.Future {
	o := applyOptions(opts)
	if o.timeout <= 0 {
		o.timeout = m.cfg.Delivery.ReliableTimeout.Duration()
	}
	p, _ := m.send(msg, dst, o)
	return delivery.NewFuture(p)
}

// BroadcastToConsoles 向全部已知控制台各发送一份，返回交出的份数
func (m *Manager) BroadcastToConsoles(msg *types.Message, opts ...SendOption) int {
	o := applyOptions(opts)
	n := 0
	for _, rec := range m.reg.Peers(func(r registry.Record) bool { return r.Kind == types.KindConsole }) {
		c := msg.Clone()
		c.Header.Dst = types.NullID
		if _, handed := m.send(c, rec.ID, o); handed {
			n++
		}
	}
	return n
}

// ============================================================================
//                              发送路径
// ============================================================================

// send 盖章、登记并交给传输
//
// 返回的 Pending 总是非空；同步失败时已处于终态。
func (m *Manager) send(msg *types.Message, dst types.PeerID, o sendOptions) (*delivery.Pending, bool) {
	msg = m.stamp(msg, dst, o)

	timeout := o.timeout
	if timeout <= 0 {
		timeout = m.cfg.Delivery.DefaultTimeout.Duration()
	}
	p := m.tracker.Track(msg, dst, o.listener, timeout)

	if !m.Running() {
		p.Complete(types.OutcomeError, ErrNotRunning)
		return p, false
	}
	if o.multicast || o.broadcast {
		return p, m.sendGroup(p, msg, o)
	}
	if dst.IsSentinel() {
		p.Complete(types.OutcomeError, ErrNoDestination)
		return p, false
	}

	rec, ok := m.peerFor(dst)
	if !ok {
		p.Complete(types.OutcomeUnreachable, fmt.Errorf("%w: %s", ErrUnknownPeer, dst))
		return p, false
	}
	if rec.Authority == types.AuthorityOff {
		p.Complete(types.OutcomeError, fmt.Errorf("%w: %s", ErrAuthorityOff, dst))
		return p, false
	}

	cands := m.candidates(rec, o.via, o.only)
	if len(cands) == 0 {
		p.Complete(types.OutcomeUnreachable, fmt.Errorf("%w: %s", ErrNoTransport, dst))
		return p, false
	}

	frame, err := m.codec.Encode(msg)
	if err != nil {
		p.Complete(types.OutcomeError, err)
		return p, false
	}

	ch := m.router.Channel(dst)
	ch.Counters.ToSend.MarkNow()
	m.global.ToSend.MarkNow()

	done := func(outcome types.Outcome, err error) {
		if outcome.Delivered() {
			ch.Counters.Sent.MarkNow()
			m.global.Sent.MarkNow()
		}
		p.Complete(outcome, err)
	}

	for _, k := range cands {
		p.SetTransport(k)
		if m.sendUnicast(k, rec, msg, frame, done) {
			return p, true
		}
		log.Debug("传输拒绝发送，尝试下一个", "transport", k.String(), "dst", dst.String())
	}
	p.Complete(types.OutcomeError, fmt.Errorf("%w: %s", ErrSendFailed, dst))
	return p, false
}

// stamp 复制消息并填写消息头
func (m *Manager) stamp(msg *types.Message, dst types.PeerID, o sendOptions) *types.Message {
	c := msg.Clone()
	c.Header.Src = m.local.ID()
	if c.Header.Dst == types.NullID {
		c.Header.Dst = dst
	}
	if o.entity != nil && c.Header.SrcEntity == types.DefaultEntity {
		c.Header.SrcEntity = o.entity.ID
	}
	c.Stamp(m.clk.Now())
	return c
}

// peerFor 查找目标；静态配置的系统按需建立记录
func (m *Manager) peerFor(dst types.PeerID) (registry.Record, bool) {
	if rec, ok := m.reg.Lookup(dst); ok {
		return rec, true
	}
	kp, ok := m.cfg.KnownPeer(dst)
	if !ok {
		return registry.Record{}, false
	}
	rec, _, err := m.reg.Upsert(dst, registry.FieldsFromKnown(kp))
	if err != nil {
		return registry.Record{}, false
	}
	return rec, true
}

// candidates 按偏好排列的可用单播传输
func (m *Manager) candidates(rec registry.Record, via types.TransportKind, only bool) []types.TransportKind {
	var out []types.TransportKind
	for _, k := range m.cfg.Transport.PreferenceKinds() {
		u, ok := m.unicast[k]
		if !ok || !u.Bound() {
			continue
		}
		switch k {
		case types.TransportUDP:
			if !rec.CanUDP() {
				continue
			}
		case types.TransportTCP:
			if !rec.CanTCP() {
				continue
			}
		}
		out = append(out, k)
	}

	if via == types.TransportUnknown {
		return out
	}
	if only {
		for _, k := range out {
			if k == via {
				return []types.TransportKind{via}
			}
		}
		return nil
	}
	for i, k := range out {
		if k == via {
			copy(out[1:i+1], out[:i])
			out[0] = via
			break
		}
	}
	return out
}

func (m *Manager) sendUnicast(k types.TransportKind, rec registry.Record, msg *types.Message, frame []byte, done transport.DoneFunc) bool {
	u := m.unicast[k]
	switch k {
	case types.TransportUDP:
		if len(frame) > m.cfg.Transport.MaxDatagramSize {
			return m.sendFragments(u, rec, msg, frame, done)
		}
		return u.Send(rec.UDPHost, rec.UDPPort, frame, done)
	case types.TransportTCP:
		return u.Send(rec.TCPHost, rec.TCPPort, frame, done)
	}
	return false
}

// sendFragments 将超过数据报上限的帧拆成 MessagePart 逐片发送
//
// 全部分片交出后以 Success 结束；任一分片被拒绝则整体视为拒绝。
func (m *Manager) sendFragments(u transport.Unicast, rec registry.Record, msg *types.Message, frame []byte, done transport.DoneFunc) bool {
	chunk := m.cfg.Transport.MaxDatagramSize - wire.HeaderSize - wire.FooterSize - fragmentOverhead
	group := uint16(m.fragGroup.Add(1))

	parts := fragment.Split(frame, group, chunk)
	for _, part := range parts {
		pm := types.NewMessage(wire.KindMessagePart, part.Marshal())
		pm.Header = msg.Header
		pf, err := m.codec.Encode(pm)
		if err != nil {
			done(types.OutcomeError, err)
			return true
		}
		if !u.Send(rec.UDPHost, rec.UDPPort, pf, nil) {
			return false
		}
	}
	log.Debug("已分片发送", "dst", rec.ID.String(), "size", len(frame), "parts", len(parts))
	done(types.OutcomeSuccess, nil)
	return true
}

// sendGroup 经组播或广播发送，结果为 uncertain
func (m *Manager) sendGroup(p *delivery.Pending, msg *types.Message, o sendOptions) bool {
	if m.group == nil || !m.group.Bound() {
		p.Complete(types.OutcomeUnreachable, ErrNoTransport)
		return false
	}
	frame, err := m.codec.Encode(msg)
	if err != nil {
		p.Complete(types.OutcomeError, err)
		return false
	}

	m.global.ToSend.MarkNow()
	var ok bool
	if o.multicast {
		p.SetTransport(types.TransportMulticast)
		ok = m.group.SendMulticast(frame)
	}
	if o.broadcast {
		if !ok {
			p.SetTransport(types.TransportBroadcast)
		}
		ok = m.group.SendBroadcast(frame) || ok
	}
	if !ok {
		p.Complete(types.OutcomeError, ErrSendFailed)
		return false
	}
	m.global.Sent.MarkNow()
	p.Complete(types.OutcomeUncertain, nil)
	return true
}

// ============================================================================
//                              announce.Outbox
// ============================================================================

var _ announce.Outbox = (*Manager)(nil)

// Multicast 实现 announce.Outbox
func (m *Manager) Multicast(msg *types.Message) bool {
	return m.Send(msg, msg.Header.Dst, WithMulticast())
}

// Broadcast 实现 announce.Outbox
func (m *Manager) Broadcast(msg *types.Message) bool {
	return m.Send(msg, msg.Header.Dst, WithBroadcast())
}

// AnnounceTo 实现 announce.Outbox，发往 host 的每个组播端口
func (m *Manager) AnnounceTo(host string, msg *types.Message) bool {
	if !m.Running() || m.group == nil || !m.group.Bound() {
		return false
	}
	frame, err := m.codec.Encode(m.stamp(msg, msg.Header.Dst, sendOptions{}))
	if err != nil {
		log.Debug("编码公告失败", "err", err)
		return false
	}
	sent := false
	for _, port := range m.group.Ports() {
		sent = m.group.SendTo(host, port, frame) || sent
	}
	return sent
}

// SendVia 实现 announce.Outbox
func (m *Manager) SendVia(msg *types.Message, dst types.PeerID, via types.TransportKind) bool {
	return m.Send(msg, dst, Via(via), WithTimeout(m.cfg.Announce.HeartbeatInterval.Duration()))
}

// SendOnly 实现 announce.Outbox
func (m *Manager) SendOnly(msg *types.Message, dst types.PeerID, via types.TransportKind) bool {
	return m.Send(msg, dst, Only(via), WithTimeout(m.cfg.Announce.HeartbeatInterval.Duration()))
}
