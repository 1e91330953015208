package imcmsg

import (
	"github.com/dep2p/go-imcmsg/internal/core/metrics"
	"github.com/dep2p/go-imcmsg/internal/core/workerpool"
)

// ════════════════════════════════════════════════════════════════════════════
//                              运行诊断
// ════════════════════════════════════════════════════════════════════════════

// Diagnostics 节点运行状态快照
type Diagnostics struct {
	ID    PeerID
	UID   string
	State string

	// Ports 已绑定传输的端口
	Ports map[string]int

	// KnownPeers 目录中的系统数
	KnownPeers int

	// Peers 每个系统通道的收发频率
	Peers []metrics.PeerStats

	// Received/ToSend/Sent 全局频率
	Received metrics.Snapshot
	ToSend   metrics.Snapshot
	Sent     metrics.Snapshot

	// Inbound 入站工作池
	Inbound workerpool.Stats

	PendingFragments  int
	PendingDeliveries int

	// TCP 连接数，未启用 TCP 时为 nil
	TCP *TCPStats

	// Conflict 当前 ID 冲突，无冲突时为 nil
	Conflict *Conflict
}

// TCPStats TCP 连接计数
type TCPStats struct {
	Outbound int
	Inbound  int
	Idle     int
}

// Diagnostics 返回当前运行状态快照
//
//	d := node.Diagnostics()
//	fmt.Printf("已知系统: %d, 在途投递: %d\n", d.KnownPeers, d.PendingDeliveries)
func (n *Node) Diagnostics() *Diagnostics {
	d := &Diagnostics{
		ID:                n.mgr.LocalID(),
		UID:               n.mgr.UID(),
		State:             n.State().String(),
		Ports:             make(map[string]int),
		KnownPeers:        n.reg.Len(),
		Peers:             n.router.PeerStats(),
		Inbound:           n.router.PoolStats(),
		PendingFragments:  n.router.PendingFragments(),
		PendingDeliveries: n.mgr.PendingDeliveries(),
	}

	for k, port := range n.mgr.TransportPorts() {
		d.Ports[k.String()] = port
	}

	if g := n.mgr.Global(); g != nil {
		d.Received = g.Received.Snapshot()
		d.ToSend = g.ToSend.Snapshot()
		d.Sent = g.Sent.Snapshot()
	}

	if s, ok := n.mgr.TCPStats(); ok {
		d.TCP = &TCPStats{Outbound: s.Outbound, Inbound: s.Inbound, Idle: s.Idle}
	}

	if c, active := n.mgr.IDConflict(); active {
		d.Conflict = &c
	}
	return d
}
