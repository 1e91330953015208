package imcmsg

import (
	"context"
	"fmt"
)

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 绑定传输并开始周期公告
//
// 至少一个传输绑定成功即返回 nil。节点停止后不能再次启动。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning, StateStarting:
		return ErrAlreadyStarted
	case StateStopping, StateStopped:
		return ErrNodeClosed
	}

	n.state = StateStarting
	log.Info("正在启动节点", "id", n.cfg.Identity.LocalID.String())

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	// 启动 Fx 应用（调用所有模块的 OnStart）；失败时 fx 已回滚已启动的模块
	if err := n.app.Start(initCtx); err != nil {
		n.state = StateStopped
		log.Error("节点启动失败", "error", err)
		return fmt.Errorf("start: %w", err)
	}

	n.state = StateRunning
	log.Info("节点已启动", "ports", fmt.Sprint(n.mgr.TransportPorts()))
	return nil
}

// Stop 停止公告、关闭传输并结束所有在途投递
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle:
		return ErrNotStarted
	case StateStopping, StateStopped:
		return ErrNodeClosed
	}
	return n.stopLocked(ctx)
}

// Close 关闭节点，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateRunning {
		n.state = StateStopped
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return n.stopLocked(ctx)
}

func (n *Node) stopLocked(ctx context.Context) error {
	n.state = StateStopping
	log.Info("正在停止节点")
	n.closeCallbacks()

	// 按反向顺序调用 OnStop
	err := n.app.Stop(ctx)
	n.state = StateStopped
	if err != nil {
		log.Error("停止节点失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	log.Info("节点已停止")
	return nil
}

// Running 节点是否处于运行状态
func (n *Node) Running() bool {
	return n.State() == StateRunning
}
