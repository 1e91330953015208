package manager

import "errors"

var (
	// ErrNotRunning 管理器未启动
	ErrNotRunning = errors.New("manager: not running")
	// ErrNoDestination 目标为保留标识
	ErrNoDestination = errors.New("manager: no destination")
	// ErrUnknownPeer 目标系统未知
	ErrUnknownPeer = errors.New("manager: unknown peer")
	// ErrAuthorityOff 目标系统授权为 off
	ErrAuthorityOff = errors.New("manager: authority off")
	// ErrNoTransport 没有可用传输
	ErrNoTransport = errors.New("manager: no usable transport")
	// ErrSendFailed 所有候选传输都拒绝了发送
	ErrSendFailed = errors.New("manager: all transports refused")
)
