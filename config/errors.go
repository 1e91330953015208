package config

import "errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("config is nil")
	// ErrReservedID 使用了保留的系统标识
	ErrReservedID = errors.New("reserved peer id")
	// ErrInvalidPort 端口越界
	ErrInvalidPort = errors.New("port out of range")
	// ErrLocalIDReused 静态系统与本机同 ID
	ErrLocalIDReused = errors.New("known peer uses local id")
	// ErrDuplicatePeer 静态系统 ID 重复
	ErrDuplicatePeer = errors.New("duplicate known peer")
	// ErrNoTransport 未启用任何传输
	ErrNoTransport = errors.New("at least one transport must be enabled")
	// ErrUnknownTransport 传输偏好中出现未知名称
	ErrUnknownTransport = errors.New("unknown transport in preference")
	// ErrUnsupportedFormat 无法识别的配置文件扩展名
	ErrUnsupportedFormat = errors.New("unsupported config format")
)
