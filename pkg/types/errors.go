package types

import "errors"

var (
	// ErrInvalidPeerID 无法解析的系统标识
	ErrInvalidPeerID = errors.New("invalid peer id")

	// ErrUnknownPeerKind 无法识别的系统类型
	ErrUnknownPeerKind = errors.New("unknown peer kind")
)
