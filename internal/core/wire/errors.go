package wire

import "errors"

var (
	// ErrShortFrame 数据不足一帧
	ErrShortFrame = errors.New("wire: short frame")
	// ErrBadSync 同步字错误
	ErrBadSync = errors.New("wire: bad sync")
	// ErrBadChecksum CRC 校验失败
	ErrBadChecksum = errors.New("wire: checksum mismatch")
	// ErrUnknownKind 目录中没有该消息
	ErrUnknownKind = errors.New("wire: unknown message kind")
	// ErrPayloadTooLarge 负载超过 16 位长度字段
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	// ErrKindConflict 名称或编号已被占用
	ErrKindConflict = errors.New("wire: kind already registered")
	// ErrMalformedPayload 控制消息负载无法解析
	ErrMalformedPayload = errors.New("wire: malformed payload")
)
