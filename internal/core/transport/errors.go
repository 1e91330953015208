package transport

import "errors"

var (
	// ErrBindFailed 所有候选端口均无法绑定
	ErrBindFailed = errors.New("transport: bind failed")

	// ErrNotBound 传输未启动或已关闭
	ErrNotBound = errors.New("transport: not bound")
)
