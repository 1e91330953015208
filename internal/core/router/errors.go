package router

import "errors"

var (
	// ErrNilListener 监听函数为空
	ErrNilListener = errors.New("router: nil listener")
	// ErrUnknownPeer 系统不存在
	ErrUnknownPeer = errors.New("router: unknown peer")
)
