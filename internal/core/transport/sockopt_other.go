//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package transport

import "syscall"

// SharedPortControl 该平台不设置套接字选项
func SharedPortControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
