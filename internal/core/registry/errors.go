package registry

import "errors"

var (
	// ErrReservedID 保留标识不能建立记录
	ErrReservedID = errors.New("registry: reserved peer id")
)
