package delivery

import "errors"

var (
	// ErrTimeout 截止时间内没有结果
	ErrTimeout = errors.New("delivery: timed out")
	// ErrCanceled 等待被放弃
	ErrCanceled = errors.New("delivery: canceled")
)
