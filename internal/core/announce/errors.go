package announce

import "errors"

var (
	// ErrNotAnnounce 消息不是 Announce
	ErrNotAnnounce = errors.New("announce: not an announce message")
	// ErrInvalidSource 来源为保留标识
	ErrInvalidSource = errors.New("announce: invalid source id")
)
