package eventbus

type subSettings struct {
	buffer int
}

type emitterSettings struct {
	stateful bool
}

// SubOpt 订阅选项
type SubOpt func(*subSettings)

// EmitterOpt 发射器选项
type EmitterOpt func(*emitterSettings)

// BufSize 订阅缓冲大小，默认 16
func BufSize(n int) SubOpt {
	return func(s *subSettings) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// Stateful 发射器记住最后一个事件并重放给新订阅者
func Stateful() EmitterOpt {
	return func(s *emitterSettings) {
		s.stateful = true
	}
}
