package transport

import (
	"fmt"

	"go.uber.org/multierr"
)

// BindWithRetry 依次尝试 port, port+1, ..., port+retries
//
// port 为 0 时只尝试一次，由系统分配端口。
func BindWithRetry(port, retries int, bind func(port int) error) (int, error) {
	if port == 0 {
		retries = 0
	}

	var errs error
	for i := 0; i <= retries; i++ {
		p := port + i
		if p > 65535 {
			break
		}
		err := bind(p)
		if err == nil {
			return p, nil
		}
		errs = multierr.Append(errs, err)
	}
	return 0, fmt.Errorf("%w: ports %d..%d: %v", ErrBindFailed, port, port+retries, errs)
}

// BindFirst 依次尝试候选端口，返回第一个成功的
func BindFirst(ports []int, bind func(port int) error) (int, error) {
	var errs error
	for _, p := range ports {
		err := bind(p)
		if err == nil {
			return p, nil
		}
		errs = multierr.Append(errs, err)
	}
	return 0, fmt.Errorf("%w: ports %v: %v", ErrBindFailed, ports, errs)
}
