package tcp

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

type outFrame struct {
	data []byte
	done transport.DoneFunc
}

func (f outFrame) finish(o types.Outcome, err error) {
	if f.done != nil {
		f.done(o, err)
	}
}

// conn 一条 TCP 连接
//
// 出站连接由 dialAndWrite 拨号并写出队列；入站连接只读。
// 关闭时未写出的帧全部以失败回调。
type conn struct {
	t        *Transport
	key      string
	outbound bool
	nc       net.Conn

	mu     sync.Mutex
	queue  chan outFrame
	closed bool
	// inFlight 已出队但尚未写完
	inFlight atomic.Int32

	active atomic.Int64 // UnixNano
	quit   chan struct{}
}

func (t *Transport) newConn(key string, outbound bool) *conn {
	c := &conn{
		t:        t,
		key:      key,
		outbound: outbound,
		queue:    make(chan outFrame, t.cfg.WriteQueue),
		quit:     make(chan struct{}),
	}
	c.touch()
	return c
}

func (c *conn) touch() {
	c.active.Store(c.t.clk.Now().UnixNano())
}

func (c *conn) lastActive() time.Time {
	return time.Unix(0, c.active.Load())
}

func (c *conn) idle(now time.Time, after time.Duration) bool {
	return len(c.queue) == 0 && c.inFlight.Load() == 0 && now.Sub(c.lastActive()) >= after
}

func (c *conn) enqueue(f outFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.queue <- f:
		return true
	default:
		return false
	}
}

// dialAndWrite 拨号后持续写出队列
func (c *conn) dialAndWrite() {
	defer c.t.wg.Done()

	d := net.Dialer{Timeout: c.t.cfg.DialTimeout}
	nc, err := d.DialContext(c.t.ctx, "tcp4", c.key)
	if err != nil {
		log.Debug("拨号失败", "remote", c.key, "err", err)
		c.close(dialOutcome(err), err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = nc.Close()
		return
	}
	c.nc = nc
	c.mu.Unlock()
	c.touch()

	c.t.wg.Add(1)
	go c.readLoop()

	for {
		select {
		case <-c.quit:
			return
		case f := <-c.queue:
			c.inFlight.Add(1)
			err := c.write(f.data)
			c.inFlight.Add(-1)
			if err != nil {
				f.finish(types.OutcomeError, err)
				c.close(types.OutcomeError, err)
				return
			}
			f.finish(types.OutcomeSuccess, nil)
		}
	}
}

func (c *conn) write(data []byte) error {
	_ = c.nc.SetWriteDeadline(time.Now().Add(c.t.cfg.DialTimeout))
	_, err := c.nc.Write(data)
	if err == nil {
		c.touch()
	}
	return err
}

// readLoop 读取帧直到连接关闭；流失步（同步字错误）时断开
func (c *conn) readLoop() {
	defer c.t.wg.Done()

	from, _ := c.nc.RemoteAddr().(*net.TCPAddr)
	info := types.MessageInfo{}
	if from != nil {
		info.SrcIP, info.SrcPort = from.IP.String(), from.Port
	}

	for {
		frame, err := wire.ReadFrame(c.nc)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("读取失败，断开连接", "remote", c.key, "err", err)
			}
			c.close(types.OutcomeError, err)
			return
		}
		c.touch()

		info.ReceivedAt = time.Now()
		c.t.Deliver(frame, info)
	}
}

// close 关闭连接，排空队列；可重复调用
func (c *conn) close(outcome types.Outcome, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	nc := c.nc
	close(c.quit)
	c.mu.Unlock()

	c.t.removeConn(c)
	if nc != nil {
		_ = nc.Close()
	}

	for {
		select {
		case f := <-c.queue:
			f.finish(outcome, err)
		default:
			return
		}
	}
}

// dialOutcome 连接被拒绝或不可达为 Unreachable，其余为 Error
func dialOutcome(err error) types.Outcome {
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return types.OutcomeUnreachable
	case errors.As(err, &opErr) && opErr.Timeout():
		return types.OutcomeUnreachable
	}
	return types.OutcomeError
}
