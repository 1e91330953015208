// Package tcp 实现 TCP 传输
//
// 出站连接按远端 host:port 缓存复用；入站连接由监听循环接受。
// 帧边界由帧头中的负载长度确定。Send 是异步的：帧进入连接的写队列，
// 写出后回调 Success，拨号失败回调 Unreachable，写失败回调 Error。
// 空闲超过 IdleTimeout 的连接由回收协程关闭。
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	tec "github.com/jbenet/go-temp-err-catcher"

	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/transport/tcp")

// Config TCP 配置
type Config struct {
	Host    string
	Port    int
	Retries int

	DialTimeout time.Duration
	IdleTimeout time.Duration
	WriteQueue  int
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Minute
	}
	if c.WriteQueue <= 0 {
		c.WriteQueue = 64
	}
}

// Stats 连接统计
type Stats struct {
	Outbound int
	Inbound  int
	// Idle 超过 IdleTimeout/2 没有收发的连接
	Idle int
}

// Open 全部连接数
func (s Stats) Open() int { return s.Outbound + s.Inbound }

// Transport TCP 传输
type Transport struct {
	*transport.Receiver

	cfg Config
	clk clock.Clock

	mu       sync.Mutex
	ln       net.Listener
	outbound map[string]*conn
	inbound  map[*conn]struct{}
	port     atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ transport.Unicast = (*Transport)(nil)

// New 创建 TCP 传输；clk 为空时使用系统时钟
func New(cfg Config, codec *wire.Codec, clk clock.Clock) *Transport {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	return &Transport{
		Receiver: transport.NewReceiver(types.TransportTCP, codec),
		cfg:      cfg,
		clk:      clk,
		outbound: make(map[string]*conn),
		inbound:  make(map[*conn]struct{}),
	}
}

// Kind 实现 transport.Transport
func (t *Transport) Kind() types.TransportKind { return types.TransportTCP }

// Start 绑定监听端口，启动接受循环与空闲回收
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return nil
	}

	var lc net.ListenConfig
	port, err := transport.BindWithRetry(t.cfg.Port, t.cfg.Retries, func(p int) error {
		ln, err := lc.Listen(ctx, "tcp4", net.JoinHostPort(t.cfg.Host, strconv.Itoa(p)))
		if err != nil {
			return err
		}
		t.ln = ln
		return nil
	})
	if err != nil {
		return err
	}
	if port == 0 {
		port = t.ln.Addr().(*net.TCPAddr).Port
	}
	if port != t.cfg.Port && t.cfg.Port != 0 {
		log.Warn("配置端口被占用，使用后续端口", "configured", t.cfg.Port, "bound", port)
	}
	t.port.Store(int32(port))

	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(2)
	go t.acceptLoop(t.ln)
	go t.reapLoop()

	log.Info("TCP 传输已绑定", "port", port)
	return nil
}

func (t *Transport) acceptLoop(ln net.Listener) {
	defer t.wg.Done()

	var catcher tec.TempErrCatcher
	for {
		nc, err := ln.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				log.Warn("接受连接失败，停止监听", "err", err)
			}
			return
		}

		c := t.newConn(remoteKey(nc.RemoteAddr()), false)
		c.nc = nc

		t.mu.Lock()
		if t.ln == nil {
			t.mu.Unlock()
			_ = nc.Close()
			return
		}
		t.inbound[c] = struct{}{}
		t.mu.Unlock()

		log.Debug("接受入站连接", "remote", c.key)
		t.wg.Add(1)
		go c.readLoop()
	}
}

// Send 将帧加入到 host:port 连接的写队列，必要时异步拨号
//
// 返回 false 表示传输未启动或写队列已满，帧未被接受。
func (t *Transport) Send(host string, port int, frame []byte, done transport.DoneFunc) bool {
	if port <= 0 || port > 65535 || host == "" {
		return false
	}
	key := net.JoinHostPort(host, strconv.Itoa(port))

	t.mu.Lock()
	if t.ln == nil {
		t.mu.Unlock()
		return false
	}
	c, ok := t.outbound[key]
	if !ok {
		c = t.newConn(key, true)
		t.outbound[key] = c
		t.wg.Add(1)
		go c.dialAndWrite()
	}
	t.mu.Unlock()

	return c.enqueue(outFrame{data: frame, done: done})
}

// Stats 当前连接统计
func (t *Transport) Stats() Stats {
	idleAfter := t.cfg.IdleTimeout / 2
	now := t.clk.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{Outbound: len(t.outbound), Inbound: len(t.inbound)}
	count := func(c *conn) {
		if now.Sub(c.lastActive()) >= idleAfter {
			s.Idle++
		}
	}
	for _, c := range t.outbound {
		count(c)
	}
	for c := range t.inbound {
		count(c)
	}
	return s
}

// reapLoop 周期性关闭空闲连接
func (t *Transport) reapLoop() {
	defer t.wg.Done()

	ticker := t.clk.Ticker(t.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.reapIdle()
		}
	}
}

func (t *Transport) reapIdle() int {
	now := t.clk.Now()

	t.mu.Lock()
	var idle []*conn
	for _, c := range t.outbound {
		if c.idle(now, t.cfg.IdleTimeout) {
			idle = append(idle, c)
		}
	}
	for c := range t.inbound {
		if c.idle(now, t.cfg.IdleTimeout) {
			idle = append(idle, c)
		}
	}
	t.mu.Unlock()

	for _, c := range idle {
		log.Debug("回收空闲连接", "remote", c.key, "outbound", c.outbound)
		c.close(types.OutcomeError, errIdle)
	}
	return len(idle)
}

func (t *Transport) removeConn(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.outbound {
		if t.outbound[c.key] == c {
			delete(t.outbound, c.key)
		}
		return
	}
	delete(t.inbound, c)
}

// Port 实际绑定的端口
func (t *Transport) Port() int { return int(t.port.Load()) }

// Bound 是否已绑定
func (t *Transport) Bound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ln != nil
}

// Subscribe 实现 transport.Transport
func (t *Transport) Subscribe(h transport.Handler) func() {
	return t.Add(h)
}

// Close 关闭监听与全部连接，未写出的帧回调 Error
func (t *Transport) Close() error {
	t.mu.Lock()
	ln := t.ln
	t.ln = nil
	conns := make([]*conn, 0, len(t.outbound)+len(t.inbound))
	for _, c := range t.outbound {
		conns = append(conns, c)
	}
	for c := range t.inbound {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	if ln == nil {
		return nil
	}

	t.cancel()
	err := ln.Close()
	for _, c := range conns {
		c.close(types.OutcomeError, errClosed)
	}
	t.wg.Wait()
	t.port.Store(0)
	return err
}

var (
	errIdle   = errors.New("tcp: idle connection reaped")
	errClosed = errors.New("tcp: transport closed")
)

func remoteKey(a net.Addr) string {
	if tcp, ok := a.(*net.TCPAddr); ok {
		return net.JoinHostPort(tcp.IP.String(), strconv.Itoa(tcp.Port))
	}
	return fmt.Sprint(a)
}
