package announce

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Prober 判断主机是否可达
type Prober interface {
	Reachable(host string) bool
}

// ProbeFunc 单次探测
type ProbeFunc func(ctx context.Context, host string) bool

// CachedProber 带缓存与时间上限的探测器
type CachedProber struct {
	timeout time.Duration
	probe   ProbeFunc
	cache   *expirable.LRU[string, bool]
}

var _ Prober = (*CachedProber)(nil)

// NewProber 创建探测器，probe 为 nil 时使用 ICMP echo，不被允许时退回 TCP echo 端口
func NewProber(timeout, ttl time.Duration, probe ProbeFunc) *CachedProber {
	if probe == nil {
		probe = defaultProbe
	}
	return &CachedProber{
		timeout: timeout,
		probe:   probe,
		cache:   expirable.NewLRU[string, bool](256, nil, ttl),
	}
}

// Reachable 在 timeout 内探测 host
func (p *CachedProber) Reachable(host string) bool {
	if ok, hit := p.cache.Get(host); hit {
		return ok
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ok := p.probe(ctx, host)
	p.cache.Add(host, ok)
	return ok
}

// Forget 清除缓存
func (p *CachedProber) Forget() {
	p.cache.Purge()
}

func defaultProbe(ctx context.Context, host string) bool {
	ok, err := icmpEcho(ctx, host)
	if err == nil {
		return ok
	}
	return tcpEcho(ctx, host)
}

// icmpEcho 发送一次 ICMP echo，无权限时返回错误
func icmpEcho(ctx context.Context, host string) (bool, error) {
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return false, errors.New("not an ipv4 address")
	}

	// 非特权 ICMP（Linux 需 ping_group_range 允许）
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	req := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: 1, Data: []byte("imcmsg")},
	}
	b, err := req.Marshal(nil)
	if err != nil {
		return false, err
	}
	if _, err := conn.WriteTo(b, &net.UDPAddr{IP: ip}); err != nil {
		return false, err
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			// 超时即不可达
			return false, nil
		}
		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), buf[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return true, nil
		}
	}
}

// tcpEcho 连接 echo 端口，连接成功或被拒绝都说明主机在线
func tcpEcho(ctx context.Context, host string) bool {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, "7"))
	if err == nil {
		conn.Close()
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
