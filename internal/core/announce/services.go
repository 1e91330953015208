package announce

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/dep2p/go-imcmsg/internal/core/transport"
)

// 服务 URI 方案
const (
	SchemeUDP = "imc+udp"
	SchemeTCP = "imc+tcp"
	SchemeUID = "imcmsg"
)

// Endpoint 从服务 URI 解析出的地址
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// SplitServices 拆分以 ';' 分隔的服务列表
func SplitServices(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinServices 与 SplitServices 相反
func JoinServices(services []string) string {
	return strings.Join(services, ";")
}

// Endpoints 返回指定方案的全部地址，端口缺失或为 0 的项被忽略
func Endpoints(services []string, scheme string) []Endpoint {
	var out []Endpoint
	for _, s := range services {
		if !strings.HasPrefix(s, scheme+":") {
			continue
		}
		u, err := url.Parse(s)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(u.Port())
		if err != nil || port <= 0 || port > 65535 || u.Hostname() == "" {
			continue
		}
		out = append(out, Endpoint{Host: u.Hostname(), Port: port})
	}
	return out
}

// ServiceURI 构造 imc+udp:// 或 imc+tcp:// 服务
func ServiceURI(scheme, host string, port int) string {
	return fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(host, strconv.Itoa(port)))
}

// UIDService 构造实例 UID 服务
func UIDService(uid string) string {
	return SchemeUID + "://0.0.0.0/uid/" + uid + "/"
}

// UIDFromServices 提取实例 UID，没有则返回空串
func UIDFromServices(services []string) string {
	for _, s := range services {
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			continue
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && parts[0] == "uid" && parts[1] != "" {
			return parts[1]
		}
	}
	return ""
}

// TransportServices 为本机已绑定的传输生成服务列表
//
// 使用所有非回环 IPv4 地址，只有回环地址时才公布回环。端口为 0 表示未绑定。
func TransportServices(addrs []transport.InterfaceAddr, udpPort, tcpPort int) []string {
	var ips []string
	var loopback []string
	for _, a := range addrs {
		if a.Loopback || a.IP.IsLoopback() {
			loopback = append(loopback, a.IP.String())
			continue
		}
		ips = append(ips, a.IP.String())
	}
	if len(ips) == 0 {
		ips = loopback
	}
	if len(ips) == 0 {
		ips = []string{"127.0.0.1"}
	}

	var out []string
	for _, ip := range ips {
		if udpPort > 0 {
			out = append(out, ServiceURI(SchemeUDP, ip, udpPort))
		}
		if tcpPort > 0 {
			out = append(out, ServiceURI(SchemeTCP, ip, tcpPort))
		}
	}
	return out
}
