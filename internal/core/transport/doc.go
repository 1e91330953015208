// Package transport 定义传输层的公共部分
//
// 三种传输各自实现于子包：
//
//   - udp:       UDP 单播
//   - multicast: UDP 组播与广播，共用一个套接字
//   - tcp:       TCP，带连接缓存与空闲回收
//
// 每种传输在 Start 时绑定端口，被占用则依次尝试后续端口；全部失败时返回
// ErrBindFailed，调用方据此禁用该传输而非中止启动。收到的帧由 Receiver 解码，
// 解码失败的帧在这里被丢弃，不会进入路由。
package transport
