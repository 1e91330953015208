// Package announce 实现基于 Announce 的系统发现
//
// Handler 处理入站 Announce：建立或更新系统记录，从公布的服务 URI
// 中为 UDP 与 TCP 各选出一个地址，并在需要时向对方查询实体列表。
//
// 地址选择顺序：
//
//  1. 与发送方 IP 相同且可达的公布地址
//  2. 第一个可达的公布地址
//  3. 第一个公布地址
//  4. 发送方 IP 加默认 UDP 端口（仅当对方未公布任何地址）
//
// 可达性探测有严格的时间上限，结果缓存一段时间，探测失败只会降低优先级。
//
// Broadcaster 周期性发送本机 Announce（组播、广播、可选的单播），
// 并定时发送实体列表查询与心跳。
package announce
