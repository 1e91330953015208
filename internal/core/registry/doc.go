// Package registry 维护已知系统的目录
//
// 每个系统标识至多一条记录，记录在首次收到 Announce 或路由到静态配置的
// 系统时建立，之后不再删除。目录本身只在插入与查找时加锁，记录更新由
// 各自的互斥锁串行化，不同系统可以并行更新。
//
// 另有一个按 IP（可选带端口）的二级索引，用于源标识无法解析时回退。
//
// 本机 ID 冲突以锁存状态报告：检测到后保持 20 秒，期间没有新的冲突则自动解除。
package registry
