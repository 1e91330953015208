// Package router 将入站消息分派到系统通道
//
// 每条消息按以下顺序处理，第一个命中的步骤生效：
//
//  1. 来源为本机 ID：Announce 用于冲突检测后丢弃，其余发布到全局总线
//  2. MessagePart 交给重组器，完整后以重组结果继续
//  3. Announce 由发现处理器更新目录，然后进入解析链
//  4. 解析链依次尝试：已知 ID、静态配置（按需建立记录）、
//     来源地址索引、转给第一个已知系统（可配置）
//  5. 全部失败时发布 EvtUnroutedMessage
//
// 入站消息先经分片工作池排队，同一来源地址的消息保持顺序。
package router
