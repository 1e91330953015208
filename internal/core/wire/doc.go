// Package wire 实现消息的二进制帧格式
//
// 帧 = 20 字节头 + 负载 + 2 字节 CRC-16/IBM 尾：
//
//	sync(2) mgid(2) size(2) timestamp(8) src(2) src_ent(1) dst(2) dst_ent(1)
//
// 写出时总是小端；读入时由同步字判断字节序，0x54FE 表示大端。
//
// 控制消息（Announce、Heartbeat、EntityList、EntityInfo、MessagePart）的负载
// 使用 protobuf 线格式编码，其余消息的负载对本包不透明。
package wire
