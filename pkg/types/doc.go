// Package types 定义 imcmsg 的公共数据结构
//
// 这是最底层的包，不依赖任何其他 imcmsg 内部包，所有类型都是值类型。
//
// # 文件组织
//
//   - ids.go      - PeerID 及其哨兵值
//   - message.go  - Header, Message, MessageInfo, TransportKind
//   - enums.go    - PeerKind, Authority, Outcome
//   - location.go - Location
//   - events.go   - 总线事件
//   - errors.go   - 公共错误
package types
