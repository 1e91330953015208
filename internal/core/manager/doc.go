// Package manager 组合传输、路由、发现与投递跟踪
//
// Manager 是上层使用的唯一入口：
//
//	m.Send(msg, 0x4D15)                       // 发出即忘
//	m.SendWithListener(msg, 0x4D15, onResult) // 回调
//	res, err := m.SendBlocking(ctx, msg, 0x4D15)
//	f := m.SendReliably(msg, 0x4D15)          // Future
//
// 发送前统一填写消息头：源 ID 总是本机，目标仅在未设置时填写，
// 时间戳总是当前时间。
//
// 传输选择：请求组播/广播时只走组播套接字，结果为 uncertain；
// 否则按配置的偏好顺序，过滤掉本机未绑定或对方未启用的传输，
// 显式指定的传输若仍在候选中则提到最前。候选为空时同步返回
// unreachable，不做任何 I/O。
package manager
