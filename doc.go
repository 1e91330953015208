// Package imcmsg 提供无代理的 IMC 消息路由与发现
//
// 独立的进程（载具、控制台、传感器）通过 UDP 单播、UDP 组播/广播与 TCP
// 交换带类型的二进制消息，不依赖中心代理。imcmsg 负责传输生命周期、
// 周期性 Announce 发现、按系统维护的路由状态、分片与重组、传输选择与
// 失败切换，以及投递结果跟踪。
//
// # 快速开始
//
//	node, err := imcmsg.New(ctx,
//	    imcmsg.WithLocalID(0x4001),
//	    imcmsg.WithName("ccu-lsts-1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	node.AddListener(func(msg *imcmsg.Message, info imcmsg.MessageInfo) {
//	    fmt.Println(msg)
//	}, 0x4D15, nil)
//
//	res, err := node.SendBlocking(ctx, imcmsg.NewMessage("Heartbeat", nil), 0x4D15)
//
// # 投递结果
//
// 每次发送都以且仅以一个结果结束：
//
//   - success: UDP 写出成功，或 TCP 写出成功
//   - uncertain: 经组播/广播发出，无法确认
//   - unreachable: 没有可用的传输或地址
//   - timeout: 截止时间前没有结果（仅 TCP）
//   - error: 未启动、授权关闭、传输失败
//
// # 配置
//
// 配置可以来自文件（WithConfigFile，支持 JSON 与 YAML）、代码
// （WithConfig）或预设（WithPreset），单项选项在其后覆盖。
package imcmsg
