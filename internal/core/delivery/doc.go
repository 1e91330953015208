// Package delivery 跟踪出站消息的投递结果
//
// 每次发送对应一个 Pending，结果只能从 pending 转为终态一次（CAS），
// 监听器最多调用一次。截止时间由时钟定时器触发 timeout，之后到达的
// 结果被丢弃。Cancel 放弃等待并注销，不调用监听器。
//
// Future 在 Pending 之上提供阻塞等待：
//
//	f := delivery.NewFuture(p)
//	res, err := f.Wait(ctx)
package delivery
