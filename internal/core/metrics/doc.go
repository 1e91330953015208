// Package metrics 提供消息频率统计
//
// FrequencyCounter 以指数衰减估计事件速率：每次 MarkNow 使估计值
// 先按 exp(-dt/τ) 衰减再加上 1/τ，稳态下等于每秒事件数。
//
// 每个远端系统有三个计数器：收到、待发（尝试发送）、已发（确认交付），
// 另有全局的待发与已发计数器。Collector 将这些数据导出到 Prometheus。
//
//	c := metrics.NewFrequencyCounter(5*time.Second, clock.New())
//	c.MarkNow()
//	fmt.Printf("%.2f msg/s\n", c.Rate())
package metrics
