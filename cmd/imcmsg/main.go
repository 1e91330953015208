// Package main 提供 imcmsg 命令行入口
//
//	imcmsg run --preset console --id 0x4001 --metrics-addr :9464
//	imcmsg send --to 0x4D15 --kind Heartbeat --reliable
//	imcmsg version
package main

func main() {
	Execute()
}
