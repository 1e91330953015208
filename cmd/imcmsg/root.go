package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	imcmsg "github.com/dep2p/go-imcmsg"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("cmd")

// 环境变量，优先级低于命令行参数
const (
	envPreset  = "IMCMSG_PRESET"
	envLocalID = "IMCMSG_LOCAL_ID"
	envName    = "IMCMSG_NAME"
	envUDPPort = "IMCMSG_UDP_PORT"
)

var (
	cfgFile  string
	preset   string
	localID  string
	name     string
	udpPort  int
	tcpPort  int
	logLevel string
	logFile  string

	// 打开的日志文件，退出时关闭
	logHandle *os.File
)

var rootCmd = &cobra.Command{
	Use:   "imcmsg",
	Short: "IMC 消息节点：发现、路由与投递",
	Long: `imcmsg 在局域网内以 IMC 协议收发消息。
节点通过组播 Announce 发现彼此，按 UDP/TCP 偏好投递单播消息。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if logFile == "" {
			return nil
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		logHandle = f
		logger.SetOutput(f)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logHandle != nil {
			_ = logHandle.Close()
			logHandle = nil
		}
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// RootCmd 返回根命令，用于测试
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "配置文件路径（.json / .yaml）")
	f.StringVar(&preset, "preset", "", "预设 (console/vehicle/loopback)")
	f.StringVar(&localID, "id", "", "本机系统标识，如 0x4001")
	f.StringVar(&name, "name", "", "Announce 中公布的系统名")
	f.IntVar(&udpPort, "udp-port", -1, "UDP 端口（0 = 随机端口）")
	f.IntVar(&tcpPort, "tcp-port", -1, "TCP 端口（0 = 随机端口）")
	f.StringVar(&logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")
	f.StringVar(&logFile, "log", "", "日志文件路径，默认输出到 stderr")
}

// buildOptions 按 配置文件 < 预设 < 环境变量 < 命令行 的顺序合成节点选项
func buildOptions(cmd *cobra.Command) ([]imcmsg.Option, error) {
	var opts []imcmsg.Option

	if cfgFile != "" {
		opts = append(opts, imcmsg.WithConfigFile(cfgFile))
	}

	presetName := pick(cmd, "preset", preset, os.Getenv(envPreset))
	if presetName != "" {
		p, err := imcmsg.PresetByName(presetName)
		if err != nil {
			return nil, err
		}
		opts = append(opts, imcmsg.WithPreset(p))
	}

	if s := pick(cmd, "id", localID, os.Getenv(envLocalID)); s != "" {
		id, err := types.ParsePeerID(s)
		if err != nil {
			return nil, fmt.Errorf("--id: %w", err)
		}
		opts = append(opts, imcmsg.WithLocalID(id))
	}

	if s := pick(cmd, "name", name, os.Getenv(envName)); s != "" {
		opts = append(opts, imcmsg.WithName(s))
	}

	if cmd.Flags().Changed("udp-port") {
		opts = append(opts, imcmsg.WithUDPPort(udpPort))
	} else if v := os.Getenv(envUDPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envUDPPort, err)
		}
		opts = append(opts, imcmsg.WithUDPPort(port))
	}
	if cmd.Flags().Changed("tcp-port") {
		opts = append(opts, imcmsg.WithTCPPort(tcpPort))
	}

	if logLevel != "" {
		level, err := parseLevel(logLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, imcmsg.WithLogLevel(level))
	}
	return opts, nil
}

// pick 命令行显式设置时取 flagVal，否则取 envVal
func pick(cmd *cobra.Command, flagName, flagVal, envVal string) string {
	if cmd.Flags().Changed(flagName) {
		return flagVal
	}
	return envVal
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("无效日志级别 %q", s)
	}
	return level, nil
}
