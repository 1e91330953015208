package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	imcmsg "github.com/dep2p/go-imcmsg"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var (
	sendTo        string
	sendKind      string
	sendKindID    uint16
	sendPayload   string
	sendReliable  bool
	sendMulticast bool
	sendWait      time.Duration
)

var errNotDiscovered = errors.New("目标系统未被发现")

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "启动节点，等待发现目标后发送一条消息",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dst, err := parseDestination()
		if err != nil {
			return err
		}

		opts, err := buildOptions(cmd)
		if err != nil {
			return fmt.Errorf("配置错误: %w", err)
		}
		if sendKindID != 0 {
			opts = append(opts, imcmsg.WithMessageKind(sendKind, sendKindID))
		}

		ctx := cmd.Context()
		node, err := imcmsg.Start(ctx, opts...)
		if err != nil {
			return err
		}
		defer func() { _ = node.Close() }()

		msg := imcmsg.NewMessage(sendKind, []byte(sendPayload))
		out := cmd.OutOrStdout()

		if sendMulticast {
			ok := node.Send(msg, dst, imcmsg.WithMulticast())
			fmt.Fprintf(out, "组播发送: %t\n", ok)
			return nil
		}

		if err := waitForPeer(ctx, node, dst, sendWait); err != nil {
			return err
		}

		if !sendReliable {
			ok := node.Send(msg, dst)
			fmt.Fprintf(out, "已交给传输: %t\n", ok)
			return nil
		}
		res, err := node.SendBlocking(ctx, msg, dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "投递结果: %s via %s\n", res.Outcome, res.Transport)
		if res.Err != nil {
			return res.Err
		}
		return nil
	},
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendTo, "to", "", "目标系统标识，如 0x4D15")
	f.StringVar(&sendKind, "kind", "Heartbeat", "消息类型名")
	f.Uint16Var(&sendKindID, "kind-id", 0, "应用消息类型编号，非控制消息时必填")
	f.StringVar(&sendPayload, "payload", "", "消息负载（原样发送）")
	f.BoolVar(&sendReliable, "reliable", false, "等待投递结果")
	f.BoolVar(&sendMulticast, "multicast", false, "经组播发送，不等待发现")
	f.DurationVar(&sendWait, "wait", 10*time.Second, "等待发现目标的最长时间")
	rootCmd.AddCommand(sendCmd)
}

func parseDestination() (imcmsg.PeerID, error) {
	if sendMulticast && sendTo == "" {
		return imcmsg.NullID, nil
	}
	if sendTo == "" {
		return imcmsg.NullID, errors.New("--to 不能为空")
	}
	dst, err := types.ParsePeerID(sendTo)
	if err != nil {
		return imcmsg.NullID, fmt.Errorf("--to: %w", err)
	}
	if !dst.IsValidSource() {
		return imcmsg.NullID, fmt.Errorf("--to: %s 为保留标识", dst)
	}
	return dst, nil
}

// waitForPeer 等待目标出现在目录中；配置了静态地址的系统无需等待
func waitForPeer(ctx context.Context, node *imcmsg.Node, dst imcmsg.PeerID, wait time.Duration) error {
	if _, ok := node.Config().KnownPeer(dst); ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if rec, ok := node.LookupPeer(dst); ok && (rec.CanUDP() || rec.CanTCP()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", errNotDiscovered, dst)
		case <-ticker.C:
		}
	}
}
