package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	imcmsg "github.com/dep2p/go-imcmsg"
)

var metricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "运行节点，打印新发现的系统",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := buildOptions(cmd)
		if err != nil {
			return fmt.Errorf("配置错误: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		node, err := imcmsg.Start(ctx, opts...)
		if err != nil {
			return err
		}
		defer func() { _ = node.Close() }()

		out := cmd.OutOrStdout()
		printNodeInfo(out, node)

		if err := node.OnPeerDiscovered(func(evt imcmsg.EvtPeerDiscovered) {
			fmt.Fprintf(out, "发现系统: %s %q (%s)\n", evt.ID, evt.Name, evt.Kind)
		}); err != nil {
			return err
		}
		if err := node.OnIDConflict(func(evt imcmsg.EvtIDConflict) {
			fmt.Fprintf(out, "⚠️  ID 冲突: %s (本机: %t)\n", evt.RemoteIP, evt.SameHost)
		}); err != nil {
			return err
		}

		if metricsAddr != "" {
			srv := serveMetrics(node, metricsAddr)
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
			fmt.Fprintf(out, "指标: http://%s/metrics\n", metricsAddr)
		}

		fmt.Fprintln(out, "节点已启动，按 Ctrl+C 退出")
		<-ctx.Done()
		fmt.Fprintln(out, "\n正在关闭节点...")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus 指标监听地址，如 :9464")
	rootCmd.AddCommand(runCmd)
}

// serveMetrics 在 addr 上暴露 /metrics
func serveMetrics(node *imcmsg.Node, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(node.PrometheusRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("指标服务退出", "addr", addr, "error", err)
		}
	}()
	return srv
}

// printNodeInfo 打印节点标识与端口
func printNodeInfo(w io.Writer, node *imcmsg.Node) {
	fmt.Fprintf(w, "📦 %s\n", imcmsg.VersionInfo())
	fmt.Fprintf(w, "系统: %s %q\n", node.ID(), node.Name())
	fmt.Fprintf(w, "实例: %s\n", node.UID())

	ports := node.TransportPorts()
	kinds := make([]imcmsg.TransportKind, 0, len(ports))
	for k := range ports {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-9s %d\n", k, ports[k])
	}
}
