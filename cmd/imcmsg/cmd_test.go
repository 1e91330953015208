package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imcmsg "github.com/dep2p/go-imcmsg"
)

// execute 以 args 运行根命令，每次运行前恢复所有参数的默认值
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	root := RootCmd()
	root.PersistentFlags().VisitAll(reset)
	for _, c := range root.Commands() {
		c.Flags().VisitAll(reset)
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, imcmsg.Version)
	t.Log("✅ version 命令测试通过")
}

func TestSend_InvalidDestination(t *testing.T) {
	_, err := execute(t, "send", "--kind", "Heartbeat")
	assert.Error(t, err)

	_, err = execute(t, "send", "--to", "0xFFFF")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "保留")

	_, err = execute(t, "send", "--to", "vehicle")
	assert.Error(t, err)
	t.Log("✅ send 目标校验测试通过")
}

func TestBuildOptions(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(RootCmd().PersistentFlags())

	cases := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"默认", nil, false},
		{"预设与标识", []string{"--preset", "loopback", "--id", "0x4002", "--name", "ccu-test"}, false},
		{"未知预设", []string{"--preset", "mobile"}, true},
		{"无效标识", []string{"--id", "zz"}, true},
		{"无效日志级别", []string{"--log-level", "loud"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
			require.NoError(t, cmd.Flags().Parse(tc.args))
			_, err := buildOptions(cmd)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	t.Log("✅ 选项构建测试通过")
}

func TestBuildOptions_Env(t *testing.T) {
	t.Setenv(envPreset, "loopback")
	t.Setenv(envLocalID, "0x4003")
	t.Setenv(envName, "from-env")

	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(RootCmd().PersistentFlags())
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	opts, err := buildOptions(cmd)
	require.NoError(t, err)

	node, err := imcmsg.New(context.Background(), opts...)
	require.NoError(t, err)
	assert.Equal(t, imcmsg.PeerID(0x4003), node.ID())
	assert.Equal(t, "from-env", node.Name())
	assert.False(t, node.Config().Transport.EnableMulticast)

	t.Setenv(envUDPPort, "bad")
	_, err = buildOptions(cmd)
	assert.Error(t, err)

	t.Log("✅ 环境变量覆盖测试通过")
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "error"} {
		_, err := parseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLevel("verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose")
}
