package common

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestConfigureCLI(t *testing.T) {
	cmd := &cobra.Command{Use: "testd"}
	v := viper.New()

	ConfigureCLI(v, "TESTD", []Flag{
		{Name: "listen-addr", DefValue: ":8600", Description: "listen address"},
		{Name: "auction-duration", DefValue: time.Second * 10, Description: "auction duration"},
		{Name: "log-debug", DefValue: false, Description: "debug logging"},
	}, cmd)

	require.NotNil(t, cmd.Flags().Lookup("listen-addr"))
	require.NotNil(t, cmd.Flags().Lookup("auction-duration"))
	require.Equal(t, ":8600", v.GetString("listen-addr"))
	require.Equal(t, time.Second*10, v.GetDuration("auction-duration"))
	require.False(t, v.GetBool("log-debug"))
}

func TestConfigureCLIEnvOverride(t *testing.T) {
	t.Setenv("TESTD_LISTEN_ADDR", ":9999")

	cmd := &cobra.Command{Use: "testd"}
	v := viper.New()
	ConfigureCLI(v, "TESTD", []Flag{
		{Name: "listen-addr", DefValue: ":8600", Description: "listen address"},
	}, cmd)

	require.Equal(t, ":9999", v.GetString("listen-addr"))
}

func TestMarshalConfigMasksSecrets(t *testing.T) {
	v := viper.New()
	v.SetDefault("listen-addr", ":8600")
	v.SetDefault("evaluator-api-key", "sk-very-secret")

	out, err := MarshalConfig(v)
	require.NoError(t, err)
	require.Contains(t, string(out), ":8600")
	require.Contains(t, string(out), "***")
	require.NotContains(t, string(out), "sk-very-secret")
}
