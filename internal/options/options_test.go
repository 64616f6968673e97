package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	opts, err := Parse([]string{"-resolver", "1.1.1.1:53"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", opts.ListenAddress)
	assert.Equal(t, uint16(53), opts.ListenPort)
	assert.False(t, opts.Verbose)
	assert.Equal(t, DefaultConfigPath, opts.ConfigPath)
	assert.Equal(t, 4, opts.Threads)
	assert.Equal(t, "1.1.1.1:53", opts.Resolver)
	assert.Equal(t, "0.0.0.0:53", opts.ListenAddr())
	assert.Empty(t, opts.MetricsAddr)
}

func TestParse_MetricsAddr(t *testing.T) {
	opts, err := Parse([]string{"-resolver", "1.1.1.1:53", "-metrics-addr", ":9090"})
	require.NoError(t, err)
	assert.Equal(t, ":9090", opts.MetricsAddr)
}

func TestParse_OverridesAndThreadValidation(t *testing.T) {
	opts, err := Parse([]string{
		"-listen-address", "127.0.0.1",
		"-listen-port", "5353",
		"-verbose",
		"-threads", "8",
		"-resolver", "9.9.9.9:53",
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", opts.ListenAddress)
	assert.Equal(t, uint16(5353), opts.ListenPort)
	assert.True(t, opts.Verbose)
	assert.Equal(t, 8, opts.Threads)

	_, err = Parse([]string{"-threads", "0", "-resolver", "9.9.9.9:53"})
	assert.Error(t, err)
}
