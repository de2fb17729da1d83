package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(t.TempDir(), false)
	require.NoError(t, err)

	assert.True(t, cfg.PubSub.Enabled)
	assert.True(t, cfg.PubSub.PublishDataEvents)
	assert.False(t, cfg.PubSub.DebugTimeout)
	assert.False(t, cfg.Node.Router)
	assert.False(t, cfg.Node.Relay)
	assert.Equal(t, "localhost", cfg.Node.Host)
	assert.Equal(t, 0, cfg.Node.Port)
	assert.Empty(t, cfg.Cluster.RelayPeers)
}

func TestLoadIsSingleton(t *testing.T) {
	Reset()
	defer Reset()

	first, err := Load(t.TempDir(), false)
	require.NoError(t, err)
	second, err := Load(t.TempDir(), true)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first, Get())
}

func TestLoadEnvOverride(t *testing.T) {
	Reset()
	defer Reset()
	t.Setenv("DOCSTREAM_PUBSUB_ENABLED", "false")
	t.Setenv("DOCSTREAM_NODE_PORT", "27017")

	cfg, err := Load(t.TempDir(), false)
	require.NoError(t, err)
	assert.False(t, cfg.PubSub.Enabled)
	assert.Equal(t, 27017, cfg.Node.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "data node defaults",
			cfg:  Config{Node: NodeConfig{Host: "localhost"}},
		},
		{
			name: "router with relay peers",
			cfg: Config{
				Node:    NodeConfig{Router: true},
				Cluster: ClusterConfig{RelayPeers: []string{"cfg1:27019", "cfg2:27020"}},
			},
		},
		{
			name:    "router without relay peers",
			cfg:     Config{Node: NodeConfig{Router: true}},
			wantErr: true,
		},
		{
			name: "router and relay at once",
			cfg: Config{
				Node:    NodeConfig{Router: true, Relay: true},
				Cluster: ClusterConfig{RelayPeers: []string{"cfg1:27019"}},
			},
			wantErr: true,
		},
		{
			name: "malformed relay peer",
			cfg: Config{
				Cluster: ClusterConfig{RelayPeers: []string{"no-port-here"}},
			},
			wantErr: true,
		},
		{
			name:    "port out of range",
			cfg:     Config{Node: NodeConfig{Port: 70000}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := SplitHostPort("cfg1:27019")
	require.NoError(t, err)
	assert.Equal(t, "cfg1", host)
	assert.Equal(t, 27019, port)

	_, _, err = SplitHostPort("cfg1")
	assert.Error(t, err)

	_, _, err = SplitHostPort("cfg1:notaport")
	assert.Error(t, err)

	_, _, err = SplitHostPort("cfg1:0")
	assert.Error(t, err)
}
