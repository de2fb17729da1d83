// Package config manages node configuration from config files, environment
// variables, and defaults.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/spf13/viper"
)

// PubSubConfig holds the messaging-plane switches.
type PubSubConfig struct {
	// Enabled is the master kill switch. When false every plane API call
	// is a no-op returning a disabled error.
	Enabled bool `json:"enabled"`

	// PublishDataEvents controls automatic publishing of data change
	// events by the storage layer.
	PublishDataEvents bool `json:"publishDataEvents"`

	// DebugTimeout shrinks the max poll window and the reaper interval
	// to 100ms so lifecycle behavior can be exercised in tests.
	DebugTimeout bool `json:"debugTimeout"`
}

// NodeConfig describes the role of this process in the cluster.
type NodeConfig struct {
	// Router selects the router topology: the node pushes published
	// messages to the relay cluster instead of publishing to peers.
	Router bool `json:"router"`

	// Relay marks the node as a relay peer aggregating router pushes.
	Relay bool `json:"relay"`

	// Host is the address peers use to reach this node.
	Host string `json:"host,omitempty"`

	// Port is the node's configured service port. The plane derives its
	// endpoints from it; on a data node 0 disables the TCP ingress
	// listener.
	Port int `json:"port,omitempty"`
}

// ClusterConfig lists the peers this node needs to know about at bootstrap.
type ClusterConfig struct {
	// RelayPeers are host:port entries for the relay cluster.
	RelayPeers []string `json:"relayPeers,omitempty"`
}

// Data defines storage configuration.
type Data struct {
	Directory string `json:"directory,omitempty"`
}

// Config is the main configuration structure for a node.
type Config struct {
	Data       Data          `json:"data"`
	WorkingDir string        `json:"wd,omitempty"`
	PubSub     PubSubConfig  `json:"pubsub"`
	Node       NodeConfig    `json:"node"`
	Cluster    ClusterConfig `json:"cluster"`
	Debug      bool          `json:"debug,omitempty"`
}

// Application constants
const (
	defaultDataDirectory = ".docstream"
	defaultLogLevel      = "info"
	appName              = "docstream"
)

// Global configuration instance
var (
	cfg *Config
	mu  sync.RWMutex // Thread safety lock
)

// Reset clears the global configuration.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cfg = nil
}

// Load initializes the configuration.
func Load(workingDir string, debug bool) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if cfg != nil {
		return cfg, nil
	}

	cfg = &Config{
		WorkingDir: workingDir,
	}

	configureViper()
	setDefaults(debug)

	// Read global config
	if err := readConfig(viper.ReadInConfig()); err != nil {
		return cfg, err
	}

	// Load and merge local config
	mergeLocalConfig(workingDir)

	// Apply configuration to the struct
	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Initialize logging
	if err := initLogging(debug); err != nil {
		return cfg, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Get returns the loaded configuration, or nil if Load has not run.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// configureViper sets up viper's configuration paths and environment variables.
func configureViper() {
	viper.Reset()
	viper.SetConfigName("." + appName)
	viper.SetConfigType("json")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, appName))
	}
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// setDefaults configures default values for configuration options.
func setDefaults(debug bool) {
	viper.SetDefault("data.directory", defaultDataDirectory)
	viper.SetDefault("debug", debug)
	viper.SetDefault("pubsub.enabled", true)
	viper.SetDefault("pubsub.publishDataEvents", true)
	viper.SetDefault("pubsub.debugTimeout", false)
	viper.SetDefault("node.router", false)
	viper.SetDefault("node.relay", false)
	viper.SetDefault("node.host", "localhost")
	viper.SetDefault("node.port", 0)
}

// readConfig handles the result of reading a configuration file.
func readConfig(err error) error {
	if err == nil {
		return nil
	}
	// It's okay if the config file doesn't exist
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}
	return fmt.Errorf("failed to read config: %w", err)
}

// mergeLocalConfig loads and merges a project-local configuration file.
func mergeLocalConfig(workingDir string) {
	local := viper.New()
	local.SetConfigName("." + appName)
	local.SetConfigType("json")
	local.AddConfigPath(workingDir)

	if err := local.ReadInConfig(); err == nil {
		viper.MergeConfigMap(local.AllSettings())
	}
}

// initLogging handles logger initialization.
func initLogging(debug bool) error {
	defaultLevel := slog.LevelInfo
	if cfg.Debug || debug {
		defaultLevel = slog.LevelDebug
	}

	handler := logging.NewHandler(os.Stderr, defaultLevel)
	logging.SetDefault(handler)
	slog.SetDefault(slog.New(handler))
	return nil
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Node.Router && c.Node.Relay {
		return fmt.Errorf("node cannot be both a router and a relay peer")
	}
	if c.Node.Router && len(c.Cluster.RelayPeers) == 0 {
		return fmt.Errorf("router requires at least one relay peer")
	}
	for _, peer := range c.Cluster.RelayPeers {
		if _, _, err := SplitHostPort(peer); err != nil {
			return fmt.Errorf("invalid relay peer %q: %w", peer, err)
		}
	}
	if c.Node.Port < 0 || c.Node.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Node.Port)
	}
	return nil
}

// SplitHostPort parses a host:port entry into its parts.
func SplitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("port %d out of range", port)
	}
	return host, port, nil
}
