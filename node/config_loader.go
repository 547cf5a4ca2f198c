package node

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v2"
)

// NodeConfig holds the full configuration for a vanguard node, parsed from
// a YAML configuration file. It is separate from Config to support richer
// structured configuration with nested sections.
type NodeConfig struct {
	DataDir   string `yaml:"datadir"`
	GenesisID uint64 `yaml:"genesis_id"`
	SyncMode  string `yaml:"sync_mode"`

	P2P  P2PConfig  `yaml:"p2p"`
	RPC  RPCConfig  `yaml:"rpc"`
	Babe BabeConfig `yaml:"babe"`
	Log  LogConfig  `yaml:"log"`
}

// P2PConfig holds P2P networking configuration.
type P2PConfig struct {
	Port           int      `yaml:"port"`
	MaxPeers       int      `yaml:"max_peers"`
	BootstrapNodes []string `yaml:"bootstrap_nodes"`
}

// RPCConfig holds websocket RPC push server configuration.
type RPCConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	Subscriptions []string `yaml:"subscriptions"`
}

// BabeConfig holds block authoring configuration.
type BabeConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SlotDuration uint64  `yaml:"slot_duration"` // milliseconds
	C            float64 `yaml:"c"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultNodeConfig returns a NodeConfig with sensible defaults.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		DataDir:   defaultDataDir(),
		GenesisID: 1,
		SyncMode:  "warp",
		P2P: P2PConfig{
			Port:           30333,
			MaxPeers:       50,
			BootstrapNodes: nil,
		},
		RPC: RPCConfig{
			Enabled:       true,
			Host:          "127.0.0.1",
			Port:          9944,
			Subscriptions: []string{"newHead", "finalizedHead", "extrinsicStatus"},
		},
		Babe: BabeConfig{
			Enabled:      false,
			SlotDuration: 6000,
			C:            0.25,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ValidateNodeConfig checks the configuration for correctness.
func (nc *NodeConfig) ValidateNodeConfig() error {
	if nc.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if nc.GenesisID == 0 {
		return errors.New("config: genesis_id must be greater than 0")
	}
	switch nc.SyncMode {
	case "full", "warp":
	default:
		return fmt.Errorf("config: unknown sync_mode %q", nc.SyncMode)
	}

	// P2P validation.
	if nc.P2P.Port < 0 || nc.P2P.Port > 65535 {
		return fmt.Errorf("config: invalid p2p port: %d", nc.P2P.Port)
	}
	if nc.P2P.MaxPeers < 0 {
		return fmt.Errorf("config: invalid max_peers: %d", nc.P2P.MaxPeers)
	}

	// RPC validation.
	if nc.RPC.Port < 0 || nc.RPC.Port > 65535 {
		return fmt.Errorf("config: invalid rpc port: %d", nc.RPC.Port)
	}
	if nc.RPC.Enabled && nc.RPC.Host == "" {
		return errors.New("config: rpc host must not be empty when rpc is enabled")
	}

	// Babe validation.
	if nc.Babe.Enabled && nc.Babe.SlotDuration == 0 {
		return errors.New("config: babe slot_duration must be greater than 0 when babe is enabled")
	}
	if nc.Babe.C < 0 || nc.Babe.C > 1 {
		return fmt.Errorf("config: babe c must be in [0, 1], got %v", nc.Babe.C)
	}

	// Log validation.
	switch nc.Log.Level {
	case "debug", "info", "warn", "error", "trace":
	default:
		return fmt.Errorf("config: unknown log level %q", nc.Log.Level)
	}
	switch nc.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", nc.Log.Format)
	}

	return nil
}

// LoadConfig parses a YAML configuration document into a NodeConfig, laid
// atop DefaultNodeConfig so any field the document omits keeps its default.
func LoadConfig(data []byte) (*NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, nil
}

// MergeNodeConfig merges an override config onto a base config.
// Non-zero/non-empty values from override take priority over base.
func MergeNodeConfig(base, override *NodeConfig) *NodeConfig {
	result := *base

	if override.DataDir != "" {
		result.DataDir = override.DataDir
	}
	if override.GenesisID != 0 {
		result.GenesisID = override.GenesisID
	}
	if override.SyncMode != "" {
		result.SyncMode = override.SyncMode
	}

	// P2P
	if override.P2P.Port != 0 {
		result.P2P.Port = override.P2P.Port
	}
	if override.P2P.MaxPeers != 0 {
		result.P2P.MaxPeers = override.P2P.MaxPeers
	}
	if len(override.P2P.BootstrapNodes) > 0 {
		result.P2P.BootstrapNodes = override.P2P.BootstrapNodes
	}

	// RPC
	if override.RPC.Enabled {
		result.RPC.Enabled = true
	}
	if override.RPC.Host != "" {
		result.RPC.Host = override.RPC.Host
	}
	if override.RPC.Port != 0 {
		result.RPC.Port = override.RPC.Port
	}
	if len(override.RPC.Subscriptions) > 0 {
		result.RPC.Subscriptions = override.RPC.Subscriptions
	}

	// Babe
	if override.Babe.Enabled {
		result.Babe.Enabled = true
	}
	if override.Babe.SlotDuration != 0 {
		result.Babe.SlotDuration = override.Babe.SlotDuration
	}
	if override.Babe.C != 0 {
		result.Babe.C = override.Babe.C
	}

	// Log
	if override.Log.Level != "" {
		result.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		result.Log.Format = override.Log.Format
	}

	return &result
}
