// ConfigManager: node configuration with defaults, overrides, validation,
// multi-source merging, and runtime upgrade schedule management.
package node

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigManager errors.
var (
	ErrCfgMgrEmpty          = errors.New("config_manager: empty value")
	ErrCfgMgrInvalidPort    = errors.New("config_manager: invalid port number")
	ErrCfgMgrInvalidChainID = errors.New("config_manager: invalid genesis id")
	ErrCfgMgrInvalidSync    = errors.New("config_manager: invalid sync mode")
	ErrCfgMgrInvalidUpgrade = errors.New("config_manager: invalid runtime upgrade schedule")
	ErrCfgMgrConflict       = errors.New("config_manager: conflicting settings")
	ErrCfgMgrNoSlot         = errors.New("config_manager: babe requires a positive slot duration")
)

// ConfigSource identifies the origin of a configuration value.
type ConfigSource int

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = iota
	// SourceFile indicates a value loaded from a config file.
	SourceFile
	// SourceEnv indicates a value from an environment variable.
	SourceEnv
	// SourceCLI indicates a value from a command-line flag.
	SourceCLI
)

// String returns a human-readable name for the config source.
func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "env"
	case SourceCLI:
		return "cli"
	default:
		return "unknown"
	}
}

// NetworkConfig holds chain-level network configuration.
type NetworkConfig struct {
	// ChainID is the genesis identifier distinguishing mainnet/testnet/dev.
	ChainID uint64

	// GenesisHash is the hex-encoded genesis block hash.
	GenesisHash string

	// RuntimeUpgrades maps named runtime spec versions to the block number
	// at which they activate. Example: {"v2": 120000, "v3": 540000}.
	RuntimeUpgrades map[string]uint64
}

// SyncConfig holds synchronization configuration.
type SyncConfig struct {
	// Mode is the sync strategy: "full" or "warp".
	Mode string

	// MaxPeers is the maximum number of sync peers.
	MaxPeers int

	// ConnectTimeout is the peer connection timeout in seconds.
	ConnectTimeout int

	// EnableDiscovery enables peer discovery via DHT.
	EnableDiscovery bool
}

// ManagedRPCConfig holds websocket RPC push server configuration for the
// config manager.
type ManagedRPCConfig struct {
	// Enabled controls whether the RPC server is started.
	Enabled bool

	// Host is the bind address for the RPC server.
	Host string

	// Port is the TCP port for the RPC server.
	Port int

	// Subscriptions lists the event kinds clients may subscribe to.
	Subscriptions []string

	// CORSOrigins lists allowed CORS origins for the websocket upgrade.
	CORSOrigins []string

	// RateLimit is the max subscribe requests per second per client (0 = unlimited).
	RateLimit int
}

// ManagedBabeConfig holds BABE block authoring configuration.
type ManagedBabeConfig struct {
	// Enabled controls whether this node runs the BabeProducer loop.
	Enabled bool

	// SlotDuration is the length of one BABE slot, in milliseconds.
	SlotDuration uint64

	// C is the constant-probability parameter in (0, 1].
	C float64

	// AuthorityIndex is this node's index into the active authority set,
	// when Enabled.
	AuthorityIndex uint32
}

// ManagedConfig is the full configuration managed by ConfigManager.
type ManagedConfig struct {
	Network  NetworkConfig
	Sync     SyncConfig
	RPC      ManagedRPCConfig
	Babe     ManagedBabeConfig
	DataDir  string
	LogLevel string
}

// DefaultManagedConfig returns a ManagedConfig with sensible defaults.
func DefaultManagedConfig() *ManagedConfig {
	return &ManagedConfig{
		Network: NetworkConfig{
			ChainID:         1,
			GenesisHash:     "0xd4e56740f876aef8c010b86a40d5f56745a118d0906a34e69aec8c0db1cb8fa3",
			RuntimeUpgrades: map[string]uint64{},
		},
		Sync: SyncConfig{
			Mode:            "warp",
			MaxPeers:        50,
			ConnectTimeout:  30,
			EnableDiscovery: true,
		},
		RPC: ManagedRPCConfig{
			Enabled:       true,
			Host:          "127.0.0.1",
			Port:          9944,
			Subscriptions: []string{"newHead", "finalizedHead", "extrinsicStatus"},
			CORSOrigins:   nil,
			RateLimit:     0,
		},
		Babe: ManagedBabeConfig{
			Enabled:      false,
			SlotDuration: 6000,
			C:            0.25,
		},
		DataDir:  "",
		LogLevel: "info",
	}
}

// ConfigManager provides validated, multi-source configuration management.
type ConfigManager struct {
	base    *ManagedConfig
	sources map[string]ConfigSource // tracks where each field came from
}

// NewConfigManager creates a ConfigManager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		base:    DefaultManagedConfig(),
		sources: make(map[string]ConfigSource),
	}
}

// Config returns the current configuration.
func (cm *ConfigManager) Config() *ManagedConfig {
	return cm.base
}

// SetDataDir sets the data directory.
func (cm *ConfigManager) SetDataDir(dir string, source ConfigSource) {
	cm.base.DataDir = dir
	cm.sources["datadir"] = source
}

// SetLogLevel sets the log level.
func (cm *ConfigManager) SetLogLevel(level string, source ConfigSource) {
	cm.base.LogLevel = level
	cm.sources["loglevel"] = source
}

// SetNetworkConfig replaces the network configuration.
func (cm *ConfigManager) SetNetworkConfig(nc NetworkConfig, source ConfigSource) {
	cm.base.Network = nc
	cm.sources["network"] = source
}

// SetSyncConfig replaces the sync configuration.
func (cm *ConfigManager) SetSyncConfig(sc SyncConfig, source ConfigSource) {
	cm.base.Sync = sc
	cm.sources["sync"] = source
}

// SetRPCConfig replaces the RPC configuration.
func (cm *ConfigManager) SetRPCConfig(rc ManagedRPCConfig, source ConfigSource) {
	cm.base.RPC = rc
	cm.sources["rpc"] = source
}

// SetBabeConfig replaces the BABE authoring configuration.
func (cm *ConfigManager) SetBabeConfig(bc ManagedBabeConfig, source ConfigSource) {
	cm.base.Babe = bc
	cm.sources["babe"] = source
}

// Source returns the ConfigSource for a given field key.
func (cm *ConfigManager) Source(field string) ConfigSource {
	src, ok := cm.sources[field]
	if !ok {
		return SourceDefault
	}
	return src
}

// --- Validation ---

// ConfigValidator validates a ManagedConfig for correctness and consistency.
type ConfigValidator struct{}

// NewConfigValidator creates a new config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// Validate checks the full configuration. Returns all errors found.
func (cv *ConfigValidator) Validate(cfg *ManagedConfig) []error {
	var errs []error

	errs = append(errs, cv.validateNetwork(cfg.Network)...)
	errs = append(errs, cv.validateSync(cfg.Sync)...)
	errs = append(errs, cv.validateRPC(cfg.RPC)...)
	errs = append(errs, cv.validateBabe(cfg.Babe)...)

	if cfg.LogLevel != "" {
		switch cfg.LogLevel {
		case "debug", "info", "warn", "error", "trace":
		default:
			errs = append(errs, fmt.Errorf("unknown log level %q", cfg.LogLevel))
		}
	}

	// Cross-field validation: warp sync needs discovery to find a peer to
	// warp-sync from.
	if cfg.Sync.Mode == "warp" && !cfg.Sync.EnableDiscovery {
		errs = append(errs, fmt.Errorf("%w: warp sync requires discovery", ErrCfgMgrConflict))
	}

	// Babe authoring needs a positive slot duration.
	if cfg.Babe.Enabled && cfg.Babe.SlotDuration == 0 {
		errs = append(errs, ErrCfgMgrNoSlot)
	}

	return errs
}

func (cv *ConfigValidator) validateNetwork(nc NetworkConfig) []error {
	var errs []error
	if nc.ChainID == 0 {
		errs = append(errs, ErrCfgMgrInvalidChainID)
	}

	// Validate runtime upgrade ordering if multiple upgrades are scheduled.
	if len(nc.RuntimeUpgrades) > 1 {
		if err := validateUpgradeOrder(nc.RuntimeUpgrades); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (cv *ConfigValidator) validateSync(sc SyncConfig) []error {
	var errs []error
	switch sc.Mode {
	case "full", "warp":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrCfgMgrInvalidSync, sc.Mode))
	}
	if sc.MaxPeers < 0 {
		errs = append(errs, fmt.Errorf("max_peers must be >= 0"))
	}
	if sc.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be >= 0"))
	}
	return errs
}

func (cv *ConfigValidator) validateRPC(rc ManagedRPCConfig) []error {
	var errs []error
	if rc.Port < 0 || rc.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: rpc port %d", ErrCfgMgrInvalidPort, rc.Port))
	}
	if rc.Enabled && rc.Host == "" {
		errs = append(errs, fmt.Errorf("rpc host must not be empty when enabled"))
	}
	if rc.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rpc rate_limit must be >= 0"))
	}
	return errs
}

func (cv *ConfigValidator) validateBabe(bc ManagedBabeConfig) []error {
	var errs []error
	if bc.C <= 0 || bc.C > 1 {
		errs = append(errs, fmt.Errorf("babe c must be in (0, 1], got %v", bc.C))
	}
	return errs
}

// validateUpgradeOrder checks that known runtime upgrades activate in
// ascending block order.
func validateUpgradeOrder(upgrades map[string]uint64) error {
	// Known upgrade ordering (subset, illustrative of a real runtime's
	// release history).
	knownOrder := []string{
		"genesis", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9",
	}

	lastBlock := uint64(0)
	lastUpgrade := ""
	for _, name := range knownOrder {
		block, ok := upgrades[name]
		if !ok {
			continue
		}
		if block < lastBlock {
			return fmt.Errorf("%w: %s (block %d) before %s (block %d)",
				ErrCfgMgrInvalidUpgrade, name, block, lastUpgrade, lastBlock)
		}
		lastBlock = block
		lastUpgrade = name
	}
	return nil
}

// --- Config Merging ---

// ConfigMerge merges multiple configuration sources with precedence.
// Later sources override earlier ones. Sources are applied in order:
// default < file < env < CLI.
func ConfigMerge(configs ...*ManagedConfig) *ManagedConfig {
	if len(configs) == 0 {
		return DefaultManagedConfig()
	}

	result := DefaultManagedConfig()
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		mergeManagedConfig(result, cfg)
	}
	return result
}

// mergeManagedConfig applies non-zero values from src onto dst.
func mergeManagedConfig(dst, src *ManagedConfig) {
	// Network
	if src.Network.ChainID != 0 {
		dst.Network.ChainID = src.Network.ChainID
	}
	if src.Network.GenesisHash != "" {
		dst.Network.GenesisHash = src.Network.GenesisHash
	}
	if len(src.Network.RuntimeUpgrades) > 0 {
		dst.Network.RuntimeUpgrades = src.Network.RuntimeUpgrades
	}

	// Sync
	if src.Sync.Mode != "" {
		dst.Sync.Mode = src.Sync.Mode
	}
	if src.Sync.MaxPeers != 0 {
		dst.Sync.MaxPeers = src.Sync.MaxPeers
	}
	if src.Sync.ConnectTimeout != 0 {
		dst.Sync.ConnectTimeout = src.Sync.ConnectTimeout
	}
	if src.Sync.EnableDiscovery {
		dst.Sync.EnableDiscovery = true
	}

	// RPC
	if src.RPC.Enabled {
		dst.RPC.Enabled = true
	}
	if src.RPC.Host != "" {
		dst.RPC.Host = src.RPC.Host
	}
	if src.RPC.Port != 0 {
		dst.RPC.Port = src.RPC.Port
	}
	if len(src.RPC.Subscriptions) > 0 {
		dst.RPC.Subscriptions = src.RPC.Subscriptions
	}
	if len(src.RPC.CORSOrigins) > 0 {
		dst.RPC.CORSOrigins = src.RPC.CORSOrigins
	}
	if src.RPC.RateLimit != 0 {
		dst.RPC.RateLimit = src.RPC.RateLimit
	}

	// Babe
	if src.Babe.Enabled {
		dst.Babe.Enabled = true
	}
	if src.Babe.SlotDuration != 0 {
		dst.Babe.SlotDuration = src.Babe.SlotDuration
	}
	if src.Babe.C != 0 {
		dst.Babe.C = src.Babe.C
	}
	if src.Babe.AuthorityIndex != 0 {
		dst.Babe.AuthorityIndex = src.Babe.AuthorityIndex
	}

	// Top-level
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// --- Runtime Upgrade Schedule Helpers ---

// UpgradeSchedule provides helper methods for working with runtime upgrade
// activation blocks.
type UpgradeSchedule struct {
	upgrades map[string]uint64
}

// NewUpgradeSchedule creates an upgrade schedule from a map of spec name to
// activation block.
func NewUpgradeSchedule(upgrades map[string]uint64) *UpgradeSchedule {
	m := make(map[string]uint64, len(upgrades))
	for k, v := range upgrades {
		m[k] = v
	}
	return &UpgradeSchedule{upgrades: m}
}

// IsActive returns whether a named upgrade is active at the given block number.
func (us *UpgradeSchedule) IsActive(name string, block uint64) bool {
	activation, ok := us.upgrades[name]
	if !ok {
		return false
	}
	return block >= activation
}

// ActivationBlock returns the activation block for a named upgrade, or 0 and
// false if it is not in the schedule.
func (us *UpgradeSchedule) ActivationBlock(name string) (uint64, bool) {
	b, ok := us.upgrades[name]
	return b, ok
}

// ActiveUpgrades returns all upgrades active at the given block number.
func (us *UpgradeSchedule) ActiveUpgrades(block uint64) []string {
	var active []string
	for name, activation := range us.upgrades {
		if block >= activation {
			active = append(active, name)
		}
	}
	return active
}

// UpgradeCount returns the total number of upgrades in the schedule.
func (us *UpgradeSchedule) UpgradeCount() int {
	return len(us.upgrades)
}

// FormatUpgradeSchedule returns a human-readable string of the upgrade schedule.
func FormatUpgradeSchedule(upgrades map[string]uint64) string {
	if len(upgrades) == 0 {
		return "(empty)"
	}
	parts := make([]string, 0, len(upgrades))
	for name, block := range upgrades {
		parts = append(parts, fmt.Sprintf("%s@%d", name, block))
	}
	return strings.Join(parts, ", ")
}
