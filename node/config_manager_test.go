package node

import (
	"strings"
	"testing"
)

// --- ConfigManager Tests ---

func TestNewConfigManager(t *testing.T) {
	cm := NewConfigManager()
	cfg := cm.Config()
	if cfg == nil {
		t.Fatal("Config() is nil")
	}
	if cfg.Network.ChainID != 1 {
		t.Errorf("ChainID = %d, want 1", cfg.Network.ChainID)
	}
	if cfg.Sync.Mode != "warp" {
		t.Errorf("Sync.Mode = %q, want warp", cfg.Sync.Mode)
	}
}

func TestConfigManagerSetDataDir(t *testing.T) {
	cm := NewConfigManager()
	cm.SetDataDir("/data/vanguard", SourceCLI)

	if cm.Config().DataDir != "/data/vanguard" {
		t.Errorf("DataDir = %q, want /data/vanguard", cm.Config().DataDir)
	}
	if cm.Source("datadir") != SourceCLI {
		t.Errorf("source = %v, want CLI", cm.Source("datadir"))
	}
}

func TestConfigManagerSetLogLevel(t *testing.T) {
	cm := NewConfigManager()
	cm.SetLogLevel("debug", SourceEnv)

	if cm.Config().LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cm.Config().LogLevel)
	}
	if cm.Source("loglevel") != SourceEnv {
		t.Errorf("source = %v, want Env", cm.Source("loglevel"))
	}
}

func TestConfigManagerSetNetworkConfig(t *testing.T) {
	cm := NewConfigManager()
	cm.SetNetworkConfig(NetworkConfig{
		ChainID:     11155111,
		GenesisHash: "0x25a5cc106eea7138acab33231d7160d69cb777ee0c2c553fcddf5138993e6dd9",
	}, SourceFile)

	cfg := cm.Config()
	if cfg.Network.ChainID != 11155111 {
		t.Errorf("ChainID = %d, want 11155111", cfg.Network.ChainID)
	}
}

func TestConfigManagerSetSyncConfig(t *testing.T) {
	cm := NewConfigManager()
	cm.SetSyncConfig(SyncConfig{
		Mode:            "full",
		MaxPeers:        100,
		ConnectTimeout:  60,
		EnableDiscovery: true,
	}, SourceCLI)

	cfg := cm.Config()
	if cfg.Sync.Mode != "full" {
		t.Errorf("Sync.Mode = %q, want full", cfg.Sync.Mode)
	}
	if cfg.Sync.MaxPeers != 100 {
		t.Errorf("Sync.MaxPeers = %d, want 100", cfg.Sync.MaxPeers)
	}
}

func TestConfigManagerSetRPCConfig(t *testing.T) {
	cm := NewConfigManager()
	cm.SetRPCConfig(ManagedRPCConfig{
		Enabled:       true,
		Host:          "0.0.0.0",
		Port:          9945,
		Subscriptions: []string{"newHead", "extrinsicStatus"},
		RateLimit:     100,
	}, SourceFile)

	cfg := cm.Config()
	if cfg.RPC.Port != 9945 {
		t.Errorf("RPC.Port = %d, want 9945", cfg.RPC.Port)
	}
	if cfg.RPC.RateLimit != 100 {
		t.Errorf("RPC.RateLimit = %d, want 100", cfg.RPC.RateLimit)
	}
}

func TestConfigManagerSetBabeConfig(t *testing.T) {
	cm := NewConfigManager()
	cm.SetBabeConfig(ManagedBabeConfig{
		Enabled:        true,
		SlotDuration:   3000,
		C:              0.5,
		AuthorityIndex: 2,
	}, SourceCLI)

	cfg := cm.Config()
	if cfg.Babe.SlotDuration != 3000 {
		t.Errorf("Babe.SlotDuration = %d, want 3000", cfg.Babe.SlotDuration)
	}
	if !cfg.Babe.Enabled {
		t.Error("Babe.Enabled should be true")
	}
	if cfg.Babe.AuthorityIndex != 2 {
		t.Errorf("Babe.AuthorityIndex = %d, want 2", cfg.Babe.AuthorityIndex)
	}
}

func TestConfigManagerSourceDefault(t *testing.T) {
	cm := NewConfigManager()
	if cm.Source("unset_field") != SourceDefault {
		t.Errorf("unset field should have source Default")
	}
}

func TestConfigSourceString(t *testing.T) {
	tests := []struct {
		src  ConfigSource
		want string
	}{
		{SourceDefault, "default"},
		{SourceFile, "file"},
		{SourceEnv, "env"},
		{SourceCLI, "cli"},
		{ConfigSource(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.src.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.src, got, tt.want)
		}
	}
}

// --- ConfigValidator Tests ---

func TestConfigValidatorDefaultConfig(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()

	errs := cv.Validate(cfg)
	if len(errs) != 0 {
		t.Fatalf("default config should validate, got %v", errs)
	}
}

func TestConfigValidatorInvalidChainID(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.Network.ChainID = 0

	errs := cv.Validate(cfg)
	hasChainErr := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "genesis id") {
			hasChainErr = true
		}
	}
	if !hasChainErr {
		t.Error("should report invalid genesis id")
	}
}

func TestConfigValidatorInvalidSyncMode(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.Sync.Mode = "turbo"

	errs := cv.Validate(cfg)
	hasSyncErr := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "sync") {
			hasSyncErr = true
		}
	}
	if !hasSyncErr {
		t.Error("should report invalid sync mode")
	}
}

func TestConfigValidatorInvalidRPCPort(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.RPC.Port = -1

	errs := cv.Validate(cfg)
	hasPortErr := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "port") {
			hasPortErr = true
		}
	}
	if !hasPortErr {
		t.Error("should report invalid RPC port")
	}
}

func TestConfigValidatorInvalidBabeC(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.Babe.C = 1.5

	errs := cv.Validate(cfg)
	hasCErr := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "babe c") {
			hasCErr = true
		}
	}
	if !hasCErr {
		t.Error("should report invalid babe c")
	}
}

func TestConfigValidatorWarpSyncNeedsDiscovery(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.Sync.Mode = "warp"
	cfg.Sync.EnableDiscovery = false

	errs := cv.Validate(cfg)
	hasConflict := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "warp sync requires discovery") {
			hasConflict = true
		}
	}
	if !hasConflict {
		t.Error("should detect warp sync + no discovery conflict")
	}
}

func TestConfigValidatorBabeNeedsSlotDuration(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.Babe.Enabled = true
	cfg.Babe.SlotDuration = 0

	errs := cv.Validate(cfg)
	hasSlotErr := false
	for _, err := range errs {
		if err == ErrCfgMgrNoSlot {
			hasSlotErr = true
		}
	}
	if !hasSlotErr {
		t.Error("should detect missing slot duration when babe enabled")
	}
}

func TestConfigValidatorInvalidLogLevel(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.LogLevel = "verbose"

	errs := cv.Validate(cfg)
	hasLogErr := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "log level") {
			hasLogErr = true
		}
	}
	if !hasLogErr {
		t.Error("should detect invalid log level")
	}
}

func TestConfigValidatorUpgradeOrder(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.Network.RuntimeUpgrades = map[string]uint64{
		"v2": 12965000,
		"v3": 15537393,
		"v4": 10000000, // before v3: invalid
	}

	errs := cv.Validate(cfg)
	hasUpgradeErr := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "runtime upgrade") {
			hasUpgradeErr = true
		}
	}
	if !hasUpgradeErr {
		t.Error("should detect runtime upgrade ordering error")
	}
}

func TestConfigValidatorValidUpgradeOrder(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultManagedConfig()
	cfg.Network.RuntimeUpgrades = map[string]uint64{
		"v2": 12965000,
		"v3": 15537393,
		"v4": 19426587,
	}

	errs := cv.Validate(cfg)
	if len(errs) != 0 {
		t.Errorf("valid upgrade order should pass: %v", errs)
	}
}

// --- ConfigMerge Tests ---

func TestConfigMergeEmpty(t *testing.T) {
	result := ConfigMerge()
	if result.Network.ChainID != 1 {
		t.Errorf("ChainID = %d, want 1 (default)", result.Network.ChainID)
	}
}

func TestConfigMergeNil(t *testing.T) {
	result := ConfigMerge(nil, nil)
	if result.Sync.Mode != "warp" {
		t.Errorf("Mode = %q, want warp (default)", result.Sync.Mode)
	}
}

func TestConfigMergeSingle(t *testing.T) {
	override := &ManagedConfig{
		DataDir:  "/override",
		LogLevel: "debug",
	}
	result := ConfigMerge(override)
	if result.DataDir != "/override" {
		t.Errorf("DataDir = %q, want /override", result.DataDir)
	}
	if result.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", result.LogLevel)
	}
}

func TestConfigMergeMultiple(t *testing.T) {
	file := &ManagedConfig{
		Network: NetworkConfig{ChainID: 5},
		Sync:    SyncConfig{Mode: "full"},
	}
	cli := &ManagedConfig{
		DataDir:  "/cli/path",
		LogLevel: "error",
	}

	result := ConfigMerge(file, cli)
	if result.Network.ChainID != 5 {
		t.Errorf("ChainID = %d, want 5 (from file)", result.Network.ChainID)
	}
	if result.Sync.Mode != "full" {
		t.Errorf("Mode = %q, want full (from file)", result.Sync.Mode)
	}
	if result.DataDir != "/cli/path" {
		t.Errorf("DataDir = %q, want /cli/path (from cli)", result.DataDir)
	}
	if result.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (from cli)", result.LogLevel)
	}
}

func TestConfigMergePreservesDefaults(t *testing.T) {
	override := &ManagedConfig{
		DataDir: "/data",
	}
	result := ConfigMerge(override)

	// Fields not in override should be defaults.
	if result.RPC.Port != 9944 {
		t.Errorf("RPC.Port = %d, want 9944 (default)", result.RPC.Port)
	}
	if result.Babe.SlotDuration != 6000 {
		t.Errorf("Babe.SlotDuration = %d, want 6000 (default)", result.Babe.SlotDuration)
	}
}

func TestConfigMergeLaterOverridesEarlier(t *testing.T) {
	first := &ManagedConfig{DataDir: "/first"}
	second := &ManagedConfig{DataDir: "/second"}

	result := ConfigMerge(first, second)
	if result.DataDir != "/second" {
		t.Errorf("DataDir = %q, want /second", result.DataDir)
	}
}

// --- Runtime Upgrade Schedule Tests ---

func TestUpgradeScheduleIsActive(t *testing.T) {
	us := NewUpgradeSchedule(map[string]uint64{
		"v2": 12965000,
		"v3": 15537393,
	})

	if us.IsActive("v2", 12964999) {
		t.Error("v2 should not be active before block 12965000")
	}
	if !us.IsActive("v2", 12965000) {
		t.Error("v2 should be active at block 12965000")
	}
	if !us.IsActive("v2", 13000000) {
		t.Error("v2 should be active after block 12965000")
	}
	if us.IsActive("unknown", 99999999) {
		t.Error("unknown upgrade should not be active")
	}
}

func TestUpgradeScheduleActivationBlock(t *testing.T) {
	us := NewUpgradeSchedule(map[string]uint64{
		"v2": 12965000,
	})

	block, ok := us.ActivationBlock("v2")
	if !ok || block != 12965000 {
		t.Errorf("v2 activation = %d, ok=%v", block, ok)
	}

	_, ok = us.ActivationBlock("unknown")
	if ok {
		t.Error("unknown upgrade should not have activation block")
	}
}

func TestUpgradeScheduleActiveUpgrades(t *testing.T) {
	us := NewUpgradeSchedule(map[string]uint64{
		"v2": 12965000,
		"v3": 15537393,
		"v4": 19426587,
	})

	active := us.ActiveUpgrades(15600000)
	if len(active) != 2 {
		t.Errorf("active upgrades = %d, want 2", len(active))
	}

	// Check v2 and v3 are active.
	hasV2, hasV3 := false, false
	for _, u := range active {
		if u == "v2" {
			hasV2 = true
		}
		if u == "v3" {
			hasV3 = true
		}
	}
	if !hasV2 || !hasV3 {
		t.Errorf("expected v2 and v3, got %v", active)
	}
}

func TestUpgradeScheduleCount(t *testing.T) {
	us := NewUpgradeSchedule(map[string]uint64{
		"v2": 12965000,
		"v3": 15537393,
	})
	if us.UpgradeCount() != 2 {
		t.Errorf("UpgradeCount() = %d, want 2", us.UpgradeCount())
	}
}

func TestFormatUpgradeScheduleEmpty(t *testing.T) {
	result := FormatUpgradeSchedule(map[string]uint64{})
	if result != "(empty)" {
		t.Errorf("FormatUpgradeSchedule({}) = %q, want (empty)", result)
	}
}

func TestFormatUpgradeScheduleNonEmpty(t *testing.T) {
	result := FormatUpgradeSchedule(map[string]uint64{"v2": 12965000})
	if !strings.Contains(result, "v2@12965000") {
		t.Errorf("FormatUpgradeSchedule should contain v2@12965000, got %q", result)
	}
}
