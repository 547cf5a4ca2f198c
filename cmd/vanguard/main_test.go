package main

import (
	"errors"
	"testing"

	"github.com/vanguardchain/vanguard/node"
)

// noopAction records that it ran but never boots a real node, so flag
// parsing can be tested in isolation.
func noopAction(invoked *bool) func(*node.Config) error {
	return func(*node.Config) error {
		*invoked = true
		return nil
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	var invoked bool
	cfg, err := parseFlags([]string{"vanguard"}, noopAction(&invoked))
	if err != nil {
		t.Fatalf("parseFlags error: %v", err)
	}
	if !invoked {
		t.Fatal("expected action to run")
	}

	defaults := node.DefaultConfig()
	if cfg.DataDir != defaults.DataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaults.DataDir)
	}
	if cfg.Chain != "dev" {
		t.Errorf("Chain = %q, want dev", cfg.Chain)
	}
	if cfg.P2PPort != 30333 {
		t.Errorf("P2PPort = %d, want 30333", cfg.P2PPort)
	}
	if cfg.RPCPort != 9944 {
		t.Errorf("RPCPort = %d, want 9944", cfg.RPCPort)
	}
	if cfg.SyncMode != "full" {
		t.Errorf("SyncMode = %q, want full", cfg.SyncMode)
	}
	if cfg.MaxPeers != 50 {
		t.Errorf("MaxPeers = %d, want 50", cfg.MaxPeers)
	}
	if cfg.Verbosity != 3 {
		t.Errorf("Verbosity = %d, want 3", cfg.Verbosity)
	}
	if cfg.Metrics {
		t.Error("Metrics should be false by default")
	}
}

func TestParseFlags_AllFlags(t *testing.T) {
	var invoked bool
	args := []string{
		"vanguard",
		"--datadir", "/tmp/vanguard-test",
		"--chain", "testnet",
		"--port", "30334",
		"--rpc.port", "9945",
		"--syncmode", "warp",
		"--maxpeers", "25",
		"--babe.slot-duration", "3000",
		"--grandpa.timeout", "10000",
		"--verbosity", "4",
		"--metrics",
	}

	cfg, err := parseFlags(args, noopAction(&invoked))
	if err != nil {
		t.Fatalf("parseFlags error: %v", err)
	}
	if !invoked {
		t.Fatal("expected action to run")
	}

	if cfg.DataDir != "/tmp/vanguard-test" {
		t.Errorf("DataDir = %q, want /tmp/vanguard-test", cfg.DataDir)
	}
	if cfg.Chain != "testnet" {
		t.Errorf("Chain = %q, want testnet", cfg.Chain)
	}
	if cfg.P2PPort != 30334 {
		t.Errorf("P2PPort = %d, want 30334", cfg.P2PPort)
	}
	if cfg.RPCPort != 9945 {
		t.Errorf("RPCPort = %d, want 9945", cfg.RPCPort)
	}
	if cfg.SyncMode != "warp" {
		t.Errorf("SyncMode = %q, want warp", cfg.SyncMode)
	}
	if cfg.MaxPeers != 25 {
		t.Errorf("MaxPeers = %d, want 25", cfg.MaxPeers)
	}
	if cfg.BabeSlotDuration != 3000 {
		t.Errorf("BabeSlotDuration = %d, want 3000", cfg.BabeSlotDuration)
	}
	if cfg.GrandpaLivenessTimeout != 10000 {
		t.Errorf("GrandpaLivenessTimeout = %d, want 10000", cfg.GrandpaLivenessTimeout)
	}
	if cfg.Verbosity != 4 {
		t.Errorf("Verbosity = %d, want 4", cfg.Verbosity)
	}
	if !cfg.Metrics {
		t.Error("Metrics should be true")
	}
}

func TestParseFlags_PartialOverride(t *testing.T) {
	var invoked bool
	cfg, err := parseFlags([]string{"vanguard", "--maxpeers", "100"}, noopAction(&invoked))
	if err != nil {
		t.Fatalf("parseFlags error: %v", err)
	}
	if cfg.MaxPeers != 100 {
		t.Errorf("MaxPeers = %d, want 100", cfg.MaxPeers)
	}
	// Everything else keeps its default.
	if cfg.P2PPort != 30333 {
		t.Errorf("P2PPort = %d, want 30333", cfg.P2PPort)
	}
	if cfg.SyncMode != "full" {
		t.Errorf("SyncMode = %q, want full", cfg.SyncMode)
	}
}

func TestParseFlags_Version(t *testing.T) {
	var invoked bool
	_, err := parseFlags([]string{"vanguard", "--version"}, noopAction(&invoked))
	if err != nil {
		t.Fatalf("unexpected error for --version: %v", err)
	}
	if invoked {
		t.Fatal("action should not run when --version short-circuits")
	}
}

func TestParseFlags_UnknownFlag(t *testing.T) {
	var invoked bool
	_, err := parseFlags([]string{"vanguard", "--does-not-exist"}, noopAction(&invoked))
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if invoked {
		t.Fatal("action should not run on a flag parse error")
	}
}

func TestRunNode_InvalidConfig(t *testing.T) {
	cfg := node.DefaultConfig()
	cfg.Chain = "nonsense"

	code := runNode(&cfg)
	if code != 1 {
		t.Errorf("runNode with invalid config: exit = %d, want 1", code)
	}
}

func TestRunNode_InvalidDataDir(t *testing.T) {
	cfg := node.DefaultConfig()
	cfg.DataDir = ""

	code := runNode(&cfg)
	if code != 1 {
		t.Errorf("runNode with empty datadir: exit = %d, want 1", code)
	}
}

func TestRun_InvalidFlagReturnsNonZero(t *testing.T) {
	code := run([]string{"vanguard", "--does-not-exist"})
	if code != 1 {
		t.Errorf("run() with bad flag: exit = %d, want 1", code)
	}
}

func TestAppFlags_BoundToDistinctConfigs(t *testing.T) {
	// Two independently-parsed configs must not share state through the
	// flag Destination pointers.
	var invoked1, invoked2 bool
	cfg1, err := parseFlags([]string{"vanguard", "--maxpeers", "5"}, noopAction(&invoked1))
	if err != nil {
		t.Fatal(err)
	}
	cfg2, err := parseFlags([]string{"vanguard", "--maxpeers", "9"}, noopAction(&invoked2))
	if err != nil {
		t.Fatal(err)
	}
	if cfg1.MaxPeers != 5 {
		t.Errorf("cfg1.MaxPeers = %d, want 5", cfg1.MaxPeers)
	}
	if cfg2.MaxPeers != 9 {
		t.Errorf("cfg2.MaxPeers = %d, want 9", cfg2.MaxPeers)
	}
}

func TestParseFlags_ActionError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := parseFlags([]string{"vanguard"}, func(*node.Config) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
