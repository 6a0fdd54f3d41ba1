package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundler.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewConfig(t *testing.T) {
	path := writeConfig(t, `
environment: development
db_path: /tmp/test-bundler/db
metrics_addr: ":9100"
cleanup_interval_minutes: 5
chains:
  - chain_id: 1
    name: ethereum
    entry_point: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
  - chain_id: 11155111
    name: sepolia
    entry_point: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
    replace_after_minutes: 15
`)

	c, err := NewConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if c.DbPath != "/tmp/test-bundler/db" {
		t.Errorf("db path: %s", c.DbPath)
	}
	if c.MetricsAddr != ":9100" {
		t.Errorf("metrics addr: %s", c.MetricsAddr)
	}
	if c.CleanupInterval != 5*time.Minute {
		t.Errorf("cleanup interval: %s", c.CleanupInterval)
	}
	if c.Logger == nil {
		t.Error("logger not built")
	}

	if chain := c.GetChain(1); chain == nil || chain.Name != "ethereum" {
		t.Errorf("chain 1 lookup failed: %+v", chain)
	}
	if c.GetChain(999) != nil {
		t.Error("unknown chain should be nil")
	}

	// per chain override vs default
	if got := c.ReplaceAfter(11155111); got != 15*time.Minute {
		t.Errorf("sepolia replace window: %s", got)
	}
	if got := c.ReplaceAfter(1); got != DefaultReplaceAfter {
		t.Errorf("ethereum replace window: %s", got)
	}
	// unknown chains fall back to the default too
	if got := c.ReplaceAfter(999); got != DefaultReplaceAfter {
		t.Errorf("unknown chain replace window: %s", got)
	}
}

// The yaml tags on ConfigRaw are the file format; a marshaled ConfigRaw must
// load back identically.
func TestConfigRawRoundTrip(t *testing.T) {
	raw := ConfigRaw{
		Environment: "development",
		DbPath:      "/tmp/roundtrip/db",
		Chains: []ChainConfig{
			{
				ChainId:             8453,
				Name:                "base",
				EntryPoint:          "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
				ReplaceAfterMinutes: 20,
			},
		},
		CleanupIntervalMinutes: 7,
		MetricsAddr:            ":9200",
	}

	body, err := yaml.Marshal(&raw)
	if err != nil {
		t.Fatal(err)
	}

	c, err := NewConfig(writeConfig(t, string(body)))
	if err != nil {
		t.Fatal(err)
	}
	if c.DbPath != raw.DbPath {
		t.Errorf("db path: %s", c.DbPath)
	}
	if c.CleanupInterval != 7*time.Minute {
		t.Errorf("cleanup interval: %s", c.CleanupInterval)
	}
	if got := c.ReplaceAfter(8453); got != 20*time.Minute {
		t.Errorf("replace window: %s", got)
	}
}

func TestNewConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
chains:
  - chain_id: 1
    name: ethereum
    entry_point: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
`)

	c, err := NewConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.DbPath == "" || c.BackupDir == "" {
		t.Error("paths should default when omitted")
	}
	if c.CleanupInterval != DefaultCleanupInterval {
		t.Errorf("cleanup interval should default, got %s", c.CleanupInterval)
	}
}

func TestNewConfigRejectsBadInput(t *testing.T) {
	if _, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}

	if _, err := NewConfig(writeConfig(t, `db_path: /tmp/x`)); err == nil {
		t.Error("config without chains should error")
	}

	if _, err := NewConfig(writeConfig(t, `
chains:
  - chain_id: 1
    name: ethereum
    entry_point: "not-an-address"
`)); err == nil {
		t.Error("invalid entrypoint address should error")
	}

	if _, err := NewConfig(writeConfig(t, `
chains:
  - chain_id: 0
    name: ethereum
    entry_point: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
`)); err == nil {
		t.Error("zero chain id should error")
	}
}
