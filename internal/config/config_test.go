package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
node:
  id: n1
  address: 10.5.1.7:5001
peers:
  - {id: n2, address: "10.5.1.1"}
  - {id: n3, address: "10.5.1.2"}
  - {id: n4, address: "10.5.1.4"}
clusters:
  a: ["10.5.1.1", "10.5.1.2"]
  b: ["10.5.1.4"]
genesis:
  "0x00000000000000000000000000000000000000a1": 100000000000
phase_gate:
  poll_interval: 5ms
attack:
  destination_a: "0x00000000000000000000000000000000000000d1"
  destination_b: "0x00000000000000000000000000000000000000d2"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "n1", cfg.Node.ID)
	assert.Len(t, cfg.Peers, 3)
	assert.Equal(t, []string{"10.5.1.4"}, cfg.Clusters.B)
	assert.Equal(t, 5*time.Millisecond, cfg.PhaseGate.PollInterval)

	// defaults survive for keys the file does not set
	assert.Equal(t, 5*time.Second, cfg.PhaseGate.MaxWait)
	assert.Equal(t, []string{"establish", "open"}, cfg.Attack.Phases)
	assert.True(t, cfg.CheckSigs)
	assert.Len(t, cfg.GenesisAccounts(), 1)
}

func TestParseConfigEnvOverride(t *testing.T) {
	t.Setenv("LEDGER_CHECK_SIGS", "false")
	t.Setenv("LEDGER_PHASE_MAX_WAIT", "250ms")
	t.Setenv("LEDGER_ADMINS", "127.0.0.1,10.5.1.9")

	cfg, err := ParseConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.False(t, cfg.CheckSigs)
	assert.Equal(t, 250*time.Millisecond, cfg.PhaseGate.MaxWait)
	assert.Equal(t, []string{"127.0.0.1", "10.5.1.9"}, cfg.Admins)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("LEDGER_PHASE_MAX_WAIT", "soon")
	_, err := ParseConfig(writeConfig(t, sampleConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidateRejectsBadClusters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.ID = "n1"
	cfg.Node.Address = "localhost:5001"
	require.NoError(t, cfg.Validate())

	cfg.Clusters.A = []string{"10.5.1.1"}
	assert.Error(t, cfg.Validate(), "unknown peer")

	cfg.Peers = nil
	cfg.Clusters.A = nil
	require.NoError(t, cfg.Validate())

	cfg2 := DefaultConfig()
	cfg2.Node.ID = "n1"
	cfg2.Node.Address = "localhost:5001"
	cfg2.Clusters.A = []string{"10.5.1.1"}
	cfg2.Clusters.B = []string{"10.5.1.1"}
	cfg2.Peers = nil
	assert.Error(t, cfg2.Validate())
}

func TestValidateRequiresNodeID(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())
}

func TestParseConfigMissingFile(t *testing.T) {
	_, err := ParseConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadTimingAndAttackParams(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Node.ID = "n1"
		cfg.Node.Address = "localhost:5001"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(cfg *Config){
		"zero open":            func(cfg *Config) { cfg.Consensus.Open = 0 },
		"negative accepted":    func(cfg *Config) { cfg.Consensus.Accepted = -time.Second },
		"attack fee below":     func(cfg *Config) { cfg.Attack.Fee = cfg.Fees.BaseFee - 1 },
		"attack fee above":     func(cfg *Config) { cfg.Attack.Fee = cfg.Fees.MaxFee + 1 },
		"attack amount zero":   func(cfg *Config) { cfg.Attack.Amount = 0 },
		"attack amount above":  func(cfg *Config) { cfg.Attack.Amount = cfg.Fees.MaxAmount + 1 },
		"open fee above max":   func(cfg *Config) { cfg.Fees.OpenLedgerFee = cfg.Fees.MaxFee + 1 },
		"max fee below base":   func(cfg *Config) { cfg.Fees.MaxFee = cfg.Fees.BaseFee - 1 },
		"unknown attack phase": func(cfg *Config) { cfg.Attack.Phases = []string{"establish", "closing"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	// zero limits mean unlimited
	cfg := valid()
	cfg.Fees.MaxFee = 0
	cfg.Fees.MaxAmount = 0
	cfg.Attack.Fee = 1 << 40
	cfg.Attack.Amount = 1 << 62
	assert.NoError(t, cfg.Validate())
}
