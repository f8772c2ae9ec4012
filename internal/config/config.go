package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/consensus"
	"github.com/mavleo96/ledger-partition/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration of a ledger node
type Config struct {
	Node           models.Node       `yaml:"node"`
	Peers          []*models.Node    `yaml:"peers"`
	Clusters       ClusterConfig     `yaml:"clusters"`
	DBDir          string            `yaml:"db_dir" env:"LEDGER_DB_DIR"`
	Genesis        map[string]uint64 `yaml:"genesis"`
	CheckSigs      bool              `yaml:"check_sigs" env:"LEDGER_CHECK_SIGS"`
	CanSign        bool              `yaml:"can_sign" env:"LEDGER_CAN_SIGN"`
	Admins         []string          `yaml:"admins" env:"LEDGER_ADMINS" envSeparator:","`
	RouterCapacity int               `yaml:"router_capacity" env:"LEDGER_ROUTER_CAPACITY"`
	Fees           FeeConfig         `yaml:"fees"`
	Consensus      ConsensusConfig   `yaml:"consensus"`
	PhaseGate      PhaseGateConfig   `yaml:"phase_gate"`
	Attack         AttackConfig      `yaml:"attack"`
	MetricsAddr    string            `yaml:"metrics_addr" env:"LEDGER_METRICS_ADDR"`
	LogLevel       string            `yaml:"log_level" env:"LEDGER_LOG_LEVEL"`
}

// ClusterConfig lists the peer addresses of each network cluster
type ClusterConfig struct {
	A []string `yaml:"a"`
	B []string `yaml:"b"`
}

// FeeConfig holds the fee and amount limits of local validation
type FeeConfig struct {
	BaseFee       uint64 `yaml:"base_fee" env:"LEDGER_BASE_FEE"`
	OpenLedgerFee uint64 `yaml:"open_ledger_fee" env:"LEDGER_OPEN_LEDGER_FEE"`
	MaxFee        uint64 `yaml:"max_fee" env:"LEDGER_MAX_FEE"`
	MaxAmount     uint64 `yaml:"max_amount" env:"LEDGER_MAX_AMOUNT"`
}

// ConsensusConfig holds the phase durations of the round driver
type ConsensusConfig struct {
	Open      time.Duration `yaml:"open" env:"LEDGER_CONSENSUS_OPEN"`
	Establish time.Duration `yaml:"establish" env:"LEDGER_CONSENSUS_ESTABLISH"`
	Accepted  time.Duration `yaml:"accepted" env:"LEDGER_CONSENSUS_ACCEPTED"`
}

// PhaseGateConfig bounds how long phase waits may poll
type PhaseGateConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"LEDGER_PHASE_POLL_INTERVAL"`
	MaxWait      time.Duration `yaml:"max_wait" env:"LEDGER_PHASE_MAX_WAIT"`
}

// AttackConfig holds the parameters of the partition experiment
type AttackConfig struct {
	Secret       string   `yaml:"secret" env:"LEDGER_ATTACK_SECRET"`
	Phases       []string `yaml:"phases"`
	Amount       uint64   `yaml:"amount"`
	Fee          uint64   `yaml:"fee"`
	DestinationA string   `yaml:"destination_a"`
	DestinationB string   `yaml:"destination_b"`
}

// DefaultConfig returns a configuration with every optional field set
func DefaultConfig() *Config {
	return &Config{
		DBDir:          "data",
		CheckSigs:      true,
		RouterCapacity: 16384,
		Fees: FeeConfig{
			BaseFee:   10,
			MaxFee:    1000000,
			MaxAmount: 100000000000000000,
		},
		Consensus: ConsensusConfig{
			Open:      2 * time.Second,
			Establish: 2 * time.Second,
			Accepted:  500 * time.Millisecond,
		},
		PhaseGate: PhaseGateConfig{
			PollInterval: 10 * time.Millisecond,
			MaxWait:      5 * time.Second,
		},
		Attack: AttackConfig{
			Phases: []string{"establish", "open"},
			Amount: 1000000000,
			Fee:    10,
		},
		LogLevel: "info",
	}
}

// ParseConfig reads the YAML file at cfgPath on top of the defaults and
// applies environment overrides
func ParseConfig(cfgPath string) (*Config, error) {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return &Config{}, err
	}
	cfg := DefaultConfig()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return &Config{}, err
	}
	if err := ParseEnv(cfg); err != nil {
		return &Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return &Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads overrides from environment variables
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate performs basic validation of the config
func (cfg *Config) Validate() error {
	if cfg.Node.ID == "" {
		return errors.New("node id is required")
	}
	if cfg.Node.Address == "" {
		return errors.New("node address is required")
	}

	known := make(map[string]bool, len(cfg.Peers))
	for _, peer := range cfg.Peers {
		if peer == nil || peer.Address == "" {
			return errors.New("peer address is required")
		}
		if known[peer.Address] {
			return fmt.Errorf("duplicate peer address %s", peer.Address)
		}
		known[peer.Address] = true
	}

	inA := make(map[string]bool, len(cfg.Clusters.A))
	for _, addr := range cfg.Clusters.A {
		if !known[addr] {
			return fmt.Errorf("cluster a references unknown peer %s", addr)
		}
		inA[addr] = true
	}
	for _, addr := range cfg.Clusters.B {
		if !known[addr] {
			return fmt.Errorf("cluster b references unknown peer %s", addr)
		}
		if inA[addr] {
			return fmt.Errorf("peer %s is in both clusters", addr)
		}
	}

	for account := range cfg.Genesis {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("invalid genesis account %q", account)
		}
	}
	for _, dst := range []string{cfg.Attack.DestinationA, cfg.Attack.DestinationB} {
		if dst != "" && !common.IsHexAddress(dst) {
			return fmt.Errorf("invalid attack destination %q", dst)
		}
	}

	if cfg.Consensus.Open <= 0 || cfg.Consensus.Establish <= 0 || cfg.Consensus.Accepted <= 0 {
		return errors.New("consensus phase durations must be positive")
	}
	// zero max fee and max amount mean no limit
	maxFee, maxAmount := cfg.Fees.MaxFee, cfg.Fees.MaxAmount
	if maxFee == 0 {
		maxFee = math.MaxUint64
	}
	if maxAmount == 0 {
		maxAmount = math.MaxUint64
	}
	if maxFee < cfg.Fees.BaseFee {
		return fmt.Errorf("max fee %d is below base fee %d", maxFee, cfg.Fees.BaseFee)
	}
	if cfg.Fees.OpenLedgerFee > maxFee {
		return fmt.Errorf("open ledger fee %d is above max fee %d", cfg.Fees.OpenLedgerFee, maxFee)
	}
	if cfg.Attack.Fee < cfg.Fees.BaseFee || cfg.Attack.Fee > maxFee {
		return fmt.Errorf("attack fee %d is outside [%d, %d]", cfg.Attack.Fee, cfg.Fees.BaseFee, maxFee)
	}
	if cfg.Attack.Amount == 0 || cfg.Attack.Amount > maxAmount {
		return fmt.Errorf("attack amount %d is outside [1, %d]", cfg.Attack.Amount, maxAmount)
	}
	for _, name := range cfg.Attack.Phases {
		if _, err := consensus.ParsePhase(name); err != nil {
			return fmt.Errorf("attack phases: %w", err)
		}
	}

	if cfg.PhaseGate.PollInterval <= 0 {
		return errors.New("phase gate poll interval must be positive")
	}
	if cfg.PhaseGate.MaxWait < 0 {
		return errors.New("phase gate max wait must not be negative")
	}
	return nil
}

// GenesisAccounts returns the genesis balances keyed by address
func (cfg *Config) GenesisAccounts() map[common.Address]uint64 {
	genesis := make(map[common.Address]uint64, len(cfg.Genesis))
	for account, balance := range cfg.Genesis {
		genesis[common.HexToAddress(account)] = balance
	}
	return genesis
}
