package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Solana struct {
		RPCURL            string `yaml:"rpc_url"`
		ProgramID         string `yaml:"program_id"`
		RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	} `yaml:"solana"`

	Curve struct {
		InitialVirtualBase  int64  `yaml:"initial_virtual_base"`
		InitialVirtualAsset int64  `yaml:"initial_virtual_asset"`
		InitialRealAsset    int64  `yaml:"initial_real_asset"`
		TotalSupply         int64  `yaml:"total_supply"`
		Decimals            int    `yaml:"decimals"`
		FeeBps              int64  `yaml:"fee_bps"`
		GraduationMode      string `yaml:"graduation_mode"` // base_threshold | asset_depleted
		GraduationThreshold int64  `yaml:"graduation_threshold"`
	} `yaml:"curve"`

	Sync struct {
		ReconcileIntervalSec int `yaml:"reconcile_interval_sec"`
		HolderIntervalSec    int `yaml:"holder_interval_sec"`
		MaxParallel          int `yaml:"max_parallel"`
	} `yaml:"sync"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills zero values with the curve parameters used by the
// external program.
func (c *Config) applyDefaults() {
	if c.Solana.RequestTimeoutSec <= 0 {
		c.Solana.RequestTimeoutSec = 10
	}
	if c.Curve.InitialVirtualBase == 0 {
		c.Curve.InitialVirtualBase = 30_000_000_000
	}
	if c.Curve.InitialVirtualAsset == 0 {
		c.Curve.InitialVirtualAsset = 1_073_000_000_000_000
	}
	if c.Curve.InitialRealAsset == 0 {
		c.Curve.InitialRealAsset = 793_100_000_000_000
	}
	if c.Curve.TotalSupply == 0 {
		c.Curve.TotalSupply = 1_000_000_000_000_000
	}
	if c.Curve.Decimals == 0 {
		c.Curve.Decimals = 6
	}
	if c.Curve.FeeBps == 0 {
		c.Curve.FeeBps = 100
	}
	if c.Curve.GraduationMode == "" {
		c.Curve.GraduationMode = "base_threshold"
	}
	if c.Curve.GraduationThreshold == 0 {
		c.Curve.GraduationThreshold = 69_000_000_000
	}
	if c.Sync.ReconcileIntervalSec <= 0 {
		c.Sync.ReconcileIntervalSec = 30
	}
	if c.Sync.HolderIntervalSec <= 0 {
		c.Sync.HolderIntervalSec = 120
	}
	if c.Sync.MaxParallel <= 0 {
		c.Sync.MaxParallel = 8
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" || (!hasPrefix(c.Solana.RPCURL, "http://") && !hasPrefix(c.Solana.RPCURL, "https://")) {
		return fmt.Errorf("invalid Solana RPC URL: %s", c.Solana.RPCURL)
	}
	if c.Solana.ProgramID == "" {
		return fmt.Errorf("bonding curve program id is required")
	}
	if c.Curve.InitialVirtualBase <= 0 || c.Curve.InitialVirtualAsset <= 0 {
		return fmt.Errorf("initial virtual reserves must be positive")
	}
	if c.Curve.FeeBps < 0 || c.Curve.FeeBps > 10_000 {
		return fmt.Errorf("fee_bps must be within [0, 10000]")
	}
	switch c.Curve.GraduationMode {
	case "base_threshold":
		if c.Curve.GraduationThreshold <= 0 {
			return fmt.Errorf("graduation_threshold must be positive in base_threshold mode")
		}
	case "asset_depleted":
		if c.Curve.InitialRealAsset <= 0 {
			return fmt.Errorf("initial_real_asset must be positive in asset_depleted mode")
		}
	default:
		return fmt.Errorf("unknown graduation_mode: %s", c.Curve.GraduationMode)
	}
	return nil
}

// RequestTimeout returns the per-RPC-call timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Solana.RequestTimeoutSec) * time.Second
}

// ReconcileInterval returns the reconciliation tick period.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Sync.ReconcileIntervalSec) * time.Second
}

// HolderInterval returns the holder aggregation tick period.
func (c *Config) HolderInterval() time.Duration {
	return time.Duration(c.Sync.HolderIntervalSec) * time.Second
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("CURVE_RPC_URL"); url != "" {
		cfg.Solana.RPCURL = url
	}
	if id := os.Getenv("CURVE_PROGRAM_ID"); id != "" {
		cfg.Solana.ProgramID = id
	}
}
