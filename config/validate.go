package config

import (
	"fmt"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}

	m := cfg.Mempool
	if m.MaxTxClvmCost == 0 {
		return fmt.Errorf("mempool.max_tx_clvm_cost must be positive")
	}
	if m.MaxBlockClvmCost == 0 {
		return fmt.Errorf("mempool.max_block_clvm_cost must be positive")
	}
	if m.MaxTxClvmCost > m.MaxBlockClvmCost {
		return fmt.Errorf("mempool.max_tx_clvm_cost must not exceed mempool.max_block_clvm_cost")
	}
	if m.MempoolBlockBuffer == 0 {
		return fmt.Errorf("mempool.block_buffer must be positive")
	}
	if m.ValidateTimeBudgetSeconds <= 0 {
		return fmt.Errorf("mempool.validate_time_budget_s must be positive")
	}

	return nil
}
