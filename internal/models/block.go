package models

import "math/big"

// Block represents a persisted chain block. Blocks are immutable once
// inserted; re-processing a height is a silent no-op at the storage layer.
type Block struct {
	Number           uint64  `json:"number" db:"number"`
	Hash             string  `json:"hash" db:"hash"`
	Miner            string  `json:"miner" db:"miner"`
	Timestamp        int64   `json:"timestamp" db:"timestamp"`
	GasUsed          uint64  `json:"gasUsed" db:"gas_used"`
	GasLimit         uint64  `json:"gasLimit" db:"gas_limit"`
	Size             uint64  `json:"size" db:"size"`
	BaseFeePerGas    *string `json:"baseFeePerGas,omitempty" db:"base_fee_per_gas"`
	BurntFees        *string `json:"burntFees,omitempty" db:"burnt_fees"`
	TransactionCount int     `json:"transactionCount" db:"transaction_count"`
}

// ComputeBurntFees derives burnt fees as baseFeePerGas * gasUsed.
// Returns nil for pre-EIP-1559 blocks with no base fee.
func ComputeBurntFees(baseFee *big.Int, gasUsed uint64) *string {
	if baseFee == nil {
		return nil
	}
	burnt := new(big.Int).Mul(baseFee, new(big.Int).SetUint64(gasUsed))
	s := burnt.String()
	return &s
}
