package models

// EventLog is an opaque structured record of a log emitted by a transaction
type EventLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
	Index   uint     `json:"index"`
}

// Transaction represents a persisted chain transaction. Value and gas fields
// are decimal strings to preserve arbitrary precision. Immutable once
// persisted.
type Transaction struct {
	Hash            string     `json:"hash" db:"hash"`
	BlockNumber     uint64     `json:"blockNumber" db:"block_number"`
	From            string     `json:"from" db:"from_address"`
	To              *string    `json:"to,omitempty" db:"to_address"`
	Value           string     `json:"value" db:"value"`
	GasPrice        string     `json:"gasPrice" db:"gas_price"`
	GasUsed         uint64     `json:"gasUsed" db:"gas_used"`
	Status          uint64     `json:"status" db:"status"`
	Nonce           uint64     `json:"nonce" db:"nonce"`
	TxIndex         uint       `json:"txIndex" db:"tx_index"`
	Input           string     `json:"input" db:"input"`
	MethodID        *string    `json:"methodId,omitempty" db:"method_id"`
	ContractCreated *string    `json:"contractCreated,omitempty" db:"contract_created"`
	Timestamp       int64      `json:"timestamp" db:"timestamp"`
	Logs            []EventLog `json:"logs,omitempty" db:"logs"`
}

// IsContractCreation reports whether the transaction created a contract
// (no recipient address).
func (t *Transaction) IsContractCreation() bool {
	return t.To == nil
}
