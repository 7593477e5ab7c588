package models

import "time"

// Contract represents a detected contract. The verification payload fields
// stay null until an external verification collaborator populates them; the
// sync engine only ever creates unverified rows.
type Contract struct {
	Address             string     `json:"address" db:"address"`
	Creator             string     `json:"creator" db:"creator"`
	CreationTx          *string    `json:"creationTx,omitempty" db:"creation_tx"`
	SourceCode          *string    `json:"sourceCode,omitempty" db:"source_code"`
	CompilerVersion     *string    `json:"compilerVersion,omitempty" db:"compiler_version"`
	OptimizationEnabled *bool      `json:"optimizationEnabled,omitempty" db:"optimization_enabled"`
	OptimizationRuns    *int       `json:"optimizationRuns,omitempty" db:"optimization_runs"`
	ConstructorArgs     *string    `json:"constructorArgs,omitempty" db:"constructor_args"`
	ABI                 *string    `json:"abi,omitempty" db:"abi"`
	ContractName        *string    `json:"contractName,omitempty" db:"contract_name"`
	Verified            bool       `json:"verified" db:"verified"`
	VerifiedAt          *time.Time `json:"verifiedAt,omitempty" db:"verified_at"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
}

// VerificationPayload carries the fields populated atomically when a
// contract verification succeeds.
type VerificationPayload struct {
	SourceCode          string `json:"sourceCode"`
	CompilerVersion     string `json:"compilerVersion"`
	OptimizationEnabled bool   `json:"optimizationEnabled"`
	OptimizationRuns    int    `json:"optimizationRuns"`
	ConstructorArgs     string `json:"constructorArgs"`
	ABI                 string `json:"abi"`
	ContractName        string `json:"contractName"`
}
