package sync

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chain-explorer/internal/adapter"
	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/retry"
	"github.com/chain-explorer/internal/types"
	"golang.org/x/sync/errgroup"
)

// blockFetchRetry keeps block fetch retries short so a genuinely missing
// block does not stall the feed
var blockFetchRetry = &retry.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// ProcessBlock ingests a single block: its transactions, the addresses and
// contracts they touch, any discovered tokens, the block record itself and
// finally the cursor advance and the new-block event. Concurrent calls for
// the same height coalesce into one execution; an already persisted height
// is a no-op.
func (e *Engine) ProcessBlock(ctx context.Context, number uint64) error {
	done, leader := e.acquireHeight(number)
	if !leader {
		// Another goroutine is ingesting this height; wait it out
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer e.releaseHeight(number)

	exists, err := e.blocks.Exists(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to check block %d: %w", number, err)
	}
	if exists {
		log.Printf("[Sync] Chain %s: block %d already ingested, skipping", e.chain, number)
		return nil
	}

	// New heads can arrive before the block body propagates to the queried
	// node, so the fetch retries briefly before giving up
	var blockData *adapter.BlockData
	result := retry.WithExponentialBackoff(ctx, blockFetchRetry, func(ctx context.Context, attempt int) error {
		var err error
		blockData, err = e.chainAdapter.BlockByNumber(ctx, number)
		return err
	})
	if !result.Success {
		return fmt.Errorf("failed to fetch block %d after %d attempts: %w", number, result.Attempts, result.LastError)
	}

	log.Printf("[Sync] Chain %s: processing block %d (%d transactions)",
		e.chain, number, len(blockData.TxHashes))

	var ingested []*models.Transaction
	for _, hash := range blockData.TxHashes {
		tx, err := e.processTransaction(ctx, blockData, hash)
		if err != nil {
			// A failed transaction never fails the block; record it for
			// operator replay and move on
			log.Printf("[Sync] Chain %s: skipping transaction %s in block %d: %v",
				e.chain, hash, number, err)
			if recErr := e.transactions.RecordSkipped(ctx, number, hash, err.Error()); recErr != nil {
				log.Printf("[Sync] Chain %s: failed to record skipped transaction %s: %v",
					e.chain, hash, recErr)
			}
			continue
		}
		if tx == nil {
			// Already persisted on an earlier pass over this block
			continue
		}
		ingested = append(ingested, tx)
	}

	block := &models.Block{
		Number:           blockData.Number,
		Hash:             blockData.Hash,
		Miner:            blockData.Miner,
		Timestamp:        int64(blockData.Time), // #nosec G115 - block timestamps fit int64
		GasUsed:          blockData.GasUsed,
		GasLimit:         blockData.GasLimit,
		Size:             blockData.Size,
		TransactionCount: len(blockData.TxHashes),
		BurntFees:        models.ComputeBurntFees(blockData.BaseFee, blockData.GasUsed),
	}
	if blockData.BaseFee != nil {
		baseFee := blockData.BaseFee.String()
		block.BaseFeePerGas = &baseFee
	}

	if err := e.blocks.Insert(ctx, block); err != nil {
		return fmt.Errorf("failed to insert block %d: %w", number, err)
	}

	// The miner earns the block reward; count the sighting
	e.touchAddress(ctx, blockData.Miner, types.KindExternal, block.Timestamp)

	if e.stats != nil && len(ingested) > 0 {
		if err := e.stats.MirrorTransactions(ctx, ingested); err != nil {
			log.Printf("[Sync] Chain %s: stats mirror failed for block %d: %v", e.chain, number, err)
		}
	}

	e.advanceCursor(ctx, number)

	e.events.Publish(types.EventNewBlock, block)
	for _, tx := range ingested {
		e.events.Publish(types.EventNewTransaction, tx)
	}

	return nil
}

// acquireHeight claims single-flight ownership of a height. The second
// return is false when another goroutine already owns it, in which case the
// channel closes when that goroutine finishes.
func (e *Engine) acquireHeight(number uint64) (<-chan struct{}, bool) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	if done, ok := e.inflight[number]; ok {
		return done, false
	}

	done := make(chan struct{})
	e.inflight[number] = done
	return done, true
}

func (e *Engine) releaseHeight(number uint64) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	if done, ok := e.inflight[number]; ok {
		delete(e.inflight, number)
		close(done)
	}
}

// advanceCursor persists monotonic ingestion progress. Replaying an old
// height never moves the cursor backwards.
func (e *Engine) advanceCursor(ctx context.Context, number uint64) {
	e.mu.Lock()
	if e.hasCursor && number <= e.lastBlock {
		e.mu.Unlock()
		return
	}
	e.lastBlock = number
	e.hasCursor = true
	e.mu.Unlock()

	if err := e.cursor.Advance(ctx, number); err != nil {
		log.Printf("[Sync] Chain %s: failed to advance cursor to %d: %v", e.chain, number, err)
	}
}

// processTransaction fetches, persists and indexes one transaction. The
// body and receipt are fetched concurrently.
func (e *Engine) processTransaction(ctx context.Context, block *adapter.BlockData, hash string) (*models.Transaction, error) {
	// A block retried after a late store failure replays its transactions;
	// rows already persisted keep their side effects from the first pass
	exists, err := e.transactions.Exists(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Printf("[Sync] Chain %s: transaction %s already ingested, skipping", e.chain, hash)
		return nil, nil
	}

	var (
		txData  *adapter.TxData
		receipt *adapter.ReceiptData
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txData, err = e.chainAdapter.TransactionByHash(gctx, hash)
		return err
	})
	g.Go(func() error {
		var err error
		receipt, err = e.chainAdapter.TransactionReceipt(gctx, hash)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tx := buildTransaction(block, txData, receipt)

	if err := e.transactions.Insert(ctx, tx); err != nil {
		return nil, err
	}

	e.touchAddress(ctx, tx.From, types.KindExternal, tx.Timestamp)
	if tx.To != nil {
		e.touchAddress(ctx, *tx.To, e.classifyAddress(ctx, *tx.To), tx.Timestamp)
	}

	if receipt.ContractAddress != nil {
		e.registerContract(ctx, *receipt.ContractAddress, tx)
	}

	e.discoverTokens(ctx, receipt.Logs)

	return tx, nil
}

// buildTransaction merges the normalized body and receipt into the
// persistence model
func buildTransaction(block *adapter.BlockData, txData *adapter.TxData, receipt *adapter.ReceiptData) *models.Transaction {
	tx := &models.Transaction{
		Hash:        txData.Hash,
		BlockNumber: block.Number,
		From:        txData.From,
		To:          txData.To,
		Value:       txData.Value.String(),
		GasPrice:    txData.GasPrice.String(),
		GasUsed:     receipt.GasUsed,
		Status:      receipt.Status,
		Nonce:       txData.Nonce,
		TxIndex:     receipt.TxIndex,
		Input:       "0x" + hex.EncodeToString(txData.Input),
		Timestamp:   int64(block.Time), // #nosec G115 - block timestamps fit int64
		Logs:        receipt.Logs,
	}

	// The first four bytes of calldata select the invoked method
	if len(txData.Input) >= 4 {
		methodID := "0x" + hex.EncodeToString(txData.Input[:4])
		tx.MethodID = &methodID
	}

	if receipt.ContractAddress != nil {
		created := strings.ToLower(*receipt.ContractAddress)
		tx.ContractCreated = &created
	}

	return tx
}

// touchAddress refreshes an address record with a live balance. Balance
// lookups and store writes are best-effort; a failure loses one sighting,
// not the transaction.
func (e *Engine) touchAddress(ctx context.Context, address string, kind types.AddressKind, blockTime int64) {
	balance, err := e.chainAdapter.BalanceAt(ctx, address)
	if err != nil {
		log.Printf("[Sync] Chain %s: balance lookup failed for %s: %v", e.chain, address, err)
		balance = "0"
	}

	if err := e.addresses.Touch(ctx, address, balance, kind, time.Unix(blockTime, 0).UTC()); err != nil {
		log.Printf("[Sync] Chain %s: failed to touch address %s: %v", e.chain, address, err)
	}
}

// classifyAddress decides whether a recipient is a contract by probing for
// deployed code. Probe failures default to EOA; a later sighting or a
// creation receipt corrects the record.
func (e *Engine) classifyAddress(ctx context.Context, address string) types.AddressKind {
	code, err := e.chainAdapter.CodeAt(ctx, address)
	if err != nil {
		log.Printf("[Sync] Chain %s: code probe failed for %s: %v", e.chain, address, err)
		return types.KindExternal
	}
	if len(code) > 0 {
		return types.KindContract
	}
	return types.KindExternal
}

// registerContract records a freshly created contract with creator
// provenance and reclassifies its address record
func (e *Engine) registerContract(ctx context.Context, address string, tx *models.Transaction) {
	log.Printf("[Sync] Chain %s: transaction %s created contract %s", e.chain, tx.Hash, address)

	e.touchAddress(ctx, address, types.KindContract, tx.Timestamp)

	if err := e.addresses.MarkContract(ctx, address); err != nil {
		log.Printf("[Sync] Chain %s: failed to mark %s as contract: %v", e.chain, address, err)
	}

	creationTx := tx.Hash
	if err := e.contracts.CreateUnverified(ctx, address, tx.From, &creationTx); err != nil {
		log.Printf("[Sync] Chain %s: failed to register contract %s: %v", e.chain, address, err)
	}
}

// discoverTokens scans receipt logs for ERC-20 Transfer events and
// registers any emitting contract not yet known as a token. Metadata is
// fetched once at discovery; each metadata call falls back independently.
func (e *Engine) discoverTokens(ctx context.Context, logs []models.EventLog) {
	transferTopic := TransferEventTopic()

	seen := make(map[string]struct{})
	for _, entry := range logs {
		if len(entry.Topics) == 0 || entry.Topics[0] != transferTopic {
			continue
		}

		address := strings.ToLower(entry.Address)
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}

		exists, err := e.tokens.Exists(ctx, address)
		if err != nil {
			log.Printf("[Sync] Chain %s: token lookup failed for %s: %v", e.chain, address, err)
			continue
		}
		if exists {
			continue
		}

		meta := e.metadata.Metadata(ctx, address)

		token := &models.Token{
			Address:     address,
			Name:        meta.Name,
			Symbol:      meta.Symbol,
			Decimals:    meta.Decimals,
			TotalSupply: meta.TotalSupply,
			LogoStatus:  types.LogoNone,
			CreatedAt:   time.Now(),
		}

		if err := e.tokens.Create(ctx, token); err != nil {
			log.Printf("[Sync] Chain %s: failed to register token %s: %v", e.chain, address, err)
			continue
		}

		log.Printf("[Sync] Chain %s: discovered token %s (%s)", e.chain, token.Symbol, address)
		e.events.Publish(types.EventTokenDeployed, token)
	}
}

// TransferEventTopic returns the ERC-20 Transfer topic as a lowercase hex
// string matching normalized log topics
func TransferEventTopic() string {
	return strings.ToLower(adapter.TransferEventTopic.Hex())
}
