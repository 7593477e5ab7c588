package sync

import (
	"context"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/chain-explorer/internal/adapter"
	"github.com/chain-explorer/internal/types"
)

// FeedState describes the live feed connection lifecycle
type FeedState string

const (
	// FeedDisconnected means no subscription is open and a reconnect is pending
	FeedDisconnected FeedState = "disconnected"
	// FeedConnecting means a subscription attempt is in progress
	FeedConnecting FeedState = "connecting"
	// FeedConnected means head notifications are flowing
	FeedConnected FeedState = "connected"
	// FeedStopped is terminal; a stopped engine never reconnects
	FeedStopped FeedState = "stopped"
)

// Engine drives chain ingestion: a bounded startup catch-up followed by a
// live head subscription with fixed-delay reconnects.
type Engine struct {
	chain          types.ChainID
	chainAdapter   adapter.ChainAdapter
	blocks         BlockStore
	transactions   TransactionStore
	addresses      AddressStore
	contracts      ContractStore
	tokens         TokenStore
	cursor         CursorStore
	stats          StatsSink
	events         Publisher
	metadata       MetadataReader
	catchUpLimit   int
	reconnectDelay time.Duration

	mu        gosync.RWMutex
	state     FeedState
	running   bool
	lastBlock uint64
	hasCursor bool

	// single-flight guard for concurrent processBlock calls per height
	inflightMu gosync.Mutex
	inflight   map[uint64]chan struct{}

	// in-flight head ingestions; drained before the run loop reports done
	wg gosync.WaitGroup

	stopCh chan struct{}
	doneCh chan struct{}
}

// EngineConfig holds the sync engine dependencies
type EngineConfig struct {
	Chain          types.ChainID
	ChainAdapter   adapter.ChainAdapter
	Blocks         BlockStore
	Transactions   TransactionStore
	Addresses      AddressStore
	Contracts      ContractStore
	Tokens         TokenStore
	Cursor         CursorStore
	Stats          StatsSink // optional
	Events         Publisher
	Metadata       MetadataReader
	CatchUpLimit   int           // Maximum blocks ingested synchronously at startup (default: 10)
	ReconnectDelay time.Duration // Delay before re-opening a dropped subscription (default: 10s)
}

// NewEngine creates a new sync engine
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg.ChainAdapter == nil {
		return nil, fmt.Errorf("chain adapter cannot be nil")
	}
	if cfg.Blocks == nil {
		return nil, fmt.Errorf("block store cannot be nil")
	}
	if cfg.Transactions == nil {
		return nil, fmt.Errorf("transaction store cannot be nil")
	}
	if cfg.Addresses == nil {
		return nil, fmt.Errorf("address store cannot be nil")
	}
	if cfg.Contracts == nil {
		return nil, fmt.Errorf("contract store cannot be nil")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token store cannot be nil")
	}
	if cfg.Cursor == nil {
		return nil, fmt.Errorf("cursor store cannot be nil")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event publisher cannot be nil")
	}
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("metadata reader cannot be nil")
	}

	catchUpLimit := cfg.CatchUpLimit
	if catchUpLimit <= 0 {
		catchUpLimit = 10
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 10 * time.Second
	}

	return &Engine{
		chain:          cfg.Chain,
		chainAdapter:   cfg.ChainAdapter,
		blocks:         cfg.Blocks,
		transactions:   cfg.Transactions,
		addresses:      cfg.Addresses,
		contracts:      cfg.Contracts,
		tokens:         cfg.Tokens,
		cursor:         cfg.Cursor,
		stats:          cfg.Stats,
		events:         cfg.Events,
		metadata:       cfg.Metadata,
		catchUpLimit:   catchUpLimit,
		reconnectDelay: reconnectDelay,
		state:          FeedDisconnected,
		inflight:       make(map[uint64]chan struct{}),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// State returns the current feed state
func (e *Engine) State() FeedState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastBlock returns the highest block height the engine has processed, or
// ok=false before any block has been processed
func (e *Engine) LastBlock() (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastBlock, e.hasCursor
}

func (e *Engine) setState(ctx context.Context, state FeedState) {
	e.mu.Lock()
	prev := e.state
	e.state = state
	e.mu.Unlock()

	if prev == state {
		return
	}

	log.Printf("[Sync] Chain %s: feed %s -> %s", e.chain, prev, state)

	// The cursor record mirrors the connection flag for the health surface
	connected := state == FeedConnected
	if (prev == FeedConnected) != connected {
		if err := e.cursor.SetConnected(ctx, connected); err != nil {
			log.Printf("[Sync] Chain %s: failed to persist connection state: %v", e.chain, err)
		}
	}
}

// Start runs the bounded catch-up and launches the live feed loop. Start is
// idempotent; a second call on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		log.Printf("[Sync] Chain %s: engine already running", e.chain)
		return nil
	}
	e.running = true
	e.mu.Unlock()

	log.Printf("[Sync] Chain %s: starting engine (catch-up limit %d, reconnect delay %v)",
		e.chain, e.catchUpLimit, e.reconnectDelay)

	if err := e.loadCursor(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	if err := e.catchUp(ctx); err != nil {
		// Catch-up failures are not fatal; the live feed replays any gap
		// block by block
		log.Printf("[Sync] Chain %s: catch-up incomplete: %v", e.chain, err)
	}

	go e.run(ctx)

	return nil
}

// Stop terminates the live feed loop. A stopped engine cannot be restarted.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine for chain %s is not running", e.chain)
	}
	e.running = false
	e.mu.Unlock()

	log.Printf("[Sync] Chain %s: stopping engine", e.chain)
	close(e.stopCh)

	select {
	case <-e.doneCh:
		log.Printf("[Sync] Chain %s: engine stopped", e.chain)
	case <-ctx.Done():
		log.Printf("[Sync] Chain %s: engine stop timed out", e.chain)
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("stop timeout")
	}

	return nil
}

func (e *Engine) loadCursor(ctx context.Context) error {
	cursor, found, err := e.cursor.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync cursor: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if found && cursor.LastBlock > 0 {
		e.lastBlock = cursor.LastBlock
		e.hasCursor = true
		log.Printf("[Sync] Chain %s: resuming from block %d", e.chain, cursor.LastBlock)
	} else {
		log.Printf("[Sync] Chain %s: no cursor found, starting fresh", e.chain)
	}

	return nil
}

// catchUp synchronously ingests the blocks missed while the engine was
// down, oldest first. The pass is bounded to catchUpLimit blocks; a longer
// outage leaves a permanent gap that is logged and skipped.
func (e *Engine) catchUp(ctx context.Context) error {
	head, err := e.chainAdapter.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}

	e.mu.RLock()
	lastBlock, hasCursor := e.lastBlock, e.hasCursor
	e.mu.RUnlock()

	var from uint64
	if hasCursor {
		if lastBlock >= head {
			log.Printf("[Sync] Chain %s: cursor %d already at head %d", e.chain, lastBlock, head)
			return nil
		}
		from = lastBlock + 1
	} else {
		// Fresh deployment: backfill at most the trailing window
		from = head
	}

	if oldest := head - uint64(e.catchUpLimit) + 1; head >= uint64(e.catchUpLimit) && from < oldest {
		log.Printf("[Sync] Chain %s: gap %d..%d exceeds catch-up limit %d, skipping blocks %d..%d",
			e.chain, from, head, e.catchUpLimit, from, oldest-1)
		from = oldest
	}

	log.Printf("[Sync] Chain %s: catching up blocks %d..%d", e.chain, from, head)

	for number := from; number <= head; number++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := e.ProcessBlock(ctx, number); err != nil {
			return fmt.Errorf("failed to process block %d during catch-up: %w", number, err)
		}
	}

	return nil
}

// run is the live feed loop. It owns the feed state machine: at most one
// subscription is open at a time, and a dropped subscription schedules
// exactly one reconnect after the fixed delay.
func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)
	defer e.wg.Wait()
	defer e.setState(context.WithoutCancel(ctx), FeedStopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		e.setState(ctx, FeedConnecting)

		sub, err := e.chainAdapter.SubscribeNewHeads(ctx)
		if err != nil {
			log.Printf("[Sync] Chain %s: subscription failed: %v", e.chain, err)
			e.setState(ctx, FeedDisconnected)
			if !e.sleepForReconnect(ctx) {
				return
			}
			continue
		}

		e.setState(ctx, FeedConnected)

		stopped := e.consume(ctx, sub)
		sub.Unsubscribe()
		if stopped {
			return
		}

		e.setState(ctx, FeedDisconnected)
		if !e.sleepForReconnect(ctx) {
			return
		}
	}
}

// consume drains head notifications until the subscription errors or the
// engine stops. Returns true when the engine is stopping.
func (e *Engine) consume(ctx context.Context, sub adapter.HeadSubscription) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case <-e.stopCh:
			return true
		case err := <-sub.Err():
			log.Printf("[Sync] Chain %s: subscription dropped: %v", e.chain, err)
			return false
		case height, ok := <-sub.Heads():
			if !ok {
				return false
			}
			// Ingestion runs off the notification stream so a slow block
			// never backs the subscription up; the per-height single-flight
			// coalesces duplicate deliveries
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				if err := e.ProcessBlock(ctx, height); err != nil {
					// The block stays missing until the next restart's
					// catch-up pass reaches it
					log.Printf("[Sync] Chain %s: failed to process block %d: %v", e.chain, height, err)
				}
			}()
		}
	}
}

// sleepForReconnect waits the fixed reconnect delay. Returns false when the
// engine stops during the wait.
func (e *Engine) sleepForReconnect(ctx context.Context) bool {
	timer := time.NewTimer(e.reconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-e.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
