package sync

import (
	"context"
	"fmt"
	"math/big"
	gosync "sync"
	"testing"
	"time"

	"github.com/chain-explorer/internal/adapter"
	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/types"
)

func bigInt(v int64) *big.Int { return big.NewInt(v) }

func big1e18() *big.Int {
	wei, _ := new(big.Int).SetString("1000000000000000000", 10)
	return wei
}

// Fakes for engine testing

type fakeChainAdapter struct {
	mu           gosync.Mutex
	head         uint64
	blocks       map[uint64]*adapter.BlockData
	txs          map[string]*adapter.TxData
	receipts     map[string]*adapter.ReceiptData
	receiptErrs  map[string]error
	codes        map[string][]byte
	gates        map[uint64]chan struct{}
	fetchOrder   []uint64
	subErr       error
	subFailures  int
	activeSubs   int
	maxActive    int
	headsCh      chan uint64
	subErrCh     chan error
	subscribedCh chan struct{}
}

func newFakeChainAdapter() *fakeChainAdapter {
	return &fakeChainAdapter{
		blocks:       make(map[uint64]*adapter.BlockData),
		txs:          make(map[string]*adapter.TxData),
		receipts:     make(map[string]*adapter.ReceiptData),
		receiptErrs:  make(map[string]error),
		codes:        make(map[string][]byte),
		gates:        make(map[uint64]chan struct{}),
		headsCh:      make(chan uint64, 16),
		subErrCh:     make(chan error, 1),
		subscribedCh: make(chan struct{}, 16),
	}
}

func (f *fakeChainAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChainAdapter) BlockByNumber(ctx context.Context, number uint64) (*adapter.BlockData, error) {
	f.mu.Lock()
	f.fetchOrder = append(f.fetchOrder, number)
	gate := f.gates[number]
	block, ok := f.blocks[number]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if ok {
		return block, nil
	}
	return nil, adapter.ErrBlockNotFound
}

// gateBlock makes fetches of the given height block until the returned
// channel is closed
func (f *fakeChainAdapter) gateBlock(number uint64) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[number] = gate
	return gate
}

func (f *fakeChainAdapter) TransactionByHash(ctx context.Context, hash string) (*adapter.TxData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[hash]; ok {
		return tx, nil
	}
	return nil, adapter.ErrTransactionNotFound
}

func (f *fakeChainAdapter) TransactionReceipt(ctx context.Context, hash string) (*adapter.ReceiptData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.receiptErrs[hash]; ok {
		return nil, err
	}
	if receipt, ok := f.receipts[hash]; ok {
		return receipt, nil
	}
	return nil, adapter.ErrTransactionNotFound
}

func (f *fakeChainAdapter) BalanceAt(ctx context.Context, address string) (string, error) {
	return "1000", nil
}

func (f *fakeChainAdapter) CodeAt(ctx context.Context, address string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[address], nil
}

func (f *fakeChainAdapter) CallView(ctx context.Context, contract string, fn adapter.ViewFunction) ([]byte, error) {
	return nil, adapter.ErrUnknownViewFunction
}

type fakeSubscription struct {
	adapter *fakeChainAdapter
	once    gosync.Once
}

func (s *fakeSubscription) Heads() <-chan uint64 { return s.adapter.headsCh }
func (s *fakeSubscription) Err() <-chan error    { return s.adapter.subErrCh }
func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.adapter.mu.Lock()
		s.adapter.activeSubs--
		s.adapter.mu.Unlock()
	})
}

func (f *fakeChainAdapter) SubscribeNewHeads(ctx context.Context) (adapter.HeadSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subFailures > 0 {
		f.subFailures--
		return nil, fmt.Errorf("subscription refused")
	}
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.activeSubs++
	if f.activeSubs > f.maxActive {
		f.maxActive = f.activeSubs
	}
	select {
	case f.subscribedCh <- struct{}{}:
	default:
	}
	return &fakeSubscription{adapter: f}, nil
}

func (f *fakeChainAdapter) ChainID() types.ChainID { return types.ChainEthereum }
func (f *fakeChainAdapter) Close()                 {}

// addBlock registers a block whose transactions succeed with the given
// recipient
func (f *fakeChainAdapter) addBlock(number uint64, txHashes ...string) *adapter.BlockData {
	f.mu.Lock()
	defer f.mu.Unlock()
	block := &adapter.BlockData{
		Number:   number,
		Hash:     fmt.Sprintf("0x%064x", number),
		Miner:    "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Time:     1700000000 + number,
		GasUsed:  21000 * uint64(len(txHashes)),
		GasLimit: 30000000,
		Size:     1024,
		TxHashes: txHashes,
	}
	f.blocks[number] = block
	return block
}

func (f *fakeChainAdapter) addTransaction(hash, from string, to *string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[hash] = &adapter.TxData{
		Hash:     hash,
		From:     from,
		To:       to,
		Value:    big1e18(),
		GasPrice: bigInt(20_000_000_000),
		Nonce:    1,
		Input:    nil,
	}
	f.receipts[hash] = &adapter.ReceiptData{
		Status:  types.TxStatusSuccess,
		GasUsed: 21000,
		TxIndex: 0,
	}
}

type fakeBlockStore struct {
	mu          gosync.Mutex
	inserted    map[uint64]*models.Block
	inserts     int
	failInserts int
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{inserted: make(map[uint64]*models.Block)}
}

func (s *fakeBlockStore) Insert(ctx context.Context, block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInserts > 0 {
		s.failInserts--
		return fmt.Errorf("store unavailable")
	}
	if _, ok := s.inserted[block.Number]; !ok {
		s.inserted[block.Number] = block
	}
	s.inserts++
	return nil
}

func (s *fakeBlockStore) Exists(ctx context.Context, number uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inserted[number]
	return ok, nil
}

type fakeTransactionStore struct {
	mu       gosync.Mutex
	inserted map[string]*models.Transaction
	skipped  map[string]string
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{
		inserted: make(map[string]*models.Transaction),
		skipped:  make(map[string]string),
	}
}

func (s *fakeTransactionStore) Insert(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted[tx.Hash] = tx
	return nil
}

func (s *fakeTransactionStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inserted[hash]
	return ok, nil
}

func (s *fakeTransactionStore) RecordSkipped(ctx context.Context, blockNumber uint64, hash, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[hash] = reason
	return nil
}

type touch struct {
	address string
	kind    types.AddressKind
}

type fakeAddressStore struct {
	mu        gosync.Mutex
	touches   []touch
	counts    map[string]int
	contracts map[string]bool
}

func newFakeAddressStore() *fakeAddressStore {
	return &fakeAddressStore{
		counts:    make(map[string]int),
		contracts: make(map[string]bool),
	}
}

func (s *fakeAddressStore) Touch(ctx context.Context, address, balance string, kind types.AddressKind, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = append(s.touches, touch{address: address, kind: kind})
	s.counts[address]++
	return nil
}

func (s *fakeAddressStore) MarkContract(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[address] = true
	return nil
}

type fakeContractStore struct {
	mu      gosync.Mutex
	created map[string]string // address -> creator
}

func newFakeContractStore() *fakeContractStore {
	return &fakeContractStore{created: make(map[string]string)}
}

func (s *fakeContractStore) CreateUnverified(ctx context.Context, address, creator string, creationTx *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.created[address]; !ok {
		s.created[address] = creator
	}
	return nil
}

type fakeTokenStore struct {
	mu      gosync.Mutex
	tokens  map[string]*models.Token
	creates int
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]*models.Token)}
}

func (s *fakeTokenStore) Exists(ctx context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[address]
	return ok, nil
}

func (s *fakeTokenStore) Create(ctx context.Context, token *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.Address]; !ok {
		s.tokens[token.Address] = token
	}
	s.creates++
	return nil
}

type fakeCursorStore struct {
	mu        gosync.Mutex
	cursor    *models.SyncCursor
	connected []bool
}

func (s *fakeCursorStore) Get(ctx context.Context) (*models.SyncCursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return nil, false, nil
	}
	copied := *s.cursor
	return &copied, true, nil
}

func (s *fakeCursorStore) Advance(ctx context.Context, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = &models.SyncCursor{LastBlock: blockNumber, LastSyncedAt: time.Now()}
	return nil
}

func (s *fakeCursorStore) SetConnected(ctx context.Context, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, connected)
	return nil
}

func (s *fakeCursorStore) lastBlock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return 0
	}
	return s.cursor.LastBlock
}

type publishedEvent struct {
	kind    types.EventKind
	payload any
}

type fakePublisher struct {
	mu     gosync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(kind types.EventKind, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: kind, payload: payload})
}

func (p *fakePublisher) kinds() []types.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]types.EventKind, len(p.events))
	for i, e := range p.events {
		kinds[i] = e.kind
	}
	return kinds
}

type fakeMetadataReader struct{}

func (f *fakeMetadataReader) Metadata(ctx context.Context, contract string) *adapter.TokenMetadata {
	return &adapter.TokenMetadata{
		Name:        adapter.FallbackTokenName,
		Symbol:      adapter.FallbackTokenSymbol,
		Decimals:    adapter.FallbackDecimals,
		TotalSupply: adapter.FallbackTotalSupply,
	}
}

type engineFixture struct {
	adapter   *fakeChainAdapter
	blocks    *fakeBlockStore
	txs       *fakeTransactionStore
	addresses *fakeAddressStore
	contracts *fakeContractStore
	tokens    *fakeTokenStore
	cursor    *fakeCursorStore
	events    *fakePublisher
	engine    *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		adapter:   newFakeChainAdapter(),
		blocks:    newFakeBlockStore(),
		txs:       newFakeTransactionStore(),
		addresses: newFakeAddressStore(),
		contracts: newFakeContractStore(),
		tokens:    newFakeTokenStore(),
		cursor:    &fakeCursorStore{},
		events:    &fakePublisher{},
	}

	engine, err := NewEngine(&EngineConfig{
		Chain:          types.ChainEthereum,
		ChainAdapter:   f.adapter,
		Blocks:         f.blocks,
		Transactions:   f.txs,
		Addresses:      f.addresses,
		Contracts:      f.contracts,
		Tokens:         f.tokens,
		Cursor:         f.cursor,
		Events:         f.events,
		Metadata:       &fakeMetadataReader{},
		CatchUpLimit:   10,
		ReconnectDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	f.engine = engine

	return f
}

const (
	addrSender    = "0x1111111111111111111111111111111111111111"
	addrRecipient = "0x2222222222222222222222222222222222222222"
	addrToken     = "0x3333333333333333333333333333333333333333"
	addrCreated   = "0x4444444444444444444444444444444444444444"
	txHashA       = "0x" + "aa" + "00000000000000000000000000000000000000000000000000000000000000"
)

func TestEngine_ProcessBlock(t *testing.T) {
	f := newEngineFixture(t)

	recipient := addrRecipient
	f.adapter.addBlock(100, txHashA)
	f.adapter.addTransaction(txHashA, addrSender, &recipient)

	if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
		t.Fatalf("ProcessBlock failed: %v", err)
	}

	block, ok := f.blocks.inserted[100]
	if !ok {
		t.Fatal("Expected block 100 to be inserted")
	}
	if block.TransactionCount != 1 {
		t.Errorf("Expected transaction count 1, got %d", block.TransactionCount)
	}
	if block.BurntFees != nil {
		t.Errorf("Expected nil burnt fees without a base fee, got %v", *block.BurntFees)
	}

	tx, ok := f.txs.inserted[txHashA]
	if !ok {
		t.Fatal("Expected transaction to be inserted")
	}
	if tx.Status != types.TxStatusSuccess {
		t.Errorf("Expected status %d, got %d", types.TxStatusSuccess, tx.Status)
	}
	if tx.Value != "1000000000000000000" {
		t.Errorf("Expected value 1000000000000000000, got %s", tx.Value)
	}

	// Sender, recipient and miner all get their sighting recorded
	for _, addr := range []string{addrSender, addrRecipient, f.adapter.blocks[100].Miner} {
		if f.addresses.counts[addr] == 0 {
			t.Errorf("Expected address %s to be touched", addr)
		}
	}

	if got := f.cursor.lastBlock(); got != 100 {
		t.Errorf("Expected cursor at 100, got %d", got)
	}

	kinds := f.events.kinds()
	if len(kinds) != 2 || kinds[0] != types.EventNewBlock || kinds[1] != types.EventNewTransaction {
		t.Errorf("Expected [new_block new_transaction] events, got %v", kinds)
	}
}

func TestEngine_ProcessBlock_Idempotent(t *testing.T) {
	f := newEngineFixture(t)

	recipient := addrRecipient
	f.adapter.addBlock(100, txHashA)
	f.adapter.addTransaction(txHashA, addrSender, &recipient)

	for i := 0; i < 3; i++ {
		if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
			t.Fatalf("ProcessBlock run %d failed: %v", i, err)
		}
	}

	if f.blocks.inserts != 1 {
		t.Errorf("Expected exactly 1 block insert, got %d", f.blocks.inserts)
	}
	if got := f.addresses.counts[addrSender]; got != 1 {
		t.Errorf("Expected sender touched once, got %d", got)
	}
}

func TestEngine_ProcessBlock_SingleFlight(t *testing.T) {
	f := newEngineFixture(t)

	recipient := addrRecipient
	f.adapter.addBlock(100, txHashA)
	f.adapter.addTransaction(txHashA, addrSender, &recipient)

	var wg gosync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
				t.Errorf("concurrent ProcessBlock failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.blocks.inserts != 1 {
		t.Errorf("Expected exactly 1 block insert across concurrent calls, got %d", f.blocks.inserts)
	}
}

func TestEngine_ProcessBlock_SkipsFailedTransaction(t *testing.T) {
	f := newEngineFixture(t)

	badHash := "0x" + "bb" + "00000000000000000000000000000000000000000000000000000000000000"
	recipient := addrRecipient
	f.adapter.addBlock(100, txHashA, badHash)
	f.adapter.addTransaction(txHashA, addrSender, &recipient)
	// badHash has no body or receipt registered, so its fetch fails

	if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
		t.Fatalf("ProcessBlock failed: %v", err)
	}

	block, ok := f.blocks.inserted[100]
	if !ok {
		t.Fatal("Expected block to be inserted despite the failed transaction")
	}
	if block.TransactionCount != 2 {
		t.Errorf("Expected transaction count 2 (chain truth), got %d", block.TransactionCount)
	}

	if _, ok := f.txs.inserted[txHashA]; !ok {
		t.Error("Expected the healthy transaction to be inserted")
	}
	if _, ok := f.txs.skipped[badHash]; !ok {
		t.Error("Expected the failed transaction to be recorded as skipped")
	}
	if got := f.cursor.lastBlock(); got != 100 {
		t.Errorf("Expected cursor advanced to 100, got %d", got)
	}
}

func TestEngine_ProcessBlock_ContractCreation(t *testing.T) {
	f := newEngineFixture(t)

	f.adapter.addBlock(100, txHashA)
	f.adapter.txs[txHashA] = &adapter.TxData{
		Hash:     txHashA,
		From:     addrSender,
		To:       nil,
		Value:    bigInt(0),
		GasPrice: bigInt(1_000_000_000),
		Input:    []byte{0x60, 0x80, 0x60, 0x40, 0x52},
	}
	created := addrCreated
	f.adapter.receipts[txHashA] = &adapter.ReceiptData{
		Status:          types.TxStatusSuccess,
		GasUsed:         500000,
		ContractAddress: &created,
	}

	if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
		t.Fatalf("ProcessBlock failed: %v", err)
	}

	if creator, ok := f.contracts.created[addrCreated]; !ok || creator != addrSender {
		t.Errorf("Expected contract %s registered with creator %s, got %q", addrCreated, addrSender, creator)
	}
	if !f.addresses.contracts[addrCreated] {
		t.Error("Expected created address to be marked as contract")
	}

	tx := f.txs.inserted[txHashA]
	if tx.ContractCreated == nil || *tx.ContractCreated != addrCreated {
		t.Errorf("Expected ContractCreated %s, got %v", addrCreated, tx.ContractCreated)
	}
	if tx.MethodID == nil || *tx.MethodID != "0x60806040" {
		t.Errorf("Expected method id 0x60806040, got %v", tx.MethodID)
	}
}

func TestEngine_TokenDiscovery(t *testing.T) {
	f := newEngineFixture(t)

	recipient := addrRecipient
	f.adapter.addBlock(100, txHashA)
	f.adapter.addTransaction(txHashA, addrSender, &recipient)
	f.adapter.receipts[txHashA].Logs = []models.EventLog{
		{
			Address: addrToken,
			Topics:  []string{TransferEventTopic()},
			Data:    "0x01",
		},
	}

	if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
		t.Fatalf("ProcessBlock failed: %v", err)
	}

	token, ok := f.tokens.tokens[addrToken]
	if !ok {
		t.Fatal("Expected token to be discovered")
	}
	if token.Name != "Unknown" || token.Symbol != "???" || token.Decimals != 18 || token.TotalSupply != "0" {
		t.Errorf("Expected fallback metadata, got %+v", token)
	}
	if token.LogoStatus != types.LogoNone {
		t.Errorf("Expected new token in no_logo state, got %s", token.LogoStatus)
	}

	found := false
	for _, kind := range f.events.kinds() {
		if kind == types.EventTokenDeployed {
			found = true
		}
	}
	if !found {
		t.Error("Expected token_deployed event")
	}

	// A second block transferring the same token must not re-register it
	txHashB := "0x" + "cc" + "00000000000000000000000000000000000000000000000000000000000000"
	f.adapter.addBlock(101, txHashB)
	f.adapter.addTransaction(txHashB, addrSender, &recipient)
	f.adapter.receipts[txHashB].Logs = []models.EventLog{
		{Address: addrToken, Topics: []string{TransferEventTopic()}},
	}

	if err := f.engine.ProcessBlock(context.Background(), 101); err != nil {
		t.Fatalf("ProcessBlock for block 101 failed: %v", err)
	}

	if f.tokens.creates != 1 {
		t.Errorf("Expected exactly 1 token create, got %d", f.tokens.creates)
	}
}

func TestEngine_CatchUp_Bounded(t *testing.T) {
	f := newEngineFixture(t)

	f.cursor.cursor = &models.SyncCursor{LastBlock: 50, LastSyncedAt: time.Now()}
	f.adapter.head = 100
	for n := uint64(51); n <= 100; n++ {
		f.adapter.addBlock(n)
	}
	f.adapter.subErr = adapter.ErrSubscriptionsUnavailable

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.engine.Stop(context.Background())

	// The gap 51..100 exceeds the limit of 10: only 91..100 are ingested,
	// oldest first
	f.adapter.mu.Lock()
	order := append([]uint64(nil), f.adapter.fetchOrder...)
	f.adapter.mu.Unlock()

	if len(order) != 10 {
		t.Fatalf("Expected 10 blocks fetched, got %d (%v)", len(order), order)
	}
	for i, number := range order {
		if want := uint64(91 + i); number != want {
			t.Errorf("Expected fetch %d to be block %d, got %d", i, want, number)
		}
	}

	for n := uint64(51); n <= 90; n++ {
		if _, ok := f.blocks.inserted[n]; ok {
			t.Errorf("Expected block %d to be skipped by the bounded catch-up", n)
		}
	}
	if got := f.cursor.lastBlock(); got != 100 {
		t.Errorf("Expected cursor at 100 after catch-up, got %d", got)
	}
}

func TestEngine_CatchUp_SmallGap(t *testing.T) {
	f := newEngineFixture(t)

	f.cursor.cursor = &models.SyncCursor{LastBlock: 97, LastSyncedAt: time.Now()}
	f.adapter.head = 100
	for n := uint64(98); n <= 100; n++ {
		f.adapter.addBlock(n)
	}
	f.adapter.subErr = adapter.ErrSubscriptionsUnavailable

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.engine.Stop(context.Background())

	for n := uint64(98); n <= 100; n++ {
		if _, ok := f.blocks.inserted[n]; !ok {
			t.Errorf("Expected block %d to be ingested", n)
		}
	}
	if _, ok := f.blocks.inserted[97]; ok {
		t.Error("Block 97 was already ingested and must not be refetched")
	}
}

func TestEngine_CursorMonotonic(t *testing.T) {
	f := newEngineFixture(t)

	f.adapter.addBlock(100)
	f.adapter.addBlock(99)

	if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
		t.Fatalf("ProcessBlock 100 failed: %v", err)
	}
	if err := f.engine.ProcessBlock(context.Background(), 99); err != nil {
		t.Fatalf("ProcessBlock 99 failed: %v", err)
	}

	if got := f.cursor.lastBlock(); got != 100 {
		t.Errorf("Expected cursor to stay at 100 after replaying 99, got %d", got)
	}
}

func TestEngine_RetryAfterBlockStoreFailure(t *testing.T) {
	f := newEngineFixture(t)

	recipient := addrRecipient
	f.adapter.addBlock(100, txHashA)
	f.adapter.addTransaction(txHashA, addrSender, &recipient)
	f.blocks.failInserts = 1

	if err := f.engine.ProcessBlock(context.Background(), 100); err == nil {
		t.Fatal("Expected first attempt to fail on the block insert")
	}
	if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	if _, ok := f.blocks.inserted[100]; !ok {
		t.Fatal("Expected block 100 to be inserted on retry")
	}
	if got := f.cursor.lastBlock(); got != 100 {
		t.Errorf("Expected cursor at 100 after retry, got %d", got)
	}

	// The transaction was persisted on the first pass; the retry must not
	// replay its side effects
	if got := len(f.txs.inserted); got != 1 {
		t.Errorf("Expected 1 persisted transaction, got %d", got)
	}
	if got := len(f.txs.skipped); got != 0 {
		t.Errorf("Expected no skip records, got %d", got)
	}
	if got := f.addresses.counts[addrSender]; got != 1 {
		t.Errorf("Expected 1 sender sighting after retry, got %d", got)
	}
	if got := f.addresses.counts[addrRecipient]; got != 1 {
		t.Errorf("Expected 1 recipient sighting after retry, got %d", got)
	}

	for _, kind := range f.events.kinds() {
		if kind == types.EventNewTransaction {
			t.Error("Expected no transaction event for a row persisted on an earlier pass")
		}
	}
}

func TestEngine_CursorUnchangedAfterFailedFetch(t *testing.T) {
	f := newEngineFixture(t)

	f.adapter.addBlock(100)
	if err := f.engine.ProcessBlock(context.Background(), 100); err != nil {
		t.Fatalf("ProcessBlock 100 failed: %v", err)
	}

	// 101 is not available on the node
	if err := f.engine.ProcessBlock(context.Background(), 101); err == nil {
		t.Fatal("Expected ProcessBlock to fail for a missing block")
	}

	if got := f.cursor.lastBlock(); got != 100 {
		t.Errorf("Expected cursor to stay at 100 after a failed fetch, got %d", got)
	}
}

func TestEngine_Reconnect(t *testing.T) {
	f := newEngineFixture(t)

	f.adapter.head = 0
	f.adapter.addBlock(0)
	f.adapter.subFailures = 2

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Two refused attempts, then the third connects after the fixed delay
	select {
	case <-f.adapter.subscribedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected subscription to be established after reconnects")
	}

	waitForState(t, f.engine, FeedConnected)

	f.adapter.mu.Lock()
	maxActive := f.adapter.maxActive
	f.adapter.mu.Unlock()
	if maxActive > 1 {
		t.Errorf("Expected at most one concurrent subscription, got %d", maxActive)
	}

	// Heads flowing through the live feed get ingested
	f.adapter.addBlock(7)
	f.adapter.headsCh <- 7

	deadline := time.After(2 * time.Second)
	for {
		if exists, _ := f.blocks.Exists(context.Background(), 7); exists {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Expected block 7 to be ingested from the live feed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A dropped subscription reconnects after the fixed delay
	f.adapter.subErrCh <- fmt.Errorf("upstream closed")
	select {
	case <-f.adapter.subscribedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a reconnect after the subscription dropped")
	}

	if err := f.engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := f.engine.State(); got != FeedStopped {
		t.Errorf("Expected terminal state %s, got %s", FeedStopped, got)
	}
}

func TestEngine_SlowBlockDoesNotStallFeed(t *testing.T) {
	f := newEngineFixture(t)

	f.adapter.head = 0
	f.adapter.addBlock(0)
	f.adapter.addBlock(7)
	f.adapter.addBlock(8)
	gate := f.adapter.gateBlock(7)

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForState(t, f.engine, FeedConnected)

	// Block 7 hangs in its fetch; a later head must still flow through
	f.adapter.headsCh <- 7
	f.adapter.headsCh <- 8

	deadline := time.After(2 * time.Second)
	for {
		if exists, _ := f.blocks.Exists(context.Background(), 8); exists {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Expected block 8 to be ingested while block 7 is stuck")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if exists, _ := f.blocks.Exists(context.Background(), 7); exists {
		t.Fatal("Expected block 7 to still be in flight")
	}

	close(gate)

	deadline = time.After(2 * time.Second)
	for {
		if exists, _ := f.blocks.Exists(context.Background(), 7); exists {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Expected block 7 to be ingested once its fetch completes")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Stop waits for in-flight ingestions to drain
	if err := f.engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestEngine_Start_Idempotent(t *testing.T) {
	f := newEngineFixture(t)
	f.adapter.addBlock(0)
	f.adapter.subErr = adapter.ErrSubscriptionsUnavailable

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("second Start must be a no-op, got: %v", err)
	}

	if err := f.engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := f.engine.Stop(context.Background()); err == nil {
		t.Error("Expected second Stop to report not running")
	}
}

func waitForState(t *testing.T, engine *Engine, want FeedState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if engine.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("Timed out waiting for state %s, still %s", want, engine.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
