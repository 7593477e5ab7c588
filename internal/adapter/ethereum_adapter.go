package adapter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strings"
	"sync"

	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Ethereum address regex pattern (0x followed by 40 hexadecimal characters)
var ethereumAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// viewSelectors maps allow-listed view functions to their 4-byte selectors
var viewSelectors = map[ViewFunction][]byte{
	ViewName:        {0x06, 0xfd, 0xde, 0x03},
	ViewSymbol:      {0x95, 0xd8, 0x9b, 0x41},
	ViewDecimals:    {0x31, 0x3c, 0xe5, 0x67},
	ViewTotalSupply: {0x18, 0x16, 0x0d, 0xdd},
}

// EthereumAdapter implements ChainAdapter for Ethereum and EVM-compatible
// chains. Request/response calls go through the HTTP client; head
// subscriptions dial the websocket endpoint lazily.
type EthereumAdapter struct {
	chainID types.ChainID
	client  *ethclient.Client
	wsURL   string
	limiter *rate.Limiter

	wsMu     sync.Mutex
	wsClient *ethclient.Client
}

// EthereumAdapterConfig holds configuration for creating an EthereumAdapter
type EthereumAdapterConfig struct {
	// ChainID is the chain identifier. Required.
	ChainID types.ChainID

	// RPCURL is the HTTP JSON-RPC endpoint. Required.
	RPCURL string

	// WSURL is the websocket subscription endpoint. Optional; when empty,
	// SubscribeNewHeads fails with ErrSubscriptionsUnavailable.
	WSURL string

	// RateLimit caps upstream requests per second. Zero disables limiting.
	RateLimit int
}

// NewEthereumAdapter creates a new Ethereum chain adapter
func NewEthereumAdapter(cfg *EthereumAdapterConfig) (*EthereumAdapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url cannot be empty")
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, NewAdapterError(cfg.ChainID, "NewEthereumAdapter", err, map[string]interface{}{
			"rpcURL": cfg.RPCURL,
		})
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	return &EthereumAdapter{
		chainID: cfg.ChainID,
		client:  client,
		wsURL:   cfg.WSURL,
		limiter: limiter,
	}, nil
}

// ChainID returns the chain identifier
func (a *EthereumAdapter) ChainID() types.ChainID {
	return a.chainID
}

// BlockNumber returns the current chain height
func (a *EthereumAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	blockNum, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, NewAdapterError(a.chainID, "BlockNumber", err, nil)
	}
	return blockNum, nil
}

// BlockByNumber fetches a block with transaction hashes inlined
func (a *EthereumAdapter) BlockByNumber(ctx context.Context, number uint64) (*BlockData, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	block, err := a.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, NewAdapterError(a.chainID, "BlockByNumber", ErrBlockNotFound, map[string]interface{}{
				"number": number,
			})
		}
		return nil, NewAdapterError(a.chainID, "BlockByNumber", err, map[string]interface{}{
			"number": number,
		})
	}

	txHashes := make([]string, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		txHashes = append(txHashes, tx.Hash().Hex())
	}

	return &BlockData{
		Number:   block.NumberU64(),
		Hash:     block.Hash().Hex(),
		Miner:    strings.ToLower(block.Coinbase().Hex()),
		Time:     block.Time(),
		GasUsed:  block.GasUsed(),
		GasLimit: block.GasLimit(),
		Size:     block.Size(),
		BaseFee:  block.BaseFee(),
		TxHashes: txHashes,
	}, nil
}

// TransactionByHash fetches and normalizes a transaction body
func (a *EthereumAdapter) TransactionByHash(ctx context.Context, hash string) (*TxData, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	tx, isPending, err := a.client.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, NewAdapterError(a.chainID, "TransactionByHash", ErrTransactionNotFound, map[string]interface{}{
				"hash": hash,
			})
		}
		return nil, NewAdapterError(a.chainID, "TransactionByHash", err, map[string]interface{}{
			"hash": hash,
		})
	}
	if isPending {
		return nil, NewAdapterError(a.chainID, "TransactionByHash", ErrTransactionNotFound, map[string]interface{}{
			"hash":    hash,
			"pending": true,
		})
	}

	return a.normalizeTransaction(tx)
}

// normalizeTransaction converts an Ethereum transaction to common format
func (a *EthereumAdapter) normalizeTransaction(tx *ethtypes.Transaction) (*TxData, error) {
	// Handle legacy transactions with chainID 0 by falling back to mainnet
	chainID := tx.ChainId()
	if chainID == nil || chainID.Sign() == 0 {
		chainID = big.NewInt(1)
	}
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "normalizeTransaction", err, map[string]interface{}{
			"txHash": tx.Hash().Hex(),
			"error":  "failed to extract sender",
		})
	}

	data := &TxData{
		Hash:     tx.Hash().Hex(),
		From:     strings.ToLower(sender.Hex()),
		Value:    tx.Value(),
		GasPrice: tx.GasPrice(),
		Nonce:    tx.Nonce(),
		Input:    tx.Data(),
	}

	if tx.To() != nil {
		to := strings.ToLower(tx.To().Hex())
		data.To = &to
	}

	return data, nil
}

// TransactionReceipt fetches and normalizes a transaction receipt
func (a *EthereumAdapter) TransactionReceipt(ctx context.Context, hash string) (*ReceiptData, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, NewAdapterError(a.chainID, "TransactionReceipt", ErrTransactionNotFound, map[string]interface{}{
				"hash": hash,
			})
		}
		return nil, NewAdapterError(a.chainID, "TransactionReceipt", err, map[string]interface{}{
			"hash": hash,
		})
	}

	data := &ReceiptData{
		Status:  receipt.Status,
		GasUsed: receipt.GasUsed,
		TxIndex: receipt.TransactionIndex,
		Logs:    normalizeLogs(receipt.Logs),
	}

	if receipt.ContractAddress != (common.Address{}) {
		created := strings.ToLower(receipt.ContractAddress.Hex())
		data.ContractAddress = &created
	}

	return data, nil
}

// normalizeLogs converts receipt logs to opaque event log records
func normalizeLogs(logs []*ethtypes.Log) []models.EventLog {
	normalized := make([]models.EventLog, 0, len(logs))
	for _, l := range logs {
		topics := make([]string, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, t.Hex())
		}
		normalized = append(normalized, models.EventLog{
			Address: strings.ToLower(l.Address.Hex()),
			Topics:  topics,
			Data:    fmt.Sprintf("0x%x", l.Data),
			Index:   l.Index,
		})
	}
	return normalized
}

// BalanceAt returns the current native balance as a decimal string
func (a *EthereumAdapter) BalanceAt(ctx context.Context, address string) (string, error) {
	if !ValidateAddress(address) {
		return "", NewAdapterError(a.chainID, "BalanceAt", ErrInvalidAddress, map[string]interface{}{
			"address": address,
		})
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	balance, err := a.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", NewAdapterError(a.chainID, "BalanceAt", err, map[string]interface{}{
			"address": address,
		})
	}
	return balance.String(), nil
}

// CodeAt returns the deployed bytecode at an address
func (a *EthereumAdapter) CodeAt(ctx context.Context, address string) ([]byte, error) {
	if !ValidateAddress(address) {
		return nil, NewAdapterError(a.chainID, "CodeAt", ErrInvalidAddress, map[string]interface{}{
			"address": address,
		})
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	code, err := a.client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "CodeAt", err, map[string]interface{}{
			"address": address,
		})
	}
	return code, nil
}

// CallView invokes an allow-listed read-only contract function
func (a *EthereumAdapter) CallView(ctx context.Context, contract string, fn ViewFunction) ([]byte, error) {
	selector, ok := viewSelectors[fn]
	if !ok {
		return nil, NewAdapterError(a.chainID, "CallView", ErrUnknownViewFunction, map[string]interface{}{
			"function": string(fn),
		})
	}
	if !ValidateAddress(contract) {
		return nil, NewAdapterError(a.chainID, "CallView", ErrInvalidAddress, map[string]interface{}{
			"address": contract,
		})
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	to := common.HexToAddress(contract)
	ret, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: selector,
	}, nil)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "CallView", err, map[string]interface{}{
			"address":  contract,
			"function": string(fn),
		})
	}
	return ret, nil
}

// SubscribeNewHeads opens a new-head subscription over the websocket endpoint
func (a *EthereumAdapter) SubscribeNewHeads(ctx context.Context) (HeadSubscription, error) {
	if a.wsURL == "" {
		return nil, NewAdapterError(a.chainID, "SubscribeNewHeads", ErrSubscriptionsUnavailable, nil)
	}

	wsClient, err := a.wsDial(ctx)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "SubscribeNewHeads", err, map[string]interface{}{
			"wsURL": a.wsURL,
		})
	}

	headers := make(chan *ethtypes.Header, 16)
	sub, err := wsClient.SubscribeNewHead(ctx, headers)
	if err != nil {
		// The cached client may hold a dead connection; drop it so the
		// next attempt redials.
		a.wsReset()
		return nil, NewAdapterError(a.chainID, "SubscribeNewHeads", err, map[string]interface{}{
			"wsURL": a.wsURL,
		})
	}

	log.Printf("[Adapter:%s] New-head subscription opened", a.chainID)
	return newHeadSubscription(sub, headers), nil
}

// wsDial returns the cached websocket client, dialing on first use
func (a *EthereumAdapter) wsDial(ctx context.Context) (*ethclient.Client, error) {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()

	if a.wsClient != nil {
		return a.wsClient, nil
	}

	client, err := ethclient.DialContext(ctx, a.wsURL)
	if err != nil {
		return nil, err
	}
	a.wsClient = client
	return client, nil
}

// wsReset drops the cached websocket client
func (a *EthereumAdapter) wsReset() {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	if a.wsClient != nil {
		a.wsClient.Close()
		a.wsClient = nil
	}
}

// Close closes the underlying client connections
func (a *EthereumAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
	a.wsReset()
}

// ValidateAddress checks if an address format is valid for Ethereum
func ValidateAddress(address string) bool {
	return ethereumAddressRegex.MatchString(address)
}

// IsTransient determines if an error is a transient upstream fault that
// warrants a retry rather than a skip
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}

// IsNotFound reports whether an error indicates data not yet visible on the
// queried node
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBlockNotFound) || errors.Is(err, ErrTransactionNotFound)
}

// headSubscription adapts an ethereum.Subscription to HeadSubscription
type headSubscription struct {
	sub     ethereum.Subscription
	headers chan *ethtypes.Header
	heads   chan uint64
	done    chan struct{}
	once    sync.Once
}

func newHeadSubscription(sub ethereum.Subscription, headers chan *ethtypes.Header) *headSubscription {
	s := &headSubscription{
		sub:     sub,
		headers: headers,
		heads:   make(chan uint64, 16),
		done:    make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *headSubscription) forward() {
	defer close(s.heads)
	for {
		select {
		case header, ok := <-s.headers:
			if !ok {
				return
			}
			select {
			case s.heads <- header.Number.Uint64():
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *headSubscription) Heads() <-chan uint64 {
	return s.heads
}

func (s *headSubscription) Err() <-chan error {
	return s.sub.Err()
}

func (s *headSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Unsubscribe()
	})
}
