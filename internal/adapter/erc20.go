package adapter

import (
	"context"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// TransferEventTopic is the topic hash of the canonical ERC-20 Transfer
// event: Transfer(address,address,uint256)
var TransferEventTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// erc20MetadataABI covers only the optional metadata view functions used by
// token discovery
const erc20MetadataABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Fallback values substituted when a metadata call fails. Many non-standard
// tokens omit the optional view functions.
const (
	FallbackTokenName   = "Unknown"
	FallbackTokenSymbol = "???"
	FallbackDecimals    = uint8(18)
	FallbackTotalSupply = "0"
)

// TokenMetadata is the one-shot snapshot fetched at token discovery time
type TokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply string
}

// TokenMetadataReader reads ERC-20 metadata through a chain adapter's
// view-call capability, substituting fallbacks per failing call.
type TokenMetadataReader struct {
	adapter ChainAdapter
	abi     abi.ABI
}

// NewTokenMetadataReader creates a metadata reader over the given adapter
func NewTokenMetadataReader(chainAdapter ChainAdapter) (*TokenMetadataReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	if err != nil {
		return nil, err
	}
	return &TokenMetadataReader{adapter: chainAdapter, abi: parsed}, nil
}

// Metadata fetches name, symbol, decimals and totalSupply for a token
// contract. Each call is independently fault-tolerant; a failing call
// yields its fallback value rather than an error.
func (r *TokenMetadataReader) Metadata(ctx context.Context, contract string) *TokenMetadata {
	meta := &TokenMetadata{
		Name:        FallbackTokenName,
		Symbol:      FallbackTokenSymbol,
		Decimals:    FallbackDecimals,
		TotalSupply: FallbackTotalSupply,
	}

	if name, err := r.callString(ctx, contract, ViewName); err == nil {
		meta.Name = name
	} else {
		log.Printf("[ERC20:%s] name() failed for %s: %v", r.adapter.ChainID(), contract, err)
	}

	if symbol, err := r.callString(ctx, contract, ViewSymbol); err == nil {
		meta.Symbol = symbol
	} else {
		log.Printf("[ERC20:%s] symbol() failed for %s: %v", r.adapter.ChainID(), contract, err)
	}

	if decimals, err := r.callUint8(ctx, contract, ViewDecimals); err == nil {
		meta.Decimals = decimals
	} else {
		log.Printf("[ERC20:%s] decimals() failed for %s: %v", r.adapter.ChainID(), contract, err)
	}

	if supply, err := r.callBigInt(ctx, contract, ViewTotalSupply); err == nil {
		meta.TotalSupply = supply.String()
	} else {
		log.Printf("[ERC20:%s] totalSupply() failed for %s: %v", r.adapter.ChainID(), contract, err)
	}

	return meta
}

func (r *TokenMetadataReader) callString(ctx context.Context, contract string, fn ViewFunction) (string, error) {
	ret, err := r.adapter.CallView(ctx, contract, fn)
	if err != nil {
		return "", err
	}
	values, err := r.abi.Unpack(string(fn), ret)
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", ErrUnknownViewFunction
	}
	return s, nil
}

func (r *TokenMetadataReader) callUint8(ctx context.Context, contract string, fn ViewFunction) (uint8, error) {
	ret, err := r.adapter.CallView(ctx, contract, fn)
	if err != nil {
		return 0, err
	}
	values, err := r.abi.Unpack(string(fn), ret)
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, ErrUnknownViewFunction
	}
	return d, nil
}

func (r *TokenMetadataReader) callBigInt(ctx context.Context, contract string, fn ViewFunction) (*big.Int, error) {
	ret, err := r.adapter.CallView(ctx, contract, fn)
	if err != nil {
		return nil, err
	}
	values, err := r.abi.Unpack(string(fn), ret)
	if err != nil {
		return nil, err
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return nil, ErrUnknownViewFunction
	}
	return n, nil
}
