package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Network Types
// -----------------------------------------------------------------------------

// Family tags how a chain prices gas.
type Family string

const (
	// FamilyEthereum chains need backend-side gas smoothing.
	FamilyEthereum Family = "ethereum"

	// FamilyBinance chains expose an authoritative eth_gasPrice on their node.
	FamilyBinance Family = "binance"
)

// ethereumChainIDs are the chain ids treated as Ethereum-like (mainnet, ropsten).
var ethereumChainIDs = map[int64]struct{}{
	1: {},
	3: {},
}

// FamilyForChainID derives the family from a chain id.
func FamilyForChainID(chainID int64) Family {
	if _, ok := ethereumChainIDs[chainID]; ok {
		return FamilyEthereum
	}
	return FamilyBinance
}

// IsEthereum reports whether gas pricing is delegated to the backend.
func (f Family) IsEthereum() bool {
	return f == FamilyEthereum
}

// BaseCurrency returns the symbol of the chain's native asset.
func (f Family) BaseCurrency() string {
	if f.IsEthereum() {
		return "ETH"
	}
	return "BNB"
}

// Network describes one chain deployment of the exchange.
type Network struct {
	Name       string // Table key (e.g., "bsc-testnet")
	ChainID    int64  // EIP-155 chain id
	RPCURL     string // Node JSON-RPC endpoint
	BackendURL string // Exchange backend base URL
	StreamURL  string // Streaming base URL (wss://...)
	Family     Family // Empty = derived from ChainID
}

// ResolvedFamily returns the explicit family or the one derived from the chain id.
func (n Network) ResolvedFamily() Family {
	if n.Family != "" {
		return n.Family
	}
	return FamilyForChainID(n.ChainID)
}

// BlockchainInfo is network metadata fetched once from the backend.
type BlockchainInfo struct {
	ChainID                 int64             `json:"chainId"`
	ChainName               string            `json:"chainName"`
	ExchangeContractAddress string            `json:"exchangeContractAddress"`
	OracleContractAddress   string            `json:"oracleContractAddress"`
	MatcherAddress          string            `json:"matcherAddress"`
	MinOrnFee               decimal.Decimal   `json:"minOrnFee"`
	AssetToAddress          map[string]string `json:"assetToAddress"`

	// BaseCurrencyName is derived from the network family, not fetched.
	BaseCurrencyName string `json:"-"`
}

// -----------------------------------------------------------------------------
// Price Types
// -----------------------------------------------------------------------------

// PriceSnapshot maps asset symbol to its price in the reference asset.
type PriceSnapshot map[string]decimal.Decimal

// Symbols returns the symbols present in the snapshot.
func (p PriceSnapshot) Symbols() []string {
	out := make([]string, 0, len(p))
	for sym := range p {
		out = append(out, sym)
	}
	return out
}

// ChainPrices are the fee inputs an order needs.
type ChainPrices struct {
	NetworkAsset string // Price of the chain's base currency
	BaseAsset    string // Price of the order's base asset
	FeeAsset     string // Price of the fee asset
	GasWei       string // Gas price in wei
}

// FeeSample is one periodic observation of fee inputs.
type FeeSample struct {
	ID        uuid.UUID
	Network   string
	ChainID   int64
	BaseAsset string
	FeeAsset  string
	Prices    ChainPrices
	SampledAt time.Time
	Latency   time.Duration // Time taken by the fetch
}

// -----------------------------------------------------------------------------
// Stream Types
// -----------------------------------------------------------------------------

// Pair is a normalised ticker record for one trading pair.
type Pair struct {
	Name      string          // e.g. "ORN-USDT"
	LastPrice decimal.Decimal // Last traded price
	OpenPrice decimal.Decimal // Price 24h ago
	High      decimal.Decimal // 24h high
	Low       decimal.Decimal // 24h low
	Volume24h decimal.Decimal // 24h volume
	Change24h decimal.Decimal // Percent change of LastPrice vs OpenPrice
}

// TickerBatch is one ticker frame, keyed by pair name.
type TickerBatch struct {
	Timestamp int64
	Pairs     map[string]Pair
}

// OrderbookLevel is one aggregated price level.
type OrderbookLevel struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	Total     decimal.Decimal
	Exchanges []string
}

// OrderbookUpdate is an aggregated order book frame for one pair.
type OrderbookUpdate struct {
	Pair      string
	Timestamp int64
	Asks      []OrderbookLevel
	Bids      []OrderbookLevel
}
