package chain

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/chainbridge/internal/api"
	"github.com/rickgao/chainbridge/internal/model"
	"github.com/rickgao/chainbridge/internal/noderpc"
	"github.com/rickgao/chainbridge/internal/token"
)

// Backend is the exchange backend's blockchain namespace.
type Backend interface {
	GetBlockchainInfo(ctx context.Context) (*model.BlockchainInfo, error)
	GetPrices(ctx context.Context) (map[string]decimal.Decimal, error)
	GetGasPrice(ctx context.Context) (string, error)
}

// Node is the chain node's JSON-RPC endpoint.
type Node interface {
	GasPrice(ctx context.Context) (string, error)
}

// loaded is the metadata written once by Init.
type loaded struct {
	info   model.BlockchainInfo
	tokens *token.Registry
}

// Bridge answers price and gas questions for one network.
type Bridge struct {
	network model.Network
	family  model.Family
	logger  *slog.Logger

	backend    Backend
	node       Node
	httpClient *http.Client
	apiOpts    []api.ClientOption

	initMu sync.Mutex
	state  atomic.Pointer[loaded]
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithAPIClient replaces the backend REST client.
func WithAPIClient(b Backend) Option {
	return func(br *Bridge) {
		br.backend = b
	}
}

// WithNodeClient replaces the node JSON-RPC client.
func WithNodeClient(n Node) Option {
	return func(br *Bridge) {
		br.node = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(br *Bridge) {
		br.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used by the default backend and node clients.
func WithHTTPClient(hc *http.Client) Option {
	return func(br *Bridge) {
		br.httpClient = hc
	}
}

// WithAPIOptions passes options to the default backend client.
func WithAPIOptions(opts ...api.ClientOption) Option {
	return func(br *Bridge) {
		br.apiOpts = append(br.apiOpts, opts...)
	}
}

// New creates a Bridge for network. Call Init before using it.
func New(network model.Network, opts ...Option) *Bridge {
	b := &Bridge{
		network: network,
		family:  network.ResolvedFamily(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("network", network.Name, "chain_id", network.ChainID)

	if b.backend == nil {
		apiOpts := []api.ClientOption{api.WithLogger(b.logger)}
		if b.httpClient != nil {
			apiOpts = append(apiOpts, api.WithHTTPClient(b.httpClient))
		}
		b.backend = api.NewClient(network.BackendURL, append(apiOpts, b.apiOpts...)...)
	}
	if b.node == nil {
		b.node = noderpc.NewClient(network.RPCURL, b.httpClient, b.logger)
	}

	return b
}

// Network returns the network descriptor.
func (b *Bridge) Network() model.Network {
	return b.network
}

// Family returns the resolved chain family.
func (b *Bridge) Family() model.Family {
	return b.family
}

// IsEthereum reports whether the network is Ethereum-like.
func (b *Bridge) IsEthereum() bool {
	return b.family.IsEthereum()
}

// BaseCurrency returns the network's native asset symbol.
func (b *Bridge) BaseCurrency() string {
	return b.family.BaseCurrency()
}

// Init fetches network metadata and builds the token registry.
// Transport errors are returned unchanged; a failed Init may be retried.
func (b *Bridge) Init(ctx context.Context) error {
	b.initMu.Lock()
	defer b.initMu.Unlock()

	if b.state.Load() != nil {
		return ErrAlreadyInitialized
	}

	info, err := b.backend.GetBlockchainInfo(ctx)
	if err != nil {
		return err
	}

	st := &loaded{
		info: model.BlockchainInfo{
			ChainID:                 info.ChainID,
			ChainName:               info.ChainName,
			ExchangeContractAddress: info.ExchangeContractAddress,
			OracleContractAddress:   info.OracleContractAddress,
			MatcherAddress:          info.MatcherAddress,
			MinOrnFee:               info.MinOrnFee,
			AssetToAddress:          maps.Clone(info.AssetToAddress),
			BaseCurrencyName:        b.family.BaseCurrency(),
		},
		tokens: token.NewRegistry(info.AssetToAddress),
	}
	b.state.Store(st)

	b.logger.Info("chain bridge initialized",
		"chain_name", st.info.ChainName,
		"family", b.family,
		"base_currency", st.info.BaseCurrencyName,
		"assets", st.tokens.Len(),
	)

	return nil
}

func (b *Bridge) loaded() (*loaded, error) {
	st := b.state.Load()
	if st == nil {
		return nil, ErrNotInitialized
	}
	return st, nil
}

// BlockchainInfo returns a copy of the metadata fetched by Init.
func (b *Bridge) BlockchainInfo() (model.BlockchainInfo, error) {
	st, err := b.loaded()
	if err != nil {
		return model.BlockchainInfo{}, err
	}
	info := st.info
	info.AssetToAddress = maps.Clone(st.info.AssetToAddress)
	return info, nil
}

// Tokens returns the token registry built by Init.
func (b *Bridge) Tokens() (*token.Registry, error) {
	st, err := b.loaded()
	if err != nil {
		return nil, err
	}
	return st.tokens, nil
}

// TokenAddress returns the contract address of symbol.
func (b *Bridge) TokenAddress(symbol string) (string, error) {
	st, err := b.loaded()
	if err != nil {
		return "", err
	}
	addr, ok := st.tokens.NameToAddress(symbol)
	if !ok {
		return "", &UnknownAssetError{Asset: symbol}
	}
	return addr, nil
}

// Prices returns current prices keyed by symbol, in the reference asset.
// Addresses the registry does not know are dropped.
func (b *Bridge) Prices(ctx context.Context) (model.PriceSnapshot, error) {
	st, err := b.loaded()
	if err != nil {
		return nil, err
	}

	raw, err := b.backend.GetPrices(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(model.PriceSnapshot, len(raw))
	var skipped int
	for addr, price := range raw {
		sym, ok := st.tokens.AddressToName(addr)
		if !ok {
			skipped++
			continue
		}
		snapshot[sym] = price
	}

	if skipped > 0 {
		b.logger.Debug("dropped unknown price addresses", "count", skipped)
	}

	return snapshot, nil
}

// GasPrice returns the current gas price in wei as a decimal string.
func (b *Bridge) GasPrice(ctx context.Context) (string, error) {
	if _, err := b.loaded(); err != nil {
		return "", err
	}

	if b.family.IsEthereum() {
		return b.backend.GetGasPrice(ctx)
	}
	return b.node.GasPrice(ctx)
}

// ChainPrices fetches prices and gas concurrently and picks the fee inputs
// for an order trading baseAsset and paying fees in feeAsset.
func (b *Bridge) ChainPrices(ctx context.Context, baseAsset, feeAsset string) (model.ChainPrices, error) {
	st, err := b.loaded()
	if err != nil {
		return model.ChainPrices{}, err
	}

	var (
		prices model.PriceSnapshot
		gas    string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := b.Prices(gctx)
		if err != nil {
			return fmt.Errorf("prices: %w", err)
		}
		prices = p
		return nil
	})
	g.Go(func() error {
		v, err := b.GasPrice(gctx)
		if err != nil {
			return fmt.Errorf("gas price: %w", err)
		}
		gas = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.ChainPrices{}, err
	}

	pick := func(sym string) (string, error) {
		p, ok := prices[sym]
		if !ok {
			return "", &UnknownAssetError{Asset: sym}
		}
		return p.String(), nil
	}

	out := model.ChainPrices{GasWei: gas}
	if out.NetworkAsset, err = pick(st.info.BaseCurrencyName); err != nil {
		return model.ChainPrices{}, err
	}
	if out.BaseAsset, err = pick(baseAsset); err != nil {
		return model.ChainPrices{}, err
	}
	if out.FeeAsset, err = pick(feeAsset); err != nil {
		return model.ChainPrices{}, err
	}

	return out, nil
}
