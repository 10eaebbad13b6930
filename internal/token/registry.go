// Package token resolves asset symbols to contract addresses and back.
package token

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is a read-only bidirectional address <-> symbol map.
// Safe for concurrent use once built.
type Registry struct {
	byAddress map[string]string // normalised address -> symbol
	bySymbol  map[string]string // symbol -> address as supplied
}

// NewRegistry builds a registry from a symbol -> address table.
// When two symbols share an address, the lexically first symbol owns the reverse entry.
func NewRegistry(assetToAddress map[string]string) *Registry {
	r := &Registry{
		byAddress: make(map[string]string, len(assetToAddress)),
		bySymbol:  make(map[string]string, len(assetToAddress)),
	}

	symbols := make([]string, 0, len(assetToAddress))
	for sym := range assetToAddress {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		addr := assetToAddress[sym]
		r.bySymbol[sym] = addr

		key := normalizeAddress(addr)
		if _, taken := r.byAddress[key]; !taken {
			r.byAddress[key] = sym
		}
	}

	return r
}

// AddressToName returns the symbol registered for addr.
func (r *Registry) AddressToName(addr string) (string, bool) {
	sym, ok := r.byAddress[normalizeAddress(addr)]
	return sym, ok
}

// NameToAddress returns the address registered for symbol.
func (r *Registry) NameToAddress(symbol string) (string, bool) {
	addr, ok := r.bySymbol[symbol]
	return addr, ok
}

// Symbols returns all registered symbols, sorted.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for sym := range r.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered symbols.
func (r *Registry) Len() int {
	return len(r.bySymbol)
}

// normalizeAddress makes hex addresses comparable regardless of checksum casing.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return strings.ToLower(addr)
}
