// Package asset models ERC20 tokens per network and converts between
// on-chain integer units and decimal amounts.
package asset

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownToken = errors.New("asset: unknown token")

// Token identifies an ERC20 deployment. Identity is (network, address), not symbol.
type Token struct {
	Symbol   string
	Network  string
	Address  common.Address
	Decimals int32
}

// String returns "SYMBOL@network".
func (t Token) String() string {
	return t.Symbol + "@" + t.Network
}

type key struct {
	network string
	symbol  string
}

// Registry is a thread-safe lookup of configured tokens.
type Registry struct {
	mu        sync.RWMutex
	bySymbol  map[key]Token
	byAddress map[common.Address][]Token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySymbol:  make(map[key]Token),
		byAddress: make(map[common.Address][]Token),
	}
}

// Register adds a token. Registering the same symbol twice on one network is an error.
func (r *Registry) Register(t Token) error {
	if t.Symbol == "" || t.Network == "" {
		return fmt.Errorf("asset: token requires symbol and network")
	}
	if t.Decimals < 0 || t.Decimals > 36 {
		return fmt.Errorf("asset: %s has invalid decimals %d", t, t.Decimals)
	}

	k := key{network: t.Network, symbol: strings.ToUpper(t.Symbol)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySymbol[k]; exists {
		return fmt.Errorf("asset: %s already registered", t)
	}
	r.bySymbol[k] = t
	r.byAddress[t.Address] = append(r.byAddress[t.Address], t)
	return nil
}

// Lookup finds a token by network and symbol.
func (r *Registry) Lookup(network, symbol string) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.bySymbol[key{network: network, symbol: strings.ToUpper(symbol)}]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s@%s", ErrUnknownToken, symbol, network)
	}
	return t, nil
}

// ByAddress returns the tokens deployed at addr across networks.
func (r *Registry) ByAddress(addr common.Address) []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Token, len(r.byAddress[addr]))
	copy(out, r.byAddress[addr])
	return out
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySymbol)
}
