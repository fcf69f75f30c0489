// Package providertest provides an in-memory wallet provider for tests.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/magicns/lightwallet/provider"
)

// Handler answers one request. The returned value is JSON round-tripped into
// the caller's result.
type Handler func(params []json.RawMessage) (interface{}, error)

// Call is a recorded request.
type Call struct {
	Method string
	Params []json.RawMessage
}

// Fake is a scriptable provider.Provider.
type Fake struct {
	handlers map[string]Handler
	calls    []Call
	mu       sync.Mutex

	notifier *provider.Notifier
}

// New creates an empty Fake. Unhandled methods fail with code 4200.
func New() *Fake {
	return &Fake{
		handlers: make(map[string]Handler),
		notifier: provider.NewNotifier(),
	}
}

// Handle installs a handler for method.
func (f *Fake) Handle(method string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[method] = h
}

// Respond installs a handler that always returns value.
func (f *Fake) Respond(method string, value interface{}) {
	f.Handle(method, func([]json.RawMessage) (interface{}, error) {
		return value, nil
	})
}

// Fail installs a handler that always returns err.
func (f *Fake) Fail(method string, err error) {
	f.Handle(method, func([]json.RawMessage) (interface{}, error) {
		return nil, err
	})
}

// Calls returns the recorded requests for method.
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var calls []Call
	for _, c := range f.calls {
		if c.Method == method {
			calls = append(calls, c)
		}
	}

	return calls
}

// CallCount returns the number of recorded requests for method.
func (f *Fake) CallCount(method string) int {
	return len(f.Calls(method))
}

// ChangeChain fires a chain-change notification.
func (f *Fake) ChangeChain(id provider.ChainID) {
	f.notifier.Broadcast(id)
}

// Subscribers returns the number of live chain-change subscriptions.
func (f *Fake) Subscribers() int {
	return f.notifier.NumSubscribers()
}

// Request implements provider.Provider.
func (f *Fake) Request(ctx context.Context, result interface{}, method string,
	params ...interface{}) error {

	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		raw = append(raw, b)
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: raw})
	h, ok := f.handlers[method]
	f.mu.Unlock()

	if !ok {
		return provider.NewRPCError(
			provider.CodeUnsupportedMethod, "method %s not handled",
			method,
		)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := h(raw)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal fake response: %w", err)
	}

	return json.Unmarshal(b, result)
}

// SubscribeChainChanged implements provider.Provider.
func (f *Fake) SubscribeChainChanged() (*provider.Subscription, error) {
	return f.notifier.Subscribe(), nil
}

var _ provider.Provider = (*Fake)(nil)

// Receipt builds a mined receipt that survives a JSON round trip.
func Receipt(hash common.Hash, status uint64, block int64) *types.Receipt {
	return &types.Receipt{
		Type:        types.LegacyTxType,
		Status:      status,
		TxHash:      hash,
		BlockNumber: big.NewInt(block),
		GasUsed:     21000,
		Logs:        []*types.Log{},
	}
}
