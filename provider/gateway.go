package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider is the wallet capability: a generic request/response call plus a
// chain-change notification channel.
type Provider interface {
	// Request performs an EIP-1193 request and decodes the response into
	// result. A nil result discards the response.
	Request(ctx context.Context, result interface{}, method string,
		params ...interface{}) error

	// SubscribeChainChanged registers for chain-change notifications.
	SubscribeChainChanged() (*Subscription, error)
}

// Gateway is a thin typed adapter over a Provider. A Gateway without a
// provider fails every call with ErrProviderUnavailable.
type Gateway struct {
	provider Provider
}

// NewGateway creates a Gateway. p may be nil when no wallet is present.
func NewGateway(p Provider) *Gateway {
	return &Gateway{
		provider: p,
	}
}

// Available reports whether a wallet capability is present.
func (g *Gateway) Available() bool {
	return g != nil && g.provider != nil
}

// request performs a request and maps provider error codes.
func (g *Gateway) request(ctx context.Context, result interface{},
	method string, params ...interface{}) error {

	if !g.Available() {
		return fmt.Errorf("%s: %w", method, ErrProviderUnavailable)
	}

	log.Tracef("Provider request %s", method)

	err := g.provider.Request(ctx, result, method, params...)
	if err != nil {
		err = translateError(method, err)
		log.Debugf("Provider request %s failed: %v", method, err)
	}

	return err
}

// Accounts returns the currently authorized addresses without prompting.
func (g *Gateway) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := g.request(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}

	return accounts, nil
}

// RequestAccounts prompts the user to authorize accounts.
func (g *Gateway) RequestAccounts(ctx context.Context) ([]common.Address,
	error) {

	var accounts []common.Address
	err := g.request(ctx, &accounts, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}

	return accounts, nil
}

// ChainID returns the wallet's current chain.
func (g *Gateway) ChainID(ctx context.Context) (ChainID, error) {
	var id ChainID
	if err := g.request(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}

	return id, nil
}

// SwitchChain asks the wallet to switch to id. If the wallet does not know the
// chain the returned error is a *ChainUnknownError.
func (g *Gateway) SwitchChain(ctx context.Context, id ChainID) error {
	err := g.request(
		ctx, nil, "wallet_switchEthereumChain",
		switchChainParams{ChainID: id},
	)

	var unknown *ChainUnknownError
	if errors.As(err, &unknown) {
		unknown.ChainID = id
	}

	return err
}

// AddChain registers a chain definition with the wallet.
func (g *Gateway) AddChain(ctx context.Context, cfg ChainConfig) error {
	return g.request(ctx, nil, "wallet_addEthereumChain", cfg)
}

// SubscribeChainChanged registers for chain-change notifications.
func (g *Gateway) SubscribeChainChanged() (*Subscription, error) {
	if !g.Available() {
		return nil, ErrProviderUnavailable
	}

	return g.provider.SubscribeChainChanged()
}

// Call executes a read-only contract call against the latest block.
func (g *Gateway) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var out hexutil.Bytes
	if err := g.request(ctx, &out, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}

	return out, nil
}

// SendTransaction hands a transaction to the wallet for signing and
// submission. The returned hash only proves submission.
func (g *Gateway) SendTransaction(ctx context.Context,
	tx TxRequest) (common.Hash, error) {

	var hash common.Hash
	if err := g.request(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, err
	}

	return hash, nil
}

// TransactionReceipt returns the receipt of a mined transaction, or nil if
// the transaction is still pending.
func (g *Gateway) TransactionReceipt(ctx context.Context,
	hash common.Hash) (*types.Receipt, error) {

	var receipt *types.Receipt
	err := g.request(ctx, &receipt, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}

	return receipt, nil
}
