package devwallet

import (
	"context"

	"github.com/magicns/lightwallet/keyring"
	"github.com/magicns/lightwallet/provider"
)

// ApprovalRequest describes a prompt shown to the wallet user.
type ApprovalRequest struct {
	// Method is the request that needs approval.
	Method string

	// Summary is a human readable description of the request.
	Summary string
}

// Approver decides wallet prompts on behalf of the user.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context,
	req ApprovalRequest) (bool, error) {

	return f(ctx, req)
}

// AutoApprove approves every prompt.
var AutoApprove = ApproverFunc(
	func(context.Context, ApprovalRequest) (bool, error) {
		return true, nil
	},
)

// Config holds the configuration for the development wallet.
type Config struct {
	// KeyRing derives and signs for the wallet's accounts.
	KeyRing *keyring.KeyRing

	// Approver answers prompts.
	Approver Approver

	// Permissions persists authorized accounts and the selected chain.
	// If nil, permissions are kept in memory only.
	Permissions keyring.PermissionStore

	// Chains are the chains known to the wallet at startup.
	Chains []provider.ChainConfig

	// DefaultChain is selected when no chain was persisted.
	DefaultChain provider.ChainID

	// NumAccounts is the number of accounts exposed on authorization.
	// Default: 1
	NumAccounts uint32

	// Dial connects to a chain's RPC endpoint.
	// Default: DialUpstream
	Dial DialFunc
}

// DefaultConfig returns a default configuration knowing only Ethereum
// mainnet.
func DefaultConfig(kr *keyring.KeyRing) *Config {
	return &Config{
		KeyRing:  kr,
		Approver: AutoApprove,
		Chains: []provider.ChainConfig{{
			ChainID:   1,
			ChainName: "Ethereum Mainnet",
			RPCURLs:   []string{"https://cloudflare-eth.com"},
			NativeCurrency: provider.NativeCurrency{
				Name:     "Ether",
				Symbol:   "ETH",
				Decimals: 18,
			},
			BlockExplorerURLs: []string{"https://etherscan.io/"},
		}},
		DefaultChain: 1,
		NumAccounts:  1,
		Dial:         DialUpstream,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.KeyRing == nil {
		return ErrKeyRingRequired
	}

	if c.Approver == nil {
		return ErrApproverRequired
	}

	for _, chain := range c.Chains {
		if chain.ChainID == c.DefaultChain {
			return nil
		}
	}

	return ErrUnknownDefaultChain
}
