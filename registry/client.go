package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/magicns/lightwallet/provider"
)

// Config holds the configuration for the registry client.
type Config struct {
	// Gateway is the wallet capability used for calls and writes.
	Gateway *provider.Gateway

	// Contract is the registry contract address.
	Contract common.Address

	// PollInterval is how often receipts are polled.
	// Default: 2 seconds
	PollInterval time.Duration

	// ExplorerURL is the block explorer base URL used for links.
	ExplorerURL string

	// NewTicker creates receipt poll tickers.
	// Default: ticker.New
	NewTicker func(time.Duration) ticker.Ticker
}

// DefaultConfig returns a default configuration for the given contract.
func DefaultConfig(gw *provider.Gateway, contract common.Address) *Config {
	return &Config{
		Gateway:      gw,
		Contract:     contract,
		PollInterval: 2 * time.Second,
		NewTicker:    newTicker,
	}
}

// newTicker adapts ticker.New, which returns *ticker.T, to the
// ticker.Ticker-returning signature of Config.NewTicker.
func newTicker(interval time.Duration) ticker.Ticker {
	return ticker.New(interval)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}

	if c.Contract == (common.Address{}) {
		return fmt.Errorf("contract address is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	return nil
}

// Client is a typed binding of the name registry contract. Reads go through
// eth_call and writes through the wallet's eth_sendTransaction.
type Client struct {
	cfg *Config
	abi abi.ABI
}

// New creates a new registry client.
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.NewTicker == nil {
		cfg.NewTicker = newTicker
	}

	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	return &Client{
		cfg: cfg,
		abi: parsed,
	}, nil
}

// Contract returns the registry address.
func (c *Client) Contract() common.Address {
	return c.cfg.Contract
}

// Register claims name for from, paying payment wei.
func (c *Client) Register(ctx context.Context, from common.Address,
	name string, payment *big.Int) (*WriteHandle, error) {

	return c.write(ctx, from, payment, MethodRegister, name, name)
}

// SetRecord sets the record of name. Ownership is enforced by the registry,
// not here.
func (c *Client) SetRecord(ctx context.Context, from common.Address, name,
	value string) (*WriteHandle, error) {

	return c.write(ctx, from, nil, MethodSetRecord, name, name, value)
}

// ListNames returns every registered name in registration order.
func (c *Client) ListNames(ctx context.Context) ([]string, error) {
	out, err := c.call(ctx, MethodGetAllNames)
	if err != nil {
		return nil, err
	}

	names, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T",
			ErrUnexpectedResult, MethodGetAllNames, out[0])
	}

	return names, nil
}

// Record returns the record of name, empty if unset.
func (c *Client) Record(ctx context.Context, name string) (string, error) {
	out, err := c.call(ctx, MethodRecords, name)
	if err != nil {
		return "", err
	}

	record, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s returned %T",
			ErrUnexpectedResult, MethodRecords, out[0])
	}

	return record, nil
}

// Owner returns the owner of name, the zero address if unregistered.
func (c *Client) Owner(ctx context.Context, name string) (common.Address,
	error) {

	out, err := c.call(ctx, MethodDomains, name)
	if err != nil {
		return common.Address{}, err
	}

	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned %T",
			ErrUnexpectedResult, MethodDomains, out[0])
	}

	return owner, nil
}

// ExplorerTxURL returns the explorer link of a transaction, empty without an
// explorer.
func (c *Client) ExplorerTxURL(hash common.Hash) string {
	return ExplorerTxURL(c.cfg.ExplorerURL, hash)
}

// ExplorerTxURL joins an explorer base URL and a transaction hash.
func ExplorerTxURL(explorer string, hash common.Hash) string {
	if explorer == "" {
		return ""
	}

	return strings.TrimSuffix(explorer, "/") + "/tx/" + hash.Hex()
}

// call runs a read-only contract method and unpacks its outputs.
func (c *Client) call(ctx context.Context, method string,
	args ...interface{}) ([]interface{}, error) {

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := c.cfg.Gateway.Call(ctx, provider.CallMsg{
		To:   c.cfg.Contract,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrUnexpectedResult,
			method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values",
			ErrUnexpectedResult, method, len(out))
	}

	return out, nil
}

// write submits a state-changing contract call through the wallet.
func (c *Client) write(ctx context.Context, from common.Address,
	value *big.Int, method, name string,
	args ...interface{}) (*WriteHandle, error) {

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	tx := provider.TxRequest{
		From: from,
		To:   c.cfg.Contract,
		Data: data,
	}
	if value != nil {
		tx.Value = (*hexutil.Big)(value)
	}

	hash, err := c.cfg.Gateway.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%s submission failed: %w", method, err)
	}

	log.Infof("Submitted %s(%s) tx %v", method, name, hash)

	return &WriteHandle{
		Hash:         hash,
		Method:       method,
		Name:         name,
		SubmittedAt:  time.Now(),
		gateway:      c.cfg.Gateway,
		pollInterval: c.cfg.PollInterval,
		newTicker:    c.cfg.NewTicker,
	}, nil
}
