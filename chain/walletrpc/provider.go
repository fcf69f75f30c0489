package walletrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/magicns/lightwallet/provider"
	"golang.org/x/time/rate"
)

// Config holds configuration for the wallet RPC provider.
type Config struct {
	// URL is the wallet's JSON-RPC endpoint (http, ws or ipc path).
	// Default: http://127.0.0.1:1248
	URL string

	// RateLimit is the number of requests per second allowed.
	// Default: 10
	RateLimit int

	// PollInterval is how often eth_chainId is polled to detect chain
	// changes.
	// Default: 4 seconds
	PollInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		URL:          "http://127.0.0.1:1248",
		RateLimit:    10,
		PollInterval: 4 * time.Second,
	}
}

// Provider is a provider.Provider backed by an external wallet that speaks
// EIP-1193 methods over JSON-RPC.
//
// Requests are never retried: every retry is a fresh user action.
type Provider struct {
	cfg *Config

	client      *rpc.Client
	rateLimiter *rate.Limiter

	notifier *provider.Notifier
	watcher  *chainWatcher

	started bool
	mu      sync.Mutex
}

// Dial connects to the wallet endpoint. A dial failure is reported as
// provider.ErrProviderUnavailable.
func Dial(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v",
			provider.ErrProviderUnavailable, cfg.URL, err)
	}

	return New(client, cfg), nil
}

// New creates a Provider over an existing RPC client.
func New(client *rpc.Client, cfg *Config) *Provider {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// A zero limit would reject every request and a zero interval would
	// panic the ticker.
	defaults := DefaultConfig()
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}

	// Create rate limiter (requests per second)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	p := &Provider{
		cfg:         cfg,
		client:      client,
		rateLimiter: limiter,
		notifier:    provider.NewNotifier(),
	}
	p.watcher = newChainWatcher(
		p.fetchChainID, ticker.New(cfg.PollInterval), p.notifier,
	)

	return p
}

// Start starts chain-change polling.
func (p *Provider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.watcher.Start()
	p.started = true

	log.Infof("Wallet RPC provider started (%s)", p.cfg.URL)

	return nil
}

// Stop stops polling, closes all subscriptions and the RPC client.
func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		p.watcher.Stop()
		p.started = false
	}

	p.notifier.CloseAll()
	p.client.Close()

	return nil
}

// Request implements provider.Provider.
func (p *Provider) Request(ctx context.Context, result interface{},
	method string, params ...interface{}) error {

	// Wait for rate limiter
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return p.client.CallContext(ctx, result, method, params...)
}

// SubscribeChainChanged implements provider.Provider.
func (p *Provider) SubscribeChainChanged() (*provider.Subscription, error) {
	return p.notifier.Subscribe(), nil
}

// fetchChainID queries the wallet's current chain.
func (p *Provider) fetchChainID(ctx context.Context) (provider.ChainID,
	error) {

	var id provider.ChainID
	if err := p.Request(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}

	return id, nil
}

var _ provider.Provider = (*Provider)(nil)
