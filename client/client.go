package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/chain/walletrpc"
	"github.com/magicns/lightwallet/db"
	"github.com/magicns/lightwallet/keyring"
	"github.com/magicns/lightwallet/minting"
	"github.com/magicns/lightwallet/provider"
	"github.com/magicns/lightwallet/registry"
	"github.com/magicns/lightwallet/server"
	"github.com/magicns/lightwallet/session"
	"github.com/magicns/lightwallet/viewcache"
	"github.com/magicns/lightwallet/wallet/devwallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// restoreTimeout bounds a background restore and its reconciliation.
	restoreTimeout = time.Minute

	seedFilename        = "devwallet.seed"
	permissionsFilename = "devwallet.json"
	journalFilename     = "journal.db"
)

// Status is a snapshot of the client for display.
type Status struct {
	Account       common.Address         `json:"account"`
	ShortAccount  string                 `json:"short_account"`
	Connected     bool                   `json:"connected"`
	ChainID       provider.ChainID       `json:"chain_id"`
	NetworkName   string                 `json:"network_name"`
	OnTarget      bool                   `json:"on_target"`
	Generation    uint64                 `json:"generation"`
	Submitting    bool                   `json:"submitting"`
	PendingWrites []minting.PendingWrite `json:"pending_writes"`
	Editing       string                 `json:"editing,omitempty"`
	Names         int                    `json:"names"`
	ReconciledAt  time.Time              `json:"reconciled_at"`
}

// starter is implemented by providers with background work.
type starter interface {
	Start() error
}

// stopper is implemented by providers holding resources.
type stopper interface {
	Stop() error
}

// Client wires the wallet session, the registry and the minter together.
// It is the entry point for front ends.
type Client struct {
	cfg *Config

	// Core components
	wallet   provider.Provider
	gateway  *provider.Gateway
	session  *session.Session
	guard    *session.NetworkGuard
	registry *registry.Client
	view     *viewcache.Cache
	journal  *db.JournalStore
	minter   *minting.Minter

	// Observability
	metrics *prometheus.Registry
	server  *server.Server

	restoreSignal chan struct{}

	started bool
	mu      sync.Mutex
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New creates a new client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w",
				err)
		}
	}

	c := &Client{
		cfg:           cfg,
		metrics:       prometheus.NewRegistry(),
		restoreSignal: make(chan struct{}, 1),
		quit:          make(chan struct{}),
	}
	c.metrics.MustRegister(collectors.NewGoCollector())

	// Wallet backend
	wallet, err := newWallet(cfg)
	if err != nil {
		return nil, err
	}
	c.wallet = wallet
	c.gateway = provider.NewGateway(wallet)

	// Session and network guard
	c.session, err = session.New(&session.Config{
		Gateway:      c.gateway,
		Target:       cfg.Target,
		NetworkNames: cfg.NetworkNames,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	c.guard = session.NewNetworkGuard(c.session)

	// Registry binding and view
	regCfg := registry.DefaultConfig(
		c.gateway, common.HexToAddress(cfg.RegistryAddress),
	)
	regCfg.PollInterval = cfg.ReceiptPollInterval
	regCfg.ExplorerURL = cfg.ExplorerURL
	c.registry, err = registry.New(regCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry client: %w",
			err)
	}

	viewCfg := viewcache.DefaultConfig(c.registry)
	if cfg.ReadConcurrency > 0 {
		viewCfg.Concurrency = cfg.ReadConcurrency
	}
	viewCfg.Registerer = c.metrics
	c.view, err = viewcache.New(viewCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create view cache: %w", err)
	}

	// Journal
	mintCfg := &minting.Config{
		Session:       c.session,
		Guard:         c.guard,
		Registry:      c.registry,
		View:          c.view,
		SettlingDelay: cfg.SettlingDelay,
		Registerer:    c.metrics,
	}
	if !cfg.NoJournal {
		c.journal, err = db.InitDatabase(db.DefaultConfig(
			filepath.Join(cfg.DataDir, journalFilename),
		))
		if err != nil {
			return nil, fmt.Errorf("failed to init journal: %w", err)
		}
		mintCfg.Journal = c.journal
	}

	// Minting
	c.minter, err = minting.New(mintCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init minter: %w", err)
	}

	// The minter registered its reset hook first, so pending writes are
	// gone before the view is cleared and restore is scheduled.
	c.session.OnInvalidate(c.onInvalidate)

	// Metrics server
	if cfg.MetricsListen != "" {
		srvCfg := server.DefaultConfig(c.metrics)
		srvCfg.ListenAddr = cfg.MetricsListen
		srvCfg.Status = func() interface{} {
			return c.Status()
		}
		c.server, err = server.New(srvCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics "+
				"server: %w", err)
		}
	}

	return c, nil
}

// newWallet builds the configured wallet backend.
func newWallet(cfg *Config) (provider.Provider, error) {
	if cfg.Provider != nil {
		return cfg.Provider, nil
	}

	switch cfg.Wallet {
	case WalletRPC:
		ctx, cancel := context.WithTimeout(
			context.Background(), 10*time.Second,
		)
		defer cancel()

		return walletrpc.Dial(ctx, &walletrpc.Config{
			URL:          cfg.WalletRPCURL,
			RateLimit:    cfg.WalletRateLimit,
			PollInterval: cfg.ChainPollInterval,
		})

	default:
		return newDevWallet(cfg)
	}
}

// newDevWallet creates the development wallet. It knows mainnet and the
// target chain; its permissions persist in the data directory.
func newDevWallet(cfg *Config) (*devwallet.Wallet, error) {
	seed, err := loadOrCreateSeed(cfg)
	if err != nil {
		return nil, err
	}

	kr, err := keyring.New(keyring.DefaultConfig(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to create keyring: %w", err)
	}

	walletCfg := devwallet.DefaultConfig(kr)
	walletCfg.Chains = append(walletCfg.Chains, cfg.Target)
	if cfg.DevAccounts > 0 {
		walletCfg.NumAccounts = cfg.DevAccounts
	}
	if cfg.Approver != nil {
		walletCfg.Approver = cfg.Approver
	}
	if cfg.Upstream != nil {
		walletCfg.Dial = cfg.Upstream
	}

	if cfg.DataDir != "" {
		walletCfg.Permissions, err = keyring.NewFilePermissionStore(
			filepath.Join(cfg.DataDir, permissionsFilename),
		)
		if err != nil {
			return nil, err
		}
	}

	wallet, err := devwallet.New(walletCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	return wallet, nil
}

// loadOrCreateSeed returns the configured seed, the one stored in the data
// directory, or a new one which is then stored.
func loadOrCreateSeed(cfg *Config) ([]byte, error) {
	if cfg.DevSeed != "" {
		seed, err := hex.DecodeString(cfg.DevSeed)
		if err != nil {
			return nil, fmt.Errorf("invalid dev seed: %w", err)
		}
		return seed, nil
	}

	seedPath := filepath.Join(cfg.DataDir, seedFilename)
	stored, err := os.ReadFile(seedPath)
	switch {
	case err == nil:
		seed, err := hex.DecodeString(strings.TrimSpace(string(stored)))
		if err != nil {
			return nil, fmt.Errorf("invalid seed in %s: %w", seedPath,
				err)
		}
		return seed, nil

	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}

	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate seed: %w", err)
	}

	err = os.WriteFile(seedPath, []byte(hex.EncodeToString(seed)), 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to store seed: %w", err)
	}

	log.Infof("Generated development wallet seed in %v", seedPath)

	return seed, nil
}

// Start starts the wallet backend and the session, restores a previously
// authorized account and starts the metrics server.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	if s, ok := c.wallet.(starter); ok {
		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to start wallet: %w", err)
		}
	}

	if err := c.session.Start(); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if c.server != nil {
		if err := c.server.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w",
				err)
		}
	}

	c.restore()

	c.wg.Add(1)
	go c.restoreLoop()

	c.started = true

	return nil
}

// Stop stops the client.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		close(c.quit)
		c.wg.Wait()
		c.started = false
	}

	var errs []error
	if c.server != nil {
		errs = append(errs, c.server.Stop())
	}
	errs = append(errs, c.session.Stop())
	if s, ok := c.wallet.(stopper); ok {
		errs = append(errs, s.Stop())
	}
	if c.journal != nil {
		errs = append(errs, c.journal.Close())
	}

	return errors.Join(errs...)
}

// onInvalidate runs after every session invalidation.
func (c *Client) onInvalidate(generation uint64) {
	c.view.Clear()

	log.Infof("Session invalidated (generation %d), restoring",
		generation)

	select {
	case c.restoreSignal <- struct{}{}:
	default:
	}
}

// restoreLoop re-runs restore after invalidations.
func (c *Client) restoreLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.restoreSignal:
			c.restore()

		case <-c.quit:
			return
		}
	}
}

// restore runs the silent account restore and reconciles if the restored
// session is usable.
func (c *Client) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	err := c.session.RestoreIfAuthorized(ctx)
	switch {
	case errors.Is(err, provider.ErrProviderUnavailable):
		log.Warnf("No wallet available: %v", err)
		return

	case err != nil:
		log.Errorf("Unable to restore session: %v", err)
		return
	}

	c.autoReconcile(ctx)
}

// autoReconcile refreshes the view when an account is connected on the
// target chain.
func (c *Client) autoReconcile(ctx context.Context) {
	if _, ok := c.session.Account(); !ok {
		return
	}
	if !c.guard.IsOnTargetChain(c.session.ChainID()) {
		log.Infof("Connected to %s, switch to %s to see names",
			c.session.NetworkName(), c.cfg.Target.ChainName)
		return
	}

	ctx, _, cancel := c.session.Bind(ctx)
	defer cancel()

	if _, err := c.view.Reconcile(ctx); err != nil {
		log.Warnf("Unable to load names: %v", err)
	}
}

// Connect asks the wallet for account access. Rejections are returned for
// display and leave the session disconnected.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		return err
	}

	c.autoReconcile(ctx)

	return nil
}

// SwitchNetwork asks the wallet to move to the target chain, adding it if
// the wallet does not know it.
func (c *Client) SwitchNetwork(ctx context.Context) (session.Outcome, error) {
	return c.guard.EnsureTargetChain(ctx)
}

// Mint registers name with an initial record.
func (c *Client) Mint(ctx context.Context, name,
	record string) (*minting.MintResult, error) {

	c.session.SetForm(session.Form{Name: name, Record: record})

	result, err := c.minter.Mint(ctx, minting.MintRequest{
		Name:   name,
		Record: record,
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Register tx: %s", c.registry.ExplorerTxURL(
		result.RegisterTx,
	))
	if result.RecordTx != (common.Hash{}) {
		log.Infof("Record tx: %s", c.registry.ExplorerTxURL(
			result.RecordTx,
		))
	}

	return result, nil
}

// BeginEdit starts editing a name owned by the connected account.
func (c *Client) BeginEdit(name string) error {
	return c.minter.BeginEdit(name)
}

// CancelEdit leaves edit mode.
func (c *Client) CancelEdit() {
	c.minter.CancelEdit()
}

// EditState returns the current edit.
func (c *Client) EditState() minting.EditState {
	return c.minter.EditState()
}

// SubmitEdit writes record to the name being edited.
func (c *Client) SubmitEdit(ctx context.Context,
	record string) (*minting.EditResult, error) {

	result, err := c.minter.SubmitEdit(ctx, record)
	if err != nil {
		return nil, err
	}

	log.Infof("Record tx: %s", c.registry.ExplorerTxURL(result.RecordTx))

	return result, nil
}

// Names returns the minted names. The view is reconciled first if refresh
// is set or it was never loaded; that requires the target chain.
func (c *Client) Names(ctx context.Context,
	refresh bool) ([]viewcache.MintEntry, error) {

	if !refresh && !c.view.ReconciledAt().IsZero() {
		return c.view.Entries(), nil
	}

	if err := c.guard.RequireTarget(); err != nil {
		return nil, err
	}

	ctx, generation, cancel := c.session.Bind(ctx)
	defer cancel()

	entries, err := c.view.Reconcile(ctx)
	if !c.session.Current(generation) {
		return nil, session.ErrSessionInvalidated
	}

	return entries, err
}

// History returns journaled writes of the connected account, or of every
// account when disconnected, newest first.
func (c *Client) History(ctx context.Context,
	limit int) ([]minting.WriteRecord, error) {

	if c.journal == nil {
		return nil, ErrJournalDisabled
	}

	query := db.WriteQuery{Limit: limit}
	if account, ok := c.session.Account(); ok {
		query.Account = &account
	}

	return c.journal.ListWrites(ctx, query)
}

// Accounts returns the accounts the wallet exposes without prompting.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	return c.gateway.Accounts(ctx)
}

// MarketplaceURL returns the marketplace link of entry.
func (c *Client) MarketplaceURL(entry viewcache.MintEntry) string {
	return entry.MarketplaceURL(c.cfg.MarketplaceURL, c.registry.Contract())
}

// ExplorerTxURL returns the explorer link of a transaction.
func (c *Client) ExplorerTxURL(hash common.Hash) string {
	return c.registry.ExplorerTxURL(hash)
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	state := c.session.State()
	edit := c.minter.EditState()

	return Status{
		Account:       state.Account,
		ShortAccount:  c.session.ShortAccount(),
		Connected:     state.Connected,
		ChainID:       state.ChainID,
		NetworkName:   c.session.NetworkName(),
		OnTarget:      c.guard.IsOnTargetChain(state.ChainID),
		Generation:    state.Generation,
		Submitting:    c.minter.Submitting(),
		PendingWrites: c.minter.PendingWrites(),
		Editing:       edit.TargetName,
		Names:         len(c.view.Entries()),
		ReconciledAt:  c.view.ReconciledAt(),
	}
}

// Gatherer returns the client's metrics.
func (c *Client) Gatherer() prometheus.Gatherer {
	return c.metrics
}
