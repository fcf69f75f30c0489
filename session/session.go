package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/provider"
)

// Config holds the configuration for a wallet session.
type Config struct {
	// Gateway is the wallet capability. A gateway without a provider is
	// valid: every wallet operation then fails with
	// provider.ErrProviderUnavailable.
	Gateway *provider.Gateway

	// Target is the descriptor of the only chain writes are allowed on.
	// It is also the descriptor offered to the wallet when the chain is
	// unknown.
	Target provider.ChainConfig

	// NetworkNames maps chain ids to display names.
	NetworkNames map[provider.ChainID]string
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}

	if c.Target.ChainID == 0 {
		return fmt.Errorf("target chain id is required")
	}

	if c.Target.ChainName == "" || len(c.Target.RPCURLs) == 0 {
		return fmt.Errorf("target chain descriptor is incomplete")
	}

	return nil
}

// Form holds the editable inputs of the front end.
type Form struct {
	Name   string
	Record string
}

// State is a point-in-time copy of the session.
type State struct {
	Account    common.Address
	Connected  bool
	ChainID    provider.ChainID
	Generation uint64
	Form       Form
}

// Session tracks the current account and chain. It replaces the ambient
// wallet globals of a page: every component reads the session instead.
//
// A chain change invalidates the session. Invalidation clears the account,
// chain and form, bumps the generation, cancels the session context and runs
// the registered hooks. Operations started under an older generation must
// discard their results.
type Session struct {
	cfg *Config

	account   common.Address
	connected bool
	chainID   provider.ChainID
	form      Form

	generation uint64
	restored   bool

	ctx    context.Context
	cancel context.CancelFunc

	hooks []func(generation uint64)

	sub *provider.Subscription

	mu sync.RWMutex

	started bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New creates a new session.
func New(cfg *Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start subscribes to chain changes. Without a wallet the session stays
// usable but never receives notifications. A stopped session can be started
// again.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	quit := make(chan struct{})
	s.quit = quit
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()

	sub, err := s.cfg.Gateway.SubscribeChainChanged()
	if errors.Is(err, provider.ErrProviderUnavailable) {
		log.Warnf("No wallet available, chain changes will not be " +
			"observed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to chain changes: %w",
			err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watchChain(sub, quit)

	return nil
}

// Stop tears down the chain-change subscription.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	sub := s.sub
	s.sub = nil
	quit := s.quit
	s.mu.Unlock()

	close(quit)
	if sub != nil {
		sub.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	return nil
}

// watchChain invalidates the session on every chain change.
func (s *Session) watchChain(sub *provider.Subscription,
	quit <-chan struct{}) {

	defer s.wg.Done()

	for {
		select {
		case id := <-sub.Changes():
			log.Infof("Wallet switched to chain %v, resetting "+
				"session", id)
			s.Invalidate()

		case <-sub.Done():
			return

		case <-quit:
			return
		}
	}
}

// OnInvalidate registers a hook that runs after every invalidation with the
// new generation. Hooks run outside the session lock.
func (s *Session) OnInvalidate(hook func(generation uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, hook)
}

// Invalidate resets the session as if the process had restarted.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.account = common.Address{}
	s.connected = false
	s.chainID = 0
	s.form = Form{}
	s.restored = false
	s.generation++

	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	generation := s.generation
	hooks := append([]func(uint64){}, s.hooks...)
	s.mu.Unlock()

	log.Debugf("Session invalidated, generation=%d", generation)

	for _, hook := range hooks {
		hook(generation)
	}
}

// Connect prompts the wallet for accounts and stores the first one. A
// rejected prompt or a missing wallet is logged and returned, leaving the
// session unconnected.
func (s *Session) Connect(ctx context.Context) error {
	generation := s.Generation()

	accounts, err := s.cfg.Gateway.RequestAccounts(ctx)
	switch {
	case errors.Is(err, provider.ErrUserRejected),
		errors.Is(err, provider.ErrProviderUnavailable):

		log.Warnf("Unable to connect wallet: %v", err)
		return err

	case err != nil:
		return fmt.Errorf("failed to request accounts: %w", err)

	case len(accounts) == 0:
		log.Warnf("Wallet returned no accounts")
		return ErrNotConnected
	}

	chainID, err := s.cfg.Gateway.ChainID(ctx)
	if err != nil {
		log.Warnf("Unable to read chain id: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		return ErrSessionInvalidated
	}

	s.account = accounts[0]
	s.connected = true
	if err == nil {
		s.chainID = chainID
	}

	log.Infof("Connected account %v on chain %v", s.account, s.chainID)

	return nil
}

// RestoreIfAuthorized populates the account and chain without prompting.
// It runs at most once per generation; later calls are no-ops.
func (s *Session) RestoreIfAuthorized(ctx context.Context) error {
	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		return nil
	}
	s.restored = true
	generation := s.generation
	s.mu.Unlock()

	if !s.cfg.Gateway.Available() {
		log.Infof("Make sure a wallet is available")
		return provider.ErrProviderUnavailable
	}

	accounts, err := s.cfg.Gateway.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}

	chainID, err := s.cfg.Gateway.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		return ErrSessionInvalidated
	}

	s.chainID = chainID
	if len(accounts) == 0 {
		log.Infof("No authorized account found")
		return nil
	}

	s.account = accounts[0]
	s.connected = true

	log.Infof("Found authorized account %v on chain %v", s.account,
		chainID)

	return nil
}

// Account returns the connected account.
func (s *Session) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.account, s.connected
}

// RequireAccount returns the connected account or ErrNotConnected.
func (s *Session) RequireAccount() (common.Address, error) {
	account, ok := s.Account()
	if !ok {
		return common.Address{}, ErrNotConnected
	}

	return account, nil
}

// ChainID returns the session's chain, zero if unknown.
func (s *Session) ChainID() provider.ChainID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chainID
}

// Generation returns the current generation.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// Current reports whether generation is still the live one.
func (s *Session) Current(generation uint64) bool {
	return s.Generation() == generation
}

// Bind derives a context that is cancelled with ctx or on the next
// invalidation, whichever comes first, and returns the generation it is bound
// to. Cancelling stops local waiting only; submitted writes stay submitted.
func (s *Session) Bind(ctx context.Context) (context.Context, uint64,
	context.CancelFunc) {

	s.mu.RLock()
	sessionCtx := s.ctx
	generation := s.generation
	s.mu.RUnlock()

	bound, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(sessionCtx, cancel)

	return bound, generation, func() {
		stop()
		cancel()
	}
}

// Form returns the editable inputs.
func (s *Session) Form() Form {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.form
}

// SetForm replaces the editable inputs.
func (s *Session) SetForm(form Form) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.form = form
}

// ClearForm empties the editable inputs.
func (s *Session) ClearForm() {
	s.SetForm(Form{})
}

// State returns a copy of the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		Account:    s.account,
		Connected:  s.connected,
		ChainID:    s.chainID,
		Generation: s.generation,
		Form:       s.form,
	}
}

// NetworkName returns the display name of the session's chain.
func (s *Session) NetworkName() string {
	id := s.ChainID()
	if id == 0 {
		return "Unknown network"
	}

	if name, ok := s.cfg.NetworkNames[id]; ok {
		return name
	}
	if id == s.cfg.Target.ChainID {
		return s.cfg.Target.ChainName
	}

	return fmt.Sprintf("Unknown network (%v)", id)
}

// ShortAccount returns the account abbreviated for display, e.g.
// 0x1234...abcd.
func (s *Session) ShortAccount() string {
	account, ok := s.Account()
	if !ok {
		return ""
	}

	return ShortAddress(account)
}

// ShortAddress abbreviates an address for display.
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
