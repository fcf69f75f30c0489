package devwallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/magicns/lightwallet/keyring"
	"github.com/magicns/lightwallet/provider"
)

// codeInvalidParams is the JSON-RPC invalid params code.
const codeInvalidParams = -32602

// Wallet is an in-process wallet implementing provider.Provider. Account and
// chain management requests are answered locally, prompts go through the
// Approver, and everything else is forwarded to the current chain's node.
type Wallet struct {
	cfg *Config

	chains     map[provider.ChainID]provider.ChainConfig
	current    provider.ChainID
	authorized []common.Address

	upstreams map[provider.ChainID]Upstream

	notifier *provider.Notifier

	mu sync.Mutex
}

// New creates a new development wallet.
func New(cfg *Config) (*Wallet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.NumAccounts == 0 {
		cfg.NumAccounts = 1
	}
	if cfg.Dial == nil {
		cfg.Dial = DialUpstream
	}
	if cfg.Permissions == nil {
		cfg.Permissions = keyring.NewMemoryPermissionStore()
	}

	w := &Wallet{
		cfg:       cfg,
		chains:    make(map[provider.ChainID]provider.ChainConfig),
		current:   cfg.DefaultChain,
		upstreams: make(map[provider.ChainID]Upstream),
		notifier:  provider.NewNotifier(),
	}
	for _, chain := range cfg.Chains {
		w.chains[chain.ChainID] = chain
	}

	// Derive the exposed accounts up front so persisted permissions can be
	// checked against them and signing keys are cached.
	if _, err := cfg.KeyRing.Accounts(cfg.NumAccounts); err != nil {
		return nil, fmt.Errorf("failed to derive accounts: %w", err)
	}

	perms, err := cfg.Permissions.GetPermissions()
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	for _, addr := range perms.Accounts {
		if cfg.KeyRing.HasAccount(addr) {
			w.authorized = append(w.authorized, addr)
		}
	}
	if _, ok := w.chains[provider.ChainID(perms.ChainID)]; ok {
		w.current = provider.ChainID(perms.ChainID)
	}

	return w, nil
}

// Stop closes upstream connections and chain-change subscriptions.
func (w *Wallet) Stop() error {
	w.mu.Lock()
	for id, up := range w.upstreams {
		up.Close()
		delete(w.upstreams, id)
	}
	w.mu.Unlock()

	w.notifier.CloseAll()

	return nil
}

// Request implements provider.Provider.
func (w *Wallet) Request(ctx context.Context, result interface{},
	method string, params ...interface{}) error {

	var (
		value interface{}
		err   error
	)
	switch method {
	case "eth_accounts":
		value = w.authorizedAccounts()

	case "eth_requestAccounts":
		value, err = w.requestAccounts(ctx)

	case "eth_chainId":
		value = w.currentChain()

	case "wallet_switchEthereumChain":
		err = w.switchChain(ctx, params)

	case "wallet_addEthereumChain":
		err = w.addChain(ctx, params)

	case "eth_sendTransaction":
		value, err = w.sendTransaction(ctx, params)

	default:
		return w.forward(ctx, result, method, params...)
	}
	if err != nil {
		return err
	}

	return encodeResult(value, result)
}

// SubscribeChainChanged implements provider.Provider.
func (w *Wallet) SubscribeChainChanged() (*provider.Subscription, error) {
	return w.notifier.Subscribe(), nil
}

// authorizedAccounts returns a copy of the authorized accounts.
func (w *Wallet) authorizedAccounts() []common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]common.Address{}, w.authorized...)
}

// currentChain returns the selected chain.
func (w *Wallet) currentChain() provider.ChainID {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.current
}

// requestAccounts authorizes the wallet's accounts after a prompt. Already
// authorized accounts are returned without prompting.
func (w *Wallet) requestAccounts(ctx context.Context) ([]common.Address,
	error) {

	if accounts := w.authorizedAccounts(); len(accounts) > 0 {
		return accounts, nil
	}

	err := w.approve(ctx, ApprovalRequest{
		Method:  "eth_requestAccounts",
		Summary: fmt.Sprintf("Connect %d account(s)", w.cfg.NumAccounts),
	})
	if err != nil {
		return nil, err
	}

	accounts, err := w.cfg.KeyRing.Accounts(w.cfg.NumAccounts)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.authorized = accounts
	w.mu.Unlock()

	w.persist()

	log.Infof("Authorized %d account(s)", len(accounts))

	return append([]common.Address{}, accounts...), nil
}

// switchChain selects a known chain.
func (w *Wallet) switchChain(ctx context.Context, params []interface{}) error {
	var req struct {
		ChainID provider.ChainID `json:"chainId"`
	}
	if err := decodeParam(params, &req); err != nil {
		return err
	}

	w.mu.Lock()
	chain, known := w.chains[req.ChainID]
	current := w.current
	w.mu.Unlock()

	if !known {
		return provider.NewRPCError(
			provider.CodeChainUnknown, "Unrecognized chain ID %v. "+
				"Try adding the chain using "+
				"wallet_addEthereumChain first.", req.ChainID,
		)
	}
	if current == req.ChainID {
		return nil
	}

	return w.selectChain(ctx, chain)
}

// addChain registers a chain and then offers to switch to it.
func (w *Wallet) addChain(ctx context.Context, params []interface{}) error {
	var chain provider.ChainConfig
	if err := decodeParam(params, &chain); err != nil {
		return err
	}
	if chain.ChainName == "" || len(chain.RPCURLs) == 0 {
		return provider.NewRPCError(
			codeInvalidParams, "chainName and rpcUrls are required",
		)
	}

	err := w.approve(ctx, ApprovalRequest{
		Method: "wallet_addEthereumChain",
		Summary: fmt.Sprintf("Add network %s (%v) using %s",
			chain.ChainName, chain.ChainID, chain.RPCURLs[0]),
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.chains[chain.ChainID] = chain
	if up, ok := w.upstreams[chain.ChainID]; ok {
		up.Close()
		delete(w.upstreams, chain.ChainID)
	}
	current := w.current
	w.mu.Unlock()

	log.Infof("Added chain %s (%v)", chain.ChainName, chain.ChainID)

	if current == chain.ChainID {
		return nil
	}

	// The chain stays added even if the follow-up switch is declined.
	if err := w.selectChain(ctx, chain); err != nil {
		log.Infof("Switch to added chain %v declined: %v",
			chain.ChainID, err)
	}

	return nil
}

// selectChain prompts for and performs a chain switch, then notifies
// subscribers.
func (w *Wallet) selectChain(ctx context.Context,
	chain provider.ChainConfig) error {

	err := w.approve(ctx, ApprovalRequest{
		Method: "wallet_switchEthereumChain",
		Summary: fmt.Sprintf("Switch network to %s (%v)",
			chain.ChainName, chain.ChainID),
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.current = chain.ChainID
	w.mu.Unlock()

	w.persist()

	log.Infof("Switched to chain %s (%v)", chain.ChainName, chain.ChainID)

	// Notify outside the lock: subscribers may call back into the wallet.
	w.notifier.Broadcast(chain.ChainID)

	return nil
}

// sendTransaction signs a transaction for an authorized account and
// broadcasts it to the current chain.
func (w *Wallet) sendTransaction(ctx context.Context,
	params []interface{}) (common.Hash, error) {

	var req provider.TxRequest
	if err := decodeParam(params, &req); err != nil {
		return common.Hash{}, err
	}

	if !w.isAuthorized(req.From) {
		return common.Hash{}, provider.NewRPCError(
			provider.CodeUnauthorized, "account %v is not authorized",
			req.From,
		)
	}

	value := new(big.Int)
	if req.Value != nil {
		value = req.Value.ToInt()
	}

	chainID := w.currentChain()
	err := w.approve(ctx, ApprovalRequest{
		Method: "eth_sendTransaction",
		Summary: fmt.Sprintf("Send %v wei from %v to %v with %d "+
			"bytes of data on chain %v", value, req.From, req.To,
			len(req.Data), chainID),
	})
	if err != nil {
		return common.Hash{}, err
	}

	up, err := w.upstream(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := up.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := up.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w",
			err)
	}

	to := req.To
	gas, err := up.EstimateGas(ctx, ethereum.CallMsg{
		From:  req.From,
		To:    &to,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w",
			err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})

	signed, err := w.cfg.KeyRing.SignTx(
		req.From, tx, new(big.Int).SetUint64(uint64(chainID)),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign: %w", err)
	}

	if err := up.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast: %w", err)
	}

	log.Debugf("Broadcast transaction %v (nonce=%d, gas=%d)",
		signed.Hash(), nonce, gas)

	return signed.Hash(), nil
}

// forward passes a request to the current chain's node.
func (w *Wallet) forward(ctx context.Context, result interface{},
	method string, params ...interface{}) error {

	up, err := w.upstream(ctx, w.currentChain())
	if err != nil {
		return err
	}

	return up.CallContext(ctx, result, method, params...)
}

// upstream returns the node connection for a chain, dialing it on first use.
func (w *Wallet) upstream(ctx context.Context,
	id provider.ChainID) (Upstream, error) {

	w.mu.Lock()
	if up, ok := w.upstreams[id]; ok {
		w.mu.Unlock()
		return up, nil
	}
	chain, ok := w.chains[id]
	w.mu.Unlock()

	if !ok || len(chain.RPCURLs) == 0 {
		return nil, provider.NewRPCError(
			provider.CodeChainDisconnected, "no RPC endpoint for "+
				"chain %v", id,
		)
	}

	up, err := w.cfg.Dial(ctx, chain.RPCURLs[0])
	if err != nil {
		return nil, provider.NewRPCError(
			provider.CodeChainDisconnected, "dial %s: %v",
			chain.RPCURLs[0], err,
		)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Another request may have dialed concurrently.
	if existing, ok := w.upstreams[id]; ok {
		up.Close()
		return existing, nil
	}
	w.upstreams[id] = up

	return up, nil
}

// isAuthorized reports whether addr was authorized by the user.
func (w *Wallet) isAuthorized(addr common.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, a := range w.authorized {
		if a == addr {
			return true
		}
	}

	return false
}

// approve asks the Approver and maps a refusal to code 4001.
func (w *Wallet) approve(ctx context.Context, req ApprovalRequest) error {
	ok, err := w.cfg.Approver.Approve(ctx, req)
	if err != nil {
		return fmt.Errorf("approval failed: %w", err)
	}
	if !ok {
		log.Debugf("User rejected %s", req.Method)
		return provider.NewRPCError(
			provider.CodeUserRejected, "User rejected the request.",
		)
	}

	return nil
}

// persist stores the current permissions.
func (w *Wallet) persist() {
	w.mu.Lock()
	perms := &keyring.Permissions{
		Accounts: append([]common.Address(nil), w.authorized...),
		ChainID:  uint64(w.current),
	}
	w.mu.Unlock()

	if err := w.cfg.Permissions.SetPermissions(perms); err != nil {
		// Log error but don't fail - the in-memory state is current
		log.Warnf("Failed to persist permissions: %v", err)
	}
}

// decodeParam decodes the first request parameter into dst.
func decodeParam(params []interface{}, dst interface{}) error {
	if len(params) < 1 {
		return provider.NewRPCError(
			codeInvalidParams, "%v: missing parameter",
			ErrInvalidParams,
		)
	}

	b, err := json.Marshal(params[0])
	if err != nil {
		return provider.NewRPCError(
			codeInvalidParams, "%v: %v", ErrInvalidParams, err,
		)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return provider.NewRPCError(
			codeInvalidParams, "%v: %v", ErrInvalidParams, err,
		)
	}

	return nil
}

// encodeResult JSON round-trips value into result.
func encodeResult(value, result interface{}) error {
	if result == nil {
		return nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, result)
}

var _ provider.Provider = (*Wallet)(nil)
